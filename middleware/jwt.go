package middleware

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// OperatorSubject is the subject of tokens issued by the dashboard login.
	OperatorSubject = "operator"

	tokenIssuer   = "afkagent"
	tokenAudience = "afk-dashboard"
)

// ErrInvalidToken wraps every reason a dashboard token is refused.
var ErrInvalidToken = errors.New("invalid dashboard token")

// Claims is the dashboard token payload. The ID is unique per login so a
// refresh can revoke exactly one session.
type Claims struct {
	jwt.RegisteredClaims
}

// GenerateToken signs a dashboard token for subject valid for ttl.
func GenerateToken(subject, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Audience:  jwt.ClaimStrings{tokenAudience},
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        newTokenID(),
	}}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken verifies signature, issuer, audience and expiry of a dashboard
// token. Any failure is reported as ErrInvalidToken.
func ParseToken(tokenStr, secret string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims,
		func(*jwt.Token) (interface{}, error) { return []byte(secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithAudience(tokenAudience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: no subject", ErrInvalidToken)
	}
	return claims, nil
}
