package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kasuganosora/afkagent/cache"
	"github.com/kasuganosora/afkagent/config"
)

const (
	SubjectKey = "subject"
	// AnonymousSubject is set when dashboard authentication is disabled.
	AnonymousSubject = "anonymous"
)

// SessionKey is the cache key that keeps a dashboard token alive.
func SessionKey(token string) string { return "session:" + token }

func newTokenID() string { return uuid.NewString() }

// Auth validates the dashboard token and checks the session cache.
// Without a configured password hash every request passes anonymously.
func Auth(sec config.SecurityConfig, c cache.Cache) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if sec.PasswordHash == "" {
			ctx.Set(SubjectKey, AnonymousSubject)
			ctx.Next()
			return
		}
		tokenStr := BearerToken(ctx)
		if tokenStr == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		claims, err := ParseToken(tokenStr, sec.JWTSecret)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		cacheCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
		defer cancel()
		exists, err := c.Exists(cacheCtx, SessionKey(tokenStr))
		if err != nil || !exists {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
			return
		}

		ctx.Set(SubjectKey, claims.Subject)
		ctx.Next()
	}
}

// BearerToken returns the token from the Authorization header, falling back
// to the token query parameter that browsers use for WebSocket and SSE.
func BearerToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return c.Query("token")
}

// GetSubject retrieves the authenticated subject from the Gin context.
func GetSubject(c *gin.Context) string {
	if v, exists := c.Get(SubjectKey); exists {
		return v.(string)
	}
	return ""
}
