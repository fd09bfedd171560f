package rest

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/afkagent/cache"
	"github.com/kasuganosora/afkagent/config"
	mw "github.com/kasuganosora/afkagent/middleware"
	"golang.org/x/crypto/bcrypt"
)

const (
	// maxLoginFailures per client IP within loginFailureWindow.
	maxLoginFailures   = 5
	loginFailureWindow = 15 * time.Minute
)

// AuthHandler handles dashboard authentication.
type AuthHandler struct {
	cache cache.Cache
	sec   config.SecurityConfig
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(c cache.Cache, sec config.SecurityConfig) *AuthHandler {
	return &AuthHandler{cache: c, sec: sec}
}

type loginRequest struct {
	Password string `json:"password" binding:"max=128"`
}

func failKey(ip string) string { return "login_fail:" + ip }

// Login handles POST /api/auth/login. With no password hash configured the
// dashboard is open and the response says so.
func (h *AuthHandler) Login(c *gin.Context) {
	if h.sec.PasswordHash == "" {
		c.JSON(http.StatusOK, gin.H{"token": "", "auth_required": false})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	ip := c.ClientIP()
	if h.lockedOut(ctx, ip) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many failed logins"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(h.sec.PasswordHash), []byte(req.Password)); err != nil {
		_, _ = h.cache.Incr(ctx, failKey(ip), loginFailureWindow)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	_ = h.cache.Del(ctx, failKey(ip))

	token, err := h.issue(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "auth_required": true})
}

func (h *AuthHandler) lockedOut(ctx context.Context, ip string) bool {
	raw, err := h.cache.Get(ctx, failKey(ip))
	if err != nil {
		return false
	}
	n, err := strconv.Atoi(raw)
	return err == nil && n >= maxLoginFailures
}

// issue signs a token and stores its session so the Auth middleware accepts it.
func (h *AuthHandler) issue(ctx context.Context) (string, error) {
	token, err := mw.GenerateToken(mw.OperatorSubject, h.sec.JWTSecret, h.sec.JWTTTLH)
	if err != nil {
		return "", err
	}
	if err := h.cache.Set(ctx, mw.SessionKey(token), mw.OperatorSubject, h.sec.JWTTTLH); err != nil {
		return "", err
	}
	return token, nil
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	tokenStr := mw.BearerToken(c)
	if tokenStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing token"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	_ = h.cache.Del(ctx, mw.SessionKey(tokenStr))
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Refresh handles POST /api/auth/refresh: the old token is revoked and a new
// one issued.
func (h *AuthHandler) Refresh(c *gin.Context) {
	if mw.GetSubject(c) != mw.OperatorSubject {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	_ = h.cache.Del(ctx, mw.SessionKey(mw.BearerToken(c)))

	token, err := h.issue(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}
