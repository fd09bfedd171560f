package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/afkagent/config"
	"github.com/kasuganosora/afkagent/game/supervisor"
	"github.com/kasuganosora/afkagent/journal"
	"github.com/kasuganosora/afkagent/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultGamePort = 25565
	maxLogs         = 500
)

// Agent is the part of the supervisor the dashboard drives.
type Agent interface {
	Snapshot() supervisor.Snapshot
	Command(name string) error
	Chat(msg string) bool
	Config() config.Config
	ApplySettings(s model.Settings)
}

// DashboardHandler serves the agent's status, logs, settings and commands.
type DashboardHandler struct {
	agent   Agent
	journal *journal.Journal
	db      *gorm.DB
	logger  *zap.Logger
}

// NewDashboardHandler creates a DashboardHandler.
func NewDashboardHandler(agent Agent, j *journal.Journal, db *gorm.DB, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{agent: agent, journal: j, db: db, logger: logger}
}

// Health handles GET /health.
func (h *DashboardHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "agent": h.agent.Snapshot().Status})
}

// Status handles GET /api/status.
func (h *DashboardHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.agent.Snapshot())
}

// Logs handles GET /api/logs?n=100. Entries are oldest first.
func (h *DashboardHandler) Logs(c *gin.Context) {
	n, _ := strconv.Atoi(c.DefaultQuery("n", "100"))
	if n <= 0 || n > maxLogs {
		n = maxLogs
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	logs, err := h.journal.Recent(ctx, n)
	if err != nil {
		h.logger.Warn("journal read failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "logs unavailable"})
		return
	}
	if logs == nil {
		logs = []journal.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

// GetSettings handles GET /api/settings. The bot password is never returned.
func (h *DashboardHandler) GetSettings(c *gin.Context) {
	cfg := h.agent.Config()
	_, found, err := LoadSettings(h.db)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	s := supervisor.Capture(cfg)
	c.JSON(http.StatusOK, gin.H{
		"ip":                 cfg.Bot.Host,
		"port":               cfg.Bot.Port,
		"username":           cfg.Bot.Username,
		"has_password":       cfg.Bot.Password != "",
		"auth":               cfg.Bot.Auth,
		"version":            cfg.Bot.Version,
		"first_time_message": cfg.Entry.FirstTimeMessage,
		"features":           s.Features.Data(),
		"thresholds":         s.Thresholds.Data(),
		"needs_setup":        !found,
	})
}

type settingsRequest struct {
	IP               string            `json:"ip"`
	Port             int               `json:"port"`
	Username         string            `json:"username"`
	Password         string            `json:"password"`
	ClearPassword    bool              `json:"clear_password"`
	Version          string            `json:"version"`
	FirstTimeMessage string            `json:"first_time_message"`
	Features         map[string]bool   `json:"features"`
	Thresholds       *model.Thresholds `json:"thresholds"`
}

// SaveSettings handles POST /api/settings. ip may carry the port as
// host:port. An empty password keeps the stored one unless clear_password is
// set. The new settings apply on the next connect.
func (h *DashboardHandler) SaveSettings(c *gin.Context) {
	var req settingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.IP = strings.TrimSpace(req.IP)
	req.Username = strings.TrimSpace(req.Username)
	if req.IP == "" || req.Username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "IP and username are required"})
		return
	}
	host, port := SplitHostPort(req.IP, req.Port)

	s, _, err := LoadSettings(h.db)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	s.Host = host
	s.Port = port
	s.Username = req.Username
	// GET never returns the password, so an empty one keeps what is stored.
	if req.Password != "" || req.ClearPassword {
		s.Password = req.Password
	}
	s.Greeting = req.FirstTimeMessage
	if req.Version != "" {
		s.Version = req.Version
	}
	if req.Features != nil {
		merged := s.Features.Data()
		if merged == nil {
			merged = make(map[string]bool, len(req.Features))
		}
		for k, v := range req.Features {
			merged[k] = v
		}
		s.Features = datatypes.NewJSONType(merged)
	}
	if req.Thresholds != nil {
		s.Thresholds = datatypes.NewJSONType(*req.Thresholds)
	}

	if err := SaveSettings(h.db, &s); err != nil {
		h.logger.Error("settings save failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	h.agent.ApplySettings(s)
	h.journal.Success("Settings updated.", fmt.Sprintf("%s:%d as %s", host, port, req.Username))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type commandRequest struct {
	Command string `json:"command" binding:"required"`
}

// Command handles POST /api/command.
func (h *DashboardHandler) Command(c *gin.Context) {
	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.agent.Command(req.Command); err != nil {
		if errors.Is(err, supervisor.ErrUnknownCommand) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type chatRequest struct {
	Message string `json:"message" binding:"required,max=256"`
}

// Chat handles POST /api/chat. Only an online agent sends it.
func (h *DashboardHandler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !h.agent.Chat(req.Message) {
		c.JSON(http.StatusConflict, gin.H{"error": "agent is not online"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// SplitHostPort splits "host:port". A missing or invalid port falls back to
// port, then to the default game port.
func SplitHostPort(ip string, port int) (string, int) {
	host := ip
	if i := strings.LastIndex(ip, ":"); i >= 0 {
		host = ip[:i]
		p, err := strconv.Atoi(ip[i+1:])
		if err != nil || p <= 0 || p > 65535 {
			p = 0
		}
		port = p
	}
	if port <= 0 || port > 65535 {
		port = defaultGamePort
	}
	return host, port
}
