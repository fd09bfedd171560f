package rest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/afkagent/model"
	"github.com/kasuganosora/afkagent/scheduler"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxAdminRows = 200

// Dashboards reports how many live dashboards are connected.
type Dashboards interface {
	Count() int
}

// AdminHandler handles admin-only REST endpoints.
// Routes should be protected by AdminAuth middleware.
type AdminHandler struct {
	db     *gorm.DB
	agent  Agent
	sched  *scheduler.Scheduler
	dash   Dashboards
	logger *zap.Logger
}

// NewAdminHandler creates an AdminHandler. sched is the agent's scheduler.
func NewAdminHandler(db *gorm.DB, agent Agent, sched *scheduler.Scheduler, dash Dashboards, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{db: db, agent: agent, sched: sched, dash: dash, logger: logger}
}

// Metrics returns a one-screen health summary.
// GET /api/admin/metrics
func (h *AdminHandler) Metrics(c *gin.Context) {
	snap := h.agent.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"status":          snap.Status,
		"attempt":         snap.Attempt,
		"degraded":        snap.Degraded,
		"busy":            snap.Busy,
		"dashboards":      h.dash.Count(),
		"scheduler_tasks": h.sched.ListTickers(),
	})
}

// ListSchedulerTasks returns every registered task with its run stats.
// GET /api/admin/scheduler
func (h *AdminHandler) ListSchedulerTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": h.sched.Tasks()})
}

// ListSessions returns connection history, newest first.
// GET /api/admin/sessions?limit=50
func (h *AdminHandler) ListSessions(c *gin.Context) {
	var recs []model.SessionRecord
	if err := h.db.Order("connected_at DESC").Limit(limitParam(c, 50)).Find(&recs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": recs, "count": len(recs)})
}

// ListEvents returns persisted journal entries, newest first, optionally for
// one session and level.
// GET /api/admin/events?session=<id>&level=warn&limit=100
func (h *AdminHandler) ListEvents(c *gin.Context) {
	q := h.db.Model(&model.EventLog{})
	if sid := c.Query("session"); sid != "" {
		q = q.Where("session_id = ?", sid)
	}
	if lvl := c.Query("level"); lvl != "" {
		q = q.Where("level = ?", lvl)
	}
	var events []model.EventLog
	if err := q.Order("id DESC").Limit(limitParam(c, 100)).Find(&events).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}

func limitParam(c *gin.Context, def int) int {
	n, err := strconv.Atoi(c.Query("limit"))
	if err != nil || n <= 0 {
		return def
	}
	return min(n, maxAdminRows)
}

// AdminAuth returns a middleware that checks the X-Admin-Key header.
// If adminKey is empty all admin endpoints answer 503 so the agent cannot be
// deployed with an open admin API by accident.
func AdminAuth(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				gin.H{"error": "admin endpoints disabled: set server.admin_key in config"})
			return
		}
		if c.GetHeader("X-Admin-Key") != adminKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
