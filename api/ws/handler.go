package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/kasuganosora/afkagent/config"
	"github.com/kasuganosora/afkagent/game/supervisor"
	"github.com/kasuganosora/afkagent/journal"
	mw "github.com/kasuganosora/afkagent/middleware"
	"go.uber.org/zap"
)

// initBacklog is how many recent journal entries a new dashboard receives.
const initBacklog = 100

// Agent is the part of the supervisor the dashboard socket drives.
type Agent interface {
	Snapshot() supervisor.Snapshot
	Command(name string) error
	Chat(msg string) bool
}

// Handler is the Gin handler for GET /ws. Authentication runs in the
// middleware in front of it.
type Handler struct {
	agent    Agent
	journal  *journal.Journal
	hub      *Hub
	router   *Router
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates the socket handler and registers its packet handlers.
// sec.AllowedOrigins controls which origins may connect; empty allows all.
func NewHandler(agent Agent, j *journal.Journal, hub *Hub, sec config.SecurityConfig, logger *zap.Logger) *Handler {
	h := &Handler{
		agent:   agent,
		journal: j,
		hub:     hub,
		router:  NewRouter(logger),
		logger:  logger,
	}
	allowed := sec.AllowedOrigins
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, o := range allowed {
				if o == origin {
					return true
				}
			}
			return false
		},
	}
	h.router.On("ping", h.handlePing)
	h.router.On("chat", h.handleChat)
	h.router.On("command", h.handleCommand)
	return h
}

// ServeWS upgrades the request and runs the read pump until the dashboard
// goes away.
func (h *Handler) ServeWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(mw.GetSubject(c), conn, h.logger)
	h.hub.Register(client)
	h.greet(c.Request.Context(), client)
	h.readPump(client)
}

// greet sends the journal backlog and the current status.
func (h *Handler) greet(ctx context.Context, c *Client) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	logs, err := h.journal.Recent(ctx, initBacklog)
	if err != nil {
		h.logger.Warn("ws backlog unavailable", zap.Error(err))
	}
	if logs == nil {
		logs = []journal.Entry{}
	}
	c.Send(TypeInit, gin.H{"logs": logs})
	c.Send(TypeStatus, h.agent.Snapshot())
}

func (h *Handler) readPump(c *Client) {
	defer func() {
		h.hub.Unregister(c)
		c.Close()
	}()

	c.SetReadDeadline()
	c.Conn.SetPongHandler(func(string) error {
		c.SetReadDeadline()
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived) {
				h.logger.Warn("ws unexpected close", zap.String("client", c.ID), zap.Error(err))
			}
			return
		}
		c.SetReadDeadline()
		h.router.Dispatch(c, raw)
	}
}

type pingPayload struct {
	TS int64 `json:"ts"`
}

func (h *Handler) handlePing(_ context.Context, c *Client, raw json.RawMessage) error {
	var p pingPayload
	_ = json.Unmarshal(raw, &p)
	c.Send(TypePong, gin.H{"client_ts": p.TS, "server_ts": time.Now().UnixMilli()})
	return nil
}

type chatPayload struct {
	Message string `json:"message"`
}

func (h *Handler) handleChat(_ context.Context, c *Client, raw json.RawMessage) error {
	var p chatPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return errors.New("invalid chat payload")
	}
	ok := h.agent.Chat(p.Message)
	c.Send(TypeResult, gin.H{"type": "chat", "ok": ok})
	return nil
}

type commandPayload struct {
	Command string `json:"command"`
}

func (h *Handler) handleCommand(_ context.Context, c *Client, raw json.RawMessage) error {
	var p commandPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return errors.New("invalid command payload")
	}
	if err := h.agent.Command(p.Command); err != nil {
		return err
	}
	h.logger.Info("dashboard command", zap.String("command", p.Command), zap.String("client", c.ID))
	c.Send(TypeResult, gin.H{"type": "command", "command": p.Command, "ok": true})
	return nil
}
