package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/afkagent/cache"
	"github.com/kasuganosora/afkagent/journal"
	"go.uber.org/zap"
)

const defaultKeepalive = 30 * time.Second

// StatusSource supplies the snapshot sent when a stream opens.
type StatusSource interface {
	LastStatus(ctx context.Context) (json.RawMessage, error)
}

// Handler streams journal traffic as server-sent events.
type Handler struct {
	pubsub cache.PubSub
	status StatusSource
	logger *zap.Logger

	// Keepalive is the interval between comment lines that keep proxies
	// from closing an idle stream.
	Keepalive time.Duration
}

// NewHandler creates a new SSE Handler.
func NewHandler(pubsub cache.PubSub, status StatusSource, logger *zap.Logger) *Handler {
	return &Handler{pubsub: pubsub, status: status, logger: logger, Keepalive: defaultKeepalive}
}

// ServeSSE handles GET /sse. Authentication runs in the middleware in front
// of it. The stream opens with the last status, then carries "log" and
// "status" events as the journal publishes them.
func (h *Handler) ServeSSE(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	subCtx, subCancel := context.WithCancel(c.Request.Context())
	defer subCancel()

	msgCh, unsub, err := h.pubsub.Subscribe(subCtx, journal.ChannelLog, journal.ChannelStatus)
	if err != nil {
		h.logger.Error("sse subscribe failed", zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}
	defer unsub()

	fmt.Fprintf(c.Writer, "event: connected\ndata: {}\n\n")
	if raw, err := h.status.LastStatus(subCtx); err == nil && len(raw) > 0 {
		fmt.Fprintf(c.Writer, "event: status\ndata: %s\n\n", raw)
	}
	c.Writer.Flush()

	keepalive := h.Keepalive
	if keepalive <= 0 {
		keepalive = defaultKeepalive
	}
	ticker := time.NewTicker(keepalive)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			event := "log"
			if msg.Channel == journal.ChannelStatus {
				event = "status"
			}
			fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, msg.Payload)
			c.Writer.Flush()

		case <-ticker.C:
			fmt.Fprintf(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()

		case <-c.Request.Context().Done():
			return
		}
	}
}
