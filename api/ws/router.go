package ws

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HandlerFunc processes a decoded packet payload.
type HandlerFunc func(ctx context.Context, c *Client, payload json.RawMessage) error

// Router dispatches incoming packets to registered handlers.
type Router struct {
	handlers map[string]HandlerFunc
	logger   *zap.Logger
}

// NewRouter creates a new Router.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
	}
}

// On registers a HandlerFunc for the given packet type.
func (r *Router) On(msgType string, fn HandlerFunc) {
	r.handlers[msgType] = fn
}

// Dispatch decodes raw bytes, validates seq, and invokes the handler.
func (r *Router) Dispatch(c *Client, raw []byte) {
	var pkt Packet
	if err := json.Unmarshal(raw, &pkt); err != nil {
		r.logger.Warn("malformed packet", zap.String("client", c.ID), zap.Error(err))
		return
	}

	// Monotonic seq check. Seq == 0 means the client does not number packets.
	if pkt.Seq != 0 && pkt.Seq <= c.LastSeq {
		r.logger.Warn("replayed or out-of-order packet",
			zap.String("client", c.ID),
			zap.Uint64("seq", pkt.Seq),
			zap.Uint64("last_seq", c.LastSeq))
		return
	}
	if pkt.Seq != 0 {
		c.LastSeq = pkt.Seq
	}

	c.TraceID = uuid.NewString()
	ctx := context.WithValue(context.Background(), ctxKeyTraceID{}, c.TraceID)

	fn, ok := r.handlers[pkt.Type]
	if !ok {
		r.logger.Debug("unhandled packet type", zap.String("type", pkt.Type), zap.String("client", c.ID))
		return
	}

	if err := fn(ctx, c, pkt.Payload); err != nil {
		r.logger.Warn("handler error",
			zap.String("type", pkt.Type),
			zap.String("client", c.ID),
			zap.String("trace_id", c.TraceID),
			zap.Error(err))
		c.sendError(err.Error())
	}
}

type ctxKeyTraceID struct{}

// TraceIDFromCtx extracts the trace ID from a handler context.
func TraceIDFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyTraceID{}).(string); ok {
		return v
	}
	return ""
}
