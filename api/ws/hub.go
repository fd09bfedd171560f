package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/kasuganosora/afkagent/cache"
	"github.com/kasuganosora/afkagent/journal"
	"go.uber.org/zap"
)

// Outgoing packet types.
const (
	TypeInit   = "init"
	TypeStatus = "status"
	TypeLog    = "log"
	TypeResult = "result"
	TypePong   = "pong"
)

// Hub is the registry of connected dashboards.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  *zap.Logger
}

// NewHub creates an empty Hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{clients: make(map[string]*Client), logger: logger}
}

// Register adds a client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("dashboard connected", zap.String("client", c.ID), zap.String("subject", c.Subject), zap.Int("count", n))
}

// Unregister removes a client.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.ID)
	h.mu.Unlock()
	h.logger.Info("dashboard disconnected", zap.String("client", c.ID))
}

// Count returns the number of connected dashboards.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastAll sends pre-encoded bytes to every client. Slow clients drop.
func (h *Hub) BroadcastAll(data []byte) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.SendChan <- data:
		default:
			h.logger.Warn("broadcast dropped packet for slow dashboard", zap.String("client", c.ID))
		}
	}
}

// Relay forwards journal traffic from ps to every client until ctx ends.
// Log entries go out as "log" packets, status snapshots as "status".
func (h *Hub) Relay(ctx context.Context, ps cache.PubSub) error {
	msgs, unsub, err := ps.Subscribe(ctx, journal.ChannelLog, journal.ChannelStatus)
	if err != nil {
		return err
	}
	go func() {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				typ := TypeLog
				if m.Channel == journal.ChannelStatus {
					typ = TypeStatus
				}
				data, err := json.Marshal(&Packet{Type: typ, Payload: json.RawMessage(m.Payload)})
				if err != nil {
					continue
				}
				h.BroadcastAll(data)
			}
		}
	}()
	return nil
}

// CloseAll closes every client.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		c.Close()
	}
}
