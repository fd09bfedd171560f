package ws

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	sendChanBuf   = 256
	writeDeadline = 10 * time.Second
	readDeadline  = 60 * time.Second
	pingInterval  = 30 * time.Second // server-side WS ping
)

// Packet is the dashboard socket envelope.
type Packet struct {
	Seq     uint64          `json:"seq,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client is one connected dashboard.
type Client struct {
	ID      string
	Subject string

	Conn     *websocket.Conn
	SendChan chan []byte
	Done     chan struct{}
	TraceID  string
	LastSeq  uint64

	logger *zap.Logger
}

// NewClient wraps conn and starts its write goroutine.
func NewClient(subject string, conn *websocket.Conn, logger *zap.Logger) *Client {
	c := &Client{
		ID:       uuid.NewString(),
		Subject:  subject,
		Conn:     conn,
		SendChan: make(chan []byte, sendChanBuf),
		Done:     make(chan struct{}),
		logger:   logger,
	}
	go c.writePump()
	return c
}

// writePump drains SendChan to the socket and pings it periodically.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer c.Conn.Close()
	for {
		select {
		case data, ok := <-c.SendChan:
			if !ok {
				return
			}
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Warn("ws write error", zap.String("client", c.ID), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.Done:
			_ = c.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send encodes a packet of type typ and queues it. Drops when the queue is
// full or the client is closed.
func (c *Client) Send(typ string, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	c.SendPacket(&Packet{Type: typ, Payload: raw})
}

// SendPacket queues an already built packet.
func (c *Client) SendPacket(pkt *Packet) {
	data, err := json.Marshal(pkt)
	if err != nil {
		return
	}
	c.SendRaw(data)
}

// SendRaw queues pre-encoded bytes without blocking.
func (c *Client) SendRaw(data []byte) {
	if c.IsClosed() {
		return
	}
	select {
	case c.SendChan <- data:
	case <-c.Done:
	default:
		if !c.IsClosed() {
			c.logger.Warn("send channel full, dropping packet", zap.String("client", c.ID))
		}
	}
}

func (c *Client) sendError(msg string) {
	c.Send("error", map[string]string{"message": msg})
}

// Close signals the writePump to shut down.
func (c *Client) Close() {
	select {
	case <-c.Done:
	default:
		close(c.Done)
	}
}

// IsClosed reports whether Close was called.
func (c *Client) IsClosed() bool {
	select {
	case <-c.Done:
		return true
	default:
		return false
	}
}

// SetReadDeadline pushes the read deadline 60s out.
func (c *Client) SetReadDeadline() {
	_ = c.Conn.SetReadDeadline(time.Now().Add(readDeadline))
}
