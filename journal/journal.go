// Package journal is the operator-facing event log. Every entry goes to zap,
// to a capped ring in the cache, to the live pub/sub channel and optionally to
// the database.
package journal

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/kasuganosora/afkagent/audit"
	"github.com/kasuganosora/afkagent/cache"
	"go.uber.org/zap"
)

// Level is the operator-facing category of an entry.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarn    Level = "warn"
	LevelError   Level = "error"
	LevelCombat  Level = "combat"
	LevelBrain   Level = "brain"
	LevelChat    Level = "chat"
	LevelDebug   Level = "debug"
)

// Cache keys and pub/sub channels.
const (
	KeyLogs       = "bot:logs"
	KeyStatus     = "bot:status"
	ChannelLog    = "bot:log"
	ChannelStatus = "bot:status"
)

const writeTimeout = 2 * time.Second

// Entry is one journal line as sent to dashboards.
type Entry struct {
	Time    time.Time `json:"time"`
	Level   Level     `json:"type"`
	Message string    `json:"msg"`
	Detail  string    `json:"detail,omitempty"`
}

// EventSink persists entries. *audit.Service implements it.
type EventSink interface {
	LogEvent(e audit.Event)
}

// Journal fans entries out to its sinks. A nil cache or pubsub is skipped.
type Journal struct {
	logger *zap.Logger
	cache  cache.Cache
	pubsub cache.PubSub
	sink   EventSink
	max    int64

	mu        sync.RWMutex
	sessionID string
}

// New creates a Journal keeping the newest max entries in the cache ring.
func New(logger *zap.Logger, c cache.Cache, ps cache.PubSub, sink EventSink, max int) *Journal {
	if max <= 0 {
		max = 500
	}
	return &Journal{logger: logger, cache: c, pubsub: ps, sink: sink, max: int64(max)}
}

// Nop returns a Journal that only writes to logger.
func Nop(logger *zap.Logger) *Journal { return New(logger, nil, nil, nil, 0) }

// SetSession tags subsequent persisted entries with a session id.
func (j *Journal) SetSession(id string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.sessionID = id
}

func (j *Journal) session() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.sessionID
}

// Log records msg at level with an optional detail line.
func (j *Journal) Log(level Level, msg string, detail ...string) {
	e := Entry{Time: time.Now(), Level: level, Message: msg}
	if len(detail) > 0 {
		e.Detail = detail[0]
	}
	j.zapLog(e)

	raw, err := json.Marshal(e)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if j.cache != nil {
		if err := j.cache.PushCapped(ctx, KeyLogs, j.max, string(raw)); err != nil {
			j.logger.Debug("journal ring push failed", zap.Error(err))
		}
	}
	if j.pubsub != nil {
		_ = j.pubsub.Publish(ctx, ChannelLog, string(raw))
	}
	if j.sink != nil && level != LevelDebug {
		j.sink.LogEvent(audit.Event{
			SessionID: j.session(),
			Level:     string(level),
			Message:   msg,
			Detail:    e.Detail,
			At:        e.Time,
		})
	}
}

func (j *Journal) zapLog(e Entry) {
	fields := []zap.Field{zap.String("kind", string(e.Level))}
	if e.Detail != "" {
		fields = append(fields, zap.String("detail", e.Detail))
	}
	switch e.Level {
	case LevelDebug:
		j.logger.Debug(e.Message, fields...)
	case LevelWarn:
		j.logger.Warn(e.Message, fields...)
	case LevelError:
		j.logger.Error(e.Message, fields...)
	default:
		j.logger.Info(e.Message, fields...)
	}
}

func (j *Journal) Info(msg string, detail ...string)    { j.Log(LevelInfo, msg, detail...) }
func (j *Journal) Success(msg string, detail ...string) { j.Log(LevelSuccess, msg, detail...) }
func (j *Journal) Warn(msg string, detail ...string)    { j.Log(LevelWarn, msg, detail...) }
func (j *Journal) Error(msg string, detail ...string)   { j.Log(LevelError, msg, detail...) }
func (j *Journal) Combat(msg string, detail ...string)  { j.Log(LevelCombat, msg, detail...) }
func (j *Journal) Brain(msg string, detail ...string)   { j.Log(LevelBrain, msg, detail...) }
func (j *Journal) Chat(msg string, detail ...string)    { j.Log(LevelChat, msg, detail...) }
func (j *Journal) Debug(msg string, detail ...string)   { j.Log(LevelDebug, msg, detail...) }

// Recent returns up to n entries, oldest first.
func (j *Journal) Recent(ctx context.Context, n int) ([]Entry, error) {
	if j.cache == nil {
		return nil, nil
	}
	if n <= 0 || int64(n) > j.max {
		n = int(j.max)
	}
	raw, err := j.cache.LRange(ctx, KeyLogs, 0, int64(n)-1)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var e Entry
		if err := json.Unmarshal([]byte(raw[i]), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// PublishStatus stores the status snapshot and broadcasts it.
func (j *Journal) PublishStatus(ctx context.Context, status interface{}) error {
	raw, err := json.Marshal(status)
	if err != nil {
		return err
	}
	if j.cache != nil {
		if err := j.cache.Set(ctx, KeyStatus, string(raw), 0); err != nil {
			return err
		}
	}
	if j.pubsub != nil {
		return j.pubsub.Publish(ctx, ChannelStatus, string(raw))
	}
	return nil
}

// LastStatus returns the most recent status snapshot, raw JSON.
func (j *Journal) LastStatus(ctx context.Context) (json.RawMessage, error) {
	if j.cache == nil {
		return nil, nil
	}
	raw, err := j.cache.Get(ctx, KeyStatus)
	if err != nil {
		if cache.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return json.RawMessage(raw), nil
}
