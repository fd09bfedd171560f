package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kasuganosora/afkagent/audit"
	"github.com/kasuganosora/afkagent/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type memSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (m *memSink) LogEvent(e audit.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
}

func TestLog_FansOut(t *testing.T) {
	c, ps := testutil.SetupTestCache(t)
	core, logs := observer.New(zapcore.DebugLevel)
	sink := &memSink{}
	j := New(zap.New(core), c, ps, sink, 10)
	j.SetSession("sess-1")

	ctx := context.Background()
	sub, cancel, err := ps.Subscribe(ctx, ChannelLog)
	require.NoError(t, err)
	defer cancel()

	j.Combat("Engaging zombie!", "HP: 20.0")

	select {
	case msg := <-sub:
		var e Entry
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &e))
		assert.Equal(t, LevelCombat, e.Level)
		assert.Equal(t, "Engaging zombie!", e.Message)
	case <-time.After(time.Second):
		t.Fatal("no live log published")
	}

	recent, err := j.Recent(ctx, 5)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "HP: 20.0", recent[0].Detail)

	require.Len(t, sink.events, 1)
	assert.Equal(t, "sess-1", sink.events[0].SessionID)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.InfoLevel, entry.Level)
	assert.Equal(t, "combat", entry.ContextMap()["kind"])
}

func TestLog_LevelMapping(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	j := Nop(zap.New(core))

	j.Warn("w")
	j.Error("e")
	j.Debug("d")
	j.Success("s")

	levels := make([]zapcore.Level, 0, 4)
	for _, e := range logs.All() {
		levels = append(levels, e.Level)
	}
	assert.Equal(t, []zapcore.Level{zapcore.WarnLevel, zapcore.ErrorLevel, zapcore.DebugLevel, zapcore.InfoLevel}, levels)
}

func TestLog_DebugNotPersisted(t *testing.T) {
	sink := &memSink{}
	j := New(zap.NewNop(), nil, nil, sink, 10)
	j.Debug("noise")
	j.Info("kept")
	require.Len(t, sink.events, 1)
	assert.Equal(t, "kept", sink.events[0].Message)
}

func TestRecent_RingIsCapped(t *testing.T) {
	c, ps := testutil.SetupTestCache(t)
	j := New(zap.NewNop(), c, ps, nil, 5)

	for i := 0; i < 12; i++ {
		j.Info(fmt.Sprintf("line %d", i))
	}
	recent, err := j.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, recent, 5)
	assert.Equal(t, "line 7", recent[0].Message, "oldest first")
	assert.Equal(t, "line 11", recent[4].Message)
}

func TestPublishStatus(t *testing.T) {
	c, ps := testutil.SetupTestCache(t)
	j := New(zap.NewNop(), c, ps, nil, 5)
	ctx := context.Background()

	none, err := j.LastStatus(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)

	require.NoError(t, j.PublishStatus(ctx, map[string]string{"status": "online"}))
	raw, err := j.LastStatus(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"online"}`, string(raw))
}
