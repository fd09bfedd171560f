package chat

import (
	"strings"
	"testing"
	"time"

	"github.com/kasuganosora/afkagent/game/state"
	"github.com/kasuganosora/afkagent/journal"
	"github.com/kasuganosora/afkagent/world"
	"github.com/kasuganosora/afkagent/world/memworld"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSolveMath(t *testing.T) {
	cases := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"3 + 4", 7, true},
		{"solve: 12-20", -8, true},
		{"what is 6 * 7 ?", 42, true},
		{"7 / 2", 3, true},
		{"9/0", 0, false},
		{"no math here", 0, false},
		{"99999999999999999999 + 1", 0, false},
	}
	for _, tc := range cases {
		got, ok := SolveMath(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		if tc.ok {
			assert.Equal(t, tc.want, got, tc.in)
		}
	}
}

func newHandler(t *testing.T, opts Options) (*Handler, *memworld.World, *state.State, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	w := memworld.New("afk")
	st := state.New(30*time.Second, nil)
	return NewHandler(w, st, journal.Nop(zap.New(core)), opts), w, st, logs
}

func defaultOpts() Options {
	return Options{
		SolveCaptcha: true,
		Password:     "hunter2",
		RegisterCmd:  "/register {pass} {pass}",
		LoginCmd:     "/login {pass}",
	}
}

func TestHandleMessage_Captcha(t *testing.T) {
	h, w, _, _ := newHandler(t, defaultOpts())
	assert.Equal(t, "15", h.HandleMessage("Please type the answer: 5 * 3", "system"))
	assert.Equal(t, []string{"15"}, w.Recorded().Chats)
}

func TestHandleMessage_CaptchaDivByZeroNoReply(t *testing.T) {
	h, w, _, _ := newHandler(t, defaultOpts())
	assert.Empty(t, h.HandleMessage("Answer: 8 / 0", "system"))
	assert.Empty(t, w.Recorded().Chats)
}

func TestHandleMessage_LongMessageNotACaptcha(t *testing.T) {
	h, w, _, _ := newHandler(t, defaultOpts())
	long := "Welcome! " + strings.Repeat("x", 80) + " 2 + 2"
	assert.Empty(t, h.HandleMessage(long, "chat"))
	assert.Empty(t, w.Recorded().Chats)
}

func TestHandleMessage_CaptchaLengthCountsCharacters(t *testing.T) {
	h, w, _, _ := newHandler(t, defaultOpts())
	short := strings.Repeat("ả", 70) + " 7 + 5"
	require.Greater(t, len(short), 80, "multibyte text is long in bytes")
	assert.Equal(t, "12", h.HandleMessage(short, "system"))

	long := strings.Repeat("ả", 74) + " 7 + 5"
	assert.Empty(t, h.HandleMessage(long, "system"), "eighty characters is not a captcha")
	assert.Equal(t, []string{"12"}, w.Recorded().Chats)
}

func TestHandleMessage_CaptchaDisabled(t *testing.T) {
	opts := defaultOpts()
	opts.SolveCaptcha = false
	h, w, _, _ := newHandler(t, opts)
	assert.Empty(t, h.HandleMessage("2 + 2", "system"))
	assert.Empty(t, w.Recorded().Chats)
}

func TestHandleMessage_RegisterOncePerSession(t *testing.T) {
	h, w, st, _ := newHandler(t, defaultOpts())

	assert.Equal(t, "/register hunter2 hunter2", h.HandleMessage("Please /register <password> <password>", "system"))
	assert.Empty(t, h.HandleMessage("Please /login <password>", "system"))
	assert.Equal(t, []string{"/register hunter2 hunter2"}, w.Recorded().Chats)

	st.Reset()
	assert.Equal(t, "/login hunter2", h.HandleMessage("Use /login <password>", "system"))
}

func TestHandleMessage_LoginVietnamesePrompt(t *testing.T) {
	h, _, _, _ := newHandler(t, defaultOpts())
	assert.Equal(t, "/login hunter2", h.HandleMessage("Hãy dùng /login [mật khẩu]", "system"))
}

func TestHandleMessage_MentionIsNotAPrompt(t *testing.T) {
	h, w, st, _ := newHandler(t, defaultOpts())
	assert.Empty(t, h.HandleMessage("bob: did you /login yet", "chat"))
	assert.Empty(t, w.Recorded().Chats)
	assert.True(t, st.MarkAuthDone(), "auth not consumed by chatter")
}

func TestHandleMessage_GameInfoIgnored(t *testing.T) {
	h, w, _, logs := newHandler(t, defaultOpts())
	assert.Empty(t, h.HandleMessage("1 + 1", "game_info"))
	assert.Empty(t, w.Recorded().Chats)
	assert.Zero(t, logs.Len())
}

func TestHandleMessage_LogsChat(t *testing.T) {
	h, _, _, logs := newHandler(t, defaultOpts())
	h.HandleMessage("<steve> hello", "chat")
	entries := logs.FilterMessage("<steve> hello").All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "chat", entries[0].ContextMap()["kind"])
	}
}

func TestHandleEvent(t *testing.T) {
	h, w, _, _ := newHandler(t, defaultOpts())
	h.HandleEvent(world.Event{Type: world.EventHealth, Text: "1 + 1"})
	h.HandleEvent(world.Event{Type: world.EventMessage, Text: "1 + 1", Kind: "system"})
	assert.Equal(t, []string{"2"}, w.Recorded().Chats)
}
