// Package chat reacts to in-game messages: it logs them, answers short math
// captchas and replies once per session to register/login prompts.
package chat

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/kasuganosora/afkagent/game/state"
	"github.com/kasuganosora/afkagent/journal"
	"github.com/kasuganosora/afkagent/world"
)

const (
	maxCaptchaLen = 80
	kindGameInfo  = "game_info"
	passToken     = "{pass}"
)

var captchaRe = regexp.MustCompile(`(\d+)\s*([-+*/])\s*(\d+)`)

// promptHints mark a line that mentions /register or /login as an actual
// prompt rather than chatter.
var promptHints = []string{"password", "mật khẩu", "<"}

// SolveMath evaluates the first "a op b" found in text. Division is integer
// division; dividing by zero or overflowing operands yields no answer.
func SolveMath(text string) (int64, bool) {
	m := captchaRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	a, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	b, err := strconv.ParseInt(m[3], 10, 64)
	if err != nil {
		return 0, false
	}
	switch m[2] {
	case "+":
		return a + b, true
	case "-":
		return a - b, true
	case "*":
		return a * b, true
	case "/":
		if b == 0 {
			return 0, false
		}
		return a / b, true
	}
	return 0, false
}

// Options configures a Handler.
type Options struct {
	SolveCaptcha bool
	Password     string
	RegisterCmd  string
	LoginCmd     string
}

// Handler processes message events of one session.
type Handler struct {
	sess    world.Session
	st      *state.State
	journal *journal.Journal
	opts    Options
}

// NewHandler creates a new chat Handler.
func NewHandler(sess world.Session, st *state.State, j *journal.Journal, opts Options) *Handler {
	return &Handler{sess: sess, st: st, journal: j, opts: opts}
}

// HandleEvent routes message events to HandleMessage.
func (h *Handler) HandleEvent(ev world.Event) {
	if ev.Type == world.EventMessage {
		h.HandleMessage(ev.Text, ev.Kind)
	}
}

// HandleMessage logs text and sends at most one reply. It returns the reply,
// or "" when none was sent.
func (h *Handler) HandleMessage(text, kind string) string {
	if kind == kindGameInfo {
		return ""
	}
	h.journal.Chat(text)
	lower := strings.ToLower(text)

	if h.opts.SolveCaptcha && utf8.RuneCountInString(text) < maxCaptchaLen {
		if answer, ok := SolveMath(lower); ok {
			reply := strconv.FormatInt(answer, 10)
			h.journal.Brain(fmt.Sprintf("Captcha solved: %s", text), fmt.Sprintf("Answer: %s", reply))
			h.sess.Chat(reply)
			return reply
		}
	}

	var (
		cmd  string
		what string
	)
	switch {
	case isPrompt(lower, "/register"):
		cmd, what = h.opts.RegisterCmd, "Register"
	case isPrompt(lower, "/login"):
		cmd, what = h.opts.LoginCmd, "Login"
	default:
		return ""
	}
	if !h.st.MarkAuthDone() {
		return ""
	}
	reply := strings.ReplaceAll(cmd, passToken, h.opts.Password)
	h.journal.Info(what+" prompt detected.", fmt.Sprintf("Sending %s command...", strings.ToLower(what)))
	h.sess.Chat(reply)
	return reply
}

func isPrompt(lower, command string) bool {
	if !strings.Contains(lower, command) {
		return false
	}
	for _, hint := range promptHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}
