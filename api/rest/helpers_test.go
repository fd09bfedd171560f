package rest_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/afkagent/config"
	"github.com/kasuganosora/afkagent/game/supervisor"
	"github.com/kasuganosora/afkagent/model"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func nopLogger() *zap.Logger { return zap.NewNop() }

// fakeAgent records what the dashboard asked of it.
type fakeAgent struct {
	mu       sync.Mutex
	cfg      config.Config
	online   bool
	commands []string
	chats    []string
	applied  []model.Settings
}

func newFakeAgent() *fakeAgent {
	return &fakeAgent{cfg: *config.Default()}
}

func (a *fakeAgent) Snapshot() supervisor.Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	st := supervisor.StatusOffline
	if a.online {
		st = supervisor.StatusOnline
	}
	return supervisor.Snapshot{
		Status:   st,
		Server:   a.cfg.Bot.Host,
		Username: a.cfg.Bot.Username,
		Busy:     "stash",
	}
}

func (a *fakeAgent) Command(name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch name {
	case supervisor.CmdConnect, supervisor.CmdDisconnect, supervisor.CmdReconnectOn,
		supervisor.CmdReconnectOff, supervisor.CmdSaveReconnect:
		a.commands = append(a.commands, name)
		return nil
	}
	return supervisor.ErrUnknownCommand
}

func (a *fakeAgent) Chat(msg string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.online {
		return false
	}
	a.chats = append(a.chats, msg)
	return true
}

func (a *fakeAgent) Config() config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

func (a *fakeAgent) ApplySettings(s model.Settings) {
	a.mu.Lock()
	defer a.mu.Unlock()
	supervisor.Overlay(&a.cfg, s)
	a.applied = append(a.applied, s)
}

func postJSON(r *gin.Engine, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func get(r *gin.Engine, path string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder) map[string]interface{} {
	var out map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return out
}
