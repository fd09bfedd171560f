package integration

import (
	"net/http"
	"testing"

	"github.com/kasuganosora/afkagent/game/supervisor"
	"github.com/kasuganosora/afkagent/journal"
	"github.com/kasuganosora/afkagent/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirstRunSetupAndSession(t *testing.T) {
	ts := NewTestServer(t)
	token := ts.Login(t)

	// 1. Fresh install: idle, setup pending.
	assert.Equal(t, supervisor.StatusOffline, ts.Status(t, token).Status)
	var settings map[string]interface{}
	ReadJSON(t, ts.Get(t, "/api/settings", token), &settings)
	assert.Equal(t, true, settings["needs_setup"])
	assert.Empty(t, ts.Dialer.Dials(), "idle start never dials")

	// 2. Save settings from the dashboard.
	resp := ts.PostJSON(t, "/api/settings", map[string]interface{}{
		"ip":       "play.example:25570",
		"username": "AFKTester",
		"features": map[string]bool{"auto_sleep": false},
	}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	ReadJSON(t, ts.Get(t, "/api/settings", token), &settings)
	assert.Equal(t, false, settings["needs_setup"])
	assert.Equal(t, "play.example", settings["ip"])
	assert.Equal(t, float64(25570), settings["port"])
	assert.Equal(t, false, settings["has_password"])

	// 3. Connect and come online under the new identity.
	resp = ts.PostJSON(t, "/api/command", map[string]string{"command": supervisor.CmdConnect}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	snap := ts.WaitStatus(t, token, supervisor.StatusOnline)
	assert.Equal(t, "AFKTester", snap.Username)
	assert.Equal(t, "play.example:25570", snap.Server)
	require.Len(t, ts.Dialer.Dials(), 1)
	assert.Equal(t, "play.example", ts.Dialer.Dials()[0].Host)
	assert.Equal(t, 25570, ts.Dialer.Dials()[0].Port)

	// 4. Dashboard chat reaches the game.
	resp = ts.PostJSON(t, "/api/chat", map[string]string{"message": "brb"}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	w := ts.Dialer.Last()
	require.NotNil(t, w)
	assert.Contains(t, w.Recorded().Chats, "brb")

	// 5. Manual disconnect stays offline.
	resp = ts.PostJSON(t, "/api/command", map[string]string{"command": supervisor.CmdDisconnect}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	ts.WaitStatus(t, token, supervisor.StatusOffline)

	resp = ts.PostJSON(t, "/api/chat", map[string]string{"message": "anyone?"}, token)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	// 6. The session and its journal were persisted.
	require.Eventually(t, func() bool {
		var out struct {
			Sessions []model.SessionRecord `json:"sessions"`
		}
		ReadJSON(t, ts.Admin(t, "/api/admin/sessions"), &out)
		return len(out.Sessions) == 1 && out.Sessions[0].EndedAt != nil
	}, waitFor, tick)

	require.Eventually(t, func() bool {
		var out struct {
			Events []model.EventLog `json:"events"`
		}
		ReadJSON(t, ts.Admin(t, "/api/admin/events?level="+string(journal.LevelSuccess)), &out)
		for _, e := range out.Events {
			if e.Message == "Settings updated." {
				return true
			}
		}
		return false
	}, waitFor, tick)

	var logs struct {
		Logs []journal.Entry `json:"logs"`
	}
	ReadJSON(t, ts.Get(t, "/api/logs?n=50", token), &logs)
	msgs := make([]string, 0, len(logs.Logs))
	for _, e := range logs.Logs {
		msgs = append(msgs, e.Message)
	}
	assert.Contains(t, msgs, "Manually disconnected.")
}

func TestUnknownCommandRejected(t *testing.T) {
	ts := NewTestServer(t)
	token := ts.Login(t)

	resp := ts.PostJSON(t, "/api/command", map[string]string{"command": "self-destruct"}, token)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
	assert.Equal(t, supervisor.StatusOffline, ts.Status(t, token).Status)
}

func TestAdminRoutes(t *testing.T) {
	ts := NewTestServer(t)

	resp := ts.Get(t, "/api/admin/metrics", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	var tasks struct {
		Tasks []map[string]interface{} `json:"tasks"`
	}
	ReadJSON(t, ts.Admin(t, "/api/admin/scheduler"), &tasks)
	names := make([]string, 0, len(tasks.Tasks))
	for _, task := range tasks.Tasks {
		names = append(names, task["name"].(string))
	}
	assert.Contains(t, names, supervisor.TaskStatus)

	var metrics map[string]interface{}
	ReadJSON(t, ts.Admin(t, "/api/admin/metrics"), &metrics)
	assert.Equal(t, string(supervisor.StatusOffline), metrics["status"])
	assert.Equal(t, float64(0), metrics["dashboards"])
}
