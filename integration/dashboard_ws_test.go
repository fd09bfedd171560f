package integration

import (
	"encoding/json"
	"testing"

	apows "github.com/kasuganosora/afkagent/api/ws"
	"github.com/kasuganosora/afkagent/game/supervisor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDashboardSocketDrivesAgent(t *testing.T) {
	ts := NewTestServer(t)
	token := ts.Login(t)
	ws := ts.DialWS(t, token)

	// Greeting: backlog first, then status.
	first := ws.Read(t)
	require.Equal(t, apows.TypeInit, first.Type)
	second := ws.Read(t)
	require.Equal(t, apows.TypeStatus, second.Type)
	var snap supervisor.Snapshot
	require.NoError(t, json.Unmarshal(second.Payload, &snap))
	assert.Equal(t, supervisor.StatusOffline, snap.Status)
	require.Eventually(t, func() bool { return ts.Hub.Count() == 1 }, waitFor, tick)

	// Connect over the socket; the relay pushes the transition.
	ws.Send(t, "command", map[string]string{"command": supervisor.CmdConnect})
	res := ws.Await(t, func(p apows.Packet) bool { return p.Type == apows.TypeResult })
	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(res.Payload, &result))
	assert.Equal(t, true, result["ok"])

	ws.Await(t, StatusIs(supervisor.StatusOnline))

	// Journal lines are relayed live.
	ts.Journal.Info("hello dashboards")
	ws.Await(t, func(p apows.Packet) bool {
		return p.Type == apows.TypeLog && containsMsg(p.Payload, "hello dashboards")
	})

	// Chat through the socket.
	ws.Send(t, "chat", map[string]string{"message": "o/"})
	res = ws.Await(t, func(p apows.Packet) bool { return p.Type == apows.TypeResult })
	require.NoError(t, json.Unmarshal(res.Payload, &result))
	assert.Equal(t, "chat", result["type"])
	assert.Equal(t, true, result["ok"])
	assert.Contains(t, ts.Dialer.Last().Recorded().Chats, "o/")

	// An unknown command comes back as an error packet.
	ws.Send(t, "command", map[string]string{"command": "dance"})
	errPkt := ws.Await(t, func(p apows.Packet) bool { return p.Type == "error" })
	assert.Contains(t, string(errPkt.Payload), "unknown command")
}

func containsMsg(raw json.RawMessage, msg string) bool {
	var e struct {
		Msg string `json:"msg"`
	}
	return json.Unmarshal(raw, &e) == nil && e.Msg == msg
}
