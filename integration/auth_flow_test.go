package integration

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFullAuthLifecycle(t *testing.T) {
	ts := NewTestServer(t)

	// 1. Health is public; everything else needs a session.
	resp := ts.Get(t, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	resp = ts.Get(t, "/api/status", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// 2. Wrong password.
	resp = ts.PostJSON(t, "/api/auth/login", map[string]string{"password": "nope"}, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// 3. Login and use the token.
	token1 := ts.Login(t)
	resp = ts.Get(t, "/api/status", token1)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// 4. Refresh revokes the old token.
	resp = ts.PostJSON(t, "/api/auth/refresh", nil, token1)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var refreshed struct {
		Token string `json:"token"`
	}
	ReadJSON(t, resp, &refreshed)
	require.NotEmpty(t, refreshed.Token)
	assert.NotEqual(t, token1, refreshed.Token)

	resp = ts.Get(t, "/api/status", token1)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
	resp = ts.Get(t, "/api/status", refreshed.Token)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// 5. Logout ends the session.
	resp = ts.PostJSON(t, "/api/auth/logout", nil, refreshed.Token)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	resp = ts.Get(t, "/api/status", refreshed.Token)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestLoginLockout(t *testing.T) {
	ts := NewTestServer(t)

	for i := 0; i < 5; i++ {
		resp := ts.PostJSON(t, "/api/auth/login", map[string]string{"password": "wrong"}, "")
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode, "attempt %d", i)
		resp.Body.Close()
	}
	resp := ts.PostJSON(t, "/api/auth/login", map[string]string{"password": Password}, "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	resp.Body.Close()
}

func TestWebSocketRequiresToken(t *testing.T) {
	ts := NewTestServer(t)

	resp := ts.Get(t, "/ws", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}
