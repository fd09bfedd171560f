package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	apirest "github.com/kasuganosora/afkagent/api/rest"
	"github.com/kasuganosora/afkagent/api/sse"
	apows "github.com/kasuganosora/afkagent/api/ws"
	"github.com/kasuganosora/afkagent/audit"
	"github.com/kasuganosora/afkagent/cache"
	"github.com/kasuganosora/afkagent/config"
	"github.com/kasuganosora/afkagent/game/supervisor"
	"github.com/kasuganosora/afkagent/journal"
	mw "github.com/kasuganosora/afkagent/middleware"
	"github.com/kasuganosora/afkagent/scheduler"
	"github.com/kasuganosora/afkagent/testutil"
	"github.com/kasuganosora/afkagent/world/memworld"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

const (
	// Password is the dashboard password of every TestServer.
	Password = "integration-pass"
	// AdminKey unlocks /api/admin on every TestServer.
	AdminKey = "integration-admin"

	waitFor = 5 * time.Second
	tick    = 10 * time.Millisecond
)

// TestServer wraps a real HTTP server with the agent and dashboard wired together.
type TestServer struct {
	DB      *gorm.DB
	Cache   cache.Cache
	PubSub  cache.PubSub
	Journal *journal.Journal
	Sup     *supervisor.Supervisor
	Dialer  *memworld.Dialer
	Hub     *apows.Hub
	Audit   *audit.Service
	Server  *httptest.Server
	URL     string // http://127.0.0.1:<port>
	WSURL   string // ws://127.0.0.1:<port>/ws
	Sec     config.SecurityConfig

	cancel context.CancelFunc
	sched  *scheduler.Scheduler
}

// NewTestServer creates a fully wired agent for integration testing. It
// mirrors the dependency wiring in main.go with the agent left idle, as on
// a first run.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	// ---- Infrastructure ----
	db := testutil.SetupTestDB(t)
	c, pubsub := testutil.SetupTestCache(t)
	logger := zap.NewNop()

	hash, err := bcrypt.GenerateFromPassword([]byte(Password), bcrypt.MinCost)
	require.NoError(t, err)
	sec := config.SecurityConfig{
		JWTSecret:      "integration-test-secret",
		JWTTTLH:        time.Hour,
		PasswordHash:   string(hash),
		RateLimitRPS:   1000,
		RateLimitBurst: 2000,
		AllowedOrigins: []string{}, // allow all origins
	}

	cfg := config.Default()
	cfg.Security = sec
	cfg.Server.AdminKey = AdminKey
	cfg.Journal.Persist = true
	cfg.Reconnect.StableAfter = time.Hour
	cfg.Entry.MoveForwardSeconds = 0.01
	cfg.Entry.ChatDelaySeconds = 0.01

	// ---- Agent ----
	auditSvc := audit.New(db, logger)
	jr := journal.New(logger, c, pubsub, auditSvc, cfg.Journal.MaxEntries)
	dialer := &memworld.Dialer{}
	sched := scheduler.New(logger)
	sup := supervisor.New(*cfg, supervisor.Options{
		Dialer: dialer,
		Prober: supervisor.ProbeFunc(func(context.Context, string, int) (time.Duration, error) {
			return time.Millisecond, nil
		}),
		Scheduler: sched,
		Journal:   jr,
		Logger:    logger,
		Recorder:  auditSvc,
		EntryLead: time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	hub := apows.NewHub(logger)
	require.NoError(t, hub.Relay(ctx, pubsub))

	// ---- Gin HTTP Server ----
	r := gin.New()
	r.Use(mw.TraceID(), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(sec.RateLimitRPS), sec.RateLimitBurst, "/health", "/ws", "/sse"))

	dashH := apirest.NewDashboardHandler(sup, jr, db, logger)
	authH := apirest.NewAuthHandler(c, sec)
	adminH := apirest.NewAdminHandler(db, sup, sched, hub, logger)
	auth := mw.Auth(sec, c)

	r.GET("/health", dashH.Health)

	// ---- REST API routes (mirrors main.go) ----
	api := r.Group("/api")
	{
		authG := api.Group("/auth")
		authG.POST("/login", authH.Login)
		authG.POST("/logout", auth, authH.Logout)
		authG.POST("/refresh", auth, authH.Refresh)

		dashG := api.Group("", auth)
		dashG.GET("/status", dashH.Status)
		dashG.GET("/logs", dashH.Logs)
		dashG.GET("/settings", dashH.GetSettings)
		dashG.POST("/settings", dashH.SaveSettings)
		dashG.POST("/command", dashH.Command)
		dashG.POST("/chat", dashH.Chat)

		adminG := api.Group("/admin")
		adminG.Use(mw.IPWhitelist(nil), apirest.AdminAuth(AdminKey))
		adminG.GET("/metrics", adminH.Metrics)
		adminG.GET("/scheduler", adminH.ListSchedulerTasks)
		adminG.GET("/sessions", adminH.ListSessions)
		adminG.GET("/events", adminH.ListEvents)
	}

	wsH := apows.NewHandler(sup, jr, hub, sec, logger)
	r.GET("/ws", auth, wsH.ServeWS)
	r.GET("/sse", auth, sse.NewHandler(pubsub, jr, logger).ServeSSE)

	// ---- Start ----
	sup.StartIdle(ctx)
	server := httptest.NewServer(r)

	ts := &TestServer{
		DB:      db,
		Cache:   c,
		PubSub:  pubsub,
		Journal: jr,
		Sup:     sup,
		Dialer:  dialer,
		Hub:     hub,
		Audit:   auditSvc,
		Server:  server,
		URL:     server.URL,
		WSURL:   "ws" + strings.TrimPrefix(server.URL, "http") + "/ws",
		Sec:     sec,
		cancel:  cancel,
		sched:   sched,
	}
	t.Cleanup(ts.Close)
	return ts
}

// Close stops the agent, then the server and background workers.
func (ts *TestServer) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	_ = ts.Sup.Stop(ctx)
	ts.cancel()
	ts.Hub.CloseAll()
	ts.Server.Close()
	ts.sched.Stop()
	ts.Audit.Stop(ctx)
}

// --- HTTP helpers ---

// Do sends a request with an optional JSON body, Bearer token and extra headers.
func (ts *TestServer) Do(t *testing.T, method, path string, body interface{}, token string, headers ...string) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// PostJSON sends a POST request with JSON body and optional Bearer token.
func (ts *TestServer) PostJSON(t *testing.T, path string, body interface{}, token string) *http.Response {
	t.Helper()
	return ts.Do(t, http.MethodPost, path, body, token)
}

// Get sends a GET request with optional Bearer token.
func (ts *TestServer) Get(t *testing.T, path string, token string) *http.Response {
	t.Helper()
	return ts.Do(t, http.MethodGet, path, nil, token)
}

// Admin sends a GET to an admin route with the admin key.
func (ts *TestServer) Admin(t *testing.T, path string) *http.Response {
	t.Helper()
	return ts.Do(t, http.MethodGet, path, nil, "", "X-Admin-Key", AdminKey)
}

// ReadJSON decodes the response body into v and closes it.
func ReadJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

// Login logs in with the dashboard password and returns the session token.
func (ts *TestServer) Login(t *testing.T) string {
	t.Helper()
	resp := ts.PostJSON(t, "/api/auth/login", map[string]string{"password": Password}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Token string `json:"token"`
	}
	ReadJSON(t, resp, &out)
	require.NotEmpty(t, out.Token)
	return out.Token
}

// Status fetches /api/status.
func (ts *TestServer) Status(t *testing.T, token string) supervisor.Snapshot {
	t.Helper()
	resp := ts.Get(t, "/api/status", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snap supervisor.Snapshot
	ReadJSON(t, resp, &snap)
	return snap
}

// WaitStatus polls /api/status until the agent reports want.
func (ts *TestServer) WaitStatus(t *testing.T, token string, want supervisor.Status) supervisor.Snapshot {
	t.Helper()
	var snap supervisor.Snapshot
	require.Eventually(t, func() bool {
		snap = ts.Status(t, token)
		return snap.Status == want
	}, waitFor, tick, "agent never reached %s", want)
	return snap
}

// --- WebSocket helpers ---

// WSClient is a dashboard WebSocket connection.
type WSClient struct {
	Conn *websocket.Conn
	seq  uint64
}

// DialWS connects to /ws with the token passed as a query parameter.
func (ts *TestServer) DialWS(t *testing.T, token string) *WSClient {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(ts.WSURL+"?token="+token, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return &WSClient{Conn: conn}
}

// Send writes one packet with the next sequence number.
func (c *WSClient) Send(t *testing.T, typ string, payload interface{}) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	c.seq++
	require.NoError(t, c.Conn.WriteJSON(apows.Packet{Seq: c.seq, Type: typ, Payload: raw}))
}

// Read reads one packet.
func (c *WSClient) Read(t *testing.T) apows.Packet {
	t.Helper()
	require.NoError(t, c.Conn.SetReadDeadline(time.Now().Add(waitFor)))
	var pkt apows.Packet
	require.NoError(t, c.Conn.ReadJSON(&pkt))
	return pkt
}

// Await reads packets until match accepts one.
func (c *WSClient) Await(t *testing.T, match func(apows.Packet) bool) apows.Packet {
	t.Helper()
	deadline := time.Now().Add(waitFor)
	for time.Now().Before(deadline) {
		if pkt := c.Read(t); match(pkt) {
			return pkt
		}
	}
	t.Fatal("no matching packet before deadline")
	return apows.Packet{}
}

// StatusIs matches status packets reporting want.
func StatusIs(want supervisor.Status) func(apows.Packet) bool {
	return func(pkt apows.Packet) bool {
		if pkt.Type != apows.TypeStatus {
			return false
		}
		var snap supervisor.Snapshot
		return json.Unmarshal(pkt.Payload, &snap) == nil && snap.Status == want
	}
}
