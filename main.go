package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	apirest "github.com/kasuganosora/afkagent/api/rest"
	"github.com/kasuganosora/afkagent/api/sse"
	apows "github.com/kasuganosora/afkagent/api/ws"
	"github.com/kasuganosora/afkagent/audit"
	"github.com/kasuganosora/afkagent/cache"
	"github.com/kasuganosora/afkagent/config"
	dbadapter "github.com/kasuganosora/afkagent/db"
	"github.com/kasuganosora/afkagent/game/supervisor"
	"github.com/kasuganosora/afkagent/journal"
	mw "github.com/kasuganosora/afkagent/middleware"
	"github.com/kasuganosora/afkagent/model"
	"github.com/kasuganosora/afkagent/scheduler"
	"github.com/kasuganosora/afkagent/world"
	"github.com/kasuganosora/afkagent/world/memworld"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	if cfg.Server.AdminKey == "" {
		logger.Warn("server.admin_key is not set; admin endpoints are disabled")
	}
	if cfg.Security.PasswordHash == "" {
		logger.Warn("security.password_hash is not set; the dashboard is open to anyone who can reach it")
	}

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized")

	// ---- Audit ----
	auditSvc := audit.New(db, logger)

	// ---- Cache / PubSub ----
	cacheConfig := cache.CacheConfig{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalPubSubBuf:  cfg.Cache.LocalPubSubBuf,
	}
	c, err := cache.NewCache(cacheConfig)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	defer c.Close()
	pubsub, err := cache.NewPubSub(cacheConfig)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}
	logger.Info("Cache initialized", zap.Bool("redis", cfg.Cache.RedisAddr != ""))

	// ---- Journal ----
	var sink journal.EventSink
	if cfg.Journal.Persist {
		sink = auditSvc
	}
	jr := journal.New(logger, c, pubsub, sink, cfg.Journal.MaxEntries)

	// ---- Dashboard settings ----
	settings, configured, err := apirest.LoadSettings(db)
	if err != nil {
		log.Fatalf("settings: %v", err)
	}
	if configured {
		supervisor.Overlay(cfg, settings)
	}

	// ---- Agent ----
	dialer, prober, err := newTransport(cfg.Bot.Transport)
	if err != nil {
		log.Fatalf("bot: %v", err)
	}
	sched := scheduler.New(logger)
	defer sched.Stop()
	sup := supervisor.New(*cfg, supervisor.Options{
		Dialer:    dialer,
		Prober:    prober,
		Scheduler: sched,
		Journal:   jr,
		Logger:    logger,
		Recorder:  auditSvc,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := apows.NewHub(logger)
	if err := hub.Relay(ctx, pubsub); err != nil {
		log.Fatalf("ws relay: %v", err)
	}

	// ---- HTTP ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger, "/health"), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst, "/health", "/ws", "/sse"))

	dashH := apirest.NewDashboardHandler(sup, jr, db, logger)
	authH := apirest.NewAuthHandler(c, cfg.Security)
	adminH := apirest.NewAdminHandler(db, sup, sched, hub, logger)
	auth := mw.Auth(cfg.Security, c)

	r.GET("/health", dashH.Health)

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
		adminG.Use(mw.IPWhitelist(cfg.Server.AdminIPs), apirest.AdminAuth(cfg.Server.AdminKey))
		adminG.GET("/metrics", adminH.Metrics)
		adminG.GET("/scheduler", adminH.ListSchedulerTasks)
		adminG.GET("/sessions", adminH.ListSessions)
		adminG.GET("/events", adminH.ListEvents)
	}

	wsH := apows.NewHandler(sup, jr, hub, cfg.Security, logger)
	r.GET("/ws", auth, wsH.ServeWS)

	sseH := sse.NewHandler(pubsub, jr, logger)
	r.GET("/sse", auth, sseH.ServeSSE)

	if cfg.Server.PublicDir != "" {
		servePublic(r, cfg.Server.PublicDir)
		logger.Info("Serving dashboard files", zap.String("dir", cfg.Server.PublicDir))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", zap.Error(err))
			stop()
		}
	}()
	jr.Success(fmt.Sprintf("Dashboard running on http://localhost:%d", cfg.Server.Port))

	// ---- Start ----
	if configured {
		sup.Start(ctx)
	} else {
		jr.Info("Waiting for setup... Open the dashboard and configure server settings.")
		sup.StartIdle(ctx)
	}

	<-ctx.Done()
	jr.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := sup.Stop(shutdownCtx); err != nil {
		logger.Warn("agent stop timed out", zap.Error(err))
	}
	hub.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	auditSvc.Stop(shutdownCtx)
}

// newTransport picks the game transport. The simulated world has no network
// to probe, so it always reports a local-quality link.
func newTransport(transport string) (world.Dialer, supervisor.Prober, error) {
	switch transport {
	case "", "sim":
		local := supervisor.ProbeFunc(func(context.Context, string, int) (time.Duration, error) {
			return time.Millisecond, nil
		})
		return &memworld.Dialer{}, local, nil
	default:
		return nil, nil, fmt.Errorf("unsupported transport %q", transport)
	}
}

// servePublic serves the dashboard UI: index.html at / and any other file
// under dir. Unknown paths fall through to a JSON 404.
func servePublic(r *gin.Engine, dir string) {
	r.StaticFile("/", filepath.Join(dir, "index.html"))
	r.NoRoute(func(c *gin.Context) {
		path := filepath.Join(dir, filepath.Clean("/"+c.Request.URL.Path))
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			c.File(path)
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
}
