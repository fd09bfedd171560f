// Package supervisor owns the session lifecycle: it dials, wires the per-session
// engines, routes session events, tears everything down on disconnect and
// schedules reconnects with classified backoff.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kasuganosora/afkagent/config"
	"github.com/kasuganosora/afkagent/game/chat"
	"github.com/kasuganosora/afkagent/game/combat"
	"github.com/kasuganosora/afkagent/game/hazard"
	"github.com/kasuganosora/afkagent/game/idle"
	"github.com/kasuganosora/afkagent/game/sourcing"
	"github.com/kasuganosora/afkagent/game/state"
	"github.com/kasuganosora/afkagent/journal"
	"github.com/kasuganosora/afkagent/model"
	"github.com/kasuganosora/afkagent/scheduler"
	"github.com/kasuganosora/afkagent/world"
	"go.uber.org/zap"
)

// Status is the connection state shown to operators.
type Status string

const (
	StatusOffline      Status = "offline"
	StatusConnecting   Status = "connecting"
	StatusOnline       Status = "online"
	StatusReconnecting Status = "reconnecting"
)

// Scheduler task names. TaskStatus and TaskConnect survive session teardown.
const (
	TaskStatus       = "supervisor.status"
	TaskConnect      = "supervisor.connect"
	TaskReprobe      = "supervisor.reprobe"
	TaskEntry        = "supervisor.entry"
	TaskEntryJump    = "supervisor.entry.jump"
	TaskEntryWalk    = "supervisor.entry.walk"
	TaskGreeting     = "supervisor.greeting"
	TaskResourcePack = "supervisor.resource_pack"
)

// Commands accepted by Command.
const (
	CmdConnect       = "connect"
	CmdDisconnect    = "disconnect"
	CmdReconnectOn   = "reconnect-on"
	CmdReconnectOff  = "reconnect-off"
	CmdSaveReconnect = "save-reconnect"
)

// ErrUnknownCommand is returned by Command for names it does not handle.
var ErrUnknownCommand = errors.New("supervisor: unknown command")

const (
	statusInterval    = 2 * time.Second
	restartDelay      = time.Second
	resourcePackDelay = 500 * time.Millisecond
	entryJump         = 500 * time.Millisecond
	defaultEntryLead  = 1500 * time.Millisecond
)

// SessionRecorder persists session history. *audit.Service implements it.
type SessionRecorder interface {
	SaveSession(rec model.SessionRecord)
}

// Options configures a Supervisor.
type Options struct {
	Dialer world.Dialer
	Prober Prober
	// Scheduler must be dedicated to the supervisor: teardown removes every
	// task on it except TaskStatus and TaskConnect.
	Scheduler *scheduler.Scheduler
	Journal   *journal.Journal
	Logger    *zap.Logger
	// Recorder may be nil.
	Recorder SessionRecorder
	// Clock drives state timers. Nil means time.Now.
	Clock state.Clock
	// EntryLead is the pause between spawn and the entry walk. Zero means 1.5s.
	EntryLead time.Duration
}

// Position is a floored block position.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// Snapshot is the status pushed to dashboards.
type Snapshot struct {
	Status        Status    `json:"status"`
	Health        float64   `json:"health"`
	Food          float64   `json:"food"`
	Version       string    `json:"version"`
	Position      *Position `json:"position"`
	Server        string    `json:"server"`
	Username      string    `json:"username"`
	Uptime        int64     `json:"uptime"`
	Attempt       int       `json:"attempt"`
	Degraded      bool      `json:"degraded"`
	AutoReconnect bool      `json:"auto_reconnect"`
	Combat        string    `json:"combat"`
	Busy          string    `json:"busy,omitempty"`
}

// session is everything bound to one live connection.
type session struct {
	sess    world.Session
	cfg     config.Config
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	combat  *combat.Engine
	planner *idle.Planner
	chat    *chat.Handler
	record  model.SessionRecord
	spawned bool
}

// Supervisor keeps one session alive at a time.
type Supervisor struct {
	dialer    world.Dialer
	prober    Prober
	sched     *scheduler.Scheduler
	journal   *journal.Journal
	logger    *zap.Logger
	recorder  SessionRecorder
	st        *state.State
	entryLead time.Duration

	mu             sync.Mutex
	root           context.Context
	cfg            config.Config
	status         Status
	attempt        int
	lastTransient  bool
	degraded       bool
	pendingRestart bool
	cur            *session
	health         float64
	food           float64
	rng            *rand.Rand
}

// New creates a Supervisor over a private copy of cfg.
func New(cfg config.Config, opts Options) *Supervisor {
	prober := opts.Prober
	if prober == nil {
		prober = TCPProber{Timeout: cfg.Reconnect.ProbeTimeout}
	}
	lead := opts.EntryLead
	if lead <= 0 {
		lead = defaultEntryLead
	}
	return &Supervisor{
		dialer:    opts.Dialer,
		prober:    prober,
		sched:     opts.Scheduler,
		journal:   opts.Journal,
		logger:    opts.Logger,
		recorder:  opts.Recorder,
		st:        state.New(cfg.Combat.AttackerExpiry, opts.Clock),
		entryLead: lead,
		root:      context.Background(),
		cfg:       cfg,
		status:    StatusOffline,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// State returns the shared arbitration state.
func (s *Supervisor) State() *state.State { return s.st }

// Start registers the status publisher and makes the first connect.
// ctx bounds every session.
func (s *Supervisor) Start(ctx context.Context) {
	s.StartIdle(ctx)
	s.Connect()
}

// StartIdle registers the status publisher and waits for a connect command.
// Used on first run, before any settings were saved from the dashboard.
func (s *Supervisor) StartIdle(ctx context.Context) {
	s.mu.Lock()
	s.root = ctx
	s.mu.Unlock()
	s.sched.AddTicker(TaskStatus, statusInterval, func(ctx context.Context) { s.publishStatus(ctx) })
	s.publishStatus(ctx)
}

// Stop disables reconnects, ends the live session and waits for its teardown.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.cfg.Features.AutoReconnect = false
	s.pendingRestart = false
	cur := s.cur
	s.mu.Unlock()

	s.sched.RemoveWait(TaskConnect)
	defer s.sched.Remove(TaskStatus)
	if cur == nil {
		return nil
	}
	cur.sess.Quit("shutdown")
	select {
	case <-cur.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ---- commands ----

// Command runs one dashboard command.
func (s *Supervisor) Command(name string) error {
	switch name {
	case CmdConnect:
		s.Connect()
	case CmdDisconnect:
		s.Disconnect()
	case CmdReconnectOn:
		s.SetAutoReconnect(true)
	case CmdReconnectOff:
		s.SetAutoReconnect(false)
	case CmdSaveReconnect:
		s.Restart()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
	return nil
}

// Connect dials now when offline or waiting to reconnect. It resets the
// attempt counter and reports whether a dial was started.
func (s *Supervisor) Connect() bool {
	s.mu.Lock()
	if s.cur != nil || (s.status != StatusOffline && s.status != StatusReconnecting) {
		s.mu.Unlock()
		return false
	}
	s.attempt = 0
	s.mu.Unlock()
	s.sched.AddDelay(TaskConnect, 0, s.dial)
	return true
}

// Disconnect turns auto-reconnect off and ends the live session.
func (s *Supervisor) Disconnect() {
	s.mu.Lock()
	s.cfg.Features.AutoReconnect = false
	s.pendingRestart = false
	s.status = StatusOffline
	cur := s.cur
	s.mu.Unlock()

	s.sched.Remove(TaskConnect)
	if cur != nil {
		cur.sess.Quit("Manually disconnected")
	}
	s.publishStatus(context.Background())
	s.journal.Info("Manually disconnected.")
}

// SetAutoReconnect toggles reconnect scheduling. Turning it off cancels a
// pending reconnect.
func (s *Supervisor) SetAutoReconnect(on bool) {
	s.mu.Lock()
	s.cfg.Features.AutoReconnect = on
	s.mu.Unlock()
	if on {
		s.journal.Info("Auto-reconnect enabled.")
		return
	}
	s.sched.Remove(TaskConnect)
	s.journal.Info("Auto-reconnect disabled.")
}

// Restart ends the live session and dials again one second after teardown,
// picking up the current settings.
func (s *Supervisor) Restart() {
	s.sched.Remove(TaskConnect)
	s.mu.Lock()
	cur := s.cur
	s.status = StatusOffline
	s.pendingRestart = cur != nil
	s.mu.Unlock()

	s.publishStatus(context.Background())
	s.journal.Info("Reconnecting with new settings...")
	if cur != nil {
		cur.sess.Quit("Reconnecting with new settings")
		return
	}
	s.sched.AddDelay(TaskConnect, restartDelay, s.dial)
}

// Chat sends a dashboard message. Only an online session accepts one.
func (s *Supervisor) Chat(msg string) bool {
	msg = strings.TrimSpace(msg)
	s.mu.Lock()
	cur := s.cur
	online := s.status == StatusOnline
	s.mu.Unlock()
	if cur == nil || !online || msg == "" {
		return false
	}
	s.journal.Info("Dashboard → " + msg)
	cur.sess.Chat(msg)
	return true
}

// Config returns a copy of the effective configuration.
func (s *Supervisor) Config() config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// ApplySettings overlays dashboard settings. They take effect on the next dial.
func (s *Supervisor) ApplySettings(st model.Settings) {
	s.mu.Lock()
	Overlay(&s.cfg, st)
	s.mu.Unlock()
}

// Attempt returns the reconnect attempt counter.
func (s *Supervisor) Attempt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt
}

// Status returns the connection status.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Degraded reports the network quality flag.
func (s *Supervisor) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// Snapshot builds the current status snapshot.
func (s *Supervisor) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Status:        s.status,
		Health:        s.health,
		Food:          s.food,
		Server:        fmt.Sprintf("%s:%d", s.cfg.Bot.Host, s.cfg.Bot.Port),
		Username:      s.cfg.Bot.Username,
		Attempt:       s.attempt,
		Degraded:      s.degraded,
		AutoReconnect: s.cfg.Features.AutoReconnect,
		Combat:        combat.ModeIdle.String(),
		Busy:          s.st.BusyOwner(),
	}
	if cur := s.cur; cur != nil {
		snap.Version = cur.sess.Version()
		snap.Uptime = s.st.Now().Sub(cur.record.ConnectedAt).Milliseconds()
		snap.Combat = cur.combat.Mode().String()
		if cur.spawned {
			p := world.Floor(cur.sess.Position())
			snap.Position = &Position{X: int(p[0]), Y: int(p[1]), Z: int(p[2])}
		}
	}
	return snap
}

func (s *Supervisor) publishStatus(ctx context.Context) {
	if err := s.journal.PublishStatus(ctx, s.Snapshot()); err != nil {
		s.logger.Debug("status publish failed", zap.Error(err))
	}
}

// ---- connect / reconnect ----

// dial runs as the TaskConnect delay task.
func (s *Supervisor) dial(ctx context.Context) {
	s.mu.Lock()
	if s.cur != nil {
		s.mu.Unlock()
		return
	}
	s.status = StatusConnecting
	cfg := s.cfg
	degraded := s.degraded
	attempt := s.attempt
	s.mu.Unlock()

	s.st.Reset()
	s.publishStatus(ctx)

	ping, err := s.prober.Probe(ctx, cfg.Bot.Host, cfg.Bot.Port)
	probed := err == nil
	vd := ChooseViewDistance(cfg.Bot.Host, ping, probed, degraded, cfg.Reconnect, cfg.Bot.UnreliableHosts)
	pingText := "N/A"
	if probed {
		pingText = fmt.Sprintf("%dms", ping.Milliseconds())
	}
	detail := fmt.Sprintf("%s:%d as %s | ping %s, view distance %d", cfg.Bot.Host, cfg.Bot.Port, cfg.Bot.Username, pingText, vd)
	if degraded {
		detail += " (degraded, previous network errors)"
	}
	s.journal.Info("Connecting to server...", detail)

	rec := model.SessionRecord{
		ID:           uuid.NewString(),
		Host:         cfg.Bot.Host,
		Port:         cfg.Bot.Port,
		Username:     cfg.Bot.Username,
		Attempt:      attempt,
		ViewDistance: vd,
		Degraded:     degraded,
		ConnectedAt:  s.st.Now(),
	}
	if probed {
		rec.PingMs = ping.Milliseconds()
	}

	sess, err := s.dialer.Dial(ctx, world.Options{
		Host:         cfg.Bot.Host,
		Port:         cfg.Bot.Port,
		Username:     cfg.Bot.Username,
		Password:     cfg.Bot.Password,
		Auth:         cfg.Bot.Auth,
		Version:      cfg.Bot.Version,
		ViewDistance: vd,
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.dialFailed(rec, err)
		return
	}

	cur := s.newSession(sess, cfg, rec)
	s.mu.Lock()
	if ctx.Err() != nil {
		s.mu.Unlock()
		cur.cancel()
		sess.Quit("dial cancelled")
		return
	}
	s.cur = cur
	s.mu.Unlock()

	s.journal.SetSession(rec.ID)
	s.save(rec)
	go s.pump(cur)
}

func (s *Supervisor) dialFailed(rec model.SessionRecord, err error) {
	f := Classify(err)
	s.mu.Lock()
	s.lastTransient = f.Transient
	if f.Transient {
		s.degraded = true
	}
	s.status = StatusOffline
	s.mu.Unlock()

	s.journal.Error("Failed to create bot instance", fmt.Sprintf("%v: %s", err, f.Hint))
	now := s.st.Now()
	rec.EndedAt = &now
	rec.Reason = err.Error()
	rec.Transient = f.Transient
	s.save(rec)
	s.publishStatus(context.Background())
	s.scheduleReconnect()
}

// scheduleReconnect arms TaskConnect per the backoff policy and bumps the
// attempt counter. It does nothing while auto-reconnect is off.
func (s *Supervisor) scheduleReconnect() {
	s.mu.Lock()
	if !s.cfg.Features.AutoReconnect {
		s.mu.Unlock()
		return
	}
	delay := Backoff(s.attempt, s.lastTransient, s.cfg.Reconnect)
	s.attempt++
	attempt, transient := s.attempt, s.lastTransient
	s.status = StatusReconnecting
	s.mu.Unlock()

	s.publishStatus(context.Background())
	detail := fmt.Sprintf("Attempt #%d", attempt)
	if transient {
		detail += " (transient, fast retry)"
	}
	s.journal.Info(fmt.Sprintf("Reconnecting in %.0fs...", delay.Seconds()), detail)
	s.sched.AddDelay(TaskConnect, delay, s.dial)
}

func (s *Supervisor) newSession(sess world.Session, cfg config.Config, rec model.SessionRecord) *session {
	s.mu.Lock()
	root := s.root
	s.mu.Unlock()
	ctx, cancel := context.WithCancel(root)

	avoider := hazard.NewAvoider(sess, s.st, s.journal, cfg.Explosive)
	terrain := hazard.NewTerrain(sess, cfg.Hazard)
	src := sourcing.New(sess, s.st, s.journal, cfg.Food, cfg.Stash, cfg.Combat.AttackRange)
	return &session{
		sess:   sess,
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		record: rec,
		combat: combat.New(sess, s.st, s.sched, avoider, s.journal, combat.Options{
			Combat:             cfg.Combat,
			SelfDefense:        cfg.Features.CombatSelfDefense,
			ExplosiveAvoidance: cfg.Features.ExplosiveAvoidance,
		}),
		planner: idle.New(sess, s.st, s.sched, src, terrain, s.journal, idle.Options{
			AFK:        cfg.AFK,
			Hazard:     cfg.Hazard,
			Features:   cfg.Features,
			FleeHealth: cfg.Combat.FleeHealth,
		}),
		chat: chat.NewHandler(sess, s.st, s.journal, chat.Options{
			SolveCaptcha: cfg.Features.SolveMathCaptcha,
			Password:     cfg.Bot.Password,
			RegisterCmd:  cfg.AuthPrompt.RegisterCmd,
			LoginCmd:     cfg.AuthPrompt.LoginCmd,
		}),
	}
}

func (s *Supervisor) save(rec model.SessionRecord) {
	if s.recorder != nil {
		s.recorder.SaveSession(rec)
	}
}
