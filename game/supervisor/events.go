package supervisor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kasuganosora/afkagent/world"
	"go.uber.org/zap"
)

// pump consumes one session's events until it ends, then tears it down.
// Teardown runs here and never inside a scheduler task.
func (s *Supervisor) pump(cur *session) {
	defer close(cur.done)
	reason := ""
	for ev := range cur.sess.Events() {
		if ev.Type == world.EventEnd {
			reason = ev.Text
			break
		}
		s.dispatch(cur, ev)
	}
	s.endSession(cur, reason)
}

func (s *Supervisor) dispatch(cur *session, ev world.Event) {
	switch ev.Type {
	case world.EventSpawn:
		if !cur.spawned {
			s.onSpawn(cur)
		}
	case world.EventError:
		s.onError(ev.Err)
	case world.EventHealth:
		s.mu.Lock()
		s.health, s.food = cur.sess.Health(), cur.sess.Food()
		s.mu.Unlock()
		s.publishStatus(cur.ctx)
	case world.EventEntityHurt, world.EventEntitySwing:
		cur.combat.HandleEvent(ev)
	case world.EventMessage:
		cur.chat.HandleEvent(ev)
	case world.EventKicked:
		s.journal.Warn("Kicked by server!", KickText(ev.Text))
	case world.EventResourcePack:
		s.onResourcePack(cur)
	}
}

func (s *Supervisor) onSpawn(cur *session) {
	now := s.st.Now()
	s.mu.Lock()
	cur.spawned = true
	cur.record.SpawnedAt = &now
	cur.record.Version = cur.sess.Version()
	s.status = StatusOnline
	s.attempt = 0
	s.lastTransient = false
	s.health, s.food = cur.sess.Health(), cur.sess.Food()
	rec := cur.record
	s.mu.Unlock()

	s.st.SetAnchor(cur.sess.Position())
	s.save(rec)
	s.journal.Success(fmt.Sprintf("Connected! (v%s)", cur.sess.Version()))

	if cur.cfg.Features.AutoEquip {
		if err := cur.sess.EquipArmor(); err != nil {
			s.journal.Warn("Auto-equip failed:", err.Error())
		} else {
			s.journal.Info("Auto-equip armor enabled.")
		}
	}
	s.publishStatus(cur.ctx)
	s.runEntry(cur)
	s.sched.AddDelay(TaskReprobe, cur.cfg.Reconnect.StableAfter, func(ctx context.Context) { s.reprobe(ctx, cur) })
}

// runEntry performs the scripted arrival: a glance, a jump and a short walk,
// then the optional greeting. The engines start once the walk ends.
func (s *Supervisor) runEntry(cur *session) {
	s.journal.Info("Running entry sequence...")
	s.mu.Lock()
	jitter := s.rng.Float64() - 0.5
	s.mu.Unlock()
	sess := cur.sess
	sess.Look(sess.Yaw()+jitter, 0)

	walk := time.Duration(cur.cfg.Entry.MoveForwardSeconds * float64(time.Second))
	if walk <= 0 {
		walk = time.Second
	}
	s.sched.AddDelay(TaskEntry, s.entryLead, func(ctx context.Context) {
		if ctx.Err() != nil {
			return
		}
		sess.SetControl(world.ControlJump, true)
		s.sched.AddDelay(TaskEntryJump, entryJump, func(context.Context) {
			sess.SetControl(world.ControlJump, false)
		})
		sess.SetControl(world.ControlForward, true)
		s.sched.AddDelay(TaskEntryWalk, walk, func(ctx context.Context) {
			sess.SetControl(world.ControlForward, false)
			if ctx.Err() != nil || cur.ctx.Err() != nil {
				return
			}
			s.greet(cur)
			s.journal.Success("Entry complete. Starting AFK loop.")
			cur.planner.Start()
			cur.combat.Start(cur.ctx)
		})
	})
}

func (s *Supervisor) greet(cur *session) {
	msg := strings.TrimSpace(cur.cfg.Entry.FirstTimeMessage)
	if msg == "" {
		return
	}
	delay := time.Duration(cur.cfg.Entry.ChatDelaySeconds * float64(time.Second))
	if delay <= 0 {
		delay = 2 * time.Second
	}
	s.sched.AddDelay(TaskGreeting, delay, func(context.Context) {
		s.journal.Info("Sending first-time message: " + msg)
		cur.sess.Chat(msg)
	})
}

// reprobe clears the network quality flag after a stable stretch, but only
// if latency is low again.
func (s *Supervisor) reprobe(ctx context.Context, cur *session) {
	s.mu.Lock()
	live := s.cur == cur && s.status == StatusOnline
	s.mu.Unlock()
	if !live {
		return
	}
	cfg := cur.cfg
	stable := cfg.Reconnect.StableAfter.Round(time.Second)
	ping, err := s.prober.Probe(ctx, cfg.Bot.Host, cfg.Bot.Port)
	if err == nil && ping < cfg.Reconnect.LowLatency {
		s.mu.Lock()
		s.degraded = false
		s.mu.Unlock()
		s.journal.Info(fmt.Sprintf("Connection stable for %s, ping %dms, network quality flag reset.", stable, ping.Milliseconds()))
		return
	}
	pingText := "N/A"
	if err == nil {
		pingText = fmt.Sprintf("%dms", ping.Milliseconds())
	}
	s.journal.Info(fmt.Sprintf("Connection stable for %s but ping still high (%s), keeping degraded view distance.", stable, pingText))
}

func (s *Supervisor) onError(err error) {
	f := Classify(err)
	s.mu.Lock()
	s.lastTransient = f.Transient
	if f.Transient {
		s.degraded = true
	}
	s.mu.Unlock()
	s.journal.Error("Connection error", fmt.Sprintf("%v: %s", err, f.Hint))
}

func (s *Supervisor) onResourcePack(cur *session) {
	if !cur.cfg.Features.AcceptResourcePack {
		s.journal.Info("Resource pack declined (disabled in config).")
		cur.sess.RespondResourcePack(false)
		return
	}
	s.journal.Info("Resource pack requested, accepting...")
	cur.sess.RespondResourcePack(true)
	s.sched.AddDelay(TaskResourcePack, resourcePackDelay, func(context.Context) {
		s.journal.Success("Resource pack accepted & loaded.")
	})
}

// endSession handles the end of cur and decides what comes next: nothing,
// a restart after restartDelay, or a backoff reconnect.
func (s *Supervisor) endSession(cur *session, reason string) {
	transient := IsTransientReason(reason)
	s.mu.Lock()
	if transient {
		s.lastTransient = true
		s.degraded = true
	}
	s.status = StatusOffline
	restart := s.pendingRestart
	s.pendingRestart = false
	s.mu.Unlock()

	s.journal.Warn("Disconnected.", reason)
	s.teardown(cur, reason, transient)
	s.publishStatus(context.Background())

	if restart {
		s.sched.AddDelay(TaskConnect, restartDelay, s.dial)
		return
	}
	s.scheduleReconnect()
}

// teardown stops every per-session task and waits for in-flight runs, then
// clears the shared state. It completes before any reconnect is armed.
func (s *Supervisor) teardown(cur *session, reason string, transient bool) {
	cur.cancel()
	// A run that was in flight may have registered follow-up tasks.
	var removed []string
	for {
		names := s.sched.RemoveAllWait(TaskStatus, TaskConnect)
		if len(names) == 0 {
			break
		}
		removed = append(removed, names...)
	}
	s.st.Reset()

	now := s.st.Now()
	s.mu.Lock()
	cur.record.EndedAt = &now
	cur.record.Reason = reason
	cur.record.Transient = transient
	rec := cur.record
	if s.cur == cur {
		s.cur = nil
	}
	s.mu.Unlock()

	s.save(rec)
	s.journal.SetSession("")
	s.logger.Debug("session torn down", zap.String("session", rec.ID), zap.Strings("tasks", removed))
}
