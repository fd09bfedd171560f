// Package combat implements threat scanning, engagement, melee ticks,
// attacker attribution and low-health flight.
package combat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kasuganosora/afkagent/config"
	"github.com/kasuganosora/afkagent/game/catalog"
	"github.com/kasuganosora/afkagent/game/hazard"
	"github.com/kasuganosora/afkagent/game/state"
	"github.com/kasuganosora/afkagent/journal"
	"github.com/kasuganosora/afkagent/scheduler"
	"github.com/kasuganosora/afkagent/world"
	"golang.org/x/time/rate"
)

// Scheduler task names owned by the engine.
const (
	TaskScan = "combat.scan"
	TaskTick = "combat.tick"
)

// Mode is the engagement state.
type Mode int

const (
	ModeIdle Mode = iota
	ModeEngaged
	ModeFleeing
)

func (m Mode) String() string {
	switch m {
	case ModeEngaged:
		return "engaged"
	case ModeFleeing:
		return "fleeing"
	default:
		return "idle"
	}
}

// Options configures an Engine.
type Options struct {
	Combat             config.CombatConfig
	SelfDefense        bool
	ExplosiveAvoidance bool
}

// Engine is the threat and combat state machine of one session.
type Engine struct {
	opts    Options
	sess    world.Session
	st      *state.State
	sched   *scheduler.Scheduler
	avoider *hazard.Avoider
	journal *journal.Journal

	// mu serializes scan, tick and event handling.
	mu      sync.Mutex
	mode    Mode
	ctx     context.Context
	fleeLog rate.Sometimes
}

// New creates an Engine. avoider may be nil.
func New(sess world.Session, st *state.State, sched *scheduler.Scheduler, avoider *hazard.Avoider, j *journal.Journal, opts Options) *Engine {
	return &Engine{
		opts:    opts,
		sess:    sess,
		st:      st,
		sched:   sched,
		avoider: avoider,
		journal: j,
		ctx:     context.Background(),
		fleeLog: rate.Sometimes{Interval: 5 * time.Second},
	}
}

// Start registers the scan ticker. ctx bounds event-driven equips.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	e.ctx = ctx
	e.mu.Unlock()
	e.sched.AddTicker(TaskScan, e.opts.Combat.ScanInterval, e.Scan)
}

// Mode returns the current engagement state.
func (e *Engine) Mode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// Scan is one threat scan. Explosive avoidance runs first and ends the scan
// when it fires.
func (e *Engine) Scan(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.opts.ExplosiveAvoidance && e.avoider != nil {
		if d, ok := e.avoider.Detect(); ok {
			if e.st.InCombat() {
				e.disengageLocked("explosive nearby")
			}
			e.avoider.Flee(d)
			e.mode = ModeFleeing
			return
		}
	}
	if !e.opts.SelfDefense {
		return
	}

	if target := e.st.Target(); target != nil {
		if !target.Valid() {
			e.disengageLocked("target despawned")
		}
		return
	}

	if e.sess.Health() <= e.opts.Combat.FleeHealth {
		if e.nearestThreat(e.opts.Combat.DisengageRange) != nil {
			e.fleeLocked(nil)
		}
		return
	}

	if threat := e.nearestThreat(e.opts.Combat.ScanRange); threat != nil {
		e.engageLocked(ctx, threat)
		return
	}
	e.mode = ModeIdle
}

// Tick is one melee step against the current target.
func (e *Engine) Tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	target := e.st.Target()
	if target == nil {
		e.sched.Remove(TaskTick)
		return
	}
	if !target.Valid() {
		e.disengageLocked("target gone")
		return
	}
	if e.sess.Health() <= e.opts.Combat.FleeHealth {
		e.disengageLocked("low HP")
		e.fleeLocked(target)
		return
	}
	pos := e.sess.Position()
	dist := world.Distance(target.Position(), pos)
	if dist > e.opts.Combat.DisengageRange {
		e.disengageLocked("target out of range")
		return
	}
	if dist > e.opts.Combat.AttackRange {
		e.sess.SetGoal(world.GoalFollow{Entity: target, Within: 2})
		return
	}
	e.sess.LookAt(world.Offset(target.Position(), target.Height()*0.8))
	e.sess.Attack(target)
}

// HandleEvent routes hurt and swing events to attribution.
func (e *Engine) HandleEvent(ev world.Event) {
	switch ev.Type {
	case world.EventEntityHurt:
		e.OnHurt(ev.Entity)
	case world.EventEntitySwing:
		e.OnSwing(ev.Entity)
	}
}

// OnHurt attributes damage taken by the agent to the nearest player within
// the attribution radius and retaliates. Without a player it engages the
// nearest hostile in the same radius.
func (e *Engine) OnHurt(victim world.Entity) {
	if victim == nil || victim.ID() != e.sess.SelfID() {
		return
	}
	e.st.MarkDamage()
	if !e.opts.SelfDefense {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	pos := e.sess.Position()
	radius := e.opts.Combat.AttributeRadius
	player := e.sess.NearestEntity(func(o world.Entity) bool {
		return o.Valid() && o.Kind() == world.KindPlayer && world.Distance(o.Position(), pos) <= radius
	})
	if player != nil {
		e.st.RecordAttacker(player.ID())
		e.journal.Combat(
			fmt.Sprintf("Player %s attacked us! Retaliating...", world.DisplayName(player)),
			fmt.Sprintf("Dist: %.1f | HP: %.1f", world.Distance(player.Position(), pos), e.sess.Health()),
		)
		if !e.st.InCombat() {
			e.engageLocked(e.ctx, player)
		}
		return
	}
	if !e.st.InCombat() {
		if mob := e.nearestThreat(radius); mob != nil {
			e.engageLocked(e.ctx, mob)
		}
	}
}

// OnSwing marks a nearby player as attacker when its swing closely follows
// damage to the agent.
func (e *Engine) OnSwing(swinger world.Entity) {
	if swinger == nil || swinger.Kind() != world.KindPlayer || !e.opts.SelfDefense {
		return
	}
	if world.Distance(swinger.Position(), e.sess.Position()) > e.opts.Combat.SwingRadius {
		return
	}
	if !e.st.DamagedWithin(e.opts.Combat.SwingWindow) {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.st.RecordAttacker(swinger.ID())
	e.journal.Combat(fmt.Sprintf("Detected swing from %s right after damage, marking as attacker.", world.DisplayName(swinger)))
	if !e.st.InCombat() {
		e.engageLocked(e.ctx, swinger)
	}
}

// Disengage stops any active combat.
func (e *Engine) Disengage(reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.st.InCombat() {
		e.disengageLocked(reason)
	}
}

func (e *Engine) nearestThreat(radius float64) world.Entity {
	pos := e.sess.Position()
	now := e.st.Now()
	return e.sess.NearestEntity(func(o world.Entity) bool {
		if !o.Valid() || world.Distance(o.Position(), pos) > radius {
			return false
		}
		if catalog.IsHostile(o) {
			return true
		}
		return o.Kind() == world.KindPlayer && e.st.IsActiveAttacker(o.ID(), now)
	})
}

func (e *Engine) engageLocked(ctx context.Context, target world.Entity) bool {
	if e.st.InCombat() || target == nil || !target.Valid() {
		return false
	}
	if e.sess.Health() <= e.opts.Combat.FleeHealth || e.st.ExplosiveCooldown() {
		return false
	}
	e.st.SetTarget(target)
	e.mode = ModeEngaged
	e.journal.Combat(
		fmt.Sprintf("Engaging %s!", world.DisplayName(target)),
		fmt.Sprintf("HP: %.1f | Dist: %.1f", e.sess.Health(), world.Distance(target.Position(), e.sess.Position())),
	)
	e.equipBestWeapon(ctx)
	e.sched.AddTicker(TaskTick, e.opts.Combat.TickInterval, e.Tick)
	return true
}

// disengageLocked stops the tick loop and clears the target together.
func (e *Engine) disengageLocked(reason string) {
	e.sched.Remove(TaskTick)
	if prev := e.st.ClearTarget(); prev != nil {
		e.journal.Combat("Disengaged.", reason)
	}
	e.sess.StopPathing()
	e.mode = ModeIdle
}

// fleeLocked runs FleeDistance blocks away from the nearest threat. last is
// the target just dropped; it stands in for a threat whose attacker record
// has lapsed. With neither in flee distance it heads back to the spawn anchor.
func (e *Engine) fleeLocked(last world.Entity) {
	hp := e.sess.Health()
	e.fleeLog.Do(func() {
		e.journal.Warn(fmt.Sprintf("Low HP (%.1f)! Fleeing to spawn...", hp))
	})
	e.mode = ModeFleeing
	pos := e.sess.Position()
	threat := e.nearestThreat(e.opts.Combat.FleeDistance)
	if threat == nil && last != nil && last.Valid() && world.Distance(last.Position(), pos) <= e.opts.Combat.FleeDistance {
		threat = last
	}
	if threat != nil {
		target := world.AwayFrom(pos, threat.Position(), e.opts.Combat.FleeDistance)
		e.sess.SetGoal(world.GoalNear{Pos: target, Within: 2})
		return
	}
	home, ok := e.st.Anchor()
	if !ok {
		home = pos
	}
	e.sess.SetGoal(world.GoalNear{Pos: home, Within: 1})
}

func (e *Engine) equipBestWeapon(ctx context.Context) {
	weapon, ok := catalog.BestWeapon(e.sess.Inventory())
	if !ok {
		return
	}
	if held, ok := e.sess.HeldItem(); ok && held.Name == weapon.Name {
		return
	}
	if err := e.sess.Equip(ctx, weapon); err != nil {
		e.journal.Debug("Equip weapon failed", err.Error())
	}
}
