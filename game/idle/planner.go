// Package idle implements the lowest-priority behavior loop: maintenance,
// scheduled sourcing, sleep, hazard escape, drift correction and a weighted
// repertoire of idle micro-actions.
package idle

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/kasuganosora/afkagent/config"
	"github.com/kasuganosora/afkagent/game/ai"
	"github.com/kasuganosora/afkagent/game/catalog"
	"github.com/kasuganosora/afkagent/game/hazard"
	"github.com/kasuganosora/afkagent/game/sourcing"
	"github.com/kasuganosora/afkagent/game/state"
	"github.com/kasuganosora/afkagent/journal"
	"github.com/kasuganosora/afkagent/scheduler"
	"github.com/kasuganosora/afkagent/world"
)

// TaskAFK is the scheduler name of the planner loop.
const TaskAFK = "idle.afk"

const (
	OwnerSleep = "sleep"

	slotWander = "idle.wander"
	slotLook   = "idle.look"

	nightStart   = 13000
	sleepTimeout = 30 * time.Second
	lookRange    = 16.0
	roamMinDist  = 4.0
)

// Options configures a Planner.
type Options struct {
	AFK        config.AFKConfig
	Hazard     config.HazardConfig
	Features   config.FeaturesConfig
	FleeHealth float64
	// Rand drives the repertoire roll and safe-spot sampling. Nil seeds one from the clock.
	Rand *rand.Rand
}

// Planner is the idle behavior loop of one session.
type Planner struct {
	opts     Options
	sess     world.Session
	st       *state.State
	sched    *scheduler.Scheduler
	sourcing *sourcing.Engine
	terrain  *hazard.Terrain
	journal  *journal.Journal

	mu   sync.Mutex
	rng  *rand.Rand
	roll func() float64
	tree *ai.BehaviorTree
}

// New creates a Planner.
func New(sess world.Session, st *state.State, sched *scheduler.Scheduler, src *sourcing.Engine, terrain *hazard.Terrain, j *journal.Journal, opts Options) *Planner {
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	p := &Planner{
		opts:     opts,
		sess:     sess,
		st:       st,
		sched:    sched,
		sourcing: src,
		terrain:  terrain,
		journal:  j,
		rng:      rng,
	}
	p.roll = rng.Float64
	p.tree = p.build()
	return p
}

// Start registers the planner loop on the scheduler.
func (p *Planner) Start() {
	p.sched.AddTicker(TaskAFK, p.opts.AFK.Interval, p.Tick)
}

// Tick runs one planner pass.
func (p *Planner) Tick(ctx context.Context) {
	p.Step(ctx)
}

// Step runs one planner pass and returns the names of the leaves that ran.
func (p *Planner) Step(ctx context.Context) []string {
	if ctx.Err() != nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	actx := ai.NewContext(ctx, p.st.Now(), p.rng)
	p.tree.Tick(actx)
	return actx.Trace
}

// build lays the tiers out in priority order. The first tier always runs;
// the selector stops at the first tier that acts.
func (p *Planner) build() *ai.BehaviorTree {
	return &ai.BehaviorTree{Root: &ai.Sequence{Children: []ai.Node{
		&ai.AlwaysSucceed{Child: &ai.ActionNode{Name: "maintain", Fn: p.maintain}},
		&ai.Selector{Children: []ai.Node{
			ai.Guard("food due", p.foodDue, &ai.ActionNode{Name: "food", Fn: p.food}),
			ai.Guard("stash due", p.stashDue, &ai.ActionNode{Name: "stash", Fn: p.stash}),
			ai.Guard("occupied", p.occupied, &ai.ActionNode{Name: "yield", Fn: succeed}),
			ai.Guard("sleepy", p.sleepy, &ai.ActionNode{Name: "sleep", Fn: p.sleep}),
			ai.Guard("on hazard", p.onHazard, &ai.ActionNode{Name: "escape", Fn: p.escape}),
			ai.Guard("drifted", p.drifted, &ai.ActionNode{Name: "return-home", Fn: p.returnHome}),
			&ai.ActionNode{Name: "repertoire", Fn: p.repertoire},
		}},
	}}}
}

func succeed(*ai.Context) ai.Status { return ai.StatusSuccess }

// free reports whether no busy operation and no fight is in progress.
func (p *Planner) free() bool {
	return !p.st.Busy() && !p.st.InCombat()
}

func (p *Planner) maintain(*ai.Context) ai.Status {
	if !p.opts.Features.AutoEquip {
		return ai.StatusSuccess
	}
	if err := p.sess.EquipArmor(); err != nil {
		p.journal.Debug("Equip armor failed", err.Error())
	}
	return ai.StatusSuccess
}

func (p *Planner) foodDue(*ai.Context) bool {
	return p.opts.Features.AutoFoodSource && p.sourcing != nil && p.free() && p.sourcing.FoodDue()
}

func (p *Planner) food(c *ai.Context) ai.Status {
	p.sourcing.SourceFood(c.Ctx)
	return ai.StatusSuccess
}

func (p *Planner) stashDue(*ai.Context) bool {
	return p.opts.Features.AutoStash && p.sourcing != nil && p.free() && p.sourcing.StashDue()
}

func (p *Planner) stash(c *ai.Context) ai.Status {
	p.sourcing.StashLoot(c.Ctx)
	return ai.StatusSuccess
}

func (p *Planner) occupied(*ai.Context) bool { return !p.free() }

func (p *Planner) sleepy(*ai.Context) bool {
	if !p.opts.Features.AutoSleep || p.sess.IsSleeping() {
		return false
	}
	return p.sess.TimeOfDay() >= nightStart || p.sess.IsRaining()
}

// sleep fails when no bed is in range so the lower tiers still run.
func (p *Planner) sleep(c *ai.Context) ai.Status {
	bed, ok := p.sess.FindBlock(func(b world.Block) bool { return catalog.IsBed(b.Name) }, p.opts.AFK.BedSearchRange)
	if !ok {
		return ai.StatusFailure
	}
	if !p.st.TryAcquire(OwnerSleep) {
		return ai.StatusSuccess
	}
	defer p.st.Release(OwnerSleep)

	p.journal.Info("Found bed, going to sleep...")
	ctx, cancel := context.WithTimeout(c.Ctx, sleepTimeout)
	defer cancel()
	if err := p.sess.Goto(ctx, world.GoalGetToBlock{Pos: bed.Pos}); err != nil {
		p.journal.Warn("Sleep failed:", err.Error())
		return ai.StatusSuccess
	}
	if err := p.sess.Sleep(ctx, bed); err != nil {
		p.journal.Warn("Sleep failed:", err.Error())
		return ai.StatusSuccess
	}
	p.journal.Success("Sleeping.")
	return ai.StatusSuccess
}

func (p *Planner) onHazard(*ai.Context) bool {
	return p.terrain != nil && p.terrain.Standing()
}

func (p *Planner) escape(c *ai.Context) ai.Status {
	p.journal.Warn("Standing near hazard! Moving to safety...")
	if spot, ok := p.terrain.SafeSpot(p.home(), p.opts.Hazard.EscapeRadius, c.Rand); ok {
		p.sess.SetGoal(world.GoalNear{Pos: spot, Within: 1})
	}
	return ai.StatusSuccess
}

func (p *Planner) drifted(*ai.Context) bool {
	anchor, ok := p.st.Anchor()
	if !ok || p.sess.Health() <= p.opts.FleeHealth {
		return false
	}
	return world.Distance(p.sess.Position(), anchor) > p.opts.AFK.WanderRadius+p.opts.AFK.DriftMargin
}

func (p *Planner) returnHome(*ai.Context) ai.Status {
	anchor, _ := p.st.Anchor()
	p.journal.Info("Drifted too far, returning to spawn area...")
	p.sess.SetGoal(world.GoalNear{Pos: anchor, Within: 3})
	return ai.StatusSuccess
}

// home is the spawn anchor, or the current position before one is known.
func (p *Planner) home() mgl64.Vec3 {
	if anchor, ok := p.st.Anchor(); ok {
		return anchor
	}
	return p.sess.Position()
}

func (p *Planner) debugf(format string, args ...interface{}) {
	p.journal.Debug(fmt.Sprintf(format, args...))
}
