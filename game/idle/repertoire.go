package idle

import (
	"context"
	"time"

	"github.com/kasuganosora/afkagent/game/ai"
	"github.com/kasuganosora/afkagent/game/catalog"
	"github.com/kasuganosora/afkagent/world"
)

// Control release tasks; re-registering one replaces the pending release.
const (
	taskReleaseJump   = "idle.release.jump"
	taskReleaseSneak  = "idle.release.sneak"
	taskReleaseSprint = "idle.release.sprint"
)

type microAction struct {
	name   string
	weight float64
	// gate is the rate-limit slot the action must claim, if any.
	gate     string
	interval time.Duration
	run      func(c *ai.Context)
}

func (p *Planner) actions() []microAction {
	w := p.opts.AFK.Weights
	return []microAction{
		{name: "wander", weight: w.Wander, gate: slotWander, interval: p.opts.AFK.WanderCooldown, run: p.wander},
		{name: "look", weight: w.Look, gate: slotLook, interval: p.opts.AFK.LookCooldown, run: p.lookAround},
		{name: "jump", weight: w.Jump, run: p.jump},
		{name: "sneak", weight: w.Sneak, run: p.sneak},
		{name: "swing", weight: w.Swing, run: p.swing},
		{name: "sprint", weight: w.Sprint, run: p.sprint},
	}
}

// repertoire rolls once and walks the cumulative weight bands. A band whose
// gate is closed falls through to the next band, as if the roll landed there.
// Mass left after the last band means doing nothing.
func (p *Planner) repertoire(c *ai.Context) ai.Status {
	r := p.roll()
	edge := 0.0
	for _, a := range p.actions() {
		edge += a.weight
		if r >= edge {
			continue
		}
		if a.gate != "" && !p.st.ClaimSlot(a.gate, a.interval) {
			continue
		}
		c.Visit(a.name)
		a.run(c)
		return ai.StatusSuccess
	}
	c.Visit("none")
	return ai.StatusSuccess
}

// wander walks toward a visible hostile so the scanner can engage it, or to a
// random safe spot around home.
func (p *Planner) wander(c *ai.Context) {
	pos := p.sess.Position()
	radius := p.opts.AFK.WanderRadius
	mob := p.sess.NearestEntity(func(o world.Entity) bool {
		return catalog.IsHostile(o) && world.Distance(o.Position(), pos) <= radius
	})
	if mob != nil {
		if d := world.Distance(mob.Position(), pos); d > roamMinDist {
			p.debugf("Roaming toward %s (%.0fm away)", world.DisplayName(mob), d)
			p.sess.SetGoal(world.GoalNear{Pos: mob.Position(), Within: 3})
			return
		}
	}
	if spot, ok := p.terrain.SafeSpot(p.home(), radius, c.Rand); ok {
		p.sess.SetGoal(world.GoalNear{Pos: spot, Within: 2})
	}
}

func (p *Planner) lookAround(c *ai.Context) {
	pos := p.sess.Position()
	near := p.sess.NearestEntity(func(o world.Entity) bool {
		return world.Distance(o.Position(), pos) < lookRange
	})
	if near != nil {
		p.sess.LookAt(world.Offset(near.Position(), near.Height()*0.8))
		return
	}
	p.sess.Look(p.sess.Yaw()+(c.Rand.Float64()-0.5)*2.5, (c.Rand.Float64()-0.5)*0.6)
}

func (p *Planner) jump(*ai.Context) {
	p.pulse(taskReleaseJump, 400*time.Millisecond, world.ControlJump)
}

func (p *Planner) sneak(c *ai.Context) {
	p.pulse(taskReleaseSneak, jitter(c, 600*time.Millisecond, 600*time.Millisecond), world.ControlSneak)
}

func (p *Planner) swing(c *ai.Context) {
	hand := "right"
	if c.Rand.Float64() > 0.5 {
		hand = "left"
	}
	p.sess.SwingArm(hand)
}

func (p *Planner) sprint(c *ai.Context) {
	p.pulse(taskReleaseSprint, jitter(c, 800*time.Millisecond, 1200*time.Millisecond), world.ControlSprint, world.ControlForward)
}

// pulse presses controls now and releases them after d.
func (p *Planner) pulse(task string, d time.Duration, controls ...world.Control) {
	for _, ctl := range controls {
		p.sess.SetControl(ctl, true)
	}
	sess := p.sess
	p.sched.AddDelay(task, d, func(ctx context.Context) {
		for _, ctl := range controls {
			sess.SetControl(ctl, false)
		}
	})
}

func jitter(c *ai.Context, base, spread time.Duration) time.Duration {
	return base + time.Duration(c.Rand.Float64()*float64(spread))
}
