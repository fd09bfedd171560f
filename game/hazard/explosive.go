// Package hazard detects explosives and dangerous terrain around the agent.
package hazard

import (
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/kasuganosora/afkagent/config"
	"github.com/kasuganosora/afkagent/game/catalog"
	"github.com/kasuganosora/afkagent/game/state"
	"github.com/kasuganosora/afkagent/journal"
	"github.com/kasuganosora/afkagent/world"
	"golang.org/x/time/rate"
)

// Danger is a detected explosive source.
type Danger struct {
	Name string
	Pos  mgl64.Vec3
	// Block is set when the source is a block rather than an entity.
	Block bool
}

// Avoider detects explosives and issues flee goals away from them.
type Avoider struct {
	cfg     config.ExplosiveConfig
	sess    world.Session
	st      *state.State
	journal *journal.Journal
	logOnce rate.Sometimes
}

// NewAvoider creates an Avoider bound to one session.
func NewAvoider(sess world.Session, st *state.State, j *journal.Journal, cfg config.ExplosiveConfig) *Avoider {
	return &Avoider{
		cfg:     cfg,
		sess:    sess,
		st:      st,
		journal: j,
		logOnce: rate.Sometimes{Interval: 3 * time.Second},
	}
}

// Detect returns the nearest explosive entity within the flee radius, or
// failing that the first explosive block found. Entities that only explode
// once armed count only inside the armed range.
func (a *Avoider) Detect() (Danger, bool) {
	pos := a.sess.Position()
	e := a.sess.NearestEntity(func(e world.Entity) bool {
		if !e.Valid() {
			return false
		}
		d := world.Distance(e.Position(), pos)
		if d > a.cfg.FleeRadius {
			return false
		}
		explosive, armedOnly := catalog.IsExplosiveEntity(e.Name())
		if !explosive {
			return false
		}
		if armedOnly {
			return d < a.cfg.ArmedRange
		}
		return true
	})
	if e != nil {
		return Danger{Name: e.Name(), Pos: e.Position()}, true
	}
	for _, name := range catalog.ExplosiveBlocks {
		b, ok := a.sess.FindBlock(func(b world.Block) bool { return b.Name == name }, a.cfg.FleeRadius)
		if ok {
			return Danger{Name: b.Name, Pos: b.Pos, Block: true}, true
		}
	}
	return Danger{}, false
}

// Flee blocks re-engagement for the cooldown and sets a goal SafeRadius
// blocks away from the danger. It is reissued every call; only the log is
// rate-limited.
func (a *Avoider) Flee(d Danger) {
	a.logOnce.Do(func() {
		a.journal.Warn(fmt.Sprintf("Explosive nearby: %s! Fleeing...", d.Name))
	})
	a.st.StartExplosiveCooldown(a.cfg.Cooldown)
	target := world.AwayFrom(a.sess.Position(), d.Pos, a.cfg.SafeRadius)
	a.sess.SetGoal(world.GoalNear{Pos: target, Within: 2})
}
