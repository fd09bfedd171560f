// Package sourcing implements the busy operations that move items: food
// sourcing from containers or by hunting, and stashing loot into a container.
package sourcing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kasuganosora/afkagent/config"
	"github.com/kasuganosora/afkagent/game/catalog"
	"github.com/kasuganosora/afkagent/game/state"
	"github.com/kasuganosora/afkagent/journal"
	"github.com/kasuganosora/afkagent/world"
)

// Busy owners and rate-limit slot names.
const (
	OwnerFood  = "food"
	OwnerStash = "stash"

	SlotFood  = "sourcing.food"
	SlotStash = "sourcing.stash"
)

// errInterrupted aborts an item transfer once combat claims the agent.
var errInterrupted = errors.New("interrupted by combat")

// Outcome is the result of one sourcing operation.
type Outcome int

const (
	// OutcomeBusy means another operation held the busy flag.
	OutcomeBusy Outcome = iota
	// OutcomeNotDue means the rate-limit slot was not ready.
	OutcomeNotDue
	// OutcomeNone means the operation ran without result.
	OutcomeNone
	OutcomeContainer
	OutcomeHunted
	OutcomeStashed
	// OutcomeAborted means the session context ended or combat took over.
	OutcomeAborted
)

var outcomeNames = map[Outcome]string{
	OutcomeBusy:      "busy",
	OutcomeNotDue:    "not_due",
	OutcomeNone:      "none",
	OutcomeContainer: "container",
	OutcomeHunted:    "hunted",
	OutcomeStashed:   "stashed",
	OutcomeAborted:   "aborted",
}

func (o Outcome) String() string { return outcomeNames[o] }

// Engine runs food and stash operations for one session.
type Engine struct {
	food    config.FoodConfig
	stash   config.StashConfig
	reach   float64
	sess    world.Session
	st      *state.State
	journal *journal.Journal
}

// New creates an Engine. reach is the melee distance used while hunting,
// normally the combat attack range.
func New(sess world.Session, st *state.State, j *journal.Journal, food config.FoodConfig, stash config.StashConfig, reach float64) *Engine {
	return &Engine{food: food, stash: stash, reach: reach, sess: sess, st: st, journal: j}
}

// NeedsFood reports whether hunger or the carried food supply is low.
func (e *Engine) NeedsFood() bool {
	return e.sess.Food() <= e.food.HungerThreshold || catalog.FoodCount(e.sess.Inventory()) < e.food.MinFoodSlots
}

// FoodDue reports whether food sourcing should run now.
func (e *Engine) FoodDue() bool {
	return e.NeedsFood() && e.st.SlotReady(SlotFood, e.food.Interval)
}

// SourceFood takes food from the first nearby container holding any and,
// failing that, hunts the nearest food animal. It holds the busy flag for
// its whole duration.
func (e *Engine) SourceFood(ctx context.Context) Outcome {
	if !e.st.TryAcquire(OwnerFood) {
		return OutcomeBusy
	}
	defer e.st.Release(OwnerFood)
	if !e.st.ClaimSlot(SlotFood, e.food.Interval) {
		return OutcomeNotDue
	}

	carried := catalog.FoodCount(e.sess.Inventory())
	e.journal.Brain("Food low, looking for food...",
		fmt.Sprintf("Food: %.0f | Carried: %d", e.sess.Food(), carried))

	if n := e.fromContainers(ctx); n > 0 {
		return OutcomeContainer
	}
	if ctx.Err() != nil || e.st.InCombat() {
		return OutcomeAborted
	}
	return e.hunt(ctx)
}

// fromContainers walks container kinds in catalog order and withdraws every
// food stack from the first one that holds any. It returns the number of
// items taken, and stops early when combat starts.
func (e *Engine) fromContainers(ctx context.Context) int {
	for _, name := range catalog.Containers {
		if ctx.Err() != nil || e.st.InCombat() {
			return 0
		}
		block, ok := e.sess.FindBlock(func(b world.Block) bool { return b.Name == name }, e.food.ChestSearchRadius)
		if !ok {
			continue
		}
		n, err := e.withdrawFood(ctx, block)
		if errors.Is(err, errInterrupted) {
			e.journal.Debug("Food run interrupted by combat", fmt.Sprintf("Took: %d", n))
			return n
		}
		if err != nil {
			e.journal.Debug(fmt.Sprintf("Could not use %s", name), err.Error())
			continue
		}
		if n > 0 {
			e.journal.Success(fmt.Sprintf("Took %d food from %s.", n, name))
			return n
		}
	}
	return 0
}

func (e *Engine) withdrawFood(ctx context.Context, block world.Block) (int, error) {
	if err := e.sess.Goto(ctx, world.GoalGetToBlock{Pos: block.Pos}); err != nil {
		return 0, fmt.Errorf("path to %s: %w", block.Name, err)
	}
	c, err := e.sess.OpenContainer(ctx, block)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", block.Name, err)
	}
	defer c.Close()

	taken := 0
	for _, it := range c.Items() {
		if !catalog.IsFood(it.Name) {
			continue
		}
		if e.st.InCombat() {
			return taken, errInterrupted
		}
		count := min(it.Count, e.food.MaxWithdraw)
		if err := c.Withdraw(it.Type, count); err != nil {
			e.journal.Debug("Withdraw failed", err.Error())
			continue
		}
		taken += count
	}
	return taken, nil
}

// hunt chases the nearest food animal within HuntRadius. The loop ends when
// the animal is gone, after HuntMaxHits attacks, after HuntTimeout, or when
// combat claims the agent.
func (e *Engine) hunt(ctx context.Context) Outcome {
	pos := e.sess.Position()
	animal := e.sess.NearestEntity(func(o world.Entity) bool {
		return catalog.IsFoodAnimal(o.Name()) && world.Distance(o.Position(), pos) <= e.food.HuntRadius
	})
	if animal == nil {
		e.journal.Warn("No food in containers and no animals nearby.")
		return OutcomeNone
	}
	name := world.DisplayName(animal)
	e.journal.Brain(fmt.Sprintf("Hunting %s for food...", name))
	e.equipWeapon(ctx)

	hctx, cancel := context.WithTimeout(ctx, e.food.HuntTimeout)
	defer cancel()
	ticker := time.NewTicker(e.food.HuntTickInterval)
	defer ticker.Stop()

	hits := 0
	for {
		if !animal.Valid() {
			e.journal.Success(fmt.Sprintf("Hunted %s.", name), fmt.Sprintf("Hits: %d", hits))
			return OutcomeHunted
		}
		if hits >= e.food.HuntMaxHits {
			e.sess.StopPathing()
			e.journal.Warn(fmt.Sprintf("Gave up hunting %s.", name), fmt.Sprintf("Hits: %d", hits))
			return OutcomeNone
		}
		if e.st.InCombat() {
			e.journal.Debug("Hunt interrupted by combat")
			return OutcomeAborted
		}

		target := animal.Position()
		if world.Distance(target, e.sess.Position()) > e.reach {
			e.sess.SetGoal(world.GoalFollow{Entity: animal, Within: 1})
		} else {
			e.sess.LookAt(world.Offset(target, animal.Height()*0.5))
			e.sess.Attack(animal)
			hits++
		}

		select {
		case <-hctx.Done():
			e.sess.StopPathing()
			if errors.Is(hctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
				e.journal.Warn(fmt.Sprintf("Hunting %s timed out.", name))
				return OutcomeNone
			}
			return OutcomeAborted
		case <-ticker.C:
		}
	}
}

func (e *Engine) equipWeapon(ctx context.Context) {
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
