package sourcing

import (
	"context"
	"errors"
	"fmt"

	"github.com/kasuganosora/afkagent/game/catalog"
	"github.com/kasuganosora/afkagent/world"
)

// ShouldKeep reports whether an item stays in the inventory when stashing.
func (e *Engine) ShouldKeep(it world.Item) bool {
	switch {
	case e.stash.KeepFood && catalog.IsFood(it.Name):
		return true
	case e.stash.KeepTools && catalog.IsTool(it.Name):
		return true
	case e.stash.KeepArmor && catalog.IsArmor(it.Name):
		return true
	}
	return false
}

// Stashable returns the carried stacks ShouldKeep rejects.
func (e *Engine) Stashable() []world.Item {
	var out []world.Item
	for _, it := range e.sess.Inventory() {
		if !e.ShouldKeep(it) {
			out = append(out, it)
		}
	}
	return out
}

// StashDue reports whether stashing should run now.
func (e *Engine) StashDue() bool {
	return e.st.SlotReady(SlotStash, e.stash.Interval) && len(e.Stashable()) > 0
}

// StashLoot deposits stashable stacks into the first container found. It
// stops at the first rejected deposit, never tries a second container, and
// gives way as soon as combat starts.
func (e *Engine) StashLoot(ctx context.Context) Outcome {
	if !e.st.TryAcquire(OwnerStash) {
		return OutcomeBusy
	}
	defer e.st.Release(OwnerStash)
	if !e.st.ClaimSlot(SlotStash, e.stash.Interval) {
		return OutcomeNotDue
	}

	items := e.Stashable()
	if len(items) == 0 {
		return OutcomeNone
	}
	if e.st.InCombat() {
		return OutcomeAborted
	}
	block, ok := e.firstContainer()
	if !ok {
		e.journal.Debug("No container nearby to stash into")
		return OutcomeNone
	}

	n, err := e.deposit(ctx, block, items)
	if errors.Is(err, errInterrupted) {
		e.journal.Debug("Stash interrupted by combat", fmt.Sprintf("Stashed: %d", n))
		return OutcomeAborted
	}
	if err != nil {
		if ctx.Err() != nil {
			return OutcomeAborted
		}
		e.journal.Warn(fmt.Sprintf("Stash into %s failed", block.Name), err.Error())
		return OutcomeNone
	}
	if n == 0 {
		return OutcomeNone
	}
	e.journal.Success(fmt.Sprintf("Stashed %d items into %s", n, block.Name))
	return OutcomeStashed
}

func (e *Engine) firstContainer() (world.Block, bool) {
	for _, name := range catalog.Containers {
		if b, ok := e.sess.FindBlock(func(b world.Block) bool { return b.Name == name }, e.stash.SearchRadius); ok {
			return b, true
		}
	}
	return world.Block{}, false
}

func (e *Engine) deposit(ctx context.Context, block world.Block, items []world.Item) (int, error) {
	if err := e.sess.Goto(ctx, world.GoalGetToBlock{Pos: block.Pos}); err != nil {
		return 0, fmt.Errorf("path to %s: %w", block.Name, err)
	}
	c, err := e.sess.OpenContainer(ctx, block)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", block.Name, err)
	}
	defer c.Close()

	n := 0
	for _, it := range items {
		if e.st.InCombat() {
			return n, errInterrupted
		}
		if err := c.Deposit(it.Type, it.Count); err != nil {
			if !errors.Is(err, world.ErrContainerFull) {
				e.journal.Debug("Deposit failed", err.Error())
			}
			break
		}
		n += it.Count
	}
	return n, nil
}
