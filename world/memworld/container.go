package memworld

import (
	"errors"

	"github.com/kasuganosora/afkagent/world"
)

type container struct {
	w        *World
	capacity int
	locked   bool
	items    []world.Item
}

func (c *container) Items() []world.Item {
	c.w.mu.Lock()
	defer c.w.mu.Unlock()
	return append([]world.Item(nil), c.items...)
}

func (c *container) Withdraw(itemType, count int) error {
	c.w.mu.Lock()
	defer c.w.mu.Unlock()
	for i := range c.items {
		if c.items[i].Type != itemType {
			continue
		}
		it := c.items[i]
		if count > it.Count {
			count = it.Count
		}
		c.items[i].Count -= count
		if c.items[i].Count == 0 {
			c.items = append(c.items[:i], c.items[i+1:]...)
		}
		it.Count = count
		c.w.addToInventoryLocked(it)
		return nil
	}
	return errors.New("memworld: item not in container")
}

func (c *container) Deposit(itemType, count int) error {
	c.w.mu.Lock()
	defer c.w.mu.Unlock()
	slot := -1
	for i := range c.items {
		if c.items[i].Type == itemType {
			slot = i
			break
		}
	}
	if slot < 0 && len(c.items) >= c.capacity {
		return world.ErrContainerFull
	}
	it, ok := c.w.takeFromInventoryLocked(itemType, count)
	if !ok {
		return errors.New("memworld: item not in inventory")
	}
	if slot >= 0 {
		c.items[slot].Count += it.Count
	} else {
		c.items = append(c.items, it)
	}
	return nil
}

func (c *container) Close() error { return nil }
