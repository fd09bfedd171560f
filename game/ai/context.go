package ai

import (
	"context"
	"math/rand"
	"time"
)

// Context is passed to every behavior tree node during a tick.
type Context struct {
	// Ctx is cancelled when the owning session ends; blocking leaves must honor it.
	Ctx  context.Context
	Now  time.Time
	Rand *rand.Rand
	// Trace names the leaves that ran this tick, in order.
	Trace []string
}

// NewContext creates a tick context.
func NewContext(ctx context.Context, now time.Time, rng *rand.Rand) *Context {
	return &Context{Ctx: ctx, Now: now, Rand: rng}
}

// Visit records that a named leaf ran.
func (c *Context) Visit(name string) {
	c.Trace = append(c.Trace, name)
}

// Done reports whether the session context has been cancelled.
func (c *Context) Done() bool {
	return c.Ctx != nil && c.Ctx.Err() != nil
}
