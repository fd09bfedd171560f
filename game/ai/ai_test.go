package ai

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCtx() *Context {
	return NewContext(context.Background(), time.Now(), rand.New(rand.NewSource(1)))
}

func leaf(name string, st Status) Node {
	return &ActionNode{Name: name, Fn: func(*Context) Status { return st }}
}

func TestSelector_StopsAtFirstSuccess(t *testing.T) {
	ctx := newCtx()
	sel := &Selector{Children: []Node{
		leaf("a", StatusFailure),
		leaf("b", StatusSuccess),
		leaf("c", StatusSuccess),
	}}
	assert.Equal(t, StatusSuccess, sel.Tick(ctx))
	assert.Equal(t, []string{"a", "b"}, ctx.Trace)
}

func TestSelector_CancelledContextFails(t *testing.T) {
	cctx, cancel := context.WithCancel(context.Background())
	cancel()
	ctx := NewContext(cctx, time.Now(), nil)
	sel := &Selector{Children: []Node{leaf("a", StatusSuccess)}}
	assert.Equal(t, StatusFailure, sel.Tick(ctx))
	assert.Empty(t, ctx.Trace)
}

func TestSequence_StopsAtFailure(t *testing.T) {
	ctx := newCtx()
	seq := &Sequence{Children: []Node{
		leaf("a", StatusSuccess),
		leaf("b", StatusFailure),
		leaf("c", StatusSuccess),
	}}
	assert.Equal(t, StatusFailure, seq.Tick(ctx))
	assert.Equal(t, []string{"a", "b"}, ctx.Trace)
}

func TestGuard(t *testing.T) {
	ctx := newCtx()
	g := Guard("never", func(*Context) bool { return false }, leaf("x", StatusSuccess))
	assert.Equal(t, StatusFailure, g.Tick(ctx))
	assert.Empty(t, ctx.Trace)

	g = Guard("always", func(*Context) bool { return true }, leaf("x", StatusSuccess))
	assert.Equal(t, StatusSuccess, g.Tick(ctx))
	assert.Equal(t, []string{"x"}, ctx.Trace)
}

func TestInverterAndAlwaysSucceed(t *testing.T) {
	ctx := newCtx()
	assert.Equal(t, StatusSuccess, (&Inverter{Child: leaf("f", StatusFailure)}).Tick(ctx))
	assert.Equal(t, StatusFailure, (&Inverter{Child: leaf("s", StatusSuccess)}).Tick(ctx))
	assert.Equal(t, StatusRunning, (&Inverter{Child: leaf("r", StatusRunning)}).Tick(ctx))
	assert.Equal(t, StatusSuccess, (&AlwaysSucceed{Child: leaf("f", StatusFailure)}).Tick(ctx))
}

func TestBehaviorTree_NilRoot(t *testing.T) {
	assert.Equal(t, StatusFailure, (&BehaviorTree{}).Tick(newCtx()))
}

func TestAStar_OpenGrid(t *testing.T) {
	open := func(Point) bool { return true }
	path := AStar(open, Point{0, 0}, Point{3, 2}, 0)
	require.Len(t, path, 5)
	assert.Equal(t, Point{3, 2}, path[len(path)-1])
}

func TestAStar_Walled(t *testing.T) {
	// Wall at x == 2 for all y in [-5, 5], grid bounded to that range.
	pass := func(p Point) bool {
		if p.Y < -5 || p.Y > 5 || p.X < -5 || p.X > 5 {
			return false
		}
		return p.X != 2
	}
	assert.Nil(t, AStar(pass, Point{0, 0}, Point{4, 0}, 0))
}

func TestAStar_NodeBudget(t *testing.T) {
	open := func(Point) bool { return true }
	assert.Nil(t, AStar(open, Point{0, 0}, Point{100, 100}, 10))
}

func TestAStar_SameCell(t *testing.T) {
	path := AStar(func(Point) bool { return true }, Point{1, 1}, Point{1, 1}, 0)
	assert.NotNil(t, path)
	assert.Empty(t, path)
}
