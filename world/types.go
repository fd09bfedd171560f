package world

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// EntityKind is the protocol's coarse entity classification.
type EntityKind string

const (
	KindPlayer  EntityKind = "player"
	KindMob     EntityKind = "mob"
	KindHostile EntityKind = "hostile"
	KindAnimal  EntityKind = "animal"
	KindObject  EntityKind = "object"
)

// Entity is a live reference into the world model. Position and Valid may
// change between calls; an entity can despawn at any moment.
type Entity interface {
	ID() int64
	// Name is the lowercase type name, e.g. "zombie" or "player".
	Name() string
	// Username is set for players only.
	Username() string
	Kind() EntityKind
	Position() mgl64.Vec3
	Height() float64
	Valid() bool
}

// DisplayName returns the best human-readable name for e.
func DisplayName(e Entity) string {
	if e == nil {
		return "unknown"
	}
	if u := e.Username(); u != "" {
		return u
	}
	if n := e.Name(); n != "" {
		return n
	}
	return "unknown"
}

// Block is a snapshot of one block.
type Block struct {
	Name string
	Pos  mgl64.Vec3
}

// Item is an inventory stack.
type Item struct {
	Type  int
	Name  string
	Count int
}

// Container is an open container window.
type Container interface {
	Items() []Item
	Withdraw(itemType, count int) error
	Deposit(itemType, count int) error
	Close() error
}

// Goal is a pathfinding target.
type Goal interface {
	Target() mgl64.Vec3
	Range() float64
}

// GoalGetToBlock reaches a block so it can be interacted with.
type GoalGetToBlock struct {
	Pos mgl64.Vec3
}

func (g GoalGetToBlock) Target() mgl64.Vec3 { return g.Pos }
func (g GoalGetToBlock) Range() float64     { return 1 }

// GoalFollow keeps within Within blocks of a moving entity.
type GoalFollow struct {
	Entity Entity
	Within float64
}

func (g GoalFollow) Target() mgl64.Vec3 {
	if g.Entity == nil {
		return mgl64.Vec3{}
	}
	return g.Entity.Position()
}
func (g GoalFollow) Range() float64 { return g.Within }

// GoalNear reaches any point within Within blocks of Pos.
type GoalNear struct {
	Pos    mgl64.Vec3
	Within float64
}

func (g GoalNear) Target() mgl64.Vec3 { return g.Pos }
func (g GoalNear) Range() float64     { return g.Within }

// Floor returns pos with every component rounded down to a block coordinate.
func Floor(pos mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{math.Floor(pos[0]), math.Floor(pos[1]), math.Floor(pos[2])}
}

// Distance returns the euclidean distance between a and b.
func Distance(a, b mgl64.Vec3) float64 {
	return a.Sub(b).Len()
}

// AwayFrom returns the point dist blocks from from, along the horizontal
// direction pointing away from danger. When the two coincide it steps along +X.
func AwayFrom(from, danger mgl64.Vec3, dist float64) mgl64.Vec3 {
	dx := from[0] - danger[0]
	dz := from[2] - danger[2]
	l := math.Hypot(dx, dz)
	if l == 0 {
		dx, l = 1, 1
	}
	return mgl64.Vec3{from[0] + dx/l*dist, from[1], from[2] + dz/l*dist}
}

// Offset returns pos moved by dy blocks vertically.
func Offset(pos mgl64.Vec3, dy float64) mgl64.Vec3 {
	return mgl64.Vec3{pos[0], pos[1] + dy, pos[2]}
}
