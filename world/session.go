// Package world declares the game session contract the agent drives.
// The protocol client behind it (encoding, movement, pathfinding) is provided
// by an implementation of Dialer; the agent never depends on a concrete one.
package world

import (
	"context"
	"errors"

	"github.com/go-gl/mathgl/mgl64"
)

var (
	// ErrNoPath is returned by Goto when the goal cannot be reached.
	ErrNoPath = errors.New("world: no path to goal")
	// ErrGoalChanged is returned by Goto when another goal replaced it.
	ErrGoalChanged = errors.New("world: goal changed")
	// ErrContainerFull is returned by Container.Deposit when nothing more fits.
	ErrContainerFull = errors.New("world: container full")
	// ErrSessionClosed is returned by blocking calls after the session ended.
	ErrSessionClosed = errors.New("world: session closed")
)

// Options describes how to open a session.
type Options struct {
	Host         string
	Port         int
	Username     string
	Password     string
	Auth         string
	Version      string
	ViewDistance int
}

// Dialer opens sessions. A failed Dial never returns a half-open session.
type Dialer interface {
	Dial(ctx context.Context, opts Options) (Session, error)
}

// Control is a movement control state.
type Control string

const (
	ControlForward Control = "forward"
	ControlJump    Control = "jump"
	ControlSneak   Control = "sneak"
	ControlSprint  Control = "sprint"
)

// Session is one live connection. It is discarded on disconnect; nothing may
// keep using it after its End event.
type Session interface {
	// SelfID is the entity id of the agent itself.
	SelfID() int64
	Username() string
	Version() string

	Position() mgl64.Vec3
	Yaw() float64
	Health() float64
	Food() float64
	TimeOfDay() int64
	IsRaining() bool
	IsSleeping() bool

	// NearestEntity returns the closest valid entity accepted by match, or nil.
	NearestEntity(match func(Entity) bool) Entity
	// FindBlock returns the closest block accepted by match within maxDistance.
	FindBlock(match func(Block) bool, maxDistance float64) (Block, bool)
	// BlockAt reports the block at pos. ok is false when the block is unknown
	// (unloaded chunk, out of view).
	BlockAt(pos mgl64.Vec3) (Block, bool)

	Inventory() []Item
	HeldItem() (Item, bool)
	Equip(ctx context.Context, item Item) error
	EquipArmor() error

	// SetGoal replaces the current movement goal without waiting.
	SetGoal(g Goal)
	// Goto moves to g and blocks until reached, failed, replaced or ctx is done.
	Goto(ctx context.Context, g Goal) error
	StopPathing()

	OpenContainer(ctx context.Context, b Block) (Container, error)
	Sleep(ctx context.Context, bed Block) error

	Attack(e Entity)
	LookAt(pos mgl64.Vec3)
	Look(yaw, pitch float64)
	SwingArm(hand string)
	SetControl(c Control, on bool)
	Chat(text string)
	RespondResourcePack(accept bool)

	// Events delivers session events in order. It is closed after End.
	Events() <-chan Event
	// Quit ends the session; an End event follows.
	Quit(reason string)
}
