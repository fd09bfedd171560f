package memworld

import (
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/kasuganosora/afkagent/world"
)

// Entity is a simulated entity.
type Entity struct {
	mu       sync.Mutex
	id       int64
	name     string
	username string
	kind     world.EntityKind
	pos      mgl64.Vec3
	height   float64
	health   float64
	alive    bool
}

func (e *Entity) ID() int64              { return e.id }
func (e *Entity) Name() string           { return e.name }
func (e *Entity) Kind() world.EntityKind { return e.kind }

func (e *Entity) Username() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.username
}

func (e *Entity) Position() mgl64.Vec3 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pos
}

func (e *Entity) Height() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.height
}

func (e *Entity) Valid() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.alive
}

// MoveTo teleports the entity.
func (e *Entity) MoveTo(pos mgl64.Vec3) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pos = pos
}

// Despawn invalidates the entity.
func (e *Entity) Despawn() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.alive = false
}

// Health returns the remaining health.
func (e *Entity) Health() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.health
}

func (e *Entity) hurt(dmg float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.alive {
		return
	}
	e.health -= dmg
	if e.health <= 0 {
		e.health = 0
		e.alive = false
	}
}
