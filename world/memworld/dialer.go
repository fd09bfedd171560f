package memworld

import (
	"context"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/kasuganosora/afkagent/world"
)

// Dialer opens simulated sessions. A successful Dial emits a spawn event on
// the new world unless it holds the spawn.
type Dialer struct {
	// Build creates the world for one dial. Nil builds a flat world with
	// Scenery on it. A non-nil error fails the dial.
	Build func(opts world.Options) (*World, error)

	mu    sync.Mutex
	dials []world.Options
	last  *World
}

// Dial implements world.Dialer.
func (d *Dialer) Dial(ctx context.Context, opts world.Options) (world.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	build := d.Build
	if build == nil {
		build = func(o world.Options) (*World, error) {
			w := New(o.Username)
			Scenery(w)
			return w, nil
		}
	}
	w, err := build(opts)

	d.mu.Lock()
	d.dials = append(d.dials, opts)
	if err == nil {
		d.last = w
	}
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if opts.Version != "" && opts.Version != "false" {
		w.mu.Lock()
		w.version = opts.Version
		w.mu.Unlock()
	}
	if !w.HoldSpawn {
		w.Emit(world.Event{Type: world.EventSpawn})
	}
	return w, nil
}

// Dials returns the options of every Dial call so far.
func (d *Dialer) Dials() []world.Options {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]world.Options(nil), d.dials...)
}

// Last returns the world opened by the latest successful Dial.
func (d *Dialer) Last() *World {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// Scenery furnishes a flat world for the sim transport: a stocked chest and a
// bed near spawn, a pig to hunt and a zombie at the edge of the wander radius.
func Scenery(w *World) {
	y := float64(w.GroundY)
	w.AddContainer(mgl64.Vec3{3, y, 3}, "chest", 27, world.Item{Type: 10, Name: "bread", Count: 16})
	w.SetBlock(mgl64.Vec3{-3, y, 3}, "red_bed")
	w.AddEntity("pig", world.KindAnimal, mgl64.Vec3{8.5, y, -6.5}, 10)
	w.AddEntity("zombie", world.KindHostile, mgl64.Vec3{-20.5, y, -20.5}, 20)
}
