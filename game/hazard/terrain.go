package hazard

import (
	"math"
	"math/rand"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/kasuganosora/afkagent/config"
	"github.com/kasuganosora/afkagent/game/catalog"
	"github.com/kasuganosora/afkagent/world"
)

// Terrain answers "is it safe to stand here" questions.
type Terrain struct {
	cfg  config.HazardConfig
	sess world.Session
}

// NewTerrain creates a Terrain bound to one session.
func NewTerrain(sess world.Session, cfg config.HazardConfig) *Terrain {
	return &Terrain{cfg: cfg, sess: sess}
}

// IsDangerous reports whether standing at pos is unsafe: a hazardous block,
// lava below, a drop deeper than MaxDrop, or an unknown block at pos.
func (t *Terrain) IsDangerous(pos mgl64.Vec3) bool {
	b, ok := t.sess.BlockAt(pos)
	if !ok {
		return true
	}
	if catalog.IsDangerousBlock(b.Name) {
		return true
	}
	drop := 0
	for dy := 1; dy <= t.cfg.ScanDepth; dy++ {
		below, ok := t.sess.BlockAt(world.Offset(pos, -float64(dy)))
		switch {
		case !ok || catalog.IsAir(below.Name):
			drop++
			continue
		case below.Name == "lava":
			return true
		}
		break
	}
	return drop > t.cfg.MaxDrop
}

// sides are the horizontal neighbours checked around the feet.
var sides = [4]mgl64.Vec3{{1, 0, 0}, {-1, 0, 0}, {0, 0, 1}, {0, 0, -1}}

// Standing reports whether the agent's feet or the block under them is
// dangerous, or a hazardous block touches the feet from the side. Drops and
// unknown blocks next to the agent do not count; only contact hazards do.
func (t *Terrain) Standing() bool {
	pos := t.sess.Position()
	if t.IsDangerous(pos) || t.IsDangerous(world.Offset(pos, -1)) {
		return true
	}
	for _, d := range sides {
		if b, ok := t.sess.BlockAt(pos.Add(d)); ok && catalog.IsDangerousBlock(b.Name) {
			return true
		}
	}
	return false
}

// SafeSpot samples up to SafeSpotTries random points around anchor, between
// MinWander and radius away, and returns the first one with solid, harmless
// ground under two free blocks.
func (t *Terrain) SafeSpot(anchor mgl64.Vec3, radius float64, rng *rand.Rand) (mgl64.Vec3, bool) {
	baseY := math.Floor(t.sess.Position()[1])
	span := math.Max(0, radius-t.cfg.MinWander)
	for i := 0; i < t.cfg.SafeSpotTries; i++ {
		angle := rng.Float64() * 2 * math.Pi
		dist := t.cfg.MinWander + rng.Float64()*span
		tx := anchor[0] + math.Cos(angle)*dist
		tz := anchor[2] + math.Sin(angle)*dist
		if spot, ok := t.groundAt(tx, baseY, tz); ok {
			return spot, true
		}
	}
	return mgl64.Vec3{}, false
}

// groundAt scans from baseY+5 down to baseY-10 for the first standable
// surface. Only the first surface found is considered.
func (t *Terrain) groundAt(tx, baseY, tz float64) (mgl64.Vec3, bool) {
	col := func(y float64) (world.Block, bool) {
		return t.sess.BlockAt(mgl64.Vec3{math.Floor(tx), y, math.Floor(tz)})
	}
	for dy := 5.0; dy >= -10; dy-- {
		y := baseY + dy
		b, ok := col(y)
		if !ok || catalog.IsAir(b.Name) || b.Name == "lava" || b.Name == "water" {
			continue
		}
		head1, ok1 := col(y + 1)
		head2, ok2 := col(y + 2)
		if !ok1 || !ok2 || !catalog.IsAir(head1.Name) || !catalog.IsAir(head2.Name) {
			continue
		}
		spot := mgl64.Vec3{tx, y + 1, tz}
		if t.IsDangerous(spot) {
			return mgl64.Vec3{}, false
		}
		return spot, true
	}
	return mgl64.Vec3{}, false
}
