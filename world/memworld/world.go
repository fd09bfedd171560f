// Package memworld is an in-memory world.Session used by tests and by the
// sim transport. Blocks live on an integer grid, entities are plain structs and
// every agent action is recorded so callers can assert on it.
package memworld

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/kasuganosora/afkagent/game/ai"
	"github.com/kasuganosora/afkagent/world"
)

const (
	selfID        = 1
	reach         = 4.5
	maxPathNodes  = 8192
	defaultDamage = 4
)

type key [3]int

func keyOf(pos mgl64.Vec3) key {
	f := world.Floor(pos)
	return key{int(f[0]), int(f[1]), int(f[2])}
}

func (k key) vec() mgl64.Vec3 {
	return mgl64.Vec3{float64(k[0]), float64(k[1]), float64(k[2])}
}

// World is a flat, bounded world with one agent in it.
type World struct {
	mu sync.Mutex

	// Extent bounds the known world; BlockAt outside |x|,|z| <= Extent is unknown.
	Extent int
	// GroundY is the first air layer of the flat terrain.
	GroundY int
	// Damage dealt to an entity per Attack.
	Damage float64
	// HoldSpawn stops Dialer from emitting the spawn event.
	HoldSpawn bool

	blocks     map[key]string
	unknown    map[key]bool
	containers map[key]*container
	entities   map[int64]*Entity
	nextID     int64

	username  string
	version   string
	pos       mgl64.Vec3
	yaw       float64
	health    float64
	food      float64
	timeOfDay int64
	raining   bool
	sleeping  bool
	inventory []world.Item
	held      *world.Item

	armorEquips int
	goal        world.Goal
	goalSeq     int

	rec Recorder

	events chan world.Event
	closed bool
}

// Recorder holds everything the agent did.
type Recorder struct {
	Goals        []world.Goal
	Gotos        []world.Goal
	Attacks      []int64
	Chats        []string
	Looks        []mgl64.Vec3
	Swings       int
	Controls     []ControlChange
	Equipped     []string
	ResourcePack []bool
	Stops        int
	Opened       []mgl64.Vec3
}

// ControlChange is one SetControl call.
type ControlChange struct {
	Control world.Control
	On      bool
}

// New creates a flat world with the agent standing at the origin.
func New(username string) *World {
	w := &World{
		Extent:     64,
		GroundY:    64,
		Damage:     defaultDamage,
		blocks:     make(map[key]string),
		unknown:    make(map[key]bool),
		containers: make(map[key]*container),
		entities:   make(map[int64]*Entity),
		nextID:     selfID + 1,
		username:   username,
		version:    "1.20.4",
		health:     20,
		food:       20,
		timeOfDay:  1000,
		events:     make(chan world.Event, 256),
	}
	w.pos = mgl64.Vec3{0.5, float64(w.GroundY), 0.5}
	return w
}

// ---- setup helpers ----

// SetBlock places a named block.
func (w *World) SetBlock(pos mgl64.Vec3, name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	k := keyOf(pos)
	w.blocks[k] = name
	delete(w.unknown, k)
}

// SetUnknown marks a block as not loaded.
func (w *World) SetUnknown(pos mgl64.Vec3) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.unknown[keyOf(pos)] = true
}

// AddContainer places a container block holding items.
// capacity is the number of distinct stacks it can hold.
func (w *World) AddContainer(pos mgl64.Vec3, name string, capacity int, items ...world.Item) {
	w.mu.Lock()
	defer w.mu.Unlock()
	k := keyOf(pos)
	w.blocks[k] = name
	w.containers[k] = &container{w: w, capacity: capacity, items: append([]world.Item(nil), items...)}
}

// LockContainer makes OpenContainer fail for the container at pos.
func (w *World) LockContainer(pos mgl64.Vec3) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if c, ok := w.containers[keyOf(pos)]; ok {
		c.locked = true
	}
}

// ContainerItems returns a copy of the items in the container at pos.
func (w *World) ContainerItems(pos mgl64.Vec3) []world.Item {
	w.mu.Lock()
	defer w.mu.Unlock()
	if c, ok := w.containers[keyOf(pos)]; ok {
		return append([]world.Item(nil), c.items...)
	}
	return nil
}

// AddEntity spawns an entity at pos with the given health.
func (w *World) AddEntity(name string, kind world.EntityKind, pos mgl64.Vec3, health float64) *Entity {
	w.mu.Lock()
	defer w.mu.Unlock()
	e := &Entity{id: w.nextID, name: name, kind: kind, pos: pos, height: 1.8, health: health, alive: true}
	w.nextID++
	w.entities[e.id] = e
	return e
}

// AddPlayer spawns another player.
func (w *World) AddPlayer(username string, pos mgl64.Vec3) *Entity {
	e := w.AddEntity("player", world.KindPlayer, pos, 20)
	e.mu.Lock()
	e.username = username
	e.mu.Unlock()
	return e
}

// Give adds items to the agent inventory.
func (w *World) Give(items ...world.Item) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, it := range items {
		w.addToInventoryLocked(it)
	}
}

// SetPosition teleports the agent.
func (w *World) SetPosition(pos mgl64.Vec3) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pos = pos
}

// SetHealth sets agent health and emits a health event.
func (w *World) SetHealth(hp float64) {
	w.mu.Lock()
	w.health = hp
	w.mu.Unlock()
	w.Emit(world.Event{Type: world.EventHealth})
}

// SetFood sets agent food level.
func (w *World) SetFood(food float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.food = food
}

// SetTime sets the time of day and weather.
func (w *World) SetTime(timeOfDay int64, raining bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.timeOfDay = timeOfDay
	w.raining = raining
}

// Hurt damages the agent and emits the health and entity-hurt events.
func (w *World) Hurt(amount float64) {
	w.mu.Lock()
	w.health = math.Max(0, w.health-amount)
	w.mu.Unlock()
	w.Emit(world.Event{Type: world.EventHealth})
	w.Emit(world.Event{Type: world.EventEntityHurt, Entity: w.self()})
}

// Swing emits an arm swing from e.
func (w *World) Swing(e *Entity) {
	w.Emit(world.Event{Type: world.EventEntitySwing, Entity: e})
}

// Emit pushes an event onto the stream. Dropped once the session ended.
func (w *World) Emit(ev world.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	select {
	case w.events <- ev:
	default:
	}
	if ev.Type == world.EventEnd {
		w.closed = true
		close(w.events)
	}
}

// Recorded returns a snapshot of recorded agent actions.
func (w *World) Recorded() Recorder {
	w.mu.Lock()
	defer w.mu.Unlock()
	r := w.rec
	r.Goals = append([]world.Goal(nil), w.rec.Goals...)
	r.Gotos = append([]world.Goal(nil), w.rec.Gotos...)
	r.Attacks = append([]int64(nil), w.rec.Attacks...)
	r.Chats = append([]string(nil), w.rec.Chats...)
	r.Controls = append([]ControlChange(nil), w.rec.Controls...)
	return r
}

// LastGoal returns the most recent SetGoal target, or nil.
func (w *World) LastGoal() world.Goal {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.rec.Goals) == 0 {
		return nil
	}
	return w.rec.Goals[len(w.rec.Goals)-1]
}

// ArmorEquips counts EquipArmor calls.
func (w *World) ArmorEquips() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.armorEquips
}

func (w *World) self() *Entity {
	return &Entity{id: selfID, name: "player", username: w.username, kind: world.KindPlayer, alive: true, height: 1.8}
}

// ---- world.Session ----

func (w *World) SelfID() int64    { return selfID }
func (w *World) Username() string { return w.username }
func (w *World) Version() string  { return w.version }

func (w *World) Position() mgl64.Vec3 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pos
}

func (w *World) Yaw() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.yaw
}

func (w *World) Health() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.health
}

func (w *World) Food() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.food
}

func (w *World) TimeOfDay() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.timeOfDay
}

func (w *World) IsRaining() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.raining
}

func (w *World) IsSleeping() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sleeping
}

func (w *World) NearestEntity(match func(world.Entity) bool) world.Entity {
	w.mu.Lock()
	pos := w.pos
	candidates := make([]*Entity, 0, len(w.entities))
	for _, e := range w.entities {
		candidates = append(candidates, e)
	}
	w.mu.Unlock()

	var best *Entity
	bestDist := math.MaxFloat64
	for _, e := range candidates {
		if !e.Valid() || !match(e) {
			continue
		}
		d := world.Distance(e.Position(), pos)
		if d < bestDist || (d == bestDist && best != nil && e.id < best.id) {
			best, bestDist = e, d
		}
	}
	if best == nil {
		return nil
	}
	return best
}

func (w *World) FindBlock(match func(world.Block) bool, maxDistance float64) (world.Block, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var (
		found    world.Block
		ok       bool
		bestDist = math.MaxFloat64
	)
	for k, name := range w.blocks {
		b := world.Block{Name: name, Pos: k.vec()}
		d := world.Distance(b.Pos, w.pos)
		if d > maxDistance || !match(b) {
			continue
		}
		if d < bestDist {
			found, ok, bestDist = b, true, d
		}
	}
	return found, ok
}

func (w *World) BlockAt(pos mgl64.Vec3) (world.Block, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.blockAtLocked(keyOf(pos))
}

func (w *World) blockAtLocked(k key) (world.Block, bool) {
	if w.unknown[k] {
		return world.Block{}, false
	}
	if name, ok := w.blocks[k]; ok {
		return world.Block{Name: name, Pos: k.vec()}, true
	}
	if abs(k[0]) > w.Extent || abs(k[2]) > w.Extent {
		return world.Block{}, false
	}
	name := "air"
	switch {
	case k[1] == w.GroundY-1:
		name = "grass_block"
	case k[1] < w.GroundY-1:
		name = "stone"
	}
	return world.Block{Name: name, Pos: k.vec()}, true
}

func (w *World) Inventory() []world.Item {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]world.Item(nil), w.inventory...)
}

func (w *World) HeldItem() (world.Item, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.held == nil {
		return world.Item{}, false
	}
	return *w.held, true
}

func (w *World) Equip(ctx context.Context, item world.Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, it := range w.inventory {
		if it.Type == item.Type {
			held := it
			w.held = &held
			w.rec.Equipped = append(w.rec.Equipped, it.Name)
			return nil
		}
	}
	return fmt.Errorf("memworld: %s not in inventory", item.Name)
}

func (w *World) EquipArmor() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.armorEquips++
	return nil
}

func (w *World) SetGoal(g world.Goal) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.goal = g
	w.goalSeq++
	w.rec.Goals = append(w.rec.Goals, g)
	if g == nil {
		return
	}
	if dest, ok := w.planLocked(g); ok {
		w.pos = dest
	}
}

func (w *World) Goto(ctx context.Context, g world.Goal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return world.ErrSessionClosed
	}
	w.goal = g
	w.goalSeq++
	w.rec.Gotos = append(w.rec.Gotos, g)
	dest, ok := w.planLocked(g)
	if !ok {
		return world.ErrNoPath
	}
	w.pos = dest
	return nil
}

func (w *World) StopPathing() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.goal = nil
	w.rec.Stops++
}

// planLocked runs A* across the walkable layer and returns the final position.
func (w *World) planLocked(g world.Goal) (mgl64.Vec3, bool) {
	from := keyOf(w.pos)
	target := keyOf(g.Target())
	y := from[1]
	walkable := func(p ai.Point) bool {
		b, ok := w.blockAtLocked(key{p.X, y, p.Y})
		if !ok {
			return false
		}
		return isPassable(b.Name)
	}
	goal := ai.Point{X: target[0], Y: target[2]}
	endOK := func(p ai.Point) bool { return walkable(p) || p == goal }
	path := ai.AStar(endOK, ai.Point{X: from[0], Y: from[2]}, goal, maxPathNodes)
	if path == nil {
		return mgl64.Vec3{}, false
	}
	end := ai.Point{X: from[0], Y: from[2]}
	for _, p := range path {
		if !walkable(p) {
			break
		}
		end = p
	}
	return mgl64.Vec3{float64(end.X) + 0.5, float64(y), float64(end.Y) + 0.5}, true
}

func (w *World) OpenContainer(ctx context.Context, b world.Block) (world.Container, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rec.Opened = append(w.rec.Opened, b.Pos)
	c, ok := w.containers[keyOf(b.Pos)]
	if !ok {
		return nil, fmt.Errorf("memworld: no container at %v", b.Pos)
	}
	if world.Distance(b.Pos.Add(mgl64.Vec3{0.5, 0.5, 0.5}), w.pos) > reach+1 {
		return nil, errors.New("memworld: container out of reach")
	}
	if c.locked {
		return nil, errors.New("memworld: container locked")
	}
	return c, nil
}

func (w *World) Sleep(ctx context.Context, bed world.Block) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timeOfDay < 12542 && !w.raining {
		return errors.New("memworld: you can only sleep at night")
	}
	w.sleeping = true
	return nil
}

func (w *World) Attack(target world.Entity) {
	w.mu.Lock()
	w.rec.Attacks = append(w.rec.Attacks, target.ID())
	e := w.entities[target.ID()]
	dmg := w.Damage
	w.mu.Unlock()
	if e != nil {
		e.hurt(dmg)
	}
}

func (w *World) LookAt(pos mgl64.Vec3) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rec.Looks = append(w.rec.Looks, pos)
}

func (w *World) Look(yaw, pitch float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.yaw = yaw
}

func (w *World) SwingArm(string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rec.Swings++
}

func (w *World) SetControl(c world.Control, on bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rec.Controls = append(w.rec.Controls, ControlChange{Control: c, On: on})
}

func (w *World) Chat(text string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rec.Chats = append(w.rec.Chats, text)
}

func (w *World) RespondResourcePack(accept bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rec.ResourcePack = append(w.rec.ResourcePack, accept)
}

func (w *World) Events() <-chan world.Event { return w.events }

func (w *World) Quit(reason string) {
	w.Emit(world.Event{Type: world.EventEnd, Text: reason})
}

// ---- inventory helpers ----

func (w *World) addToInventoryLocked(it world.Item) {
	for i := range w.inventory {
		if w.inventory[i].Type == it.Type {
			w.inventory[i].Count += it.Count
			return
		}
	}
	w.inventory = append(w.inventory, it)
}

func (w *World) takeFromInventoryLocked(itemType, count int) (world.Item, bool) {
	for i := range w.inventory {
		if w.inventory[i].Type != itemType {
			continue
		}
		it := w.inventory[i]
		if count > it.Count {
			count = it.Count
		}
		w.inventory[i].Count -= count
		if w.inventory[i].Count == 0 {
			w.inventory = append(w.inventory[:i], w.inventory[i+1:]...)
		}
		it.Count = count
		return it, true
	}
	return world.Item{}, false
}

func isPassable(name string) bool {
	switch name {
	case "air", "cave_air", "void_air", "grass", "short_grass", "tall_grass":
		return true
	}
	return false
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
