package combat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/kasuganosora/afkagent/config"
	"github.com/kasuganosora/afkagent/game/hazard"
	"github.com/kasuganosora/afkagent/game/state"
	"github.com/kasuganosora/afkagent/journal"
	"github.com/kasuganosora/afkagent/scheduler"
	"github.com/kasuganosora/afkagent/world"
	"github.com/kasuganosora/afkagent/world/memworld"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	w     *memworld.World
	st    *state.State
	sched *scheduler.Scheduler
	eng   *Engine
	clk   *clock
}

func newFixture(t *testing.T, mutate ...func(*Options)) *fixture {
	t.Helper()
	cfg := config.Default()
	opts := Options{Combat: cfg.Combat, SelfDefense: true, ExplosiveAvoidance: true}
	// Ticks are driven by hand.
	opts.Combat.ScanInterval = time.Hour
	opts.Combat.TickInterval = time.Hour
	for _, m := range mutate {
		m(&opts)
	}

	clk := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	w := memworld.New("afk")
	st := state.New(opts.Combat.AttackerExpiry, clk.Now)
	st.SetAnchor(w.Position())
	sched := scheduler.New(zap.NewNop())
	t.Cleanup(sched.Stop)
	j := journal.Nop(zap.NewNop())
	av := hazard.NewAvoider(w, st, j, cfg.Explosive)
	return &fixture{w: w, st: st, sched: sched, eng: New(w, st, sched, av, j, opts), clk: clk}
}

func (f *fixture) dispatch() {
	for {
		select {
		case ev := <-f.w.Events():
			f.eng.HandleEvent(ev)
		default:
			return
		}
	}
}

var ctx = context.Background()

func TestScan_EngagesHostileInRange(t *testing.T) {
	f := newFixture(t)
	f.w.Give(world.Item{Type: 1, Name: "iron_sword", Count: 1})
	z := f.w.AddEntity("zombie", world.KindHostile, mgl64.Vec3{3.5, 64, 0.5}, 20)

	f.eng.Scan(ctx)

	require.NotNil(t, f.st.Target())
	assert.Equal(t, z.ID(), f.st.Target().ID())
	assert.Equal(t, ModeEngaged, f.eng.Mode())
	assert.True(t, f.sched.Has(TaskTick), "target implies a running tick loop")
	assert.Contains(t, f.w.Recorded().Equipped, "iron_sword")
}

func TestScan_IgnoresHostileOutOfRange(t *testing.T) {
	f := newFixture(t)
	f.w.AddEntity("skeleton", world.KindHostile, mgl64.Vec3{10.5, 64, 0.5}, 20)
	f.eng.Scan(ctx)
	assert.Nil(t, f.st.Target())
	assert.False(t, f.sched.Has(TaskTick))
}

func TestScan_SelfDefenseDisabled(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.SelfDefense = false })
	f.w.AddEntity("zombie", world.KindHostile, mgl64.Vec3{2.5, 64, 0.5}, 20)
	f.eng.Scan(ctx)
	assert.Nil(t, f.st.Target())
}

func TestTick_AttacksInReach(t *testing.T) {
	f := newFixture(t)
	z := f.w.AddEntity("zombie", world.KindHostile, mgl64.Vec3{2.5, 64, 0.5}, 20)
	f.eng.Scan(ctx)

	f.eng.Tick(ctx)

	rec := f.w.Recorded()
	assert.Equal(t, []int64{z.ID()}, rec.Attacks)
	require.Len(t, rec.Looks, 1)
	assert.InDelta(t, 64+1.8*0.8, rec.Looks[0][1], 1e-9, "aims at the upper body")
}

func TestTick_PursuesBeyondReach(t *testing.T) {
	f := newFixture(t)
	f.w.AddEntity("zombie", world.KindHostile, mgl64.Vec3{5.5, 64, 0.5}, 20)
	f.eng.Scan(ctx)

	f.eng.Tick(ctx)

	assert.Empty(t, f.w.Recorded().Attacks)
	_, ok := f.w.LastGoal().(world.GoalFollow)
	assert.True(t, ok)
}

func TestTick_DisengagesBeyondRange(t *testing.T) {
	f := newFixture(t)
	z := f.w.AddEntity("zombie", world.KindHostile, mgl64.Vec3{4.5, 64, 0.5}, 20)
	f.eng.Scan(ctx)
	z.MoveTo(mgl64.Vec3{12.5, 64, 0.5})

	f.eng.Tick(ctx)

	assert.Nil(t, f.st.Target())
	assert.False(t, f.sched.Has(TaskTick))
	assert.Equal(t, ModeIdle, f.eng.Mode())
}

func TestTick_TargetGone(t *testing.T) {
	f := newFixture(t)
	z := f.w.AddEntity("zombie", world.KindHostile, mgl64.Vec3{2.5, 64, 0.5}, 20)
	f.eng.Scan(ctx)
	z.Despawn()

	f.eng.Tick(ctx)

	assert.Nil(t, f.st.Target())
	assert.False(t, f.sched.Has(TaskTick))
}

func TestTick_LowHealthFleesAwayFromThreat(t *testing.T) {
	f := newFixture(t)
	f.w.AddEntity("zombie", world.KindHostile, mgl64.Vec3{3.5, 64, 0.5}, 20)
	f.eng.Scan(ctx)
	require.NotNil(t, f.st.Target())

	f.w.SetHealth(4)
	f.eng.Tick(ctx)

	assert.Nil(t, f.st.Target())
	assert.False(t, f.sched.Has(TaskTick))
	assert.Equal(t, ModeFleeing, f.eng.Mode())
	near, ok := f.w.LastGoal().(world.GoalNear)
	require.True(t, ok)
	assert.InDelta(t, 0.5-10, near.Pos[0], 1e-9, "flee goal points away from the threat")
	assert.Equal(t, 2.0, near.Within)
}

func TestTick_LowHealthFleesToAnchorWithoutThreat(t *testing.T) {
	f := newFixture(t)
	anchor, _ := f.st.Anchor()
	z := f.w.AddEntity("zombie", world.KindHostile, mgl64.Vec3{3.5, 64, 0.5}, 20)
	f.eng.Scan(ctx)

	z.MoveTo(mgl64.Vec3{30.5, 64, 0.5})
	f.w.SetPosition(mgl64.Vec3{18.5, 64, 0.5})
	f.w.SetHealth(3)
	f.eng.Tick(ctx)

	near, ok := f.w.LastGoal().(world.GoalNear)
	require.True(t, ok)
	assert.Equal(t, anchor, near.Pos)
	assert.Equal(t, 1.0, near.Within)
}

func TestTick_LowHealthFleesFromLapsedAttacker(t *testing.T) {
	f := newFixture(t)
	p := f.w.AddPlayer("griefer", mgl64.Vec3{3.5, 64, 0.5})
	f.w.Hurt(2)
	f.dispatch()
	require.NotNil(t, f.st.Target())
	require.Equal(t, p.ID(), f.st.Target().ID())

	// The attacker record expires while the fight drags on.
	f.clk.Advance(31 * time.Second)
	require.False(t, f.st.IsActiveAttacker(p.ID(), f.clk.Now()))
	f.w.SetHealth(4)
	f.eng.Tick(ctx)

	assert.Nil(t, f.st.Target())
	assert.Equal(t, ModeFleeing, f.eng.Mode())
	near, ok := f.w.LastGoal().(world.GoalNear)
	require.True(t, ok)
	assert.InDelta(t, 0.5-10, near.Pos[0], 1e-9, "runs from the player, not to spawn")
	assert.Equal(t, 2.0, near.Within)
}

func TestScan_LowHealthWithoutEngagementFlees(t *testing.T) {
	f := newFixture(t)
	f.w.SetHealth(5)
	f.w.AddEntity("spider", world.KindHostile, mgl64.Vec3{4.5, 64, 0.5}, 16)

	f.eng.Scan(ctx)

	assert.Nil(t, f.st.Target(), "never engages at or below the flee threshold")
	assert.Equal(t, ModeFleeing, f.eng.Mode())
	_, ok := f.w.LastGoal().(world.GoalNear)
	assert.True(t, ok)
}

func TestScan_HazardPreemptsCombat(t *testing.T) {
	f := newFixture(t)
	z := f.w.AddEntity("zombie", world.KindHostile, mgl64.Vec3{2.5, 64, 0.5}, 20)
	f.eng.Scan(ctx)
	require.NotNil(t, f.st.Target())

	tnt := f.w.AddEntity("tnt", world.KindObject, mgl64.Vec3{0.5, 64, 5.5}, 1)
	f.eng.Scan(ctx)

	assert.Nil(t, f.st.Target())
	assert.False(t, f.sched.Has(TaskTick))
	assert.Equal(t, ModeFleeing, f.eng.Mode())
	assert.True(t, f.st.ExplosiveCooldown())
	near, ok := f.w.LastGoal().(world.GoalNear)
	require.True(t, ok)
	assert.Less(t, near.Pos[2], 0.5-15.0, "flee goal points away from the explosive")

	// The cooldown blocks re-engagement even though the zombie is still close.
	tnt.Despawn()
	f.w.SetPosition(mgl64.Vec3{0.5, 64, 0.5})
	z.MoveTo(mgl64.Vec3{2.5, 64, 0.5})
	f.eng.Scan(ctx)
	assert.Nil(t, f.st.Target())

	f.clk.Advance(4 * time.Second)
	f.eng.Scan(ctx)
	assert.NotNil(t, f.st.Target())
}

func TestOnHurt_AttributesNearestPlayer(t *testing.T) {
	f := newFixture(t)
	p := f.w.AddPlayer("griefer", mgl64.Vec3{3.5, 64, 0.5})
	f.w.AddPlayer("bystander", mgl64.Vec3{20.5, 64, 0.5})

	f.w.Hurt(2)
	f.dispatch()

	assert.True(t, f.st.IsActiveAttacker(p.ID(), f.clk.Now()))
	assert.Equal(t, 1, f.st.AttackerCount())
	require.NotNil(t, f.st.Target())
	assert.Equal(t, p.ID(), f.st.Target().ID())
}

func TestOnHurt_NoPlayerEngagesMob(t *testing.T) {
	f := newFixture(t)
	z := f.w.AddEntity("husk", world.KindHostile, mgl64.Vec3{4.5, 64, 0.5}, 20)

	f.w.Hurt(2)
	f.dispatch()

	assert.Zero(t, f.st.AttackerCount())
	require.NotNil(t, f.st.Target())
	assert.Equal(t, z.ID(), f.st.Target().ID())
}

func TestOnHurt_IgnoresOtherEntities(t *testing.T) {
	f := newFixture(t)
	p := f.w.AddPlayer("someone", mgl64.Vec3{2.5, 64, 0.5})
	f.eng.OnHurt(p)
	assert.False(t, f.st.DamagedWithin(time.Second))
	assert.Zero(t, f.st.AttackerCount())
}

func TestOnSwing_CorroboratesRecentDamage(t *testing.T) {
	f := newFixture(t)
	first := f.w.AddPlayer("first", mgl64.Vec3{2.5, 64, 0.5})
	second := f.w.AddPlayer("second", mgl64.Vec3{0.5, 64, 3.5})

	f.w.Hurt(1)
	f.dispatch()
	require.True(t, f.st.IsActiveAttacker(first.ID(), f.clk.Now()))

	f.clk.Advance(300 * time.Millisecond)
	f.w.Swing(second)
	f.dispatch()
	assert.True(t, f.st.IsActiveAttacker(second.ID(), f.clk.Now()))
}

func TestOnSwing_OutsideWindowIgnored(t *testing.T) {
	f := newFixture(t)
	f.w.AddPlayer("first", mgl64.Vec3{2.5, 64, 0.5})
	late := f.w.AddPlayer("late", mgl64.Vec3{0.5, 64, 3.5})

	f.w.Hurt(1)
	f.dispatch()
	f.clk.Advance(600 * time.Millisecond)
	f.eng.OnSwing(late)
	assert.False(t, f.st.IsActiveAttacker(late.ID(), f.clk.Now()))
}

func TestOnSwing_TooFarIgnored(t *testing.T) {
	f := newFixture(t)
	f.st.MarkDamage()
	far := f.w.AddPlayer("far", mgl64.Vec3{6.5, 64, 0.5})
	f.eng.OnSwing(far)
	assert.False(t, f.st.IsActiveAttacker(far.ID(), f.clk.Now()))
}

func TestScan_ExpiredAttackerIsNotAThreat(t *testing.T) {
	f := newFixture(t)
	p := f.w.AddPlayer("old", mgl64.Vec3{3.5, 64, 0.5})
	f.st.RecordAttacker(p.ID())

	f.clk.Advance(31 * time.Second)
	f.eng.Scan(ctx)

	assert.Nil(t, f.st.Target())
	assert.Zero(t, f.st.AttackerCount(), "expired record is purged on read")
}

func TestScan_ActiveAttackerIsAThreat(t *testing.T) {
	f := newFixture(t)
	p := f.w.AddPlayer("recent", mgl64.Vec3{3.5, 64, 0.5})
	f.st.RecordAttacker(p.ID())

	f.clk.Advance(10 * time.Second)
	f.eng.Scan(ctx)

	require.NotNil(t, f.st.Target())
	assert.Equal(t, p.ID(), f.st.Target().ID())
}

func TestDisengage(t *testing.T) {
	f := newFixture(t)
	f.w.AddEntity("zombie", world.KindHostile, mgl64.Vec3{2.5, 64, 0.5}, 20)
	f.eng.Scan(ctx)

	f.eng.Disengage("session ended")
	assert.Nil(t, f.st.Target())
	assert.False(t, f.sched.Has(TaskTick))
	assert.Positive(t, f.w.Recorded().Stops)
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "idle", ModeIdle.String())
	assert.Equal(t, "engaged", ModeEngaged.String())
	assert.Equal(t, "fleeing", ModeFleeing.String())
}
