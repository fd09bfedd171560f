package catalog

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/kasuganosora/afkagent/world"
	"github.com/stretchr/testify/assert"
)

type stubEntity struct {
	name  string
	kind  world.EntityKind
	valid bool
}

func (s stubEntity) ID() int64              { return 1 }
func (s stubEntity) Name() string           { return s.name }
func (s stubEntity) Username() string       { return "" }
func (s stubEntity) Kind() world.EntityKind { return s.kind }
func (s stubEntity) Position() mgl64.Vec3   { return mgl64.Vec3{} }
func (s stubEntity) Height() float64        { return 1.8 }
func (s stubEntity) Valid() bool            { return s.valid }

func TestIsHostile(t *testing.T) {
	cases := []struct {
		e    stubEntity
		want bool
	}{
		{stubEntity{"zombie", world.KindHostile, true}, true},
		{stubEntity{"zombie_villager", world.KindMob, true}, true},
		{stubEntity{"Skeleton", world.KindMob, true}, true},
		{stubEntity{"zombie", world.KindHostile, false}, false},
		{stubEntity{"zombie", world.KindObject, true}, false},
		{stubEntity{"cow", world.KindAnimal, true}, false},
		{stubEntity{"villager", world.KindMob, true}, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, IsHostile(c.e), c.e.name)
	}
	assert.False(t, IsHostile(nil))
}

func TestIsExplosiveEntity(t *testing.T) {
	ok, armed := IsExplosiveEntity("creeper")
	assert.True(t, ok)
	assert.True(t, armed)

	ok, armed = IsExplosiveEntity("tnt_minecart")
	assert.True(t, ok)
	assert.False(t, armed)

	ok, _ = IsExplosiveEntity("end_crystal")
	assert.True(t, ok)

	ok, _ = IsExplosiveEntity("zombie")
	assert.False(t, ok)
}

func TestFood(t *testing.T) {
	assert.True(t, IsFood("cooked_beef"))
	assert.True(t, IsFood("bread"))
	assert.False(t, IsFood("cobblestone"))
	assert.Equal(t, 7, FoodCount([]world.Item{
		{Name: "bread", Count: 3},
		{Name: "dirt", Count: 64},
		{Name: "apple", Count: 4},
	}))

	assert.True(t, IsFoodAnimal("cow"))
	assert.False(t, IsFoodAnimal("cow_spawn_egg"), "animal match is exact")
	assert.False(t, IsFoodAnimal("zombie"))
}

func TestContainers_Order(t *testing.T) {
	assert.Equal(t, []string{"chest", "trapped_chest", "barrel", "ender_chest", "shulker_box"}, Containers[:5])
	assert.Contains(t, Containers, "red_shulker_box")
	assert.Len(t, Containers, 21)
}

func TestBestWeapon(t *testing.T) {
	w, ok := BestWeapon([]world.Item{{Name: "iron_pickaxe"}, {Name: "stone_axe"}, {Name: "wooden_sword"}})
	assert.True(t, ok)
	assert.Equal(t, "wooden_sword", w.Name)

	w, ok = BestWeapon([]world.Item{{Name: "iron_pickaxe"}, {Name: "stone_axe"}})
	assert.True(t, ok)
	assert.Equal(t, "stone_axe", w.Name)

	_, ok = BestWeapon([]world.Item{{Name: "diamond_pickaxe"}, {Name: "bread"}})
	assert.False(t, ok)
}

func TestBlocks(t *testing.T) {
	assert.True(t, IsDangerousBlock("lava"))
	assert.True(t, IsDangerousBlock("powder_snow"))
	assert.False(t, IsDangerousBlock("stone"))
	assert.True(t, IsAir("cave_air"))
	assert.True(t, IsBed("red_bed"))
	assert.False(t, IsBed("bedrock"))
	assert.True(t, IsTool("fishing_rod"))
	assert.True(t, IsArmor("turtle_helmet"))
	assert.False(t, IsArmor("diamond"))
}
