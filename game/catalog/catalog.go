// Package catalog classifies world names: hostile mobs, explosives, food,
// containers, tools, armor and dangerous terrain.
package catalog

import (
	"strings"

	"github.com/kasuganosora/afkagent/world"
)

var hostileNames = []string{
	"zombie", "skeleton", "spider", "creeper", "slime",
	"witch", "phantom", "drowned", "husk", "stray",
	"pillager", "vindicator", "ravager", "enderman",
	"cave_spider", "magma_cube", "blaze", "ghast",
	"wither_skeleton", "piglin_brute", "warden", "breeze",
}

// IsHostile reports whether e is a mob whose name matches a hostile type.
func IsHostile(e world.Entity) bool {
	if e == nil || !e.Valid() {
		return false
	}
	if k := e.Kind(); k != world.KindMob && k != world.KindHostile {
		return false
	}
	return containsAny(strings.ToLower(e.Name()), hostileNames)
}

var explosiveEntities = []string{"creeper", "tnt", "tnt_minecart", "end_crystal"}

// ExplosiveBlocks are checked in this order.
var ExplosiveBlocks = []string{"tnt", "respawn_anchor"}

// IsExplosiveEntity reports whether name can explode. armedOnly is set for
// entities that are only dangerous once they have started to ignite.
func IsExplosiveEntity(name string) (explosive, armedOnly bool) {
	name = strings.ToLower(name)
	if name == "creeper" {
		return true, true
	}
	return containsAny(name, explosiveEntities), false
}

var foodItems = []string{
	"apple", "bread", "cooked_beef", "cooked_chicken", "cooked_cod",
	"cooked_mutton", "cooked_porkchop", "cooked_rabbit", "cooked_salmon",
	"golden_apple", "enchanted_golden_apple", "golden_carrot",
	"baked_potato", "beetroot", "carrot", "melon_slice", "sweet_berries",
	"glow_berries", "dried_kelp", "mushroom_stew", "rabbit_stew",
	"beetroot_soup", "suspicious_stew", "cookie", "pumpkin_pie",
	"beef", "porkchop", "chicken", "mutton", "rabbit", "cod", "salmon",
	"rotten_flesh", "spider_eye", "potato",
}

// IsFood reports whether an item name is edible.
func IsFood(name string) bool { return containsAny(name, foodItems) }

// FoodCount sums the stack counts of every food item.
func FoodCount(items []world.Item) int {
	n := 0
	for _, it := range items {
		if IsFood(it.Name) {
			n += it.Count
		}
	}
	return n
}

var foodAnimals = map[string]bool{
	"pig": true, "cow": true, "chicken": true,
	"sheep": true, "rabbit": true, "mooshroom": true,
}

// IsFoodAnimal reports whether an entity name is a huntable food animal.
func IsFoodAnimal(name string) bool { return foodAnimals[strings.ToLower(name)] }

var shulkerColors = []string{
	"white", "orange", "magenta", "light_blue", "yellow", "lime", "pink", "gray",
	"light_gray", "cyan", "purple", "blue", "brown", "green", "red", "black",
}

// Containers lists container block names in search order.
var Containers = func() []string {
	out := []string{"chest", "trapped_chest", "barrel", "ender_chest", "shulker_box"}
	for _, c := range shulkerColors {
		out = append(out, c+"_shulker_box")
	}
	return out
}()

var toolNames = []string{
	"sword", "axe", "pickaxe", "shovel", "hoe", "bow", "crossbow", "trident",
	"shield", "fishing_rod", "shears", "flint_and_steel", "totem",
}

// IsTool reports whether an item name is a tool or weapon.
func IsTool(name string) bool { return containsAny(name, toolNames) }

var armorNames = []string{"helmet", "chestplate", "leggings", "boots", "elytra"}

// IsArmor reports whether an item name is wearable armor.
func IsArmor(name string) bool { return containsAny(name, armorNames) }

// BestWeapon picks a sword, else an axe that is not a pickaxe.
func BestWeapon(items []world.Item) (world.Item, bool) {
	for _, it := range items {
		if strings.Contains(it.Name, "sword") {
			return it, true
		}
	}
	for _, it := range items {
		if strings.Contains(it.Name, "axe") && !strings.Contains(it.Name, "pickaxe") {
			return it, true
		}
	}
	return world.Item{}, false
}

var dangerousBlocks = map[string]bool{
	"lava": true, "fire": true, "soul_fire": true, "magma_block": true,
	"cactus": true, "sweet_berry_bush": true, "campfire": true, "powder_snow": true,
}

// IsDangerousBlock reports whether standing in or on the block hurts.
func IsDangerousBlock(name string) bool { return dangerousBlocks[name] }

// IsAir reports whether the block is empty space.
func IsAir(name string) bool {
	return name == "air" || name == "cave_air" || name == "void_air"
}

// IsBed matches every bed color but not bedrock.
func IsBed(name string) bool {
	return name == "bed" || strings.HasSuffix(name, "_bed")
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
