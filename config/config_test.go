package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 9000\n"))
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Mode)
	assert.Equal(t, 6.0, cfg.Combat.FleeHealth)
	assert.Equal(t, 500*time.Millisecond, cfg.Combat.ScanInterval)
	assert.Equal(t, 250*time.Millisecond, cfg.Combat.TickInterval)
	assert.Equal(t, 30*time.Second, cfg.Combat.AttackerExpiry)
	assert.Equal(t, 15*time.Second, cfg.Reconnect.BaseDelay)
	assert.Equal(t, 5*time.Minute, cfg.Reconnect.MaxDelay)
	assert.Equal(t, 15*time.Second, cfg.Food.HuntTimeout)
	assert.Equal(t, 30, cfg.Food.HuntMaxHits)
	assert.True(t, cfg.Features.AutoReconnect)
	assert.True(t, cfg.Stash.KeepFood)
	assert.Contains(t, cfg.Bot.UnreliableHosts, "aternos.me")
}

func TestLoad_Overrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
bot:
  host: play.example.net
  port: 25570
features:
  auto_stash: true
combat:
  flee_health: 8
afk:
  interval: 5s
  weights:
    wander: 0.5
`))
	require.NoError(t, err)

	assert.Equal(t, "play.example.net", cfg.Bot.Host)
	assert.Equal(t, 25570, cfg.Bot.Port)
	assert.True(t, cfg.Features.AutoStash)
	assert.Equal(t, 8.0, cfg.Combat.FleeHealth)
	assert.Equal(t, 5*time.Second, cfg.AFK.Interval)
	assert.Equal(t, 0.5, cfg.AFK.Weights.Wander)
	assert.Equal(t, 0.15, cfg.AFK.Weights.Look)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDefault_WeightsSumBelowOne(t *testing.T) {
	w := Default().AFK.Weights
	sum := w.Wander + w.Look + w.Jump + w.Sneak + w.Swing + w.Sprint
	assert.InDelta(t, 0.85, sum, 1e-9)
}

func TestDefault_Validates(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero tick interval", func(c *Config) { c.Combat.TickInterval = 0 }, "combat.tick_interval"},
		{"negative scan interval", func(c *Config) { c.Combat.ScanInterval = -time.Second }, "combat.scan_interval"},
		{"zero afk interval", func(c *Config) { c.AFK.Interval = 0 }, "afk.interval"},
		{"zero hunt tick", func(c *Config) { c.Food.HuntTickInterval = 0 }, "food.hunt_tick_interval"},
		{"zero base delay", func(c *Config) { c.Reconnect.BaseDelay = 0 }, "reconnect.base_delay"},
		{"zero attack range", func(c *Config) { c.Combat.AttackRange = 0 }, "combat.attack_range"},
		{"disengage inside reach", func(c *Config) { c.Combat.DisengageRange = 3 }, "combat.disengage_range"},
		{"disengage equal to reach", func(c *Config) { c.Combat.DisengageRange = c.Combat.AttackRange }, "combat.disengage_range"},
		{"shrinking backoff", func(c *Config) { c.Reconnect.Multiplier = 0.5 }, "reconnect.multiplier"},
		{"weights over one", func(c *Config) { c.AFK.Weights.Wander = 0.9 }, "afk.weights sum"},
		{"negative weight", func(c *Config) { c.AFK.Weights.Jump = -0.1 }, "must not be negative"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestValidate_WeightsSummingToOne(t *testing.T) {
	cfg := Default()
	cfg.AFK.Weights = IdleWeights{Wander: 0.5, Look: 0.2, Jump: 0.1, Sneak: 0.1, Swing: 0.05, Sprint: 0.05}
	assert.NoError(t, cfg.Validate())
}

func TestLoad_RejectsInvalid(t *testing.T) {
	_, err := Load(writeConfig(t, "combat:\n  tick_interval: 0s\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "combat.tick_interval")

	_, err = Load(writeConfig(t, "afk:\n  weights:\n    wander: 0.8\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "afk.weights")
}
