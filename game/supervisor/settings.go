package supervisor

import (
	"time"

	"github.com/kasuganosora/afkagent/config"
	"github.com/kasuganosora/afkagent/model"
	"gorm.io/datatypes"
)

// featureFlags maps the persisted feature names onto the config toggles.
func featureFlags(f *config.FeaturesConfig) map[string]*bool {
	return map[string]*bool{
		"auto_reconnect":       &f.AutoReconnect,
		"combat_self_defense":  &f.CombatSelfDefense,
		"explosive_avoidance":  &f.ExplosiveAvoidance,
		"auto_food_source":     &f.AutoFoodSource,
		"auto_stash":           &f.AutoStash,
		"auto_sleep":           &f.AutoSleep,
		"auto_equip":           &f.AutoEquip,
		"accept_resource_pack": &f.AcceptResourcePack,
		"solve_math_captcha":   &f.SolveMathCaptcha,
	}
}

// Overlay applies the non-zero fields of s onto cfg. Unknown feature names
// are ignored.
func Overlay(cfg *config.Config, s model.Settings) {
	if s.Host != "" {
		cfg.Bot.Host = s.Host
	}
	if s.Port > 0 {
		cfg.Bot.Port = s.Port
	}
	if s.Username != "" {
		cfg.Bot.Username = s.Username
		cfg.Bot.Password = s.Password
	}
	if s.Version != "" {
		cfg.Bot.Version = s.Version
	}
	cfg.Entry.FirstTimeMessage = s.Greeting

	flags := featureFlags(&cfg.Features)
	for name, on := range s.Features.Data() {
		if p, ok := flags[name]; ok {
			*p = on
		}
	}

	t := s.Thresholds.Data()
	setFloat(&cfg.Combat.FleeHealth, t.FleeHealth)
	setFloat(&cfg.Combat.ScanRange, t.ScanRange)
	setFloat(&cfg.AFK.WanderRadius, t.WanderRadius)
	setFloat(&cfg.Food.HungerThreshold, t.HungerThreshold)
	setFloat(&cfg.Food.ChestSearchRadius, t.ChestSearchRadius)
	if t.MinFoodSlots > 0 {
		cfg.Food.MinFoodSlots = t.MinFoodSlots
	}
	setMillis(&cfg.Stash.Interval, t.StashInterval)
	setMillis(&cfg.AFK.Interval, t.AFKInterval)
	setMillis(&cfg.Reconnect.BaseDelay, t.BaseDelay)
	setMillis(&cfg.Reconnect.MaxDelay, t.MaxDelay)
}

// Capture is the inverse of Overlay: it snapshots the editable part of cfg.
func Capture(cfg config.Config) model.Settings {
	features := make(map[string]bool)
	for name, p := range featureFlags(&cfg.Features) {
		features[name] = *p
	}
	return model.Settings{
		ID:       model.SettingsID,
		Host:     cfg.Bot.Host,
		Port:     cfg.Bot.Port,
		Username: cfg.Bot.Username,
		Password: cfg.Bot.Password,
		Version:  cfg.Bot.Version,
		Greeting: cfg.Entry.FirstTimeMessage,
		Features: datatypes.NewJSONType(features),
		Thresholds: datatypes.NewJSONType(model.Thresholds{
			FleeHealth:        cfg.Combat.FleeHealth,
			ScanRange:         cfg.Combat.ScanRange,
			WanderRadius:      cfg.AFK.WanderRadius,
			HungerThreshold:   cfg.Food.HungerThreshold,
			MinFoodSlots:      cfg.Food.MinFoodSlots,
			ChestSearchRadius: cfg.Food.ChestSearchRadius,
			StashInterval:     cfg.Stash.Interval.Milliseconds(),
			AFKInterval:       cfg.AFK.Interval.Milliseconds(),
			BaseDelay:         cfg.Reconnect.BaseDelay.Milliseconds(),
			MaxDelay:          cfg.Reconnect.MaxDelay.Milliseconds(),
		}),
	}
}

func setFloat(dst *float64, v float64) {
	if v > 0 {
		*dst = v
	}
}

func setMillis(dst *time.Duration, ms int64) {
	if ms > 0 {
		*dst = time.Duration(ms) * time.Millisecond
	}
}
