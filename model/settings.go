package model

import (
	"time"

	"gorm.io/datatypes"
)

// SettingsID is the primary key of the single settings row.
const SettingsID = 1

// Thresholds are the numeric knobs editable from the dashboard.
type Thresholds struct {
	FleeHealth        float64 `json:"flee_health"`
	ScanRange         float64 `json:"scan_range"`
	WanderRadius      float64 `json:"wander_radius"`
	HungerThreshold   float64 `json:"hunger_threshold"`
	MinFoodSlots      int     `json:"min_food_slots"`
	ChestSearchRadius float64 `json:"chest_search_radius"`
	StashInterval     int64   `json:"stash_interval_ms"`
	AFKInterval       int64   `json:"afk_interval_ms"`
	BaseDelay         int64   `json:"base_delay_ms"`
	MaxDelay          int64   `json:"max_delay_ms"`
}

// Settings is the dashboard-edited overlay on the file config.
// A zero value field means "keep the file value".
type Settings struct {
	ID         int64                               `gorm:"primaryKey" json:"-"`
	Host       string                              `gorm:"size:255" json:"host"`
	Port       int                                 `json:"port"`
	Username   string                              `gorm:"size:64" json:"username"`
	Password   string                              `gorm:"size:128" json:"-"`
	Version    string                              `gorm:"size:32" json:"version"`
	Greeting   string                              `gorm:"size:255" json:"first_time_message"`
	Features   datatypes.JSONType[map[string]bool] `json:"features"`
	Thresholds datatypes.JSONType[Thresholds]      `json:"thresholds"`
	UpdatedAt  time.Time                           `gorm:"autoUpdateTime:milli" json:"updated_at"`
}
