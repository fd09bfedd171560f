package model

import "time"

// SessionRecord tracks one connection attempt from dial to end.
type SessionRecord struct {
	ID           string     `gorm:"primaryKey;size:36" json:"id"`
	Host         string     `gorm:"size:255;not null" json:"host"`
	Port         int        `json:"port"`
	Username     string     `gorm:"size:64" json:"username"`
	Version      string     `gorm:"size:32" json:"version"`
	Attempt      int        `json:"attempt"`
	ViewDistance int        `json:"view_distance"`
	PingMs       int64      `json:"ping_ms"`
	Degraded     bool       `json:"degraded"`
	ConnectedAt  time.Time  `gorm:"index:idx_session_connected" json:"connected_at"`
	SpawnedAt    *time.Time `json:"spawned_at"`
	EndedAt      *time.Time `json:"ended_at"`
	Reason       string     `gorm:"type:text" json:"reason"`
	Transient    bool       `json:"transient"`
}
