package model

import (
	"time"

	"gorm.io/datatypes"
)

// EventLog is one persisted operator journal entry.
type EventLog struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID string         `gorm:"index:idx_event_session;size:36" json:"session_id"`
	Level     string         `gorm:"index:idx_event_level;size:16;not null" json:"level"`
	Message   string         `gorm:"type:text;not null" json:"message"`
	Detail    string         `gorm:"type:text" json:"detail"`
	Fields    datatypes.JSON `json:"fields"`
	CreatedAt time.Time      `gorm:"index:idx_event_created;autoCreateTime:milli" json:"created_at"`
}
