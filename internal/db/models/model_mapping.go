package models

import "time"

// ModelMapping maps a caller-facing model name to the upstream's internal
// model identifier (e.g. "claude-sonnet-4.5" -> "ClaudeSonnet4_5").
type ModelMapping struct {
	ID           uint      `gorm:"primaryKey" json:"-"`
	DisplayName  string    `gorm:"uniqueIndex;not null" json:"displayName"`
	InternalName string    `gorm:"not null" json:"internalName"`
	CreatedAt    time.Time `json:"-"`
}
