package models

import "time"

// Setting stores one key/value configuration row. System settings live in a
// single JSON-encoded row so partial updates go through the typed patch path
// in the store, never ad-hoc merges.
type Setting struct {
	Key       string `gorm:"primaryKey"`
	Value     string
	CreatedAt time.Time
	UpdatedAt time.Time
}
