package models

import "time"

// CallerKey is an API key issued to clients of this gateway. Distinct from
// a Credential: caller keys authenticate inbound requests, credentials
// authenticate the gateway against the upstream.
type CallerKey struct {
	ID        string `gorm:"primaryKey" json:"id"` // UUID
	Key       string `gorm:"uniqueIndex;not null" json:"key"`
	IsEnabled bool   `gorm:"default:true" json:"isEnabled"`
	IsDefault bool   `gorm:"default:false" json:"isDefault"`
	// RequestCount increments on every authenticated request, including
	// requests that are subsequently rate-limited.
	RequestCount int64     `gorm:"default:0" json:"requestCount"`
	CreatedAt    time.Time `json:"createdAt"`
}
