package models

import "time"

// Credential stores one upstream browser-session secret. The secret is
// exchanged for a short-lived access token on each request; the gateway
// never derives new sessions itself.
type Credential struct {
	ID          string `gorm:"primaryKey" json:"id"` // UUID
	SecretValue string `gorm:"uniqueIndex;not null" json:"value"`
	IsValid     bool   `gorm:"default:true" json:"isValid"`
	FailCount   int    `gorm:"default:0" json:"failCount"`
	// Default credentials are seeded from the environment and can only be
	// disabled through accumulated failures, never deleted.
	IsDefault bool      `gorm:"default:false" json:"isDefault"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
