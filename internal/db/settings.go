package db

import (
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/pysugar/enginelabs-gateway/internal/config"
	"github.com/pysugar/enginelabs-gateway/internal/db/models"
)

const settingsKey = "system_settings"

// Settings is the operator-editable system configuration. It is stored as
// one JSON row; environment values act as defaults when no row exists.
type Settings struct {
	RotationStrategy  string `json:"rotationStrategy"`
	APIBaseURL        string `json:"apiBaseUrl"`
	AuthBaseURL       string `json:"authBaseUrl"`
	MaxFailCount      int    `json:"maxFailCount"`
	MaxRequestRecords int    `json:"maxRequestRecords"`
	PerKeyRPM         int    `json:"perKeyRpm"`
	SystemRPM         int    `json:"systemRpm"`
	TokenExpiryDays   int    `json:"tokenExpiryDays"`
}

// SettingsPatch is a partial settings update. Nil fields are left unchanged;
// set fields are validated before anything is written.
type SettingsPatch struct {
	RotationStrategy  *string `json:"rotationStrategy"`
	APIBaseURL        *string `json:"apiBaseUrl"`
	AuthBaseURL       *string `json:"authBaseUrl"`
	MaxFailCount      *int    `json:"maxFailCount"`
	MaxRequestRecords *int    `json:"maxRequestRecords"`
	PerKeyRPM         *int    `json:"perKeyRpm"`
	SystemRPM         *int    `json:"systemRpm"`
	TokenExpiryDays   *int    `json:"tokenExpiryDays"`
}

// SettingsStore owns the system settings row.
type SettingsStore struct {
	db       *gorm.DB
	defaults Settings
}

func NewSettingsStore(db *gorm.DB, cfg *config.Config) *SettingsStore {
	return &SettingsStore{
		db: db,
		defaults: Settings{
			RotationStrategy:  "sequential",
			APIBaseURL:        cfg.APIBaseURL,
			AuthBaseURL:       cfg.AuthBaseURL,
			MaxFailCount:      cfg.MaxFailCount,
			MaxRequestRecords: cfg.MaxRequestRecords,
			PerKeyRPM:         cfg.PerKeyRPM,
			SystemRPM:         cfg.SystemRPM,
			TokenExpiryDays:   cfg.AdminTokenExpiryDays,
		},
	}
}

// Get returns the stored settings, or the environment defaults when no row
// has been written yet.
func (s *SettingsStore) Get() Settings {
	var row models.Setting
	if err := s.db.Where("key = ?", settingsKey).First(&row).Error; err != nil {
		return s.defaults
	}
	settings := s.defaults
	if err := json.Unmarshal([]byte(row.Value), &settings); err != nil {
		return s.defaults
	}
	return settings
}

// Update applies a validated patch and returns the resulting settings.
func (s *SettingsStore) Update(patch SettingsPatch) (Settings, error) {
	settings := s.Get()

	if patch.RotationStrategy != nil {
		if *patch.RotationStrategy != "sequential" && *patch.RotationStrategy != "random" {
			return settings, fmt.Errorf("invalid rotation strategy %q", *patch.RotationStrategy)
		}
		settings.RotationStrategy = *patch.RotationStrategy
	}
	if patch.APIBaseURL != nil {
		settings.APIBaseURL = *patch.APIBaseURL
	}
	if patch.AuthBaseURL != nil {
		settings.AuthBaseURL = *patch.AuthBaseURL
	}
	if err := applyPositive(&settings.MaxFailCount, patch.MaxFailCount, "maxFailCount"); err != nil {
		return settings, err
	}
	if err := applyPositive(&settings.MaxRequestRecords, patch.MaxRequestRecords, "maxRequestRecords"); err != nil {
		return settings, err
	}
	if err := applyPositive(&settings.PerKeyRPM, patch.PerKeyRPM, "perKeyRpm"); err != nil {
		return settings, err
	}
	if err := applyPositive(&settings.SystemRPM, patch.SystemRPM, "systemRpm"); err != nil {
		return settings, err
	}
	if err := applyPositive(&settings.TokenExpiryDays, patch.TokenExpiryDays, "tokenExpiryDays"); err != nil {
		return settings, err
	}

	data, err := json.Marshal(settings)
	if err != nil {
		return settings, err
	}

	var row models.Setting
	err = s.db.Where("key = ?", settingsKey).First(&row).Error
	switch {
	case err == nil:
		err = s.db.Model(&models.Setting{}).Where("key = ?", settingsKey).
			Update("value", string(data)).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		err = s.db.Create(&models.Setting{Key: settingsKey, Value: string(data)}).Error
	}
	return settings, err
}

// MaxRequestRecords is a convenience accessor for the request log bound.
func (s *SettingsStore) MaxRequestRecords() int {
	return s.Get().MaxRequestRecords
}

// MaxFailCount is a convenience accessor for the credential fail threshold.
func (s *SettingsStore) MaxFailCount() int {
	return s.Get().MaxFailCount
}

func applyPositive(dst *int, src *int, name string) error {
	if src == nil {
		return nil
	}
	if *src <= 0 {
		return fmt.Errorf("%s must be positive", name)
	}
	*dst = *src
	return nil
}
