package db

import (
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/pysugar/enginelabs-gateway/internal/db/models"
)

// ModelMappingStore owns the display-name to internal-name mapping table.
type ModelMappingStore struct {
	db *gorm.DB
}

func NewModelMappingStore(db *gorm.DB) *ModelMappingStore {
	return &ModelMappingStore{db: db}
}

// List returns all mappings in creation order.
func (s *ModelMappingStore) List() ([]models.ModelMapping, error) {
	var maps []models.ModelMapping
	err := s.db.Order("id ASC").Find(&maps).Error
	return maps, err
}

// ResolveInternal maps a caller-facing model name to the upstream's
// internal identifier.
func (s *ModelMappingStore) ResolveInternal(displayName string) (string, bool) {
	var mapping models.ModelMapping
	if err := s.db.Where("display_name = ?", displayName).First(&mapping).Error; err != nil {
		return "", false
	}
	return mapping.InternalName, true
}

// Replace swaps the whole mapping table for the given set, the way the
// admin surface edits it. Entries are validated before anything is written.
func (s *ModelMappingStore) Replace(maps []models.ModelMapping) error {
	if len(maps) == 0 {
		return fmt.Errorf("at least one model mapping is required")
	}
	seen := make(map[string]bool, len(maps))
	for _, m := range maps {
		display := strings.TrimSpace(m.DisplayName)
		internal := strings.TrimSpace(m.InternalName)
		if display == "" || internal == "" {
			return fmt.Errorf("model mapping names cannot be empty")
		}
		if seen[display] {
			return fmt.Errorf("duplicate display name %q", display)
		}
		seen[display] = true
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.ModelMapping{}).Error; err != nil {
			return err
		}
		for _, m := range maps {
			row := models.ModelMapping{
				DisplayName:  strings.TrimSpace(m.DisplayName),
				InternalName: strings.TrimSpace(m.InternalName),
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
