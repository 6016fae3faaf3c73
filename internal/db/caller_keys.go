package db

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pysugar/enginelabs-gateway/internal/db/models"
)

// CallerKeyStore owns all CallerKey rows.
type CallerKeyStore struct {
	db *gorm.DB
}

func NewCallerKeyStore(db *gorm.DB) *CallerKeyStore {
	return &CallerKeyStore{db: db}
}

// List returns all caller keys in creation order.
func (s *CallerKeyStore) List() ([]models.CallerKey, error) {
	var keys []models.CallerKey
	err := s.db.Order("created_at ASC, id ASC").Find(&keys).Error
	return keys, err
}

func (s *CallerKeyStore) Get(id string) (*models.CallerKey, error) {
	var key models.CallerKey
	if err := s.db.Where("id = ?", id).First(&key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &key, nil
}

// GetByKey looks up a caller key by its secret value.
func (s *CallerKeyStore) GetByKey(secret string) (*models.CallerKey, error) {
	var key models.CallerKey
	if err := s.db.Where("key = ?", secret).First(&key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &key, nil
}

func (s *CallerKeyStore) Add(secret string, isDefault bool) (*models.CallerKey, error) {
	if _, err := s.GetByKey(secret); err == nil {
		return nil, ErrDuplicate
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	key := models.CallerKey{
		ID:        uuid.New().String(),
		Key:       secret,
		IsEnabled: true,
		IsDefault: isDefault,
	}
	if err := s.db.Create(&key).Error; err != nil {
		return nil, err
	}
	return &key, nil
}

// Remove deletes a non-default caller key.
func (s *CallerKeyStore) Remove(id string) error {
	key, err := s.Get(id)
	if err != nil {
		return err
	}
	if key.IsDefault {
		return ErrDefaultRecord
	}
	return s.db.Delete(&models.CallerKey{}, "id = ?", id).Error
}

// SetEnabled flips the enabled flag. This is the only field the admin
// surface may patch on a caller key.
func (s *CallerKeyStore) SetEnabled(id string, enabled bool) error {
	res := s.db.Model(&models.CallerKey{}).Where("id = ?", id).Update("is_enabled", enabled)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementRequestCount adds one to the key's request counter as a SQL
// expression so concurrent requests never lose an update.
func (s *CallerKeyStore) IncrementRequestCount(id string) error {
	return s.db.Model(&models.CallerKey{}).Where("id = ?", id).
		Update("request_count", gorm.Expr("request_count + 1")).Error
}

func (s *CallerKeyStore) Count() (int64, error) {
	var n int64
	err := s.db.Model(&models.CallerKey{}).Count(&n).Error
	return n, err
}
