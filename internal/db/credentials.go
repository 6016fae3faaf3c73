package db

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pysugar/enginelabs-gateway/internal/db/models"
)

// CredentialStore owns all Credential rows. Failure accounting runs as SQL
// increments so concurrent reports on the same credential are all counted.
type CredentialStore struct {
	db *gorm.DB
}

func NewCredentialStore(db *gorm.DB) *CredentialStore {
	return &CredentialStore{db: db}
}

// List returns all credentials in creation order.
func (s *CredentialStore) List() ([]models.Credential, error) {
	var creds []models.Credential
	err := s.db.Order("created_at ASC, id ASC").Find(&creds).Error
	return creds, err
}

// ListValid returns valid credentials in creation order.
func (s *CredentialStore) ListValid() ([]models.Credential, error) {
	var creds []models.Credential
	err := s.db.Where("is_valid = ?", true).Order("created_at ASC, id ASC").Find(&creds).Error
	return creds, err
}

func (s *CredentialStore) Get(id string) (*models.Credential, error) {
	var cred models.Credential
	if err := s.db.Where("id = ?", id).First(&cred).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &cred, nil
}

// Add persists a new credential. The caller is responsible for having
// verified the secret works before adding it.
func (s *CredentialStore) Add(secret string, isDefault bool) (*models.Credential, error) {
	var existing int64
	s.db.Model(&models.Credential{}).Where("secret_value = ?", secret).Count(&existing)
	if existing > 0 {
		return nil, ErrDuplicate
	}

	cred := models.Credential{
		ID:          uuid.New().String(),
		SecretValue: secret,
		IsValid:     true,
		FailCount:   0,
		IsDefault:   isDefault,
	}
	if err := s.db.Create(&cred).Error; err != nil {
		return nil, err
	}
	return &cred, nil
}

// Remove deletes a non-default credential.
func (s *CredentialStore) Remove(id string) error {
	cred, err := s.Get(id)
	if err != nil {
		return err
	}
	if cred.IsDefault {
		return ErrDefaultRecord
	}
	return s.db.Delete(&models.Credential{}, "id = ?", id).Error
}

// IncrementFailure adds one to the fail count and disables the credential
// once the count reaches threshold. The increment is a SQL expression, not
// a read-modify-write, so overlapping requests never lose an update.
func (s *CredentialStore) IncrementFailure(id string, threshold int) (*models.Credential, error) {
	res := s.db.Model(&models.Credential{}).Where("id = ?", id).Updates(map[string]interface{}{
		"fail_count": gorm.Expr("fail_count + 1"),
		"updated_at": time.Now(),
	})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	if err := s.db.Model(&models.Credential{}).Where("id = ?", id).
		Update("is_valid", gorm.Expr("fail_count < ?", threshold)).Error; err != nil {
		return nil, err
	}
	return s.Get(id)
}

// ResetFailure marks the credential healthy again (manual validation path).
func (s *CredentialStore) ResetFailure(id string) error {
	res := s.db.Model(&models.Credential{}).Where("id = ?", id).Updates(map[string]interface{}{
		"fail_count": 0,
		"is_valid":   true,
		"updated_at": time.Now(),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkInvalid disables the credential without touching its fail count
// (used when a manual test fails outright).
func (s *CredentialStore) MarkInvalid(id string) error {
	res := s.db.Model(&models.Credential{}).Where("id = ?", id).Updates(map[string]interface{}{
		"is_valid":   false,
		"updated_at": time.Now(),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Counts returns total, valid and invalid credential counts.
func (s *CredentialStore) Counts() (total, valid, invalid int64, err error) {
	if err = s.db.Model(&models.Credential{}).Count(&total).Error; err != nil {
		return
	}
	if err = s.db.Model(&models.Credential{}).Where("is_valid = ?", true).Count(&valid).Error; err != nil {
		return
	}
	invalid = total - valid
	return
}
