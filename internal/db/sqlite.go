// Package db implements the persistence store: typed operations over the
// credential, caller key, request log, model mapping and settings tables.
// Each table has a single owning store; nothing else mutates its rows.
package db

import (
	"errors"
	"log"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pysugar/enginelabs-gateway/internal/config"
	"github.com/pysugar/enginelabs-gateway/internal/db/models"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDefaultRecord is returned when deleting a seeded default record.
	ErrDefaultRecord = errors.New("default records cannot be deleted")
	// ErrDuplicate is returned when a unique secret already exists.
	ErrDuplicate = errors.New("record already exists")
)

// Open initializes the SQLite database and runs migrations.
func Open(path string) (*gorm.DB, error) {
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := gdb.AutoMigrate(
		&models.Credential{},
		&models.CallerKey{},
		&models.RequestLog{},
		&models.ModelMapping{},
		&models.Setting{},
	); err != nil {
		return nil, err
	}

	return gdb, nil
}

// Seed populates empty tables with the configured defaults. Existing rows
// are never touched, so operator edits survive restarts.
func Seed(gdb *gorm.DB, cfg *config.Config) error {
	var credCount int64
	gdb.Model(&models.Credential{}).Count(&credCount)
	if credCount == 0 && len(cfg.DefaultCredentials) > 0 {
		for _, secret := range cfg.DefaultCredentials {
			cred := models.Credential{
				ID:          uuid.New().String(),
				SecretValue: secret,
				IsValid:     true,
				IsDefault:   true,
			}
			if err := gdb.Create(&cred).Error; err != nil {
				return err
			}
		}
		log.Printf("📦 Seeded %d default credentials", len(cfg.DefaultCredentials))
	}

	var keyCount int64
	gdb.Model(&models.CallerKey{}).Count(&keyCount)
	if keyCount == 0 && len(cfg.DefaultCallerKeys) > 0 {
		for _, key := range cfg.DefaultCallerKeys {
			ck := models.CallerKey{
				ID:        uuid.New().String(),
				Key:       key,
				IsEnabled: true,
				IsDefault: true,
			}
			if err := gdb.Create(&ck).Error; err != nil {
				return err
			}
		}
		log.Printf("📦 Seeded %d default caller keys", len(cfg.DefaultCallerKeys))
	}

	var mapCount int64
	gdb.Model(&models.ModelMapping{}).Count(&mapCount)
	if mapCount == 0 {
		for _, m := range cfg.DefaultModelMaps {
			mapping := models.ModelMapping{
				DisplayName:  m.DisplayName,
				InternalName: m.InternalName,
			}
			if err := gdb.Create(&mapping).Error; err != nil {
				return err
			}
		}
		log.Printf("📦 Seeded %d model mappings", len(cfg.DefaultModelMaps))
	}

	return nil
}
