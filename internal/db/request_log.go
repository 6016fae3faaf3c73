package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pysugar/enginelabs-gateway/internal/db/models"
)

// RequestLogStore owns the bounded request history. Entries are never
// mutated; they only leave the table through eviction.
type RequestLogStore struct {
	db         *gorm.DB
	maxRecords func() int
}

// NewRequestLogStore creates the store. maxRecords is read per insert so an
// admin settings change takes effect without a restart.
func NewRequestLogStore(db *gorm.DB, maxRecords func() int) *RequestLogStore {
	return &RequestLogStore{db: db, maxRecords: maxRecords}
}

// Record appends an entry with a fresh id and evicts the oldest rows beyond
// the configured bound.
func (s *RequestLogStore) Record(entry models.RequestLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp == 0 {
		entry.Timestamp = time.Now().UnixMilli()
	}
	if err := s.db.Create(&entry).Error; err != nil {
		return err
	}
	return s.evict()
}

func (s *RequestLogStore) evict() error {
	max := s.maxRecords()
	if max <= 0 {
		return nil
	}
	var total int64
	if err := s.db.Model(&models.RequestLog{}).Count(&total).Error; err != nil {
		return err
	}
	excess := total - int64(max)
	if excess <= 0 {
		return nil
	}

	// Oldest first: timestamp, ties broken by id.
	var victims []string
	if err := s.db.Model(&models.RequestLog{}).
		Order("timestamp ASC, id ASC").
		Limit(int(excess)).
		Pluck("id", &victims).Error; err != nil {
		return err
	}
	return s.db.Delete(&models.RequestLog{}, "id IN ?", victims).Error
}

// Recent returns up to limit entries, most recent first.
func (s *RequestLogStore) Recent(limit int) ([]models.RequestLog, error) {
	if limit <= 0 {
		limit = s.maxRecords()
	}
	var logs []models.RequestLog
	err := s.db.Order("timestamp DESC, id DESC").Limit(limit).Find(&logs).Error
	return logs, err
}

// CountAll returns the number of retained entries. Full scans are fine here:
// the table is bounded by maxRecords.
func (s *RequestLogStore) CountAll() (int64, error) {
	var n int64
	err := s.db.Model(&models.RequestLog{}).Count(&n).Error
	return n, err
}

// CountByPath returns the number of retained entries for one path.
func (s *RequestLogStore) CountByPath(path string) (int64, error) {
	var n int64
	err := s.db.Model(&models.RequestLog{}).Where("path = ?", path).Count(&n).Error
	return n, err
}
