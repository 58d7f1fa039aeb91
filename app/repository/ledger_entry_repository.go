package repository

import (
	"github.com/relayfin/payledger/app/models"
	"gorm.io/gorm"
)

// ledgerEntryRepository implements the LedgerEntryRepository interface
type ledgerEntryRepository struct {
	db *gorm.DB
}

// NewLedgerEntryRepository creates a new ledger entry repository instance
func NewLedgerEntryRepository(db *gorm.DB) LedgerEntryRepository {
	return &ledgerEntryRepository{db: db}
}

// Create inserts a new ledger entry. The unique index on event_id makes this
// an atomic insert-if-absent: with TranslateError enabled the losing side of a
// race gets gorm.ErrDuplicatedKey instead of a second row.
func (r *ledgerEntryRepository) Create(entry *models.LedgerEntry) error {
	return r.db.Create(entry).Error
}

// GetByEventID retrieves a ledger entry by the originating event identifier
func (r *ledgerEntryRepository) GetByEventID(eventID string) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := r.db.Where("event_id = ?", eventID).First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListRecent returns the most recent ledger entries ordered by the
// event-reported creation time, newest first
func (r *ledgerEntryRepository) ListRecent(limit int) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := r.db.Limit(limit).Order("entry_created_at DESC").Find(&entries).Error
	return entries, err
}

// Count returns the total number of ledger entries
func (r *ledgerEntryRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.LedgerEntry{}).Count(&count).Error
	return count, err
}
