package repository

import (
	"github.com/relayfin/payledger/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// paymentEventRepository implements the PaymentEventRepository interface
type paymentEventRepository struct {
	db *gorm.DB
}

// NewPaymentEventRepository creates a new payment event repository instance
func NewPaymentEventRepository(db *gorm.DB) PaymentEventRepository {
	return &paymentEventRepository{db: db}
}

// GetByEventID retrieves a payment event by its external event identifier
func (r *paymentEventRepository) GetByEventID(eventID string) (*models.PaymentEvent, error) {
	var event models.PaymentEvent
	err := r.db.Where("event_id = ?", eventID).First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// Upsert inserts the event or, when a row for the same event_id already
// exists, overwrites its non-key fields. The row is re-read afterwards so the
// caller always gets the surrogate key regardless of which branch ran.
func (r *paymentEventRepository) Upsert(event *models.PaymentEvent) (*models.PaymentEvent, error) {
	err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "event_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"type", "merchant_id", "user_id", "amount", "currency", "status", "event_created_at", "processed_at",
		}),
	}).Create(event).Error
	if err != nil {
		return nil, err
	}
	return r.GetByEventID(event.EventID)
}

// LinkLedgerEntry records the back-reference from a payment event to the
// ledger entry it produced. Safe to re-run; it writes the same value.
func (r *paymentEventRepository) LinkLedgerEntry(paymentEventID, ledgerEntryID uint) error {
	return r.db.Model(&models.PaymentEvent{}).
		Where("id = ?", paymentEventID).
		Update("ledger_entry_id", ledgerEntryID).Error
}

// List returns payment events with pagination, newest first
func (r *paymentEventRepository) List(offset, limit int) ([]models.PaymentEvent, error) {
	var events []models.PaymentEvent
	err := r.db.Offset(offset).Limit(limit).Order("created_at DESC").Find(&events).Error
	return events, err
}

// Count returns the total number of payment events
func (r *paymentEventRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.PaymentEvent{}).Count(&count).Error
	return count, err
}
