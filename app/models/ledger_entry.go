package models

import "time"

const (
	LedgerEntryStatusRecorded = "recorded"
	LedgerEntryStatusDisputed = "disputed"
	LedgerEntryStatusRefunded = "refunded"
)

// LedgerEntry is the durable financial record derived from a processed payment
// event. EventID doubles as the idempotency key: the unique index on it is the
// only mutual exclusion mechanism between concurrent workers, so exactly one
// entry can ever exist per external event.
type LedgerEntry struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	EventID        string `gorm:"type:varchar(191);not null;uniqueIndex:ux_ledger_entries_event_id" json:"event_id"`
	UserID         uint   `gorm:"not null;index" json:"user_id"`
	PaymentEventID uint   `gorm:"not null;uniqueIndex:ux_ledger_entries_payment_event_id" json:"payment_event_id"`
	MerchantID     string `gorm:"type:varchar(100);not null;index" json:"merchant_id"`
	Amount         int64  `gorm:"not null" json:"amount"`
	Currency       string `gorm:"type:varchar(3);not null" json:"currency"`
	Status         string `gorm:"type:varchar(20);not null;default:'recorded'" json:"status"`
	// EntryCreatedAt is copied from the event payload, not wall-clock time.
	EntryCreatedAt time.Time `gorm:"not null;index" json:"entry_created_at"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
