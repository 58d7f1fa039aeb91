package models

import "time"

const (
	PaymentEventTypeSucceeded = "payment.succeeded"
	PaymentEventTypeFailed    = "payment.failed"

	PaymentEventStatusPending   = "pending"
	PaymentEventStatusProcessed = "processed"
	PaymentEventStatusFailed    = "failed"
)

// PaymentEvent stores one externally reported payment occurrence. EventID is the
// provider's event identifier; the unique index guarantees at most one row per
// external event no matter how often the webhook is redelivered.
type PaymentEvent struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	EventID        string     `gorm:"type:varchar(191);not null;uniqueIndex:ux_payment_events_event_id" json:"event_id"`
	Type           string     `gorm:"type:varchar(50);not null" json:"type"`
	MerchantID     string     `gorm:"type:varchar(100);not null;index" json:"merchant_id"`
	UserID         *uint      `gorm:"index" json:"user_id,omitempty"`
	Amount         int64      `gorm:"not null" json:"amount"`
	Currency       string     `gorm:"type:varchar(3);not null" json:"currency"`
	Status         string     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	LedgerEntryID  *uint      `gorm:"uniqueIndex:ux_payment_events_ledger_entry_id" json:"ledger_entry_id,omitempty"`
	EventCreatedAt time.Time  `gorm:"not null" json:"event_created_at"`
	ProcessedAt    *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsProcessed reports whether the event already resulted in a ledger entry.
func (e *PaymentEvent) IsProcessed() bool {
	return e.Status == PaymentEventStatusProcessed
}
