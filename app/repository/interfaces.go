package repository

import (
	"github.com/relayfin/payledger/app/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for account-related database operations.
// GetByMerchantID is the only capability the ingestion pipeline itself needs;
// the rest exists for provisioning and admin tooling.
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByMerchantID(merchantID string) (*models.User, error)
	List(offset, limit int) ([]models.User, error)
	Count() (int64, error)
}

// PaymentEventRepository defines the interface for payment event persistence.
// Upsert must be idempotent on event_id so concurrent duplicate attempts are
// safe; last write wins on the non-key fields.
type PaymentEventRepository interface {
	GetByEventID(eventID string) (*models.PaymentEvent, error)
	Upsert(event *models.PaymentEvent) (*models.PaymentEvent, error)
	LinkLedgerEntry(paymentEventID, ledgerEntryID uint) error
	List(offset, limit int) ([]models.PaymentEvent, error)
	Count() (int64, error)
}

// LedgerEntryRepository defines the interface for ledger persistence. Create
// must fail with gorm.ErrDuplicatedKey when an entry for the same event id
// already exists; that atomic insert-if-absent is a hard correctness
// dependency of the whole pipeline.
type LedgerEntryRepository interface {
	Create(entry *models.LedgerEntry) error
	GetByEventID(eventID string) (*models.LedgerEntry, error)
	ListRecent(limit int) ([]models.LedgerEntry, error)
	Count() (int64, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	User         UserRepository
	PaymentEvent PaymentEventRepository
	LedgerEntry  LedgerEntryRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:         NewUserRepository(db),
		PaymentEvent: NewPaymentEventRepository(db),
		LedgerEntry:  NewLedgerEntryRepository(db),
	}
}
