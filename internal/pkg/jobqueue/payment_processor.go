package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/relayfin/payledger/app/models"
	"github.com/relayfin/payledger/app/repository"
	"github.com/relayfin/payledger/internal/pkg/metrics"
)

// ErrAccountNotFound marks an event whose merchant has no account yet. It is
// retryable: provisioning may still be in flight, and once attempts are
// exhausted the job dead-letters, which is the right terminal outcome for a
// merchant that never appears.
var ErrAccountNotFound = errors.New("no account for merchant")

// Deduper is the fast-path duplicate check. It must fail open: a miss (or an
// unreachable cache) only means "unknown", and the ledger lookup below remains
// the source of truth.
type Deduper interface {
	Exists(ctx context.Context, eventID string) bool
	MarkProcessed(ctx context.Context, eventID string) error
}

// PaymentProcessor materializes exactly one ledger entry per payment event. It
// runs once per delivered job; all retrying is owned by the queue. The steps
// are ordered so that every failure before the unique ledger insert is safely
// re-runnable, and every failure after it converges to a duplicate outcome on
// the next attempt.
type PaymentProcessor struct {
	users     repository.UserRepository
	events    repository.PaymentEventRepository
	ledgers   repository.LedgerEntryRepository
	dedupe    Deduper
	collector metrics.Collector
}

// NewPaymentProcessor creates a processor over the given stores
func NewPaymentProcessor(
	users repository.UserRepository,
	events repository.PaymentEventRepository,
	ledgers repository.LedgerEntryRepository,
	dedupe Deduper,
	collector metrics.Collector,
) *PaymentProcessor {
	return &PaymentProcessor{
		users:     users,
		events:    events,
		ledgers:   ledgers,
		dedupe:    dedupe,
		collector: collector,
	}
}

// Process runs the idempotent check-then-write sequence for one job attempt.
func (p *PaymentProcessor) Process(ctx context.Context, job *Job) (Outcome, error) {
	payload, err := PaymentEventJobPayloadFromMap(job.Payload)
	if err != nil {
		return "", fmt.Errorf("invalid payment event payload: %w", err)
	}
	if payload.EventID == "" {
		return "", fmt.Errorf("payment event payload without event id")
	}

	log.Infof("[PaymentProcessor] Processing payment event %s", payload.EventID)

	// Step 1: fast-path dedup check
	if p.dedupe.Exists(ctx, payload.EventID) {
		log.Infof("[PaymentProcessor] Duplicate event %s detected via dedup cache", payload.EventID)
		p.collector.Inc(metrics.CounterDuplicate)
		return OutcomeDuplicate, nil
	}

	// Step 2: authoritative check against the ledger
	existing, err := p.ledgers.GetByEventID(payload.EventID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("ledger lookup for event %s: %w", payload.EventID, err)
	}
	if existing != nil {
		// A previous attempt already committed the entry. Heal the cache
		// marker and re-assert the back-link in case that attempt died
		// between insert and link.
		if lerr := p.events.LinkLedgerEntry(existing.PaymentEventID, existing.ID); lerr != nil {
			log.Warnf("[PaymentProcessor] Failed to re-link ledger entry for event %s: %v", payload.EventID, lerr)
		}
		p.markProcessed(ctx, payload.EventID)
		log.Infof("[PaymentProcessor] Ledger entry for event %s already exists, skipping", payload.EventID)
		p.collector.Inc(metrics.CounterDuplicate)
		return OutcomeDuplicate, nil
	}

	// Step 3: resolve the owning account
	user, err := p.users.GetByMerchantID(payload.MerchantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("%w: %s", ErrAccountNotFound, payload.MerchantID)
		}
		return "", fmt.Errorf("account lookup for merchant %s: %w", payload.MerchantID, err)
	}

	// Step 4: idempotent upsert of the payment event record
	now := time.Now()
	event, err := p.events.Upsert(&models.PaymentEvent{
		EventID:        payload.EventID,
		Type:           payload.Type,
		MerchantID:     payload.MerchantID,
		UserID:         &user.ID,
		Amount:         payload.Amount,
		Currency:       payload.Currency,
		Status:         models.PaymentEventStatusProcessed,
		EventCreatedAt: payload.CreatedAt,
		ProcessedAt:    &now,
	})
	if err != nil {
		return "", fmt.Errorf("payment event upsert for %s: %w", payload.EventID, err)
	}

	// Step 5: insert the ledger entry. The unique index on event_id is the
	// linearization point: of two racing jobs exactly one insert succeeds and
	// the loser sees a duplicate-key error, never a second row.
	entry := &models.LedgerEntry{
		EventID:        payload.EventID,
		UserID:         user.ID,
		PaymentEventID: event.ID,
		MerchantID:     payload.MerchantID,
		Amount:         payload.Amount,
		Currency:       payload.Currency,
		Status:         models.LedgerEntryStatusRecorded,
		EntryCreatedAt: payload.CreatedAt,
	}
	if err := p.ledgers.Create(entry); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			log.Infof("[PaymentProcessor] Lost insert race for event %s, treating as duplicate", payload.EventID)
			p.markProcessed(ctx, payload.EventID)
			p.collector.Inc(metrics.CounterDuplicate)
			return OutcomeDuplicate, nil
		}
		return "", fmt.Errorf("ledger insert for event %s: %w", payload.EventID, err)
	}

	// Step 6: link the entry back onto the payment event
	if err := p.events.LinkLedgerEntry(event.ID, entry.ID); err != nil {
		// The entry is durable; a retry re-detects it in step 2 and re-links.
		return "", fmt.Errorf("ledger link for event %s: %w", payload.EventID, err)
	}

	// Step 7: write the dedup marker, best effort
	p.markProcessed(ctx, payload.EventID)

	log.Infof("[PaymentProcessor] Ledger entry %d created for event %s", entry.ID, payload.EventID)
	p.collector.Inc(metrics.CounterProcessed)
	return OutcomeSuccess, nil
}

func (p *PaymentProcessor) markProcessed(ctx context.Context, eventID string) {
	if err := p.dedupe.MarkProcessed(ctx, eventID); err != nil {
		log.Warnf("[PaymentProcessor] Failed to write dedup marker for event %s: %v", eventID, err)
	}
}
