package jobqueue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/relayfin/payledger/app/models"
	"github.com/relayfin/payledger/internal/pkg/metrics"
)

type fakeUserRepo struct {
	byMerchant map[string]*models.User
}

func (f *fakeUserRepo) Create(*models.User) error { return nil }

func (f *fakeUserRepo) GetByID(uint) (*models.User, error) { return nil, gorm.ErrRecordNotFound }

func (f *fakeUserRepo) GetByEmail(string) (*models.User, error) { return nil, gorm.ErrRecordNotFound }

func (f *fakeUserRepo) List(int, int) ([]models.User, error) { return nil, nil }

func (f *fakeUserRepo) Count() (int64, error) { return 0, nil }

func (f *fakeUserRepo) GetByMerchantID(merchantID string) (*models.User, error) {
	if u, ok := f.byMerchant[merchantID]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

type fakeEventRepo struct {
	byEventID map[string]*models.PaymentEvent
	nextID    uint
	links     map[uint]uint // payment event id -> ledger entry id
	upsertErr error
	linkErr   error
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{
		byEventID: make(map[string]*models.PaymentEvent),
		links:     make(map[uint]uint),
	}
}

func (f *fakeEventRepo) GetByEventID(eventID string) (*models.PaymentEvent, error) {
	if e, ok := f.byEventID[eventID]; ok {
		return e, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeEventRepo) Upsert(event *models.PaymentEvent) (*models.PaymentEvent, error) {
	if f.upsertErr != nil {
		return nil, f.upsertErr
	}
	if existing, ok := f.byEventID[event.EventID]; ok {
		event.ID = existing.ID
	} else {
		f.nextID++
		event.ID = f.nextID
	}
	f.byEventID[event.EventID] = event
	return event, nil
}

func (f *fakeEventRepo) LinkLedgerEntry(paymentEventID, ledgerEntryID uint) error {
	if f.linkErr != nil {
		return f.linkErr
	}
	f.links[paymentEventID] = ledgerEntryID
	return nil
}

func (f *fakeEventRepo) List(int, int) ([]models.PaymentEvent, error) { return nil, nil }

func (f *fakeEventRepo) Count() (int64, error) { return 0, nil }

type fakeLedgerRepo struct {
	byEventID map[string]*models.LedgerEntry
	nextID    uint
	createErr error
}

func newFakeLedgerRepo() *fakeLedgerRepo {
	return &fakeLedgerRepo{byEventID: make(map[string]*models.LedgerEntry)}
}

func (f *fakeLedgerRepo) Create(entry *models.LedgerEntry) error {
	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.byEventID[entry.EventID]; ok {
		return gorm.ErrDuplicatedKey
	}
	f.nextID++
	entry.ID = f.nextID
	f.byEventID[entry.EventID] = entry
	return nil
}

func (f *fakeLedgerRepo) GetByEventID(eventID string) (*models.LedgerEntry, error) {
	if e, ok := f.byEventID[eventID]; ok {
		return e, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeLedgerRepo) ListRecent(int) ([]models.LedgerEntry, error) { return nil, nil }
func (f *fakeLedgerRepo) Count() (int64, error) {
	return int64(len(f.byEventID)), nil
}

type fakeDeduper struct {
	marked    map[string]bool
	readFails bool
	markErr   error
}

func newFakeDeduper() *fakeDeduper {
	return &fakeDeduper{marked: make(map[string]bool)}
}

func (f *fakeDeduper) Exists(_ context.Context, eventID string) bool {
	if f.readFails {
		// Fail-open contract: an unreachable cache reads as a miss
		return false
	}
	return f.marked[eventID]
}

func (f *fakeDeduper) MarkProcessed(_ context.Context, eventID string) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.marked[eventID] = true
	return nil
}

func testPayload() PaymentEventJobPayload {
	return PaymentEventJobPayload{
		EventID:    "evt_1",
		Type:       models.PaymentEventTypeSucceeded,
		MerchantID: "m1",
		Amount:     1000,
		Currency:   "USD",
		CreatedAt:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func testJob(payload PaymentEventJobPayload) *Job {
	return &Job{
		ID:          "job-1",
		Type:        JobTypePaymentEvent,
		Status:      JobStatusPending,
		Payload:     payload.ToMap(),
		MaxAttempts: DefaultMaxAttempts,
	}
}

func merchantUser(id uint, merchantID string) *models.User {
	return &models.User{ID: id, Name: "Merchant One", Email: "m1@example.com", MerchantID: &merchantID}
}

func TestProcessCreatesLedgerEntry(t *testing.T) {
	users := &fakeUserRepo{byMerchant: map[string]*models.User{"m1": merchantUser(7, "m1")}}
	events := newFakeEventRepo()
	ledgers := newFakeLedgerRepo()
	dedupe := newFakeDeduper()

	p := NewPaymentProcessor(users, events, ledgers, dedupe, metrics.NoopCollector{})
	payload := testPayload()

	outcome, err := p.Process(context.Background(), testJob(payload))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, outcome)

	entry, err := ledgers.GetByEventID("evt_1")
	require.NoError(t, err)
	assert.Equal(t, uint(7), entry.UserID)
	assert.Equal(t, int64(1000), entry.Amount)
	assert.Equal(t, "USD", entry.Currency)
	assert.Equal(t, models.LedgerEntryStatusRecorded, entry.Status)
	assert.Equal(t, payload.CreatedAt, entry.EntryCreatedAt.UTC())

	event, err := events.GetByEventID("evt_1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentEventStatusProcessed, event.Status)
	require.NotNil(t, event.ProcessedAt)
	require.NotNil(t, event.UserID)
	assert.Equal(t, uint(7), *event.UserID)

	// Entry linked back onto the event, dedup marker written
	assert.Equal(t, entry.ID, events.links[event.ID])
	assert.True(t, dedupe.marked["evt_1"])
}

func TestProcessDuplicateViaDedupCache(t *testing.T) {
	users := &fakeUserRepo{byMerchant: map[string]*models.User{"m1": merchantUser(1, "m1")}}
	events := newFakeEventRepo()
	ledgers := newFakeLedgerRepo()
	dedupe := newFakeDeduper()
	dedupe.marked["evt_1"] = true

	p := NewPaymentProcessor(users, events, ledgers, dedupe, metrics.NoopCollector{})

	outcome, err := p.Process(context.Background(), testJob(testPayload()))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)

	// Short-circuit: nothing was written
	count, _ := ledgers.Count()
	assert.Zero(t, count)
	assert.Empty(t, events.byEventID)
}

func TestProcessDuplicateViaLedgerLookupHealsCache(t *testing.T) {
	users := &fakeUserRepo{byMerchant: map[string]*models.User{"m1": merchantUser(1, "m1")}}
	events := newFakeEventRepo()
	ledgers := newFakeLedgerRepo()
	dedupe := newFakeDeduper()

	// A previous attempt committed the entry but died before writing the
	// cache marker and the back-link
	ledgers.byEventID["evt_1"] = &models.LedgerEntry{ID: 42, EventID: "evt_1", PaymentEventID: 9, UserID: 1}

	p := NewPaymentProcessor(users, events, ledgers, dedupe, metrics.NoopCollector{})

	outcome, err := p.Process(context.Background(), testJob(testPayload()))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)

	assert.True(t, dedupe.marked["evt_1"], "cache marker should be healed")
	assert.Equal(t, uint(42), events.links[9], "back-link should be re-asserted")
	count, _ := ledgers.Count()
	assert.Equal(t, int64(1), count)
}

func TestProcessAccountNotFoundIsRetryable(t *testing.T) {
	users := &fakeUserRepo{byMerchant: map[string]*models.User{}}
	events := newFakeEventRepo()
	ledgers := newFakeLedgerRepo()
	dedupe := newFakeDeduper()

	p := NewPaymentProcessor(users, events, ledgers, dedupe, metrics.NoopCollector{})

	payload := testPayload()
	payload.MerchantID = "missing"
	_, err := p.Process(context.Background(), testJob(payload))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAccountNotFound)

	// Nothing persisted, nothing marked: a later retry starts clean
	count, _ := ledgers.Count()
	assert.Zero(t, count)
	assert.False(t, dedupe.marked["evt_1"])
}

func TestProcessInsertRaceTranslatesToDuplicate(t *testing.T) {
	users := &fakeUserRepo{byMerchant: map[string]*models.User{"m1": merchantUser(1, "m1")}}
	events := newFakeEventRepo()
	ledgers := newFakeLedgerRepo()
	ledgers.createErr = gorm.ErrDuplicatedKey
	dedupe := newFakeDeduper()

	p := NewPaymentProcessor(users, events, ledgers, dedupe, metrics.NoopCollector{})

	outcome, err := p.Process(context.Background(), testJob(testPayload()))
	require.NoError(t, err, "losing the insert race is not a failure")
	assert.Equal(t, OutcomeDuplicate, outcome)
	assert.True(t, dedupe.marked["evt_1"])
}

func TestProcessLinkFailureConvergesOnRetry(t *testing.T) {
	users := &fakeUserRepo{byMerchant: map[string]*models.User{"m1": merchantUser(1, "m1")}}
	events := newFakeEventRepo()
	ledgers := newFakeLedgerRepo()
	dedupe := newFakeDeduper()

	p := NewPaymentProcessor(users, events, ledgers, dedupe, metrics.NoopCollector{})

	// First attempt: entry is committed but the link step fails
	events.linkErr = errors.New("connection reset")
	_, err := p.Process(context.Background(), testJob(testPayload()))
	require.Error(t, err)
	count, _ := ledgers.Count()
	assert.Equal(t, int64(1), count)

	// Retry: converges to duplicate and completes the linking work
	events.linkErr = nil
	outcome, err := p.Process(context.Background(), testJob(testPayload()))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)

	count, _ = ledgers.Count()
	assert.Equal(t, int64(1), count, "retry must never create a second entry")
	assert.NotEmpty(t, events.links)
}

func TestProcessCorrectWithCacheUnavailable(t *testing.T) {
	users := &fakeUserRepo{byMerchant: map[string]*models.User{"m1": merchantUser(1, "m1")}}
	events := newFakeEventRepo()
	ledgers := newFakeLedgerRepo()
	dedupe := newFakeDeduper()
	dedupe.readFails = true
	dedupe.markErr = errors.New("cache unreachable")

	p := NewPaymentProcessor(users, events, ledgers, dedupe, metrics.NoopCollector{})

	outcome, err := p.Process(context.Background(), testJob(testPayload()))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, outcome)

	// Redelivery with a dead cache still converges via the ledger lookup
	outcome, err = p.Process(context.Background(), testJob(testPayload()))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)

	count, _ := ledgers.Count()
	assert.Equal(t, int64(1), count)
}

func TestProcessRejectsPayloadWithoutEventID(t *testing.T) {
	p := NewPaymentProcessor(
		&fakeUserRepo{},
		newFakeEventRepo(),
		newFakeLedgerRepo(),
		newFakeDeduper(),
		metrics.NoopCollector{},
	)

	job := testJob(PaymentEventJobPayload{MerchantID: "m1"})
	_, err := p.Process(context.Background(), job)
	require.Error(t, err)
}
