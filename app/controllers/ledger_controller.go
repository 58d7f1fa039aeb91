package controllers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/relayfin/payledger/app/repository"
)

const (
	ledgerCacheTTL  = 5 * time.Second
	ledgerListLimit = 500
)

// LedgerController serves the read side of the ledger. Responses are cached
// for a few seconds and tagged with a content hash so pollers can revalidate
// cheaply with If-None-Match.
type LedgerController struct {
	ledgers repository.LedgerEntryRepository

	mu        sync.Mutex
	etag      string
	body      []byte
	fetchedAt time.Time
}

// NewLedgerController creates the ledger read controller
func NewLedgerController(ledgers repository.LedgerEntryRepository) *LedgerController {
	return &LedgerController{ledgers: ledgers}
}

// HandleListLedgerEntries handles GET /api/v1/ledger
func (ctrl *LedgerController) HandleListLedgerEntries(c *fiber.Ctx) error {
	etag, body, err := ctrl.snapshot()
	if err != nil {
		log.Errorf("[Ledger] Failed to fetch ledger entries: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Internal server error",
		})
	}

	if c.Get(fiber.HeaderIfNoneMatch) == etag {
		return c.SendStatus(fiber.StatusNotModified)
	}

	c.Set(fiber.HeaderETag, etag)
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(body)
}

// snapshot returns the cached response, refreshing it when stale
func (ctrl *LedgerController) snapshot() (string, []byte, error) {
	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()

	if ctrl.etag != "" && time.Since(ctrl.fetchedAt) <= ledgerCacheTTL {
		return ctrl.etag, ctrl.body, nil
	}

	entries, err := ctrl.ledgers.ListRecent(ledgerListLimit)
	if err != nil {
		return "", nil, err
	}

	body, err := json.Marshal(entries)
	if err != nil {
		return "", nil, err
	}

	sum := sha256.Sum256(body)
	ctrl.etag = hex.EncodeToString(sum[:])
	ctrl.body = body
	ctrl.fetchedAt = time.Now()
	return ctrl.etag, ctrl.body, nil
}
