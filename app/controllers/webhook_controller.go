package controllers

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/relayfin/payledger/internal/pkg/jobqueue"
	"github.com/relayfin/payledger/internal/pkg/metrics"
	"github.com/relayfin/payledger/internal/pkg/webhook"
)

// Enqueuer is the slice of the job queue the ingestion endpoint needs
type Enqueuer interface {
	EnqueueJob(jobType jobqueue.JobType, payload map[string]interface{}) (*jobqueue.Job, error)
}

// WebhookController accepts provider payment notifications and hands them to
// the durable queue. Acceptance is deliberately shallow: only the event id is
// required here, everything else is checked by the worker so that
// correctable events (e.g. a merchant not provisioned yet) are retried
// instead of rejected.
type WebhookController struct {
	queue     Enqueuer
	collector metrics.Collector
	secret    string
	validate  *validator.Validate
}

// NewWebhookController creates the ingestion controller. When secret is
// non-empty, requests must carry a valid HMAC-SHA256 signature over the raw
// body.
func NewWebhookController(queue Enqueuer, collector metrics.Collector, secret string) *WebhookController {
	return &WebhookController{
		queue:     queue,
		collector: collector,
		secret:    secret,
		validate:  validator.New(),
	}
}

type paymentWebhookRequest struct {
	ID         string `json:"id" validate:"required"`
	Type       string `json:"type"`
	MerchantID string `json:"merchantId"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	CreatedAt  string `json:"createdAt"`
}

// HandlePaymentWebhook handles POST /webhooks/payments. The sender only ever
// sees 202 (accepted for async processing) or a 4xx/5xx at enqueue time; it
// never observes worker-side outcomes.
func (ctrl *WebhookController) HandlePaymentWebhook(c *fiber.Ctx) error {
	body := c.Body()

	if ctrl.secret != "" && !webhook.VerifySignature(body, c.Get(webhook.SignatureHeader), ctrl.secret) {
		log.Warn("[Webhook] Rejected payment event with invalid signature")
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "invalid signature",
		})
	}

	var event paymentWebhookRequest
	if err := json.Unmarshal(body, &event); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid event data",
		})
	}
	if err := ctrl.validate.Struct(&event); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid event data",
		})
	}

	ctrl.collector.Inc(metrics.CounterReceived)

	// Malformed timestamps are tolerated here; only the id gates acceptance.
	createdAt, err := time.Parse(time.RFC3339, event.CreatedAt)
	if err != nil {
		createdAt = time.Now()
	}

	payload := jobqueue.PaymentEventJobPayload{
		EventID:    event.ID,
		Type:       event.Type,
		MerchantID: event.MerchantID,
		Amount:     event.Amount,
		Currency:   event.Currency,
		CreatedAt:  createdAt,
	}

	job, err := ctrl.queue.EnqueueJob(jobqueue.JobTypePaymentEvent, payload.ToMap())
	if err != nil {
		log.Errorf("[Webhook] Failed to enqueue payment event %s: %v", event.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "failed to enqueue event",
			"details": err.Error(),
		})
	}

	log.Infof("[Webhook] Accepted payment event %s as job %s", event.ID, job.ID)
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status":  "accepted",
		"eventId": event.ID,
		"jobId":   job.ID,
	})
}
