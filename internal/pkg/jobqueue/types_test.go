package jobqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentEventJobPayloadRoundTrip(t *testing.T) {
	payload := PaymentEventJobPayload{
		EventID:    "evt_12345",
		Type:       "payment.succeeded",
		MerchantID: "merchant_abc",
		Amount:     1000,
		Currency:   "USD",
		CreatedAt:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	restored, err := PaymentEventJobPayloadFromMap(payload.ToMap())
	require.NoError(t, err)

	assert.Equal(t, payload.EventID, restored.EventID)
	assert.Equal(t, payload.Type, restored.Type)
	assert.Equal(t, payload.MerchantID, restored.MerchantID)
	assert.Equal(t, payload.Amount, restored.Amount)
	assert.Equal(t, payload.Currency, restored.Currency)
	assert.True(t, payload.CreatedAt.Equal(restored.CreatedAt))
}

func TestJobStateTransitions(t *testing.T) {
	job := &Job{
		ID:          "j1",
		Type:        JobTypePaymentEvent,
		Status:      JobStatusPending,
		MaxAttempts: DefaultMaxAttempts,
	}

	job.MarkAsProcessing()
	assert.Equal(t, JobStatusProcessing, job.Status)
	assert.NotNil(t, job.ProcessedAt)

	job.MarkAsFailed("account missing")
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, 1, job.Attempts)
	assert.Equal(t, "account missing", job.ErrorMsg)
	assert.True(t, job.IsRetryable())

	job.MarkAsFailed("account missing")
	assert.True(t, job.IsRetryable())

	job.MarkAsFailed("account missing")
	assert.Equal(t, DefaultMaxAttempts, job.Attempts)
	assert.False(t, job.IsRetryable(), "third failure exhausts the attempt ceiling")

	job.MarkAsDeadLetter()
	assert.Equal(t, JobStatusDeadLetter, job.Status)
}

func TestMarkAsCompletedRecordsOutcome(t *testing.T) {
	job := &Job{ID: "j1", Status: JobStatusProcessing, ErrorMsg: "stale"}

	job.MarkAsCompleted(OutcomeDuplicate)
	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.Equal(t, OutcomeDuplicate, job.Outcome)
	assert.NotNil(t, job.CompletedAt)
	assert.Empty(t, job.ErrorMsg)
}

func TestBackoffDelayDoublesPerAttempt(t *testing.T) {
	tests := []struct {
		attempts int
		expected time.Duration
	}{
		{0, 2 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
	}

	for _, tt := range tests {
		job := &Job{Attempts: tt.attempts}
		assert.Equal(t, tt.expected, job.BackoffDelay(), "attempts=%d", tt.attempts)
	}
}
