package jobqueue

import (
	"encoding/json"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	JobTypePaymentEvent JobType = "payment_event"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
	JobStatusDeadLetter JobStatus = "dead_letter"
)

// Outcome classifies how a completed job ended. Duplicate is a normal terminal
// state, not a failure: the event was already materialized by an earlier job.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeDuplicate Outcome = "duplicate"
)

// Job represents a queued unit wrapping one validated payment event
type Job struct {
	ID          string                 `json:"id"`
	Type        JobType                `json:"type"`
	Status      JobStatus              `json:"status"`
	Outcome     Outcome                `json:"outcome,omitempty"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
	Attempts    int                    `json:"attempts"`
	MaxAttempts int                    `json:"max_attempts"`
}

// PaymentEventJobPayload contains the validated webhook event carried by a job
type PaymentEventJobPayload struct {
	EventID    string    `json:"event_id"`
	Type       string    `json:"type"`
	MerchantID string    `json:"merchant_id"`
	Amount     int64     `json:"amount"`
	Currency   string    `json:"currency"`
	CreatedAt  time.Time `json:"created_at"`
}

// ToMap converts the payload to a map for storage
func (p PaymentEventJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"event_id":    p.EventID,
		"type":        p.Type,
		"merchant_id": p.MerchantID,
		"amount":      p.Amount,
		"currency":    p.Currency,
		"created_at":  p.CreatedAt.Format(time.RFC3339Nano),
	}
}

// PaymentEventJobPayloadFromMap creates a payload from a map
func PaymentEventJobPayloadFromMap(data map[string]interface{}) (*PaymentEventJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload PaymentEventJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// IsRetryable checks if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.Attempts < j.MaxAttempts
}

// BackoffDelay returns the exponential delay before the next attempt: the base
// delay doubled for every failed attempt so far.
func (j *Job) BackoffDelay() time.Duration {
	if j.Attempts <= 1 {
		return BackoffBaseDelay
	}
	return BackoffBaseDelay << (j.Attempts - 1)
}

// MarkAsProcessing updates the job status to processing
func (j *Job) MarkAsProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.UpdatedAt = now
	j.ProcessedAt = &now
}

// MarkAsCompleted updates the job status to completed with its outcome
func (j *Job) MarkAsCompleted(outcome Outcome) {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.Outcome = outcome
	j.UpdatedAt = now
	j.CompletedAt = &now
	j.ErrorMsg = ""
}

// MarkAsFailed updates the job status to failed and counts the attempt
func (j *Job) MarkAsFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.UpdatedAt = time.Now()
	j.ErrorMsg = errorMsg
	j.Attempts++
}

// MarkAsRetrying updates the job status to retrying
func (j *Job) MarkAsRetrying() {
	j.Status = JobStatusRetrying
	j.UpdatedAt = time.Now()
}

// MarkAsDeadLetter updates the job status to dead-lettered
func (j *Job) MarkAsDeadLetter() {
	j.Status = JobStatusDeadLetter
	j.UpdatedAt = time.Now()
}
