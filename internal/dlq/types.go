package dlq

// Package dlq holds failed work units for scheduled, bounded retry.
//
// Responsibilities:
//   - Item lifecycle: pending → retrying → processed | failed |
//     review_required | archived
//   - Failure classification: only transient failures are retryable
//   - Exponential-backoff scheduling with per-item retry history
//   - Pluggable stores (in-memory reference, SQLite durable)
//   - Semaphore-bounded batch processing with a registered handler

import (
	"time"

	"github.com/costplane/costplane/internal/domain"
	"github.com/google/uuid"
)

// Status is the DLQ item lifecycle state.
type Status string

const (
	StatusPending        Status = "pending"
	StatusRetrying       Status = "retrying"
	StatusProcessed      Status = "processed"
	StatusFailed         Status = "failed"
	StatusReviewRequired Status = "review_required"
	StatusArchived       Status = "archived"
)

// FailureReason classifies why the primary processing path failed.
type FailureReason string

const (
	ReasonValidation         FailureReason = "validation_error"
	ReasonRateLimit          FailureReason = "rate_limit_exceeded"
	ReasonDatabase           FailureReason = "database_error"
	ReasonNetwork            FailureReason = "network_error"
	ReasonTimeout            FailureReason = "timeout"
	ReasonAuth               FailureReason = "authentication_error"
	ReasonParse              FailureReason = "parse_error"
	ReasonServiceUnavailable FailureReason = "service_unavailable"
	ReasonInternal           FailureReason = "internal_error"
	ReasonUnknown            FailureReason = "unknown"
)

// IsRetryable reports whether a failure class is worth retrying. Malformed
// or unauthorized work never succeeds on retry.
func (r FailureReason) IsRetryable() bool {
	switch r {
	case ReasonNetwork, ReasonTimeout, ReasonServiceUnavailable, ReasonRateLimit, ReasonDatabase:
		return true
	}
	return false
}

// SuggestedDelay is the class-specific minimum retry delay. NextRetryTime
// applies it as a floor to rate-limit failures only.
func (r FailureReason) SuggestedDelay() time.Duration {
	switch r {
	case ReasonRateLimit:
		return time.Minute
	case ReasonNetwork, ReasonServiceUnavailable:
		return 30 * time.Second
	case ReasonTimeout:
		return 20 * time.Second
	case ReasonDatabase:
		return 10 * time.Second
	default:
		return 5 * time.Second
	}
}

// ReasonForError maps the pipeline's error taxonomy onto a failure reason.
func ReasonForError(err error) FailureReason {
	switch domain.KindOf(err) {
	case domain.ErrInvalidTokenCount, domain.ErrTokenCountMismatch,
		domain.ErrMissingOrganization, domain.ErrFutureTimestamp,
		domain.ErrValidation, domain.ErrContractValidation:
		return ReasonValidation
	case domain.ErrRateLimited:
		return ReasonRateLimit
	case domain.ErrDatabase, domain.ErrMissingTariff:
		// A missing tariff is reprocessable once ops add pricing.
		return ReasonDatabase
	case domain.ErrNetwork:
		return ReasonNetwork
	case domain.ErrTimeout:
		return ReasonTimeout
	case domain.ErrServiceUnavailable, domain.ErrCircuitBreakerOpen:
		return ReasonServiceUnavailable
	case domain.ErrParse:
		return ReasonParse
	case domain.ErrAuth:
		return ReasonAuth
	case domain.ErrArithmetic, domain.ErrInvalidPricing, domain.ErrInternal:
		return ReasonInternal
	}
	return ReasonUnknown
}

// RetryAttempt is one entry of an item's immutable retry history.
type RetryAttempt struct {
	AttemptedAt time.Time `json:"attempted_at"`
	Succeeded   bool      `json:"succeeded"`
	Error       string    `json:"error,omitempty"`
	DurationMs  float64   `json:"duration_ms"`
}

// Metadata carries provenance and the retry history.
type Metadata struct {
	Source        string            `json:"source,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	StatusCode    int               `json:"status_code,omitempty"`
	RetryHistory  []RetryAttempt    `json:"retry_history,omitempty"`
	Tags          []string          `json:"tags,omitempty"`
	CustomFields  map[string]string `json:"custom_fields,omitempty"`
}

// Item is one failed work unit pending retry.
type Item struct {
	ID             uuid.UUID     `json:"id"`
	OrganizationID string        `json:"organization_id"`
	Payload        string        `json:"payload"`
	ItemType       string        `json:"item_type"`
	Status         Status        `json:"status"`
	FailureReason  FailureReason `json:"failure_reason"`
	ErrorMessage   string        `json:"error_message"`
	ErrorDetails   string        `json:"error_details,omitempty"`
	RetryCount     uint32        `json:"retry_count"`
	MaxRetries     uint32        `json:"max_retries"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
	NextRetryAt    *time.Time    `json:"next_retry_at,omitempty"`
	ProcessedAt    *time.Time    `json:"processed_at,omitempty"`
	ExpiresAt      *time.Time    `json:"expires_at,omitempty"`
	Metadata       Metadata      `json:"metadata"`
}

// NewItem builds a pending item.
func NewItem(orgID, payload, itemType string, reason FailureReason, errorMessage string, maxRetries uint32) Item {
	now := time.Now().UTC()
	return Item{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Payload:        payload,
		ItemType:       itemType,
		Status:         StatusPending,
		FailureReason:  reason,
		ErrorMessage:   errorMessage,
		MaxRetries:     maxRetries,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// WithExpiration returns a copy that expires after the given duration.
func (i Item) WithExpiration(ttl time.Duration) Item {
	expires := time.Now().UTC().Add(ttl)
	i.ExpiresAt = &expires
	return i
}

// WithMetadata returns a copy carrying the metadata.
func (i Item) WithMetadata(m Metadata) Item {
	i.Metadata = m
	return i
}

// IsExpired reports whether the item's TTL has passed.
func (i Item) IsExpired(now time.Time) bool {
	return i.ExpiresAt != nil && now.After(*i.ExpiresAt)
}

// CanRetry reports whether the item is still eligible for another
// attempt. MaxRetries bounds the retries, not the invocations: an item is
// attempted at most max_retries+1 times, so eligibility holds while
// retry_count has not passed max_retries.
func (i Item) CanRetry(now time.Time) bool {
	return i.Status == StatusPending &&
		i.RetryCount <= i.MaxRetries &&
		!i.IsExpired(now)
}

// IsReadyForRetry additionally requires the backoff schedule to have
// elapsed. An item with no next_retry_at is ready immediately.
func (i Item) IsReadyForRetry(now time.Time) bool {
	if !i.CanRetry(now) {
		return false
	}
	return i.NextRetryAt == nil || !now.Before(*i.NextRetryAt)
}

// RemainingRetries is max_retries - retry_count, floored at zero.
func (i Item) RemainingRetries() uint32 {
	if i.RetryCount >= i.MaxRetries {
		return 0
	}
	return i.MaxRetries - i.RetryCount
}

// RecordAttempt appends to the retry history and advances the lifecycle.
// Every handler invocation counts: retry_count includes the final
// successful attempt.
func (i *Item) RecordAttempt(succeeded bool, errMessage string, duration time.Duration) {
	now := time.Now().UTC()
	i.RetryCount++
	i.UpdatedAt = now
	i.Metadata.RetryHistory = append(i.Metadata.RetryHistory, RetryAttempt{
		AttemptedAt: now,
		Succeeded:   succeeded,
		Error:       errMessage,
		DurationMs:  float64(duration.Microseconds()) / 1000.0,
	})

	if succeeded {
		i.Status = StatusProcessed
		i.ProcessedAt = &now
		i.NextRetryAt = nil
	} else if i.RetryCount > i.MaxRetries {
		i.Status = StatusFailed
		i.NextRetryAt = nil
	} else {
		i.Status = StatusPending
	}
}

// ScheduleRetry sets the next retry time and returns the item to pending.
func (i *Item) ScheduleRetry(at time.Time) {
	i.NextRetryAt = &at
	i.Status = StatusPending
	i.UpdatedAt = time.Now().UTC()
}

// MarkForReview hands the item to an operator.
func (i *Item) MarkForReview() {
	i.Status = StatusReviewRequired
	i.UpdatedAt = time.Now().UTC()
}

// Archive retires the item.
func (i *Item) Archive() {
	i.Status = StatusArchived
	i.UpdatedAt = time.Now().UTC()
}
