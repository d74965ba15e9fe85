package dlq

import (
	"errors"
	"testing"
	"time"

	"github.com/costplane/costplane/internal/domain"
)

func TestFailureReason_IsRetryable(t *testing.T) {
	retryable := []FailureReason{
		ReasonNetwork, ReasonTimeout, ReasonServiceUnavailable, ReasonRateLimit, ReasonDatabase,
	}
	for _, r := range retryable {
		if !r.IsRetryable() {
			t.Errorf("%s should be retryable", r)
		}
	}

	permanent := []FailureReason{
		ReasonValidation, ReasonParse, ReasonAuth, ReasonInternal, ReasonUnknown,
	}
	for _, r := range permanent {
		if r.IsRetryable() {
			t.Errorf("%s should not be retryable", r)
		}
	}
}

func TestReasonForError_Mapping(t *testing.T) {
	cases := []struct {
		err  error
		want FailureReason
	}{
		{domain.NewError(domain.ErrTokenCountMismatch, "x"), ReasonValidation},
		{domain.NewError(domain.ErrMissingTariff, "x"), ReasonDatabase},
		{domain.NewError(domain.ErrTimeout, "x"), ReasonTimeout},
		{domain.NewError(domain.ErrNetwork, "x"), ReasonNetwork},
		{domain.NewError(domain.ErrServiceUnavailable, "x"), ReasonServiceUnavailable},
		{domain.RateLimitedError(30, "x"), ReasonRateLimit},
		{domain.NewError(domain.ErrParse, "x"), ReasonParse},
		{domain.NewError(domain.ErrAuth, "x"), ReasonAuth},
		{errors.New("plain"), ReasonInternal},
	}
	for _, c := range cases {
		if got := ReasonForError(c.err); got != c.want {
			t.Errorf("ReasonForError(%v) = %s, want %s", c.err, got, c.want)
		}
	}
}

func TestItem_Lifecycle(t *testing.T) {
	item := NewItem("org-1", `{"k":"v"}`, "usage_record", ReasonNetwork, "connection refused", 3)
	now := time.Now().UTC()

	if item.Status != StatusPending || item.RetryCount != 0 {
		t.Fatal("new item should be pending with zero retries")
	}
	if !item.CanRetry(now) || !item.IsReadyForRetry(now) {
		t.Fatal("new item with no schedule should be ready immediately")
	}

	item.RecordAttempt(false, "still failing", 25*time.Millisecond)
	if item.RetryCount != 1 || item.Status != StatusPending {
		t.Errorf("after one failed attempt: count=%d status=%s", item.RetryCount, item.Status)
	}
	if item.RemainingRetries() != 2 {
		t.Errorf("remaining = %d, want 2", item.RemainingRetries())
	}

	item.RecordAttempt(true, "", 30*time.Millisecond)
	if item.Status != StatusProcessed {
		t.Errorf("status = %s, want processed", item.Status)
	}
	if item.ProcessedAt == nil {
		t.Error("processed item must carry processed_at")
	}
	if item.NextRetryAt != nil {
		t.Error("success must clear next_retry_at")
	}
	if len(item.Metadata.RetryHistory) != 2 {
		t.Errorf("history entries = %d, want 2", len(item.Metadata.RetryHistory))
	}
	if !item.Metadata.RetryHistory[1].Succeeded {
		t.Error("final history entry should record success")
	}
}

func TestItem_MaxRetriesExhausted(t *testing.T) {
	// max_retries bounds the retries: an item with max_retries=2 gets the
	// initial attempt plus two retries, three invocations in all.
	item := NewItem("org-1", "{}", "test", ReasonTimeout, "slow", 2)
	now := time.Now().UTC()

	item.RecordAttempt(false, "failed", time.Millisecond)
	if !item.CanRetry(now) {
		t.Fatal("first failure should leave retries")
	}
	item.RecordAttempt(false, "failed again", time.Millisecond)
	if !item.CanRetry(now) {
		t.Fatal("second failure consumes the last retry but one attempt remains")
	}
	item.RecordAttempt(false, "failed for good", time.Millisecond)
	if item.CanRetry(now) {
		t.Error("exhausted item must not retry")
	}
	if item.Status != StatusFailed {
		t.Errorf("status = %s, want failed", item.Status)
	}
}

func TestItem_ReadinessConditions(t *testing.T) {
	now := time.Now().UTC()

	// Scheduled in the future: not ready.
	scheduled := NewItem("org-1", "{}", "test", ReasonNetwork, "x", 3)
	scheduled.ScheduleRetry(now.Add(time.Hour))
	if scheduled.IsReadyForRetry(now) {
		t.Error("item scheduled in the future must not be ready")
	}
	// Past-due schedule: ready.
	scheduled.ScheduleRetry(now.Add(-time.Minute))
	if !scheduled.IsReadyForRetry(now) {
		t.Error("past-due item must be ready")
	}

	// Non-pending statuses are never ready.
	review := NewItem("org-1", "{}", "test", ReasonNetwork, "x", 3)
	review.MarkForReview()
	if review.IsReadyForRetry(now) {
		t.Error("review_required item must not be ready")
	}

	// Expired items are never retried.
	expired := NewItem("org-1", "{}", "test", ReasonNetwork, "x", 3).
		WithExpiration(-time.Minute)
	if expired.IsReadyForRetry(now) {
		t.Error("expired item must not be ready")
	}
	if !expired.IsExpired(now) {
		t.Error("item past its TTL should report expired")
	}
}

func TestItem_ArchiveAndReview(t *testing.T) {
	item := NewItem("org-1", "{}", "test", ReasonInternal, "x", 3)
	item.MarkForReview()
	if item.Status != StatusReviewRequired {
		t.Errorf("status = %s, want review_required", item.Status)
	}
	item.Archive()
	if item.Status != StatusArchived {
		t.Errorf("status = %s, want archived", item.Status)
	}
}

func TestRetryPolicy_DelaySchedule(t *testing.T) {
	policy := ExponentialPolicy(5, 30*time.Second, 2.0, time.Hour)
	cases := []struct {
		k    uint32
		want time.Duration
	}{
		{0, 30 * time.Second},
		{1, time.Minute},
		{2, 2 * time.Minute},
		{3, 4 * time.Minute},
		{10, time.Hour}, // capped
	}
	for _, c := range cases {
		if got := policy.Delay(c.k); got != c.want {
			t.Errorf("Delay(%d) = %s, want %s", c.k, got, c.want)
		}
	}
}

func TestRetryPolicy_ShouldRetry(t *testing.T) {
	policy := DefaultRetryPolicy()

	validation := NewItem("org-1", "{}", "test", ReasonValidation, "bad", 3)
	if policy.ShouldRetry(validation) {
		t.Error("validation failures must never retry")
	}

	network := NewItem("org-1", "{}", "test", ReasonNetwork, "down", 3)
	if !policy.ShouldRetry(network) {
		t.Error("network failures should retry")
	}

	network.RetryCount = 4
	if policy.ShouldRetry(network) {
		t.Error("exhausted item must not retry")
	}
}

func TestRetryPolicy_RateLimitFloor(t *testing.T) {
	policy := ExponentialPolicy(5, time.Second, 2.0, time.Hour)
	item := NewItem("org-1", "{}", "test", ReasonRateLimit, "429", 5)

	// Backoff for attempt 0 would be 1s; the rate-limit floor of 60s wins.
	next := policy.NextRetryTime(item)
	if until := time.Until(next); until < 55*time.Second {
		t.Errorf("rate-limit retry scheduled too soon: %s", until)
	}

	// An explicit server retry-after overrides the schedule.
	at := policy.NextRetryAfter(10 * time.Second)
	if until := time.Until(at); until > 11*time.Second || until < 8*time.Second {
		t.Errorf("retry-after not honoured: %s", until)
	}
}
