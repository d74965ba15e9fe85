package dlq

import (
	"time"
)

// RetryPolicy computes when an item should next be attempted. Delays are a
// stateless function of the attempt number so that next_retry_at survives
// process restarts: delay(k) = min(max_delay, initial · multiplier^k).
type RetryPolicy struct {
	MaxRetries   uint32
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
}

// DefaultRetryPolicy doubles from 30 seconds up to an hour.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   5,
		InitialDelay: 30 * time.Second,
		Multiplier:   2.0,
		MaxDelay:     time.Hour,
	}
}

// ExponentialPolicy builds a policy from explicit parameters.
func ExponentialPolicy(maxRetries uint32, initial time.Duration, multiplier float64, max time.Duration) RetryPolicy {
	return RetryPolicy{
		MaxRetries:   maxRetries,
		InitialDelay: initial,
		Multiplier:   multiplier,
		MaxDelay:     max,
	}
}

// Delay computes the backoff for the k-th retry (k = prior retry count).
func (p RetryPolicy) Delay(k uint32) time.Duration {
	delay := float64(p.InitialDelay)
	for i := uint32(0); i < k; i++ {
		delay *= p.Multiplier
		if delay >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	if delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// ShouldRetry reports whether the item has attempts left under this policy
// and a retryable failure class.
func (p RetryPolicy) ShouldRetry(item Item) bool {
	return item.FailureReason.IsRetryable() &&
		item.RetryCount <= p.MaxRetries &&
		item.RetryCount <= item.MaxRetries
}

// NextRetryTime schedules the item's next attempt. Rate-limit failures
// honour the class floor when it exceeds the computed backoff; a server
// supplied retry-after arrives via NextRetryAfter instead.
func (p RetryPolicy) NextRetryTime(item Item) time.Time {
	delay := p.Delay(item.RetryCount)
	if floor := item.FailureReason.SuggestedDelay(); item.FailureReason == ReasonRateLimit && floor > delay {
		delay = floor
	}
	return time.Now().UTC().Add(delay)
}

// NextRetryAfter schedules from an explicit server retry-after hint.
func (p RetryPolicy) NextRetryAfter(retryAfter time.Duration) time.Time {
	if retryAfter <= 0 {
		retryAfter = p.InitialDelay
	}
	if retryAfter > p.MaxDelay {
		retryAfter = p.MaxDelay
	}
	return time.Now().UTC().Add(retryAfter)
}
