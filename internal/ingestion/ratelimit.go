package ingestion

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// OrgRateLimiter keeps one token bucket per organization. Buckets are
// created on first use and swept after a period of inactivity so the map
// does not grow with every tenant ever seen.
type OrgRateLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*orgBucket
	rps      rate.Limit
	burst    int
	stopCh   chan struct{}
	stopOnce sync.Once
}

type orgBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewOrgRateLimiter builds a limiter allowing rps sustained submissions
// with the given burst per organization.
func NewOrgRateLimiter(rps float64, burst int) *OrgRateLimiter {
	l := &OrgRateLimiter{
		buckets: make(map[string]*orgBucket),
		rps:     rate.Limit(rps),
		burst:   burst,
		stopCh:  make(chan struct{}),
	}
	go l.sweep()
	return l
}

// Allow reports whether the organization may submit now. When it denies,
// the second return value is the suggested retry-after. The in-memory
// registry cannot fail, so the error is always nil; pluggable backends
// surface registry failures through it and the pipeline fails open.
func (l *OrgRateLimiter) Allow(orgID string) (bool, time.Duration, error) {
	l.mu.Lock()
	b, ok := l.buckets[orgID]
	if !ok {
		b = &orgBucket{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.buckets[orgID] = b
	}
	b.lastSeen = time.Now()
	l.mu.Unlock()

	if b.limiter.Allow() {
		return true, 0, nil
	}
	// Reservation tells us how long until a token frees up.
	r := b.limiter.Reserve()
	delay := r.Delay()
	r.Cancel()
	if delay <= 0 {
		delay = time.Second
	}
	return false, delay, nil
}

// sweep removes buckets idle for ten minutes.
func (l *OrgRateLimiter) sweep() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-10 * time.Minute)
			l.mu.Lock()
			for org, b := range l.buckets {
				if b.lastSeen.Before(cutoff) {
					delete(l.buckets, org)
				}
			}
			l.mu.Unlock()
		}
	}
}

// Stop ends the sweep loop.
func (l *OrgRateLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}
