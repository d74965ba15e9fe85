package dlq

import (
	"context"
	"sync"
	"time"

	"github.com/costplane/costplane/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// OutcomeKind is the handler's verdict on one item.
type OutcomeKind int

const (
	// OutcomeSuccess marks the item processed.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeRetry schedules another attempt if any remain.
	OutcomeRetry
	// OutcomeFailed fails the item immediately.
	OutcomeFailed
	// OutcomeNeedsReview parks the item for an operator.
	OutcomeNeedsReview
)

// Outcome is the handler result.
type Outcome struct {
	Kind   OutcomeKind
	Err    string
	Reason string
}

func Success() Outcome             { return Outcome{Kind: OutcomeSuccess} }
func Retry(err string) Outcome     { return Outcome{Kind: OutcomeRetry, Err: err} }
func Failed(err string) Outcome    { return Outcome{Kind: OutcomeFailed, Err: err} }
func NeedsReview(r string) Outcome { return Outcome{Kind: OutcomeNeedsReview, Reason: r} }

// Handler processes one DLQ item.
type Handler interface {
	Process(ctx context.Context, item Item) Outcome
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, item Item) Outcome

func (f HandlerFunc) Process(ctx context.Context, item Item) Outcome { return f(ctx, item) }

// ProcessorConfig tunes the retry processor.
type ProcessorConfig struct {
	Enabled       bool
	BatchSize     int
	MaxConcurrent int64
	PollInterval  time.Duration
	CleanupEvery  time.Duration
	Policy        RetryPolicy
}

// DefaultProcessorConfig processes batches of 50 with 10 concurrent
// permits.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		Enabled:       true,
		BatchSize:     50,
		MaxConcurrent: 10,
		PollInterval:  30 * time.Second,
		CleanupEvery:  time.Hour,
		Policy:        DefaultRetryPolicy(),
	}
}

// BatchStats summarizes one processing tick.
type BatchStats struct {
	Processed   int `json:"processed"`
	Succeeded   int `json:"succeeded"`
	Failed      int `json:"failed"`
	Retried     int `json:"retried"`
	NeedsReview int `json:"needs_review"`
	Errors      int `json:"errors"`
}

func (s *BatchStats) merge(other BatchStats) {
	s.Processed += other.Processed
	s.Succeeded += other.Succeeded
	s.Failed += other.Failed
	s.Retried += other.Retried
	s.NeedsReview += other.NeedsReview
	s.Errors += other.Errors
}

// Processor drains ready items through the registered handler. Parallelism
// is bounded by a semaphore regardless of batch size; retries within one
// tick are independent, and no ordering across items is promised.
type Processor struct {
	store   Store
	handler Handler
	cfg     ProcessorConfig
	sem     *semaphore.Weighted
	log     *zap.Logger
}

// NewProcessor builds a processor. A nil logger disables logging.
func NewProcessor(store Store, handler Handler, cfg ProcessorConfig, log *zap.Logger) *Processor {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 10
	}
	return &Processor{
		store:   store,
		handler: handler,
		cfg:     cfg,
		sem:     semaphore.NewWeighted(cfg.MaxConcurrent),
		log:     log,
	}
}

// ProcessReadyItems runs one tick: fetch up to batch-size ready items,
// acquire a permit per item, invoke the handler, and write the outcome
// back.
func (p *Processor) ProcessReadyItems(ctx context.Context) (BatchStats, error) {
	var stats BatchStats
	if !p.cfg.Enabled {
		return stats, nil
	}

	items, err := p.store.GetReadyForRetry(ctx, p.cfg.BatchSize)
	if err != nil {
		return stats, err
	}
	if len(items) == 0 {
		return stats, nil
	}

	p.log.Info("processing dlq items ready for retry", zap.Int("count", len(items)))

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, item := range items {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			stats.Errors++
			mu.Unlock()
			break
		}
		wg.Add(1)
		go func(item Item) {
			defer wg.Done()
			defer p.sem.Release(1)
			itemStats, err := p.processItem(ctx, item)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				p.log.Error("dlq item processing error",
					zap.String("id", item.ID.String()), zap.Error(err))
				stats.Errors++
				return
			}
			stats.merge(itemStats)
		}(item)
	}
	wg.Wait()

	p.log.Info("dlq batch completed",
		zap.Int("processed", stats.Processed),
		zap.Int("succeeded", stats.Succeeded),
		zap.Int("failed", stats.Failed),
		zap.Int("retried", stats.Retried))
	return stats, nil
}

func (p *Processor) processItem(ctx context.Context, item Item) (BatchStats, error) {
	stats := BatchStats{Processed: 1}
	start := time.Now()

	item.Status = StatusRetrying
	item.UpdatedAt = time.Now().UTC()
	if err := p.store.Update(ctx, item); err != nil {
		return stats, err
	}

	outcome := p.handler.Process(ctx, item)
	duration := time.Since(start)

	switch outcome.Kind {
	case OutcomeSuccess:
		item.RecordAttempt(true, "", duration)
		stats.Succeeded = 1
		metrics.DlqRetries.WithLabelValues("success").Inc()
		p.log.Debug("dlq item processed", zap.String("id", item.ID.String()))

	case OutcomeRetry:
		item.RecordAttempt(false, outcome.Err, duration)
		if p.cfg.Policy.ShouldRetry(item) {
			item.ScheduleRetry(p.cfg.Policy.NextRetryTime(item))
			stats.Retried = 1
			metrics.DlqRetries.WithLabelValues("retry").Inc()
		} else {
			item.Status = StatusFailed
			stats.Failed = 1
			metrics.DlqRetries.WithLabelValues("exhausted").Inc()
			p.log.Warn("dlq item exhausted retries",
				zap.String("id", item.ID.String()),
				zap.String("error", outcome.Err))
		}

	case OutcomeFailed:
		item.RecordAttempt(false, outcome.Err, duration)
		item.Status = StatusFailed
		stats.Failed = 1
		p.log.Warn("dlq item permanently failed",
			zap.String("id", item.ID.String()),
			zap.String("error", outcome.Err))

	case OutcomeNeedsReview:
		item.MarkForReview()
		item.ErrorDetails = outcome.Reason
		stats.NeedsReview = 1
		p.log.Warn("dlq item marked for review",
			zap.String("id", item.ID.String()),
			zap.String("reason", outcome.Reason))
	}

	if err := p.store.Update(ctx, item); err != nil {
		return stats, err
	}
	return stats, nil
}

// CleanupExpired removes items past their TTL.
func (p *Processor) CleanupExpired(ctx context.Context) (int, error) {
	if !p.cfg.Enabled {
		return 0, nil
	}
	count, err := p.store.CleanupExpired(ctx)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		p.log.Info("cleaned up expired dlq items", zap.Int("count", count))
	}
	return count, nil
}

// Run drives the processor until the context ends: one handler tick per
// poll interval and a periodic expiration sweep.
func (p *Processor) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()
	cleanup := time.NewTicker(p.cfg.CleanupEvery)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.ProcessReadyItems(ctx); err != nil {
				p.log.Error("dlq tick failed", zap.Error(err))
			}
		case <-cleanup.C:
			if _, err := p.CleanupExpired(ctx); err != nil {
				p.log.Error("dlq cleanup failed", zap.Error(err))
			}
		}
	}
}

// Stats reports the queue census and refreshes the depth gauges.
func (p *Processor) Stats(ctx context.Context) (Stats, error) {
	stats, err := CollectStats(ctx, p.store)
	if err != nil {
		return Stats{}, err
	}
	metrics.DlqDepth.WithLabelValues(string(StatusPending)).Set(float64(stats.Pending))
	metrics.DlqDepth.WithLabelValues(string(StatusRetrying)).Set(float64(stats.Retrying))
	metrics.DlqDepth.WithLabelValues(string(StatusFailed)).Set(float64(stats.Failed))
	metrics.DlqDepth.WithLabelValues(string(StatusReviewRequired)).Set(float64(stats.ReviewRequired))
	return stats, nil
}
