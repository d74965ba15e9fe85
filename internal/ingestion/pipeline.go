package ingestion

// Package ingestion validates, rate-limits, and normalizes upstream usage
// events, then hands them to the cost calculator. Unrecoverable producer
// failures are diverted to the dead-letter queue for scheduled retry.

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/costplane/costplane/internal/audit"
	"github.com/costplane/costplane/internal/dlq"
	"github.com/costplane/costplane/internal/domain"
	"github.com/costplane/costplane/internal/engine"
	"github.com/costplane/costplane/internal/metrics"
	"github.com/costplane/costplane/internal/storage"
	"go.uber.org/zap"
)

// RateLimiter is the per-organization admission check. An error return
// means the limiter registry itself failed; the pipeline then fails open,
// preferring availability over strict limiting.
type RateLimiter interface {
	Allow(orgID string) (allowed bool, retryAfter time.Duration, err error)
}

// Config tunes the pipeline.
type Config struct {
	// MaxRetries is carried onto DLQ items created by the pipeline.
	MaxRetries uint32
	// DlqTTL bounds how long diverted payloads stay retryable.
	DlqTTL time.Duration
}

// DefaultConfig allows three retries over seven days.
func DefaultConfig() Config {
	return Config{MaxRetries: 3, DlqTTL: 7 * 24 * time.Hour}
}

// IngestionTrail records rejections and DLQ diversions for the audit log;
// the audit package's Logger satisfies it.
type IngestionTrail interface {
	LogUsageRejected(ctx context.Context, orgID string, err error) error
	LogDlqTransition(ctx context.Context, eventType audit.EventType, itemID, orgID string, err error) error
}

// Pipeline is the ingestion front door.
type Pipeline struct {
	cfg        Config
	calculator *engine.Calculator
	repos      storage.Repositories
	dlqStore   dlq.Store
	limiter    RateLimiter
	trail      IngestionTrail
	log        *zap.Logger
}

// NewPipeline wires the pipeline. A nil limiter disables rate limiting; a
// nil logger disables logging.
func NewPipeline(cfg Config, calculator *engine.Calculator, repos storage.Repositories, dlqStore dlq.Store, limiter RateLimiter, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		cfg:        cfg,
		calculator: calculator,
		repos:      repos,
		dlqStore:   dlqStore,
		limiter:    limiter,
		log:        log,
	}
}

// WithAuditTrail attaches an audit trail recorder.
func (p *Pipeline) WithAuditTrail(trail IngestionTrail) *Pipeline {
	p.trail = trail
	return p
}

// Submit runs one record through validate → rate-limit → calculate →
// persist. Validation failures are returned to the caller (the record
// never entered the system). Calculation and persistence failures are
// diverted to the DLQ and reported.
func (p *Pipeline) Submit(ctx context.Context, record domain.UsageRecord) (domain.CostRecord, error) {
	now := time.Now().UTC()

	if err := record.Validate(now); err != nil {
		metrics.UsageRecordsRejected.WithLabelValues(string(domain.KindOf(err))).Inc()
		if p.trail != nil {
			p.trail.LogUsageRejected(ctx, record.OrganizationID, err)
		}
		return domain.CostRecord{}, err
	}

	if p.limiter != nil {
		allowed, retryAfter, limiterErr := p.limiter.Allow(record.OrganizationID)
		switch {
		case limiterErr != nil:
			// Fail open: a broken limiter registry must not block ingestion.
			p.log.Warn("rate limiter unavailable, admitting request",
				zap.String("organization_id", record.OrganizationID),
				zap.Error(limiterErr))
		case !allowed:
			metrics.RateLimitThrottled.WithLabelValues(record.OrganizationID).Inc()
			return domain.CostRecord{}, domain.RateLimitedError(
				int64(retryAfter.Seconds())+1,
				"organization %s over submission rate", record.OrganizationID)
		}
	}

	if p.repos.Usage != nil {
		if err := p.repos.Usage.Create(ctx, record); err != nil {
			p.divert(ctx, record, err)
			return domain.CostRecord{}, err
		}
	}

	table, err := p.repos.Pricing.GetActive(ctx, record.Provider, record.Model.Name, record.Timestamp)
	if err != nil {
		// Missing tariffs are reprocessable once ops insert pricing.
		p.divert(ctx, record, err)
		return domain.CostRecord{}, err
	}

	cost, err := p.calculator.Calculate(record, table)
	if err != nil {
		metrics.CostCalculations.WithLabelValues(
			record.Provider.String(), string(table.Pricing.Type), "error").Inc()
		p.divert(ctx, record, err)
		return domain.CostRecord{}, err
	}
	metrics.CostCalculations.WithLabelValues(
		record.Provider.String(), string(table.Pricing.Type), "ok").Inc()
	if cost.Currency == domain.CurrencyUSD {
		usd, _ := cost.TotalCost.Float64()
		metrics.CostUSD.WithLabelValues(cost.Provider.String(), cost.Model).Add(usd)
	}

	if p.repos.Costs != nil {
		if err := p.repos.Costs.Create(ctx, cost); err != nil {
			p.divert(ctx, record, err)
			return domain.CostRecord{}, err
		}
	}

	metrics.UsageRecordsIngested.WithLabelValues(
		record.Provider.String(), string(record.Source.Type)).Inc()
	return cost, nil
}

// BatchResult reports partial success: rejections never abort a batch.
type BatchResult struct {
	Accepted int                 `json:"accepted"`
	Rejected int                 `json:"rejected"`
	Costs    []domain.CostRecord `json:"costs"`
	Errors   []BatchError        `json:"errors"`
}

// BatchError locates one failed item within a batch.
type BatchError struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// SubmitBatch processes records independently and reports per-item
// results. Cancellation is honoured at item boundaries.
func (p *Pipeline) SubmitBatch(ctx context.Context, records []domain.UsageRecord) (BatchResult, error) {
	var result BatchResult
	for i, record := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		cost, err := p.Submit(ctx, record)
		if err != nil {
			result.Rejected++
			result.Errors = append(result.Errors, BatchError{Index: i, Error: err.Error()})
			continue
		}
		result.Accepted++
		result.Costs = append(result.Costs, cost)
	}
	return result, nil
}

// divert serializes the record into the DLQ with the mapped failure
// reason. Validation-class failures land already failed (they will never
// succeed on retry); transient ones are scheduled per the retry policy.
func (p *Pipeline) divert(ctx context.Context, record domain.UsageRecord, cause error) {
	if p.dlqStore == nil {
		return
	}
	payload, err := json.Marshal(record)
	if err != nil {
		p.log.Error("cannot serialize record for dlq",
			zap.String("usage_id", record.ID.String()), zap.Error(err))
		return
	}

	reason := dlq.ReasonForError(cause)
	item := dlq.NewItem(record.OrganizationID, string(payload), "usage_record",
		reason, cause.Error(), p.cfg.MaxRetries).
		WithExpiration(p.cfg.DlqTTL).
		WithMetadata(dlq.Metadata{
			Source:        string(record.Source.Type),
			CorrelationID: record.ID.String(),
		})

	if !reason.IsRetryable() {
		item.Status = dlq.StatusFailed
		item.RetryCount = item.MaxRetries
	}

	if err := p.dlqStore.Add(ctx, item); err != nil {
		p.log.Error("dlq divert failed",
			zap.String("usage_id", record.ID.String()), zap.Error(err))
		return
	}
	metrics.DlqItemsAdded.WithLabelValues(string(reason)).Inc()
	if p.trail != nil {
		p.trail.LogDlqTransition(ctx, audit.EventDlqItemAdded,
			item.ID.String(), record.OrganizationID, cause)
	}
	p.log.Warn("usage record diverted to dlq",
		zap.String("usage_id", record.ID.String()),
		zap.String("failure_reason", string(reason)),
		zap.String("error", cause.Error()))
}

// ReprocessHandler builds a DLQ handler that re-runs diverted usage
// records through the pipeline. Payloads that no longer parse are not
// retried.
func (p *Pipeline) ReprocessHandler() dlq.Handler {
	return dlq.HandlerFunc(func(ctx context.Context, item dlq.Item) dlq.Outcome {
		var record domain.UsageRecord
		if err := json.Unmarshal([]byte(item.Payload), &record); err != nil {
			return dlq.Failed(fmt.Sprintf("payload no longer parses: %v", err))
		}
		// Skip the usage insert on reprocessing: the record was stored on
		// first admission.
		table, err := p.repos.Pricing.GetActive(ctx, record.Provider, record.Model.Name, record.Timestamp)
		if err != nil {
			return dlq.Retry(err.Error())
		}
		cost, err := p.calculator.Calculate(record, table)
		if err != nil {
			if domain.IsKind(err, domain.ErrInvalidPricing) {
				return dlq.NeedsReview(err.Error())
			}
			return dlq.Retry(err.Error())
		}
		if p.repos.Costs != nil {
			if err := p.repos.Costs.Create(ctx, cost); err != nil {
				return dlq.Retry(err.Error())
			}
		}
		return dlq.Success()
	})
}
