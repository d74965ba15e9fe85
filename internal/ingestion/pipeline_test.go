package ingestion

import (
	"context"
	"testing"
	"time"

	"github.com/costplane/costplane/internal/dlq"
	"github.com/costplane/costplane/internal/domain"
	"github.com/costplane/costplane/internal/engine"
	"github.com/costplane/costplane/internal/money"
	"github.com/costplane/costplane/internal/pricing"
	"github.com/costplane/costplane/internal/storage"
	"github.com/shopspring/decimal"
)

type fixture struct {
	pipeline *Pipeline
	repos    storage.Repositories
	dlqStore *dlq.MemoryStore
	catalog  *pricing.Catalog
}

func newFixture(t *testing.T, limiter RateLimiter) *fixture {
	t.Helper()
	catalog := pricing.NewCatalog()
	table := pricing.NewTable(domain.ProviderOpenAI, "gpt-4",
		pricing.NewPerToken(decimal.NewFromInt(10), decimal.NewFromInt(30))).
		WithWindow(time.Now().UTC().Add(-24*time.Hour), nil)
	if err := catalog.Insert(table); err != nil {
		t.Fatalf("catalog insert failed: %v", err)
	}

	repos := storage.NewMemoryRepositories(catalog)
	dlqStore := dlq.NewMemoryStore()
	pipeline := NewPipeline(DefaultConfig(), engine.NewCalculator(nil), repos, dlqStore, limiter, nil)
	return &fixture{pipeline: pipeline, repos: repos, dlqStore: dlqStore, catalog: catalog}
}

func record(org string) domain.UsageRecord {
	return domain.NewUsageRecord(
		domain.ProviderOpenAI, domain.NewModel("gpt-4", 8192),
		org, 1000, 500,
		time.Now().UTC().Add(-time.Minute),
		domain.APISource("/v1/usage"))
}

func TestSubmit_HappyPath(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	cost, err := f.pipeline.Submit(ctx, record("org-1"))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if !cost.TotalCost.Equal(money.MustParse("0.025")) {
		t.Errorf("total = %s, want 0.025", cost.TotalCost)
	}

	// Both repositories hold the records.
	if _, ok, _ := f.repos.Usage.GetByID(ctx, cost.UsageID); !ok {
		t.Error("usage record not persisted")
	}
	if _, ok, _ := f.repos.Costs.GetByID(ctx, cost.ID); !ok {
		t.Error("cost record not persisted")
	}
	if n, _ := f.dlqStore.Count(ctx); n != 0 {
		t.Error("nothing should be in the DLQ")
	}
}

func TestSubmit_ValidationRejectsBeforeAnything(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	bad := record("")
	_, err := f.pipeline.Submit(ctx, bad)
	if !domain.IsKind(err, domain.ErrMissingOrganization) {
		t.Fatalf("expected missing_organization_id, got %v", err)
	}

	mismatch := record("org-1")
	mismatch.TotalTokens = 42
	if _, err := f.pipeline.Submit(ctx, mismatch); !domain.IsKind(err, domain.ErrTokenCountMismatch) {
		t.Fatalf("expected token_count_mismatch, got %v", err)
	}

	future := record("org-1")
	future.Timestamp = time.Now().UTC().Add(time.Hour)
	if _, err := f.pipeline.Submit(ctx, future); !domain.IsKind(err, domain.ErrFutureTimestamp) {
		t.Fatalf("expected future_timestamp, got %v", err)
	}

	// Validation failures never reach storage or the DLQ.
	all, _ := f.repos.Usage.ListAll(ctx)
	if len(all) != 0 {
		t.Error("rejected records must not be stored")
	}
	if n, _ := f.dlqStore.Count(ctx); n != 0 {
		t.Error("rejected records must not be diverted")
	}
}

func TestSubmit_MissingTariffDiverted(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	unknown := record("org-1")
	unknown.Provider = domain.ProviderCohere
	unknown.Model = domain.ModelIdentifier{Name: "command-r"}

	_, err := f.pipeline.Submit(ctx, unknown)
	if !domain.IsKind(err, domain.ErrMissingTariff) {
		t.Fatalf("expected missing_tariff, got %v", err)
	}

	// The record sits in the DLQ, retryable once pricing is inserted.
	items, _ := f.dlqStore.GetByOrganization(ctx, "org-1", 10)
	if len(items) != 1 {
		t.Fatalf("dlq items = %d, want 1", len(items))
	}
	if items[0].FailureReason != dlq.ReasonDatabase {
		t.Errorf("failure reason = %s, want database_error (reprocessable)", items[0].FailureReason)
	}
	if !items[0].FailureReason.IsRetryable() {
		t.Error("missing-tariff diversions must be retryable")
	}
}

func TestSubmit_ReprocessAfterPricingArrives(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	unknown := record("org-1")
	unknown.Provider = domain.ProviderCohere
	unknown.Model = domain.ModelIdentifier{Name: "command-r"}
	f.pipeline.Submit(ctx, unknown)

	// Ops add the missing tariff; the DLQ processor replays the item.
	table := pricing.NewTable(domain.ProviderCohere, "command-r",
		pricing.NewPerToken(decimal.NewFromInt(1), decimal.NewFromInt(2))).
		WithWindow(time.Now().UTC().Add(-24*time.Hour), nil)
	if err := f.catalog.Insert(table); err != nil {
		t.Fatalf("catalog insert failed: %v", err)
	}

	processor := dlq.NewProcessor(f.dlqStore, f.pipeline.ReprocessHandler(),
		dlq.DefaultProcessorConfig(), nil)
	stats, err := processor.ProcessReadyItems(ctx)
	if err != nil {
		t.Fatalf("reprocess failed: %v", err)
	}
	if stats.Succeeded != 1 {
		t.Errorf("succeeded = %d, want 1", stats.Succeeded)
	}

	costs, _ := f.repos.Costs.ListByOrganization(ctx, "org-1",
		time.Now().UTC().Add(-time.Hour), time.Now().UTC().Add(time.Hour))
	if len(costs) != 1 {
		t.Errorf("replayed cost records = %d, want 1", len(costs))
	}
}

// denyAll always throttles.
type denyAll struct{}

func (denyAll) Allow(string) (bool, time.Duration, error) {
	return false, 30 * time.Second, nil
}

// brokenLimiter simulates a failed bucket-store backend.
type brokenLimiter struct{}

func (brokenLimiter) Allow(string) (bool, time.Duration, error) {
	return false, 0, domain.NewError(domain.ErrDatabase, "bucket store unreachable")
}

func TestSubmit_RateLimited(t *testing.T) {
	f := newFixture(t, denyAll{})
	_, err := f.pipeline.Submit(context.Background(), record("org-1"))
	if !domain.IsKind(err, domain.ErrRateLimited) {
		t.Fatalf("expected rate_limited, got %v", err)
	}
	var derr *domain.Error
	if !asDomainError(err, &derr) || derr.RetryAfterSeconds <= 0 {
		t.Error("rate-limit errors must carry retry-after")
	}
}

func TestSubmit_LimiterFailureFailsOpen(t *testing.T) {
	f := newFixture(t, brokenLimiter{})
	cost, err := f.pipeline.Submit(context.Background(), record("org-1"))
	if err != nil {
		t.Fatalf("a broken limiter must not block ingestion: %v", err)
	}
	if !cost.TotalCost.Equal(money.MustParse("0.025")) {
		t.Errorf("total = %s, want 0.025", cost.TotalCost)
	}
}

func asDomainError(err error, target **domain.Error) bool {
	e, ok := err.(*domain.Error)
	if ok {
		*target = e
	}
	return ok
}

func TestSubmitBatch_PartialSuccess(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	bad := record("org-1")
	bad.TotalTokens = 7

	batch := []domain.UsageRecord{record("org-1"), bad, record("org-2")}
	result, err := f.pipeline.SubmitBatch(ctx, batch)
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}
	if result.Accepted != 2 || result.Rejected != 1 {
		t.Errorf("batch = %d accepted / %d rejected, want 2/1",
			result.Accepted, result.Rejected)
	}
	if len(result.Errors) != 1 || result.Errors[0].Index != 1 {
		t.Error("per-item error should locate index 1")
	}
	if len(result.Costs) != 2 {
		t.Errorf("costs = %d, want 2", len(result.Costs))
	}
}

func TestOrgRateLimiter_BurstAndRefill(t *testing.T) {
	limiter := NewOrgRateLimiter(100, 2)
	defer limiter.Stop()

	ok1, _, _ := limiter.Allow("org-1")
	ok2, _, _ := limiter.Allow("org-1")
	ok3, retryAfter, _ := limiter.Allow("org-1")
	if !ok1 || !ok2 {
		t.Fatal("burst of 2 should admit two submissions")
	}
	if ok3 {
		t.Fatal("third immediate submission should be throttled")
	}
	if retryAfter <= 0 {
		t.Error("denial must suggest a retry-after")
	}

	// Organizations are isolated.
	if ok, _, _ := limiter.Allow("org-2"); !ok {
		t.Error("a different organization must have its own bucket")
	}
}

func TestTelemetryConsumer_NormalizeAndMap(t *testing.T) {
	f := newFixture(t, nil)
	consumer := NewTelemetryConsumer(f.pipeline)
	consumer.MapProvider("oai-gateway", domain.ProviderOpenAI)

	event := TelemetryEvent{
		EventID:          "evt-1",
		Timestamp:        time.Now().UTC().Add(-time.Minute),
		Provider:         "oai-gateway",
		Model:            "gpt-4",
		OrganizationID:   "org-1",
		PromptTokens:     1000,
		CompletionTokens: 500,
	}
	record, err := consumer.Normalize(event)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if record.Provider != domain.ProviderOpenAI {
		t.Errorf("mapped provider = %s, want openai", record.Provider)
	}
	if record.TotalTokens != 1500 {
		t.Errorf("computed total = %d, want 1500", record.TotalTokens)
	}

	// Unmapped names fall back to the parse table, then to custom.
	event.Provider = "anthropic"
	record, _ = consumer.Normalize(event)
	if record.Provider != domain.ProviderAnthropic {
		t.Errorf("parsed provider = %s, want anthropic", record.Provider)
	}
	event.Provider = "in-house-llm"
	record, _ = consumer.Normalize(event)
	if !record.Provider.IsCustom() {
		t.Error("unknown provider should become custom")
	}
}

func TestTelemetryConsumer_ContradictoryTotalRejected(t *testing.T) {
	f := newFixture(t, nil)
	consumer := NewTelemetryConsumer(f.pipeline)

	wrongTotal := uint64(9999)
	event := TelemetryEvent{
		EventID:          "evt-2",
		Timestamp:        time.Now().UTC().Add(-time.Minute),
		Provider:         "openai",
		Model:            "gpt-4",
		OrganizationID:   "org-1",
		PromptTokens:     1000,
		CompletionTokens: 500,
		TotalTokens:      &wrongTotal,
	}
	result := consumer.Consume(context.Background(), event)
	if result.Error == "" {
		t.Fatal("contradictory total must be rejected")
	}
}

func TestTelemetryConsumer_BatchResultVector(t *testing.T) {
	f := newFixture(t, nil)
	consumer := NewTelemetryConsumer(f.pipeline)

	events := []TelemetryEvent{
		{
			EventID: "a", Timestamp: time.Now().UTC().Add(-time.Minute),
			Provider: "openai", Model: "gpt-4", OrganizationID: "org-1",
			PromptTokens: 10, CompletionTokens: 5,
		},
		{
			EventID: "b", Timestamp: time.Now().UTC().Add(-time.Minute),
			Provider: "openai", Model: "gpt-4", OrganizationID: "",
			PromptTokens: 10, CompletionTokens: 5,
		},
	}
	results := consumer.ConsumeBatch(context.Background(), events)
	if len(results) != 2 {
		t.Fatalf("result vector = %d entries, want 2", len(results))
	}
	if results[0].Error != "" || results[0].Cost == nil {
		t.Errorf("first event should succeed: %+v", results[0])
	}
	if results[1].Error == "" {
		t.Error("second event lacks an organization and must fail")
	}
}
