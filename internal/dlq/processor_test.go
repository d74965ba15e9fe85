package dlq

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testProcessorConfig() ProcessorConfig {
	cfg := DefaultProcessorConfig()
	cfg.Policy = ExponentialPolicy(5, time.Millisecond, 2.0, time.Second)
	return cfg
}

func TestProcessor_S8_RetryLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	item := NewItem("org-1", `{"usage":"u-1"}`, "usage_record", ReasonNetwork, "unreachable", 3)
	if err := store.Add(ctx, item); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	// Handler fails three times, then succeeds on the fourth invocation.
	var invocations atomic.Int32
	handler := HandlerFunc(func(_ context.Context, _ Item) Outcome {
		if invocations.Add(1) <= 3 {
			return Retry("still down")
		}
		return Success()
	})

	processor := NewProcessor(store, handler, testProcessorConfig(), nil)
	for i := 0; i < 4; i++ {
		// Clear the backoff schedule so each tick sees the item as ready.
		current, _, _ := store.Get(ctx, item.ID)
		if current.NextRetryAt != nil {
			current.NextRetryAt = nil
			store.Update(ctx, current)
		}
		if _, err := processor.ProcessReadyItems(ctx); err != nil {
			t.Fatalf("tick %d failed: %v", i, err)
		}
	}

	final, ok, _ := store.Get(ctx, item.ID)
	if !ok {
		t.Fatal("item vanished")
	}
	if final.Status != StatusProcessed {
		t.Errorf("status = %s, want processed", final.Status)
	}
	// Every handler invocation appends history and bumps the count, the
	// final success included.
	if len(final.Metadata.RetryHistory) != 4 {
		t.Errorf("history entries = %d, want 4", len(final.Metadata.RetryHistory))
	}
	if final.RetryCount != 4 {
		t.Errorf("retry_count = %d, want 4 (invocation-counting convention)", final.RetryCount)
	}
	if final.ProcessedAt == nil {
		t.Error("processed item must carry processed_at")
	}
}

func TestProcessor_RetryExhaustionFails(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	item := NewItem("org-1", "{}", "usage_record", ReasonTimeout, "slow", 2)
	store.Add(ctx, item)

	handler := HandlerFunc(func(context.Context, Item) Outcome {
		return Retry("never recovers")
	})
	processor := NewProcessor(store, handler, testProcessorConfig(), nil)

	for i := 0; i < 3; i++ {
		current, _, _ := store.Get(ctx, item.ID)
		current.NextRetryAt = nil
		if current.Status == StatusPending {
			store.Update(ctx, current)
		}
		processor.ProcessReadyItems(ctx)
	}

	final, _, _ := store.Get(ctx, item.ID)
	if final.Status != StatusFailed {
		t.Errorf("status = %s, want failed after exhaustion", final.Status)
	}
}

func TestProcessor_FailedOutcomeIsImmediate(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	item := NewItem("org-1", "{}", "usage_record", ReasonNetwork, "x", 5)
	store.Add(ctx, item)

	handler := HandlerFunc(func(context.Context, Item) Outcome {
		return Failed("payload unprocessable")
	})
	processor := NewProcessor(store, handler, testProcessorConfig(), nil)
	stats, err := processor.ProcessReadyItems(ctx)
	if err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	if stats.Failed != 1 {
		t.Errorf("failed = %d, want 1", stats.Failed)
	}

	final, _, _ := store.Get(ctx, item.ID)
	if final.Status != StatusFailed {
		t.Errorf("status = %s, want failed", final.Status)
	}
	if final.RemainingRetries() == 0 && final.MaxRetries == 5 && final.RetryCount >= 5 {
		t.Error("immediate failure should not consume all retries")
	}
}

func TestProcessor_NeedsReview(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	item := NewItem("org-1", "{}", "usage_record", ReasonUnknown, "x", 3)
	store.Add(ctx, item)

	handler := HandlerFunc(func(context.Context, Item) Outcome {
		return NeedsReview("ambiguous payload, operator decision needed")
	})
	processor := NewProcessor(store, handler, testProcessorConfig(), nil)
	stats, _ := processor.ProcessReadyItems(ctx)
	if stats.NeedsReview != 1 {
		t.Errorf("needs_review = %d, want 1", stats.NeedsReview)
	}

	final, _, _ := store.Get(ctx, item.ID)
	if final.Status != StatusReviewRequired {
		t.Errorf("status = %s, want review_required", final.Status)
	}
	if final.ErrorDetails == "" {
		t.Error("review reason should be recorded")
	}

	review, _ := store.GetForReview(ctx, 10)
	if len(review) != 1 {
		t.Errorf("review queue size = %d, want 1", len(review))
	}
}

func TestProcessor_BoundedConcurrency(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		store.Add(ctx, NewItem("org-1", "{}", "usage_record", ReasonNetwork, "x", 3))
	}

	var (
		mu      sync.Mutex
		current int
		peak    int
	)
	handler := HandlerFunc(func(context.Context, Item) Outcome {
		mu.Lock()
		current++
		if current > peak {
			peak = current
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		current--
		mu.Unlock()
		return Success()
	})

	cfg := testProcessorConfig()
	cfg.BatchSize = 20
	cfg.MaxConcurrent = 4
	processor := NewProcessor(store, handler, cfg, nil)

	stats, err := processor.ProcessReadyItems(ctx)
	if err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	if stats.Succeeded != 20 {
		t.Errorf("succeeded = %d, want 20", stats.Succeeded)
	}
	if peak > 4 {
		t.Errorf("peak concurrency %d exceeded the 4-permit ceiling", peak)
	}
}

func TestProcessor_CleanupExpired(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	store.Add(ctx, NewItem("org-1", "{}", "t", ReasonNetwork, "x", 3).WithExpiration(-time.Minute))
	store.Add(ctx, NewItem("org-1", "{}", "t", ReasonNetwork, "x", 3).WithExpiration(time.Hour))
	store.Add(ctx, NewItem("org-1", "{}", "t", ReasonNetwork, "x", 3))

	processor := NewProcessor(store, HandlerFunc(func(context.Context, Item) Outcome {
		return Success()
	}), testProcessorConfig(), nil)

	removed, err := processor.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	total, _ := store.Count(ctx)
	if total != 2 {
		t.Errorf("remaining = %d, want 2", total)
	}
}

func TestProcessor_DisabledDoesNothing(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	store.Add(ctx, NewItem("org-1", "{}", "t", ReasonNetwork, "x", 3))

	cfg := testProcessorConfig()
	cfg.Enabled = false
	var called atomic.Bool
	processor := NewProcessor(store, HandlerFunc(func(context.Context, Item) Outcome {
		called.Store(true)
		return Success()
	}), cfg, nil)

	stats, _ := processor.ProcessReadyItems(ctx)
	if stats.Processed != 0 || called.Load() {
		t.Error("a disabled processor must not touch the queue")
	}
}

func TestProcessor_Stats(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	pending := NewItem("org-1", "{}", "t", ReasonNetwork, "x", 3)
	store.Add(ctx, pending)
	failed := NewItem("org-1", "{}", "t", ReasonValidation, "x", 1)
	failed.Status = StatusFailed
	store.Add(ctx, failed)

	processor := NewProcessor(store, HandlerFunc(func(context.Context, Item) Outcome {
		return Success()
	}), testProcessorConfig(), nil)

	stats, err := processor.Stats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.Total != 2 || stats.Pending != 1 || stats.Failed != 1 {
		t.Errorf("stats = %+v, want total 2, pending 1, failed 1", stats)
	}
}
