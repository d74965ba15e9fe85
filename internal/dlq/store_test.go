package dlq

import (
	"context"
	"testing"
	"time"
)

// storeConformance exercises the Store contract against any backend.
func storeConformance(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	// Add / Get / Update / Delete.
	item := NewItem("org-a", `{"n":1}`, "usage_record", ReasonNetwork, "down", 3)
	if err := store.Add(ctx, item); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	got, ok, err := store.Get(ctx, item.ID)
	if err != nil || !ok {
		t.Fatalf("Get failed: ok=%v err=%v", ok, err)
	}
	if got.OrganizationID != "org-a" || got.Status != StatusPending {
		t.Errorf("stored item mismatch: %+v", got)
	}

	got.ErrorMessage = "updated"
	got.RecordAttempt(false, "retry failed", 10*time.Millisecond)
	if err := store.Update(ctx, got); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	back, _, _ := store.Get(ctx, item.ID)
	if back.RetryCount != 1 || len(back.Metadata.RetryHistory) != 1 {
		t.Errorf("update lost retry state: count=%d history=%d",
			back.RetryCount, len(back.Metadata.RetryHistory))
	}

	// Readiness ordering: oldest first, bounded by limit.
	older := NewItem("org-b", "{}", "usage_record", ReasonTimeout, "slow", 3)
	older.CreatedAt = time.Now().UTC().Add(-2 * time.Hour)
	newer := NewItem("org-b", "{}", "usage_record", ReasonTimeout, "slow", 3)
	newer.CreatedAt = time.Now().UTC().Add(-time.Hour)
	if err := store.Add(ctx, older); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := store.Add(ctx, newer); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	ready, err := store.GetReadyForRetry(ctx, 2)
	if err != nil {
		t.Fatalf("GetReadyForRetry failed: %v", err)
	}
	if len(ready) != 2 {
		t.Fatalf("ready = %d, want 2 (limit)", len(ready))
	}
	if ready[0].ID != older.ID {
		t.Error("ready items must come oldest first")
	}

	// Future-scheduled items are not ready.
	scheduled, _, _ := store.Get(ctx, newer.ID)
	scheduled.ScheduleRetry(time.Now().UTC().Add(time.Hour))
	if err := store.Update(ctx, scheduled); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	ready, _ = store.GetReadyForRetry(ctx, 10)
	for _, r := range ready {
		if r.ID == newer.ID {
			t.Error("future-scheduled item must not be ready")
		}
	}

	// Status and organization filters.
	byOrg, err := store.GetByOrganization(ctx, "org-b", 10)
	if err != nil || len(byOrg) != 2 {
		t.Errorf("GetByOrganization = %d items, err %v, want 2", len(byOrg), err)
	}
	pending, err := store.GetByStatus(ctx, StatusPending, 10)
	if err != nil || len(pending) != 3 {
		t.Errorf("GetByStatus(pending) = %d, err %v, want 3", len(pending), err)
	}

	// Counts.
	if n, _ := store.Count(ctx); n != 3 {
		t.Errorf("Count = %d, want 3", n)
	}
	if n, _ := store.CountByStatus(ctx, StatusPending); n != 3 {
		t.Errorf("CountByStatus(pending) = %d, want 3", n)
	}

	// Search with paging.
	found, err := store.Search(ctx, SearchQuery{
		OrganizationID: "org-b", Status: StatusPending, ItemType: "usage_record", Limit: 1,
	})
	if err != nil || len(found) != 1 {
		t.Errorf("Search = %d items, err %v, want 1", len(found), err)
	}
	page2, err := store.Search(ctx, SearchQuery{
		OrganizationID: "org-b", Offset: 1, Limit: 5,
	})
	if err != nil || len(page2) != 1 {
		t.Errorf("Search offset page = %d items, err %v, want 1", len(page2), err)
	}

	// Expiration sweep.
	expired := NewItem("org-c", "{}", "usage_record", ReasonNetwork, "x", 3).
		WithExpiration(-time.Minute)
	if err := store.Add(ctx, expired); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	exp, err := store.GetExpired(ctx, 10)
	if err != nil || len(exp) != 1 {
		t.Errorf("GetExpired = %d, err %v, want 1", len(exp), err)
	}
	removed, err := store.CleanupExpired(ctx)
	if err != nil || removed != 1 {
		t.Errorf("CleanupExpired = %d, err %v, want 1", removed, err)
	}

	// Review queue.
	review := NewItem("org-c", "{}", "usage_record", ReasonUnknown, "odd", 3)
	review.MarkForReview()
	if err := store.Add(ctx, review); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	forReview, err := store.GetForReview(ctx, 10)
	if err != nil || len(forReview) != 1 {
		t.Errorf("GetForReview = %d, err %v, want 1", len(forReview), err)
	}

	// Delete.
	if err := store.Delete(ctx, review.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok, _ := store.Get(ctx, review.ID); ok {
		t.Error("deleted item still present")
	}
}

func TestMemoryStore_Conformance(t *testing.T) {
	storeConformance(t, NewMemoryStore())
}

func TestSQLiteStore_Conformance(t *testing.T) {
	store, err := NewSQLiteStore(t.TempDir() + "/dlq.db")
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	defer store.Close()
	storeConformance(t, store)
}

func TestSQLiteStore_MetadataRoundTrip(t *testing.T) {
	store, err := NewSQLiteStore(t.TempDir() + "/dlq.db")
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	item := NewItem("org-1", "{}", "webhook", ReasonRateLimit, "429", 3).
		WithMetadata(Metadata{
			Source:        "webhook",
			CorrelationID: "corr-42",
			StatusCode:    429,
			Tags:          []string{"replay"},
			CustomFields:  map[string]string{"region": "eu-west-1"},
		})
	item.RecordAttempt(false, "still limited", 12*time.Millisecond)
	if err := store.Add(ctx, item); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	back, ok, err := store.Get(ctx, item.ID)
	if err != nil || !ok {
		t.Fatalf("Get failed: ok=%v err=%v", ok, err)
	}
	if back.Metadata.CorrelationID != "corr-42" ||
		back.Metadata.StatusCode != 429 ||
		len(back.Metadata.RetryHistory) != 1 ||
		back.Metadata.CustomFields["region"] != "eu-west-1" {
		t.Errorf("metadata did not survive the round trip: %+v", back.Metadata)
	}
}
