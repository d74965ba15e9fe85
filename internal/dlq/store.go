package dlq

import (
	"context"

	"github.com/google/uuid"
)

// SearchQuery filters items by organization, status, and type, paged with
// offset/limit. Zero values mean "any".
type SearchQuery struct {
	OrganizationID string
	Status         Status
	ItemType       string
	Offset         int
	Limit          int
}

// Store is the pluggable DLQ backend. Implementations preserve a
// single-writer-per-item guarantee: Update replaces the stored item
// atomically, and concurrent processors never hold the same item.
type Store interface {
	// Add inserts a new item.
	Add(ctx context.Context, item Item) error

	// Get fetches one item by id.
	Get(ctx context.Context, id uuid.UUID) (Item, bool, error)

	// Update replaces a stored item.
	Update(ctx context.Context, item Item) error

	// Delete removes an item.
	Delete(ctx context.Context, id uuid.UUID) error

	// GetReadyForRetry returns up to limit items ready for retry, oldest
	// first.
	GetReadyForRetry(ctx context.Context, limit int) ([]Item, error)

	// GetByStatus returns up to limit items in the given status.
	GetByStatus(ctx context.Context, status Status, limit int) ([]Item, error)

	// GetByOrganization returns up to limit items owned by one org.
	GetByOrganization(ctx context.Context, orgID string, limit int) ([]Item, error)

	// Count returns the total number of items.
	Count(ctx context.Context) (int, error)

	// CountByStatus returns the number of items in one status.
	CountByStatus(ctx context.Context, status Status) (int, error)

	// GetExpired returns up to limit expired items.
	GetExpired(ctx context.Context, limit int) ([]Item, error)

	// CleanupExpired deletes expired items and returns how many went.
	CleanupExpired(ctx context.Context) (int, error)

	// GetForReview returns up to limit items awaiting operator action.
	GetForReview(ctx context.Context, limit int) ([]Item, error)

	// Search filters by organization, status, and type with paging.
	Search(ctx context.Context, q SearchQuery) ([]Item, error)
}

// Stats is a point-in-time queue census.
type Stats struct {
	Total          int `json:"total"`
	Pending        int `json:"pending"`
	Retrying       int `json:"retrying"`
	Processed      int `json:"processed"`
	Failed         int `json:"failed"`
	ReviewRequired int `json:"review_required"`
	Archived       int `json:"archived"`
}

// CollectStats counts every status bucket.
func CollectStats(ctx context.Context, store Store) (Stats, error) {
	var stats Stats
	var err error
	if stats.Total, err = store.Count(ctx); err != nil {
		return Stats{}, err
	}
	counts := []struct {
		status Status
		dst    *int
	}{
		{StatusPending, &stats.Pending},
		{StatusRetrying, &stats.Retrying},
		{StatusProcessed, &stats.Processed},
		{StatusFailed, &stats.Failed},
		{StatusReviewRequired, &stats.ReviewRequired},
		{StatusArchived, &stats.Archived},
	}
	for _, c := range counts {
		if *c.dst, err = store.CountByStatus(ctx, c.status); err != nil {
			return Stats{}, err
		}
	}
	return stats, nil
}
