package storage

// Package storage abstracts persistence for usage records, cost records,
// and pricing tables. The core is storage-optional: the in-memory
// implementations carry the full contract and suffice for tests, while the
// SQLite implementations persist across restarts.

import (
	"context"
	"time"

	"github.com/costplane/costplane/internal/domain"
	"github.com/costplane/costplane/internal/pricing"
	"github.com/google/uuid"
)

// UsageRepository persists usage records.
type UsageRepository interface {
	Create(ctx context.Context, record domain.UsageRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (domain.UsageRecord, bool, error)
	ListByOrganization(ctx context.Context, orgID string, from, to time.Time) ([]domain.UsageRecord, error)
	ListAll(ctx context.Context) ([]domain.UsageRecord, error)
}

// CostRepository persists cost records.
type CostRepository interface {
	Create(ctx context.Context, record domain.CostRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (domain.CostRecord, bool, error)
	ListByOrganization(ctx context.Context, orgID string, from, to time.Time) ([]domain.CostRecord, error)
	ListAll(ctx context.Context) ([]domain.CostRecord, error)
}

// PricingRepository persists pricing tables.
type PricingRepository interface {
	Create(ctx context.Context, table pricing.Table) error
	GetByID(ctx context.Context, id uuid.UUID) (pricing.Table, bool, error)
	GetActive(ctx context.Context, provider domain.Provider, model string, at time.Time) (pricing.Table, error)
	ListAll(ctx context.Context) ([]pricing.Table, error)
}

// Repositories bundles the three stores one backend provides.
type Repositories struct {
	Usage   UsageRepository
	Costs   CostRepository
	Pricing PricingRepository
}
