package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/costplane/costplane/internal/domain"
	"github.com/costplane/costplane/internal/pricing"
	"github.com/google/uuid"
)

// MemoryUsageRepository is the in-memory UsageRepository.
type MemoryUsageRepository struct {
	mu      sync.RWMutex
	records map[uuid.UUID]domain.UsageRecord
}

func NewMemoryUsageRepository() *MemoryUsageRepository {
	return &MemoryUsageRepository{records: make(map[uuid.UUID]domain.UsageRecord)}
}

func (r *MemoryUsageRepository) Create(_ context.Context, record domain.UsageRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.records[record.ID]; exists {
		return domain.NewError(domain.ErrDatabase, "usage record %s already exists", record.ID)
	}
	r.records[record.ID] = record
	return nil
}

func (r *MemoryUsageRepository) GetByID(_ context.Context, id uuid.UUID) (domain.UsageRecord, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	return rec, ok, nil
}

func (r *MemoryUsageRepository) ListByOrganization(_ context.Context, orgID string, from, to time.Time) ([]domain.UsageRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.UsageRecord
	for _, rec := range r.records {
		if rec.OrganizationID != orgID {
			continue
		}
		if rec.Timestamp.Before(from) || rec.Timestamp.After(to) {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (r *MemoryUsageRepository) ListAll(_ context.Context) ([]domain.UsageRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.UsageRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// MemoryCostRepository is the in-memory CostRepository.
type MemoryCostRepository struct {
	mu      sync.RWMutex
	records map[uuid.UUID]domain.CostRecord
}

func NewMemoryCostRepository() *MemoryCostRepository {
	return &MemoryCostRepository{records: make(map[uuid.UUID]domain.CostRecord)}
}

func (r *MemoryCostRepository) Create(_ context.Context, record domain.CostRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.records[record.ID]; exists {
		return domain.NewError(domain.ErrDatabase, "cost record %s already exists", record.ID)
	}
	r.records[record.ID] = record
	return nil
}

func (r *MemoryCostRepository) GetByID(_ context.Context, id uuid.UUID) (domain.CostRecord, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	return rec, ok, nil
}

func (r *MemoryCostRepository) ListByOrganization(_ context.Context, orgID string, from, to time.Time) ([]domain.CostRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.CostRecord
	for _, rec := range r.records {
		if rec.OrganizationID != orgID {
			continue
		}
		if rec.CalculatedAt.Before(from) || rec.CalculatedAt.After(to) {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CalculatedAt.Before(out[j].CalculatedAt) })
	return out, nil
}

func (r *MemoryCostRepository) ListAll(_ context.Context) ([]domain.CostRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.CostRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CalculatedAt.Before(out[j].CalculatedAt) })
	return out, nil
}

// MemoryPricingRepository adapts the pricing catalog to the repository
// contract; the catalog already provides the synchronization and the
// temporal resolution rule.
type MemoryPricingRepository struct {
	catalog *pricing.Catalog
}

func NewMemoryPricingRepository(catalog *pricing.Catalog) *MemoryPricingRepository {
	if catalog == nil {
		catalog = pricing.NewCatalog()
	}
	return &MemoryPricingRepository{catalog: catalog}
}

func (r *MemoryPricingRepository) Create(_ context.Context, table pricing.Table) error {
	return r.catalog.Insert(table)
}

func (r *MemoryPricingRepository) GetByID(_ context.Context, id uuid.UUID) (pricing.Table, bool, error) {
	t, ok := r.catalog.GetByID(id)
	return t, ok, nil
}

func (r *MemoryPricingRepository) GetActive(_ context.Context, provider domain.Provider, model string, at time.Time) (pricing.Table, error) {
	return r.catalog.ResolveActive(provider, model, at)
}

func (r *MemoryPricingRepository) ListAll(_ context.Context) ([]pricing.Table, error) {
	return r.catalog.List(), nil
}

// NewMemoryRepositories bundles fresh in-memory backends.
func NewMemoryRepositories(catalog *pricing.Catalog) Repositories {
	return Repositories{
		Usage:   NewMemoryUsageRepository(),
		Costs:   NewMemoryCostRepository(),
		Pricing: NewMemoryPricingRepository(catalog),
	}
}
