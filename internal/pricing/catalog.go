package pricing

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/costplane/costplane/internal/domain"
	"github.com/google/uuid"
)

// Catalog is the in-memory tariff store. Reads vastly outnumber writes, so
// a single readers-writer lock over the map suffices; lookups copy the
// table by value.
type Catalog struct {
	mu     sync.RWMutex
	byID   map[uuid.UUID]Table
	byPair map[pairKey][]uuid.UUID
}

type pairKey struct {
	provider string
	model    string
}

func keyFor(provider domain.Provider, model string) pairKey {
	return pairKey{provider: provider.String(), model: model}
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		byID:   make(map[uuid.UUID]Table),
		byPair: make(map[pairKey][]uuid.UUID),
	}
}

// Insert validates and stores a tariff. Tier ordering is checked here once
// so the calculator never re-validates it.
func (c *Catalog) Insert(t Table) error {
	if err := t.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.byID[t.ID]; exists {
		return domain.NewError(domain.ErrInvalidPricing, "pricing table %s already exists", t.ID)
	}
	c.byID[t.ID] = t
	k := keyFor(t.Provider, t.Model)
	c.byPair[k] = append(c.byPair[k], t.ID)
	return nil
}

// GetByID fetches one tariff.
func (c *Catalog) GetByID(id uuid.UUID) (Table, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.byID[id]
	return t, ok
}

// List returns every tariff, ordered by effective_from then id.
func (c *Catalog) List() []Table {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Table, 0, len(c.byID))
	for _, t := range c.byID {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EffectiveFrom.Equal(out[j].EffectiveFrom) {
			return out[i].EffectiveFrom.Before(out[j].EffectiveFrom)
		}
		return strings.Compare(out[i].ID.String(), out[j].ID.String()) < 0
	})
	return out
}

// ListByProvider returns every tariff for one provider.
func (c *Catalog) ListByProvider(provider domain.Provider) []Table {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []Table
	for _, t := range c.byID {
		if t.Provider == provider {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Model < out[j].Model })
	return out
}

// ResolveActive returns the unique tariff active for (provider, model) at
// ts. Among matching windows the latest effective_from wins; ties break by
// id ascending. A missing tariff returns a MissingTariff error so the
// calculator can route the usage to the DLQ for later reprocessing.
func (c *Catalog) ResolveActive(provider domain.Provider, model string, ts time.Time) (Table, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var best *Table
	for _, id := range c.byPair[keyFor(provider, model)] {
		t := c.byID[id]
		if !t.ActiveAt(ts) {
			continue
		}
		if best == nil {
			tt := t
			best = &tt
			continue
		}
		switch {
		case t.EffectiveFrom.After(best.EffectiveFrom):
			tt := t
			best = &tt
		case t.EffectiveFrom.Equal(best.EffectiveFrom) &&
			strings.Compare(t.ID.String(), best.ID.String()) < 0:
			tt := t
			best = &tt
		}
	}
	if best == nil {
		return Table{}, domain.NewError(domain.ErrMissingTariff,
			"no active pricing for provider=%s model=%s at %s",
			provider, model, ts.Format(time.RFC3339))
	}
	return *best, nil
}

// Count returns the number of stored tariffs.
func (c *Catalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}
