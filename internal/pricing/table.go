package pricing

import (
	"time"

	"github.com/costplane/costplane/internal/domain"
	"github.com/google/uuid"
)

// Table is one tariff for a (provider, model) pair with a temporal validity
// window. Created by ops and never mutated; supersession happens through a
// new row with a later EffectiveFrom.
type Table struct {
	ID            uuid.UUID         `json:"id"`
	Provider      domain.Provider   `json:"provider"`
	Model         string            `json:"model"`
	Pricing       Structure         `json:"pricing"`
	Currency      domain.Currency   `json:"currency"`
	EffectiveFrom time.Time         `json:"effective_from"`
	EffectiveTo   *time.Time        `json:"effective_until,omitempty"`
	Region        string            `json:"region,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// NewTable builds a USD tariff effective immediately and open-ended.
func NewTable(provider domain.Provider, model string, structure Structure) Table {
	return Table{
		ID:            uuid.New(),
		Provider:      provider,
		Model:         model,
		Pricing:       structure,
		Currency:      domain.CurrencyUSD,
		EffectiveFrom: time.Now().UTC(),
	}
}

// WithWindow returns a copy bounded to [from, until].
func (t Table) WithWindow(from time.Time, until *time.Time) Table {
	t.EffectiveFrom = from
	t.EffectiveTo = until
	return t
}

// WithCurrency returns a copy priced in the given currency.
func (t Table) WithCurrency(c domain.Currency) Table {
	t.Currency = c
	return t
}

// ActiveAt reports whether the tariff's validity window includes ts.
func (t Table) ActiveAt(ts time.Time) bool {
	if ts.Before(t.EffectiveFrom) {
		return false
	}
	return t.EffectiveTo == nil || !ts.After(*t.EffectiveTo)
}

// Validate checks window ordering and the pricing scheme.
func (t Table) Validate() error {
	if t.Model == "" {
		return domain.NewError(domain.ErrInvalidPricing, "pricing table has no model")
	}
	if t.Provider.IsZero() {
		return domain.NewError(domain.ErrInvalidPricing, "pricing table has no provider")
	}
	if t.Currency == "" {
		return domain.NewError(domain.ErrInvalidPricing, "pricing table has no currency")
	}
	if t.EffectiveTo != nil && t.EffectiveTo.Before(t.EffectiveFrom) {
		return domain.NewError(domain.ErrInvalidPricing,
			"effective_until %s precedes effective_from %s",
			t.EffectiveTo.Format(time.RFC3339), t.EffectiveFrom.Format(time.RFC3339))
	}
	return t.Pricing.Validate()
}
