package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CostRecord is the monetary outcome of one UsageRecord. InputCost and
// OutputCost are already rounded to the cost scale; TotalCost is the exact
// sum of the two rounded sides, so additivity holds to the last digit.
type CostRecord struct {
	ID      uuid.UUID `json:"id"`
	UsageID uuid.UUID `json:"usage_id"`

	Provider Provider `json:"provider"`
	Model    string   `json:"model"`

	InputCost  decimal.Decimal `json:"input_cost"`
	OutputCost decimal.Decimal `json:"output_cost"`
	TotalCost  decimal.Decimal `json:"total_cost"`
	Currency   Currency        `json:"currency"`

	PricingTableID uuid.UUID `json:"pricing_table_id"`

	OrganizationID string   `json:"organization_id"`
	ProjectID      string   `json:"project_id,omitempty"`
	Tags           []string `json:"tags,omitempty"`

	CalculatedAt time.Time `json:"calculated_at"`
}

// NewCostRecord assembles a record from already-rounded per-side costs.
func NewCostRecord(usage UsageRecord, inputCost, outputCost decimal.Decimal, currency Currency, pricingID uuid.UUID) CostRecord {
	return CostRecord{
		ID:             uuid.New(),
		UsageID:        usage.ID,
		Provider:       usage.Provider,
		Model:          usage.Model.Name,
		InputCost:      inputCost,
		OutputCost:     outputCost,
		TotalCost:      inputCost.Add(outputCost),
		Currency:       currency,
		PricingTableID: pricingID,
		OrganizationID: usage.OrganizationID,
		ProjectID:      usage.ProjectID,
		Tags:           usage.Tags,
		CalculatedAt:   time.Now().UTC(),
	}
}

// Validate checks the cost-record invariants.
func (c CostRecord) Validate() error {
	if c.InputCost.Sign() < 0 || c.OutputCost.Sign() < 0 || c.TotalCost.Sign() < 0 {
		return NewError(ErrValidation, "cost record %s has a negative cost", c.ID)
	}
	if !c.TotalCost.Equal(c.InputCost.Add(c.OutputCost)) {
		return NewError(ErrValidation,
			"cost record %s total %s != input %s + output %s",
			c.ID, c.TotalCost, c.InputCost, c.OutputCost)
	}
	if c.Currency == "" {
		return NewError(ErrValidation, "cost record %s has no currency", c.ID)
	}
	return nil
}
