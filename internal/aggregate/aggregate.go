package aggregate

// Package aggregate reduces streams of cost records into spend summaries.
// Every reducer is pure and stateless; summation uses exact decimal
// arithmetic so re-aggregating the same records always yields the same
// total to the last representable digit.

import (
	"time"

	"github.com/costplane/costplane/internal/domain"
	"github.com/shopspring/decimal"
)

// SumTotal adds every record's total cost. Empty input yields zero.
func SumTotal(records []domain.CostRecord) decimal.Decimal {
	total := decimal.Zero
	for _, r := range records {
		total = total.Add(r.TotalCost)
	}
	return total
}

// ByProvider groups total cost by provider tag.
func ByProvider(records []domain.CostRecord) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, r := range records {
		key := r.Provider.String()
		out[key] = out[key].Add(r.TotalCost)
	}
	return out
}

// ByModel groups total cost by model name.
func ByModel(records []domain.CostRecord) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, r := range records {
		out[r.Model] = out[r.Model].Add(r.TotalCost)
	}
	return out
}

// ByOrganization groups total cost by owning organization.
func ByOrganization(records []domain.CostRecord) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, r := range records {
		out[r.OrganizationID] = out[r.OrganizationID].Add(r.TotalCost)
	}
	return out
}

// ByProject groups total cost by project. Records without a project id are
// accumulated under the empty key.
func ByProject(records []domain.CostRecord) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, r := range records {
		out[r.ProjectID] = out[r.ProjectID].Add(r.TotalCost)
	}
	return out
}

// SumWindow adds the total cost of records whose calculation timestamp
// falls inside [from, to], bounds inclusive.
func SumWindow(records []domain.CostRecord, from, to time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, r := range records {
		if r.CalculatedAt.Before(from) || r.CalculatedAt.After(to) {
			continue
		}
		total = total.Add(r.TotalCost)
	}
	return total
}

// SplitSums carries per-side totals alongside the grand total.
type SplitSums struct {
	Input  decimal.Decimal `json:"input_cost"`
	Output decimal.Decimal `json:"output_cost"`
	Total  decimal.Decimal `json:"total_cost"`
	Count  int             `json:"count"`
}

// Summarize reduces records into per-side totals and a record count.
func Summarize(records []domain.CostRecord) SplitSums {
	s := SplitSums{Input: decimal.Zero, Output: decimal.Zero, Total: decimal.Zero}
	for _, r := range records {
		s.Input = s.Input.Add(r.InputCost)
		s.Output = s.Output.Add(r.OutputCost)
		s.Total = s.Total.Add(r.TotalCost)
		s.Count++
	}
	return s
}
