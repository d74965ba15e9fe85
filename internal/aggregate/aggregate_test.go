package aggregate

import (
	"testing"
	"time"

	"github.com/costplane/costplane/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func record(provider domain.Provider, model, org, project, total string, at time.Time) domain.CostRecord {
	t := decimal.RequireFromString(total)
	half := t.Div(decimal.NewFromInt(2))
	return domain.CostRecord{
		ID:             uuid.New(),
		UsageID:        uuid.New(),
		Provider:       provider,
		Model:          model,
		InputCost:      half,
		OutputCost:     t.Sub(half),
		TotalCost:      t,
		Currency:       domain.CurrencyUSD,
		OrganizationID: org,
		ProjectID:      project,
		CalculatedAt:   at,
	}
}

func TestSumTotal_EmptyIsZero(t *testing.T) {
	if !SumTotal(nil).IsZero() {
		t.Error("empty input must sum to zero")
	}
	if len(ByProvider(nil)) != 0 {
		t.Error("empty input must group to an empty map")
	}
}

func TestSumTotal_ExactDecimal(t *testing.T) {
	now := time.Now().UTC()
	var records []domain.CostRecord
	for i := 0; i < 1000; i++ {
		records = append(records, record(domain.ProviderOpenAI, "gpt-4", "org-1", "", "0.0000000001", now))
	}
	got := SumTotal(records)
	if !got.Equal(decimal.RequireFromString("0.0000001")) {
		t.Errorf("1000 × 1e-10 must be exactly 1e-7, got %s", got)
	}

	// Repeated aggregation is stable to the last digit.
	if !SumTotal(records).Equal(got) {
		t.Error("re-aggregation changed the total")
	}
}

func TestGroupings(t *testing.T) {
	now := time.Now().UTC()
	records := []domain.CostRecord{
		record(domain.ProviderOpenAI, "gpt-4", "org-1", "proj-a", "0.10", now),
		record(domain.ProviderOpenAI, "gpt-4o", "org-1", "proj-b", "0.20", now),
		record(domain.ProviderAnthropic, "claude-3-opus", "org-2", "proj-a", "0.30", now),
	}

	byProvider := ByProvider(records)
	if !byProvider["openai"].Equal(decimal.RequireFromString("0.3")) {
		t.Errorf("openai total = %s, want 0.3", byProvider["openai"])
	}
	if !byProvider["anthropic"].Equal(decimal.RequireFromString("0.3")) {
		t.Errorf("anthropic total = %s, want 0.3", byProvider["anthropic"])
	}

	byModel := ByModel(records)
	if !byModel["gpt-4"].Equal(decimal.RequireFromString("0.1")) {
		t.Errorf("gpt-4 total = %s, want 0.1", byModel["gpt-4"])
	}

	byOrg := ByOrganization(records)
	if !byOrg["org-1"].Equal(decimal.RequireFromString("0.3")) {
		t.Errorf("org-1 total = %s, want 0.3", byOrg["org-1"])
	}

	byProject := ByProject(records)
	if !byProject["proj-a"].Equal(decimal.RequireFromString("0.4")) {
		t.Errorf("proj-a total = %s, want 0.4", byProject["proj-a"])
	}
}

func TestSumWindow_InclusiveBounds(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	records := []domain.CostRecord{
		record(domain.ProviderOpenAI, "gpt-4", "org-1", "", "1", base),
		record(domain.ProviderOpenAI, "gpt-4", "org-1", "", "2", base.Add(time.Hour)),
		record(domain.ProviderOpenAI, "gpt-4", "org-1", "", "4", base.Add(2*time.Hour)),
	}

	got := SumWindow(records, base, base.Add(time.Hour))
	if !got.Equal(decimal.NewFromInt(3)) {
		t.Errorf("window sum = %s, want 3", got)
	}
	if !SumWindow(records, base.Add(3*time.Hour), base.Add(4*time.Hour)).IsZero() {
		t.Error("empty window must sum to zero")
	}
}

func TestSummarize(t *testing.T) {
	now := time.Now().UTC()
	records := []domain.CostRecord{
		record(domain.ProviderOpenAI, "gpt-4", "org-1", "", "0.5", now),
		record(domain.ProviderOpenAI, "gpt-4", "org-1", "", "0.5", now),
	}
	s := Summarize(records)
	if s.Count != 2 {
		t.Errorf("count = %d, want 2", s.Count)
	}
	if !s.Total.Equal(decimal.NewFromInt(1)) {
		t.Errorf("total = %s, want 1", s.Total)
	}
	if !s.Total.Equal(s.Input.Add(s.Output)) {
		t.Error("summary totals must stay additive")
	}
}
