package engine

import (
	"testing"
	"time"

	"github.com/costplane/costplane/internal/domain"
	"github.com/costplane/costplane/internal/money"
	"github.com/costplane/costplane/internal/pricing"
	"github.com/shopspring/decimal"
)

func testUsage(prompt, completion uint64) domain.UsageRecord {
	return domain.NewUsageRecord(
		domain.ProviderOpenAI,
		domain.NewModel("gpt-4", 8192),
		"org-test",
		prompt, completion,
		time.Now().UTC().Add(-time.Minute),
		domain.APISource("test"),
	)
}

func testTable(s pricing.Structure) pricing.Table {
	return pricing.NewTable(domain.ProviderOpenAI, "gpt-4", s).
		WithWindow(time.Now().UTC().Add(-time.Hour), nil)
}

func TestCalculate_PerToken(t *testing.T) {
	calc := NewCalculator(nil)
	usage := testUsage(1000, 500)
	table := testTable(pricing.NewPerToken(decimal.NewFromInt(10), decimal.NewFromInt(30)))

	rec, err := calc.Calculate(usage, table)
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}

	if !rec.InputCost.Equal(money.MustParse("0.01")) {
		t.Errorf("input cost = %s, want 0.0100000000", rec.InputCost)
	}
	if !rec.OutputCost.Equal(money.MustParse("0.015")) {
		t.Errorf("output cost = %s, want 0.0150000000", rec.OutputCost)
	}
	if !rec.TotalCost.Equal(money.MustParse("0.025")) {
		t.Errorf("total cost = %s, want 0.0250000000", rec.TotalCost)
	}
	if rec.Currency != domain.CurrencyUSD {
		t.Errorf("currency = %s, want USD", rec.Currency)
	}
	if rec.UsageID != usage.ID {
		t.Error("cost record should reference the usage id")
	}
	if rec.PricingTableID != table.ID {
		t.Error("cost record should reference the pricing table id")
	}
}

func TestCalculate_PerTokenWithCacheDiscount(t *testing.T) {
	calc := NewCalculator(nil)
	usage := testUsage(5000, 2000).WithCachedTokens(2000)
	table := testTable(pricing.NewPerTokenWithCache(
		decimal.NewFromInt(3), decimal.NewFromInt(15), money.MustParse("0.9")))

	rec, err := calc.Calculate(usage, table)
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}

	// (5000*3 - 2000*3*0.9) / 1e6 = 0.0096
	if !rec.InputCost.Equal(money.MustParse("0.0096")) {
		t.Errorf("input cost = %s, want 0.0096", rec.InputCost)
	}
	if !rec.OutputCost.Equal(money.MustParse("0.03")) {
		t.Errorf("output cost = %s, want 0.0300", rec.OutputCost)
	}
	if !rec.TotalCost.Equal(money.MustParse("0.0396")) {
		t.Errorf("total cost = %s, want 0.0396", rec.TotalCost)
	}
}

func TestCalculate_CacheDiscountReducesCost(t *testing.T) {
	calc := NewCalculator(nil)
	usage := testUsage(5000, 2000).WithCachedTokens(2000)

	plain := testTable(pricing.NewPerToken(decimal.NewFromInt(3), decimal.NewFromInt(15)))
	discounted := testTable(pricing.NewPerTokenWithCache(
		decimal.NewFromInt(3), decimal.NewFromInt(15), money.MustParse("0.5")))

	full, err := calc.Calculate(usage, plain)
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}
	cheap, err := calc.Calculate(usage, discounted)
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}
	if !cheap.TotalCost.LessThan(full.TotalCost) {
		t.Errorf("discounted total %s should be strictly below %s", cheap.TotalCost, full.TotalCost)
	}
}

func TestCalculate_CacheDiscountFloorsAtZero(t *testing.T) {
	calc := NewCalculator(nil)
	// All prompt tokens cached at a full discount: input cost clamps to 0.
	usage := testUsage(1000, 0).WithCachedTokens(1000)
	table := testTable(pricing.NewPerTokenWithCache(
		decimal.NewFromInt(10), decimal.NewFromInt(30), decimal.NewFromInt(1)))

	rec, err := calc.Calculate(usage, table)
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}
	if !rec.InputCost.IsZero() {
		t.Errorf("input cost = %s, want 0", rec.InputCost)
	}
	if rec.TotalCost.Sign() < 0 {
		t.Error("total cost must never be negative")
	}
}

func TestCalculate_PerRequestWithinAllowance(t *testing.T) {
	calc := NewCalculator(nil)
	usage := testUsage(1000, 500)
	table := testTable(pricing.NewPerRequest(
		money.MustParse("0.01"), 2000, decimal.NewFromInt(5)))

	rec, err := calc.Calculate(usage, table)
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}
	if !rec.TotalCost.Equal(money.MustParse("0.01")) {
		t.Errorf("total cost = %s, want 0.01", rec.TotalCost)
	}
}

func TestCalculate_PerRequestWithOverage(t *testing.T) {
	calc := NewCalculator(nil)
	usage := testUsage(2000, 1000) // 3000 total, 1000 over
	table := testTable(pricing.NewPerRequest(
		money.MustParse("0.01"), 2000, decimal.NewFromInt(5)))

	rec, err := calc.Calculate(usage, table)
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}
	// base 0.01 + 1000*5/1e6 = 0.015
	if !rec.TotalCost.Equal(money.MustParse("0.015")) {
		t.Errorf("total cost = %s, want 0.015", rec.TotalCost)
	}
	// Split in proportion 2000:1000.
	if !rec.InputCost.Equal(money.MustParse("0.01")) {
		t.Errorf("input cost = %s, want 0.01", rec.InputCost)
	}
	if !rec.OutputCost.Equal(money.MustParse("0.005")) {
		t.Errorf("output cost = %s, want 0.005", rec.OutputCost)
	}
}

func TestCalculate_TieredSmallRequest(t *testing.T) {
	calc := NewCalculator(nil)
	usage := testUsage(600, 400)
	upper := uint64(999_999)
	table := testTable(pricing.NewTiered([]pricing.Tier{
		{MinTokens: 0, MaxTokens: &upper,
			InputPricePerMillion: decimal.NewFromInt(10), OutputPricePerMillion: decimal.NewFromInt(30)},
		{MinTokens: 1_000_000,
			InputPricePerMillion: decimal.NewFromInt(8), OutputPricePerMillion: decimal.NewFromInt(24)},
	}))

	rec, err := calc.Calculate(usage, table)
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}
	// 600*10/1e6 + 400*30/1e6 = 0.006 + 0.012 = 0.018
	if !rec.TotalCost.Equal(money.MustParse("0.018")) {
		t.Errorf("total cost = %s, want 0.018", rec.TotalCost)
	}
}

func TestCalculate_TieredNoMatchingTier(t *testing.T) {
	calc := NewCalculator(nil)
	usage := testUsage(600, 400)
	upper := uint64(100)
	table := testTable(pricing.Structure{
		Type: pricing.StructureTiered,
		Tiers: []pricing.Tier{{
			MinTokens: 0, MaxTokens: &upper,
			InputPricePerMillion:  decimal.NewFromInt(10),
			OutputPricePerMillion: decimal.NewFromInt(30),
		}},
	})

	_, err := calc.Calculate(usage, table)
	if !domain.IsKind(err, domain.ErrInvalidPricing) {
		t.Fatalf("expected invalid_pricing_structure, got %v", err)
	}
}

func TestCalculate_ProviderMismatchRejected(t *testing.T) {
	calc := NewCalculator(nil)
	usage := testUsage(1000, 500)
	usage.Provider = domain.ProviderAnthropic
	table := testTable(pricing.NewPerToken(decimal.NewFromInt(10), decimal.NewFromInt(30)))

	_, err := calc.Calculate(usage, table)
	if !domain.IsKind(err, domain.ErrInvalidPricing) {
		t.Fatalf("expected invalid_pricing_structure, got %v", err)
	}
}

func TestCalculate_InactivePricingProceedsWithWarning(t *testing.T) {
	calc := NewCalculator(nil)
	usage := testUsage(1000, 500)
	until := time.Now().UTC().Add(-24 * time.Hour)
	table := testTable(pricing.NewPerToken(decimal.NewFromInt(10), decimal.NewFromInt(30))).
		WithWindow(time.Now().UTC().Add(-48*time.Hour), &until)

	rec, err := calc.Calculate(usage, table)
	if err != nil {
		t.Fatalf("replay against superseded pricing should succeed: %v", err)
	}
	if !rec.TotalCost.Equal(money.MustParse("0.025")) {
		t.Errorf("total cost = %s, want 0.025", rec.TotalCost)
	}
}

func TestCalculate_Additivity(t *testing.T) {
	calc := NewCalculator(nil)
	tables := []pricing.Table{
		testTable(pricing.NewPerToken(money.MustParse("0.123456789"), money.MustParse("7.654321"))),
		testTable(pricing.NewPerRequest(money.MustParse("0.0123"), 100, money.MustParse("3.21"))),
	}
	usages := []domain.UsageRecord{
		testUsage(1, 1), testUsage(999, 1), testUsage(123457, 765431), testUsage(1_000_000, 1_000_000),
	}
	for _, table := range tables {
		for _, usage := range usages {
			rec, err := calc.Calculate(usage, table)
			if err != nil {
				t.Fatalf("Calculate failed: %v", err)
			}
			if !rec.TotalCost.Equal(rec.InputCost.Add(rec.OutputCost)) {
				t.Errorf("total %s != input %s + output %s",
					rec.TotalCost, rec.InputCost, rec.OutputCost)
			}
			if rec.InputCost.Sign() < 0 || rec.OutputCost.Sign() < 0 {
				t.Error("costs must be non-negative")
			}
		}
	}
}

func TestCalculate_Monotonicity(t *testing.T) {
	calc := NewCalculator(nil)
	table := testTable(pricing.NewPerToken(money.MustParse("2.5"), money.MustParse("7.5")))

	base, err := calc.Calculate(testUsage(1000, 2000), table)
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}
	for _, k := range []uint64{1, 2, 10, 1000} {
		scaled, err := calc.Calculate(testUsage(1000*k, 2000*k), table)
		if err != nil {
			t.Fatalf("Calculate failed: %v", err)
		}
		if scaled.TotalCost.LessThan(base.TotalCost) {
			t.Errorf("scaling tokens by %d reduced cost: %s < %s",
				k, scaled.TotalCost, base.TotalCost)
		}
	}
}

func TestCalculate_ProviderAgnosticArithmetic(t *testing.T) {
	calc := NewCalculator(nil)
	structure := pricing.NewPerToken(money.MustParse("1.25"), money.MustParse("3.75"))

	openai := testUsage(4321, 1234)
	anthropic := openai
	anthropic.Provider = domain.ProviderAnthropic
	anthropic.Model = domain.NewModel("claude-3-opus", 200000)

	recA, err := calc.Calculate(openai, testTable(structure))
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}
	recB, err := calc.Calculate(anthropic,
		pricing.NewTable(domain.ProviderAnthropic, "claude-3-opus", structure))
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}
	if !recA.TotalCost.Equal(recB.TotalCost) {
		t.Errorf("identical rates and counts must cost the same: %s vs %s",
			recA.TotalCost, recB.TotalCost)
	}
}

func TestCalculate_PrecisionUnitProduct(t *testing.T) {
	calc := NewCalculator(nil)
	usage := testUsage(1_000_000, 1_000_000)
	table := testTable(pricing.NewPerToken(decimal.NewFromInt(1), decimal.NewFromInt(1)))

	rec, err := calc.Calculate(usage, table)
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}
	if !rec.InputCost.Equal(decimal.NewFromInt(1)) {
		t.Errorf("1M tokens at 1/M must cost exactly 1, got %s", rec.InputCost)
	}
}
