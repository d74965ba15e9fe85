package engine

// Package engine computes exact monetary cost records from usage and
// tariffs. Calculation is a pure synchronous function: no locks, no I/O,
// no suspension points.

import (
	"github.com/costplane/costplane/internal/domain"
	"github.com/costplane/costplane/internal/money"
	"github.com/costplane/costplane/internal/pricing"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Calculator turns (UsageRecord, pricing.Table) into a CostRecord.
type Calculator struct {
	log *zap.Logger
}

// NewCalculator builds a calculator. A nil logger disables warnings.
func NewCalculator(log *zap.Logger) *Calculator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Calculator{log: log}
}

// Calculate applies the tariff to the usage. The tariff's provider must
// match the usage's; a tariff that is not active at the usage timestamp is
// allowed through with a warning, which permits replay and backfill.
func (c *Calculator) Calculate(usage domain.UsageRecord, table pricing.Table) (domain.CostRecord, error) {
	if usage.Provider != table.Provider {
		return domain.CostRecord{}, domain.NewError(domain.ErrInvalidPricing,
			"provider mismatch: usage=%s pricing=%s", usage.Provider, table.Provider)
	}

	if !table.ActiveAt(usage.Timestamp) {
		c.log.Warn("pricing table not active at usage timestamp",
			zap.String("pricing_id", table.ID.String()),
			zap.String("model", table.Model),
			zap.Time("usage_timestamp", usage.Timestamp))
	}

	var (
		inputCost, outputCost decimal.Decimal
		err                   error
	)
	switch table.Pricing.Type {
	case pricing.StructurePerToken:
		inputCost, outputCost = perTokenCost(usage, *table.Pricing.PerToken)
	case pricing.StructurePerRequest:
		inputCost, outputCost, err = perRequestCost(usage, *table.Pricing.PerRequest)
	case pricing.StructureTiered:
		inputCost, outputCost, err = tieredCost(usage, table.Pricing)
	default:
		err = domain.NewError(domain.ErrInvalidPricing,
			"unknown pricing structure %q", table.Pricing.Type)
	}
	if err != nil {
		return domain.CostRecord{}, err
	}

	record := domain.NewCostRecord(usage, inputCost, outputCost, table.Currency, table.ID)
	return record, nil
}

// perTokenCost prices each side independently. The cache discount removes
// round10(cached * rate / 1e6 * discount) from the input side, floored at
// zero so a full discount can never produce a negative cost.
func perTokenCost(usage domain.UsageRecord, pt pricing.PerToken) (decimal.Decimal, decimal.Decimal) {
	inputCost := money.PerMillion(usage.PromptTokens, pt.InputPricePerMillion)

	if usage.CachedTokens != nil && pt.CachedInputDiscount != nil {
		discount := money.RoundCost(
			money.ExactPerMillion(*usage.CachedTokens, pt.InputPricePerMillion).
				Mul(*pt.CachedInputDiscount))
		inputCost = money.ClampNonNegative(inputCost.Sub(discount))
	}

	outputCost := money.PerMillion(usage.CompletionTokens, pt.OutputPricePerMillion)
	return inputCost, outputCost
}

// perRequestCost charges the flat price plus overage, then splits the total
// between input and output in proportion to prompt:completion. A zero-token
// request (excluded by validation, tolerated here) books the whole sum as
// input cost.
func perRequestCost(usage domain.UsageRecord, pr pricing.PerRequest) (decimal.Decimal, decimal.Decimal, error) {
	total := pr.PricePerRequest
	if usage.TotalTokens > pr.IncludedTokens {
		overage := usage.TotalTokens - pr.IncludedTokens
		total = total.Add(money.PerMillion(overage, pr.OveragePricePerMillion))
	}

	if usage.TotalTokens == 0 {
		return money.RoundCost(total), decimal.Zero, nil
	}

	ratio, err := money.Div(money.FromTokens(usage.PromptTokens), money.FromTokens(usage.TotalTokens))
	if err != nil {
		return decimal.Zero, decimal.Zero,
			domain.WrapError(domain.ErrArithmetic, err, "per_request input ratio")
	}
	inputCost := money.RoundCost(total.Mul(ratio))
	outputCost := total.Sub(inputCost)
	return inputCost, outputCost, nil
}

// tieredCost resolves the tier containing the request's total tokens and
// applies per-token arithmetic at that tier's rates. Tier ordering was
// validated at catalog insertion.
func tieredCost(usage domain.UsageRecord, s pricing.Structure) (decimal.Decimal, decimal.Decimal, error) {
	tier := s.TierFor(usage.TotalTokens)
	if tier == nil {
		return decimal.Zero, decimal.Zero, domain.NewError(domain.ErrInvalidPricing,
			"no tier matches %d tokens", usage.TotalTokens)
	}
	inputCost := money.PerMillion(usage.PromptTokens, tier.InputPricePerMillion)
	outputCost := money.PerMillion(usage.CompletionTokens, tier.OutputPricePerMillion)
	return inputCost, outputCost, nil
}
