package governance

import (
	"github.com/shopspring/decimal"
)

// BudgetEnforcement evaluates spend against a budget limit and produces the
// advisory BudgetThresholdSignal. Despite the name it enforces nothing: the
// evaluation reports utilization, risk, and a recommended action string for
// the consuming system.
type BudgetEnforcement struct {
	agentID AgentID
	version AgentVersion

	// Thresholds are the utilization percentages at which a signal fires,
	// ascending.
	Thresholds []uint8
}

// NewBudgetEnforcement creates the evaluator with the standard 75/90/95/100
// threshold ladder.
func NewBudgetEnforcement() *BudgetEnforcement {
	return &BudgetEnforcement{
		agentID:    BudgetEnforcementAgent(),
		version:    V1(),
		Thresholds: []uint8{75, 90, 95, 100},
	}
}

// Evaluate builds a BudgetThresholdSignal for the current spend. The
// threshold recorded on the signal is the highest rung at or below the
// utilization (zero when none crossed). The recommended action is always
// populated; "pause" at or beyond the limit is a recommendation only.
func (b *BudgetEnforcement) Evaluate(budgetID string, currentSpend, budgetLimit decimal.Decimal) BudgetThresholdSignal {
	crossed := uint8(0)
	utilization := 0.0
	if !budgetLimit.IsZero() {
		u, _ := currentSpend.Div(budgetLimit).Mul(decimal.NewFromInt(100)).Float64()
		utilization = u
	}
	for _, t := range b.Thresholds {
		if utilization >= float64(t) {
			crossed = t
		}
	}

	signal := NewBudgetThresholdSignal(b.agentID, b.version, budgetID, crossed, currentSpend, budgetLimit).
		WithRecommendation(recommendedAction(utilization))

	if currentSpend.GreaterThan(budgetLimit) && !budgetLimit.IsZero() {
		signal = signal.WithProjectedOverage(currentSpend.Sub(budgetLimit))
	}
	return signal
}

// AppliedConstraint expresses the evaluation as the constraint entry that
// belongs on the wrapping DecisionEvent.
func (b *BudgetEnforcement) AppliedConstraint(signal BudgetThresholdSignal) AppliedConstraint {
	return AppliedConstraint{
		Type:               ConstraintBudgetCap,
		Violated:           signal.UtilizationPercent >= 100,
		CurrentValue:       signal.CurrentSpend.String(),
		ThresholdValue:     signal.BudgetLimit.String(),
		UtilizationPercent: signal.UtilizationPercent,
	}
}

func recommendedAction(utilization float64) string {
	switch {
	case utilization >= 100:
		return "pause"
	case utilization >= 95:
		return "restrict new workloads and request a budget review"
	case utilization >= 90:
		return "review top spenders and reduce non-essential usage"
	case utilization >= 75:
		return "monitor spend closely; consider cheaper models for bulk work"
	default:
		return "no action needed"
	}
}
