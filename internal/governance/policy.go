package governance

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PolicySeverity grades a rule.
type PolicySeverity string

const (
	PolicyInfo     PolicySeverity = "info"
	PolicyWarning  PolicySeverity = "warning"
	PolicyCritical PolicySeverity = "critical"
)

// PolicyConditionType discriminates rule conditions.
type PolicyConditionType string

const (
	ConditionBudgetThreshold PolicyConditionType = "budget_threshold"
	ConditionCostCeiling     PolicyConditionType = "cost_ceiling"
	ConditionTokenCeiling    PolicyConditionType = "token_ceiling"
)

// PolicyCondition is the tagged condition of one rule.
type PolicyCondition struct {
	Type PolicyConditionType `json:"type"`

	// BudgetID and ThresholdPercent apply to budget_threshold conditions.
	BudgetID         string `json:"budget_id,omitempty"`
	ThresholdPercent uint8  `json:"threshold_percent,omitempty"`

	// MaxCost applies to cost_ceiling conditions.
	MaxCost decimal.Decimal `json:"max_cost,omitempty"`

	// MaxTokens applies to token_ceiling conditions.
	MaxTokens uint64 `json:"max_tokens,omitempty"`
}

// PolicyRule is one configured governance rule. Rules only describe what
// to report; nothing here blocks anything.
type PolicyRule struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	PolicyType     ViolationType   `json:"policy_type"`
	Severity       PolicySeverity  `json:"severity"`
	Condition      PolicyCondition `json:"condition"`
	Active         bool            `json:"active"`
	OrganizationID string          `json:"organization_id,omitempty"`
	ProjectID      string          `json:"project_id,omitempty"`
}

// EvaluationContext carries the observed values a rule evaluates against.
type EvaluationContext struct {
	values map[string]decimal.Decimal
}

// NewEvaluationContext creates an empty context.
func NewEvaluationContext() *EvaluationContext {
	return &EvaluationContext{values: make(map[string]decimal.Decimal)}
}

// Set records an observed value.
func (c *EvaluationContext) Set(key string, value decimal.Decimal) {
	c.values[key] = value
}

// Get reads an observed value.
func (c *EvaluationContext) Get(key string) (decimal.Decimal, bool) {
	v, ok := c.values[key]
	return v, ok
}

// PolicyResult is the outcome of evaluating one rule. Satisfied false means
// the rule's condition is breached; Violation then carries the report.
type PolicyResult struct {
	Rule      PolicyRule             `json:"rule"`
	Satisfied bool                   `json:"satisfied"`
	Violation *PolicyViolationSignal `json:"violation,omitempty"`
}

// PolicyEvaluator evaluates rules against observed context. It only
// reports: the consuming system decides what, if anything, to enforce.
type PolicyEvaluator struct {
	agentID AgentID
	version AgentVersion
	rules   []PolicyRule
}

// NewPolicyEvaluator creates an evaluator with no rules.
func NewPolicyEvaluator() *PolicyEvaluator {
	return &PolicyEvaluator{agentID: PolicyAnalysisAgent(), version: V1()}
}

// WithRules seeds the rule list.
func (p *PolicyEvaluator) WithRules(rules []PolicyRule) *PolicyEvaluator {
	p.rules = rules
	return p
}

// AddRule appends one rule.
func (p *PolicyEvaluator) AddRule(rule PolicyRule) {
	p.rules = append(p.rules, rule)
}

// Rules returns the configured rules.
func (p *PolicyEvaluator) Rules() []PolicyRule { return p.rules }

// EvaluateAll evaluates every active rule against the context.
func (p *PolicyEvaluator) EvaluateAll(ctx *EvaluationContext) []PolicyResult {
	out := make([]PolicyResult, 0, len(p.rules))
	for _, rule := range p.rules {
		if !rule.Active {
			continue
		}
		out = append(out, p.evaluate(rule, ctx))
	}
	return out
}

func (p *PolicyEvaluator) evaluate(rule PolicyRule, ctx *EvaluationContext) PolicyResult {
	switch rule.Condition.Type {
	case ConditionBudgetThreshold:
		return p.evaluateBudgetThreshold(rule, ctx)
	case ConditionCostCeiling:
		return p.evaluateCeiling(rule, ctx, "observed_cost", rule.Condition.MaxCost)
	case ConditionTokenCeiling:
		return p.evaluateCeiling(rule, ctx, "observed_tokens",
			decimal.NewFromUint64(rule.Condition.MaxTokens))
	}
	return PolicyResult{Rule: rule, Satisfied: true}
}

func (p *PolicyEvaluator) evaluateBudgetThreshold(rule PolicyRule, ctx *EvaluationContext) PolicyResult {
	spend, okSpend := ctx.Get("current_spend")
	limit, okLimit := ctx.Get("budget_limit")
	if !okSpend || !okLimit || limit.IsZero() {
		return PolicyResult{Rule: rule, Satisfied: true}
	}

	utilization, _ := spend.Div(limit).Mul(decimal.NewFromInt(100)).Float64()
	if utilization < float64(rule.Condition.ThresholdPercent) {
		return PolicyResult{Rule: rule, Satisfied: true}
	}

	violation := NewPolicyViolationSignal(
		p.agentID, p.version,
		rule.ID, rule.Name,
		rule.PolicyType,
		RiskForUtilization(utilization),
		fmt.Sprintf("budget %s at %.1f%% utilization, threshold %d%%",
			rule.Condition.BudgetID, utilization, rule.Condition.ThresholdPercent),
	).WithValues(spend.String(), limit.String())
	return PolicyResult{Rule: rule, Satisfied: false, Violation: &violation}
}

func (p *PolicyEvaluator) evaluateCeiling(rule PolicyRule, ctx *EvaluationContext, key string, ceiling decimal.Decimal) PolicyResult {
	observed, ok := ctx.Get(key)
	if !ok || ceiling.IsZero() || !observed.GreaterThan(ceiling) {
		return PolicyResult{Rule: rule, Satisfied: true}
	}
	violation := NewPolicyViolationSignal(
		p.agentID, p.version,
		rule.ID, rule.Name,
		rule.PolicyType,
		severityToRisk(rule.Severity),
		fmt.Sprintf("%s %s exceeds ceiling %s", key, observed, ceiling),
	).WithValues(observed.String(), ceiling.String())
	return PolicyResult{Rule: rule, Satisfied: false, Violation: &violation}
}

func severityToRisk(s PolicySeverity) RiskLevel {
	switch s {
	case PolicyCritical:
		return RiskCritical
	case PolicyWarning:
		return RiskMedium
	default:
		return RiskLow
	}
}
