package governance

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RiskLevel orders governance risk from low to critical.
type RiskLevel int

const (
	RiskLow RiskLevel = iota
	RiskMedium
	RiskHigh
	RiskCritical
)

var riskNames = map[RiskLevel]string{
	RiskLow:      "low",
	RiskMedium:   "medium",
	RiskHigh:     "high",
	RiskCritical: "critical",
}

func (r RiskLevel) String() string { return riskNames[r] }

func (r RiskLevel) MarshalJSON() ([]byte, error) {
	return []byte(`"` + r.String() + `"`), nil
}

func (r *RiskLevel) UnmarshalJSON(data []byte) error {
	s := string(data)
	for level, name := range riskNames {
		if s == `"`+name+`"` {
			*r = level
			return nil
		}
	}
	*r = RiskLow
	return nil
}

// RiskForUtilization maps budget utilization percent to a risk level:
// 95% and above (including overruns) is critical, 90% high, 75% medium.
func RiskForUtilization(utilizationPercent float64) RiskLevel {
	switch {
	case utilizationPercent >= 95:
		return RiskCritical
	case utilizationPercent >= 90:
		return RiskHigh
	case utilizationPercent >= 75:
		return RiskMedium
	default:
		return RiskLow
	}
}

// ViolationType classifies a policy violation.
type ViolationType string

const (
	ViolationBudgetPolicy ViolationType = "budget_policy"
	ViolationCostPolicy   ViolationType = "cost_policy"
	ViolationUsagePolicy  ViolationType = "usage_policy"
	ViolationRatePolicy   ViolationType = "rate_policy"
)

// ApprovalType classifies what an approval request covers.
type ApprovalType string

const (
	ApprovalBudgetOverride    ApprovalType = "budget_override"
	ApprovalHighCostOperation ApprovalType = "high_cost_operation"
	ApprovalPolicyException   ApprovalType = "policy_exception"
	ApprovalConfigChange      ApprovalType = "config_change"
)

// ─── Cost risk ────────────────────────────────────────────────────────────────

// CostRiskSignal reports anomalous spend against a baseline.
type CostRiskSignal struct {
	SignalID          uuid.UUID       `json:"signal_id"`
	AgentID           AgentID         `json:"agent_id"`
	AgentVersion      AgentVersion    `json:"agent_version"`
	RiskLevel         RiskLevel       `json:"risk_level"`
	AnomalyType       string          `json:"anomaly_type"`
	ObservedValue     decimal.Decimal `json:"observed_value"`
	BaselineValue     decimal.Decimal `json:"baseline_value"`
	DeviationPercent  float64         `json:"deviation_percent"`
	AffectedResources []string        `json:"affected_resources,omitempty"`
	Recommendation    string          `json:"recommendation,omitempty"`
	OrganizationID    string          `json:"organization_id,omitempty"`
	ProjectID         string          `json:"project_id,omitempty"`
	DetectedAt        time.Time       `json:"detected_at"`
}

// NewCostRiskSignal derives the deviation percent from observed vs baseline.
func NewCostRiskSignal(agentID AgentID, version AgentVersion, risk RiskLevel, anomalyType string, observed, baseline decimal.Decimal) CostRiskSignal {
	deviation := 0.0
	if !baseline.IsZero() {
		d, _ := observed.Sub(baseline).Div(baseline).Mul(decimal.NewFromInt(100)).Float64()
		deviation = d
	}
	return CostRiskSignal{
		SignalID:         uuid.New(),
		AgentID:          agentID,
		AgentVersion:     version,
		RiskLevel:        risk,
		AnomalyType:      anomalyType,
		ObservedValue:    observed,
		BaselineValue:    baseline,
		DeviationPercent: deviation,
		DetectedAt:       time.Now().UTC(),
	}
}

func (s CostRiskSignal) WithResources(resources []string) CostRiskSignal {
	s.AffectedResources = resources
	return s
}

func (s CostRiskSignal) WithRecommendation(rec string) CostRiskSignal {
	s.Recommendation = rec
	return s
}

func (s CostRiskSignal) WithOrganization(orgID string) CostRiskSignal {
	s.OrganizationID = orgID
	return s
}

func (s CostRiskSignal) WithProject(projectID string) CostRiskSignal {
	s.ProjectID = projectID
	return s
}

// ─── Budget threshold ─────────────────────────────────────────────────────────

// BudgetThresholdSignal reports a crossed budget threshold. The signal is
// advisory: it reports utilization, it does not stop spend.
type BudgetThresholdSignal struct {
	SignalID            uuid.UUID        `json:"signal_id"`
	AgentID             AgentID          `json:"agent_id"`
	AgentVersion        AgentVersion     `json:"agent_version"`
	BudgetID            string           `json:"budget_id"`
	ThresholdPercent    uint8            `json:"threshold_percent"`
	CurrentSpend        decimal.Decimal  `json:"current_spend"`
	BudgetLimit         decimal.Decimal  `json:"budget_limit"`
	UtilizationPercent  float64          `json:"utilization_percent"`
	RiskLevel           RiskLevel        `json:"risk_level"`
	ProjectedOverage    *decimal.Decimal `json:"projected_overage,omitempty"`
	DaysUntilExhaustion *int             `json:"days_until_exhaustion,omitempty"`
	RecommendedAction   string           `json:"recommended_action,omitempty"`
	CreatedAt           time.Time        `json:"created_at"`
}

// NewBudgetThresholdSignal computes utilization and the derived risk level.
func NewBudgetThresholdSignal(agentID AgentID, version AgentVersion, budgetID string, thresholdPercent uint8, currentSpend, budgetLimit decimal.Decimal) BudgetThresholdSignal {
	utilization := 0.0
	if !budgetLimit.IsZero() {
		u, _ := currentSpend.Div(budgetLimit).Mul(decimal.NewFromInt(100)).Float64()
		utilization = u
	}
	return BudgetThresholdSignal{
		SignalID:           uuid.New(),
		AgentID:            agentID,
		AgentVersion:       version,
		BudgetID:           budgetID,
		ThresholdPercent:   thresholdPercent,
		CurrentSpend:       currentSpend,
		BudgetLimit:        budgetLimit,
		UtilizationPercent: utilization,
		RiskLevel:          RiskForUtilization(utilization),
		CreatedAt:          time.Now().UTC(),
	}
}

func (s BudgetThresholdSignal) WithProjectedOverage(overage decimal.Decimal) BudgetThresholdSignal {
	s.ProjectedOverage = &overage
	return s
}

func (s BudgetThresholdSignal) WithDaysUntilExhaustion(days int) BudgetThresholdSignal {
	s.DaysUntilExhaustion = &days
	return s
}

func (s BudgetThresholdSignal) WithRecommendation(action string) BudgetThresholdSignal {
	s.RecommendedAction = action
	return s
}

// ─── Policy violation ─────────────────────────────────────────────────────────

// PolicyViolationSignal reports a policy breach. IsBlocking is carried for
// the consuming UI only — the emitter never enforces it.
type PolicyViolationSignal struct {
	SignalID       uuid.UUID     `json:"signal_id"`
	AgentID        AgentID       `json:"agent_id"`
	AgentVersion   AgentVersion  `json:"agent_version"`
	PolicyID       string        `json:"policy_id"`
	PolicyName     string        `json:"policy_name"`
	ViolationType  ViolationType `json:"violation_type"`
	Severity       RiskLevel     `json:"severity"`
	Description    string        `json:"description"`
	ObservedValue  any           `json:"observed_value,omitempty"`
	ExpectedValue  any           `json:"expected_value,omitempty"`
	AffectedEntity string        `json:"affected_entity,omitempty"`
	Remediation    string        `json:"remediation,omitempty"`
	IsBlocking     bool          `json:"is_blocking"`
	DetectedAt     time.Time     `json:"detected_at"`
}

// NewPolicyViolationSignal builds a non-blocking violation report.
func NewPolicyViolationSignal(agentID AgentID, version AgentVersion, policyID, policyName string, violationType ViolationType, severity RiskLevel, description string) PolicyViolationSignal {
	return PolicyViolationSignal{
		SignalID:      uuid.New(),
		AgentID:       agentID,
		AgentVersion:  version,
		PolicyID:      policyID,
		PolicyName:    policyName,
		ViolationType: violationType,
		Severity:      severity,
		Description:   description,
		DetectedAt:    time.Now().UTC(),
	}
}

func (s PolicyViolationSignal) WithValues(observed, expected any) PolicyViolationSignal {
	s.ObservedValue = observed
	s.ExpectedValue = expected
	return s
}

func (s PolicyViolationSignal) WithAffectedEntity(entity string) PolicyViolationSignal {
	s.AffectedEntity = entity
	return s
}

func (s PolicyViolationSignal) WithRemediation(hint string) PolicyViolationSignal {
	s.Remediation = hint
	return s
}

// WithBlocking sets the informational blocking flag.
func (s PolicyViolationSignal) WithBlocking(blocking bool) PolicyViolationSignal {
	s.IsBlocking = blocking
	return s
}

// ─── Approval required ────────────────────────────────────────────────────────

// ApprovalRequiredSignal requests a human decision. SuggestedApprovers is a
// routing hint only; nothing is ever auto-approved.
type ApprovalRequiredSignal struct {
	SignalID           uuid.UUID    `json:"signal_id"`
	AgentID            AgentID      `json:"agent_id"`
	AgentVersion       AgentVersion `json:"agent_version"`
	ApprovalType       ApprovalType `json:"approval_type"`
	Description        string       `json:"description"`
	Reason             string       `json:"reason"`
	Requester          string       `json:"requester"`
	RiskLevel          RiskLevel    `json:"risk_level"`
	Impact             string       `json:"impact,omitempty"`
	SuggestedApprovers []string     `json:"suggested_approvers,omitempty"`
	RequestedAction    any          `json:"requested_action,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
}

// NewApprovalRequiredSignal builds an approval request.
func NewApprovalRequiredSignal(agentID AgentID, version AgentVersion, approvalType ApprovalType, description, reason, requester string) ApprovalRequiredSignal {
	return ApprovalRequiredSignal{
		SignalID:     uuid.New(),
		AgentID:      agentID,
		AgentVersion: version,
		ApprovalType: approvalType,
		Description:  description,
		Reason:       reason,
		Requester:    requester,
		RiskLevel:    RiskMedium,
		CreatedAt:    time.Now().UTC(),
	}
}

func (s ApprovalRequiredSignal) WithAction(action any) ApprovalRequiredSignal {
	s.RequestedAction = action
	return s
}

func (s ApprovalRequiredSignal) WithRiskLevel(risk RiskLevel) ApprovalRequiredSignal {
	s.RiskLevel = risk
	return s
}

func (s ApprovalRequiredSignal) WithImpact(impact string) ApprovalRequiredSignal {
	s.Impact = impact
	return s
}

func (s ApprovalRequiredSignal) WithApprovers(approvers []string) ApprovalRequiredSignal {
	s.SuggestedApprovers = approvers
	return s
}
