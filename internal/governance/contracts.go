package governance

// Package governance constructs the advisory signals and auditable
// DecisionEvents that the plane emits.
//
// Responsibilities:
//   - Typed agent contracts: ids, versions, classifications, decision types
//   - DecisionEvent construction, content hashing, and validation
//   - The four governance signal variants and their DecisionEvent wrapping
//   - Report-only policy evaluation
//   - Per-invocation performance budgets
//
// Every agent invocation emits exactly one DecisionEvent. Signals are
// strictly advisory: nothing in this package mutates state outside the
// emitter; enforcement belongs to the consuming system.

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/costplane/costplane/internal/domain"
	"github.com/google/uuid"
)

// AgentID is a hierarchical agent name such as "costplane.budget-enforcement".
type AgentID string

// Well-known agents of the plane.
func BudgetEnforcementAgent() AgentID { return "costplane.budget-enforcement" }
func CostAttributionAgent() AgentID   { return "costplane.cost-attribution" }
func SpendForecasterAgent() AgentID   { return "costplane.spend-forecaster" }
func PolicyAnalysisAgent() AgentID    { return "costplane.policy-analysis" }

func (a AgentID) String() string { return string(a) }

// AgentVersion is a semantic version.
type AgentVersion struct {
	Major uint32 `json:"major"`
	Minor uint32 `json:"minor"`
	Patch uint32 `json:"patch"`
}

// V1 is the initial agent version.
func V1() AgentVersion { return AgentVersion{Major: 1} }

// ParseAgentVersion reads "major.minor.patch".
func ParseAgentVersion(s string) (AgentVersion, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return AgentVersion{}, fmt.Errorf("invalid agent version %q", s)
	}
	nums := make([]uint32, 3)
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return AgentVersion{}, fmt.Errorf("invalid agent version %q: %w", s, err)
		}
		nums[i] = uint32(n)
	}
	return AgentVersion{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

func (v AgentVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Classification groups agents by their governance role.
type Classification string

const (
	ClassFinancialGovernance Classification = "financial_governance"
	ClassCostAnalysis        Classification = "cost_analysis"
	ClassForecasting         Classification = "forecasting"
)

// DecisionType tags the kind of analysis a DecisionEvent records.
type DecisionType string

const (
	DecisionAttribution      DecisionType = "attribution"
	DecisionForecast         DecisionType = "forecast"
	DecisionBudgetEvaluation DecisionType = "budget_constraint_evaluation"
	DecisionCostRiskSignal   DecisionType = "cost_risk_signal"
	DecisionBudgetSignal     DecisionType = "budget_threshold_signal"
	DecisionPolicySignal     DecisionType = "policy_violation_signal"
	DecisionApprovalSignal   DecisionType = "approval_required_signal"
	DecisionRoiAnalysis      DecisionType = "roi_analysis"
	DecisionCostPerformance  DecisionType = "cost_performance_tradeoff"
)

// ConstraintType discriminates applied-constraint payloads.
type ConstraintType string

const (
	ConstraintBudgetCap   ConstraintType = "budget_cap"
	ConstraintRoiFloor    ConstraintType = "roi_threshold"
	ConstraintCostCap     ConstraintType = "cost_cap"
	ConstraintTokenBudget ConstraintType = "token_budget"
	ConstraintRateLimit   ConstraintType = "rate_limit"
)

// AppliedConstraint records one budget/ROI/cost-cap/token/rate check
// performed during an invocation, violated or not. Every check performed
// must appear in the DecisionEvent's constraint list.
type AppliedConstraint struct {
	Type               ConstraintType `json:"constraint_type"`
	Violated           bool           `json:"violated"`
	CurrentValue       string         `json:"current_value"`
	ThresholdValue     string         `json:"threshold_value"`
	UtilizationPercent float64        `json:"utilization_percent"`
}

// ExecutionRef ties a decision back to the triggering execution. ExecutionID
// and TenantID are mandatory.
type ExecutionRef struct {
	ExecutionID   uuid.UUID `json:"execution_id"`
	TenantID      string    `json:"tenant_id"`
	WorkflowID    string    `json:"workflow_id,omitempty"`
	AgentID       string    `json:"agent_id,omitempty"`
	ProjectID     string    `json:"project_id,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// NewExecutionRef builds the minimal valid reference.
func NewExecutionRef(executionID uuid.UUID, tenantID string) ExecutionRef {
	return ExecutionRef{ExecutionID: executionID, TenantID: tenantID}
}

// DecisionEvent is the canonical, immutable record of one agent decision,
// persisted content-addressed to the external event store.
type DecisionEvent struct {
	EventID        uuid.UUID           `json:"event_id"`
	AgentID        AgentID             `json:"agent_id"`
	AgentVersion   AgentVersion        `json:"agent_version"`
	Classification Classification      `json:"classification"`
	DecisionType   DecisionType        `json:"decision_type"`
	InputsHash     string              `json:"inputs_hash"`
	Outputs        any                 `json:"outputs"`
	Confidence     float64             `json:"confidence"`
	Constraints    []AppliedConstraint `json:"constraints_applied"`
	ExecutionRef   ExecutionRef        `json:"execution_ref"`
	Timestamp      time.Time           `json:"timestamp"`
	Metadata       map[string]any      `json:"metadata,omitempty"`
}

// NewDecisionEvent assembles and validates an event. The inputs are hashed
// through the canonical JSON serialization so equivalent inputs hash
// identically across processes.
func NewDecisionEvent(
	agentID AgentID,
	version AgentVersion,
	classification Classification,
	decisionType DecisionType,
	inputs any,
	outputs any,
	confidence float64,
	constraints []AppliedConstraint,
	ref ExecutionRef,
) (DecisionEvent, error) {
	hash, err := HashInputs(inputs)
	if err != nil {
		return DecisionEvent{}, domain.WrapError(domain.ErrContractValidation, err, "hash inputs")
	}
	event := DecisionEvent{
		EventID:        uuid.New(),
		AgentID:        agentID,
		AgentVersion:   version,
		Classification: classification,
		DecisionType:   decisionType,
		InputsHash:     hash,
		Outputs:        outputs,
		Confidence:     confidence,
		Constraints:    constraints,
		ExecutionRef:   ref,
		Timestamp:      time.Now().UTC(),
	}
	if err := event.Validate(); err != nil {
		return DecisionEvent{}, err
	}
	return event, nil
}

// Validate enforces the contract invariants. Failing events are rejected
// before emission.
func (e DecisionEvent) Validate() error {
	if e.AgentID == "" {
		return domain.NewError(domain.ErrContractValidation, "agent_id is required")
	}
	if e.Confidence < 0 || e.Confidence > 1 {
		return domain.NewError(domain.ErrContractValidation,
			"confidence %f outside [0,1]", e.Confidence)
	}
	if len(e.InputsHash) != 64 {
		return domain.NewError(domain.ErrContractValidation,
			"inputs_hash must be 64 hex characters, got %d", len(e.InputsHash))
	}
	for _, c := range e.InputsHash {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return domain.NewError(domain.ErrContractValidation,
				"inputs_hash must be lowercase hex")
		}
	}
	if e.Timestamp.After(time.Now().Add(time.Second)) {
		return domain.NewError(domain.ErrContractValidation,
			"timestamp %s is in the future", e.Timestamp.Format(time.RFC3339))
	}
	if e.ExecutionRef.TenantID == "" {
		return domain.NewError(domain.ErrContractValidation, "execution_ref.tenant_id is required")
	}
	if e.ExecutionRef.ExecutionID == uuid.Nil {
		return domain.NewError(domain.ErrContractValidation, "execution_ref.execution_id is required")
	}
	return nil
}

// TelemetryType tags agent telemetry events.
type TelemetryType string

const (
	TelemetryInvocationStart    TelemetryType = "invocation_start"
	TelemetryInvocationComplete TelemetryType = "invocation_complete"
	TelemetryInvocationFailed   TelemetryType = "invocation_failed"
)

// TelemetryEvent reports one agent invocation to the observability plane.
type TelemetryEvent struct {
	EventID              uuid.UUID      `json:"event_id"`
	AgentID              string         `json:"agent_id"`
	EventType            TelemetryType  `json:"event_type"`
	Timestamp            time.Time      `json:"timestamp"`
	DurationMs           uint64         `json:"duration_ms"`
	Success              bool           `json:"success"`
	Error                string         `json:"error,omitempty"`
	DecisionType         string         `json:"decision_type"`
	Confidence           float64        `json:"confidence"`
	ConstraintsEvaluated int            `json:"constraints_evaluated"`
	ConstraintsViolated  int            `json:"constraints_violated"`
	Attributes           map[string]any `json:"attributes,omitempty"`
}

// TelemetryFor summarizes a completed decision.
func TelemetryFor(event DecisionEvent, duration time.Duration) TelemetryEvent {
	violated := 0
	for _, c := range event.Constraints {
		if c.Violated {
			violated++
		}
	}
	return TelemetryEvent{
		EventID:              uuid.New(),
		AgentID:              event.AgentID.String(),
		EventType:            TelemetryInvocationComplete,
		Timestamp:            time.Now().UTC(),
		DurationMs:           uint64(duration.Milliseconds()),
		Success:              true,
		DecisionType:         string(event.DecisionType),
		Confidence:           event.Confidence,
		ConstraintsEvaluated: len(event.Constraints),
		ConstraintsViolated:  violated,
	}
}
