package governance

import (
	"context"
	"time"

	"github.com/costplane/costplane/internal/metrics"
	"go.uber.org/zap"
)

// EventSink persists DecisionEvents. The production sink is the ruvector
// event-store client; tests substitute an in-memory recorder.
type EventSink interface {
	PersistDecisionEvent(ctx context.Context, event DecisionEvent) error
}

// DecisionTrail records dispatched decisions for the audit log; the audit
// package's Logger satisfies it.
type DecisionTrail interface {
	LogDecisionEmitted(ctx context.Context, agentID, eventID, decisionType string) error
	LogDecisionFailed(ctx context.Context, agentID, eventID string, err error) error
}

// Emitter wraps governance signals into DecisionEvents and dispatches them.
// Emission is the only effect: the emitter constructs the event, validates
// it, hands it to the sink, and logs — it never mutates pipeline state,
// blocks workloads, or approves anything.
type Emitter struct {
	sink   EventSink
	log    *zap.Logger
	trail  DecisionTrail
	budget PerformanceBudget
}

// NewEmitter builds an emitter. A nil logger disables logging.
func NewEmitter(sink EventSink, log *zap.Logger) *Emitter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Emitter{sink: sink, log: log, budget: DefaultPerformanceBudget()}
}

// WithPerformanceBudget overrides the default invocation budget.
func (e *Emitter) WithPerformanceBudget(b PerformanceBudget) *Emitter {
	e.budget = b
	return e
}

// WithDecisionTrail attaches an audit trail recorder.
func (e *Emitter) WithDecisionTrail(trail DecisionTrail) *Emitter {
	e.trail = trail
	return e
}

// EmitCostRisk wraps a cost-risk signal and dispatches it.
func (e *Emitter) EmitCostRisk(ctx context.Context, signal CostRiskSignal, inputs any, confidence float64, ref ExecutionRef) (DecisionEvent, error) {
	event, err := NewDecisionEvent(
		signal.AgentID, signal.AgentVersion,
		ClassForecasting, DecisionCostRiskSignal,
		inputs, signal, confidence, nil, ref,
	)
	if err != nil {
		return DecisionEvent{}, err
	}
	return e.dispatch(ctx, event)
}

// EmitBudgetThreshold wraps a budget-threshold signal, recording the budget
// check as an applied constraint.
func (e *Emitter) EmitBudgetThreshold(ctx context.Context, signal BudgetThresholdSignal, inputs any, confidence float64, ref ExecutionRef) (DecisionEvent, error) {
	constraint := AppliedConstraint{
		Type:               ConstraintBudgetCap,
		Violated:           signal.UtilizationPercent >= 100,
		CurrentValue:       signal.CurrentSpend.String(),
		ThresholdValue:     signal.BudgetLimit.String(),
		UtilizationPercent: signal.UtilizationPercent,
	}
	event, err := NewDecisionEvent(
		signal.AgentID, signal.AgentVersion,
		ClassFinancialGovernance, DecisionBudgetSignal,
		inputs, signal, confidence, []AppliedConstraint{constraint}, ref,
	)
	if err != nil {
		return DecisionEvent{}, err
	}
	return e.dispatch(ctx, event)
}

// EmitPolicyViolation wraps a policy-violation signal. The signal's
// is_blocking flag travels with it untouched; emission itself blocks
// nothing.
func (e *Emitter) EmitPolicyViolation(ctx context.Context, signal PolicyViolationSignal, inputs any, confidence float64, ref ExecutionRef) (DecisionEvent, error) {
	event, err := NewDecisionEvent(
		signal.AgentID, signal.AgentVersion,
		ClassFinancialGovernance, DecisionPolicySignal,
		inputs, signal, confidence, nil, ref,
	)
	if err != nil {
		return DecisionEvent{}, err
	}
	return e.dispatch(ctx, event)
}

// EmitApprovalRequired wraps an approval request. The suggested approvers
// are a routing hint; the subject remains unapproved until the consuming
// system decides.
func (e *Emitter) EmitApprovalRequired(ctx context.Context, signal ApprovalRequiredSignal, inputs any, confidence float64, ref ExecutionRef) (DecisionEvent, error) {
	event, err := NewDecisionEvent(
		signal.AgentID, signal.AgentVersion,
		ClassFinancialGovernance, DecisionApprovalSignal,
		inputs, signal, confidence, nil, ref,
	)
	if err != nil {
		return DecisionEvent{}, err
	}
	return e.dispatch(ctx, event)
}

// GuardedEmit runs fn under a performance guard and annotates the emitted
// event with the guard's metrics. In strict mode an over-budget invocation
// fails after the fact; in advisory mode it succeeds annotated.
func (e *Emitter) GuardedEmit(ctx context.Context, fn func(guard *PerformanceGuard) (DecisionEvent, error)) (DecisionEvent, PerformanceMetrics, error) {
	guard := e.budget.Guard()
	event, err := fn(guard)
	if err != nil {
		return DecisionEvent{}, guard.Finish(), err
	}
	metrics, budgetErr := guard.FinishStrict()
	if budgetErr != nil {
		return DecisionEvent{}, metrics, budgetErr
	}
	if event.Metadata == nil {
		event.Metadata = make(map[string]any)
	}
	event.Metadata["performance"] = metrics
	return event, metrics, nil
}

func (e *Emitter) dispatch(ctx context.Context, event DecisionEvent) (DecisionEvent, error) {
	start := time.Now()
	defer func() {
		metrics.DecisionDispatchDuration.WithLabelValues(string(event.DecisionType)).
			Observe(time.Since(start).Seconds())
	}()
	if err := e.sink.PersistDecisionEvent(ctx, event); err != nil {
		e.log.Error("decision event dispatch failed",
			zap.String("event_id", event.EventID.String()),
			zap.String("agent_id", event.AgentID.String()),
			zap.String("decision_type", string(event.DecisionType)),
			zap.Error(err))
		if e.trail != nil {
			e.trail.LogDecisionFailed(ctx, event.AgentID.String(), event.EventID.String(), err)
		}
		return event, err
	}
	if e.trail != nil {
		e.trail.LogDecisionEmitted(ctx,
			event.AgentID.String(), event.EventID.String(), string(event.DecisionType))
	}
	e.log.Info("decision event emitted",
		zap.String("event_id", event.EventID.String()),
		zap.String("agent_id", event.AgentID.String()),
		zap.String("decision_type", string(event.DecisionType)),
		zap.Duration("dispatch_time", time.Since(start)))
	return event, nil
}
