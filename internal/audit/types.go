package audit

import "time"

// EventType represents the type of audit event
type EventType string

const (
	// Ingestion events
	EventUsageAccepted EventType = "ingestion.usage_accepted"
	EventUsageRejected EventType = "ingestion.usage_rejected"
	EventBatchIngested EventType = "ingestion.batch_ingested"

	// Governance events
	EventDecisionEmitted   EventType = "governance.decision_emitted"
	EventDecisionFailed    EventType = "governance.decision_failed"
	EventSignalConstructed EventType = "governance.signal_constructed"
	EventPolicyEvaluated   EventType = "governance.policy_evaluated"
	EventApprovalRequested EventType = "governance.approval_requested"

	// DLQ events
	EventDlqItemAdded     EventType = "dlq.item_added"
	EventDlqItemRetried   EventType = "dlq.item_retried"
	EventDlqItemProcessed EventType = "dlq.item_processed"
	EventDlqItemFailed    EventType = "dlq.item_failed"
	EventDlqItemExpired   EventType = "dlq.item_expired"

	// Event store events
	EventStorePersisted   EventType = "event_store.persisted"
	EventStoreUnavailable EventType = "event_store.unavailable"
	EventBreakerOpened    EventType = "event_store.breaker_opened"
	EventBreakerClosed    EventType = "event_store.breaker_closed"

	// System events
	EventServerStarted  EventType = "system.server_started"
	EventServerShutdown EventType = "system.server_shutdown"
	EventConfigLoaded   EventType = "system.config_loaded"
)

// Result represents the outcome of an audited action
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
	ResultPending Result = "pending"
)

// Event represents a single audit event
type Event struct {
	// Core fields
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	EventType     EventType `json:"event_type"`
	Result        Result    `json:"result"`

	// Subject information
	OrganizationID string `json:"organization_id,omitempty"`
	AgentID        string `json:"agent_id,omitempty"`
	EntityID       string `json:"entity_id,omitempty"`

	// Event details
	Description string            `json:"description,omitempty"`
	Error       string            `json:"error,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}
