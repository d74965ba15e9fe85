package ingestion

import (
	"context"
	"strings"
	"time"

	"github.com/costplane/costplane/internal/domain"
	"github.com/google/uuid"
)

// TelemetryEvent is the wire shape the observability producer delivers.
// Token counts arrive pre-computed upstream; this plane never tokenizes.
type TelemetryEvent struct {
	EventID          string            `json:"event_id"`
	Timestamp        time.Time         `json:"timestamp"`
	Provider         string            `json:"provider"`
	Model            string            `json:"model"`
	ModelVersion     string            `json:"model_version,omitempty"`
	OrganizationID   string            `json:"organization_id"`
	ProjectID        string            `json:"project_id,omitempty"`
	UserID           string            `json:"user_id,omitempty"`
	PromptTokens     uint64            `json:"prompt_tokens"`
	CompletionTokens uint64            `json:"completion_tokens"`
	TotalTokens      *uint64           `json:"total_tokens,omitempty"`
	CachedTokens     *uint64           `json:"cached_tokens,omitempty"`
	ReasoningTokens  *uint64           `json:"reasoning_tokens,omitempty"`
	LatencyMs        *uint64           `json:"latency_ms,omitempty"`
	Tags             []string          `json:"tags,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// TelemetryConsumer normalizes telemetry events into usage records. The
// provider mapping table is configurable: deployments extend it to route
// their internal provider names; unmapped names become custom providers.
type TelemetryConsumer struct {
	pipeline    *Pipeline
	providerMap map[string]domain.Provider
	source      domain.IngestionSource
}

// NewTelemetryConsumer builds a consumer feeding the pipeline.
func NewTelemetryConsumer(pipeline *Pipeline) *TelemetryConsumer {
	return &TelemetryConsumer{
		pipeline:    pipeline,
		providerMap: make(map[string]domain.Provider),
		source:      domain.WebhookSource("telemetry"),
	}
}

// MapProvider adds one entry to the provider mapping table.
func (c *TelemetryConsumer) MapProvider(name string, provider domain.Provider) {
	c.providerMap[strings.ToLower(strings.TrimSpace(name))] = provider
}

// WithSource overrides the ingestion source tag.
func (c *TelemetryConsumer) WithSource(source domain.IngestionSource) *TelemetryConsumer {
	c.source = source
	return c
}

// Normalize converts one telemetry event into a usage record without
// submitting it. A missing total is computed as prompt + completion; a
// contradictory total is left in place for validation to reject.
func (c *TelemetryConsumer) Normalize(event TelemetryEvent) (domain.UsageRecord, error) {
	if event.EventID == "" {
		return domain.UsageRecord{}, domain.NewError(domain.ErrValidation, "event_id is required")
	}

	provider, ok := c.providerMap[strings.ToLower(strings.TrimSpace(event.Provider))]
	if !ok {
		provider = domain.ParseProvider(event.Provider)
	}

	id, err := uuid.Parse(event.EventID)
	if err != nil {
		// Upstream ids are not always UUIDs; derive a stable one.
		id = uuid.NewSHA1(uuid.NameSpaceOID, []byte(event.EventID))
	}

	total := event.PromptTokens + event.CompletionTokens
	if event.TotalTokens != nil {
		total = *event.TotalTokens
	}

	record := domain.UsageRecord{
		ID:               id,
		Timestamp:        event.Timestamp,
		Provider:         provider,
		Model:            domain.ModelIdentifier{Name: event.Model, Version: event.ModelVersion},
		OrganizationID:   event.OrganizationID,
		ProjectID:        event.ProjectID,
		UserID:           event.UserID,
		PromptTokens:     event.PromptTokens,
		CompletionTokens: event.CompletionTokens,
		TotalTokens:      total,
		CachedTokens:     event.CachedTokens,
		ReasoningTokens:  event.ReasoningTokens,
		LatencyMs:        event.LatencyMs,
		Tags:             event.Tags,
		Metadata:         event.Metadata,
		IngestedAt:       time.Now().UTC(),
		Source:           c.source,
	}
	return record, nil
}

// ConsumeResult is one entry of the per-item result vector.
type ConsumeResult struct {
	EventID string             `json:"event_id"`
	Cost    *domain.CostRecord `json:"cost,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// Consume normalizes and submits one event.
func (c *TelemetryConsumer) Consume(ctx context.Context, event TelemetryEvent) ConsumeResult {
	record, err := c.Normalize(event)
	if err != nil {
		return ConsumeResult{EventID: event.EventID, Error: err.Error()}
	}
	cost, err := c.pipeline.Submit(ctx, record)
	if err != nil {
		return ConsumeResult{EventID: event.EventID, Error: err.Error()}
	}
	return ConsumeResult{EventID: event.EventID, Cost: &cost}
}

// ConsumeBatch processes a telemetry batch and returns the per-item
// result vector in input order.
func (c *TelemetryConsumer) ConsumeBatch(ctx context.Context, events []TelemetryEvent) []ConsumeResult {
	out := make([]ConsumeResult, 0, len(events))
	for _, event := range events {
		out = append(out, c.Consume(ctx, event))
	}
	return out
}
