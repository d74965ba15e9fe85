package domain

import (
	"time"

	"github.com/google/uuid"
)

// UsageRecord is a single measured model invocation. It is constructed once
// at ingestion and immutable afterwards; the pipeline passes it by value.
type UsageRecord struct {
	ID        uuid.UUID       `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Provider  Provider        `json:"provider"`
	Model     ModelIdentifier `json:"model"`

	OrganizationID string `json:"organization_id"`
	ProjectID      string `json:"project_id,omitempty"`
	UserID         string `json:"user_id,omitempty"`

	PromptTokens     uint64  `json:"prompt_tokens"`
	CompletionTokens uint64  `json:"completion_tokens"`
	TotalTokens      uint64  `json:"total_tokens"`
	CachedTokens     *uint64 `json:"cached_tokens,omitempty"`
	ReasoningTokens  *uint64 `json:"reasoning_tokens,omitempty"`

	LatencyMs          *uint64 `json:"latency_ms,omitempty"`
	TimeToFirstTokenMs *uint64 `json:"time_to_first_token_ms,omitempty"`

	Tags     []string          `json:"tags,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`

	IngestedAt time.Time       `json:"ingested_at"`
	Source     IngestionSource `json:"source"`
}

// NewUsageRecord constructs a record with a fresh id and ingestion
// timestamp. Callers still run Validate before admitting it.
func NewUsageRecord(provider Provider, model ModelIdentifier, orgID string, prompt, completion uint64, ts time.Time, source IngestionSource) UsageRecord {
	return UsageRecord{
		ID:               uuid.New(),
		Timestamp:        ts,
		Provider:         provider,
		Model:            model,
		OrganizationID:   orgID,
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
		IngestedAt:       time.Now().UTC(),
		Source:           source,
	}
}

// Validate enforces the ingestion invariants. The returned error carries
// the taxonomy kind so the pipeline can map it to a DLQ failure reason.
func (u UsageRecord) Validate(now time.Time) error {
	if u.OrganizationID == "" {
		return NewError(ErrMissingOrganization, "organization_id is required")
	}
	if u.TotalTokens == 0 {
		return NewError(ErrInvalidTokenCount, "usage %s has zero tokens", u.ID)
	}
	if u.TotalTokens != u.PromptTokens+u.CompletionTokens {
		return NewError(ErrTokenCountMismatch,
			"total_tokens %d != prompt %d + completion %d",
			u.TotalTokens, u.PromptTokens, u.CompletionTokens)
	}
	if u.Timestamp.After(now) {
		return NewError(ErrFutureTimestamp,
			"event timestamp %s is in the future", u.Timestamp.Format(time.RFC3339))
	}
	if u.CachedTokens != nil && *u.CachedTokens > u.PromptTokens {
		return NewError(ErrValidation,
			"cached_tokens %d exceeds prompt_tokens %d", *u.CachedTokens, u.PromptTokens)
	}
	if u.Provider.IsZero() {
		return NewError(ErrValidation, "provider is required")
	}
	if u.Model.Name == "" {
		return NewError(ErrValidation, "model name is required")
	}
	return nil
}

// WithCachedTokens returns a copy with the cached-token count set.
func (u UsageRecord) WithCachedTokens(n uint64) UsageRecord {
	u.CachedTokens = &n
	return u
}

// WithProject returns a copy with the project id set.
func (u UsageRecord) WithProject(projectID string) UsageRecord {
	u.ProjectID = projectID
	return u
}
