package governance

import (
	"time"

	"github.com/costplane/costplane/internal/domain"
)

// Default per-invocation performance budget.
const (
	DefaultMaxTokens    = 1200
	DefaultMaxLatencyMs = 2500
)

// PerformanceBudget caps the token usage and latency of one agent
// invocation. In advisory mode an over-budget invocation succeeds and is
// annotated; in strict mode it fails.
type PerformanceBudget struct {
	MaxTokens    uint64 `json:"max_tokens"`
	MaxLatencyMs uint64 `json:"max_latency_ms"`
	Strict       bool   `json:"strict"`
}

// DefaultPerformanceBudget uses the standard limits in advisory mode.
func DefaultPerformanceBudget() PerformanceBudget {
	return PerformanceBudget{MaxTokens: DefaultMaxTokens, MaxLatencyMs: DefaultMaxLatencyMs}
}

// NewPerformanceBudget builds a budget with explicit limits.
func NewPerformanceBudget(maxTokens, maxLatencyMs uint64) PerformanceBudget {
	return PerformanceBudget{MaxTokens: maxTokens, MaxLatencyMs: maxLatencyMs}
}

// WithStrict toggles strict mode.
func (b PerformanceBudget) WithStrict(strict bool) PerformanceBudget {
	b.Strict = strict
	return b
}

// CheckTokens validates a token count against the budget. Advisory budgets
// always pass; strict budgets fail when over.
func (b PerformanceBudget) CheckTokens(tokens uint64) error {
	if b.Strict && b.MaxTokens > 0 && tokens > b.MaxTokens {
		return domain.NewError(domain.ErrValidation,
			"token usage %d exceeds budget %d", tokens, b.MaxTokens)
	}
	return nil
}

// CheckLatency validates an elapsed duration against the budget.
func (b PerformanceBudget) CheckLatency(elapsed time.Duration) error {
	if b.Strict && b.MaxLatencyMs > 0 && uint64(elapsed.Milliseconds()) > b.MaxLatencyMs {
		return domain.NewError(domain.ErrValidation,
			"latency %dms exceeds budget %dms", elapsed.Milliseconds(), b.MaxLatencyMs)
	}
	return nil
}

// Guard starts measuring one invocation against this budget.
func (b PerformanceBudget) Guard() *PerformanceGuard {
	return &PerformanceGuard{
		budget:  b,
		started: time.Now(),
	}
}

// PerformanceGuard accumulates token counts and elapsed time across one
// invocation and reports whether it stayed within budget.
type PerformanceGuard struct {
	budget  PerformanceBudget
	started time.Time
	tokens  uint64
}

// RecordTokens adds consumed tokens.
func (g *PerformanceGuard) RecordTokens(n uint64) {
	g.tokens += n
}

// TokensUsed returns the accumulated count.
func (g *PerformanceGuard) TokensUsed() uint64 { return g.tokens }

// PerformanceMetrics is the guard's final report.
type PerformanceMetrics struct {
	TokensUsed   uint64 `json:"tokens_used"`
	MaxTokens    uint64 `json:"max_tokens"`
	ElapsedMs    uint64 `json:"elapsed_ms"`
	MaxLatencyMs uint64 `json:"max_latency_ms"`
	WithinBudget bool   `json:"within_budget"`
}

// TokenUtilization is the percentage of the token budget consumed.
func (m PerformanceMetrics) TokenUtilization() float64 {
	if m.MaxTokens == 0 {
		return 0
	}
	return float64(m.TokensUsed) / float64(m.MaxTokens) * 100
}

// Finish stops the guard and reports the metrics.
func (g *PerformanceGuard) Finish() PerformanceMetrics {
	elapsed := time.Since(g.started)
	within := true
	if g.budget.MaxTokens > 0 && g.tokens > g.budget.MaxTokens {
		within = false
	}
	if g.budget.MaxLatencyMs > 0 && uint64(elapsed.Milliseconds()) > g.budget.MaxLatencyMs {
		within = false
	}
	return PerformanceMetrics{
		TokensUsed:   g.tokens,
		MaxTokens:    g.budget.MaxTokens,
		ElapsedMs:    uint64(elapsed.Milliseconds()),
		MaxLatencyMs: g.budget.MaxLatencyMs,
		WithinBudget: within,
	}
}

// FinishStrict stops the guard and, for strict budgets, converts an
// over-budget invocation into an error.
func (g *PerformanceGuard) FinishStrict() (PerformanceMetrics, error) {
	metrics := g.Finish()
	if g.budget.Strict && !metrics.WithinBudget {
		return metrics, domain.NewError(domain.ErrValidation,
			"invocation over performance budget: %d/%d tokens, %d/%dms",
			metrics.TokensUsed, metrics.MaxTokens, metrics.ElapsedMs, metrics.MaxLatencyMs)
	}
	return metrics, nil
}
