package ruvector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/costplane/costplane/internal/domain"
	"github.com/costplane/costplane/internal/governance"
	"github.com/costplane/costplane/internal/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrCircuitOpen is the fast-fail error while the breaker is open.
var ErrCircuitOpen = errors.New("ruvector: circuit breaker open")

// PersistenceResult describes one successful write.
type PersistenceResult struct {
	EventID     uuid.UUID `json:"event_id"`
	PersistedAt time.Time `json:"persisted_at"`
	StorageKey  string    `json:"storage_key"`
	WasRetry    bool      `json:"was_retry"`
	RetryCount  uint32    `json:"retry_count"`
}

// BatchResult reports a sequential batch write; individual failures never
// abort the batch.
type BatchResult struct {
	Total     int                 `json:"total"`
	Succeeded int                 `json:"succeeded"`
	Failed    int                 `json:"failed"`
	Results   []PersistenceResult `json:"results"`
	Errors    []string            `json:"errors"`
}

// Client persists DecisionEvents to the event-store service over HTTP. It
// is safe to share across goroutines: the underlying http.Client pools
// connections, and the breaker synchronizes internally.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *CircuitBreaker
	log     *zap.Logger

	// sleep is injectable so retry tests run without real delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient builds a client, validating the configuration.
func NewClient(cfg Config, log *zap.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	transport := &http.Transport{MaxIdleConnsPerHost: 10}
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout:   time.Duration(cfg.TimeoutMs) * time.Millisecond,
			Transport: transport,
		},
		breaker: NewCircuitBreaker(cfg.CircuitBreakerThreshold,
			time.Duration(cfg.CircuitBreakerResetSeconds)*time.Second),
		log:   log,
		sleep: sleepCtx,
	}, nil
}

// FromEnvClient builds a client from the RUVECTOR_* environment.
func FromEnvClient(log *zap.Logger) (*Client, error) {
	return NewClient(FromEnv(), log)
}

// Breaker exposes the circuit breaker, mainly for health reporting.
func (c *Client) Breaker() *CircuitBreaker { return c.breaker }

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// PersistDecisionEvent writes one event to POST /api/v1/decisions with
// retry and circuit breaking per the §4.10 policy.
func (c *Client) PersistDecisionEvent(ctx context.Context, event governance.DecisionEvent) error {
	_, err := c.persistWithRetry(ctx, event)
	return err
}

// PersistDecision is PersistDecisionEvent returning the storage result.
func (c *Client) PersistDecision(ctx context.Context, event governance.DecisionEvent) (PersistenceResult, error) {
	return c.persistWithRetry(ctx, event)
}

// PersistBatch writes events sequentially, one result per item.
func (c *Client) PersistBatch(ctx context.Context, events []governance.DecisionEvent) BatchResult {
	out := BatchResult{Total: len(events)}
	for _, event := range events {
		if err := ctx.Err(); err != nil {
			out.Failed++
			out.Errors = append(out.Errors, fmt.Sprintf("%s: %v", event.EventID, err))
			continue
		}
		result, err := c.persistWithRetry(ctx, event)
		if err != nil {
			out.Failed++
			out.Errors = append(out.Errors, fmt.Sprintf("%s: %v", event.EventID, err))
			continue
		}
		out.Succeeded++
		out.Results = append(out.Results, result)
	}
	return out
}

// PersistTelemetry writes an agent telemetry event to POST /api/v1/telemetry.
func (c *Client) PersistTelemetry(ctx context.Context, event governance.TelemetryEvent) error {
	if !c.breaker.CanExecute() {
		return ErrCircuitOpen
	}
	status, _, err := c.post(ctx, "/api/v1/telemetry", event)
	if err != nil {
		c.breaker.RecordFailure()
		return domain.WrapError(domain.ErrNetwork, err, "persist telemetry")
	}
	if status == http.StatusOK || status == http.StatusCreated {
		c.breaker.RecordSuccess()
		return nil
	}
	c.breaker.RecordFailure()
	return domain.NewError(domain.ErrServiceUnavailable,
		"telemetry persist failed with status %d", status)
}

// HealthCheck probes GET /health.
func (c *Client) HealthCheck(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Endpoint+"/health", nil)
	if err != nil {
		return false, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false, domain.WrapError(domain.ErrNetwork, err, "health check")
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK, nil
}

// persistWithRetry is an iterative retry loop: attempt counters, never
// recursion across sleeps.
func (c *Client) persistWithRetry(ctx context.Context, event governance.DecisionEvent) (PersistenceResult, error) {
	var attempt uint32
	for {
		canExecute := c.breaker.CanExecute()
		metrics.CircuitBreakerState.Set(float64(c.breaker.State()))
		if !canExecute {
			return PersistenceResult{}, ErrCircuitOpen
		}

		if c.cfg.EnableLogging {
			c.log.Debug("persisting decision event",
				zap.String("event_id", event.EventID.String()),
				zap.String("agent_id", event.AgentID.String()),
				zap.Uint32("attempt", attempt))
		}

		status, headers, err := c.post(ctx, "/api/v1/decisions", event)
		metrics.EventStoreRequests.WithLabelValues("decisions", statusLabel(status, err)).Inc()
		switch {
		case err != nil:
			c.breaker.RecordFailure()
			if isTimeout(err) && attempt < c.cfg.MaxRetries {
				if sleepErr := c.sleep(ctx, c.backoff(attempt)); sleepErr != nil {
					return PersistenceResult{}, sleepErr
				}
				attempt++
				continue
			}
			if isTimeout(err) {
				return PersistenceResult{}, domain.WrapError(domain.ErrTimeout, err, "persist decision")
			}
			return PersistenceResult{}, domain.WrapError(domain.ErrNetwork, err, "persist decision")

		case status == http.StatusOK || status == http.StatusCreated:
			c.breaker.RecordSuccess()
			return PersistenceResult{
				EventID:     event.EventID,
				PersistedAt: time.Now().UTC(),
				StorageKey:  fmt.Sprintf("decisions/%s/%s", event.AgentID, event.EventID),
				WasRetry:    attempt > 0,
				RetryCount:  attempt,
			}, nil

		case status == http.StatusTooManyRequests:
			retryAfter := retryAfterSeconds(headers, 60)
			if attempt < c.cfg.MaxRetries {
				if sleepErr := c.sleep(ctx, time.Duration(retryAfter)*time.Second); sleepErr != nil {
					return PersistenceResult{}, sleepErr
				}
				attempt++
				continue
			}
			return PersistenceResult{}, domain.RateLimitedError(retryAfter,
				"event store rate limited after %d attempts", attempt+1)

		case status == http.StatusServiceUnavailable ||
			status == http.StatusBadGateway ||
			status == http.StatusGatewayTimeout:
			c.breaker.RecordFailure()
			if attempt < c.cfg.MaxRetries {
				if sleepErr := c.sleep(ctx, c.backoff(attempt)); sleepErr != nil {
					return PersistenceResult{}, sleepErr
				}
				attempt++
				continue
			}
			return PersistenceResult{}, domain.NewError(domain.ErrServiceUnavailable,
				"event store unavailable (status %d) after %d attempts", status, attempt+1)

		default:
			c.breaker.RecordFailure()
			kind := domain.ErrInternal
			if status >= 400 && status < 500 {
				// Client errors never succeed on retry.
				kind = domain.ErrValidation
			}
			return PersistenceResult{}, domain.NewError(kind,
				"event store rejected request with status %d", status)
		}
	}
}

// backoff is delay(k) = retry_delay * 2^k.
func (c *Client) backoff(attempt uint32) time.Duration {
	return time.Duration(c.cfg.RetryDelayMs) * time.Millisecond << attempt
}

// post sends a JSON body with auth and a fresh request id; returns the
// status code and response headers. The body is drained and discarded.
func (c *Client) post(ctx context.Context, path string, payload any) (int, http.Header, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, resp.Header, nil
}

func statusLabel(status int, err error) string {
	if err != nil {
		return "error"
	}
	return strconv.Itoa(status)
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func retryAfterSeconds(headers http.Header, fallback int64) int64 {
	if headers == nil {
		return fallback
	}
	if v := headers.Get("Retry-After"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			return n
		}
	}
	return fallback
}
