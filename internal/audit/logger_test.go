package audit

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestNewLogger_RejectsBadLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "loud"
	if _, err := NewLogger(cfg); err == nil {
		t.Error("invalid log level must be rejected")
	}
}

func TestLogger_EventHelpers(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.AppLogPath = filepath.Join(dir, "app.log")
	cfg.AuditLogPath = filepath.Join(dir, "audit.log")

	logger, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer logger.Close()

	ctx := context.Background()
	if err := logger.LogDecisionEmitted(ctx, "costplane.budget-enforcement", "evt-1", "budget_threshold_signal"); err != nil {
		t.Errorf("LogDecisionEmitted failed: %v", err)
	}
	if err := logger.LogDecisionFailed(ctx, "costplane.budget-enforcement", "evt-2", errors.New("store down")); err != nil {
		t.Errorf("LogDecisionFailed failed: %v", err)
	}
	if err := logger.LogDlqTransition(ctx, EventDlqItemAdded, "item-1", "org-1", nil); err != nil {
		t.Errorf("LogDlqTransition failed: %v", err)
	}
	if err := logger.LogUsageRejected(ctx, "org-1", errors.New("token mismatch")); err != nil {
		t.Errorf("LogUsageRejected failed: %v", err)
	}
	if err := logger.Log(ctx, &Event{
		EventType:   EventServerStarted,
		Result:      ResultSuccess,
		Description: "server up",
		Metadata:    map[string]string{"version": "0.1.0"},
	}); err != nil {
		t.Errorf("Log failed: %v", err)
	}
	if logger.App() == nil {
		t.Error("application logger must be available")
	}
}

func TestLogger_ConsoleOnly(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConsoleOnly = true
	logger, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer logger.Close()
	if err := logger.Log(context.Background(), &Event{
		EventType: EventConfigLoaded, Result: ResultSuccess,
	}); err != nil {
		t.Errorf("console-only log failed: %v", err)
	}
}
