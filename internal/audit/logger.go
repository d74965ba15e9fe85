package audit

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger defines the interface for audit logging
type Logger interface {
	// Log logs an audit event
	Log(ctx context.Context, event *Event) error

	// LogDecisionEmitted records a successfully dispatched DecisionEvent.
	LogDecisionEmitted(ctx context.Context, agentID, eventID, decisionType string) error

	// LogDecisionFailed records a dispatch failure.
	LogDecisionFailed(ctx context.Context, agentID, eventID string, err error) error

	// LogDlqTransition records a DLQ item lifecycle transition.
	LogDlqTransition(ctx context.Context, eventType EventType, itemID, orgID string, err error) error

	// LogUsageRejected records a validation rejection at ingestion.
	LogUsageRejected(ctx context.Context, orgID string, err error) error

	// App returns the application logger.
	App() *zap.Logger

	// Sync flushes buffered log entries
	Sync() error

	// Close closes the audit logger
	Close() error
}

// Config represents audit logger configuration
type Config struct {
	// AuditLogPath is the path to the audit log file
	AuditLogPath string

	// AppLogPath is the path to the application log file
	AppLogPath string

	// MaxSize is the maximum size in megabytes before rotation
	MaxSize int

	// MaxBackups is the maximum number of old log files to retain
	MaxBackups int

	// MaxAge is the maximum number of days to retain old log files
	MaxAge int

	// Compress determines if rotated files should be compressed
	Compress bool

	// LogLevel is the minimum log level (debug, info, warn, error)
	LogLevel string

	// ConsoleOnly skips file sinks entirely; used by tests.
	ConsoleOnly bool
}

// DefaultConfig returns default audit logger configuration
func DefaultConfig() *Config {
	return &Config{
		AuditLogPath: "logs/audit.log",
		AppLogPath:   "logs/app.log",
		MaxSize:      100, // megabytes
		MaxBackups:   10,
		MaxAge:       30, // days
		Compress:     true,
		LogLevel:     "info",
	}
}

// auditLogger implements the Logger interface
type auditLogger struct {
	appLogger   *zap.Logger
	auditLogger *zap.Logger
	config      *Config
}

// NewLogger creates a new audit logger
func NewLogger(config *Config) (Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	level, err := zapcore.ParseLevel(config.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", config.LogLevel, err)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	jsonEncoder := zapcore.NewJSONEncoder(encoderCfg)

	consoleSink := zapcore.Lock(os.Stdout)

	appCores := []zapcore.Core{zapcore.NewCore(jsonEncoder, consoleSink, level)}
	auditCores := []zapcore.Core{}

	if !config.ConsoleOnly {
		appSink := zapcore.AddSync(&lumberjack.Logger{
			Filename:   config.AppLogPath,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		})
		appCores = append(appCores, zapcore.NewCore(jsonEncoder, appSink, level))

		auditSink := zapcore.AddSync(&lumberjack.Logger{
			Filename:   config.AuditLogPath,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		})
		// The audit trail records everything regardless of app level.
		auditCores = append(auditCores, zapcore.NewCore(jsonEncoder, auditSink, zapcore.InfoLevel))
	} else {
		auditCores = append(auditCores, zapcore.NewCore(jsonEncoder, consoleSink, zapcore.InfoLevel))
	}

	return &auditLogger{
		appLogger:   zap.New(zapcore.NewTee(appCores...)),
		auditLogger: zap.New(zapcore.NewTee(auditCores...)),
		config:      config,
	}, nil
}

func (l *auditLogger) App() *zap.Logger { return l.appLogger }

func (l *auditLogger) Log(_ context.Context, event *Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	fields := []zap.Field{
		zap.String("event_type", string(event.EventType)),
		zap.String("result", string(event.Result)),
		zap.Time("event_time", event.Timestamp),
	}
	if event.CorrelationID != "" {
		fields = append(fields, zap.String("correlation_id", event.CorrelationID))
	}
	if event.OrganizationID != "" {
		fields = append(fields, zap.String("organization_id", event.OrganizationID))
	}
	if event.AgentID != "" {
		fields = append(fields, zap.String("agent_id", event.AgentID))
	}
	if event.EntityID != "" {
		fields = append(fields, zap.String("entity_id", event.EntityID))
	}
	if event.Error != "" {
		fields = append(fields, zap.String("error", event.Error))
	}
	if len(event.Metadata) > 0 {
		fields = append(fields, zap.Any("metadata", event.Metadata))
	}
	l.auditLogger.Info(event.Description, fields...)
	return nil
}

func (l *auditLogger) LogDecisionEmitted(ctx context.Context, agentID, eventID, decisionType string) error {
	return l.Log(ctx, &Event{
		EventType:   EventDecisionEmitted,
		Result:      ResultSuccess,
		AgentID:     agentID,
		EntityID:    eventID,
		Description: "decision event persisted",
		Metadata:    map[string]string{"decision_type": decisionType},
	})
}

func (l *auditLogger) LogDecisionFailed(ctx context.Context, agentID, eventID string, err error) error {
	return l.Log(ctx, &Event{
		EventType:   EventDecisionFailed,
		Result:      ResultFailure,
		AgentID:     agentID,
		EntityID:    eventID,
		Description: "decision event dispatch failed",
		Error:       err.Error(),
	})
}

func (l *auditLogger) LogDlqTransition(ctx context.Context, eventType EventType, itemID, orgID string, err error) error {
	event := &Event{
		EventType:      eventType,
		Result:         ResultSuccess,
		OrganizationID: orgID,
		EntityID:       itemID,
		Description:    "dlq item transition",
	}
	if err != nil {
		event.Result = ResultFailure
		event.Error = err.Error()
	}
	return l.Log(ctx, event)
}

func (l *auditLogger) LogUsageRejected(ctx context.Context, orgID string, err error) error {
	return l.Log(ctx, &Event{
		EventType:      EventUsageRejected,
		Result:         ResultFailure,
		OrganizationID: orgID,
		Description:    "usage record rejected at validation",
		Error:          err.Error(),
	})
}

func (l *auditLogger) Sync() error {
	appErr := l.appLogger.Sync()
	auditErr := l.auditLogger.Sync()
	if appErr != nil {
		return appErr
	}
	return auditErr
}

func (l *auditLogger) Close() error {
	return l.Sync()
}
