package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/storeadmin/pkg/contextkeys"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log records an audit event
	Log(ctx context.Context, event *Event) error

	// Close flushes and releases the sink
	Close() error
}

// WithLogger adds an audit logger to the context
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, contextkeys.AuditLoggerKey, logger)
}

// FromContext retrieves the audit logger from context
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(contextkeys.AuditLoggerKey).(Logger); ok {
		return logger
	}
	return NoOpLogger()
}

// noOpLogger is a logger that does nothing (used when no logger is configured)
type noOpLogger struct{}

// NoOpLogger returns a Logger that discards every event
func NoOpLogger() Logger { return noOpLogger{} }

func (noOpLogger) Log(ctx context.Context, event *Event) error { return nil }
func (noOpLogger) Close() error                                 { return nil }

// Prepare fills the id, timestamp, actor and request id of an event from context
// when the caller left them empty.
func Prepare(ctx context.Context, event *Event) *Event {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Status == "" {
		event.Status = EventStatusSuccess
	}
	if ctx != nil {
		if event.UserID == "" {
			event.UserID = contextkeys.GetUserID(ctx)
		}
		if event.RequestID == "" {
			event.RequestID = contextkeys.GetRequestID(ctx)
		}
	}
	return event
}

// LogDenied records an access denied event
func LogDenied(ctx context.Context, logger Logger, resourceID, reason string) error {
	return logger.Log(ctx, &Event{
		EventType:    EventTypeAccessDenied,
		Status:       EventStatusDenied,
		ResourceType: ResourceTypePermission,
		ResourceID:   resourceID,
		Message:      reason,
	})
}
