package audit

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"
)

// LogrusLogger writes audit events as JSON lines through logrus
type LogrusLogger struct {
	logger *logrus.Logger
}

// NewLogrusLogger creates an audit logger writing to out
func NewLogrusLogger(out io.Writer) *LogrusLogger {
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)
	return &LogrusLogger{logger: logger}
}

// Log writes one entry per event
func (l *LogrusLogger) Log(ctx context.Context, event *Event) error {
	event = Prepare(ctx, event)

	fields := logrus.Fields{
		"audit_id":   event.ID,
		"event_type": string(event.EventType),
		"status":     string(event.Status),
	}
	if event.UserID != "" {
		fields["user_id"] = event.UserID
	}
	if event.ResourceType != "" {
		fields["resource_type"] = string(event.ResourceType)
		fields["resource_id"] = event.ResourceID
	}
	if event.RequestID != "" {
		fields["request_id"] = event.RequestID
	}
	if event.Method != "" {
		fields["method"] = event.Method
		fields["path"] = event.Path
	}
	if event.Changes != nil {
		fields["changes"] = event.Changes
	}
	for k, v := range event.Metadata {
		fields["meta_"+k] = v
	}

	entry := l.logger.WithFields(fields).WithTime(event.Timestamp)
	if event.Status == EventStatusSuccess {
		entry.Info(event.Message)
	} else {
		entry.Warn(event.Message)
	}
	return nil
}

// Close is a no-op; the writer is owned by the caller
func (l *LogrusLogger) Close() error {
	return nil
}
