// Package contextkeys provides centralized context key definitions
//
// All context keys used across the application are defined here so that
// producers and consumers agree on the key and the stored type.
//
// USAGE PATTERN:
//
//	import "github.com/platinummonkey/storeadmin/pkg/contextkeys"
//	ctx = context.WithValue(ctx, contextkeys.UserIDKey, userID)
//	userID, _ := ctx.Value(contextkeys.UserIDKey).(string)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// RequestIDKey contains request ID string (UUID)
	// Set by: middleware.RequestID
	// Used by: Logger, audit trail
	// Type: string
	RequestIDKey Key = "request_id"

	// UserIDKey contains the authenticated admin user id
	// Set by: middleware.Identity from the session provider's header
	// Used by: RBAC middleware and handlers, logger, audit trail
	// Type: string
	UserIDKey Key = "user_id"

	// LoggerKey contains *observability.Logger
	// Set by: observability.WithLogger
	// Type: *observability.Logger
	LoggerKey Key = "logger"

	// AuditLoggerKey contains audit.Logger interface
	// Set by: audit.WithLogger
	// Type: audit.Logger
	AuditLoggerKey Key = "audit_logger"

	// ActorKey contains the rbac.Actor resolved for the request
	// Set by: rbac middleware after resolving the user
	// Type: rbac.Actor
	ActorKey Key = "rbac_actor"
)

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithUserID adds the authenticated user ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetUserID retrieves user ID from context
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		return userID
	}
	return ""
}
