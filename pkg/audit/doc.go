// Package audit records who changed the back-office authorization model and when.
//
// # Overview
//
// Every mutation of permissions, roles, the sidebar order and admin users emits an
// Event with before/after values. Authorization denials on the HTTP surface emit
// authz.access_denied events.
//
// # Sinks
//
//	LogrusLogger  - JSON lines through logrus, one entry per event
//	DBLogger      - rows in the audit_events table of the primary database
//	MultiLogger   - fan-out to several sinks
//	MemoryLogger  - in-memory buffer for tests and tooling
//
// # Usage Example
//
//	logger := audit.NewLogrusLogger(os.Stdout)
//	logger.Log(ctx, &audit.Event{
//		EventType:    audit.EventTypeRoleUpdate,
//		Status:       audit.EventStatusSuccess,
//		ResourceType: audit.ResourceTypeRole,
//		ResourceID:   role.ID,
//		Changes:      &audit.ChangeDetails{Before: before, After: role},
//	})
package audit
