package audit

import (
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Permission registry events
	EventTypePermissionCreate     EventType = "rbac.permission_create"
	EventTypePermissionUpdate     EventType = "rbac.permission_update"
	EventTypePermissionActivate   EventType = "rbac.permission_activate"
	EventTypePermissionDeactivate EventType = "rbac.permission_deactivate"
	EventTypePermissionDelete     EventType = "rbac.permission_delete"

	// Role registry events
	EventTypeRoleCreate       EventType = "rbac.role_create"
	EventTypeRoleUpdate       EventType = "rbac.role_update"
	EventTypeRoleDelete       EventType = "rbac.role_delete"
	EventTypeRoleToggleActive EventType = "rbac.role_toggle_active"

	// Navigation
	EventTypeSidebarReorder EventType = "rbac.sidebar_reorder"

	// Directory events
	EventTypeUserUpsert     EventType = "rbac.user_upsert"
	EventTypeUserRoleAssign EventType = "rbac.user_role_assign"
	EventTypeUserActivation EventType = "rbac.user_activation"

	// Authorization events
	EventTypeAccessDenied EventType = "authz.access_denied"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// ResourceType represents the type of resource being changed or accessed
type ResourceType string

const (
	ResourceTypePermission ResourceType = "permission"
	ResourceTypeRole       ResourceType = "role"
	ResourceTypeSidebar    ResourceType = "sidebar"
	ResourceTypeAdminUser  ResourceType = "admin_user"
)

// Event represents a single audit log entry
type Event struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor information
	UserID string `json:"user_id,omitempty"`

	// Resource information
	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`

	// Request context
	RequestID string `json:"request_id,omitempty"`
	Method    string `json:"method,omitempty"`
	Path      string `json:"path,omitempty"`

	Message  string                 `json:"message,omitempty"`
	Changes  *ChangeDetails         `json:"changes,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ChangeDetails captures before/after values for mutations
type ChangeDetails struct {
	Before interface{} `json:"before,omitempty"`
	After  interface{} `json:"after,omitempty"`
}
