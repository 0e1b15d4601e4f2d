package audit

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/platinummonkey/storeadmin/pkg/contextkeys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromContext(t *testing.T) {
	ctx := context.Background()
	assert.NotNil(t, FromContext(ctx))
	assert.NoError(t, FromContext(ctx).Log(ctx, &Event{}))

	mem := NewMemoryLogger()
	ctx = WithLogger(ctx, mem)
	assert.Same(t, mem, FromContext(ctx))
}

func TestPrepare(t *testing.T) {
	ctx := contextkeys.WithUserID(context.Background(), "user-1")
	ctx = contextkeys.WithRequestID(ctx, "req-1")

	event := Prepare(ctx, &Event{EventType: EventTypeRoleCreate})
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.Timestamp.IsZero())
	assert.Equal(t, EventStatusSuccess, event.Status)
	assert.Equal(t, "user-1", event.UserID)
	assert.Equal(t, "req-1", event.RequestID)

	explicit := Prepare(ctx, &Event{ID: "fixed", UserID: "other", Status: EventStatusDenied})
	assert.Equal(t, "fixed", explicit.ID)
	assert.Equal(t, "other", explicit.UserID)
	assert.Equal(t, EventStatusDenied, explicit.Status)
}

func TestLogrusLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogrusLogger(&buf)

	err := logger.Log(context.Background(), &Event{
		EventType:    EventTypePermissionCreate,
		ResourceType: ResourceTypePermission,
		ResourceID:   "perm-1",
		Message:      "permission created",
		Metadata:     map[string]interface{}{"slug": "orders"},
	})
	require.NoError(t, err)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "rbac.permission_create", line["event_type"])
	assert.Equal(t, "permission", line["resource_type"])
	assert.Equal(t, "perm-1", line["resource_id"])
	assert.Equal(t, "orders", line["meta_slug"])
	assert.Equal(t, "permission created", line["msg"])
	assert.Equal(t, "info", line["level"])
	assert.NoError(t, logger.Close())
}

func TestLogrusLoggerDeniedIsWarning(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogrusLogger(&buf)

	require.NoError(t, LogDenied(context.Background(), logger, "orders", "no_grant"))

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "warning", line["level"])
	assert.Equal(t, "denied", line["status"])
	assert.Equal(t, "authz.access_denied", line["event_type"])
}

type failingLogger struct{ closed bool }

func (f *failingLogger) Log(ctx context.Context, event *Event) error { return errors.New("sink down") }
func (f *failingLogger) Close() error {
	f.closed = true
	return nil
}

func TestMultiLogger(t *testing.T) {
	a := NewMemoryLogger()
	b := NewMemoryLogger()
	failing := &failingLogger{}
	multi := NewMultiLogger(a, failing, b)

	err := multi.Log(context.Background(), &Event{EventType: EventTypeSidebarReorder})
	assert.Error(t, err)

	require.Len(t, a.Events(), 1)
	require.Len(t, b.Events(), 1)
	assert.Equal(t, a.Events()[0].ID, b.Events()[0].ID)

	assert.NoError(t, multi.Close())
	assert.True(t, failing.closed)

	assert.NoError(t, NewMultiLogger().Log(context.Background(), &Event{}))
}

func TestMemoryLoggerOfType(t *testing.T) {
	mem := NewMemoryLogger()
	ctx := context.Background()
	mem.Log(ctx, &Event{EventType: EventTypeRoleCreate})
	mem.Log(ctx, &Event{EventType: EventTypeRoleDelete})
	mem.Log(ctx, &Event{EventType: EventTypeRoleCreate})

	assert.Len(t, mem.OfType(EventTypeRoleCreate), 2)
	assert.Len(t, mem.OfType(EventTypeRoleDelete), 1)
	assert.Empty(t, mem.OfType(EventTypeUserUpsert))
}

func TestDBLogger(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()

	ctx := context.Background()
	logger, err := NewDBLogger(ctx, db)
	require.NoError(t, err)

	older := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, logger.Log(ctx, &Event{
		Timestamp:    older,
		EventType:    EventTypeRoleCreate,
		ResourceType: ResourceTypeRole,
		ResourceID:   "role-1",
	}))
	require.NoError(t, logger.Log(ctx, &Event{
		EventType:    EventTypeRoleUpdate,
		ResourceType: ResourceTypeRole,
		ResourceID:   "role-1",
		Changes:      &ChangeDetails{Before: map[string]string{"name": "a"}, After: map[string]string{"name": "b"}},
	}))

	events, err := logger.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventTypeRoleUpdate, events[0].EventType)
	assert.NotNil(t, events[0].Changes)
	assert.Equal(t, EventTypeRoleCreate, events[1].EventType)
	assert.Nil(t, events[1].Changes)
}

func TestNewDBLoggerRequiresDB(t *testing.T) {
	_, err := NewDBLogger(context.Background(), nil)
	assert.Error(t, err)
}
