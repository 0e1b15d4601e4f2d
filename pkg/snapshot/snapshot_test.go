package snapshot

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/platinummonkey/storeadmin/pkg/rbac"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	err     error
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeUploader) PutObject(ctx context.Context, key string, content io.Reader, contentType string) error {
	if f.err != nil {
		return f.err
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	f.types[key] = contentType
	return nil
}

type countingRecorder struct {
	successes int
	failures  int
}

func (c *countingRecorder) RecordExport(err error) {
	if err != nil {
		c.failures++
		return
	}
	c.successes++
}

func setupManager(t *testing.T) *rbac.Manager {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	m := rbac.NewManager(db, rbac.DefaultConfig())
	_, err = m.Initialize(context.Background())
	require.NoError(t, err)
	return m
}

var fixedNow = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

func TestExport(t *testing.T) {
	m := setupManager(t)
	ctx := context.Background()

	perms, err := m.Permissions().List(ctx)
	require.NoError(t, err)
	ids := make([]string, 0, len(perms))
	for i := len(perms) - 1; i >= 0; i-- {
		ids = append(ids, perms[i].ID)
	}
	_, err = m.Sidebar().Reorder(ctx, ids)
	require.NoError(t, err)

	uploader := newFakeUploader()
	recorder := &countingRecorder{}
	exporter := NewExporter(m.Permissions(), m.Roles(), m.Sidebar(), uploader, Options{
		KeyPrefix: "backups",
		Recorder:  recorder,
		Now:       func() time.Time { return fixedNow },
	})

	key, err := exporter.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, "backups/rbac-20260304T050607Z.json", key)
	assert.Equal(t, "application/json", uploader.types[key])
	assert.Equal(t, 1, recorder.successes)

	var snap Snapshot
	require.NoError(t, json.Unmarshal(uploader.objects[key], &snap))
	assert.Equal(t, FormatVersion, snap.Version)
	assert.True(t, fixedNow.Equal(snap.ExportedAt))
	assert.Len(t, snap.Permissions, len(rbac.DefaultCatalog().Permissions))
	require.Len(t, snap.Roles, 1)
	assert.Equal(t, rbac.SystemRoleSlug, snap.Roles[0].Slug)
	assert.True(t, snap.Roles[0].Grants[0].Actions.Has(rbac.ActionManage))
	assert.Equal(t, ids, snap.SidebarOrder)
}

func TestExportWithoutStoredOrder(t *testing.T) {
	m := setupManager(t)
	exporter := NewExporter(m.Permissions(), m.Roles(), m.Sidebar(), nil, Options{})

	var buf bytes.Buffer
	require.NoError(t, exporter.Write(context.Background(), &buf))

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &raw))
	assert.Equal(t, []interface{}{}, raw["sidebar_order"])
}

func TestExportFailures(t *testing.T) {
	m := setupManager(t)
	recorder := &countingRecorder{}

	exporter := NewExporter(m.Permissions(), m.Roles(), m.Sidebar(), nil, Options{Recorder: recorder})
	_, err := exporter.Export(context.Background())
	assert.ErrorContains(t, err, "no uploader")

	uploader := newFakeUploader()
	uploader.err = errors.New("bucket gone")
	exporter = NewExporter(m.Permissions(), m.Roles(), m.Sidebar(), uploader, Options{Recorder: recorder})
	_, err = exporter.Export(context.Background())
	assert.ErrorContains(t, err, "bucket gone")

	assert.Equal(t, 2, recorder.failures)
	assert.Equal(t, 0, recorder.successes)
}

func TestKey(t *testing.T) {
	e := NewExporter(nil, nil, nil, nil, Options{})
	assert.Equal(t, "rbac-20260304T050607Z.json", e.Key(fixedNow))

	e = NewExporter(nil, nil, nil, nil, Options{KeyPrefix: "a/b/"})
	assert.Equal(t, "a/b/rbac-20260304T050607Z.json", e.Key(fixedNow))
}

func TestSchedule(t *testing.T) {
	m := setupManager(t)
	exporter := NewExporter(m.Permissions(), m.Roles(), m.Sidebar(), newFakeUploader(), Options{})
	c := cron.New()

	_, err := exporter.Schedule(context.Background(), c, "not a schedule")
	assert.ErrorContains(t, err, "invalid export schedule")

	id, err := exporter.Schedule(context.Background(), c, "@hourly")
	require.NoError(t, err)
	assert.NotZero(t, id)
	assert.Len(t, c.Entries(), 1)
}

func TestExportAsync(t *testing.T) {
	m := setupManager(t)
	uploader := newFakeUploader()
	exporter := NewExporter(m.Permissions(), m.Roles(), m.Sidebar(), uploader, Options{Timeout: time.Second})

	require.NoError(t, <-exporter.ExportAsync(context.Background()))
	assert.Len(t, uploader.objects, 1)

	uploader.err = errors.New("bucket gone")
	assert.ErrorContains(t, <-exporter.ExportAsync(context.Background()), "bucket gone")
}
