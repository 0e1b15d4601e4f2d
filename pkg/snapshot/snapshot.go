package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/platinummonkey/storeadmin/pkg/async"
	"github.com/platinummonkey/storeadmin/pkg/observability"
	"github.com/platinummonkey/storeadmin/pkg/rbac"
	"github.com/robfig/cron/v3"
)

// FormatVersion is bumped when the document layout changes
const FormatVersion = 1

// DefaultExportTimeout bounds one scheduled export
const DefaultExportTimeout = 2 * time.Minute

// Snapshot is the exported document
type Snapshot struct {
	Version      int               `json:"version"`
	ExportedAt   time.Time         `json:"exported_at"`
	Permissions  []rbac.Permission `json:"permissions"`
	Roles        []rbac.Role       `json:"roles"`
	SidebarOrder []string          `json:"sidebar_order"`
}

// Uploader stores an exported document under a key
type Uploader interface {
	PutObject(ctx context.Context, key string, content io.Reader, contentType string) error
}

// Recorder counts export attempts
type Recorder interface {
	RecordExport(err error)
}

type nopRecorder struct{}

func (nopRecorder) RecordExport(error) {}

// Options configures an Exporter
type Options struct {
	KeyPrefix string
	Timeout   time.Duration
	Recorder  Recorder
	Logger    *observability.Logger
	Now       func() time.Time
}

// Exporter builds snapshots from the registries and uploads them
type Exporter struct {
	permissions *rbac.PermissionRegistry
	roles       *rbac.RoleRegistry
	sidebar     *rbac.SidebarOrderStore
	uploader    Uploader
	opts        Options
}

// NewExporter creates an exporter. uploader may be nil when only Write is used.
func NewExporter(permissions *rbac.PermissionRegistry, roles *rbac.RoleRegistry, sidebar *rbac.SidebarOrderStore, uploader Uploader, opts Options) *Exporter {
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.Logger == nil {
		opts.Logger = observability.NopLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultExportTimeout
	}
	return &Exporter{
		permissions: permissions,
		roles:       roles,
		sidebar:     sidebar,
		uploader:    uploader,
		opts:        opts,
	}
}

// Build reads the current catalog state
func (e *Exporter) Build(ctx context.Context) (*Snapshot, error) {
	permissions, err := e.permissions.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	roles, err := e.roles.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	order, err := e.sidebar.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load sidebar order: %w", err)
	}

	ids := order.PermissionIDs
	if ids == nil {
		ids = []string{}
	}
	return &Snapshot{
		Version:      FormatVersion,
		ExportedAt:   e.opts.Now().UTC(),
		Permissions:  permissions,
		Roles:        roles,
		SidebarOrder: ids,
	}, nil
}

// Write encodes a fresh snapshot as indented JSON
func (e *Exporter) Write(ctx context.Context, w io.Writer) error {
	snap, err := e.Build(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

// Key returns the object key for a snapshot taken at t
func (e *Exporter) Key(t time.Time) string {
	name := fmt.Sprintf("rbac-%s.json", t.UTC().Format("20060102T150405Z"))
	if e.opts.KeyPrefix == "" {
		return name
	}
	return path.Join(e.opts.KeyPrefix, name)
}

// Export builds a snapshot and uploads it, returning the object key
func (e *Exporter) Export(ctx context.Context) (key string, err error) {
	defer func() { e.opts.Recorder.RecordExport(err) }()

	if e.uploader == nil {
		return "", fmt.Errorf("no uploader configured")
	}

	snap, err := e.Build(ctx)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode snapshot: %w", err)
	}

	key = e.Key(snap.ExportedAt)
	if err := e.uploader.PutObject(ctx, key, bytes.NewReader(data), "application/json"); err != nil {
		return "", fmt.Errorf("failed to upload snapshot: %w", err)
	}

	e.opts.Logger.WithFields(map[string]interface{}{
		"key":         key,
		"permissions": len(snap.Permissions),
		"roles":       len(snap.Roles),
	}).Info("rbac snapshot exported")
	return key, nil
}

func (e *Exporter) task(ctx context.Context) error {
	_, err := e.Export(ctx)
	return err
}

// ExportAsync runs one export in the background under the export timeout
func (e *Exporter) ExportAsync(ctx context.Context) <-chan error {
	return async.SafeGo(ctx, e.opts.Logger, e.opts.Timeout, "rbac snapshot export", e.task)
}

// Schedule runs Export on the cron spec. Failures and panics are logged and the
// job keeps running.
func (e *Exporter) Schedule(ctx context.Context, c *cron.Cron, spec string) (cron.EntryID, error) {
	id, err := c.AddFunc(spec, func() {
		if err := async.Run(ctx, e.opts.Timeout, "rbac snapshot export", e.task); err != nil {
			e.opts.Logger.WithError(err).Error("scheduled rbac snapshot export failed")
		}
	})
	if err != nil {
		return 0, fmt.Errorf("invalid export schedule %q: %w", spec, err)
	}
	return id, nil
}
