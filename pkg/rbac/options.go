package rbac

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/storeadmin/pkg/audit"
	"github.com/platinummonkey/storeadmin/pkg/observability"
)

// Recorder receives operational signals. *observability.Metrics implements it.
type Recorder interface {
	RecordDecision(action string, allowed bool, reason string, d time.Duration)
	RecordCacheLookup(kind string, hit bool)
	RecordMutation(resource, operation string)
}

type nopRecorder struct{}

func (nopRecorder) RecordDecision(string, bool, string, time.Duration) {}
func (nopRecorder) RecordCacheLookup(string, bool)                     {}
func (nopRecorder) RecordMutation(string, string)                      {}

// Options carries the collaborators shared by the registries, the resolver and the directory
type Options struct {
	Cache    SnapshotCache
	Audit    audit.Logger
	Logger   *observability.Logger
	Recorder Recorder
	// Clock returns the current time; tests pin it
	Clock func() time.Time
	// NewID generates ids for new permissions and roles
	NewID func() string
}

func (o Options) withDefaults() Options {
	if o.Cache == nil {
		o.Cache = NoCache()
	}
	if o.Audit == nil {
		o.Audit = audit.NoOpLogger()
	}
	if o.Logger == nil {
		o.Logger = observability.NopLogger()
	}
	if o.Recorder == nil {
		o.Recorder = nopRecorder{}
	}
	if o.Clock == nil {
		o.Clock = func() time.Time { return time.Now().UTC() }
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	return o
}

// base holds what every writer needs after a commit
type base struct {
	store *Store
	opts  Options
}

func newBase(store *Store, opts Options) base {
	return base{store: store, opts: opts.withDefaults()}
}

func (b *base) now() time.Time {
	return b.opts.Clock()
}

// committed runs the post-commit steps of a mutation. Cache invalidation is
// synchronous: the caller only sees success once no stale snapshot can be served.
func (b *base) committed(ctx context.Context, resource, operation string, event *audit.Event) error {
	if err := b.opts.Cache.Invalidate(ctx); err != nil {
		b.opts.Logger.WithError(err).WithField("resource", resource).Error("rbac cache invalidation failed")
		return fmt.Errorf("change saved but cache invalidation failed: %w", err)
	}
	b.opts.Recorder.RecordMutation(resource, operation)
	if event != nil {
		if err := b.opts.Audit.Log(ctx, event); err != nil {
			b.opts.Logger.WithError(err).Warn("failed to record audit event")
		}
	}
	return nil
}
