package rbac

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Decision reasons
const (
	ReasonActorInactive      = "actor_inactive"
	ReasonRoleMissing        = "role_missing"
	ReasonRoleInactive       = "role_inactive"
	ReasonPermissionUnknown  = "permission_unknown"
	ReasonPermissionInactive = "permission_inactive"
	ReasonNoGrant            = "no_grant"
	ReasonManage             = "manage"
	ReasonGranted            = "granted"
	ReasonActionNotGranted   = "action_not_granted"
	ReasonError              = "error"
)

// Decision is the outcome of an authorization check
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

func deny(reason string) Decision  { return Decision{Allowed: false, Reason: reason} }
func allow(reason string) Decision { return Decision{Allowed: true, Reason: reason} }

// Evaluate applies the resolution rules to already loaded snapshots. The first
// decisive step wins:
//
//  1. inactive actor denies
//  2. missing or inactive role denies
//  3. missing or inactive permission denies
//  4. no grant for the permission denies
//  5. a grant holding manage allows
//  6. otherwise the action must be in the grant
func Evaluate(actor Actor, role *Role, permission *Permission, action Action) Decision {
	if !actor.isActive {
		return deny(ReasonActorInactive)
	}
	if role == nil || role.ID != actor.roleID {
		return deny(ReasonRoleMissing)
	}
	if !role.IsActive {
		return deny(ReasonRoleInactive)
	}
	if permission == nil {
		return deny(ReasonPermissionUnknown)
	}
	if !permission.IsActive {
		return deny(ReasonPermissionInactive)
	}
	grant, ok := role.Grant(permission.ID)
	if !ok {
		return deny(ReasonNoGrant)
	}
	if grant.Actions.Has(ActionManage) {
		return allow(ReasonManage)
	}
	if grant.Actions.Has(action) {
		return allow(ReasonGranted)
	}
	return deny(ReasonActionNotGranted)
}

// Resolver answers authorization questions against current role and permission state.
// It holds no per-actor decision state; snapshots are read through the snapshot cache.
type Resolver struct {
	store  *Store
	opts   Options
	tracer trace.Tracer
}

// NewResolver creates a resolver
func NewResolver(store *Store, opts Options) *Resolver {
	return &Resolver{
		store:  store,
		opts:   opts.withDefaults(),
		tracer: otel.Tracer("github.com/platinummonkey/storeadmin/pkg/rbac"),
	}
}

// Check resolves a decision with its reason. An action outside the enumeration is a
// ValidationError; an unknown permission slug is a denial, not an error. Storage
// failures deny and return the error.
func (r *Resolver) Check(ctx context.Context, actor Actor, slug string, action Action) (Decision, error) {
	if !action.Valid() {
		return deny(ReasonError), Validationf("invalid action %q", action)
	}

	ctx, span := r.tracer.Start(ctx, "rbac.Check", trace.WithAttributes(
		attribute.String("rbac.permission", slug),
		attribute.String("rbac.action", string(action)),
	))
	defer span.End()

	start := time.Now()
	decision, err := r.check(ctx, actor, slug, action)
	r.opts.Recorder.RecordDecision(string(action), decision.Allowed, decision.Reason, time.Since(start))

	span.SetAttributes(
		attribute.Bool("rbac.allowed", decision.Allowed),
		attribute.String("rbac.reason", decision.Reason),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return decision, err
}

func (r *Resolver) check(ctx context.Context, actor Actor, slug string, action Action) (Decision, error) {
	// Steps that need no storage short-circuit before any read.
	if !actor.isActive {
		return deny(ReasonActorInactive), nil
	}
	if actor.roleID == "" {
		return deny(ReasonRoleMissing), nil
	}

	gen, genErr := r.opts.Cache.Generation(ctx)
	if genErr != nil {
		r.opts.Logger.WithError(genErr).Warn("rbac cache unavailable, reading storage directly")
	}
	useCache := genErr == nil

	role, err := r.role(ctx, useCache, gen, actor.roleID)
	if err != nil {
		return deny(ReasonError), err
	}
	if role == nil || !role.IsActive {
		return Evaluate(actor, role, nil, action), nil
	}

	permission, err := r.permission(ctx, useCache, gen, slug)
	if err != nil {
		return deny(ReasonError), err
	}
	return Evaluate(actor, role, permission, action), nil
}

func (r *Resolver) role(ctx context.Context, useCache bool, gen uint64, id string) (*Role, error) {
	if useCache {
		if role, ok := r.opts.Cache.GetRole(ctx, gen, id); ok {
			r.opts.Recorder.RecordCacheLookup("role", true)
			return role, nil
		}
		r.opts.Recorder.RecordCacheLookup("role", false)
	}
	role, err := r.store.GetRole(ctx, id)
	if KindOf(err) == KindNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if useCache {
		r.opts.Cache.SetRole(ctx, gen, role)
	}
	return role, nil
}

func (r *Resolver) permission(ctx context.Context, useCache bool, gen uint64, slug string) (*Permission, error) {
	if useCache {
		if p, ok := r.opts.Cache.GetPermission(ctx, gen, slug); ok {
			r.opts.Recorder.RecordCacheLookup("permission", true)
			return p, nil
		}
		r.opts.Recorder.RecordCacheLookup("permission", false)
	}
	p, err := r.store.GetPermissionBySlug(ctx, slug)
	if KindOf(err) == KindNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if useCache {
		r.opts.Cache.SetPermission(ctx, gen, p)
	}
	return p, nil
}

// Can reports whether the actor may perform the action on the permission slug
func (r *Resolver) Can(ctx context.Context, actor Actor, slug string, action Action) (bool, error) {
	decision, err := r.Check(ctx, actor, slug, action)
	if err != nil {
		return false, err
	}
	return decision.Allowed, nil
}

// CanView reports whether the actor may view the page
func (r *Resolver) CanView(ctx context.Context, actor Actor, slug string) (bool, error) {
	return r.Can(ctx, actor, slug, ActionView)
}

// CanCreate reports whether the actor may create on the page
func (r *Resolver) CanCreate(ctx context.Context, actor Actor, slug string) (bool, error) {
	return r.Can(ctx, actor, slug, ActionCreate)
}

// CanUpdate reports whether the actor may update on the page
func (r *Resolver) CanUpdate(ctx context.Context, actor Actor, slug string) (bool, error) {
	return r.Can(ctx, actor, slug, ActionUpdate)
}

// CanDelete reports whether the actor may delete on the page
func (r *Resolver) CanDelete(ctx context.Context, actor Actor, slug string) (bool, error) {
	return r.Can(ctx, actor, slug, ActionDelete)
}
