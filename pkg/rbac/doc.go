// Package rbac provides role-based access control for the store back-office.
//
// # Overview
//
// Every back-office page or feature is a Permission identified by a stable slug
// ("orders", "coupons", "product-seo"). A Role bundles grants, and each grant pairs
// one permission with a set of actions. Every admin user holds at most one role.
//
//	view    - see the page
//	create  - add records
//	update  - edit records
//	delete  - remove records
//	manage  - everything above; never combined with other actions
//
// # Components
//
//	PermissionRegistry  - CRUD and activation over the permission catalog
//	RoleRegistry        - CRUD over roles and their grants
//	Resolver            - answers Can / CanView / CanCreate / CanUpdate / CanDelete
//	SidebarOrderStore   - the single global navigation order
//	Directory           - maps user ids to admin records and resolves an Actor
//	Guard               - HTTP middleware re-checking actions server-side
//
// # Resolving a decision
//
// The resolver walks the steps in order and the first decisive one wins:
//
//  1. inactive actor denies
//  2. missing or inactive role denies
//  3. unknown or inactive permission denies
//  4. no grant for the permission denies
//  5. manage allows
//  6. otherwise the action must be in the grant
//
// An action outside the enumeration returns a validation error. An unknown slug is
// simply a denial. Storage failures deny and return the error.
//
//	actor, err := directory.ResolveActor(ctx, userID)
//	if err != nil {
//		return err
//	}
//	ok, err := resolver.CanUpdate(ctx, actor, "orders")
//
// # Caching
//
// Role and permission snapshots are cached through a SnapshotCache keyed by a
// generation counter. Every mutation bumps the generation before returning, so a
// decision made after a write never sees the pre-write snapshot. MemoryCache serves a
// single process and RedisCache shares the generation across replicas.
//
// # System role
//
// Bootstrap installs the permission catalog and the super-admin system role holding
// manage on every catalog permission. System roles cannot be deleted, renamed or
// deactivated; their grants stay editable.
//
// # HTTP
//
//	mgr := rbac.NewManager(db, rbac.DefaultConfig())
//	if _, err := mgr.Initialize(ctx); err != nil {
//		return err
//	}
//	mgr.RegisterRoutes(router)
//
// Routes live under /rbac and each one is guarded by RequireAction on the matching
// administration permission. Denials answer 403 "not permitted" without detail.
package rbac
