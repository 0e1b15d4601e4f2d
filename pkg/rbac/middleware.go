package rbac

import (
	"context"
	"net/http"

	"github.com/platinummonkey/storeadmin/pkg/audit"
	"github.com/platinummonkey/storeadmin/pkg/contextkeys"
	"github.com/platinummonkey/storeadmin/pkg/httputil"
	"github.com/platinummonkey/storeadmin/pkg/observability"
)

// forbiddenMessage is the only detail a caller ever sees on a denial
const forbiddenMessage = "not permitted"

// Guard provides middleware for server-side permission checks
type Guard struct {
	directory *Directory
	resolver  *Resolver
	audit     audit.Logger
	logger    *observability.Logger
}

// NewGuard creates permission middleware over a directory and resolver
func NewGuard(directory *Directory, resolver *Resolver, opts Options) *Guard {
	opts = opts.withDefaults()
	return &Guard{
		directory: directory,
		resolver:  resolver,
		audit:     opts.Audit,
		logger:    opts.Logger,
	}
}

// WithActor stores the resolved actor in the context
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, contextkeys.ActorKey, actor)
}

// ActorFromContext returns the actor resolved for the request, if any
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(contextkeys.ActorKey).(Actor)
	return actor, ok
}

// resolve maps the authenticated user id to an actor, writing the failure response itself
func (g *Guard) resolve(w http.ResponseWriter, r *http.Request) (Actor, bool) {
	if actor, ok := ActorFromContext(r.Context()); ok {
		return actor, true
	}

	userID := contextkeys.GetUserID(r.Context())
	if userID == "" {
		httputil.WriteUnauthorized(w, "authentication required")
		return Actor{}, false
	}

	actor, err := g.directory.ResolveActor(r.Context(), userID)
	switch {
	case err == nil:
		return actor, true
	case KindOf(err) == KindNotFound:
		g.denied(r, userID, "unknown admin user")
		httputil.WriteForbidden(w, forbiddenMessage)
	default:
		observability.FromContext(r.Context()).WithError(err).Error("failed to resolve actor")
		httputil.WriteInternalError(w)
	}
	return Actor{}, false
}

func (g *Guard) denied(r *http.Request, resourceID, reason string) {
	if err := audit.LogDenied(r.Context(), g.audit, resourceID, reason); err != nil {
		g.logger.WithError(err).Warn("failed to record denied access")
	}
}

// RequireActor resolves the actor for the request without checking any permission
func (g *Guard) RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := g.resolve(w, r)
		if !ok {
			return
		}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

// RequireAction creates middleware that requires the action on the permission slug
func (g *Guard) RequireAction(slug string, action Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := g.resolve(w, r)
			if !ok {
				return
			}

			decision, err := g.resolver.Check(r.Context(), actor, slug, action)
			if err != nil {
				observability.FromContext(r.Context()).WithError(err).Error("permission check failed")
				httputil.WriteInternalError(w)
				return
			}
			if !decision.Allowed {
				g.denied(r, slug, string(action)+": "+decision.Reason)
				httputil.WriteForbidden(w, forbiddenMessage)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}
