package middleware

import (
	"net/http"
	"strings"

	"github.com/platinummonkey/storeadmin/pkg/contextkeys"
)

// DefaultIdentityHeader is the header the session provider sets
const DefaultIdentityHeader = "X-Admin-User-ID"

// Identity copies the authenticated user id from a trusted header into the context.
// Requests without the header pass through anonymously.
func Identity(header string) func(http.Handler) http.Handler {
	if header == "" {
		header = DefaultIdentityHeader
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID := strings.TrimSpace(r.Header.Get(header)); userID != "" {
				r = r.WithContext(contextkeys.WithUserID(r.Context(), userID))
			}
			next.ServeHTTP(w, r)
		})
	}
}
