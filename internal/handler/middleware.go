package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/duyanhad/shop-api/internal/domain/auth"
)

// identityKey is the context key for the authenticated identity.
type identityKey struct{}

// identityFrom extracts the authenticated identity from the context.
func identityFrom(ctx context.Context) (auth.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(auth.Identity)
	return id, ok
}

// requireAuth resolves the bearer token into an Identity and stores it in the
// request context. Requests without a valid token get 401.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeErrorMessage(r.Context(), w, http.StatusUnauthorized, "authentication required")
			return
		}

		id, err := h.auth.Authenticate(r.Context(), token)
		if err != nil {
			writeError(r.Context(), w, err)
			return
		}

		ctx := context.WithValue(r.Context(), identityKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAdmin rejects non-admin identities with 403. It must run after
// requireAuth.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := identityFrom(r.Context())
		if !ok {
			writeErrorMessage(r.Context(), w, http.StatusUnauthorized, "authentication required")
			return
		}
		if !id.IsAdmin() {
			writeErrorMessage(r.Context(), w, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}
