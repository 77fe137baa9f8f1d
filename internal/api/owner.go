package api

import (
	"context"
	"net/http"
	"strings"
)

// OwnerHeader carries the caller's owner ID. Authentication happens in front
// of this service.
const OwnerHeader = "X-Owner-ID"

type ownerContextKey struct{}

// RequireOwner rejects requests without an owner header and stores the owner
// ID in the request context.
func RequireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := strings.TrimSpace(r.Header.Get(OwnerHeader))
		if owner == "" {
			respondError(w, http.StatusUnauthorized, "missing "+OwnerHeader+" header")
			return
		}
		ctx := context.WithValue(r.Context(), ownerContextKey{}, owner)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OwnerFromContext returns the owner ID stored by RequireOwner.
func OwnerFromContext(ctx context.Context) string {
	owner, _ := ctx.Value(ownerContextKey{}).(string)
	return owner
}

// ownerKey buckets rate limits per owner.
func ownerKey(r *http.Request) (string, error) {
	return OwnerFromContext(r.Context()), nil
}
