package http

import (
	"context"
	"net/http"
	"slices"
	"strings"
)

// Identity headers forwarded by the authenticating gateway.
const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
	RoleRider    Role = "rider"
	RoleSeller   Role = "seller"
)

// Principal is the authenticated caller.
type Principal struct {
	ID   string
	Role Role
}

type principalKey struct{}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the caller placed in ctx by the identity middleware.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

func principalFromHeaders(r *http.Request) (Principal, bool) {
	id := strings.TrimSpace(r.Header.Get(HeaderActorID))
	role := strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderActorRole)))
	if id == "" || role == "" {
		return Principal{}, false
	}
	return Principal{ID: id, Role: Role(role)}, true
}

// authorized wraps next so that it only runs for callers holding one of
// roles. Missing identity is 401, a wrong role is 403.
func authorized(next func(w http.ResponseWriter, r *http.Request, p Principal), roles ...Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := principalFromHeaders(r)
		if !ok {
			writeFailure(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		if !slices.Contains(roles, p.Role) {
			writeFailure(w, http.StatusForbidden, "Forbidden")
			return
		}
		next(w, r.WithContext(withPrincipal(r.Context(), p)), p)
	}
}
