package rbac

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/odyssey-erp/invoicing/internal/platform/httpx"
	"github.com/odyssey-erp/invoicing/internal/shared"
)

// Headers injected by the gateway.
const (
	HeaderPrivileges = "X-Privileges"
	HeaderActor      = "X-Actor"
)

// Middleware wires privilege checks for HTTP handlers.
type Middleware struct {
	Logger zerolog.Logger
	// Header overrides HeaderPrivileges when set.
	Header string
}

// Load parses the privilege header and stores the set in the request context.
func (m Middleware) Load(next http.Handler) http.Handler {
	header := m.Header
	if header == "" {
		header = HeaderPrivileges
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(header)
		privs := shared.ParsePrivileges(raw)
		if len(privs) == 0 {
			m.Logger.Debug().Str("path", r.URL.Path).Msg("rbac no privileges")
		}
		ctx := shared.ContextWithPrivileges(r.Context(), privs)
		ctx = shared.ContextWithActor(ctx, r.Header.Get(HeaderActor))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAny ensures the caller has at least one of the required privileges.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hasAnyPermission(shared.PrivilegesFromContext(r.Context()), normalized) {
				next.ServeHTTP(w, r)
				return
			}
			m.Logger.Warn().Strs("required", normalized).Msg("rbac require any denied")
			httpx.RespondError(w, httpx.ErrForbidden)
		})
	}
}

// RequireAll ensures the caller has all required privileges.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hasAllPermissions(shared.PrivilegesFromContext(r.Context()), normalized) {
				next.ServeHTTP(w, r)
				return
			}
			m.Logger.Warn().Strs("required", normalized).Msg("rbac require all denied")
			httpx.RespondError(w, httpx.ErrForbidden)
		})
	}
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	normalized := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		if _, ok := unique[p]; ok {
			continue
		}
		unique[p] = struct{}{}
		normalized = append(normalized, p)
	}
	return normalized
}

func hasAnyPermission(granted shared.PrivilegeSet, required []string) bool {
	if len(required) == 0 {
		return true
	}
	for _, r := range required {
		if granted.Has(r) {
			return true
		}
	}
	return false
}

func hasAllPermissions(granted shared.PrivilegeSet, required []string) bool {
	for _, r := range required {
		if !granted.Has(r) {
			return false
		}
	}
	return true
}
