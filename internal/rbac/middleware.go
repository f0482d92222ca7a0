package rbac

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/rashid2003/jira-payroll-automation/internal/platform/httpx"
	"github.com/rashid2003/jira-payroll-automation/internal/shared"
)

// PermissionResolver returns the permission names granted to a user.
type PermissionResolver interface {
	EffectivePermissions(ctx context.Context, userID int64) ([]string, error)
}

// Middleware guards payroll routes with the caller's profile permissions.
type Middleware struct {
	Service PermissionResolver
	Logger  *slog.Logger
}

// RequireAny admits callers holding at least one of perms.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	return m.guard("any", newPermissionSet(perms), permissionSet.containsAny)
}

// RequireAll admits callers holding every one of perms.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	return m.guard("all", newPermissionSet(perms), permissionSet.containsAll)
}

func (m Middleware) guard(mode string, required permissionSet, admit func(granted, required permissionSet) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(required) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			userID, ok := m.sessionUser(r)
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
				return
			}
			granted, err := m.Service.EffectivePermissions(r.Context(), userID)
			if err != nil {
				m.log().Error("rbac resolve permissions",
					slog.String("mode", mode),
					slog.Int64("user_id", userID),
					slog.Any("error", err))
				httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
				return
			}
			if !admit(newPermissionSet(granted), required) {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "missing permission")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) sessionUser(r *http.Request) (int64, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return 0, false
	}
	raw := strings.TrimSpace(sess.User())
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		m.log().Warn("rbac session user is not numeric", slog.String("value", raw))
		return 0, false
	}
	return id, true
}

func (m Middleware) log() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

// permissionSet holds lower-cased permission names.
type permissionSet map[string]struct{}

func newPermissionSet(perms []string) permissionSet {
	set := make(permissionSet, len(perms))
	for _, p := range perms {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			set[p] = struct{}{}
		}
	}
	return set
}

func (s permissionSet) containsAny(required permissionSet) bool {
	for p := range required {
		if _, ok := s[p]; ok {
			return true
		}
	}
	return false
}

func (s permissionSet) containsAll(required permissionSet) bool {
	for p := range required {
		if _, ok := s[p]; !ok {
			return false
		}
	}
	return true
}
