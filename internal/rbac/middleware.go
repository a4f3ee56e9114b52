package rbac

import (
	"encoding/json"
	"net/http"
)

var defaultChecker = NewChecker(nil)

// Default is the checker behind Require.
func Default() *Checker { return defaultChecker }

// Require enforces a single permission.
func Require(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := RoleFromContext(r.Context())
			if role == "" || !defaultChecker.Has(role, perm) {
				forbidden(w, perm)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func forbidden(w http.ResponseWriter, perm string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": "forbidden", "required": []string{perm}})
}
