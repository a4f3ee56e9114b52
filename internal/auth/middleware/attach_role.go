package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/mind-engage/mindengage-exams/internal/exam"
	"github.com/mind-engage/mindengage-exams/internal/rbac"
)

// UserLookup is the slice of exam.Store the auth layer reads.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (exam.User, error)
	FindUserByEmail(ctx context.Context, email string) (exam.User, error)
}

// AttachRoleFromStore replaces the role claim with the one stored on the
// account, so role changes apply before tokens expire. Tokens whose subject no
// longer exists are rejected.
func AttachRoleFromStore(users UserLookup, lgr zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sub := SubjectFromContext(ctx)
			u, err := users.GetUser(ctx, sub)
			switch {
			case err == nil:
				next.ServeHTTP(w, r.WithContext(rbac.WithRole(ctx, string(u.Role))))
			case errors.Is(err, exam.ErrNotFound):
				writeError(w, http.StatusUnauthorized, "unknown user")
			default:
				lgr.Error().Err(err).Str("sub", sub).Msg("role lookup failed")
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		})
	}
}
