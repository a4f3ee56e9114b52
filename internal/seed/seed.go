package seed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/mindengage-exams/internal/exam"
)

// DevUsers are the two accounts an offline install starts with.
var DevUsers = []exam.User{
	{FirstName: "Admin", LastName: "User", Email: "admin@examsystem.com", Role: exam.RoleTeacher},
	{FirstName: "John", LastName: "Student", Email: "john.student@examsystem.com", Role: exam.RoleStudent},
}

// UserID derives a stable id from the email so reseeding is idempotent.
func UserID(email string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("mailto:"+email)).String()
}

// Users creates any of DevUsers that do not exist yet, all sharing password.
// Existing accounts are left untouched.
func Users(ctx context.Context, st exam.Store, password string, lgr zerolog.Logger) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash dev password: %w", err)
	}
	var finalErr error
	for _, u := range DevUsers {
		_, err := st.FindUserByEmail(ctx, u.Email)
		if err == nil {
			continue
		}
		if !errors.Is(err, exam.ErrNotFound) {
			finalErr = errors.Join(finalErr, err)
			continue
		}
		u.ID = UserID(u.Email)
		u.PasswordHash = string(hash)
		u.CreatedAt = time.Now().UTC()
		if err := st.PutUser(ctx, u); err != nil {
			lgr.Error().Err(err).Str("email", u.Email).Msg("seed user failed")
			finalErr = errors.Join(finalErr, err)
			continue
		}
		lgr.Info().Str("email", u.Email).Str("role", string(u.Role)).Msg("seeded dev user")
	}
	return finalErr
}
