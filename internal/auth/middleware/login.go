package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/mindengage-exams/internal/exam"
	"github.com/mind-engage/mindengage-exams/internal/rbac"
)

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        exam.User `json:"user"`
	Permissions []string  `json:"permissions"`
}

var validate = validator.New()

// POST /auth/login  { "email": "...", "password": "..." }
func LoginHandler(a *AuthService, users UserLookup) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad json")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "email and password are required")
			return
		}
		u, err := users.FindUserByEmail(r.Context(), req.Email)
		if err != nil && !errors.Is(err, exam.ErrNotFound) {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if err != nil || u.PasswordHash == "" ||
			bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		tok, exp, err := a.IssueJWT(u.ID, string(u.Role), u.DisplayName())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "issue token")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(loginResponse{
			AccessToken: tok,
			ExpiresAt:   exp.UTC(),
			User:        u,
			Permissions: rbac.Default().Permissions(string(u.Role)),
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
