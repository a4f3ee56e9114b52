package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/mind-engage/mindengage-exams/internal/exam"
)

const maxBodyBytes = 1 << 20

var validate = validator.New()

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps rejection kinds to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, exam.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, exam.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, exam.ErrOutsideWindow), errors.Is(err, exam.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, exam.ErrInvalidState):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError hides the message of infrastructure failures and logs them.
func writeError(w http.ResponseWriter, r *http.Request, lgr zerolog.Logger, err error) {
	status, msg := http.StatusInternalServerError, err.Error()
	if exam.IsRejection(err) {
		status = statusFor(err)
	}
	if status == http.StatusInternalServerError {
		lgr.Error().Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
		msg = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeJSON reads a bounded JSON body into dst and runs struct validation.
// Failures come back as exam.ErrInvalidInput rejections.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return &exam.Rejection{Kind: exam.ErrInvalidInput, Message: "bad json"}
	}
	if err := validate.Struct(dst); err != nil {
		return &exam.Rejection{Kind: exam.ErrInvalidInput, Message: describeValidation(err)}
	}
	return nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %s", fe.Namespace(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
