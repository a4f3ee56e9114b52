package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	authmw "github.com/mind-engage/mindengage-exams/internal/auth/middleware"
	"github.com/mind-engage/mindengage-exams/internal/exam"
)

// GET /attempts
// Always scoped to the caller; there is no way to list someone else's attempts.
func ListMyAttemptsHandler(svc *exam.Service, lgr zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.ListByUser(r.Context(), authmw.SubjectFromContext(r.Context()))
		if err != nil {
			writeError(w, r, lgr, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// GET /exams/{examID}/results
// Owners get every attempt on the exam; other callers get an empty list.
func ExamResultsHandler(svc *exam.Service, lgr zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.ListResultsForExam(r.Context(), chi.URLParam(r, "examID"), authmw.SubjectFromContext(r.Context()))
		if err != nil {
			writeError(w, r, lgr, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}
