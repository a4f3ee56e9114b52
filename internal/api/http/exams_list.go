package http

import (
	"net/http"

	"github.com/rs/zerolog"

	authmw "github.com/mind-engage/mindengage-exams/internal/auth/middleware"
	"github.com/mind-engage/mindengage-exams/internal/exam"
)

// GET /exams
// Active exams only, newest first, without answer keys.
func ListExamsHandler(svc *exam.Service, lgr zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.ListActiveExams(r.Context())
		if err != nil {
			writeError(w, r, lgr, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// GET /exams/mine
// Every exam the caller created, inactive ones included.
func MyExamsHandler(svc *exam.Service, lgr zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.ListExamsByCreator(r.Context(), authmw.SubjectFromContext(r.Context()))
		if err != nil {
			writeError(w, r, lgr, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}
