package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	authmw "github.com/mind-engage/mindengage-exams/internal/auth/middleware"
	"github.com/mind-engage/mindengage-exams/internal/exam"
)

type startAttemptRequest struct {
	ExamID string `json:"exam_id" validate:"required"`
}

type submitAnswerRequest struct {
	QuestionID       string  `json:"question_id" validate:"required"`
	TextAnswer       *string `json:"text_answer" validate:"omitempty,max=1000"`
	SelectedOptionID *string `json:"selected_option_id"`
	BooleanAnswer    *bool   `json:"boolean_answer"`
}

// POST /attempts {exam_id}
func StartAttemptHandler(svc *exam.Service, lgr zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req startAttemptRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, lgr, err)
			return
		}
		v, err := svc.StartAttempt(r.Context(), req.ExamID, authmw.SubjectFromContext(r.Context()))
		if err != nil {
			writeError(w, r, lgr, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// GET /attempts/{attemptID}
func GetAttemptHandler(svc *exam.Service, lgr zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := svc.GetAttempt(r.Context(), chi.URLParam(r, "attemptID"), authmw.SubjectFromContext(r.Context()))
		if err != nil {
			writeError(w, r, lgr, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// POST /attempts/{attemptID}/answers {question_id, text_answer?, selected_option_id?, boolean_answer?}
func SubmitAnswerHandler(svc *exam.Service, lgr zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req submitAnswerRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, lgr, err)
			return
		}
		v, err := svc.SubmitAnswer(r.Context(), chi.URLParam(r, "attemptID"), authmw.SubjectFromContext(r.Context()),
			req.QuestionID, exam.AnswerPayload{
				TextAnswer:       req.TextAnswer,
				SelectedOptionID: req.SelectedOptionID,
				BooleanAnswer:    req.BooleanAnswer,
			})
		if err != nil {
			writeError(w, r, lgr, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// POST /attempts/{attemptID}/complete
func CompleteAttemptHandler(svc *exam.Service, lgr zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := svc.CompleteAttempt(r.Context(), chi.URLParam(r, "attemptID"), authmw.SubjectFromContext(r.Context()))
		if err != nil {
			writeError(w, r, lgr, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}
