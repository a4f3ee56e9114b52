package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	authmw "github.com/mind-engage/mindengage-exams/internal/auth/middleware"
	"github.com/mind-engage/mindengage-exams/internal/exam"
)

type optionRequest struct {
	Text      string `json:"text" validate:"required,max=500"`
	IsCorrect bool   `json:"is_correct"`
	Order     int    `json:"order"`
}

type questionRequest struct {
	Text    string          `json:"text" validate:"required,max=1000"`
	Type    string          `json:"type" validate:"required,oneof=MultipleChoice TrueFalse Text"`
	Points  int             `json:"points" validate:"gt=0"`
	Order   int             `json:"order"`
	Options []optionRequest `json:"options" validate:"dive"`
}

type createExamRequest struct {
	Title           string            `json:"title" validate:"required,max=200"`
	Description     string            `json:"description" validate:"max=1000"`
	DurationMinutes int               `json:"duration_minutes" validate:"gt=0"`
	StartTime       time.Time         `json:"start_time" validate:"required"`
	EndTime         time.Time         `json:"end_time" validate:"required,gtfield=StartTime"`
	Questions       []questionRequest `json:"questions" validate:"dive"`
}

func (req createExamRequest) toNewExam() exam.NewExam {
	in := exam.NewExam{
		Title:           req.Title,
		Description:     req.Description,
		DurationMinutes: req.DurationMinutes,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
	}
	for _, q := range req.Questions {
		nq := exam.NewQuestion{Text: q.Text, Kind: exam.QuestionKind(q.Type), Points: q.Points, Order: q.Order}
		for _, o := range q.Options {
			nq.Options = append(nq.Options, exam.NewOption{Text: o.Text, IsCorrect: o.IsCorrect, Order: o.Order})
		}
		in.Questions = append(in.Questions, nq)
	}
	return in
}

// POST /exams
func CreateExamHandler(svc *exam.Service, lgr zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createExamRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, lgr, err)
			return
		}
		e, err := svc.CreateExam(r.Context(), authmw.SubjectFromContext(r.Context()), req.toNewExam())
		if err != nil {
			writeError(w, r, lgr, err)
			return
		}
		w.Header().Set("Location", "/exams/"+e.ID)
		writeJSON(w, http.StatusCreated, e)
	}
}

// GET /exams/{examID}
// The creator sees answer keys. Everyone else gets the keyless view of an
// active exam, regardless of its window.
func GetExamHandler(svc *exam.Service, lgr zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "examID")
		e, err := svc.GetExam(r.Context(), id)
		if err != nil {
			writeError(w, r, lgr, err)
			return
		}
		if e.CreatedByUserID != authmw.SubjectFromContext(r.Context()) {
			if !e.IsActive {
				writeError(w, r, lgr, &exam.Rejection{Kind: exam.ErrNotFound, Message: "exam " + id})
				return
			}
			e = exam.StripAnswerKeys(e)
		}
		writeJSON(w, http.StatusOK, e)
	}
}

// GET /exams/{examID}/student
func GetStudentExamHandler(svc *exam.Service, lgr zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := svc.GetExamForStudent(r.Context(), chi.URLParam(r, "examID"))
		if err != nil {
			writeError(w, r, lgr, err)
			return
		}
		writeJSON(w, http.StatusOK, e)
	}
}

// DELETE /exams/{examID}
func DeleteExamHandler(svc *exam.Service, lgr zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.DeleteExam(r.Context(), chi.URLParam(r, "examID"), authmw.SubjectFromContext(r.Context())); err != nil {
			writeError(w, r, lgr, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
