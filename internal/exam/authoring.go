package exam

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Column limits shared by validation and the SQL schema.
const (
	MaxTitleLen        = 200
	MaxDescriptionLen  = 1000
	MaxQuestionTextLen = 1000
	MaxOptionTextLen   = 500
	MaxTextAnswerLen   = 1000
)

type NewOption struct {
	Text      string
	IsCorrect bool
	Order     int
}

type NewQuestion struct {
	Text    string
	Kind    QuestionKind
	Points  int
	Order   int
	Options []NewOption
}

type NewExam struct {
	Title           string
	Description     string
	DurationMinutes int
	StartTime       time.Time
	EndTime         time.Time
	Questions       []NewQuestion
}

// CreateExam stores a new active exam owned by ownerID, who must be a teacher.
func (s *Service) CreateExam(ctx context.Context, ownerID string, in NewExam) (Exam, error) {
	owner, err := s.store.GetUser(ctx, ownerID)
	if errors.Is(err, ErrNotFound) {
		return Exam{}, reject(ErrUnauthorized, "unknown user %s", ownerID)
	}
	if err != nil {
		return Exam{}, fmt.Errorf("load owner: %w", err)
	}
	if owner.Role != RoleTeacher {
		return Exam{}, reject(ErrUnauthorized, "only teachers can create exams")
	}
	if err := validateNewExam(in); err != nil {
		return Exam{}, err
	}

	now := s.now()
	e := Exam{
		ID:              s.newID(),
		Title:           strings.TrimSpace(in.Title),
		Description:     strings.TrimSpace(in.Description),
		DurationMinutes: in.DurationMinutes,
		StartTime:       in.StartTime.UTC(),
		EndTime:         in.EndTime.UTC(),
		IsActive:        true,
		CreatedByUserID: ownerID,
		CreatedAt:       now,
	}
	qs := append([]NewQuestion(nil), in.Questions...)
	sort.SliceStable(qs, func(i, j int) bool { return qs[i].Order < qs[j].Order })
	for _, nq := range qs {
		q := Question{
			ID:     s.newID(),
			ExamID: e.ID,
			Text:   strings.TrimSpace(nq.Text),
			Kind:   nq.Kind,
			Points: nq.Points,
			Order:  nq.Order,
		}
		opts := append([]NewOption(nil), nq.Options...)
		sort.SliceStable(opts, func(i, j int) bool { return opts[i].Order < opts[j].Order })
		for _, no := range opts {
			q.Options = append(q.Options, QuestionOption{
				ID:         s.newID(),
				QuestionID: q.ID,
				Text:       strings.TrimSpace(no.Text),
				IsCorrect:  no.IsCorrect,
				Order:      no.Order,
			})
		}
		e.Questions = append(e.Questions, q)
	}

	created, err := s.store.CreateExam(ctx, e)
	if err != nil {
		return Exam{}, fmt.Errorf("create exam: %w", err)
	}
	s.log.Info().Str("exam_id", created.ID).Str("owner_id", ownerID).Int("questions", len(created.Questions)).Msg("exam created")
	return created, nil
}

// GetExam returns the full exam, answer keys included.
func (s *Service) GetExam(ctx context.Context, examID string) (Exam, error) {
	e, err := s.store.GetExam(ctx, examID)
	if err != nil {
		return Exam{}, lookupErr(err, "exam %s", examID)
	}
	return e, nil
}

// GetExamForStudent returns an active exam inside its window with the
// correct-option flags removed.
func (s *Service) GetExamForStudent(ctx context.Context, examID string) (Exam, error) {
	e, err := s.store.GetExam(ctx, examID)
	if err != nil {
		return Exam{}, lookupErr(err, "exam %s", examID)
	}
	if !e.IsActive {
		return Exam{}, reject(ErrNotFound, "exam %s", examID)
	}
	if !e.InWindow(s.now()) {
		return Exam{}, reject(ErrOutsideWindow, "exam %s is not open", examID)
	}
	return StripAnswerKeys(e), nil
}

// ListActiveExams is the student-facing catalogue: active exams only, newest
// first, without answer keys.
func (s *Service) ListActiveExams(ctx context.Context) ([]Exam, error) {
	list, err := s.store.ListExams(ctx, ExamListOpts{ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}
	for i := range list {
		list[i] = StripAnswerKeys(list[i])
	}
	return list, nil
}

// ListExamsByCreator returns every exam ownerID created, inactive ones too.
func (s *Service) ListExamsByCreator(ctx context.Context, ownerID string) ([]Exam, error) {
	list, err := s.store.ListExams(ctx, ExamListOpts{CreatorID: ownerID})
	if err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}
	return list, nil
}

// DeleteExam deactivates the exam. The row and its questions stay so past
// attempts keep resolving.
func (s *Service) DeleteExam(ctx context.Context, examID, ownerID string) error {
	err := s.store.DeactivateExam(ctx, examID, ownerID, s.now())
	if err != nil {
		return lookupErr(err, "exam %s", examID)
	}
	s.log.Info().Str("exam_id", examID).Str("owner_id", ownerID).Msg("exam deactivated")
	return nil
}

// StripAnswerKeys clears IsCorrect on every option of a copy of e.
func StripAnswerKeys(e Exam) Exam {
	e = copyExam(e)
	for i := range e.Questions {
		for j := range e.Questions[i].Options {
			e.Questions[i].Options[j].IsCorrect = false
		}
	}
	return e
}

func validateNewExam(in NewExam) error {
	title := strings.TrimSpace(in.Title)
	switch {
	case title == "":
		return reject(ErrInvalidInput, "title is required")
	case len([]rune(title)) > MaxTitleLen:
		return reject(ErrInvalidInput, "title longer than %d characters", MaxTitleLen)
	case len([]rune(in.Description)) > MaxDescriptionLen:
		return reject(ErrInvalidInput, "description longer than %d characters", MaxDescriptionLen)
	case in.DurationMinutes <= 0:
		return reject(ErrInvalidInput, "duration must be positive")
	case !in.StartTime.Before(in.EndTime):
		return reject(ErrInvalidInput, "start time must be before end time")
	}
	for i, q := range in.Questions {
		if err := validateNewQuestion(q); err != nil {
			return reject(ErrInvalidInput, "question %d: %s", i+1, err)
		}
	}
	return nil
}

func validateNewQuestion(q NewQuestion) error {
	text := strings.TrimSpace(q.Text)
	switch {
	case text == "":
		return errors.New("text is required")
	case len([]rune(text)) > MaxQuestionTextLen:
		return fmt.Errorf("text longer than %d characters", MaxQuestionTextLen)
	case !q.Kind.Valid():
		return fmt.Errorf("unknown type %q", q.Kind)
	case q.Points <= 0:
		return errors.New("points must be positive")
	}
	if q.Kind == KindText {
		if len(q.Options) > 0 {
			return errors.New("text questions take no options")
		}
		return nil
	}
	correct := 0
	for _, o := range q.Options {
		t := strings.TrimSpace(o.Text)
		if t == "" {
			return errors.New("option text is required")
		}
		if len([]rune(t)) > MaxOptionTextLen {
			return fmt.Errorf("option text longer than %d characters", MaxOptionTextLen)
		}
		if o.IsCorrect {
			correct++
		}
	}
	if correct == 0 {
		return errors.New("at least one option must be marked correct")
	}
	return nil
}
