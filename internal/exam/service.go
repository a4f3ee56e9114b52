package exam

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mind-engage/mindengage-exams/internal/grading"
)

// Event types appended to the event log.
const (
	EventAttemptStarted   = "AttemptStarted"
	EventAttemptCompleted = "AttemptCompleted"
)

// EventSink receives lifecycle events. Implementations must be safe for
// concurrent use.
type EventSink interface {
	Record(ctx context.Context, typ, key string, payload any) error
}

// Service is the attempt lifecycle manager: start, answer, complete and the
// owner-scoped reads around them.
type Service struct {
	store  Store
	grader *grading.Grader
	events EventSink
	log    zerolog.Logger
	now    func() time.Time
	newID  func() string
}

type ServiceOption func(*Service)

func WithGrader(g *grading.Grader) ServiceOption { return func(s *Service) { s.grader = g } }
func WithEvents(e EventSink) ServiceOption { return func(s *Service) { s.events = e } }
func WithLogger(l zerolog.Logger) ServiceOption { return func(s *Service) { s.log = l } }
func WithClock(now func() time.Time) ServiceOption { return func(s *Service) { s.now = now } }
func WithIDs(newID func() string) ServiceOption { return func(s *Service) { s.newID = newID } }

func NewService(store Store, opts ...ServiceOption) *Service {
	s := &Service{
		store:  store,
		grader: grading.NewDefaultGrader(),
		log:    zerolog.Nop(),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// GradeAnswer grades a single answer on q. It is pure: it only looks at the
// data already loaded on the answer and question.
func GradeAnswer(g *grading.Grader, a Answer, q Question) grading.Result {
	return g.Grade(gradingQ(q), gradingResponse(a))
}

// StartAttempt opens an attempt on an active exam inside its window, or
// returns the caller's existing in-progress attempt unchanged.
func (s *Service) StartAttempt(ctx context.Context, examID, callerID string) (AttemptView, error) {
	e, err := s.store.GetExam(ctx, examID)
	if err != nil {
		return AttemptView{}, lookupErr(err, "exam %s", examID)
	}
	if !e.IsActive {
		return AttemptView{}, reject(ErrNotFound, "exam %s", examID)
	}
	now := s.now()
	if !e.InWindow(now) {
		return AttemptView{}, reject(ErrOutsideWindow, "exam %s is open from %s to %s",
			examID, e.StartTime.Format(time.RFC3339), e.EndTime.Format(time.RFC3339))
	}

	existing, err := s.store.FindInProgressAttempt(ctx, callerID, examID)
	switch {
	case err == nil:
		return NewAttemptView(existing), nil
	case !errors.Is(err, ErrNotFound):
		return AttemptView{}, fmt.Errorf("find in-progress attempt: %w", err)
	}

	total := e.TotalPoints()
	created, err := s.store.CreateAttempt(ctx, Attempt{
		ID:          s.newID(),
		ExamID:      examID,
		UserID:      callerID,
		Status:      StatusInProgress,
		StartedAt:   now,
		TotalPoints: &total,
	})
	if errors.Is(err, ErrAttemptExists) {
		// lost a race with a concurrent start; hand back the winner
		winner, ferr := s.store.FindInProgressAttempt(ctx, callerID, examID)
		if ferr != nil {
			return AttemptView{}, fmt.Errorf("reload concurrent attempt: %w", ferr)
		}
		return NewAttemptView(winner), nil
	}
	if err != nil {
		return AttemptView{}, fmt.Errorf("create attempt: %w", err)
	}

	s.record(ctx, EventAttemptStarted, created.ID, map[string]any{
		"exam_id": examID, "user_id": callerID, "total_points": total,
	})
	s.log.Info().Str("attempt_id", created.ID).Str("exam_id", examID).Str("user_id", callerID).Msg("attempt started")
	return NewAttemptView(created), nil
}

// SubmitAnswer records (or overwrites) the caller's answer to one question.
// Points are not computed until completion.
func (s *Service) SubmitAnswer(ctx context.Context, attemptID, callerID, questionID string, p AnswerPayload) (AttemptView, error) {
	a, err := s.ownedAttempt(ctx, attemptID, callerID)
	if err != nil {
		return AttemptView{}, err
	}
	if a.Status != StatusInProgress {
		return AttemptView{}, reject(ErrInvalidState, "attempt %s is %s", attemptID, a.Status)
	}
	e, err := s.store.GetExam(ctx, a.ExamID)
	if err != nil {
		return AttemptView{}, fmt.Errorf("load exam for attempt %s: %w", attemptID, err)
	}
	now := s.now()
	if now.After(e.EndTime) {
		return AttemptView{}, reject(ErrOutsideWindow, "exam %s ended at %s", e.ID, e.EndTime.Format(time.RFC3339))
	}
	q, ok := e.Question(questionID)
	if !ok {
		return AttemptView{}, reject(ErrNotFound, "question %s", questionID)
	}
	if p.SelectedOptionID != nil {
		if _, ok := q.Option(*p.SelectedOptionID); !ok {
			return AttemptView{}, reject(ErrInvalidInput, "option %s does not belong to question %s", *p.SelectedOptionID, questionID)
		}
	}
	if p.TextAnswer != nil && len([]rune(*p.TextAnswer)) > MaxTextAnswerLen {
		return AttemptView{}, reject(ErrInvalidInput, "text answer longer than %d characters", MaxTextAnswerLen)
	}

	err = s.store.SaveAnswer(ctx, Answer{
		ID:               s.newID(),
		AttemptID:        attemptID,
		QuestionID:       questionID,
		TextAnswer:       p.TextAnswer,
		SelectedOptionID: p.SelectedOptionID,
		BooleanAnswer:    p.BooleanAnswer,
		AnsweredAt:       now,
	})
	if errors.Is(err, ErrInvalidState) {
		return AttemptView{}, reject(ErrInvalidState, "attempt %s was completed", attemptID)
	}
	if err != nil {
		return AttemptView{}, fmt.Errorf("save answer: %w", err)
	}
	return s.reload(ctx, attemptID)
}

// CompleteAttempt scores every answer and closes the attempt. It is terminal:
// a second call is rejected with ErrInvalidState and changes nothing.
func (s *Service) CompleteAttempt(ctx context.Context, attemptID, callerID string) (AttemptView, error) {
	a, err := s.ownedAttempt(ctx, attemptID, callerID)
	if err != nil {
		return AttemptView{}, err
	}
	if a.Status != StatusInProgress {
		return AttemptView{}, reject(ErrInvalidState, "attempt %s is %s", attemptID, a.Status)
	}

	err = s.store.FinalizeAttempt(ctx, attemptID, s.now(), func(ans Answer, q Question) grading.Result {
		return GradeAnswer(s.grader, ans, q)
	})
	if errors.Is(err, ErrInvalidState) {
		return AttemptView{}, reject(ErrInvalidState, "attempt %s was already completed", attemptID)
	}
	if err != nil {
		return AttemptView{}, fmt.Errorf("finalize attempt: %w", err)
	}

	v, err := s.reload(ctx, attemptID)
	if err != nil {
		return AttemptView{}, err
	}
	s.record(ctx, EventAttemptCompleted, attemptID, map[string]any{
		"exam_id": v.ExamID, "user_id": v.UserID, "score": v.Score, "total_points": v.TotalPoints,
	})
	s.log.Info().Str("attempt_id", attemptID).Interface("score", v.Score).Msg("attempt completed")
	return v, nil
}

// GetAttempt returns the attempt only if callerID owns it.
func (s *Service) GetAttempt(ctx context.Context, attemptID, callerID string) (AttemptView, error) {
	a, err := s.ownedAttempt(ctx, attemptID, callerID)
	if err != nil {
		return AttemptView{}, err
	}
	return NewAttemptView(a), nil
}

// ListByUser returns the caller's attempts, newest first.
func (s *Service) ListByUser(ctx context.Context, callerID string) ([]AttemptView, error) {
	list, err := s.store.ListAttempts(ctx, AttemptListOpts{UserID: callerID})
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	return NewAttemptViews(list), nil
}

// ListResultsForExam returns every attempt on the exam, newest first, when the
// caller created it. Anyone else gets an empty list.
func (s *Service) ListResultsForExam(ctx context.Context, examID, callerID string) ([]AttemptView, error) {
	e, err := s.store.GetExam(ctx, examID)
	if errors.Is(err, ErrNotFound) {
		return []AttemptView{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load exam: %w", err)
	}
	if e.CreatedByUserID != callerID {
		return []AttemptView{}, nil
	}
	list, err := s.store.ListAttempts(ctx, AttemptListOpts{ExamID: examID})
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	return NewAttemptViews(list), nil
}

// ownedAttempt reports someone else's attempt exactly like a missing one.
func (s *Service) ownedAttempt(ctx context.Context, attemptID, callerID string) (Attempt, error) {
	a, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, lookupErr(err, "attempt %s", attemptID)
	}
	if a.UserID != callerID {
		return Attempt{}, reject(ErrNotFound, "attempt %s", attemptID)
	}
	return a, nil
}

func (s *Service) reload(ctx context.Context, attemptID string) (AttemptView, error) {
	a, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return AttemptView{}, fmt.Errorf("reload attempt %s: %w", attemptID, err)
	}
	return NewAttemptView(a), nil
}

func (s *Service) record(ctx context.Context, typ, key string, payload any) {
	if s.events == nil {
		return
	}
	if err := s.events.Record(ctx, typ, key, payload); err != nil {
		s.log.Warn().Err(err).Str("event", typ).Str("key", key).Msg("event log append failed")
	}
}

// lookupErr turns a store miss into a rejection and wraps anything else.
func lookupErr(err error, format string, args ...any) error {
	if errors.Is(err, ErrNotFound) {
		return reject(ErrNotFound, format, args...)
	}
	return fmt.Errorf("load "+format+": %w", append(args, err)...)
}
