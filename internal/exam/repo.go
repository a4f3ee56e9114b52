package exam

import (
	"context"
	"time"

	"github.com/mind-engage/mindengage-exams/internal/grading"
)

type ExamListOpts struct {
	ActiveOnly bool   // student-facing listings
	CreatorID  string // filter by owner
}

// AttemptListOpts filters ListAttempts. Results are always ordered by
// started_at descending and carry the full answer graph.
type AttemptListOpts struct {
	ExamID string
	UserID string
}

// ScoreFunc grades one answer. Stores call it inside the completion
// transaction with the answer's question loaded and sum the results with
// grading.Total.
type ScoreFunc func(a Answer, q Question) grading.Result

// Store is the persistence contract used by Service.
//
// Lookups return ErrNotFound (possibly wrapped) when nothing matches. Attempt
// reads load the full graph: answers with their Question (and its options) and
// SelectedOption, plus the user's display name and the exam title.
type Store interface {
	CreateExam(ctx context.Context, e Exam) (Exam, error)
	GetExam(ctx context.Context, id string) (Exam, error) // inactive exams included
	ListExams(ctx context.Context, opts ExamListOpts) ([]Exam, error)
	DeactivateExam(ctx context.Context, id, ownerID string, at time.Time) error

	PutUser(ctx context.Context, u User) error
	GetUser(ctx context.Context, id string) (User, error)
	FindUserByEmail(ctx context.Context, email string) (User, error)

	// CreateAttempt returns ErrAttemptExists if the user already has an
	// in-progress attempt on the exam.
	CreateAttempt(ctx context.Context, a Attempt) (Attempt, error)
	FindInProgressAttempt(ctx context.Context, userID, examID string) (Attempt, error)
	GetAttempt(ctx context.Context, id string) (Attempt, error)
	ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error)

	// SaveAnswer upserts by (attempt, question). It returns ErrInvalidState if
	// the attempt is no longer in progress when the write happens.
	SaveAnswer(ctx context.Context, a Answer) error

	// FinalizeAttempt atomically scores every answer, stores the total and
	// marks the attempt completed. It returns ErrInvalidState if the attempt is
	// not in progress, in which case nothing is written.
	FinalizeAttempt(ctx context.Context, attemptID string, at time.Time, score ScoreFunc) error
}
