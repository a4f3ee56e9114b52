package exam

import (
	"time"

	"github.com/mind-engage/mindengage-exams/internal/grading"
)

type QuestionKind string

const (
	KindMultipleChoice QuestionKind = grading.KindMultipleChoice
	KindTrueFalse      QuestionKind = grading.KindTrueFalse
	KindText           QuestionKind = grading.KindText
)

func (k QuestionKind) Valid() bool {
	switch k {
	case KindMultipleChoice, KindTrueFalse, KindText:
		return true
	}
	return false
}

type AttemptStatus string

const (
	StatusInProgress AttemptStatus = "InProgress"
	StatusCompleted  AttemptStatus = "Completed"
	StatusAbandoned  AttemptStatus = "Abandoned" // reserved, never produced
)

type Role string

const (
	RoleStudent Role = "Student"
	RoleTeacher Role = "Teacher"
)

type User struct {
	ID           string    `json:"id"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Email        string    `json:"email"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

func (u User) DisplayName() string { return u.FirstName + " " + u.LastName }

type QuestionOption struct {
	ID         string `json:"id"`
	QuestionID string `json:"question_id"`
	Text       string `json:"text"`
	IsCorrect  bool   `json:"is_correct"`
	Order      int    `json:"order"`
}

type Question struct {
	ID      string           `json:"id"`
	ExamID  string           `json:"exam_id"`
	Text    string           `json:"text"`
	Kind    QuestionKind     `json:"type"`
	Points  int              `json:"points"`
	Order   int              `json:"order"`
	Options []QuestionOption `json:"options"`
}

// Option returns the option with the given id, if it belongs to q.
func (q Question) Option(id string) (QuestionOption, bool) {
	for _, o := range q.Options {
		if o.ID == id {
			return o, true
		}
	}
	return QuestionOption{}, false
}

type Exam struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	DurationMinutes int        `json:"duration_minutes"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         time.Time  `json:"end_time"`
	IsActive        bool       `json:"is_active"`
	CreatedByUserID string     `json:"created_by_user_id"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       *time.Time `json:"updated_at,omitempty"`
	Questions       []Question `json:"questions"`

	// Filled by stores on read.
	CreatedByUserName string `json:"created_by_user_name,omitempty"`
}

// TotalPoints is the grading basis snapshot taken when an attempt starts.
func (e Exam) TotalPoints() int {
	sum := 0
	for _, q := range e.Questions {
		sum += q.Points
	}
	return sum
}

// Question returns the question with the given id, if it belongs to e.
func (e Exam) Question(id string) (Question, bool) {
	for _, q := range e.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// InWindow reports whether t falls in [StartTime, EndTime].
func (e Exam) InWindow(t time.Time) bool {
	return !t.Before(e.StartTime) && !t.After(e.EndTime)
}

type Answer struct {
	ID               string    `json:"id"`
	AttemptID        string    `json:"attempt_id"`
	QuestionID       string    `json:"question_id"`
	TextAnswer       *string   `json:"text_answer,omitempty"`
	SelectedOptionID *string   `json:"selected_option_id,omitempty"`
	BooleanAnswer    *bool     `json:"boolean_answer,omitempty"`
	PointsEarned     int       `json:"points_earned"`
	AnsweredAt       time.Time `json:"answered_at"`

	// Loaded with the attempt graph.
	Question       *Question       `json:"-"`
	SelectedOption *QuestionOption `json:"-"`
}

// AnswerPayload is what a student submits for one question.
type AnswerPayload struct {
	TextAnswer       *string
	SelectedOptionID *string
	BooleanAnswer    *bool
}

type Attempt struct {
	ID          string        `json:"id"`
	ExamID      string        `json:"exam_id"`
	UserID      string        `json:"user_id"`
	Status      AttemptStatus `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Score       *int          `json:"score,omitempty"`
	TotalPoints *int          `json:"total_points,omitempty"`
	Answers     []Answer      `json:"answers"`

	// Denormalised on read.
	UserName  string `json:"user_name,omitempty"`
	ExamTitle string `json:"exam_title,omitempty"`
}

// Answer returns the answer recorded for questionID, if any.
func (a Attempt) Answer(questionID string) (Answer, bool) {
	for _, ans := range a.Answers {
		if ans.QuestionID == questionID {
			return ans, true
		}
	}
	return Answer{}, false
}

// gradingQ converts a question to the scoring engine's view.
func gradingQ(q Question) grading.Q {
	out := grading.Q{Kind: string(q.Kind), Points: q.Points, Options: make([]grading.Choice, len(q.Options))}
	for i, o := range q.Options {
		out.Options[i] = grading.Choice{ID: o.ID, Text: o.Text, IsCorrect: o.IsCorrect}
	}
	return out
}

func gradingResponse(a Answer) grading.Response {
	return grading.Response{Text: a.TextAnswer, SelectedOptionID: a.SelectedOptionID, Boolean: a.BooleanAnswer}
}
