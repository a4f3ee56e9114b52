package exam

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mind-engage/mindengage-exams/internal/grading"
)

// memoryStore keeps everything in maps behind one mutex. Every write holds the
// lock for its whole read-check-write sequence, which gives the same
// atomicity guarantees the SQL store gets from transactions.
type memoryStore struct {
	mu       sync.RWMutex
	users    map[string]User
	exams    map[string]Exam
	attempts map[string]Attempt
}

func NewInMemoryStore() Store {
	return &memoryStore{
		users:    map[string]User{},
		exams:    map[string]Exam{},
		attempts: map[string]Attempt{},
	}
}

func (m *memoryStore) CreateExam(_ context.Context, e Exam) (Exam, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.exams[e.ID]; ok {
		return Exam{}, fmt.Errorf("exam %q already exists", e.ID)
	}
	e = copyExam(e)
	for i := range e.Questions {
		e.Questions[i].ExamID = e.ID
		for j := range e.Questions[i].Options {
			e.Questions[i].Options[j].QuestionID = e.Questions[i].ID
		}
	}
	m.exams[e.ID] = e
	return m.examView(e), nil
}

func (m *memoryStore) GetExam(_ context.Context, id string) (Exam, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.exams[id]
	if !ok {
		return Exam{}, fmt.Errorf("exam %q: %w", id, ErrNotFound)
	}
	return m.examView(e), nil
}

func (m *memoryStore) ListExams(_ context.Context, opts ExamListOpts) ([]Exam, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Exam, 0, len(m.exams))
	for _, e := range m.exams {
		if opts.ActiveOnly && !e.IsActive {
			continue
		}
		if opts.CreatorID != "" && e.CreatedByUserID != opts.CreatorID {
			continue
		}
		out = append(out, m.examView(e))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *memoryStore) DeactivateExam(_ context.Context, id, ownerID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.exams[id]
	if !ok || e.CreatedByUserID != ownerID {
		return fmt.Errorf("exam %q: %w", id, ErrNotFound)
	}
	e.IsActive = false
	e.UpdatedAt = &at
	m.exams[id] = e
	return nil
}

func (m *memoryStore) PutUser(_ context.Context, u User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return nil
}

func (m *memoryStore) GetUser(_ context.Context, id string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, fmt.Errorf("user %q: %w", id, ErrNotFound)
	}
	return u, nil
}

func (m *memoryStore) FindUserByEmail(_ context.Context, email string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return User{}, fmt.Errorf("user %q: %w", email, ErrNotFound)
}

func (m *memoryStore) CreateAttempt(_ context.Context, a Attempt) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.exams[a.ExamID]; !ok {
		return Attempt{}, fmt.Errorf("exam %q: %w", a.ExamID, ErrNotFound)
	}
	for _, existing := range m.attempts {
		if existing.UserID == a.UserID && existing.ExamID == a.ExamID && existing.Status == StatusInProgress {
			return Attempt{}, ErrAttemptExists
		}
	}
	a.Answers = nil
	m.attempts[a.ID] = a
	return m.hydrate(a), nil
}

func (m *memoryStore) FindInProgressAttempt(_ context.Context, userID, examID string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.attempts {
		if a.UserID == userID && a.ExamID == examID && a.Status == StatusInProgress {
			return m.hydrate(a), nil
		}
	}
	return Attempt{}, fmt.Errorf("in-progress attempt for %q on %q: %w", userID, examID, ErrNotFound)
}

func (m *memoryStore) GetAttempt(_ context.Context, id string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attempts[id]
	if !ok {
		return Attempt{}, fmt.Errorf("attempt %q: %w", id, ErrNotFound)
	}
	return m.hydrate(a), nil
}

func (m *memoryStore) ListAttempts(_ context.Context, opts AttemptListOpts) ([]Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Attempt{}
	for _, a := range m.attempts {
		if opts.UserID != "" && a.UserID != opts.UserID {
			continue
		}
		if opts.ExamID != "" && a.ExamID != opts.ExamID {
			continue
		}
		out = append(out, m.hydrate(a))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out, nil
}

func (m *memoryStore) SaveAnswer(_ context.Context, ans Answer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[ans.AttemptID]
	if !ok {
		return fmt.Errorf("attempt %q: %w", ans.AttemptID, ErrNotFound)
	}
	if a.Status != StatusInProgress {
		return fmt.Errorf("attempt %q is %s: %w", a.ID, a.Status, ErrInvalidState)
	}
	answers := append([]Answer(nil), a.Answers...)
	replaced := false
	for i := range answers {
		if answers[i].QuestionID == ans.QuestionID {
			answers[i].TextAnswer = ans.TextAnswer
			answers[i].SelectedOptionID = ans.SelectedOptionID
			answers[i].BooleanAnswer = ans.BooleanAnswer
			answers[i].AnsweredAt = ans.AnsweredAt
			replaced = true
			break
		}
	}
	if !replaced {
		ans.PointsEarned = 0
		ans.Question, ans.SelectedOption = nil, nil
		answers = append(answers, ans)
	}
	a.Answers = answers
	m.attempts[a.ID] = a
	return nil
}

func (m *memoryStore) FinalizeAttempt(_ context.Context, attemptID string, at time.Time, score ScoreFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[attemptID]
	if !ok {
		return fmt.Errorf("attempt %q: %w", attemptID, ErrNotFound)
	}
	if a.Status != StatusInProgress {
		return fmt.Errorf("attempt %q is %s: %w", a.ID, a.Status, ErrInvalidState)
	}
	full := m.hydrate(a)
	answers := make([]Answer, len(a.Answers))
	results := make([]grading.Result, 0, len(a.Answers))
	for i, ans := range a.Answers {
		var res grading.Result
		if h, ok := full.Answer(ans.QuestionID); ok && h.Question != nil {
			res = score(h, *h.Question)
		}
		ans.PointsEarned = res.AutoPoints
		answers[i] = ans
		results = append(results, res)
	}
	total := grading.Total(results)
	a.Answers = answers
	a.Score = &total
	a.CompletedAt = &at
	a.Status = StatusCompleted
	m.attempts[a.ID] = a
	return nil
}

// examView returns a copy safe to hand out, with the owner name filled in.
// Caller holds m.mu.
func (m *memoryStore) examView(e Exam) Exam {
	e = copyExam(e)
	if u, ok := m.users[e.CreatedByUserID]; ok {
		e.CreatedByUserName = u.DisplayName()
	}
	return e
}

// hydrate loads the attempt graph. Caller holds m.mu.
func (m *memoryStore) hydrate(a Attempt) Attempt {
	e := m.exams[a.ExamID]
	a.ExamTitle = e.Title
	if u, ok := m.users[a.UserID]; ok {
		a.UserName = u.DisplayName()
	}
	answers := make([]Answer, len(a.Answers))
	for i, ans := range a.Answers {
		if q, ok := e.Question(ans.QuestionID); ok {
			q := copyQuestion(q)
			ans.Question = &q
			if ans.SelectedOptionID != nil {
				if o, ok := q.Option(*ans.SelectedOptionID); ok {
					ans.SelectedOption = &o
				}
			}
		}
		answers[i] = ans
	}
	sort.SliceStable(answers, func(i, j int) bool { return answers[i].AnsweredAt.Before(answers[j].AnsweredAt) })
	a.Answers = answers
	return a
}

func copyExam(e Exam) Exam {
	qs := make([]Question, len(e.Questions))
	for i, q := range e.Questions {
		qs[i] = copyQuestion(q)
	}
	e.Questions = qs
	return e
}

func copyQuestion(q Question) Question {
	q.Options = append([]QuestionOption(nil), q.Options...)
	return q
}
