package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	authmw "github.com/mind-engage/mindengage-exams/internal/auth/middleware"
	"github.com/mind-engage/mindengage-exams/internal/exam"
)

var t0 = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type server struct {
	t       *testing.T
	h       http.Handler
	clock   *testClock
	teacher string
	student string
	other   string
}

func newServer(t *testing.T) *server {
	t.Helper()
	ctx := context.Background()
	st := exam.NewInMemoryStore()
	hash, _ := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	for _, u := range []exam.User{
		{ID: "t1", FirstName: "Admin", LastName: "User", Email: "admin@examsystem.com", Role: exam.RoleTeacher},
		{ID: "t2", FirstName: "Other", LastName: "Teacher", Email: "other.teacher@examsystem.com", Role: exam.RoleTeacher},
		{ID: "s1", FirstName: "John", LastName: "Student", Email: "john.student@examsystem.com", Role: exam.RoleStudent},
	} {
		u.PasswordHash = string(hash)
		if err := st.PutUser(ctx, u); err != nil {
			t.Fatal(err)
		}
	}
	clock := &testClock{t: t0.Add(time.Minute)}
	svc := exam.NewService(st, exam.WithClock(clock.Now))
	s := &server{
		t:     t,
		clock: clock,
		h: NewRouter(Deps{
			Service:         svc,
			Users:           st,
			Auth:            authmw.NewAuthService("0123456789abcdef0123456789abcdef", time.Hour),
			Log:             zerolog.Nop(),
			CORSOrigins:     []string{"http://localhost:3000"},
			EnableLocalAuth: true,
		}),
	}
	s.teacher = s.login("admin@examsystem.com")
	s.other = s.login("other.teacher@examsystem.com")
	s.student = s.login("john.student@examsystem.com")
	return s
}

func (s *server) do(method, path, token string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			s.t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	s.h.ServeHTTP(rr, req)
	return rr
}

func (s *server) login(email string) string {
	s.t.Helper()
	rr := s.do(http.MethodPost, "/auth/login", "", map[string]string{"email": email, "password": "pw"})
	if rr.Code != http.StatusOK {
		s.t.Fatalf("login %s: %d %s", email, rr.Code, rr.Body)
	}
	var resp struct {
		AccessToken string `json:"access_token"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	return resp.AccessToken
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func examBody() map[string]any {
	return map[string]any{
		"title":            "Arithmetic",
		"duration_minutes": 30,
		"start_time":       t0,
		"end_time":         t0.Add(time.Hour),
		"questions": []map[string]any{
			{"text": "What is 2+2?", "type": "MultipleChoice", "points": 5, "order": 1, "options": []map[string]any{
				{"text": "3", "order": 1}, {"text": "4", "is_correct": true, "order": 2}, {"text": "5", "order": 3},
			}},
			{"text": "Explain", "type": "Text", "points": 1, "order": 2},
		},
	}
}

func (s *server) createExam() exam.Exam {
	s.t.Helper()
	rr := s.do(http.MethodPost, "/exams", s.teacher, examBody())
	if rr.Code != http.StatusCreated {
		s.t.Fatalf("create exam: %d %s", rr.Code, rr.Body)
	}
	return decode[exam.Exam](s.t, rr)
}

func TestAttemptFlow(t *testing.T) {
	s := newServer(t)
	e := s.createExam()
	mc := e.Questions[0]
	correct := mc.Options[1].ID

	rr := s.do(http.MethodPost, "/attempts", s.student, map[string]string{"exam_id": e.ID})
	if rr.Code != http.StatusOK {
		t.Fatalf("start: %d %s", rr.Code, rr.Body)
	}
	a := decode[exam.AttemptView](t, rr)
	if a.Status != exam.StatusInProgress || a.TotalPoints == nil || *a.TotalPoints != 6 {
		t.Fatalf("start view: %+v", a)
	}

	rr = s.do(http.MethodPost, "/attempts/"+a.ID+"/answers", s.student,
		map[string]any{"question_id": mc.ID, "selected_option_id": correct})
	if rr.Code != http.StatusOK {
		t.Fatalf("answer: %d %s", rr.Code, rr.Body)
	}

	rr = s.do(http.MethodPost, "/attempts/"+a.ID+"/complete", s.student, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("complete: %d %s", rr.Code, rr.Body)
	}
	done := decode[exam.AttemptView](t, rr)
	if done.Status != exam.StatusCompleted || *done.Score != 5 || done.Answers[0].PointsEarned != 5 {
		t.Fatalf("completed view: %+v", done)
	}
	if got := *done.Answers[0].SelectedOptionText; got != "4" {
		t.Fatalf("selected_option_text = %q", got)
	}

	rr = s.do(http.MethodPost, "/attempts/"+a.ID+"/complete", s.student, nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("second complete: %d", rr.Code)
	}

	rr = s.do(http.MethodGet, "/attempts", s.student, nil)
	if list := decode[[]exam.AttemptView](t, rr); len(list) != 1 || list[0].ID != a.ID {
		t.Fatalf("own attempts: %+v", list)
	}

	rr = s.do(http.MethodGet, "/exams/"+e.ID+"/results", s.teacher, nil)
	if list := decode[[]exam.AttemptView](t, rr); rr.Code != http.StatusOK || len(list) != 1 {
		t.Fatalf("owner results: %d %+v", rr.Code, list)
	}
	rr = s.do(http.MethodGet, "/exams/"+e.ID+"/results", s.other, nil)
	if list := decode[[]exam.AttemptView](t, rr); rr.Code != http.StatusOK || len(list) != 0 {
		t.Fatalf("non-owner results: %d %+v", rr.Code, list)
	}
}

func TestAnswerKeysVisibleToOwnerOnly(t *testing.T) {
	s := newServer(t)
	e := s.createExam()

	keyed := func(e exam.Exam) bool {
		for _, q := range e.Questions {
			for _, o := range q.Options {
				if o.IsCorrect {
					return true
				}
			}
		}
		return false
	}

	if got := decode[exam.Exam](t, s.do(http.MethodGet, "/exams/"+e.ID, s.teacher, nil)); !keyed(got) {
		t.Fatalf("owner should see answer keys")
	}
	for _, path := range []string{"/exams/" + e.ID, "/exams/" + e.ID + "/student"} {
		rr := s.do(http.MethodGet, path, s.student, nil)
		if rr.Code != http.StatusOK || keyed(decode[exam.Exam](t, rr)) {
			t.Fatalf("%s: status %d or keys leaked", path, rr.Code)
		}
	}
	rr := s.do(http.MethodGet, "/exams", s.student, nil)
	if list := decode[[]exam.Exam](t, rr); len(list) != 1 || keyed(list[0]) {
		t.Fatalf("listing: %+v", list)
	}
}

func TestStatusMapping(t *testing.T) {
	s := newServer(t)
	e := s.createExam()

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		want   int
	}{
		{"no token", http.MethodGet, "/exams", "", nil, http.StatusUnauthorized},
		{"bad token", http.MethodGet, "/exams", "garbage", nil, http.StatusUnauthorized},
		{"student creates exam", http.MethodPost, "/exams", s.student, examBody(), http.StatusForbidden},
		{"teacher starts attempt", http.MethodPost, "/attempts", s.teacher, map[string]string{"exam_id": e.ID}, http.StatusForbidden},
		{"bad json", http.MethodPost, "/attempts", s.student, "{", http.StatusBadRequest},
		{"missing exam_id", http.MethodPost, "/attempts", s.student, map[string]string{}, http.StatusBadRequest},
		{"unknown exam", http.MethodPost, "/attempts", s.student, map[string]string{"exam_id": "nope"}, http.StatusNotFound},
		{"unknown attempt", http.MethodGet, "/attempts/nope", s.student, nil, http.StatusNotFound},
		{"invalid exam", http.MethodPost, "/exams", s.teacher, map[string]any{"title": "x"}, http.StatusBadRequest},
		{"non-owner delete", http.MethodDelete, "/exams/" + e.ID, s.other, nil, http.StatusNotFound},
		{"health", http.MethodGet, "/healthz", "", nil, http.StatusOK},
		{"ready", http.MethodGet, "/readyz", "", nil, http.StatusOK},
	}
	for _, tc := range cases {
		rr := s.do(tc.method, tc.path, tc.token, tc.body)
		if rr.Code != tc.want {
			t.Errorf("%s: status %d, want %d (%s)", tc.name, rr.Code, tc.want, rr.Body)
		}
	}
}

func TestOutsideWindowIsForbidden(t *testing.T) {
	s := newServer(t)
	e := s.createExam()
	s.clock.Set(t0.Add(2 * time.Hour))
	rr := s.do(http.MethodPost, "/attempts", s.student, map[string]string{"exam_id": e.ID})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status %d, want 403", rr.Code)
	}
	body := decode[map[string]string](t, rr)
	if body["error"] == "" {
		t.Fatalf("missing error message")
	}
}

func TestDeleteExamHidesFromStudents(t *testing.T) {
	s := newServer(t)
	e := s.createExam()
	if rr := s.do(http.MethodDelete, "/exams/"+e.ID, s.teacher, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rr.Code)
	}
	if rr := s.do(http.MethodGet, "/exams/"+e.ID, s.student, nil); rr.Code != http.StatusNotFound {
		t.Fatalf("student get after delete: %d", rr.Code)
	}
	mine := decode[[]exam.Exam](t, s.do(http.MethodGet, "/exams/mine", s.teacher, nil))
	if len(mine) != 1 || mine[0].IsActive {
		t.Fatalf("creator listing: %+v", mine)
	}
}

func TestWrappedRejectionsKeepTheirStatus(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	err := fmt.Errorf("complete: %w", &exam.Rejection{Kind: exam.ErrInvalidState, Message: "attempt a1 is Completed"})
	writeError(rr, req, zerolog.Nop(), err)
	if rr.Code != http.StatusConflict {
		t.Fatalf("status %d, want 409", rr.Code)
	}
	if body := decode[map[string]string](t, rr); body["error"] == "internal error" {
		t.Fatalf("rejection message was hidden: %v", body)
	}
}

func TestInfrastructureErrorsAreHidden(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	writeError(rr, req, zerolog.Nop(), context.DeadlineExceeded)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status %d", rr.Code)
	}
	if body := decode[map[string]string](t, rr); body["error"] != "internal error" {
		t.Fatalf("leaked message: %v", body)
	}
}
