package exam

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestCreateExamOrdersAndOwns(t *testing.T) {
	forEachStore(t, func(t *testing.T, st Store) {
		f := newFixture(t, st)
		in := arithmeticExam()
		// reverse the declared order; storage must follow Order, not slice position
		in.Questions[0].Order, in.Questions[2].Order = 3, 1
		e := f.createExam(t, in)

		if !e.IsActive || e.CreatedByUserID != f.teacher.ID || e.CreatedByUserName != "Admin User" {
			t.Fatalf("unexpected exam header: %+v", e)
		}
		if len(e.Questions) != 3 || e.Questions[0].Kind != KindText || e.Questions[2].Kind != KindMultipleChoice {
			t.Fatalf("questions not ordered: %+v", e.Questions)
		}
		opts := e.Questions[2].Options
		if len(opts) != 3 || opts[0].Text != "3" || opts[1].Text != "4" || !opts[1].IsCorrect {
			t.Fatalf("options not preserved: %+v", opts)
		}
		if e.TotalPoints() != 10 {
			t.Fatalf("total = %d", e.TotalPoints())
		}

		got, err := f.svc.GetExam(f.ctx, e.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if !got.StartTime.Equal(t0) || !got.EndTime.Equal(t0.Add(2*time.Hour)) {
			t.Fatalf("window not round-tripped: %v - %v", got.StartTime, got.EndTime)
		}
	})
}

func TestCreateExamRejects(t *testing.T) {
	forEachStore(t, func(t *testing.T, st Store) {
		f := newFixture(t, st)

		if _, err := f.svc.CreateExam(f.ctx, f.student.ID, arithmeticExam()); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("student create: %v", err)
		}
		if _, err := f.svc.CreateExam(f.ctx, "ghost", arithmeticExam()); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("unknown owner: %v", err)
		}

		cases := map[string]func(*NewExam){
			"empty title":      func(e *NewExam) { e.Title = "  " },
			"long title":       func(e *NewExam) { e.Title = strings.Repeat("t", MaxTitleLen+1) },
			"zero duration":    func(e *NewExam) { e.DurationMinutes = 0 },
			"inverted window":  func(e *NewExam) { e.EndTime = e.StartTime },
			"zero points":      func(e *NewExam) { e.Questions[0].Points = 0 },
			"unknown kind":     func(e *NewExam) { e.Questions[0].Kind = "Essay" },
			"no correct":       func(e *NewExam) { e.Questions[0].Options[1].IsCorrect = false },
			"blank option":     func(e *NewExam) { e.Questions[1].Options[0].Text = "" },
			"text with option": func(e *NewExam) { e.Questions[2].Options = []NewOption{{Text: "a", IsCorrect: true}} },
		}
		for name, mutate := range cases {
			in := arithmeticExam()
			mutate(&in)
			if _, err := f.svc.CreateExam(f.ctx, f.teacher.ID, in); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("%s: err = %v, want invalid input", name, err)
			}
		}
		mine, _ := f.svc.ListExamsByCreator(f.ctx, f.teacher.ID)
		if len(mine) != 0 {
			t.Fatalf("rejected exams were stored: %d", len(mine))
		}
	})
}

func TestStudentViewHidesKeys(t *testing.T) {
	forEachStore(t, func(t *testing.T, st Store) {
		f := newFixture(t, st)
		e := f.createExam(t, arithmeticExam())

		v, err := f.svc.GetExamForStudent(f.ctx, e.ID)
		if err != nil {
			t.Fatalf("student view: %v", err)
		}
		for _, q := range v.Questions {
			for _, o := range q.Options {
				if o.IsCorrect {
					t.Fatalf("answer key leaked on %q", o.Text)
				}
			}
		}
		// stripping works on a copy
		full, _ := f.svc.GetExam(f.ctx, e.ID)
		if !full.Questions[0].Options[1].IsCorrect {
			t.Fatalf("stored key was modified")
		}

		f.clock.Set(t0.Add(-time.Minute))
		if _, err := f.svc.GetExamForStudent(f.ctx, e.ID); !errors.Is(err, ErrOutsideWindow) {
			t.Fatalf("before window: %v", err)
		}
	})
}

func TestDeleteExamIsSoft(t *testing.T) {
	forEachStore(t, func(t *testing.T, st Store) {
		f := newFixture(t, st)
		e := f.createExam(t, arithmeticExam())
		keep := f.createExam(t, arithmeticExam())
		a := f.start(t, e.ID, f.student.ID)
		if _, err := f.svc.SubmitAnswer(f.ctx, a.ID, f.student.ID, e.Questions[1].ID, AnswerPayload{BooleanAnswer: ptr(true)}); err != nil {
			t.Fatalf("submit: %v", err)
		}

		if err := f.svc.DeleteExam(f.ctx, e.ID, f.other.ID); !errors.Is(err, ErrNotFound) {
			t.Fatalf("non-owner delete: %v", err)
		}
		if err := f.svc.DeleteExam(f.ctx, e.ID, f.teacher.ID); err != nil {
			t.Fatalf("delete: %v", err)
		}

		got, err := f.svc.GetExam(f.ctx, e.ID)
		if err != nil || got.IsActive || got.UpdatedAt == nil {
			t.Fatalf("deactivated exam: %+v, %v", got, err)
		}
		active, _ := f.svc.ListActiveExams(f.ctx)
		if len(active) != 1 || active[0].ID != keep.ID {
			t.Fatalf("active listing = %+v", active)
		}
		mine, _ := f.svc.ListExamsByCreator(f.ctx, f.teacher.ID)
		if len(mine) != 2 {
			t.Fatalf("creator listing has %d exams, want 2", len(mine))
		}
		if _, err := f.svc.GetExamForStudent(f.ctx, e.ID); !errors.Is(err, ErrNotFound) {
			t.Fatalf("student view of inactive exam: %v", err)
		}

		// history still resolves, and the open attempt can still be completed
		v, err := f.svc.CompleteAttempt(f.ctx, a.ID, f.student.ID)
		if err != nil {
			t.Fatalf("complete on deactivated exam: %v", err)
		}
		if v.ExamTitle != "Arithmetic" || *v.Score != 2 || v.Answers[0].QuestionText != "2+2 is even" {
			t.Fatalf("history lost: %+v", v)
		}
	})
}

func TestListActiveExamsStripsKeys(t *testing.T) {
	forEachStore(t, func(t *testing.T, st Store) {
		f := newFixture(t, st)
		f.createExam(t, arithmeticExam())
		list, err := f.svc.ListActiveExams(f.ctx)
		if err != nil || len(list) != 1 {
			t.Fatalf("list: %v %v", list, err)
		}
		for _, q := range list[0].Questions {
			for _, o := range q.Options {
				if o.IsCorrect {
					t.Fatalf("key leaked in listing")
				}
			}
		}
	})
}
