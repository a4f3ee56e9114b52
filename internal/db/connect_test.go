package db

import (
	"context"
	"errors"
	"testing"
)

func TestOpenSQLiteCreatesSchema(t *testing.T) {
	ctx := context.Background()
	conn, err := Open(ctx, DriverSQLite, "file:connect_test?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	for _, table := range []string{"users", "exams", "questions", "question_options", "exam_attempts", "answers", "event_log"} {
		var n int
		if err := conn.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=$1`, table).Scan(&n); err != nil || n != 1 {
			t.Fatalf("table %s missing (n=%d, err=%v)", table, n, err)
		}
	}

	// schema creation is idempotent
	if err := ensureSchema(ctx, conn, DriverSQLite); err != nil {
		t.Fatalf("second ensureSchema: %v", err)
	}
}

func TestInProgressUniqueIndex(t *testing.T) {
	ctx := context.Background()
	conn, err := Open(ctx, DriverSQLite, "file:connect_unique_test?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	mustExec := func(q string, args ...any) {
		t.Helper()
		if _, err := conn.ExecContext(ctx, q, args...); err != nil {
			t.Fatalf("%s: %v", q, err)
		}
	}
	mustExec(`INSERT INTO users (id, first_name, last_name, email, role, created_at) VALUES ('u1','A','B','a@b.c','Student',0)`)
	mustExec(`INSERT INTO exams (id, title, duration_minutes, start_time, end_time, created_by_user_id, created_at) VALUES ('e1','T',10,0,1000,'u1',0)`)
	mustExec(`INSERT INTO exam_attempts (id, user_id, exam_id, status, started_at) VALUES ('a1','u1','e1','InProgress',0)`)

	_, err = conn.ExecContext(ctx, `INSERT INTO exam_attempts (id, user_id, exam_id, status, started_at) VALUES ('a2','u1','e1','InProgress',1)`)
	if !IsUniqueViolation(err) {
		t.Fatalf("second in-progress attempt: want unique violation, got %v", err)
	}
	// completed attempts do not count against the index
	mustExec(`UPDATE exam_attempts SET status='Completed' WHERE id='a1'`)
	mustExec(`INSERT INTO exam_attempts (id, user_id, exam_id, status, started_at) VALUES ('a2','u1','e1','InProgress',1)`)
}

func TestIsUniqueViolation(t *testing.T) {
	if IsUniqueViolation(nil) || IsUniqueViolation(errors.New("boom")) {
		t.Fatalf("false positive")
	}
	if !IsUniqueViolation(errors.New("constraint failed: UNIQUE constraint failed: users.email (2067)")) {
		t.Fatalf("message fallback not matched")
	}
}

func TestOpenUnsupportedDriver(t *testing.T) {
	if _, err := Open(context.Background(), Driver("mysql"), ""); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSQLiteForeignKeysOnEveryConnection(t *testing.T) {
	ctx := context.Background()
	conn, err := Open(ctx, DriverSQLite, "file:fk_test?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	// with no idle connections every query dials a fresh one
	conn.SetMaxIdleConns(0)
	for i := 0; i < 2; i++ {
		var on int
		if err := conn.QueryRowContext(ctx, `PRAGMA foreign_keys`).Scan(&on); err != nil || on != 1 {
			t.Fatalf("query %d: foreign_keys = %d, err = %v", i, on, err)
		}
	}
}

func TestWithForeignKeys(t *testing.T) {
	cases := map[string]string{
		"exams.db":                       "exams.db?_pragma=foreign_keys(1)",
		"file:x?mode=memory":             "file:x?mode=memory&_pragma=foreign_keys(1)",
		"file:x?_pragma=foreign_keys(0)": "file:x?_pragma=foreign_keys(0)",
	}
	for in, want := range cases {
		if got := withForeignKeys(in); got != want {
			t.Errorf("withForeignKeys(%q) = %q, want %q", in, got, want)
		}
	}
}
