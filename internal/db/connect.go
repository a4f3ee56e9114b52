package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite
)

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Open opens a DB, tunes the pool and ensures schema exists.
func Open(ctx context.Context, driver Driver, dsn string) (*sql.DB, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite" // modernc driver
		if dsn == "" {
			dsn = "file:exams.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
		}
		dsn = withForeignKeys(dsn)
	case DriverPostgres:
		drvName = "pgx" // pgx stdlib driver
		if dsn == "" {
			dsn = "postgres://localhost:5432/exams?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, err
	}
	tunePool(driver, db)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000;`); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite pragmas: %w", err)
		}
	}

	if err := ensureSchema(ctx, db, driver); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func tunePool(driver Driver, db *sql.DB) {
	switch driver {
	case DriverSQLite:
		// SQLite should not use many concurrent writers; keep pool small.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	default:
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	}
}

func ensureSchema(ctx context.Context, db *sql.DB, driver Driver) error {
	var schema string
	switch driver {
	case DriverSQLite:
		schema = schemaSQLite
	case DriverPostgres:
		schema = schemaPostgres
	}
	// Run as one script first; fall back to statement-by-statement for drivers
	// that reject multiple statements per Exec.
	if _, err := db.ExecContext(ctx, schema); err != nil {
		for _, stmt := range strings.Split(schema, ";") {
			if strings.TrimSpace(stmt) == "" {
				continue
			}
			if _, e := db.ExecContext(ctx, stmt); e != nil {
				return fmt.Errorf("schema failed at %q: %w", firstLine(stmt), e)
			}
		}
	}
	return nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// Timestamps are Unix milliseconds in both dialects.

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  first_name TEXT NOT NULL,
  last_name TEXT NOT NULL,
  email TEXT NOT NULL UNIQUE,
  role TEXT NOT NULL,
  password_hash TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS exams (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  duration_minutes INTEGER NOT NULL,
  start_time INTEGER NOT NULL,
  end_time INTEGER NOT NULL,
  is_active BOOLEAN NOT NULL DEFAULT 1,
  created_by_user_id TEXT NOT NULL REFERENCES users(id) ON DELETE RESTRICT,
  created_at INTEGER NOT NULL,
  updated_at INTEGER,
  CHECK (start_time < end_time)
);

CREATE TABLE IF NOT EXISTS questions (
  id TEXT PRIMARY KEY,
  exam_id TEXT NOT NULL REFERENCES exams(id) ON DELETE CASCADE,
  text TEXT NOT NULL,
  type TEXT NOT NULL,
  points INTEGER NOT NULL CHECK (points > 0),
  position INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS ix_questions_exam ON questions(exam_id);

CREATE TABLE IF NOT EXISTS question_options (
  id TEXT PRIMARY KEY,
  question_id TEXT NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
  text TEXT NOT NULL,
  is_correct BOOLEAN NOT NULL DEFAULT 0,
  position INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS ix_question_options_question ON question_options(question_id);

CREATE TABLE IF NOT EXISTS exam_attempts (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL REFERENCES users(id) ON DELETE RESTRICT,
  exam_id TEXT NOT NULL REFERENCES exams(id) ON DELETE RESTRICT,
  status TEXT NOT NULL,
  started_at INTEGER NOT NULL,
  completed_at INTEGER,
  score INTEGER,
  total_points INTEGER
);
CREATE INDEX IF NOT EXISTS ix_exam_attempts_user ON exam_attempts(user_id, started_at);
CREATE INDEX IF NOT EXISTS ix_exam_attempts_exam ON exam_attempts(exam_id, started_at);
CREATE UNIQUE INDEX IF NOT EXISTS ux_exam_attempts_in_progress
  ON exam_attempts(user_id, exam_id) WHERE status = 'InProgress';

CREATE TABLE IF NOT EXISTS answers (
  id TEXT PRIMARY KEY,
  attempt_id TEXT NOT NULL REFERENCES exam_attempts(id) ON DELETE CASCADE,
  question_id TEXT NOT NULL REFERENCES questions(id) ON DELETE RESTRICT,
  text_answer TEXT,
  selected_option_id TEXT REFERENCES question_options(id) ON DELETE RESTRICT,
  boolean_answer BOOLEAN,
  points_earned INTEGER NOT NULL DEFAULT 0,
  answered_at INTEGER NOT NULL,
  UNIQUE (attempt_id, question_id)
);

CREATE TABLE IF NOT EXISTS event_log (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  site_id TEXT NOT NULL DEFAULT 'local',
  typ TEXT NOT NULL,                         -- e.g., AttemptCompleted
  key TEXT NOT NULL,                         -- natural key: attemptID
  data TEXT NOT NULL,                        -- JSON payload
  created_at INTEGER NOT NULL
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  first_name TEXT NOT NULL,
  last_name TEXT NOT NULL,
  email TEXT NOT NULL UNIQUE,
  role TEXT NOT NULL,
  password_hash TEXT NOT NULL DEFAULT '',
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS exams (
  id TEXT PRIMARY KEY,
  title VARCHAR(200) NOT NULL,
  description VARCHAR(1000) NOT NULL DEFAULT '',
  duration_minutes INTEGER NOT NULL,
  start_time BIGINT NOT NULL,
  end_time BIGINT NOT NULL,
  is_active BOOLEAN NOT NULL DEFAULT TRUE,
  created_by_user_id TEXT NOT NULL REFERENCES users(id) ON DELETE RESTRICT,
  created_at BIGINT NOT NULL,
  updated_at BIGINT,
  CHECK (start_time < end_time)
);

CREATE TABLE IF NOT EXISTS questions (
  id TEXT PRIMARY KEY,
  exam_id TEXT NOT NULL REFERENCES exams(id) ON DELETE CASCADE,
  text VARCHAR(1000) NOT NULL,
  type VARCHAR(50) NOT NULL,
  points INTEGER NOT NULL CHECK (points > 0),
  position INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS ix_questions_exam ON questions(exam_id);

CREATE TABLE IF NOT EXISTS question_options (
  id TEXT PRIMARY KEY,
  question_id TEXT NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
  text VARCHAR(500) NOT NULL,
  is_correct BOOLEAN NOT NULL DEFAULT FALSE,
  position INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS ix_question_options_question ON question_options(question_id);

CREATE TABLE IF NOT EXISTS exam_attempts (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL REFERENCES users(id) ON DELETE RESTRICT,
  exam_id TEXT NOT NULL REFERENCES exams(id) ON DELETE RESTRICT,
  status VARCHAR(50) NOT NULL,
  started_at BIGINT NOT NULL,
  completed_at BIGINT,
  score INTEGER,
  total_points INTEGER
);
CREATE INDEX IF NOT EXISTS ix_exam_attempts_user ON exam_attempts(user_id, started_at);
CREATE INDEX IF NOT EXISTS ix_exam_attempts_exam ON exam_attempts(exam_id, started_at);
CREATE UNIQUE INDEX IF NOT EXISTS ux_exam_attempts_in_progress
  ON exam_attempts(user_id, exam_id) WHERE status = 'InProgress';

CREATE TABLE IF NOT EXISTS answers (
  id TEXT PRIMARY KEY,
  attempt_id TEXT NOT NULL REFERENCES exam_attempts(id) ON DELETE CASCADE,
  question_id TEXT NOT NULL REFERENCES questions(id) ON DELETE RESTRICT,
  text_answer VARCHAR(1000),
  selected_option_id TEXT REFERENCES question_options(id) ON DELETE RESTRICT,
  boolean_answer BOOLEAN,
  points_earned INTEGER NOT NULL DEFAULT 0,
  answered_at BIGINT NOT NULL,
  UNIQUE (attempt_id, question_id)
);

CREATE TABLE IF NOT EXISTS event_log (
  seq BIGSERIAL PRIMARY KEY,
  site_id TEXT NOT NULL DEFAULT 'local',
  typ TEXT NOT NULL,
  key TEXT NOT NULL,
  data TEXT NOT NULL,
  created_at BIGINT NOT NULL
);
`

// withForeignKeys adds the foreign_keys pragma to a sqlite DSN unless the
// caller set it. The pragma is per connection, so it has to live in the DSN
// to survive the pool replacing its connection.
func withForeignKeys(dsn string) string {
	if strings.Contains(dsn, "_pragma=foreign_keys") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)"
}
