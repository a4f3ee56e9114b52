package exam

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mind-engage/mindengage-exams/internal/db"
	"github.com/mind-engage/mindengage-exams/internal/grading"
)

// SQLStore implements Store over database/sql. The same statements run on
// sqlite (modernc) and postgres (pgx); both accept $n placeholders.
type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
}

func NewSQLStore(conn *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: conn, driver: driver}
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func millis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nullMillis(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromMillis(n.Int64)
	return &t
}

func nullInt(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func nullString(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	v := n.String
	return &v
}

func nullBool(n sql.NullBool) *bool {
	if !n.Valid {
		return nil
	}
	v := n.Bool
	return &v
}

// ---------- exams ----------

func (s *SQLStore) CreateExam(ctx context.Context, e Exam) (Exam, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO exams (id, title, description, duration_minutes, start_time, end_time,
			                   is_active, created_by_user_id, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NULL)`,
			e.ID, e.Title, e.Description, e.DurationMinutes, millis(e.StartTime), millis(e.EndTime),
			e.IsActive, e.CreatedByUserID, millis(e.CreatedAt)); err != nil {
			return fmt.Errorf("insert exam: %w", err)
		}
		for _, q := range e.Questions {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO questions (id, exam_id, text, type, points, position)
				VALUES ($1,$2,$3,$4,$5,$6)`,
				q.ID, e.ID, q.Text, string(q.Kind), q.Points, q.Order); err != nil {
				return fmt.Errorf("insert question: %w", err)
			}
			for _, o := range q.Options {
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO question_options (id, question_id, text, is_correct, position)
					VALUES ($1,$2,$3,$4,$5)`,
					o.ID, q.ID, o.Text, o.IsCorrect, o.Order); err != nil {
					return fmt.Errorf("insert option: %w", err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return Exam{}, err
	}
	return s.GetExam(ctx, e.ID)
}

const examColumns = `
	SELECT e.id, e.title, e.description, e.duration_minutes, e.start_time, e.end_time,
	       e.is_active, e.created_by_user_id, e.created_at, e.updated_at,
	       COALESCE(u.first_name || ' ' || u.last_name, '')
	FROM exams e LEFT JOIN users u ON u.id = e.created_by_user_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExam(r rowScanner) (Exam, error) {
	var (
		e              Exam
		start, end, at int64
		updated        sql.NullInt64
	)
	if err := r.Scan(&e.ID, &e.Title, &e.Description, &e.DurationMinutes, &start, &end,
		&e.IsActive, &e.CreatedByUserID, &at, &updated, &e.CreatedByUserName); err != nil {
		return Exam{}, err
	}
	e.StartTime, e.EndTime, e.CreatedAt = fromMillis(start), fromMillis(end), fromMillis(at)
	e.UpdatedAt = nullMillis(updated)
	return e, nil
}

func (s *SQLStore) GetExam(ctx context.Context, id string) (Exam, error) {
	return s.getExam(ctx, s.db, id)
}

func (s *SQLStore) getExam(ctx context.Context, q querier, id string) (Exam, error) {
	e, err := scanExam(q.QueryRowContext(ctx, examColumns+` WHERE e.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Exam{}, fmt.Errorf("exam %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return Exam{}, err
	}
	if e.Questions, err = s.loadQuestions(ctx, q, id); err != nil {
		return Exam{}, err
	}
	return e, nil
}

func (s *SQLStore) ListExams(ctx context.Context, opts ExamListOpts) ([]Exam, error) {
	var (
		where []string
		args  []any
	)
	if opts.ActiveOnly {
		args = append(args, true)
		where = append(where, fmt.Sprintf("e.is_active = $%d", len(args)))
	}
	if opts.CreatorID != "" {
		args = append(args, opts.CreatorID)
		where = append(where, fmt.Sprintf("e.created_by_user_id = $%d", len(args)))
	}
	query := examColumns
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY e.created_at DESC, e.id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	out := []Exam{}
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// rows must be closed before further queries: sqlite runs on one connection.
	for i := range out {
		if out[i].Questions, err = s.loadQuestions(ctx, s.db, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *SQLStore) loadQuestions(ctx context.Context, q querier, examID string) ([]Question, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, exam_id, text, type, points, position
		FROM questions WHERE exam_id = $1 ORDER BY position, id`, examID)
	if err != nil {
		return nil, err
	}
	var qs []Question
	index := map[string]int{}
	for rows.Next() {
		var qq Question
		var kind string
		if err := rows.Scan(&qq.ID, &qq.ExamID, &qq.Text, &kind, &qq.Points, &qq.Order); err != nil {
			rows.Close()
			return nil, err
		}
		qq.Kind = QuestionKind(kind)
		index[qq.ID] = len(qs)
		qs = append(qs, qq)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	orows, err := q.QueryContext(ctx, `
		SELECT o.id, o.question_id, o.text, o.is_correct, o.position
		FROM question_options o JOIN questions q ON q.id = o.question_id
		WHERE q.exam_id = $1 ORDER BY o.position, o.id`, examID)
	if err != nil {
		return nil, err
	}
	defer orows.Close()
	for orows.Next() {
		var o QuestionOption
		if err := orows.Scan(&o.ID, &o.QuestionID, &o.Text, &o.IsCorrect, &o.Order); err != nil {
			return nil, err
		}
		if i, ok := index[o.QuestionID]; ok {
			qs[i].Options = append(qs[i].Options, o)
		}
	}
	return qs, orows.Err()
}

func (s *SQLStore) DeactivateExam(ctx context.Context, id, ownerID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE exams SET is_active = $1, updated_at = $2
		WHERE id = $3 AND created_by_user_id = $4`,
		false, millis(at), id, ownerID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("exam %q: %w", id, ErrNotFound)
	}
	return nil
}

// ---------- users ----------

func (s *SQLStore) PutUser(ctx context.Context, u User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, first_name, last_name, email, role, password_hash, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE SET
		  first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name,
		  email = EXCLUDED.email, role = EXCLUDED.role, password_hash = EXCLUDED.password_hash`,
		u.ID, u.FirstName, u.LastName, strings.ToLower(u.Email), string(u.Role), u.PasswordHash, millis(u.CreatedAt))
	return err
}

const userColumns = `SELECT id, first_name, last_name, email, role, password_hash, created_at FROM users`

func scanUser(r rowScanner) (User, error) {
	var u User
	var role string
	var at int64
	if err := r.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &role, &u.PasswordHash, &at); err != nil {
		return User{}, err
	}
	u.Role = Role(role)
	u.CreatedAt = fromMillis(at)
	return u, nil
}

func (s *SQLStore) GetUser(ctx context.Context, id string) (User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, userColumns+` WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("user %q: %w", id, ErrNotFound)
	}
	return u, err
}

func (s *SQLStore) FindUserByEmail(ctx context.Context, email string) (User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, userColumns+` WHERE email = $1`, strings.ToLower(strings.TrimSpace(email))))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("user %q: %w", email, ErrNotFound)
	}
	return u, err
}

// ---------- attempts ----------

func (s *SQLStore) CreateAttempt(ctx context.Context, a Attempt) (Attempt, error) {
	var total sql.NullInt64
	if a.TotalPoints != nil {
		total = sql.NullInt64{Int64: int64(*a.TotalPoints), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO exam_attempts (id, user_id, exam_id, status, started_at, completed_at, score, total_points)
		VALUES ($1,$2,$3,$4,$5,NULL,NULL,$6)`,
		a.ID, a.UserID, a.ExamID, string(a.Status), millis(a.StartedAt), total)
	if db.IsUniqueViolation(err) {
		return Attempt{}, ErrAttemptExists
	}
	if err != nil {
		return Attempt{}, fmt.Errorf("insert attempt: %w", err)
	}
	return s.GetAttempt(ctx, a.ID)
}

func (s *SQLStore) FindInProgressAttempt(ctx context.Context, userID, examID string) (Attempt, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM exam_attempts WHERE user_id = $1 AND exam_id = $2 AND status = $3`,
		userID, examID, string(StatusInProgress)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, fmt.Errorf("in-progress attempt for %q on %q: %w", userID, examID, ErrNotFound)
	}
	if err != nil {
		return Attempt{}, err
	}
	return s.GetAttempt(ctx, id)
}

func (s *SQLStore) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	return s.loadAttempt(ctx, s.db, id)
}

func (s *SQLStore) ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error) {
	var (
		where []string
		args  []any
	)
	if opts.ExamID != "" {
		args = append(args, opts.ExamID)
		where = append(where, fmt.Sprintf("exam_id = $%d", len(args)))
	}
	if opts.UserID != "" {
		args = append(args, opts.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	query := `SELECT id FROM exam_attempts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	out := make([]Attempt, 0, len(ids))
	for _, id := range ids {
		a, err := s.loadAttempt(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// loadAttempt reads the attempt with its answers, each linked to its question
// and selected option, plus the user's name and the exam title.
func (s *SQLStore) loadAttempt(ctx context.Context, q querier, id string) (Attempt, error) {
	var (
		a            Attempt
		status       string
		started      int64
		completed    sql.NullInt64
		score, total sql.NullInt64
	)
	err := q.QueryRowContext(ctx, `
		SELECT a.id, a.exam_id, a.user_id, a.status, a.started_at, a.completed_at, a.score, a.total_points,
		       COALESCE(u.first_name || ' ' || u.last_name, ''), COALESCE(e.title, '')
		FROM exam_attempts a
		LEFT JOIN users u ON u.id = a.user_id
		LEFT JOIN exams e ON e.id = a.exam_id
		WHERE a.id = $1`, id).Scan(
		&a.ID, &a.ExamID, &a.UserID, &status, &started, &completed, &score, &total,
		&a.UserName, &a.ExamTitle)
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, fmt.Errorf("attempt %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return Attempt{}, err
	}
	a.Status = AttemptStatus(status)
	a.StartedAt = fromMillis(started)
	a.CompletedAt = nullMillis(completed)
	a.Score = nullInt(score)
	a.TotalPoints = nullInt(total)

	rows, err := q.QueryContext(ctx, `
		SELECT id, attempt_id, question_id, text_answer, selected_option_id, boolean_answer,
		       points_earned, answered_at
		FROM answers WHERE attempt_id = $1 ORDER BY answered_at, id`, id)
	if err != nil {
		return Attempt{}, err
	}
	a.Answers = []Answer{}
	for rows.Next() {
		var (
			ans      Answer
			text     sql.NullString
			selected sql.NullString
			boolean  sql.NullBool
			at       int64
		)
		if err := rows.Scan(&ans.ID, &ans.AttemptID, &ans.QuestionID, &text, &selected, &boolean,
			&ans.PointsEarned, &at); err != nil {
			rows.Close()
			return Attempt{}, err
		}
		ans.TextAnswer = nullString(text)
		ans.SelectedOptionID = nullString(selected)
		ans.BooleanAnswer = nullBool(boolean)
		ans.AnsweredAt = fromMillis(at)
		a.Answers = append(a.Answers, ans)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return Attempt{}, err
	}
	rows.Close()

	if len(a.Answers) == 0 {
		return a, nil
	}
	qs, err := s.loadQuestions(ctx, q, a.ExamID)
	if err != nil {
		return Attempt{}, err
	}
	byID := make(map[string]*Question, len(qs))
	for i := range qs {
		byID[qs[i].ID] = &qs[i]
	}
	for i := range a.Answers {
		qq, ok := byID[a.Answers[i].QuestionID]
		if !ok {
			continue
		}
		a.Answers[i].Question = qq
		if sel := a.Answers[i].SelectedOptionID; sel != nil {
			if o, ok := qq.Option(*sel); ok {
				a.Answers[i].SelectedOption = &o
			}
		}
	}
	return a, nil
}

// lockInProgress takes the attempt's row lock inside tx and confirms it is
// still in progress. The no-op UPDATE serialises concurrent writers on both
// engines: postgres locks the row, sqlite takes the database write lock.
func lockInProgress(ctx context.Context, tx *sql.Tx, attemptID string) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE exam_attempts SET status = status WHERE id = $1 AND status = $2`,
		attemptID, string(StatusInProgress))
	if err != nil {
		return fmt.Errorf("lock attempt: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM exam_attempts WHERE id = $1`, attemptID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("attempt %q: %w", attemptID, ErrNotFound)
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("attempt %q: %w", attemptID, ErrInvalidState)
}

func (s *SQLStore) SaveAnswer(ctx context.Context, a Answer) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := lockInProgress(ctx, tx, a.AttemptID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO answers (id, attempt_id, question_id, text_answer, selected_option_id,
			                     boolean_answer, points_earned, answered_at)
			VALUES ($1,$2,$3,$4,$5,$6,0,$7)
			ON CONFLICT (attempt_id, question_id) DO UPDATE SET
			  text_answer = EXCLUDED.text_answer,
			  selected_option_id = EXCLUDED.selected_option_id,
			  boolean_answer = EXCLUDED.boolean_answer,
			  answered_at = EXCLUDED.answered_at`,
			a.ID, a.AttemptID, a.QuestionID, a.TextAnswer, a.SelectedOptionID, a.BooleanAnswer, millis(a.AnsweredAt))
		if err != nil {
			return fmt.Errorf("upsert answer: %w", err)
		}
		return nil
	})
}

func (s *SQLStore) FinalizeAttempt(ctx context.Context, attemptID string, at time.Time, score ScoreFunc) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := lockInProgress(ctx, tx, attemptID); err != nil {
			return err
		}
		a, err := s.loadAttempt(ctx, tx, attemptID)
		if err != nil {
			return err
		}
		results := make([]grading.Result, 0, len(a.Answers))
		for _, ans := range a.Answers {
			var res grading.Result
			if ans.Question != nil {
				res = score(ans, *ans.Question)
			}
			results = append(results, res)
			if _, err := tx.ExecContext(ctx, `UPDATE answers SET points_earned = $1 WHERE id = $2`, res.AutoPoints, ans.ID); err != nil {
				return fmt.Errorf("score answer: %w", err)
			}
		}
		total := grading.Total(results)
		_, err = tx.ExecContext(ctx, `
			UPDATE exam_attempts SET status = $1, score = $2, completed_at = $3 WHERE id = $4`,
			string(StatusCompleted), total, millis(at), attemptID)
		if err != nil {
			return fmt.Errorf("complete attempt: %w", err)
		}
		return nil
	})
}
