package syncx

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/mind-engage/mindengage-exams/internal/db"
)

func TestRecordAppendsInOrder(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(ctx, db.DriverSQLite, "file:eventlog_test?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	r := NewEventRepo(conn, "")
	if err := r.Record(ctx, "AttemptStarted", "a1", map[string]any{"exam_id": "e1"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := r.Record(ctx, "AttemptCompleted", "a1", map[string]any{"score": 3}); err != nil {
		t.Fatalf("record: %v", err)
	}

	evs := readLog(t, conn)
	if len(evs) != 2 || evs[0].Type != "AttemptStarted" || evs[1].Type != "AttemptCompleted" {
		t.Fatalf("events = %+v", evs)
	}
	if evs[0].SiteID != "local" || evs[0].Key != "a1" {
		t.Fatalf("unexpected first event: %+v", evs[0])
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(evs[1].DataJSON), &data); err != nil || data["score"] != float64(3) {
		t.Fatalf("payload = %q (%v)", evs[1].DataJSON, err)
	}
	if evs[1].Seq <= evs[0].Seq || evs[0].CreatedAt.IsZero() {
		t.Fatalf("sequence or timestamp not assigned: %+v", evs)
	}
}

func readLog(t *testing.T, conn *sql.DB) []Event {
	t.Helper()
	rows, err := conn.Query(`SELECT seq, site_id, typ, key, data, created_at FROM event_log ORDER BY seq`)
	if err != nil {
		t.Fatalf("query event_log: %v", err)
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var e Event
		var at int64
		if err := rows.Scan(&e.Seq, &e.SiteID, &e.Type, &e.Key, &e.DataJSON, &at); err != nil {
			t.Fatalf("scan: %v", err)
		}
		e.CreatedAt = time.UnixMilli(at).UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows: %v", err)
	}
	return out
}

func TestRecordRejectsUnmarshalablePayload(t *testing.T) {
	r := NewEventRepo(nil, "")
	if err := r.Record(context.Background(), "X", "k", make(chan int)); err == nil {
		t.Fatalf("expected marshal error")
	}
}
