package syncx

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

type Event struct {
	Seq       int64
	SiteID    string
	Type      string
	Key       string
	DataJSON  string
	CreatedAt time.Time
}

// EventRepo appends lifecycle events to event_log. It satisfies
// exam.EventSink.
type EventRepo struct {
	db     *sql.DB
	siteID string
	now    func() time.Time
}

func NewEventRepo(db *sql.DB, siteID string) *EventRepo {
	if siteID == "" {
		siteID = "local"
	}
	return &EventRepo{db: db, siteID: siteID, now: time.Now}
}

func (r *EventRepo) Append(ctx context.Context, e Event) error {
	if e.SiteID == "" {
		e.SiteID = r.siteID
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO event_log (site_id, typ, key, data, created_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		e.SiteID, e.Type, e.Key, e.DataJSON, r.now().UnixMilli())
	return err
}

// Record marshals payload to JSON and appends it.
func (r *EventRepo) Record(ctx context.Context, typ, key string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", typ, err)
	}
	return r.Append(ctx, Event{Type: typ, Key: key, DataJSON: string(b)})
}
