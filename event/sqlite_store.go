package event

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/chorusflow/chorus/model"
	_ "modernc.org/sqlite"
)

// SqliteStore is the durable event log. The schema mirrors the in-memory
// layout: one events table with an aggregate index and a type index.
type SqliteStore struct {
	db       *sql.DB
	handlers *handlerSet
}

var _ Store = new(SqliteStore)

func NewSqliteStore(path string) (*SqliteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// modernc sqlite serializes writes through a single connection
	db.SetMaxOpenConns(1)
	s := &SqliteStore{db: db, handlers: newHandlerSet()}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SqliteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			aggregate_id TEXT NOT NULL,
			aggregate_type TEXT NOT NULL,
			correlation_id TEXT NOT NULL DEFAULT '',
			causation_id TEXT NOT NULL DEFAULT '',
			payload TEXT NOT NULL DEFAULT '{}',
			metadata TEXT NOT NULL DEFAULT '{}',
			at INTEGER NOT NULL,
			priority INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_events_aggregate ON events(aggregate_type, aggregate_id, at);
		CREATE INDEX IF NOT EXISTS idx_events_type ON events(type, at);
	`)
	return err
}

func (s *SqliteStore) Append(ev *model.Event) error {
	fill(ev)
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return model.StorageError{Op: "append", Err: err}
	}
	metadata, err := json.Marshal(ev.Metadata)
	if err != nil {
		return model.StorageError{Op: "append", Err: err}
	}
	_, err = s.db.Exec(`
		INSERT INTO events (id, type, name, aggregate_id, aggregate_type, correlation_id, causation_id, payload, metadata, at, priority)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.Id, string(ev.Type), ev.Name, ev.AggregateId, ev.AggregateType,
		ev.CorrelationId, ev.CausationId, string(payload), string(metadata),
		ev.Timestamp.UnixNano(), ev.Priority,
	)
	if err != nil {
		return model.StorageError{Op: "append", Err: err}
	}
	s.handlers.dispatch(*ev)
	return nil
}

func (s *SqliteStore) AggregateEvents(aggregateId string, aggregateType string) ([]model.Event, error) {
	return s.query(`
		SELECT id, type, name, aggregate_id, aggregate_type, correlation_id, causation_id, payload, metadata, at, priority
		FROM events WHERE aggregate_type = ? AND aggregate_id = ? ORDER BY at ASC`,
		aggregateType, aggregateId)
}

func (s *SqliteStore) EventsByType(t model.EventType, limit int) ([]model.Event, error) {
	if limit <= 0 {
		limit = -1
	}
	events, err := s.query(`
		SELECT id, type, name, aggregate_id, aggregate_type, correlation_id, causation_id, payload, metadata, at, priority
		FROM events WHERE type = ? ORDER BY at DESC LIMIT ?`, string(t), limit)
	if err != nil {
		return nil, err
	}
	reverse(events)
	return events, nil
}

func (s *SqliteStore) Recent(limit int) ([]model.Event, error) {
	if limit <= 0 {
		limit = -1
	}
	events, err := s.query(`
		SELECT id, type, name, aggregate_id, aggregate_type, correlation_id, causation_id, payload, metadata, at, priority
		FROM events ORDER BY at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	reverse(events)
	return events, nil
}

func (s *SqliteStore) query(q string, args ...any) ([]model.Event, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, model.StorageError{Op: "query", Err: err}
	}
	defer rows.Close()
	var out []model.Event
	for rows.Next() {
		var (
			ev                model.Event
			typ               string
			payload, metadata string
			at                int64
		)
		if err := rows.Scan(&ev.Id, &typ, &ev.Name, &ev.AggregateId, &ev.AggregateType,
			&ev.CorrelationId, &ev.CausationId, &payload, &metadata, &at, &ev.Priority); err != nil {
			return nil, model.StorageError{Op: "scan", Err: err}
		}
		ev.Type = model.EventType(typ)
		ev.Timestamp = time.Unix(0, at)
		json.Unmarshal([]byte(payload), &ev.Payload)
		json.Unmarshal([]byte(metadata), &ev.Metadata)
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *SqliteStore) Subscribe(t model.EventType, h Handler) {
	s.handlers.subscribe(t, h)
}

func (s *SqliteStore) Replay(aggregateId string, aggregateType string) (*ReplayState, error) {
	events, err := s.AggregateEvents(aggregateId, aggregateType)
	if err != nil {
		return nil, err
	}
	return ReplayEvents(aggregateId, aggregateType, events), nil
}

func (s *SqliteStore) Close() error {
	return s.db.Close()
}

func reverse(events []model.Event) {
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
}
