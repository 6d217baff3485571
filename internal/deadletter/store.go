// Package deadletter parks retry messages that exhausted their attempt
// budget. Rows stay until an operator inspects them and either requeues
// or deletes them via the admin API.
package deadletter

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/k1networth/syncbridge/internal/events"
)

var ErrNotFound = errors.New("dead letter not found")

type Record struct {
	ID                  int64             `json:"id"`
	EntityName          string            `json:"entityName"`
	Mapping             json.RawMessage   `json:"mapping"`
	TelemetryAttributes map[string]string `json:"telemetryAttributes"`
	Attempts            int               `json:"attempts"`
	Reason              string            `json:"reason"`
	CreatedAt           time.Time         `json:"createdAt"`
}

// Message rebuilds the retry message this record was parked from.
func (r Record) Message() events.RetryMessage {
	return events.RetryMessage{
		Mapping:             r.Mapping,
		TelemetryAttributes: r.TelemetryAttributes,
		EntityName:          r.EntityName,
	}
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Insert(ctx context.Context, msg events.RetryMessage, attempts int, reason string) error {
	attrs, err := json.Marshal(msg.TelemetryAttributes)
	if err != nil {
		return fmt.Errorf("encode telemetry attributes: %w", err)
	}

	const q = `
INSERT INTO dead_letters (entity_name, mapping, telemetry_attributes, attempts, reason, created_at)
VALUES ($1, $2, $3, $4, $5, now());
`
	if _, err := s.db.ExecContext(ctx, q, msg.EntityName, []byte(msg.Mapping), attrs, attempts, reason); err != nil {
		return fmt.Errorf("insert dead letter: %w", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}

	const q = `
SELECT id, entity_name, mapping, telemetry_attributes, attempts, reason, created_at
FROM dead_letters
ORDER BY created_at
LIMIT $1;
`
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		var rec Record
		var mapping, attrs []byte
		if err := rows.Scan(&rec.ID, &rec.EntityName, &mapping, &attrs, &rec.Attempts, &rec.Reason, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Mapping = mapping
		if len(attrs) > 0 {
			if err := json.Unmarshal(attrs, &rec.TelemetryAttributes); err != nil {
				return nil, fmt.Errorf("decode telemetry attributes: %w", err)
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, id int64) (Record, error) {
	const q = `
SELECT id, entity_name, mapping, telemetry_attributes, attempts, reason, created_at
FROM dead_letters
WHERE id = $1;
`
	var rec Record
	var mapping, attrs []byte
	err := s.db.QueryRowContext(ctx, q, id).
		Scan(&rec.ID, &rec.EntityName, &mapping, &attrs, &rec.Attempts, &rec.Reason, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("get dead letter %d: %w", id, err)
	}
	rec.Mapping = mapping
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &rec.TelemetryAttributes); err != nil {
			return Record{}, fmt.Errorf("decode telemetry attributes: %w", err)
		}
	}
	return rec, nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	const q = `DELETE FROM dead_letters WHERE id = $1;`
	if _, err := s.db.ExecContext(ctx, q, id); err != nil {
		return fmt.Errorf("delete dead letter %d: %w", id, err)
	}
	return nil
}
