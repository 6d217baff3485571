package mapping

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, sourceID string) (Mapping, error) {
	const q = `
SELECT source_id, target_id, mapping_type, created_at
FROM mappings
WHERE source_id = $1;
`
	var out Mapping
	err := s.db.QueryRowContext(ctx, q, sourceID).
		Scan(&out.SourceID, &out.TargetID, &out.MappingType, &out.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Mapping{}, ErrNotFound
		}
		return Mapping{}, fmt.Errorf("get mapping %s: %w", sourceID, err)
	}
	return out, nil
}

func (s *PostgresStore) Create(ctx context.Context, m Mapping) error {
	const q = `
INSERT INTO mappings (source_id, target_id, mapping_type, created_at)
VALUES ($1, $2, $3, $4);
`
	_, err := s.db.ExecContext(ctx, q, m.SourceID, m.TargetID, m.MappingType, m.CreatedAt)
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		// Re-read the winner so the caller can report both records.
		existing, getErr := s.Get(ctx, m.SourceID)
		if getErr != nil {
			existing = Mapping{SourceID: m.SourceID}
		}
		return &ConflictError{Existing: existing, Attempted: m}
	}
	return fmt.Errorf("create mapping %s: %w", m.SourceID, err)
}

func (s *PostgresStore) Delete(ctx context.Context, sourceID string) error {
	const q = `DELETE FROM mappings WHERE source_id = $1;`
	if _, err := s.db.ExecContext(ctx, q, sourceID); err != nil {
		return fmt.Errorf("delete mapping %s: %w", sourceID, err)
	}
	return nil
}
