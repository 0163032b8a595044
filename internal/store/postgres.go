package store

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore keeps each aggregate in a JSONB column.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Upsert(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO content (id, created_at, doc)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (id) DO UPDATE SET created_at=EXCLUDED.created_at, doc=EXCLUDED.doc, updated_at=NOW()
	`, rec.ID, rec.CreatedAt, string(rec.Doc))
	if err != nil {
		return fmt.Errorf("upsert content: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) ([]byte, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM content WHERE id=$1`, id).Scan(&doc)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *PostgresStore) Page(ctx context.Context, limit int, after *Cursor) ([]Record, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if after != nil {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, created_at, doc
			FROM content
			WHERE (created_at, id) < ($1, $2)
			ORDER BY created_at DESC, id DESC
			LIMIT $3
		`, after.CreatedAt, after.ID, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, created_at, doc
			FROM content
			ORDER BY created_at DESC, id DESC
			LIMIT $1
		`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query feed: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0, limit)
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.CreatedAt, &rec.Doc); err != nil {
			return nil, fmt.Errorf("scan feed row: %w", err)
		}
		rec.CreatedAt = rec.CreatedAt.UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feed: %w", err)
	}
	return records, nil
}

// AppendResponse pushes onto doc.responses inside one UPDATE, so concurrent
// appends to the same row serialize on the row lock instead of overwriting
// each other.
func (s *PostgresStore) AppendResponse(ctx context.Context, id string, response []byte) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE content
		SET doc = jsonb_set(
				doc,
				'{responses}',
				CASE WHEN jsonb_typeof(doc->'responses') = 'array' THEN doc->'responses' ELSE '[]'::jsonb END
					|| jsonb_build_array($2::jsonb)
			),
			updated_at = NOW()
		WHERE id = $1
	`, id, string(response))
	if err != nil {
		return false, fmt.Errorf("append response: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("append response rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
