package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLiteStore is the embedded single-file backend. Documents live in a TEXT
// column and are mutated with SQLite's JSON functions.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates the schema if needed.
func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS content (
			id TEXT PRIMARY KEY,
			created_us INTEGER NOT NULL,
			doc TEXT NOT NULL CHECK (json_valid(doc)),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_content_feed ON content (created_us DESC, id DESC)`,
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("ensure sqlite schema: %w", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO content (id, created_us, doc)
		VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			created_us=excluded.created_us,
			doc=excluded.doc,
			updated_at=strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
	`, rec.ID, rec.CreatedAt.UnixMicro(), string(rec.Doc))
	if err != nil {
		return fmt.Errorf("upsert content: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) ([]byte, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM content WHERE id=?`, id).Scan(&doc)
	if err != nil {
		return nil, err
	}
	return []byte(doc), nil
}

func (s *SQLiteStore) Page(ctx context.Context, limit int, after *Cursor) ([]Record, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if after != nil {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, created_us, doc
			FROM content
			WHERE created_us < ? OR (created_us = ? AND id < ?)
			ORDER BY created_us DESC, id DESC
			LIMIT ?
		`, after.CreatedAt.UnixMicro(), after.CreatedAt.UnixMicro(), after.ID, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, created_us, doc
			FROM content
			ORDER BY created_us DESC, id DESC
			LIMIT ?
		`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query feed: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0, limit)
	for rows.Next() {
		var (
			rec    Record
			micros int64
			rawDoc string
		)
		if err := rows.Scan(&rec.ID, &micros, &rawDoc); err != nil {
			return nil, fmt.Errorf("scan feed row: %w", err)
		}
		rec.CreatedAt = time.UnixMicro(micros).UTC()
		rec.Doc = []byte(rawDoc)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feed: %w", err)
	}
	return records, nil
}

func (s *SQLiteStore) AppendResponse(ctx context.Context, id string, response []byte) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE content
		SET doc = CASE
				WHEN json_type(doc, '$.responses') = 'array' THEN json_insert(doc, '$.responses[#]', json(?1))
				ELSE json_set(doc, '$.responses', json_array(json(?1)))
			END,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
		WHERE id = ?2
	`, string(response), id)
	if err != nil {
		return false, fmt.Errorf("append response: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("append response rows: %w", err)
	}
	return affected > 0, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
