package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"symposium/api/internal/content"
)

// PgFTS implements Searcher using PostgreSQL full-text search over the
// generated content.fts column.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. A down database already fails readiness.
func (p *PgFTS) Healthy() bool {
	return true
}

func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	q = q.normalized()
	if q.Text == "" {
		return nil, 0, nil
	}

	where := "c.fts @@ plainto_tsquery('english', $1)"
	args := []any{q.Text}
	if q.Discipline != "" {
		where += " AND lower(c.doc->>'discipline') = lower($2)"
		args = append(args, q.Discipline)
	}

	var total int
	if err := p.db.QueryRowContext(ctx, "SELECT count(*) FROM content c WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT c.id,
			coalesce(c.doc->>'topic', ''),
			coalesce(c.doc->>'discipline', ''),
			ts_headline('english', coalesce(c.doc#>>'{hook,medium,text}', ''), plainto_tsquery('english', $1), 'MaxFragments=1,MaxWords=30'),
			coalesce(c.doc->>'contentType', ''),
			coalesce((c.doc->>'complexity')::int, 0)
		FROM content c
		WHERE %s
		ORDER BY ts_rank(c.fts, plainto_tsquery('english', $1)) DESC, c.created_at DESC
		LIMIT %d OFFSET %d`, where, q.Limit, q.Offset), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Topic, &r.Discipline, &r.Snippet, &r.ContentType, &r.Complexity); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns every aggregate as an index record for reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]Record, error) {
	return loadRecords(ctx, p.db, "SELECT doc FROM content ORDER BY created_at DESC")
}

func loadRecords(ctx context.Context, db *sql.DB, query string) ([]Record, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("load content: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan content: %w", err)
		}
		var item content.Aggregate
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, fmt.Errorf("decode content: %w", err)
		}
		records = append(records, RecordFrom(item))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate content: %w", err)
	}
	return records, nil
}
