package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// SQLiteLike implements Searcher for the embedded store with a substring
// match over topic, discipline and hook text.
type SQLiteLike struct {
	db *sql.DB
}

func NewSQLiteLike(db *sql.DB) *SQLiteLike {
	return &SQLiteLike{db: db}
}

func (s *SQLiteLike) Healthy() bool {
	return true
}

func (s *SQLiteLike) Search(ctx context.Context, q Query) ([]Result, int, error) {
	q = q.normalized()
	if q.Text == "" {
		return nil, 0, nil
	}

	pattern := "%" + escapeLike(strings.ToLower(q.Text)) + "%"
	where := `(lower(json_extract(doc, '$.topic')) LIKE ?1 ESCAPE '\'
		OR lower(json_extract(doc, '$.discipline')) LIKE ?1 ESCAPE '\'
		OR lower(coalesce(json_extract(doc, '$.hook.medium.text'), '')) LIKE ?1 ESCAPE '\')`
	args := []any{pattern}
	if q.Discipline != "" {
		where += " AND lower(json_extract(doc, '$.discipline')) = lower(?2)"
		args = append(args, q.Discipline)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM content WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite search count: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id,
			coalesce(json_extract(doc, '$.topic'), ''),
			coalesce(json_extract(doc, '$.discipline'), ''),
			coalesce(json_extract(doc, '$.hook.medium.text'), ''),
			coalesce(json_extract(doc, '$.contentType'), ''),
			coalesce(json_extract(doc, '$.complexity'), 0)
		FROM content
		WHERE %s
		ORDER BY created_us DESC, id DESC
		LIMIT %d OFFSET %d`, where, q.Limit, q.Offset), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite search query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Topic, &r.Discipline, &r.Snippet, &r.ContentType, &r.Complexity); err != nil {
			return nil, 0, fmt.Errorf("sqlite search scan: %w", err)
		}
		r.Snippet = snippet(r.Snippet, 30)
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns every aggregate as an index record for reindexing.
func (s *SQLiteLike) LoadAllRecords(ctx context.Context) ([]Record, error) {
	return loadRecords(ctx, s.db, "SELECT doc FROM content ORDER BY created_us DESC")
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(s)
}

func snippet(text string, words int) string {
	fields := strings.Fields(text)
	if len(fields) <= words {
		return strings.Join(fields, " ")
	}
	return strings.Join(fields[:words], " ") + " ..."
}
