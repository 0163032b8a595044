package search

import (
	"context"
	"strings"

	"symposium/api/internal/content"
)

const (
	defaultLimit = 20
	maxLimit     = 50
)

// Result is a single search hit returned to the caller.
type Result struct {
	ID          string `json:"id"`
	Topic       string `json:"topic"`
	Discipline  string `json:"discipline"`
	Snippet     string `json:"snippet"`
	ContentType string `json:"contentType,omitempty"`
	Complexity  int    `json:"complexity"`
}

// Query describes a search request.
type Query struct {
	Text       string
	Discipline string // empty = all disciplines
	Limit      int
	Offset     int
}

func (q Query) normalized() Query {
	q.Text = strings.TrimSpace(q.Text)
	q.Discipline = strings.TrimSpace(q.Discipline)
	if q.Limit <= 0 {
		q.Limit = defaultLimit
	}
	if q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push content into a search index.
type Indexer interface {
	IndexContent(ctx context.Context, rec Record) error
	IndexContents(ctx context.Context, recs []Record) error
}

// Record is the data we index for an aggregate. Responses are not indexed.
type Record struct {
	ID          string   `json:"id"`
	Topic       string   `json:"topic"`
	Discipline  string   `json:"discipline"`
	HookText    string   `json:"hookText"`
	MainText    string   `json:"mainText"`
	KeyPoints   []string `json:"keyPoints"`
	ContentType string   `json:"contentType"`
	Complexity  int      `json:"complexity"`
	Creator     string   `json:"creator"`
	DateCreated int64    `json:"dateCreated"`
}

// RecordFrom flattens an aggregate into its searchable fields.
func RecordFrom(a content.Aggregate) Record {
	return Record{
		ID:          a.ID,
		Topic:       a.Topic,
		Discipline:  a.Discipline,
		HookText:    a.Hook.Medium.Text,
		MainText:    a.Main.Medium.Text,
		KeyPoints:   nonBlank(a.Main.KeyPoints),
		ContentType: string(a.ContentType),
		Complexity:  a.Complexity,
		Creator:     a.Creator,
		DateCreated: a.DateCreated.Unix(),
	}
}

func nonBlank(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
