// Package store persists content aggregates as JSON documents keyed by id,
// with responses embedded inline.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"symposium/api/internal/content"
	"symposium/api/internal/util"
)

const (
	DefaultFeedLimit = 10
	MaxFeedLimit     = 50
)

// Record is one stored document plus the columns it is ordered by.
type Record struct {
	ID        string
	CreatedAt time.Time
	Doc       []byte
}

// Cursor marks the last record of a feed page.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// Backend is the document store collaborator. AppendResponse must append in
// a single atomic operation and report whether the parent exists. Get
// returns sql.ErrNoRows for a missing key.
type Backend interface {
	Upsert(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) ([]byte, error)
	Page(ctx context.Context, limit int, after *Cursor) ([]Record, error)
	AppendResponse(ctx context.Context, id string, response []byte) (bool, error)
	Ping(ctx context.Context) error
}

// Page is one slice of the feed, newest first.
type Page struct {
	Items      []content.Aggregate `json:"items"`
	NextCursor string              `json:"nextCursor,omitempty"`
}

// Repository implements the content persistence contract on top of a Backend.
type Repository struct {
	backend Backend
	now     func() time.Time
	newID   func() string
}

func NewRepository(backend Backend) *Repository {
	return &Repository{
		backend: backend,
		now:     time.Now,
		newID:   util.NewID,
	}
}

// Create upserts the aggregate keyed by its id and returns that id. A missing
// id or creation date is filled in. The document keeps the date in UTC at
// full precision; the ordering column and cursors use microseconds.
func (r *Repository) Create(ctx context.Context, item content.Aggregate) (string, error) {
	if strings.TrimSpace(item.ID) == "" {
		item.ID = r.newID()
	}
	if item.DateCreated.IsZero() {
		item.DateCreated = r.now()
	}
	item.DateCreated = item.DateCreated.UTC()
	item.EnsureSections()

	if err := content.Validate(item); err != nil {
		return "", err
	}

	doc, err := json.Marshal(item)
	if err != nil {
		return "", fmt.Errorf("marshal content %s: %w", item.ID, err)
	}
	if err := r.backend.Upsert(ctx, Record{ID: item.ID, CreatedAt: orderingTime(item.DateCreated), Doc: doc}); err != nil {
		return "", fmt.Errorf("create content %s: %w: %w", item.ID, content.ErrNotPersisted, err)
	}
	return item.ID, nil
}

// GetByID loads one aggregate.
func (r *Repository) GetByID(ctx context.Context, id string) (content.Aggregate, error) {
	doc, err := r.backend.Get(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return content.Aggregate{}, fmt.Errorf("get content %s: %w", id, content.ErrNotFound)
	}
	if err != nil {
		return content.Aggregate{}, fmt.Errorf("get content %s: %w: %w", id, content.ErrUnavailable, err)
	}
	var item content.Aggregate
	if err := json.Unmarshal(doc, &item); err != nil {
		return content.Aggregate{}, fmt.Errorf("decode content %s: %w", id, err)
	}
	return item, nil
}

// FeedPage returns up to limit aggregates ordered by dateCreated descending
// with ties broken by id. An empty cursor starts at the newest item.
func (r *Repository) FeedPage(ctx context.Context, limit int, cursor string) (Page, error) {
	if limit <= 0 {
		limit = DefaultFeedLimit
	}
	if limit > MaxFeedLimit {
		limit = MaxFeedLimit
	}
	after, err := ParseCursor(cursor)
	if err != nil {
		return Page{}, err
	}

	records, err := r.backend.Page(ctx, limit, after)
	if err != nil {
		return Page{}, fmt.Errorf("feed page (limit=%d): %w: %w", limit, content.ErrUnavailable, err)
	}

	page := Page{Items: make([]content.Aggregate, 0, len(records))}
	for _, rec := range records {
		var item content.Aggregate
		if err := json.Unmarshal(rec.Doc, &item); err != nil {
			return Page{}, fmt.Errorf("decode content %s: %w", rec.ID, err)
		}
		page.Items = append(page.Items, item)
	}
	if len(records) == limit {
		last := records[len(records)-1]
		page.NextCursor = FormatCursor(Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return page, nil
}

// AppendResponse assigns the response id and date when missing, appends it to
// the parent's responses atomically and returns the response id. The
// updated parent is not returned; callers re-fetch it with GetByID.
func (r *Repository) AppendResponse(ctx context.Context, contentID string, response content.Response) (string, error) {
	if strings.TrimSpace(contentID) == "" {
		return "", &content.ValidationError{Fields: []content.FieldError{{Field: "contentId", Message: "contentId is required"}}}
	}
	if strings.TrimSpace(response.ID) == "" {
		response.ID = r.newID()
	}
	if response.DateCreated.IsZero() {
		response.DateCreated = r.now()
	}
	response.DateCreated = response.DateCreated.UTC()
	if strings.TrimSpace(response.Author) == "" {
		response.Author = content.DefaultAuthor
	}
	if response.Citations == nil {
		response.Citations = []content.Citation{}
	}

	if err := content.ValidateResponse(response); err != nil {
		return "", err
	}

	doc, err := json.Marshal(response)
	if err != nil {
		return "", fmt.Errorf("marshal response: %w", err)
	}
	found, err := r.backend.AppendResponse(ctx, contentID, doc)
	if err != nil {
		return "", fmt.Errorf("append response to %s: %w: %w", contentID, content.ErrUnavailable, err)
	}
	if !found {
		return "", fmt.Errorf("append response to %s: %w", contentID, content.ErrNotFound)
	}
	return response.ID, nil
}

// Ping checks that the backend is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.backend.Ping(ctx)
}

// orderingTime is the precision Postgres timestamptz keeps.
func orderingTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// FormatCursor encodes a cursor as "<unix micros>::<id>".
func FormatCursor(c Cursor) string {
	return fmt.Sprintf("%d::%s", c.CreatedAt.UnixMicro(), c.ID)
}

// ParseCursor decodes a cursor produced by FormatCursor. The empty string
// yields nil.
func ParseCursor(raw string) (*Cursor, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	micros, id, ok := strings.Cut(raw, "::")
	if !ok || id == "" {
		return nil, invalidCursor(raw)
	}
	n, err := strconv.ParseInt(micros, 10, 64)
	if err != nil {
		return nil, invalidCursor(raw)
	}
	return &Cursor{CreatedAt: time.UnixMicro(n).UTC(), ID: id}, nil
}

func invalidCursor(raw string) error {
	return &content.ValidationError{Fields: []content.FieldError{{Field: "cursor", Message: fmt.Sprintf("invalid cursor %q", raw)}}}
}
