package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"

	"symposium/api/internal/logger"
)

const idxContent = "symposium_content"

// Meili implements Engine via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the content index.
// An unreachable server is tolerated; the health loop picks it up later.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		logger.Named("search").Warn().Err(err).Str("url", url).Msg("meilisearch unavailable")
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	log := logger.Named("search")
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxContent,
		PrimaryKey: "id",
	}); err != nil {
		log.Debug().Err(err).Str("index", idxContent).Msg("create index (may already exist)")
	}

	index := m.client.Index(idxContent)
	filterable := []interface{}{"discipline", "contentType", "complexity"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		log.Warn().Err(err).Str("index", idxContent).Msg("update filterable attributes")
	}
	searchable := []string{"topic", "discipline", "hookText", "keyPoints", "mainText"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		log.Warn().Err(err).Str("index", idxContent).Msg("update searchable attributes")
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				logger.Named("search").Info().Msg("meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

func (m *Meili) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}
	q = q.normalized()

	resp, err := m.client.MultiSearchWithContext(ctx, &meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{buildRequest(q)},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch search: %w", err)
	}

	var results []Result
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		for _, hit := range sr.Hits {
			results = append(results, hitToResult(hit))
		}
	}
	return results, total, nil
}

func buildRequest(q Query) *meili.SearchRequest {
	sr := &meili.SearchRequest{
		IndexUID:              idxContent,
		Query:                 q.Text,
		Limit:                 int64(q.Limit),
		Offset:                int64(q.Offset),
		AttributesToHighlight: []string{"topic", "hookText"},
		HighlightPreTag:       "<mark>",
		HighlightPostTag:      "</mark>",
	}
	if q.Discipline != "" {
		sr.Filter = []string{fmt.Sprintf("discipline = %q", q.Discipline)}
	}
	return sr
}

func hitToResult(hit meili.Hit) Result {
	return Result{
		ID:          decodeString(hit, "id"),
		Topic:       firstNonBlank(decodeFormattedString(hit, "topic"), decodeString(hit, "topic")),
		Discipline:  decodeString(hit, "discipline"),
		Snippet:     firstNonBlank(decodeFormattedString(hit, "hookText"), decodeString(hit, "hookText")),
		ContentType: decodeString(hit, "contentType"),
		Complexity:  decodeInt(hit, "complexity"),
	}
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeInt(hit meili.Hit, key string) int {
	raw, ok := hit[key]
	if !ok {
		return 0
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	return 0
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]json.RawMessage
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(formatted[key], &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// IndexContent adds or replaces one aggregate in the index.
func (m *Meili) IndexContent(ctx context.Context, rec Record) error {
	_, err := m.client.Index(idxContent).AddDocumentsWithContext(ctx, []Record{rec}, nil)
	return err
}

// IndexContents bulk-indexes aggregates.
func (m *Meili) IndexContents(ctx context.Context, recs []Record) error {
	if len(recs) == 0 {
		return nil
	}
	_, err := m.client.Index(idxContent).AddDocumentsWithContext(ctx, recs, nil)
	return err
}
