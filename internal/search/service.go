package search

import (
	"context"
	"time"

	"symposium/api/internal/logger"
)

// Engine is a primary index that can both search and be written to.
type Engine interface {
	Searcher
	Indexer
}

// Service is the facade that tries the primary engine first and falls back
// to database search.
type Service struct {
	primary  Engine
	fallback Searcher
	timeout  time.Duration
}

// NewService creates a search service. Either side may be nil.
func NewService(primary Engine, fallback Searcher) *Service {
	return &Service{primary: primary, fallback: fallback, timeout: 10 * time.Second}
}

// NewMeiliService wires a possibly nil Meili client without storing a typed nil.
func NewMeiliService(m *Meili, fallback Searcher) *Service {
	if m == nil {
		return NewService(nil, fallback)
	}
	return NewService(m, fallback)
}

// Search tries the primary engine if healthy, otherwise falls back.
func (s *Service) Search(ctx context.Context, q Query) Response {
	q = q.normalized()
	empty := Response{Results: []Result{}, Total: 0, Query: q.Text}
	if q.Text == "" {
		return empty
	}

	log := logger.Named("search")
	if s.primary != nil && s.primary.Healthy() {
		results, total, err := s.primary.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Warn().Err(err).Msg("primary search failed, falling back")
	}

	if s.fallback == nil {
		return empty
	}
	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		log.Error().Err(err).Msg("fallback search failed")
		return empty
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexContent indexes an aggregate without blocking the caller.
func (s *Service) IndexContent(rec Record) {
	if s.primary == nil || !s.primary.Healthy() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if err := s.primary.IndexContent(ctx, rec); err != nil {
			logger.Named("search").Warn().Err(err).Str("content_id", rec.ID).Msg("index content")
		}
	}()
}

// ReindexAll pushes every record from the loader into the primary engine.
// Called during startup when the primary engine is healthy.
func (s *Service) ReindexAll(ctx context.Context, load func(context.Context) ([]Record, error)) {
	if s.primary == nil || !s.primary.Healthy() || load == nil {
		return
	}
	log := logger.Named("search")
	records, err := load(ctx)
	if err != nil {
		log.Error().Err(err).Msg("reindex load failed")
		return
	}
	if len(records) == 0 {
		return
	}
	if err := s.primary.IndexContents(ctx, records); err != nil {
		log.Error().Err(err).Int("records", len(records)).Msg("reindex content")
		return
	}
	log.Info().Int("records", len(records)).Msg("search index rebuilt")
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
