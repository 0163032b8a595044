package app

import (
	"context"
	"fmt"

	"symposium/api/internal/config"
	"symposium/api/internal/content"
	"symposium/api/internal/logger"
	"symposium/api/internal/media"
	"symposium/api/internal/search"
	"symposium/api/internal/store"
	"symposium/api/internal/workflow"
)

type contentStore interface {
	Create(context.Context, content.Aggregate) (string, error)
	GetByID(context.Context, string) (content.Aggregate, error)
	FeedPage(context.Context, int, string) (store.Page, error)
	AppendResponse(context.Context, string, content.Response) (string, error)
	Ping(context.Context) error
}

type mediaService interface {
	Upload(context.Context, media.Blob, media.ProgressFunc) (string, error)
	UploadImage(context.Context, media.Blob, media.ProgressFunc) (string, error)
}

// readCache entries are versioned. Callers read the version before the store
// and write back under that same version, so a write racing an invalidation
// lands under a key nobody reads.
type readCache interface {
	FeedGeneration(context.Context) (int64, error)
	FeedPage(context.Context, int64, int, string) (store.Page, bool, error)
	PutFeedPage(context.Context, int64, int, string, store.Page) error
	InvalidateFeed(context.Context) error
	ContentVersion(context.Context, string) (int64, error)
	Content(context.Context, string, int64) (content.Aggregate, bool, error)
	PutContent(context.Context, int64, content.Aggregate) error
	InvalidateContent(context.Context, string) error
	Ping(context.Context) error
}

type searchService interface {
	Search(context.Context, search.Query) search.Response
	IndexContent(search.Record)
}

// Service is the application facade behind the HTTP layer. The cache and
// search collaborators are optional.
type Service struct {
	cfg    config.Config
	store  contentStore
	media  mediaService
	cache  readCache
	search searchService
}

func New(cfg config.Config, dataStore contentStore, mediaSvc mediaService) *Service {
	return &Service{cfg: cfg, store: dataStore, media: mediaSvc}
}

// WithCache enables read-through caching of feed pages and aggregates.
func (s *Service) WithCache(c readCache) *Service {
	s.cache = c
	return s
}

// WithSearch enables indexing on publish and the search endpoint.
func (s *Service) WithSearch(idx searchService) *Service {
	s.search = idx
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// PingCache returns nil when no cache is configured.
func (s *Service) PingCache(ctx context.Context) (configured bool, err error) {
	if s.cache == nil {
		return false, nil
	}
	return true, s.cache.Ping(ctx)
}

// Feed returns one page of the feed, newest first.
func (s *Service) Feed(ctx context.Context, limit int, cursor string) (store.Page, error) {
	if limit <= 0 {
		limit = store.DefaultFeedLimit
	}
	if limit > store.MaxFeedLimit {
		limit = store.MaxFeedLimit
	}

	generation, cached := s.feedGeneration(ctx)
	if cached {
		page, ok, err := s.cache.FeedPage(ctx, generation, limit, cursor)
		if err != nil {
			logger.C(ctx).Warn().Err(err).Msg("feed cache read failed")
		} else if ok {
			return page, nil
		}
	}

	page, err := s.store.FeedPage(ctx, limit, cursor)
	if err != nil {
		return store.Page{}, err
	}
	if cached {
		if err := s.cache.PutFeedPage(ctx, generation, limit, cursor, page); err != nil {
			logger.C(ctx).Warn().Err(err).Msg("feed cache write failed")
		}
	}
	return page, nil
}

func (s *Service) Content(ctx context.Context, id string) (content.Aggregate, error) {
	version, cached := s.contentVersion(ctx, id)
	if cached {
		item, ok, err := s.cache.Content(ctx, id, version)
		if err != nil {
			logger.C(ctx).Warn().Err(err).Str("content_id", id).Msg("content cache read failed")
		} else if ok {
			return item, nil
		}
	}

	item, err := s.store.GetByID(ctx, id)
	if err != nil {
		return content.Aggregate{}, err
	}
	if cached {
		s.remember(ctx, version, item)
	}
	return item, nil
}

// TierView projects one depth tier of an aggregate.
func (s *Service) TierView(ctx context.Context, id, rawTier string) (content.View, error) {
	tier, ok := content.ParseTier(rawTier)
	if !ok {
		return content.View{}, &content.ValidationError{Fields: []content.FieldError{{
			Field:   "tier",
			Message: fmt.Sprintf("tier must be one of hook, main, full; got %q", rawTier),
		}}}
	}
	item, err := s.Content(ctx, id)
	if err != nil {
		return content.View{}, err
	}
	return item.View(tier), nil
}

// Publish runs the publish workflow for draft with the given tier videos.
func (s *Service) Publish(ctx context.Context, draft content.Aggregate, videos map[content.Tier]workflow.Attachment) (content.Aggregate, error) {
	wf := workflow.NewPublish(draft, s.media, s.store)
	for _, tier := range content.Tiers {
		a, ok := videos[tier]
		if !ok {
			continue
		}
		if err := wf.Attach(tier, a); err != nil {
			return content.Aggregate{}, err
		}
	}

	item, err := wf.Run(ctx)
	if err != nil {
		return content.Aggregate{}, err
	}
	s.invalidateFeed(ctx)
	// The repository assigns the creation date and placeholder section.
	version, cached := s.contentVersion(ctx, item.ID)
	if stored, err := s.store.GetByID(ctx, item.ID); err == nil {
		item = stored
		if cached {
			s.remember(ctx, version, item)
		}
	} else {
		logger.C(ctx).Warn().Err(err).Str("content_id", item.ID).Msg("re-read after publish failed")
	}
	if s.search != nil {
		s.search.IndexContent(search.RecordFrom(item))
	}
	return item, nil
}

// Respond runs the response workflow and returns the re-fetched parent.
func (s *Service) Respond(ctx context.Context, contentID string, response content.Response, video *workflow.Attachment) (workflow.Result, error) {
	wf := workflow.NewRespond(contentID, response, s.media, s.store)
	if video != nil {
		if err := wf.Attach(*video); err != nil {
			return workflow.Result{}, err
		}
	}

	result, err := wf.Run(ctx)
	if result.ResponseID != "" {
		s.forget(ctx, contentID)
		s.invalidateFeed(ctx)
	}
	return result, err
}

func (s *Service) UploadVideo(ctx context.Context, blob media.Blob) (string, error) {
	return s.media.Upload(ctx, blob, nil)
}

func (s *Service) UploadImage(ctx context.Context, blob media.Blob) (string, error) {
	return s.media.UploadImage(ctx, blob, nil)
}

func (s *Service) Search(ctx context.Context, q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(ctx, q)
}

// feedGeneration reports false when there is no usable cache.
func (s *Service) feedGeneration(ctx context.Context) (int64, bool) {
	if s.cache == nil {
		return 0, false
	}
	generation, err := s.cache.FeedGeneration(ctx)
	if err != nil {
		logger.C(ctx).Warn().Err(err).Msg("feed cache read failed")
		return 0, false
	}
	return generation, true
}

// contentVersion reports false when there is no usable cache.
func (s *Service) contentVersion(ctx context.Context, id string) (int64, bool) {
	if s.cache == nil {
		return 0, false
	}
	version, err := s.cache.ContentVersion(ctx, id)
	if err != nil {
		logger.C(ctx).Warn().Err(err).Str("content_id", id).Msg("content cache read failed")
		return 0, false
	}
	return version, true
}

func (s *Service) remember(ctx context.Context, version int64, item content.Aggregate) {
	if err := s.cache.PutContent(ctx, version, item); err != nil {
		logger.C(ctx).Warn().Err(err).Str("content_id", item.ID).Msg("content cache write failed")
	}
}

func (s *Service) forget(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateContent(ctx, id); err != nil {
		logger.C(ctx).Warn().Err(err).Str("content_id", id).Msg("content cache eviction failed")
	}
}

func (s *Service) invalidateFeed(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateFeed(ctx); err != nil {
		logger.C(ctx).Warn().Err(err).Msg("feed cache invalidation failed")
	}
}
