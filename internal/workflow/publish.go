package workflow

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"symposium/api/internal/content"
	"symposium/api/internal/logger"
	"symposium/api/internal/media"
	"symposium/api/internal/util"
)

// Publish owns one draft from composition to persistence. Attached tier
// videos are uploaded concurrently and the repository is written exactly
// once, after every upload has resolved.
type Publish struct {
	uploader Uploader
	repo     Creator

	mu          sync.Mutex
	draft       content.Aggregate
	state       State
	attachments map[content.Tier]Attachment
	progress    map[content.Tier]float64
	onProgress  func(tier content.Tier, fraction float64)
	err         error
}

// NewPublish starts a workflow for draft, assigning a fresh id when the
// draft has none.
func NewPublish(draft content.Aggregate, uploader Uploader, repo Creator) *Publish {
	if draft.ID == "" {
		draft.ID = util.NewID()
	}
	return &Publish{
		uploader:    uploader,
		repo:        repo,
		draft:       draft,
		state:       StateDraft,
		attachments: map[content.Tier]Attachment{},
		progress:    map[content.Tier]float64{},
	}
}

func (p *Publish) ID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.draft.ID
}

func (p *Publish) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Err is the failure that moved the workflow to StateFailed.
func (p *Publish) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Progress is the last reported upload fraction for tier.
func (p *Publish) Progress(tier content.Tier) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progress[tier]
}

// OnProgress registers a listener for per-tier upload progress.
func (p *Publish) OnProgress(fn func(tier content.Tier, fraction float64)) {
	p.mu.Lock()
	p.onProgress = fn
	p.mu.Unlock()
}

// Attach selects video as the medium of tier. Unsupported types are
// rejected here so that nothing is uploaded for a draft that cannot publish.
func (p *Publish) Attach(tier content.Tier, a Attachment) error {
	if err := checkAttachment(a); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateDraft {
		return ErrAlreadyRun
	}
	p.attachments[tier] = a
	return nil
}

// Skip drops a previously attached video for tier.
func (p *Publish) Skip(tier content.Tier) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateDraft {
		delete(p.attachments, tier)
	}
}

// Run uploads every attachment, writes the URLs into their tiers and
// creates the aggregate. An unset content type is inferred once a tier
// carries video; all-text drafts keep it unset. Any failure aborts before
// the repository is touched.
func (p *Publish) Run(ctx context.Context) (content.Aggregate, error) {
	p.mu.Lock()
	if p.state != StateDraft {
		p.mu.Unlock()
		return content.Aggregate{}, ErrAlreadyRun
	}
	p.state = StateUploading
	draft := p.draft
	attachments := make(map[content.Tier]Attachment, len(p.attachments))
	for tier, a := range p.attachments {
		attachments[tier] = a
	}
	p.mu.Unlock()

	log := logger.C(ctx).With().Str("content_id", draft.ID).Logger()

	urls, err := p.uploadAll(ctx, attachments)
	if err != nil {
		log.Warn().Err(err).Msg("publish aborted during upload")
		return content.Aggregate{}, p.fail(err)
	}
	for tier, url := range urls {
		draft.SetMedium(tier, content.Video(url, attachments[tier].Duration))
	}
	if inferred := content.InferType(draft); draft.ContentType == "" && inferred != content.TypeText {
		draft.ContentType = inferred
	}

	p.setState(StatePersisting)
	id, err := p.repo.Create(ctx, draft)
	if err != nil {
		log.Warn().Err(err).Msg("publish aborted during create")
		return content.Aggregate{}, p.fail(err)
	}
	draft.ID = id

	p.mu.Lock()
	p.draft = draft
	p.state = StatePublished
	p.mu.Unlock()
	log.Info().Int("uploads", len(urls)).Str("content_type", string(draft.ContentType)).Msg("content published")
	return draft, nil
}

func (p *Publish) uploadAll(ctx context.Context, attachments map[content.Tier]Attachment) (map[content.Tier]string, error) {
	urls := make(map[content.Tier]string, len(attachments))
	if len(attachments) == 0 {
		return urls, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for tier, a := range attachments {
		g.Go(func() error {
			url, err := p.uploader.Upload(gctx, a.Blob, p.reporter(tier))
			if err != nil {
				return fmt.Errorf("%s video: %w", tier, err)
			}
			mu.Lock()
			urls[tier] = url
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return urls, nil
}

func (p *Publish) reporter(tier content.Tier) media.ProgressFunc {
	return func(fraction float64) {
		p.mu.Lock()
		p.progress[tier] = fraction
		fn := p.onProgress
		p.mu.Unlock()
		if fn != nil {
			fn(tier, fraction)
		}
	}
}

func (p *Publish) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *Publish) fail(err error) error {
	p.mu.Lock()
	p.state = StateFailed
	p.err = err
	p.mu.Unlock()
	return err
}
