package workflow

import (
	"context"
	"fmt"
	"sync"

	"symposium/api/internal/content"
	"symposium/api/internal/logger"
)

// Result is the outcome of a response workflow. Content is the parent as
// re-read after the append.
type Result struct {
	ResponseID string            `json:"responseId"`
	Content    content.Aggregate `json:"content"`
}

// Respond owns one response from composition to append.
type Respond struct {
	uploader Uploader
	repo     Appender

	mu         sync.Mutex
	contentID  string
	response   content.Response
	attachment *Attachment
	state      State
	progress   float64
	onProgress func(fraction float64)
	err        error
}

func NewRespond(contentID string, response content.Response, uploader Uploader, repo Appender) *Respond {
	return &Respond{
		uploader:  uploader,
		repo:      repo,
		contentID: contentID,
		response:  response,
		state:     StateDraft,
	}
}

func (r *Respond) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Respond) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Respond) Progress() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progress
}

func (r *Respond) OnProgress(fn func(fraction float64)) {
	r.mu.Lock()
	r.onProgress = fn
	r.mu.Unlock()
}

// Attach selects video as the response medium.
func (r *Respond) Attach(a Attachment) error {
	if err := checkAttachment(a); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateDraft {
		return ErrAlreadyRun
	}
	r.attachment = &a
	return nil
}

// Run uploads the optional video, appends the response and re-fetches the
// parent. A video is only uploaded once the parent is known to exist. When
// only the re-fetch fails the response is already stored and
// Result.ResponseID is still set.
func (r *Respond) Run(ctx context.Context) (Result, error) {
	r.mu.Lock()
	if r.state != StateDraft {
		r.mu.Unlock()
		return Result{}, ErrAlreadyRun
	}
	response := r.response
	attachment := r.attachment
	contentID := r.contentID
	r.state = StateUploading
	r.mu.Unlock()

	log := logger.C(ctx).With().Str("content_id", contentID).Logger()

	if attachment != nil {
		if _, err := r.repo.GetByID(ctx, contentID); err != nil {
			log.Warn().Err(err).Msg("response aborted before upload")
			return Result{}, r.fail(err)
		}
		url, err := r.uploader.Upload(ctx, attachment.Blob, r.report)
		if err != nil {
			log.Warn().Err(err).Msg("response aborted during upload")
			return Result{}, r.fail(fmt.Errorf("response video: %w", err))
		}
		response.Medium = content.Video(url, attachment.Duration)
	}

	r.mu.Lock()
	r.state = StatePersisting
	r.mu.Unlock()

	responseID, err := r.repo.AppendResponse(ctx, contentID, response)
	if err != nil {
		log.Warn().Err(err).Msg("response aborted during append")
		return Result{}, r.fail(err)
	}

	r.mu.Lock()
	r.state = StateResponded
	r.mu.Unlock()

	parent, err := r.repo.GetByID(ctx, contentID)
	if err != nil {
		return Result{ResponseID: responseID}, fmt.Errorf("re-fetch %s: %w", contentID, err)
	}
	log.Info().Str("response_id", responseID).Msg("response appended")
	return Result{ResponseID: responseID, Content: parent}, nil
}

func (r *Respond) report(fraction float64) {
	r.mu.Lock()
	r.progress = fraction
	fn := r.onProgress
	r.mu.Unlock()
	if fn != nil {
		fn(fraction)
	}
}

func (r *Respond) fail(err error) error {
	r.mu.Lock()
	r.state = StateFailed
	r.err = err
	r.mu.Unlock()
	return err
}
