// Package workflow sequences media uploads and repository writes for the
// two authoring flows: publishing an aggregate and responding to one.
package workflow

import (
	"context"
	"errors"
	"fmt"

	"symposium/api/internal/content"
	"symposium/api/internal/media"
)

type State string

const (
	StateDraft      State = "draft"
	StateUploading  State = "uploading"
	StatePersisting State = "persisting"
	StatePublished  State = "published"
	StateResponded  State = "responded"
	StateFailed     State = "failed"
)

// ErrAlreadyRun is returned when Run is called on a workflow that has left
// the draft state.
var ErrAlreadyRun = errors.New("workflow already run")

type Uploader interface {
	Upload(ctx context.Context, blob media.Blob, onProgress media.ProgressFunc) (string, error)
}

type Creator interface {
	Create(ctx context.Context, item content.Aggregate) (string, error)
}

type Appender interface {
	AppendResponse(ctx context.Context, contentID string, response content.Response) (string, error)
	GetByID(ctx context.Context, id string) (content.Aggregate, error)
}

// Attachment is a video waiting to be uploaded into a tier.
type Attachment struct {
	Blob     media.Blob
	Duration int
}

func checkAttachment(a Attachment) error {
	if !media.IsVideoType(a.Blob.MIMEType) {
		return fmt.Errorf("%w: %q", content.ErrInvalidMediaType, a.Blob.MIMEType)
	}
	if a.Duration < 0 {
		return &content.ValidationError{Fields: []content.FieldError{{Field: "duration", Message: "duration must not be negative"}}}
	}
	return nil
}
