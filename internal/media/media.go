// Package media streams uploaded blobs into object storage and hands back
// stable public URLs. Keys are content-addressed by a fresh id, never by the
// original file name.
package media

import (
	"context"
	"fmt"
	"io"
	"mime"
	"strings"

	"symposium/api/internal/content"
	"symposium/api/internal/logger"
	"symposium/api/internal/util"
)

const (
	VideoPartition = "videos"
	ImagePartition = "images"
)

var videoTypes = map[string]struct{}{
	"video/mp4":       {},
	"video/quicktime": {},
	"video/x-msvideo": {},
}

var imageTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/gif":  {},
	"image/webp": {},
}

// Blob is an upload in flight. Size may be -1 when unknown, in which case
// progress is only reported on completion.
type Blob struct {
	Name     string
	MIMEType string
	Size     int64
	Body     io.Reader
}

// ProgressFunc receives the transferred fraction in [0, 1].
type ProgressFunc func(fraction float64)

// ObjectStore is the blob store collaborator.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	URL(key string) string
}

type Service struct {
	objects ObjectStore
	newID   func() string
}

func NewService(objects ObjectStore) *Service {
	return &Service{objects: objects, newID: util.NewID}
}

// IsVideoType reports whether the MIME type is an accepted video format.
func IsVideoType(mimeType string) bool {
	_, ok := accepts(videoTypes, mimeType)
	return ok
}

// Upload stores a video under videos/<id> and returns its public URL.
// Unsupported types fail with content.ErrInvalidMediaType before the object
// store is contacted. Transfer failures wrap content.ErrUploadFailed and
// silence onProgress.
func (s *Service) Upload(ctx context.Context, blob Blob, onProgress ProgressFunc) (string, error) {
	return s.put(ctx, VideoPartition, videoTypes, blob, onProgress)
}

// UploadImage stores a visual under images/<id>.
func (s *Service) UploadImage(ctx context.Context, blob Blob, onProgress ProgressFunc) (string, error) {
	return s.put(ctx, ImagePartition, imageTypes, blob, onProgress)
}

func (s *Service) put(ctx context.Context, partition string, allowed map[string]struct{}, blob Blob, onProgress ProgressFunc) (string, error) {
	mediaType, ok := accepts(allowed, blob.MIMEType)
	if !ok {
		return "", fmt.Errorf("%w: %q is not accepted for %s", content.ErrInvalidMediaType, blob.MIMEType, partition)
	}
	if blob.Body == nil {
		return "", fmt.Errorf("%w: %s has no body", content.ErrUploadFailed, blob.Name)
	}

	key := partition + "/" + s.newID()
	progress := newProgressReader(blob.Body, blob.Size, onProgress)
	if err := s.objects.Put(ctx, key, progress, blob.Size, mediaType); err != nil {
		progress.stop()
		logger.C(ctx).Warn().Err(err).Str("key", key).Str("file", blob.Name).Msg("media upload failed")
		return "", fmt.Errorf("upload %s: %w: %w", key, content.ErrUploadFailed, err)
	}
	progress.finish()

	url := s.objects.URL(key)
	logger.C(ctx).Debug().
		Str("key", key).
		Str("file", blob.Name).
		Str("type", mediaType).
		Int64("bytes", progress.transferred()).
		Msg("media uploaded")
	return url, nil
}

func accepts(allowed map[string]struct{}, raw string) (string, bool) {
	mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	_, ok := allowed[mediaType]
	return mediaType, ok
}

// OfflineStore rejects every put. It stands in for an object store that was
// unreachable at startup, so text-only content can still be published.
type OfflineStore struct {
	Err error
}

func (o OfflineStore) Put(context.Context, string, io.Reader, int64, string) error {
	return fmt.Errorf("object store offline: %w", o.Err)
}

func (o OfflineStore) URL(string) string { return "" }
