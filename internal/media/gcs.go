package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

type GCSConfig struct {
	Bucket string
	// PublicBaseURL overrides https://storage.googleapis.com/<bucket>.
	PublicBaseURL string
	Options       []option.ClientOption
}

// GCSStore writes objects to a Google Cloud Storage bucket.
type GCSStore struct {
	client  *storage.Client
	bucket  string
	baseURL string
}

func NewGCSStore(ctx context.Context, cfg GCSConfig) (*GCSStore, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}
	opts := append([]option.ClientOption{option.WithScopes(storage.ScopeReadWrite)}, cfg.Options...)
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/")
	if baseURL == "" {
		baseURL = "https://storage.googleapis.com/" + cfg.Bucket
	}
	return &GCSStore{client: client, bucket: cfg.Bucket, baseURL: baseURL}, nil
}

// GCSOptionsFromEnv reads GOOGLE_APPLICATION_CREDENTIALS_JSON (inline JSON)
// or GOOGLE_APPLICATION_CREDENTIALS (a file path). With neither set the
// client falls back to application default credentials.
func GCSOptionsFromEnv() []option.ClientOption {
	creds := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"))
	if creds == "" {
		creds = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if creds == "" {
		return nil
	}
	if strings.HasPrefix(creds, "{") {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	return []option.ClientOption{option.WithCredentialsFile(creds)}
}

// Put streams body into key. A failed copy cancels the writer so no partial
// object is finalized.
func (g *GCSStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	writeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := g.client.Bucket(g.bucket).Object(key).NewWriter(writeCtx)
	w.ContentType = contentType
	if _, err := io.Copy(w, body); err != nil {
		cancel()
		_ = w.Close()
		return fmt.Errorf("write %s to gcs: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close gcs writer for %s: %w", key, err)
	}
	return nil
}

func (g *GCSStore) URL(key string) string {
	return g.baseURL + "/" + strings.TrimLeft(key, "/")
}

func (g *GCSStore) Close() error {
	return g.client.Close()
}
