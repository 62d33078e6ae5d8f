// Package gcs provides a checkpoint store backed by a Google Cloud Storage object.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/wayback-archiver/internal/cache"
)

// ErrObjectMissing is returned by an ObjectClient when the object does not exist.
var ErrObjectMissing = errors.New("object does not exist")

// Config captures the location of the result document.
type Config struct {
	Bucket string
	Object string
}

// ObjectClient reads and writes whole objects.
type ObjectClient interface {
	Read(ctx context.Context, bucket, object string) ([]byte, error)
	Write(ctx context.Context, bucket, object, contentType string, data []byte) error
}

// Store keeps the result cache as a JSON object in a bucket.
type Store struct {
	client ObjectClient
	bucket string
	object string
	logger *zap.Logger
}

// New creates a GCS-backed store.
func New(client ObjectClient, cfg Config, logger *zap.Logger) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if strings.TrimSpace(cfg.Object) == "" {
		return nil, fmt.Errorf("object name is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{client: client, bucket: cfg.Bucket, object: cfg.Object, logger: logger}, nil
}

// Name implements storage.Provider.
func (s *Store) Name() string { return "gcs" }

// URI returns the gs:// location of the result document.
func (s *Store) URI() string {
	return fmt.Sprintf("gs://%s/%s", s.bucket, s.object)
}

// Load fetches and parses the result object. A missing object yields an empty cache.
func (s *Store) Load(ctx context.Context) (*cache.Cache, error) {
	data, err := s.client.Read(ctx, s.bucket, s.object)
	if err != nil {
		if errors.Is(err, ErrObjectMissing) {
			s.logger.Info("no prior results found", zap.String("uri", s.URI()))
			return cache.New(), nil
		}
		return nil, fmt.Errorf("read %s: %w", s.URI(), err)
	}
	c, err := cache.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", s.URI(), err)
	}
	return c, nil
}

// Checkpoint uploads the whole cache. Object writes are atomic on the service side.
func (s *Store) Checkpoint(ctx context.Context, c *cache.Cache, _ bool) error {
	data, err := cache.Marshal(c)
	if err != nil {
		return err
	}
	if err := s.client.Write(ctx, s.bucket, s.object, "application/json", data); err != nil {
		return fmt.Errorf("write %s: %w", s.URI(), err)
	}
	return nil
}

// Client adapts *storage.Client to ObjectClient.
type Client struct {
	c *storage.Client
}

// NewClient wraps an existing Cloud Storage client.
func NewClient(c *storage.Client) *Client {
	return &Client{c: c}
}

// Dial creates a Cloud Storage client using Application Default Credentials.
func Dial(ctx context.Context) (*Client, error) {
	c, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &Client{c: c}, nil
}

// Read implements ObjectClient.
func (c *Client) Read(ctx context.Context, bucket, object string) ([]byte, error) {
	r, err := c.c.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ErrObjectMissing
		}
		return nil, err
	}
	defer func() { _ = r.Close() }()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read object body: %w", err)
	}
	return data, nil
}

// Write implements ObjectClient.
func (c *Client) Write(ctx context.Context, bucket, object, contentType string, data []byte) error {
	wc := c.c.Bucket(bucket).Object(object).NewWriter(ctx)
	wc.ContentType = contentType
	if _, err := wc.Write(data); err != nil {
		if closeErr := wc.Close(); closeErr != nil {
			return fmt.Errorf("write object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("write object: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (c *Client) Close() error {
	return c.c.Close()
}
