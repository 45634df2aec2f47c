package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	gcs "cloud.google.com/go/storage"
)

// ErrObjectNotFound is returned when the requested object does not exist.
var ErrObjectNotFound = errors.New("blob: object not found")

// Store reads whole JSON documents from a Cloud Storage bucket. The partner
// offer catalog is served this way: one object, read in full.
type Store struct {
	client *gcs.Client
	bucket string
}

// NewStore constructs a Store bound to the given bucket.
func NewStore(client *gcs.Client, bucket string) (*Store, error) {
	if client == nil {
		return nil, errors.New("blob store: client is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("blob store: bucket is required")
	}
	return &Store{client: client, bucket: bucket}, nil
}

// Read returns the full contents of the named object.
func (s *Store) Read(ctx context.Context, object string) ([]byte, error) {
	object = strings.TrimSpace(object)
	if object == "" {
		return nil, errors.New("blob store: object name is required")
	}

	reader, err := s.client.Bucket(s.bucket).Object(object).NewReader(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, object)
	}
	if err != nil {
		return nil, fmt.Errorf("blob store: open %s: %w", object, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("blob store: read %s: %w", object, err)
	}
	return data, nil
}

// Exists reports whether the named object is present.
func (s *Store) Exists(ctx context.Context, object string) (bool, error) {
	object = strings.TrimSpace(object)
	if object == "" {
		return false, errors.New("blob store: object name is required")
	}
	_, err := s.client.Bucket(s.bucket).Object(object).Attrs(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("blob store: stat %s: %w", object, err)
	}
	return true, nil
}
