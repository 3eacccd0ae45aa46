package receipts

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"

	"spendwise/internal/core"
)

// GCSStore keeps receipts in a Google Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket *storage.BucketHandle
}

// NewGCSStore uses application default credentials.
func NewGCSStore(ctx context.Context, bucket string) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}
	return NewGCSStoreFromClient(client, bucket), nil
}

func NewGCSStoreFromClient(client *storage.Client, bucket string) *GCSStore {
	return &GCSStore{client: client, bucket: client.Bucket(bucket)}
}

func (s *GCSStore) Put(ctx context.Context, key string, r io.Reader, contentType string) error {
	if err := validKey(key); err != nil {
		return err
	}
	w := s.bucket.Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("upload receipt %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize receipt %s: %w", key, err)
	}
	return nil
}

func (s *GCSStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	rc, err := s.bucket.Object(key).NewReader(ctx)
	if err != nil {
		return nil, gcsErr(key, "read", err)
	}
	return rc, nil
}

// Delete is idempotent.
func (s *GCSStore) Delete(ctx context.Context, key string) error {
	if err := validKey(key); err != nil {
		return err
	}
	err := s.bucket.Object(key).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	if err != nil {
		return gcsErr(key, "delete", err)
	}
	return nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}

func gcsErr(key, op string, err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return notFound(key)
	}
	return fmt.Errorf("%s receipt %s: %w", op, key, err)
}

func notFound(key string) error {
	return fmt.Errorf("%w: receipt %s", core.ErrNotFound, key)
}
