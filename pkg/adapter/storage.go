package adapter

import (
	"context"
	"io"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
)

// ObjectStore keeps exported layout snapshots
type ObjectStore interface {
	// PutObject writes data under key and returns the object URI
	PutObject(ctx context.Context, key, contentType string, data []byte) (string, error)
	// GetObject reads the object stored under key
	GetObject(ctx context.Context, key string) ([]byte, error)
}

// GCSStore implements ObjectStore on a Cloud Storage bucket
type GCSStore struct {
	bucketName string
	client     *storage.Client
}

func NewGCSStore(ctx context.Context, bucketName string) (*GCSStore, error) {
	if bucketName == "" {
		return nil, goerr.New("bucket name is required")
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage client")
	}

	return &GCSStore{
		bucketName: bucketName,
		client:     client,
	}, nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}

func (s *GCSStore) PutObject(ctx context.Context, key, contentType string, data []byte) (string, error) {
	writer := s.client.Bucket(s.bucketName).Object(key).NewWriter(ctx)
	writer.ContentType = contentType

	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return "", goerr.Wrap(err, "failed to write object", goerr.V("bucket", s.bucketName), goerr.V("key", key))
	}
	if err := writer.Close(); err != nil {
		return "", goerr.Wrap(err, "failed to finalize object", goerr.V("bucket", s.bucketName), goerr.V("key", key))
	}

	return "gs://" + s.bucketName + "/" + key, nil
}

func (s *GCSStore) GetObject(ctx context.Context, key string) ([]byte, error) {
	reader, err := s.client.Bucket(s.bucketName).Object(key).NewReader(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read from storage", goerr.V("bucket", s.bucketName), goerr.V("key", key))
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read object body", goerr.V("key", key))
	}
	return data, nil
}
