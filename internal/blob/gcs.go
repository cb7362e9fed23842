package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"zetafin/internal/log"
)

const gcsUploadTimeout = 2 * time.Minute

// GCS stores files in a Cloud Storage bucket and returns gs://bucket/key URLs.
type GCS struct {
	client *storage.Client
	bucket string
	logger *log.Logger
}

// NewGCS uses Application Default Credentials unless credentialsFile is set.
func NewGCS(ctx context.Context, bucket, credentialsFile string) (*GCS, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCS{client: client, bucket: bucket, logger: log.Default(log.ComponentBlob)}, nil
}

func (g *GCS) Close() error {
	return g.client.Close()
}

func (g *GCS) Upload(ctx context.Context, data []byte, name, mimeType, folder string) (string, error) {
	key := objectKey(folder, name, mimeType)

	ctx, cancel := context.WithTimeout(ctx, gcsUploadTimeout)
	defer cancel()

	w := g.client.Bucket(g.bucket).Object(key).NewWriter(ctx)
	w.ContentType = mimeType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize upload %s: %w", key, err)
	}

	g.logger.DebugContext(ctx, "Object uploaded", "bucket", g.bucket, "key", key, log.FieldFileSize, len(data))
	return "gs://" + g.bucket + "/" + key, nil
}

func (g *GCS) Download(ctx context.Context, url string) ([]byte, error) {
	bucket, key, err := splitBucketURL("gs", url)
	if err != nil {
		return nil, err
	}
	r, err := g.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open object %s: %w", key, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}

// Delete reports false when the object does not exist.
func (g *GCS) Delete(ctx context.Context, url string) (bool, error) {
	bucket, key, err := splitBucketURL("gs", url)
	if err != nil {
		return false, err
	}
	if err := g.client.Bucket(bucket).Object(key).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("delete object %s: %w", key, err)
	}
	return true, nil
}
