package storage

import (
	"context"
	"fmt"
	"io"

	gcs "cloud.google.com/go/storage"
)

// objectWriterFunc opens a writer for an object in bucket. Swapped in tests.
type objectWriterFunc func(ctx context.Context, bucket, object string, attrs gcs.ObjectAttrs) io.WriteCloser

// GCSPublisher uploads public objects to a Cloud Storage bucket.
type GCSPublisher struct {
	bucket    string
	newWriter objectWriterFunc
}

// NewGCSPublisher publishes into bucket using client. Either being empty makes
// every Publish fail with ErrStorageUnavailable.
func NewGCSPublisher(client *gcs.Client, bucket string) *GCSPublisher {
	p := &GCSPublisher{bucket: bucket}
	if client != nil {
		p.newWriter = func(ctx context.Context, bucket, object string, attrs gcs.ObjectAttrs) io.WriteCloser {
			w := client.Bucket(bucket).Object(object).NewWriter(ctx)
			w.ObjectAttrs.ContentType = attrs.ContentType
			w.ObjectAttrs.CacheControl = attrs.CacheControl
			w.ObjectAttrs.PredefinedACL = attrs.PredefinedACL
			return w
		}
	}
	return p
}

// Publish implements Publisher.
func (p *GCSPublisher) Publish(ctx context.Context, data []byte, name, contentType string) (string, error) {
	if p.bucket == "" || p.newWriter == nil {
		return "", fmt.Errorf("cloud storage bucket not configured: %w", ErrStorageUnavailable)
	}
	if contentType == "" {
		contentType = DefaultContentType
	}

	object := ObjectPrefix + name
	w := p.newWriter(ctx, p.bucket, object, gcs.ObjectAttrs{
		ContentType:   contentType,
		CacheControl:  CacheControl,
		PredefinedACL: "publicRead",
	})
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write gs://%s/%s: %v: %w", p.bucket, object, err, ErrStorageUnavailable)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("upload gs://%s/%s: %v: %w", p.bucket, object, err, ErrStorageUnavailable)
	}
	return PublicURL(p.bucket, name), nil
}

// PublicURL is the address of a published object.
func PublicURL(bucket, name string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s%s", bucket, ObjectPrefix, name)
}
