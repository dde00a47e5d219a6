// Package gcs implements the Google Cloud Storage sink.
package gcs

import (
	"context"
	"strings"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/prodbi/extractor/pkg/errors"
	"github.com/prodbi/extractor/pkg/sink"
)

// Sink uploads payloads to one GCS bucket.
type Sink struct {
	client *storage.Client
	bucket *storage.BucketHandle
	prefix string
	logger *zap.Logger
}

// New builds a GCS sink. An empty credentialsFile falls back to application
// default credentials.
func New(ctx context.Context, bucket, prefix, credentialsFile string, logger *zap.Logger) (*Sink, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create GCS client")
	}

	return &Sink{
		client: client,
		bucket: client.Bucket(bucket),
		prefix: strings.Trim(prefix, "/"),
		logger: logger.With(zap.String("sink", "gcs"), zap.String("bucket", bucket)),
	}, nil
}

// Write implements sink.Sink.
func (s *Sink) Write(ctx context.Context, path string, payload []byte, format sink.Format) (*sink.WriteResult, error) {
	object := path
	if s.prefix != "" {
		object = s.prefix + "/" + strings.TrimPrefix(path, "/")
	}

	w := s.bucket.Object(object).NewWriter(ctx)
	w.ContentType = contentTypeFor(format)

	if _, err := w.Write(payload); err != nil {
		_ = w.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeSink, "failed to write object to GCS").
			WithDetail("object", object)
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSink, "failed to finalize GCS object").
			WithDetail("object", object)
	}

	s.logger.Debug("uploaded object", zap.String("object", object), zap.Int("bytes", len(payload)))
	return &sink.WriteResult{Path: object, BytesWritten: int64(len(payload))}, nil
}

// Close implements sink.Sink.
func (s *Sink) Close() error {
	return s.client.Close()
}

func contentTypeFor(format sink.Format) string {
	switch format {
	case sink.FormatCSV:
		return "text/csv"
	case sink.FormatParquet:
		return "application/octet-stream"
	default:
		return "application/json"
	}
}
