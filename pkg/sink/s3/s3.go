// Package s3 implements the Amazon S3 sink.
package s3

import (
	"bytes"
	"context"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/prodbi/extractor/pkg/errors"
	"github.com/prodbi/extractor/pkg/sink"
)

// Sink uploads payloads to one S3 bucket via the managed uploader.
type Sink struct {
	bucket   string
	prefix   string
	uploader *manager.Uploader
	logger   *zap.Logger
}

// New builds an S3 sink. Credentials resolve through the default AWS chain.
func New(ctx context.Context, bucket, prefix, region string, logger *zap.Logger) (*Sink, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to load AWS config")
	}

	client := awss3.NewFromConfig(cfg)
	return &Sink{
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
		uploader: manager.NewUploader(client),
		logger:   logger.With(zap.String("sink", "s3"), zap.String("bucket", bucket)),
	}, nil
}

// Write implements sink.Sink. S3 puts are last write wins, which gives the
// overwrite-on-rerun semantics for free.
func (s *Sink) Write(ctx context.Context, path string, payload []byte, format sink.Format) (*sink.WriteResult, error) {
	key := path
	if s.prefix != "" {
		key = s.prefix + "/" + strings.TrimPrefix(path, "/")
	}

	contentType := contentTypeFor(format)
	_, err := s.uploader.Upload(ctx, &awss3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        bytes.NewReader(payload),
		ContentType: &contentType,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSink, "failed to upload object to S3").
			WithDetail("bucket", s.bucket).
			WithDetail("key", key)
	}

	s.logger.Debug("uploaded object", zap.String("key", key), zap.Int("bytes", len(payload)))
	return &sink.WriteResult{Path: key, BytesWritten: int64(len(payload))}, nil
}

// Close implements sink.Sink.
func (s *Sink) Close() error { return nil }

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
