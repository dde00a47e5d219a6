// Package azblob implements the Azure Blob Storage sink, covering Data Lake
// Gen2 accounts exposed through the blob endpoint.
package azblob

import (
	"context"
	"fmt"
	"strings"

	azstorage "github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"go.uber.org/zap"

	"github.com/prodbi/extractor/pkg/errors"
	"github.com/prodbi/extractor/pkg/sink"
)

// Sink uploads payloads to one blob container.
type Sink struct {
	client    *azstorage.Client
	container string
	logger    *zap.Logger
}

// New builds a sink against the given storage account using a shared key.
func New(account, accessKey, container string, logger *zap.Logger) (*Sink, error) {
	cred, err := azstorage.NewSharedKeyCredential(account, accessKey)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid storage account credential")
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", account)
	client, err := azstorage.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create blob client")
	}

	return &Sink{
		client:    client,
		container: container,
		logger:    logger.With(zap.String("sink", "azblob"), zap.String("container", container)),
	}, nil
}

// NewFromConnectionString builds a sink from a storage connection string.
func NewFromConnectionString(connectionString, container string, logger *zap.Logger) (*Sink, error) {
	client, err := azstorage.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create blob client")
	}
	return &Sink{
		client:    client,
		container: container,
		logger:    logger.With(zap.String("sink", "azblob"), zap.String("container", container)),
	}, nil
}

// Write implements sink.Sink. Blob uploads replace existing content, giving
// overwrite-on-rerun semantics.
func (s *Sink) Write(ctx context.Context, path string, payload []byte, _ sink.Format) (*sink.WriteResult, error) {
	blobName := strings.TrimPrefix(path, "/")

	_, err := s.client.UploadBuffer(ctx, s.container, blobName, payload, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSink, "failed to upload blob").
			WithDetail("container", s.container).
			WithDetail("blob", blobName)
	}

	s.logger.Debug("uploaded blob", zap.String("blob", blobName), zap.Int("bytes", len(payload)))
	return &sink.WriteResult{Path: blobName, BytesWritten: int64(len(payload))}, nil
}

// Close implements sink.Sink.
func (s *Sink) Close() error { return nil }
