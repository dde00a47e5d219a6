// Package file implements the local filesystem sink.
package file

import (
	"context"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/prodbi/extractor/pkg/errors"
	"github.com/prodbi/extractor/pkg/sink"
)

// Sink writes payloads under a root directory. Reruns overwrite in place.
type Sink struct {
	root     string
	compress bool
	logger   *zap.Logger
}

// New builds a filesystem sink rooted at dir. When compress is set, payloads
// are gzipped and the object name gains a .gz suffix.
func New(root string, compress bool, logger *zap.Logger) *Sink {
	return &Sink{
		root:     root,
		compress: compress,
		logger:   logger.With(zap.String("sink", "file")),
	}
}

// Write implements sink.Sink.
func (s *Sink) Write(_ context.Context, path string, payload []byte, _ sink.Format) (*sink.WriteResult, error) {
	full := filepath.Join(s.root, filepath.FromSlash(path))
	if s.compress {
		full += ".gz"
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSink, "failed to create output directory")
	}

	// write to a temp file then rename so a rerun never leaves a torn object
	tmp, err := os.CreateTemp(filepath.Dir(full), ".extract-*")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSink, "failed to create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if s.compress {
		gz := gzip.NewWriter(tmp)
		if _, err := gz.Write(payload); err != nil {
			_ = tmp.Close()
			return nil, errors.Wrap(err, errors.ErrorTypeSink, "failed to compress payload")
		}
		if err := gz.Close(); err != nil {
			_ = tmp.Close()
			return nil, errors.Wrap(err, errors.ErrorTypeSink, "failed to finalize gzip stream")
		}
	} else {
		if _, err := tmp.Write(payload); err != nil {
			_ = tmp.Close()
			return nil, errors.Wrap(err, errors.ErrorTypeSink, "failed to write payload")
		}
	}
	if err := tmp.Close(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSink, "failed to close temp file")
	}

	if err := os.Rename(tmpName, full); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSink, "failed to move payload into place")
	}

	info, err := os.Stat(full)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSink, "failed to stat written file")
	}

	s.logger.Debug("wrote file", zap.String("path", full), zap.Int64("bytes", info.Size()))

	rel := path
	if s.compress {
		rel += ".gz"
	}
	return &sink.WriteResult{Path: rel, BytesWritten: info.Size()}, nil
}

// Close implements sink.Sink.
func (s *Sink) Close() error { return nil }
