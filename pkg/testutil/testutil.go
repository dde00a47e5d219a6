// Package testutil provides shared helpers for connector and engine tests.
package testutil

import (
	"context"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/prodbi/extractor/pkg/sink"
)

// TestLogger creates a test logger that writes to the test output.
// The logger is automatically cleaned up when the test completes.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// MemorySink captures sink writes for assertions.
type MemorySink struct {
	mu      sync.Mutex
	Writes  map[string][]byte
	Formats map[string]sink.Format
	Failure error
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{
		Writes:  make(map[string][]byte),
		Formats: make(map[string]sink.Format),
	}
}

// Write implements sink.Sink.
func (m *MemorySink) Write(_ context.Context, path string, payload []byte, format sink.Format) (*sink.WriteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Failure != nil {
		return nil, m.Failure
	}
	m.Writes[path] = payload
	m.Formats[path] = format
	return &sink.WriteResult{Path: path, BytesWritten: int64(len(payload))}, nil
}

// Close implements sink.Sink.
func (m *MemorySink) Close() error { return nil }

// Payload returns the bytes written at path, or nil.
func (m *MemorySink) Payload(path string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Writes[path]
}
