// Package sink defines the durable storage boundary for assembled datasets.
// A job writes exactly once, after its fetch loop has concluded; reruns with
// identical parameters overwrite the same path.
package sink

import "context"

// Format identifies the serialization of a persisted payload.
type Format string

const (
	FormatJSON    Format = "json"
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
)

// WriteResult reports the outcome of a single write.
type WriteResult struct {
	Path         string `json:"path"`
	BytesWritten int64  `json:"bytes_written"`
}

// Sink persists one encoded payload at a deterministic path.
type Sink interface {
	// Write stores payload at path, replacing any previous object.
	Write(ctx context.Context, path string, payload []byte, format Format) (*WriteResult, error)

	// Close releases any held resources.
	Close() error
}
