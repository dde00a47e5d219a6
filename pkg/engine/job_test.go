package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/prodbi/extractor/pkg/errors"
	jsonpool "github.com/prodbi/extractor/pkg/json"
	"github.com/prodbi/extractor/pkg/sink"
)

// memorySink captures writes for assertions.
type memorySink struct {
	writes  map[string][]byte
	formats map[string]sink.Format
	failure error
}

func newMemorySink() *memorySink {
	return &memorySink{
		writes:  make(map[string][]byte),
		formats: make(map[string]sink.Format),
	}
}

func (m *memorySink) Write(_ context.Context, path string, payload []byte, format sink.Format) (*sink.WriteResult, error) {
	if m.failure != nil {
		return nil, m.failure
	}
	m.writes[path] = payload
	m.formats[path] = format
	return &sink.WriteResult{Path: path, BytesWritten: int64(len(payload))}, nil
}

func (m *memorySink) Close() error { return nil }

func newTestJob(t *testing.T, exec QueryExecutor, store *memorySink) *DownloadJob {
	return &DownloadJob{
		ConnectorID:  "test",
		Source:       "acme",
		ItemType:     "orders",
		Spec:         QuerySpec{PageSize: 10},
		Auth:         NewStaticTokenProvider("Authorization", "tok"),
		InitialState: NewPageNumberState(),
		EmptyPolicy:  EmptyWriteSignal,
		Path:         "out/acme-orders.json",
		Format:       sink.FormatJSON,
		Executor:     exec,
		Sink:         store,
		Logger:       zaptest.NewLogger(t),
	}
}

func TestJobSuccessWritesOnce(t *testing.T) {
	exec := &scriptedExecutor{
		pages: []*FetchResult{
			{Records: makeRecords(4, "o"), HasMore: false},
		},
	}
	store := newMemorySink()
	job := newTestJob(t, exec, store)

	result, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "success", result.Status)
	assert.Equal(t, 4, result.RecordsCount)
	require.NotNil(t, result.Path)
	assert.Equal(t, "out/acme-orders.json", *result.Path)
	assert.Equal(t, "acme-orders.json", result.Filename)
	assert.Len(t, store.writes, 1)
	assert.Equal(t, sink.FormatJSON, store.formats["out/acme-orders.json"])

	var dataset Dataset
	require.NoError(t, jsonpool.Unmarshal(store.writes["out/acme-orders.json"], &dataset))
	assert.Equal(t, 4, dataset.TotalCount)
	assert.Equal(t, "acme", dataset.Metadata.Source)
}

func TestJobEmptySignalWritesEmptyArtifact(t *testing.T) {
	exec := &scriptedExecutor{
		pages: []*FetchResult{{HasMore: false}},
	}
	store := newMemorySink()
	job := newTestJob(t, exec, store)

	result, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "success", result.Status)
	assert.Equal(t, 0, result.RecordsCount)
	require.NotNil(t, result.Path)
	assert.Contains(t, store.writes, "out/acme-orders.json")
}

func TestJobEmptySuppressSkipsSink(t *testing.T) {
	exec := &scriptedExecutor{
		pages: []*FetchResult{{HasMore: false}},
	}
	store := newMemorySink()
	job := newTestJob(t, exec, store)
	job.EmptyPolicy = EmptySuppress

	result, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "success", result.Status)
	assert.Equal(t, 0, result.RecordsCount)
	assert.Nil(t, result.Path)
	assert.Empty(t, store.writes)
}

func TestJobFetchFailureDiscardsPartialWrite(t *testing.T) {
	boom := errors.NewAPIError(404, "not found")
	exec := &scriptedExecutor{
		pages: []*FetchResult{
			{Records: makeRecords(7, "o"), HasMore: true, NextState: NewPageNumberState().NextPage()},
			nil,
		},
		errs: []error{nil, boom},
	}
	store := newMemorySink()
	job := newTestJob(t, exec, store)

	result, err := job.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, "error", result.Status)
	assert.Equal(t, "api", result.ErrorKind)
	// prior pages are reported but never written
	assert.Equal(t, 7, result.RecordsCount)
	assert.Nil(t, result.Path)
	assert.Empty(t, store.writes)
}

func TestJobSinkFailureSurfaces(t *testing.T) {
	exec := &scriptedExecutor{
		pages: []*FetchResult{
			{Records: makeRecords(2, "o"), HasMore: false},
		},
	}
	store := newMemorySink()
	store.failure = errors.New(errors.ErrorTypeSink, "bucket unavailable")
	job := newTestJob(t, exec, store)

	result, err := job.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, "error", result.Status)
	assert.Equal(t, "sink", result.ErrorKind)
	assert.Nil(t, result.Path)
}

func TestJobIdempotentPath(t *testing.T) {
	store := newMemorySink()
	for i := 0; i < 2; i++ {
		exec := &scriptedExecutor{
			pages: []*FetchResult{
				{Records: []Record{{"id": "same"}}, HasMore: false},
			},
		}
		job := newTestJob(t, exec, store)
		result, err := job.Run(context.Background())
		require.NoError(t, err)
		require.NotNil(t, result.Path)
		assert.Equal(t, "out/acme-orders.json", *result.Path)
	}
	// two runs, one object: overwrite, not duplication
	assert.Len(t, store.writes, 1)
}

func TestJobPostProcessAddsExtras(t *testing.T) {
	exec := &scriptedExecutor{
		pages: []*FetchResult{
			{Records: makeRecords(1, "a"), HasMore: false},
		},
	}
	store := newMemorySink()
	job := newTestJob(t, exec, store)
	job.Extra = map[string]interface{}{"board_id": int64(42)}
	job.PostProcess = func(_ context.Context, dataset *Dataset, result *Result) error {
		result.Extra["csv_files_downloaded"] = dataset.TotalCount
		return nil
	}

	result, err := job.Run(context.Background())
	require.NoError(t, err)

	body, err := jsonpool.Marshal(result)
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, jsonpool.Unmarshal(body, &decoded))
	assert.Equal(t, "success", decoded["status"])
	assert.EqualValues(t, 42, decoded["board_id"])
	assert.EqualValues(t, 1, decoded["csv_files_downloaded"])
	assert.Equal(t, "acme-orders.json", decoded["filename"])
}

func TestJobTruncationFlaggedNotFailed(t *testing.T) {
	exec := &endlessExecutor{}
	store := newMemorySink()
	job := newTestJob(t, exec, store)
	job.SafetyLimit = 5
	job.InitialState = NewPageNumberState()

	result, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "success", result.Status)
	assert.True(t, result.Truncated)
	assert.Equal(t, 5, result.RecordsCount)
	assert.Contains(t, result.Message, "page limit")
}

func TestResultErrorDescriptorShape(t *testing.T) {
	result := &Result{
		Status:    "error",
		Message:   "token exchange failed",
		ErrorKind: "authentication",
	}
	body, err := jsonpool.Marshal(result)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, jsonpool.Unmarshal(body, &decoded))
	assert.Equal(t, "error", decoded["status"])
	assert.Equal(t, "authentication", decoded["error"])
	assert.Nil(t, decoded["path"])
	assert.EqualValues(t, 0, decoded["records_count"])
}
