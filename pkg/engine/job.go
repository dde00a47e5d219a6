package engine

import (
	"context"
	"fmt"
	gopath "path"

	"go.uber.org/zap"

	"github.com/prodbi/extractor/pkg/errors"
	jsonpool "github.com/prodbi/extractor/pkg/json"
	"github.com/prodbi/extractor/pkg/logger"
	"github.com/prodbi/extractor/pkg/metrics"
	"github.com/prodbi/extractor/pkg/sink"
)

// EncodeFunc serializes an assembled dataset into the sink payload.
type EncodeFunc func(dataset *Dataset) ([]byte, error)

// PostProcessFunc runs after a successful sink write. Connectors use it for
// follow-up work on the persisted dataset, such as downloading referenced
// assets, and may add fields to the result descriptor.
type PostProcessFunc func(ctx context.Context, dataset *Dataset, result *Result) error

// ExpandFunc replaces the driven records before assembly. Connectors whose
// item type hangs off a parent (variants under products) drive the parent
// listing, then expand each parent into its child records here.
type ExpandFunc func(ctx context.Context, records []Record) ([]Record, error)

// DownloadJob is one bounded extraction: authenticate, page through a result
// set, filter, assemble, persist once. Created per invocation and discarded;
// only the auth provider's credential cache outlives it.
type DownloadJob struct {
	ConnectorID string
	Source      string
	ItemType    string

	Spec         QuerySpec
	Auth         AuthProvider
	InitialState PageState
	Filter       RecordFilter
	Retry        *RetryPolicy
	SafetyLimit  int

	EmptyPolicy EmptyResultPolicy
	Path        string
	Format      sink.Format
	Encode      EncodeFunc

	Expand      ExpandFunc
	PostProcess PostProcessFunc
	Extra       map[string]interface{}

	Executor  QueryExecutor
	Sink      sink.Sink
	Logger    *zap.Logger
	Collector *metrics.Collector
}

// Result is the uniform descriptor returned to the caller, success or error.
// Connector-specific extras are merged into the serialized form at top level.
type Result struct {
	Status       string
	Message      string
	ErrorKind    string
	RecordsCount int
	Filename     string
	Path         *string
	Truncated    bool
	Extra        map[string]interface{}
}

// MarshalJSON flattens the descriptor and its extras into one object.
func (r *Result) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{
		"status":        r.Status,
		"message":       r.Message,
		"records_count": r.RecordsCount,
		"filename":      r.Filename,
		"path":          r.Path,
	}
	if r.ErrorKind != "" {
		out["error"] = r.ErrorKind
	}
	if r.Truncated {
		out["truncated"] = true
	}
	for k, v := range r.Extra {
		out[k] = v
	}
	return jsonpool.Marshal(out)
}

// Run executes the job to completion. The returned Result is always usable
// as the response body; the error mirrors Result for callers that need an
// exit code. Nothing fetched is written unless the whole job succeeds.
func (j *DownloadJob) Run(ctx context.Context) (*Result, error) {
	log := j.Logger
	if log == nil {
		log = logger.WithContext(ctx)
	}
	log = log.With(
		zap.String("connector", j.ConnectorID),
		zap.String("source", j.Source),
		zap.String("item_type", j.ItemType),
	)
	collector := j.Collector
	if collector == nil {
		collector = metrics.NewCollector(j.ConnectorID)
	}

	driver := &PaginationDriver{
		Executor:    j.Executor,
		Auth:        j.Auth,
		Retry:       j.Retry,
		Filter:      j.Filter,
		SafetyLimit: j.SafetyLimit,
		Logger:      log,
		Collector:   collector,
	}

	drive, err := driver.Run(ctx, j.Spec, j.InitialState)
	if err != nil {
		collector.JobFinished("error")
		return j.errorResult(err, drive), err
	}

	if j.Expand != nil {
		expanded, err := j.Expand(ctx, drive.Records)
		if err != nil {
			collector.JobFinished("error")
			return j.errorResult(err, drive), err
		}
		drive.Records = expanded
	}

	assembler := &ResultAssembler{
		Source:   j.Source,
		ItemType: j.ItemType,
		PageSize: j.Spec.PageSize,
	}
	dataset := assembler.Assemble(drive)

	extra := j.Extra
	if extra == nil {
		extra = map[string]interface{}{}
	}
	result := &Result{
		Status:       "success",
		RecordsCount: dataset.TotalCount,
		Truncated:    drive.Truncated,
		Extra:        extra,
	}

	if dataset.TotalCount == 0 && j.EmptyPolicy == EmptySuppress {
		result.Message = fmt.Sprintf("no %s found, nothing written", j.itemLabel())
		log.Info("empty result suppressed")
		collector.JobFinished("success")
		return result, nil
	}

	payload, err := j.encode(dataset)
	if err != nil {
		wrapped := errors.Wrap(err, errors.ErrorTypeData, "failed to encode dataset")
		collector.JobFinished("error")
		return j.errorResult(wrapped, drive), wrapped
	}

	written, err := j.Sink.Write(ctx, j.Path, payload, j.Format)
	if err != nil {
		wrapped := errors.Wrap(err, errors.ErrorTypeSink, "failed to persist dataset")
		collector.JobFinished("error")
		return j.errorResult(wrapped, drive), wrapped
	}
	metrics.SinkBytesWritten.WithLabelValues(string(j.Format)).Add(float64(written.BytesWritten))

	path := written.Path
	result.Path = &path
	result.Filename = gopath.Base(path)

	if j.PostProcess != nil {
		if err := j.PostProcess(ctx, dataset, result); err != nil {
			collector.JobFinished("error")
			return j.errorResult(err, drive), err
		}
	}

	switch {
	case drive.Truncated:
		result.Message = fmt.Sprintf("fetched %d %s across %d pages, stopped at page limit",
			dataset.TotalCount, j.itemLabel(), drive.PagesFetched)
	default:
		result.Message = fmt.Sprintf("fetched %d %s across %d pages",
			dataset.TotalCount, j.itemLabel(), drive.PagesFetched)
	}

	log.Info("job completed",
		zap.Int("records", dataset.TotalCount),
		zap.Int("pages", drive.PagesFetched),
		zap.Bool("truncated", drive.Truncated),
		zap.String("path", path),
		zap.Int64("bytes_written", written.BytesWritten))
	collector.JobFinished("success")
	return result, nil
}

func (j *DownloadJob) encode(dataset *Dataset) ([]byte, error) {
	if j.Encode != nil {
		return j.Encode(dataset)
	}
	return jsonpool.Marshal(dataset)
}

// errorResult maps any internal failure to the uniform error descriptor.
// Records accumulated before the failure are counted in the report but are
// never written.
func (j *DownloadJob) errorResult(err error, drive *DriveResult) *Result {
	result := &Result{
		Status:    "error",
		Message:   err.Error(),
		ErrorKind: string(errors.TypeOf(err)),
		Extra:     j.Extra,
	}
	if drive != nil {
		result.RecordsCount = len(drive.Records)
		result.Truncated = drive.Truncated
	}
	return result
}

func (j *DownloadJob) itemLabel() string {
	if j.ItemType != "" {
		return j.ItemType
	}
	return "records"
}
