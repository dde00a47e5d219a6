package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/prodbi/extractor/pkg/errors"
	"github.com/prodbi/extractor/pkg/metrics"
)

// DefaultSafetyLimit caps pages fetched per job. Several vendor APIs have
// been observed to report more pages indefinitely under malformed filter
// parameters; the cap bounds runtime while surfacing a truncation signal.
const DefaultSafetyLimit = 50

// driverState is the fetch loop position.
type driverState int

const (
	stateStart driverState = iota
	stateFetching
	stateMorePages
	stateDone
	stateFailed
)

// DriveResult is the outcome of one multi-page fetch loop. On failure the
// records accumulated from prior pages are preserved alongside the error.
type DriveResult struct {
	Records      []Record
	PagesFetched int

	// Truncated is set when the safety limit stopped the loop while the
	// upstream still reported more pages.
	Truncated bool

	// Exhausted is set when the upstream signalled completion.
	Exhausted bool
}

// PaginationDriver drives the multi-page fetch loop to completion, a stop
// condition, or failure. Pages are fetched strictly one after another because
// each request depends on the prior page's cursor or offset.
type PaginationDriver struct {
	Executor    QueryExecutor
	Auth        AuthProvider
	Retry       *RetryPolicy
	Filter      RecordFilter
	SafetyLimit int

	Logger    *zap.Logger
	Collector *metrics.Collector
}

// Run executes the fetch loop from the strategy's initial state. A non-nil
// error always comes with the partial DriveResult accumulated so far.
func (d *PaginationDriver) Run(ctx context.Context, spec QuerySpec, initial PageState) (*DriveResult, error) {
	limit := d.SafetyLimit
	if limit <= 0 {
		limit = DefaultSafetyLimit
	}
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if d.Retry != nil && d.Collector != nil && d.Retry.OnRetry == nil {
		d.Retry.OnRetry = func(int, error) { d.Collector.Retried() }
	}

	result := &DriveResult{Records: make([]Record, 0, spec.PageSize)}
	state := initial
	loopState := stateStart

	for {
		switch loopState {
		case stateStart:
			loopState = stateFetching

		case stateFetching:
			fetched, err := d.fetchOnce(ctx, spec, state)
			if err != nil {
				loopState = stateFailed
				logger.Error("page fetch failed",
					zap.Int("pages_fetched", result.PagesFetched),
					zap.Error(err))
				return result, err
			}

			result.PagesFetched++

			records := fetched.Records
			if d.Filter != nil {
				records = d.Filter.Apply(records)
			}
			result.Records = append(result.Records, records...)
			if d.Collector != nil {
				d.Collector.RecordsAccumulated(len(records))
			}

			logger.Debug("page accumulated",
				zap.Int("page", result.PagesFetched),
				zap.Int("records", len(records)),
				zap.Bool("has_more", fetched.HasMore))

			switch {
			case !fetched.HasMore:
				result.Exhausted = true
				loopState = stateDone
			case result.PagesFetched >= limit:
				result.Truncated = true
				logger.Warn("safety limit reached, truncating fetch",
					zap.Int("limit", limit),
					zap.Int("records", len(result.Records)))
				loopState = stateDone
			default:
				next, err := state.Advance(fetched.NextState)
				if err != nil {
					loopState = stateFailed
					return result, err
				}
				state = next
				loopState = stateMorePages
			}

		case stateMorePages:
			loopState = stateFetching

		case stateDone:
			return result, nil
		}
	}
}

// fetchOnce performs one page fetch through the retry policy. Credentials are
// re-requested per attempt so an expired token is refreshed mid-loop.
func (d *PaginationDriver) fetchOnce(ctx context.Context, spec QuerySpec, state PageState) (*FetchResult, error) {
	var fetched *FetchResult

	fetch := func(ctx context.Context) error {
		creds, err := d.Auth.Credentials(ctx)
		if err != nil {
			return err
		}
		start := time.Now()
		fr, err := d.Executor.FetchPage(ctx, spec, creds, state)
		if d.Collector != nil {
			d.Collector.PageFetched(err == nil, time.Since(start))
		}
		if err != nil {
			return err
		}
		fetched = fr
		return nil
	}

	var err error
	if d.Retry != nil {
		err = d.Retry.Execute(ctx, fetch)
	} else {
		err = fetch(ctx)
	}
	if err != nil {
		return nil, err
	}
	if fetched == nil {
		return nil, errors.New(errors.ErrorTypeInternal, "executor returned no result")
	}
	return fetched, nil
}
