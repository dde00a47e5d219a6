package engine

import (
	"bytes"
	"context"
	goerrors "errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/prodbi/extractor/pkg/clients"
	"github.com/prodbi/extractor/pkg/errors"
)

// Protocol identifies the upstream query shape.
type Protocol string

const (
	ProtocolREST    Protocol = "rest"
	ProtocolGraphQL Protocol = "graphql"
)

// Record is one raw upstream record as decoded from a page body.
type Record = map[string]interface{}

// RequestBuilder produces the single HTTP request for one page. REST
// connectors interpolate the state into query parameters; GraphQL connectors
// interpolate the cursor into the query document.
type RequestBuilder func(spec QuerySpec, state PageState) (*PageRequest, error)

// PageParser decodes one response body into records plus the next position.
type PageParser func(state PageState, body []byte) (*FetchResult, error)

// QuerySpec is the immutable descriptor of how a connector queries its
// platform. It is supplied at connector-configuration time and never mutated
// during a job.
type QuerySpec struct {
	Protocol Protocol
	Endpoint string
	PageSize int

	Build RequestBuilder
	Parse PageParser
}

// PageRequest is one fully-formed upstream request before auth is applied.
type PageRequest struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// FetchResult is one decoded page. HasMore=false is terminal regardless of
// NextState.
type FetchResult struct {
	Records   []Record
	HasMore   bool
	NextState PageState
}

// QueryExecutor fetches one page of results.
type QueryExecutor interface {
	FetchPage(ctx context.Context, spec QuerySpec, creds Credentials, state PageState) (*FetchResult, error)
}

// HTTPQueryExecutor executes page requests over HTTP with a fixed per-request
// timeout. Body parsing is delegated to the connector's PageParser.
type HTTPQueryExecutor struct {
	client  *clients.HTTPClient
	timeout time.Duration
	logger  *zap.Logger
}

// NewHTTPQueryExecutor builds an executor over the shared HTTP client.
// A non-positive timeout defaults to 60s.
func NewHTTPQueryExecutor(client *clients.HTTPClient, timeout time.Duration, logger *zap.Logger) *HTTPQueryExecutor {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPQueryExecutor{
		client:  client,
		timeout: timeout,
		logger:  logger.With(zap.String("component", "query_executor")),
	}
}

// FetchPage implements QueryExecutor. Non-2xx responses and unparsable bodies
// surface as api errors; the retry layer decides disposition.
func (e *HTTPQueryExecutor) FetchPage(ctx context.Context, spec QuerySpec, creds Credentials, state PageState) (*FetchResult, error) {
	if spec.Build == nil || spec.Parse == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "query spec missing request builder or page parser")
	}

	pageReq, err := spec.Build(spec, state)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to build page request")
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var bodyReader io.Reader
	if len(pageReq.Body) > 0 {
		bodyReader = bytes.NewReader(pageReq.Body)
	}

	req, err := http.NewRequestWithContext(ctx, pageReq.Method, pageReq.URL, bodyReader)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to create HTTP request")
	}
	for key, values := range pageReq.Header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	creds.Apply(req)

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeTimeout, "page request timed out")
		}
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "page request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to read response body")
	}

	e.logger.Debug("fetched page",
		zap.String("url", pageReq.URL),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(body)),
		zap.Duration("latency", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.NewAPIError(resp.StatusCode, string(body))
	}

	result, err := spec.Parse(state, body)
	if err != nil {
		var typed *errors.Error
		if goerrors.As(err, &typed) {
			return nil, err
		}
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to parse page body")
	}
	return result, nil
}
