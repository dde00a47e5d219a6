// Package slack downloads conversation history from the Slack Web API and
// writes it as Parquet for analytics consumers.
package slack

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/prodbi/extractor/pkg/config"
	"github.com/prodbi/extractor/pkg/connector"
	"github.com/prodbi/extractor/pkg/engine"
	"github.com/prodbi/extractor/pkg/errors"
	jsonpool "github.com/prodbi/extractor/pkg/json"
	"github.com/prodbi/extractor/pkg/sink"
	"github.com/prodbi/extractor/pkg/sink/encode"
)

const (
	// Name is the registry key.
	Name = "slack"

	defaultBaseURL  = "https://slack.com/api"
	defaultPageSize = 1000

	// conversations.history rejects limits above 1000.
	maxPageSize = 1000
)

// Connector implements connector.Connector for Slack conversation history.
type Connector struct{}

// New creates the connector.
func New() *Connector { return &Connector{} }

// Name implements connector.Connector.
func (c *Connector) Name() string { return Name }

// BuildJob implements connector.Connector.
func (c *Connector) BuildJob(cfg *config.JobConfig, deps connector.Deps) (*engine.DownloadJob, error) {
	params := cfg.Params
	if params.AuthToken == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "auth_token parameter is required (bot user OAuth token)")
	}
	channel := strings.TrimPrefix(params.Channel, "#")
	if channel == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "channel parameter is required")
	}

	baseURL := params.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	pageSize := params.PageSize
	if pageSize <= 0 || pageSize > maxPageSize {
		pageSize = defaultPageSize
	}
	prefix := params.FilenamePrefix
	if prefix == "" {
		prefix = "slack"
	}
	root := strings.TrimSuffix(params.RootPath, "/")
	if root == "" {
		root = "Communication/Slack/Channels"
	}

	auth := engine.NewBearerTokenProvider(params.AuthToken)

	builder := &historyQuery{
		channel: channel,
		oldest:  params.StartDate,
		latest:  params.EndDate,
	}

	spec := engine.QuerySpec{
		Protocol: engine.ProtocolREST,
		Endpoint: baseURL + "/conversations.history",
		PageSize: pageSize,
		Build:    builder.build,
		Parse:    parseHistoryPage,
	}

	return &engine.DownloadJob{
		ConnectorID:  Name,
		Source:       baseURL,
		ItemType:     "messages",
		Spec:         spec,
		Auth:         auth,
		InitialState: engine.NewCursorState(),
		Filter:       &engine.ParentIDEnricher{Field: "channel_id", ParentID: channel},
		Retry:        engine.NewRetryPolicy(deps.Logger),
		SafetyLimit:  cfg.Reliability.SafetyLimit,
		EmptyPolicy:  engine.EmptyWriteSignal,
		Path:         fmt.Sprintf("%s/%s_messages_%s.parquet", root, prefix, channel),
		Format:       sink.FormatParquet,
		Encode:       encode.Parquet,
		Extra:        map[string]interface{}{"channel": channel},
		Executor:     deps.Executor,
		Sink:         deps.Sink,
		Logger:       deps.Logger,
	}, nil
}

type historyQuery struct {
	channel string
	oldest  string
	latest  string
}

func (q *historyQuery) build(spec engine.QuerySpec, state engine.PageState) (*engine.PageRequest, error) {
	query := url.Values{}
	query.Set("channel", q.channel)
	query.Set("limit", strconv.Itoa(spec.PageSize))
	if q.oldest != "" {
		query.Set("oldest", q.oldest)
	}
	if q.latest != "" {
		query.Set("latest", q.latest)
	}
	if state.Cursor != "" {
		query.Set("cursor", state.Cursor)
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")

	return &engine.PageRequest{
		Method: http.MethodGet,
		URL:    spec.Endpoint + "?" + query.Encode(),
		Header: header,
	}, nil
}

// parseHistoryPage reads a conversations.history envelope. The Web API
// reports failures as ok=false inside a 200 response, so the error field has
// to be checked before the payload.
func parseHistoryPage(state engine.PageState, body []byte) (*engine.FetchResult, error) {
	var payload struct {
		OK       bool            `json:"ok"`
		Error    string          `json:"error"`
		Messages []engine.Record `json:"messages"`
		HasMore  bool            `json:"has_more"`
		Metadata struct {
			NextCursor string `json:"next_cursor"`
		} `json:"response_metadata"`
	}
	if err := jsonpool.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	if !payload.OK {
		return nil, errors.Newf(errors.ErrorTypeAPI, "slack api error: %s", payload.Error)
	}

	next := payload.Metadata.NextCursor
	return &engine.FetchResult{
		Records:   payload.Messages,
		HasMore:   payload.HasMore && next != "",
		NextState: state.WithCursor(next),
	}, nil
}
