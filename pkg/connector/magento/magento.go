// Package magento downloads catalog data from the Magento 2 REST API using
// searchCriteria pagination.
package magento

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
)

const (
	// Name is the registry key.
	Name = "magento"

	defaultAPIVersion = "V1"
	defaultChannel    = "default"

	// The Magento search API degrades with large pages; 50 is the sweet
	// spot observed in production.
	defaultPageSize = 50

	// categories return everything in one request; currentPage is not
	// reliable on that endpoint
	categoriesPageSize = 5000
)

var validItems = map[string]bool{
	"products":   true,
	"categories": true,
	"stockitems": true,
	"stockItems": true,
}

// Connector implements connector.Connector for Magento.
type Connector struct{}

// New creates the connector.
func New() *Connector { return &Connector{} }

// Name implements connector.Connector.
func (c *Connector) Name() string { return Name }

// BuildJob implements connector.Connector.
func (c *Connector) BuildJob(cfg *config.JobConfig, deps connector.Deps) (*engine.DownloadJob, error) {
	params := cfg.Params
	if params.AuthToken == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "auth_token parameter is required")
	}
	if params.BaseURL == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "base_url parameter is required")
	}

	item := params.Item
	if item == "" {
		item = "products"
	}
	if !validItems[item] {
		return nil, errors.Newf(errors.ErrorTypeValidation,
			"item must be 'products', 'categories' or 'stockitems', got %q", item)
	}

	baseURL := params.BaseURL
	if !strings.HasPrefix(baseURL, "http") {
		baseURL = "https://" + baseURL
	}
	apiVersion := params.APIVersion
	if apiVersion == "" {
		apiVersion = defaultAPIVersion
	}
	channel := params.Channel
	if channel == "" {
		channel = defaultChannel
	}
	pageSize := params.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	prefix := params.FilenamePrefix
	if prefix == "" {
		prefix = item
	}

	var endpoint string
	switch item {
	case "categories":
		endpoint = fmt.Sprintf("%s/rest/%s/%s/categories/list", baseURL, channel, apiVersion)
	case "stockitems", "stockItems":
		endpoint = fmt.Sprintf("%s/rest/%s/%s/stockItems/lowStock", baseURL, channel, apiVersion)
	default:
		endpoint = fmt.Sprintf("%s/rest/%s/%s/%s", baseURL, channel, apiVersion, item)
	}

	builder := &queryBuilder{item: item, storeID: params.StoreID}

	spec := engine.QuerySpec{
		Protocol: engine.ProtocolREST,
		Endpoint: endpoint,
		PageSize: pageSize,
		Build:    builder.build,
		Parse:    makePageParser(item, pageSize),
	}

	return &engine.DownloadJob{
		ConnectorID:  Name,
		Source:       baseURL,
		ItemType:     item,
		Spec:         spec,
		Auth:         engine.NewBearerTokenProvider(params.AuthToken),
		InitialState: engine.NewPageNumberState(),
		Retry:        engine.NewRetryPolicy(deps.Logger),
		SafetyLimit:  cfg.Reliability.SafetyLimit,
		EmptyPolicy:  engine.EmptyWriteSignal,
		Path:         fmt.Sprintf("%s/%s-%s.json", strings.TrimSuffix(params.RootPath, "/"), prefix, item),
		Format:       sink.FormatJSON,
		Executor:     deps.Executor,
		Sink:         deps.Sink,
		Logger:       deps.Logger,
	}, nil
}

type queryBuilder struct {
	item    string
	storeID string
}

func (b *queryBuilder) build(spec engine.QuerySpec, state engine.PageState) (*engine.PageRequest, error) {
	query := url.Values{}

	switch b.item {
	case "stockitems", "stockItems":
		query.Set("scopeId", "0")
		query.Set("qty", "1000")
		query.Set("pageSize", strconv.Itoa(spec.PageSize))
		query.Set("currentPage", strconv.Itoa(state.Page))
		query.Set("fields", "items[item_id,product_id,qty]")
	case "categories":
		query.Set("searchCriteria[pageSize]", strconv.Itoa(categoriesPageSize))
		query.Set("fields", "items[id,parent_id,name,position]")
	default:
		if b.storeID != "" {
			query.Set("searchCriteria[filter_groups][0][filters][0][field]", "store_id")
			query.Set("searchCriteria[filter_groups][0][filters][0][value]", b.storeID)
			query.Set("searchCriteria[filter_groups][0][filters][0][condition_type]", "eq")
		}
		query.Set("searchCriteria[pageSize]", strconv.Itoa(spec.PageSize))
		query.Set("searchCriteria[currentPage]", strconv.Itoa(state.Page))
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")

	return &engine.PageRequest{
		Method: http.MethodGet,
		URL:    spec.Endpoint + "?" + query.Encode(),
		Header: header,
	}, nil
}

// makePageParser stops when a page comes back short of the page size;
// Magento's total_count is unreliable across item types. Categories always
// terminate after one request.
func makePageParser(item string, pageSize int) engine.PageParser {
	singleShot := item == "categories"
	return func(state engine.PageState, body []byte) (*engine.FetchResult, error) {
		var payload struct {
			Items []engine.Record `json:"items"`
		}
		if err := jsonpool.Unmarshal(body, &payload); err != nil {
			return nil, err
		}

		return &engine.FetchResult{
			Records:   payload.Items,
			HasMore:   !singleShot && len(payload.Items) >= pageSize,
			NextState: state.NextPage(),
		}, nil
	}
}
