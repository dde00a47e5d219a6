// Package bigcommerce downloads catalog data from the BigCommerce v3 REST
// API. Top-level item types page through the catalog listing; variants,
// options and images are fetched per product and tagged with the product id.
package bigcommerce

import (
	"context"
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
	Name = "bigcommerce"

	defaultAPIVersion = "v3"
	defaultPageSize   = 250
)

// childItems are the item types that hang off a product.
var childItems = map[string]bool{
	"variants": true,
	"options":  true,
	"images":   true,
}

// Connector implements connector.Connector for BigCommerce.
type Connector struct{}

// New creates the connector.
func New() *Connector { return &Connector{} }

// Name implements connector.Connector.
func (c *Connector) Name() string { return Name }

// BuildJob implements connector.Connector. The base URL parameter accepts
// either a full API URL or a bare store hash.
func (c *Connector) BuildJob(cfg *config.JobConfig, deps connector.Deps) (*engine.DownloadJob, error) {
	params := cfg.Params
	if params.AuthToken == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "auth_token parameter is required")
	}
	if params.BaseURL == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "base_url parameter is required")
	}

	baseURL := params.BaseURL
	if !strings.HasPrefix(baseURL, "http") {
		baseURL = "https://api.bigcommerce.com/stores/" + baseURL
	}
	apiVersion := params.APIVersion
	if apiVersion == "" {
		apiVersion = defaultAPIVersion
	}
	item := params.Item
	if item == "" {
		item = "products"
	}
	pageSize := params.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	prefix := params.FilenamePrefix
	if prefix == "" {
		prefix = Name
	}

	// child item types drive the product listing, then expand per product
	listItem := item
	if childItems[item] {
		listItem = "products"
	}

	spec := engine.QuerySpec{
		Protocol: engine.ProtocolREST,
		Endpoint: fmt.Sprintf("%s/%s/catalog/%s", baseURL, apiVersion, listItem),
		PageSize: pageSize,
		Build:    buildCatalogRequest,
		Parse:    parseCatalogPage,
	}

	auth := engine.NewStaticTokenProvider("X-Auth-Token", params.AuthToken)
	retry := engine.NewRetryPolicy(deps.Logger)

	job := &engine.DownloadJob{
		ConnectorID:  Name,
		Source:       baseURL,
		ItemType:     item,
		Spec:         spec,
		Auth:         auth,
		InitialState: engine.NewPageNumberState(),
		Retry:        retry,
		SafetyLimit:  cfg.Reliability.SafetyLimit,
		EmptyPolicy:  engine.EmptyWriteSignal,
		Path:         fmt.Sprintf("%s/%s-%s.json", strings.TrimSuffix(params.RootPath, "/"), prefix, item),
		Format:       sink.FormatJSON,
		Executor:     deps.Executor,
		Sink:         deps.Sink,
		Logger:       deps.Logger,
	}

	if childItems[item] {
		fetcher := &childFetcher{
			baseURL:    baseURL,
			apiVersion: apiVersion,
			item:       item,
			pageSize:   pageSize,
			auth:       auth,
			retry:      retry,
			executor:   deps.Executor,
		}
		job.Expand = fetcher.expand
	}

	return job, nil
}

func buildCatalogRequest(spec engine.QuerySpec, state engine.PageState) (*engine.PageRequest, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(spec.PageSize))
	query.Set("page", strconv.Itoa(state.Page))

	header := http.Header{}
	header.Set("Accept", "application/json")

	return &engine.PageRequest{
		Method: http.MethodGet,
		URL:    spec.Endpoint + "?" + query.Encode(),
		Header: header,
	}, nil
}

func parseCatalogPage(state engine.PageState, body []byte) (*engine.FetchResult, error) {
	var payload struct {
		Data []engine.Record `json:"data"`
		Meta struct {
			Pagination struct {
				CurrentPage int `json:"current_page"`
				TotalPages  int `json:"total_pages"`
			} `json:"pagination"`
		} `json:"meta"`
	}
	if err := jsonpool.Unmarshal(body, &payload); err != nil {
		return nil, err
	}

	current := payload.Meta.Pagination.CurrentPage
	if current == 0 {
		current = state.Page
	}
	hasMore := len(payload.Data) > 0 && current < payload.Meta.Pagination.TotalPages

	return &engine.FetchResult{
		Records:   payload.Data,
		HasMore:   hasMore,
		NextState: state.NextPage(),
	}, nil
}

// childFetcher expands a driven product listing into per-product child
// records. Each product takes one request; the parent id is attached to
// every child so downstream joins don't need the request context.
type childFetcher struct {
	baseURL    string
	apiVersion string
	item       string
	pageSize   int
	auth       engine.AuthProvider
	retry      *engine.RetryPolicy
	executor   engine.QueryExecutor
}

func (f *childFetcher) expand(ctx context.Context, products []engine.Record) ([]engine.Record, error) {
	expanded := make([]engine.Record, 0, len(products))

	for _, product := range products {
		productID, ok := productID(product)
		if !ok {
			continue
		}

		spec := engine.QuerySpec{
			Protocol: engine.ProtocolREST,
			Endpoint: fmt.Sprintf("%s/%s/catalog/products/%s/%s", f.baseURL, f.apiVersion, productID, f.item),
			PageSize: f.pageSize,
			Build:    buildCatalogRequest,
			Parse:    parseCatalogPage,
		}

		var children []engine.Record
		fetch := func(ctx context.Context) error {
			creds, err := f.auth.Credentials(ctx)
			if err != nil {
				return err
			}
			result, err := f.executor.FetchPage(ctx, spec, creds, engine.NewPageNumberState())
			if err != nil {
				return err
			}
			children = result.Records
			return nil
		}

		if err := f.retry.Execute(ctx, fetch); err != nil {
			return nil, errors.Wrap(err, errors.TypeOf(err),
				fmt.Sprintf("failed to fetch %s for product %s", f.item, productID))
		}

		enricher := &engine.ParentIDEnricher{Field: "product_id", ParentID: productID}
		expanded = append(expanded, enricher.Apply(children)...)
	}

	return expanded, nil
}

// productID renders the numeric product id as a string; JSON numbers decode
// as float64.
func productID(product engine.Record) (string, bool) {
	switch id := product["id"].(type) {
	case float64:
		return strconv.FormatInt(int64(id), 10), true
	case string:
		return id, id != ""
	case int64:
		return strconv.FormatInt(id, 10), true
	default:
		return "", false
	}
}
