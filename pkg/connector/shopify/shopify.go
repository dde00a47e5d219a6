// Package shopify downloads the product catalog of a Shopify store through
// the Admin GraphQL API, following cursor pagination.
package shopify

import (
	"fmt"
	"net/http"
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
	Name = "shopify"

	defaultAPIVersion = "2024-10"
	defaultPageSize   = 250
)

// Connector implements connector.Connector for Shopify.
type Connector struct{}

// New creates the connector.
func New() *Connector { return &Connector{} }

// Name implements connector.Connector.
func (c *Connector) Name() string { return Name }

// BuildJob implements connector.Connector. The source parameter is the store
// subdomain, e.g. "acme-outlet" for acme-outlet.myshopify.com.
func (c *Connector) BuildJob(cfg *config.JobConfig, deps connector.Deps) (*engine.DownloadJob, error) {
	params := cfg.Params
	if params.AuthToken == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "auth_token parameter is required")
	}
	if params.BaseURL == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "base_url parameter is required, e.g. the store subdomain")
	}

	apiVersion := params.APIVersion
	if apiVersion == "" {
		apiVersion = defaultAPIVersion
	}
	pageSize := params.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	prefix := params.FilenamePrefix
	if prefix == "" {
		prefix = Name
	}

	endpoint := fmt.Sprintf("https://%s.myshopify.com/admin/api/%s/graphql.json", params.BaseURL, apiVersion)

	spec := engine.QuerySpec{
		Protocol: engine.ProtocolGraphQL,
		Endpoint: endpoint,
		PageSize: pageSize,
		Build:    buildProductsRequest,
		Parse:    parseProductsPage,
	}

	return &engine.DownloadJob{
		ConnectorID:  Name,
		Source:       endpoint,
		ItemType:     "products",
		Spec:         spec,
		Auth:         engine.NewStaticTokenProvider("X-Shopify-Access-Token", params.AuthToken),
		InitialState: engine.NewCursorState(),
		Retry:        engine.NewRetryPolicy(deps.Logger),
		SafetyLimit:  cfg.Reliability.SafetyLimit,
		EmptyPolicy:  engine.EmptyWriteSignal,
		Path:         fmt.Sprintf("%s/%s-products.json", strings.TrimSuffix(params.RootPath, "/"), prefix),
		Format:       sink.FormatJSON,
		Executor:     deps.Executor,
		Sink:         deps.Sink,
		Logger:       deps.Logger,
	}, nil
}

// buildProductsRequest renders the products query for one page. Nested
// collection, variant and media limits scale with the page size so large
// pages don't blow the GraphQL cost budget.
func buildProductsRequest(spec engine.QuerySpec, state engine.PageState) (*engine.PageRequest, error) {
	after := ""
	if state.Cursor != "" {
		after = fmt.Sprintf(", after: %q", state.Cursor)
	}

	collectionsLimit := clamp(spec.PageSize/25, 5, 10)
	variantsLimit := clamp(spec.PageSize/5, 10, 50)
	mediaLimit := clamp(spec.PageSize/10, 5, 25)

	query := fmt.Sprintf(productsQuery, spec.PageSize, after, collectionsLimit, variantsLimit, mediaLimit)

	body, err := jsonpool.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("Accept", "application/json")

	return &engine.PageRequest{
		Method: http.MethodPost,
		URL:    spec.Endpoint,
		Header: header,
		Body:   body,
	}, nil
}

func parseProductsPage(state engine.PageState, body []byte) (*engine.FetchResult, error) {
	var payload struct {
		Data struct {
			Products struct {
				Edges []struct {
					Node engine.Record `json:"node"`
				} `json:"edges"`
				PageInfo struct {
					HasNextPage bool   `json:"hasNextPage"`
					EndCursor   string `json:"endCursor"`
				} `json:"pageInfo"`
			} `json:"products"`
		} `json:"data"`
		Errors []engine.Record `json:"errors"`
	}
	if err := jsonpool.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	if len(payload.Errors) > 0 {
		detail, _ := jsonpool.Marshal(payload.Errors)
		return nil, errors.New(errors.ErrorTypeAPI, "GraphQL query returned errors").
			WithDetail("errors", string(detail))
	}

	records := make([]engine.Record, 0, len(payload.Data.Products.Edges))
	for _, edge := range payload.Data.Products.Edges {
		records = append(records, edge.Node)
	}

	// A missing end cursor would replay the first page until the safety
	// limit, so treat it as exhaustion even when more pages are reported.
	next := payload.Data.Products.PageInfo.EndCursor
	return &engine.FetchResult{
		Records:   records,
		HasMore:   payload.Data.Products.PageInfo.HasNextPage && next != "",
		NextState: state.WithCursor(next),
	}, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

const productsQuery = `query {
  products(first: %d%s) {
    edges {
      node {
        id
        title
        category { name fullName }
        collections(first: %d) { edges { node { title } } }
        vendor
        productType
        totalInventory
        createdAt
        handle
        updatedAt
        publishedAt
        tags
        status
        variants(first: %d) {
          edges {
            node {
              id
              title
              sku
              displayName
              price
              position
              compareAtPrice
              selectedOptions { name value }
              createdAt
              updatedAt
              taxable
              barcode
              inventoryQuantity
              product { id }
              image { id altText url width height }
            }
          }
        }
        options { id name position values }
        media(first: %d) { edges { node { id preview { image { url } } } } }
      }
    }
    pageInfo {
      hasPreviousPage
      hasNextPage
      startCursor
      endCursor
    }
  }
}`
