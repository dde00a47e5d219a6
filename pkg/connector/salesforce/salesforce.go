// Package salesforce downloads order data from the Salesforce Commerce Cloud
// checkout API using OAuth2 client credentials and offset pagination.
package salesforce

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prodbi/extractor/pkg/config"
	"github.com/prodbi/extractor/pkg/connector"
	"github.com/prodbi/extractor/pkg/engine"
	"github.com/prodbi/extractor/pkg/errors"
	jsonpool "github.com/prodbi/extractor/pkg/json"
	"github.com/prodbi/extractor/pkg/sink"
)

const (
	// Name is the registry key.
	Name = "salesforce"

	defaultTokenURL   = "https://account.demandware.com/dwsso/oauth2/access_token"
	defaultBaseURL    = "kv7kzm78.api.commercecloud.salesforce.com"
	defaultAPIVersion = "v1"
	defaultOrgID      = "f_ecom_zysr_001"
	defaultSiteID     = "RefArchUS"
	defaultPageSize   = 200

	// The orders API misbehaves past a handful of windows; cap well below
	// the engine default.
	safetyLimit = 10
)

// Connector implements connector.Connector for Salesforce Commerce Cloud.
type Connector struct {
	// TokenURL is overridable for tests.
	TokenURL string
}

// New creates the connector.
func New() *Connector { return &Connector{TokenURL: defaultTokenURL} }

// Name implements connector.Connector.
func (c *Connector) Name() string { return Name }

// BuildJob implements connector.Connector.
func (c *Connector) BuildJob(cfg *config.JobConfig, deps connector.Deps) (*engine.DownloadJob, error) {
	params := cfg.Params
	if params.ClientID == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "client_id parameter is required")
	}
	if params.ClientSecret == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "client_secret parameter is required")
	}

	baseURL := params.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if !strings.HasPrefix(baseURL, "http") {
		baseURL = "https://" + baseURL
	}
	apiVersion := params.APIVersion
	if apiVersion == "" {
		apiVersion = defaultAPIVersion
	}
	orgID := params.OrganizationID
	if orgID == "" {
		orgID = defaultOrgID
	}
	siteID := params.SiteID
	if siteID == "" {
		siteID = defaultSiteID
	}
	pageSize := params.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	prefix := params.FilenamePrefix
	if prefix == "" {
		prefix = "orders"
	}
	root := strings.TrimSuffix(params.RootPath, "/")
	if root == "" {
		root = "RetailOrders/input/files/json/orders"
	}

	tokenURL := c.TokenURL
	if tokenURL == "" {
		tokenURL = defaultTokenURL
	}

	auth := engine.NewOAuth2ClientCredentialsProvider(
		tokenURL, params.ClientID, params.ClientSecret,
		url.Values{"scope": []string{scopeFor(orgID)}},
	)

	builder := &ordersQuery{
		siteID:    siteID,
		startDate: params.StartDate,
		endDate:   params.EndDate,
	}

	spec := engine.QuerySpec{
		Protocol: engine.ProtocolREST,
		Endpoint: fmt.Sprintf("%s/checkout/orders/%s/organizations/%s/orders", baseURL, apiVersion, orgID),
		PageSize: pageSize,
		Build:    builder.build,
		Parse:    makeOrdersParser(pageSize),
	}

	return &engine.DownloadJob{
		ConnectorID:  Name,
		Source:       baseURL,
		ItemType:     "orders",
		Spec:         spec,
		Auth:         auth,
		InitialState: engine.NewOffsetState(pageSize),
		Retry:        engine.NewRetryPolicy(deps.Logger),
		SafetyLimit:  safetyLimit,
		EmptyPolicy:  engine.EmptySuppress,
		Path:         fmt.Sprintf("%s/%s.%s-orders.json", root, prefix, dateToken(params.StartDate)),
		Format:       sink.FormatJSON,
		Executor:     deps.Executor,
		Sink:         deps.Sink,
		Logger:       deps.Logger,
	}, nil
}

// scopeFor derives the commerce API scope from the organization id; the
// tenant segment follows the f_ecom_ prefix.
func scopeFor(orgID string) string {
	tenant := strings.TrimPrefix(orgID, "f_ecom_")
	return fmt.Sprintf("SALESFORCE_COMMERCE_API:%s sfcc.orders.rw sfcc.products", tenant)
}

// dateToken renders the filename date segment: the start date compacted to
// YYYYMMDD, or today when no window was given.
func dateToken(startDate string) string {
	if startDate != "" {
		return strings.ReplaceAll(startDate, "-", "")
	}
	return time.Now().Format("20060102")
}

type ordersQuery struct {
	siteID    string
	startDate string
	endDate   string
}

func (q *ordersQuery) build(spec engine.QuerySpec, state engine.PageState) (*engine.PageRequest, error) {
	query := url.Values{}
	query.Set("siteId", q.siteID)
	query.Set("limit", strconv.Itoa(spec.PageSize))
	query.Set("offset", strconv.Itoa(state.Offset))
	if q.startDate != "" && q.endDate != "" {
		query.Set("creationDateFrom", q.startDate)
		query.Set("creationDateTo", q.endDate)
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")

	return &engine.PageRequest{
		Method: http.MethodGet,
		URL:    spec.Endpoint + "?" + query.Encode(),
		Header: header,
	}, nil
}

// makeOrdersParser terminates on an empty or short page.
func makeOrdersParser(pageSize int) engine.PageParser {
	return func(state engine.PageState, body []byte) (*engine.FetchResult, error) {
		var payload struct {
			Data []engine.Record `json:"data"`
		}
		if err := jsonpool.Unmarshal(body, &payload); err != nil {
			return nil, err
		}

		return &engine.FetchResult{
			Records:   payload.Data,
			HasMore:   len(payload.Data) >= pageSize,
			NextState: state.NextOffset(),
		}, nil
	}
}
