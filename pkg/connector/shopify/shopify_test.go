package shopify

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prodbi/extractor/pkg/clients"
	"github.com/prodbi/extractor/pkg/config"
	"github.com/prodbi/extractor/pkg/connector"
	"github.com/prodbi/extractor/pkg/engine"
	jsonpool "github.com/prodbi/extractor/pkg/json"
	"github.com/prodbi/extractor/pkg/testutil"
)

func testConfig() *config.JobConfig {
	cfg := config.NewJobConfig(Name)
	cfg.Params.AuthToken = "shp-token"
	cfg.Params.BaseURL = "acme-outlet"
	cfg.Params.FilenamePrefix = "acme"
	cfg.Params.RootPath = "RetailProducts/input/files/json/products/base"
	return cfg
}

func testDeps(t *testing.T, store *testutil.MemorySink) connector.Deps {
	logger := testutil.TestLogger(t)
	httpClient := clients.NewHTTPClient(nil, logger)
	return connector.Deps{
		Executor: engine.NewHTTPQueryExecutor(httpClient, 0, logger),
		Sink:     store,
		HTTP:     httpClient,
		Logger:   logger,
	}
}

func TestBuildJobValidation(t *testing.T) {
	c := New()
	deps := testDeps(t, testutil.NewMemorySink())

	cfg := testConfig()
	cfg.Params.AuthToken = ""
	_, err := c.BuildJob(cfg, deps)
	require.Error(t, err)

	cfg = testConfig()
	cfg.Params.BaseURL = ""
	_, err = c.BuildJob(cfg, deps)
	require.Error(t, err)
}

func TestBuildJobEndpointAndPath(t *testing.T) {
	c := New()
	job, err := c.BuildJob(testConfig(), testDeps(t, testutil.NewMemorySink()))
	require.NoError(t, err)

	assert.Equal(t, "https://acme-outlet.myshopify.com/admin/api/2024-10/graphql.json", job.Spec.Endpoint)
	assert.Equal(t, "RetailProducts/input/files/json/products/base/acme-products.json", job.Path)
	assert.Equal(t, engine.PaginationCursor, job.InitialState.Kind)
	assert.Equal(t, engine.EmptyWriteSignal, job.EmptyPolicy)
}

func TestNestedLimitScaling(t *testing.T) {
	spec := engine.QuerySpec{Endpoint: "https://x/graphql.json", PageSize: 250}
	req, err := buildProductsRequest(spec, engine.NewCursorState())
	require.NoError(t, err)

	body := string(req.Body)
	assert.Contains(t, body, "products(first: 250)")
	assert.Contains(t, body, "collections(first: 10)")
	assert.Contains(t, body, "variants(first: 50)")
	assert.Contains(t, body, "media(first: 25)")
}

func TestNestedLimitFloors(t *testing.T) {
	spec := engine.QuerySpec{Endpoint: "https://x/graphql.json", PageSize: 10}
	req, err := buildProductsRequest(spec, engine.NewCursorState())
	require.NoError(t, err)

	body := string(req.Body)
	assert.Contains(t, body, "collections(first: 5)")
	assert.Contains(t, body, "variants(first: 10)")
	assert.Contains(t, body, "media(first: 5)")
}

func TestCursorInterpolation(t *testing.T) {
	spec := engine.QuerySpec{Endpoint: "https://x/graphql.json", PageSize: 50}
	req, err := buildProductsRequest(spec, engine.NewCursorState().WithCursor("abc"))
	require.NoError(t, err)
	assert.Contains(t, string(req.Body), `after: \"abc\"`)
}

func TestRunTwoCursorPages(t *testing.T) {
	var pages int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "shp-token", r.Header.Get("X-Shopify-Access-Token"))
		body, _ := io.ReadAll(r.Body)
		pages++
		if !strings.Contains(string(body), "after:") {
			_, _ = w.Write([]byte(`{"data":{"products":{
				"edges":[{"node":{"id":"gid://shopify/Product/1","title":"slippers"}}],
				"pageInfo":{"hasNextPage":true,"endCursor":"cur-2"}}}}`))
			return
		}
		assert.Contains(t, string(body), `after: \"cur-2\"`)
		_, _ = w.Write([]byte(`{"data":{"products":{
			"edges":[{"node":{"id":"gid://shopify/Product/2","title":"boots"}}],
			"pageInfo":{"hasNextPage":false,"endCursor":""}}}}`))
	}))
	defer ts.Close()

	store := testutil.NewMemorySink()
	job, err := New().BuildJob(testConfig(), testDeps(t, store))
	require.NoError(t, err)
	job.Spec.Endpoint = ts.URL

	result, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, pages)
	assert.Equal(t, "success", result.Status)
	assert.Equal(t, 2, result.RecordsCount)

	var dataset engine.Dataset
	require.NoError(t, jsonpool.Unmarshal(store.Payload(*result.Path), &dataset))
	assert.Equal(t, 2, dataset.TotalCount)
	assert.Equal(t, "slippers", dataset.Records[0]["title"])
}

func TestMissingEndCursorStopsPagination(t *testing.T) {
	result, err := parseProductsPage(engine.NewCursorState(),
		[]byte(`{"data":{"products":{
			"edges":[{"node":{"id":"gid://shopify/Product/1","title":"slippers"}}],
			"pageInfo":{"hasNextPage":true,"endCursor":""}}}}`))
	require.NoError(t, err)
	assert.False(t, result.HasMore)
	assert.Len(t, result.Records, 1)
}

func TestGraphQLErrorsAreFatal(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"errors":[{"message":"field 'bogus' doesn't exist"}]}`))
	}))
	defer ts.Close()

	store := testutil.NewMemorySink()
	job, err := New().BuildJob(testConfig(), testDeps(t, store))
	require.NoError(t, err)
	job.Spec.Endpoint = ts.URL

	result, runErr := job.Run(context.Background())
	require.Error(t, runErr)
	assert.Equal(t, "error", result.Status)
	assert.Equal(t, "api", result.ErrorKind)
	assert.Empty(t, store.Writes)
}

func TestEmptyStoreWritesEmptyArtifact(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"products":{"edges":[],"pageInfo":{"hasNextPage":false,"endCursor":""}}}}`))
	}))
	defer ts.Close()

	store := testutil.NewMemorySink()
	job, err := New().BuildJob(testConfig(), testDeps(t, store))
	require.NoError(t, err)
	job.Spec.Endpoint = ts.URL

	result, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.RecordsCount)
	require.NotNil(t, result.Path)
	assert.Contains(t, store.Writes, *result.Path)
}
