package bigcommerce

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
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

func testConfig(baseURL, item string) *config.JobConfig {
	cfg := config.NewJobConfig(Name)
	cfg.Params.AuthToken = "bc-token"
	cfg.Params.BaseURL = baseURL
	cfg.Params.Item = item
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

func TestBuildJobStoreHashBecomesURL(t *testing.T) {
	job, err := New().BuildJob(testConfig("lb2chb77ok", ""), testDeps(t, testutil.NewMemorySink()))
	require.NoError(t, err)
	assert.Equal(t, "https://api.bigcommerce.com/stores/lb2chb77ok/v3/catalog/products", job.Spec.Endpoint)
	assert.Equal(t, "RetailProducts/input/files/json/products/base/acme-products.json", job.Path)
	assert.Equal(t, "products", job.ItemType)
}

func TestRunPagedProducts(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bc-token", r.Header.Get("X-Auth-Token"))
		page := r.URL.Query().Get("page")
		if page == "1" {
			_, _ = w.Write([]byte(`{"data":[{"id":1,"name":"slippers"},{"id":2,"name":"boots"}],
				"meta":{"pagination":{"current_page":1,"total_pages":2}}}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"id":3,"name":"sandals"}],
			"meta":{"pagination":{"current_page":2,"total_pages":2}}}`))
	}))
	defer ts.Close()

	store := testutil.NewMemorySink()
	job, err := New().BuildJob(testConfig(ts.URL, "products"), testDeps(t, store))
	require.NoError(t, err)

	result, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "success", result.Status)
	assert.Equal(t, 3, result.RecordsCount)

	var dataset engine.Dataset
	require.NoError(t, jsonpool.Unmarshal(store.Payload(*result.Path), &dataset))
	assert.Equal(t, 2, dataset.Metadata.PagesFetched)
}

func TestRunVariantsEnrichedWithProductID(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v3/catalog/products":
			_, _ = w.Write([]byte(`{"data":[{"id":123,"name":"slippers"}],
				"meta":{"pagination":{"current_page":1,"total_pages":1}}}`))
		case "/v3/catalog/products/123/variants":
			_, _ = w.Write([]byte(`{"data":[{"id":11,"sku":"a"},{"id":12,"sku":"b"},{"id":13,"sku":"c"}],
				"meta":{"pagination":{"current_page":1,"total_pages":1}}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	store := testutil.NewMemorySink()
	job, err := New().BuildJob(testConfig(ts.URL, "variants"), testDeps(t, store))
	require.NoError(t, err)

	result, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.RecordsCount)
	assert.Equal(t, "RetailProducts/input/files/json/products/base/acme-variants.json", *result.Path)

	var dataset engine.Dataset
	require.NoError(t, jsonpool.Unmarshal(store.Payload(*result.Path), &dataset))
	require.Len(t, dataset.Records, 3)
	for _, rec := range dataset.Records {
		assert.Equal(t, "123", rec["product_id"])
	}
}

func TestRunChildFetchFailureAbortsWithoutWrite(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v3/catalog/products" {
			_, _ = w.Write([]byte(`{"data":[{"id":9}],"meta":{"pagination":{"current_page":1,"total_pages":1}}}`))
			return
		}
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer ts.Close()

	store := testutil.NewMemorySink()
	job, err := New().BuildJob(testConfig(ts.URL, "options"), testDeps(t, store))
	require.NoError(t, err)

	result, runErr := job.Run(context.Background())
	require.Error(t, runErr)
	assert.Equal(t, "error", result.Status)
	assert.Empty(t, store.Writes)
}

func TestParseCatalogPageStopsOnEmptyData(t *testing.T) {
	result, err := parseCatalogPage(engine.NewPageNumberState(),
		[]byte(`{"data":[],"meta":{"pagination":{"current_page":1,"total_pages":5}}}`))
	require.NoError(t, err)
	assert.False(t, result.HasMore)
	assert.Empty(t, result.Records)
}

func TestValidationErrors(t *testing.T) {
	deps := testDeps(t, testutil.NewMemorySink())
	for _, tt := range []struct {
		name string
		cfg  *config.JobConfig
	}{
		{"missing token", func() *config.JobConfig { c := testConfig("x", ""); c.Params.AuthToken = ""; return c }()},
		{"missing base url", func() *config.JobConfig { c := testConfig("", ""); return c }()},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New().BuildJob(tt.cfg, deps)
			require.Error(t, err)
		})
	}
}

func TestProductIDCoercion(t *testing.T) {
	tests := []struct {
		in   interface{}
		want string
		ok   bool
	}{
		{float64(123), "123", true},
		{"456", "456", true},
		{int64(7), "7", true},
		{nil, "", false},
		{"", "", false},
	}
	for i, tt := range tests {
		t.Run(fmt.Sprintf("case_%d", i), func(t *testing.T) {
			got, ok := productID(engine.Record{"id": tt.in})
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
