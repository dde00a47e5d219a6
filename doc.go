// Package extractor provides bounded download jobs against vendor APIs,
// persisting one artifact per job to a configured sink.
//
// Each connector (Shopify, BigCommerce, Magento, Monday, Salesforce Commerce
// Cloud, Slack) describes its API as a paginated query: how to authenticate,
// how to build a page request, and how to parse a page of records. The engine
// drives the pagination state machine with retries and a page cap, filters
// and enriches the records, assembles them into a dataset, and writes it
// exactly once. Nothing fetched is persisted unless the whole job succeeds.
//
// # Quick Start
//
// Run a job from a YAML configuration:
//
//	extractor run --config jobs/shopify-products.yaml
//
// Or wire a job programmatically:
//
//	import (
//	    "context"
//	    "github.com/prodbi/extractor/pkg/clients"
//	    "github.com/prodbi/extractor/pkg/config"
//	    "github.com/prodbi/extractor/pkg/connector"
//	    "github.com/prodbi/extractor/pkg/connector/registry"
//	    "github.com/prodbi/extractor/pkg/engine"
//	    filesink "github.com/prodbi/extractor/pkg/sink/file"
//	    _ "github.com/prodbi/extractor/pkg/connector/shopify"
//	)
//
//	cfg := config.NewJobConfig("shopify")
//	cfg.Params.AuthToken = "shpat-..."
//	cfg.Params.StoreID = "acme"
//
//	httpClient := clients.NewHTTPClient(nil, log)
//	conn, _ := registry.Get(cfg.Connector)
//	job, _ := conn.BuildJob(cfg, connector.Deps{
//	    Executor: engine.NewHTTPQueryExecutor(httpClient, 0, log),
//	    Sink:     filesink.New("/data", false, log),
//	    HTTP:     httpClient,
//	    Logger:   log,
//	})
//	result, err := job.Run(context.Background())
//
// # Key Packages
//
//	pkg/engine     - Pagination driver, auth providers, retry, assembly
//	pkg/connector  - Per-vendor connectors and the registry
//	pkg/sink       - File, S3, GCS, and Azure Blob artifact sinks
//	pkg/config     - Job configuration with ${ENV_VAR} substitution
//	pkg/clients    - Shared HTTP client with rate limiting and HTTP/2
//	pkg/errors     - Structured error handling with retryability
//	pkg/logger     - Structured logging
//	pkg/metrics    - Prometheus metrics for pages, records, and retries
//
// # Result Descriptor
//
// Every job returns the same descriptor, success or failure:
//
//	{
//	    "status": "success",
//	    "message": "fetched 260 products across 2 pages",
//	    "records_count": 260,
//	    "filename": "acme-products.json",
//	    "path": "RetailProducts/input/files/json/products/acme-products.json"
//	}
//
// Connector-specific fields (board ids, CSV download counts) are merged into
// the same object. Paths are deterministic, so a rerun of the same job
// overwrites its previous artifact instead of accumulating copies.
package extractor
