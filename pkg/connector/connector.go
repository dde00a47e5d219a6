// Package connector defines the contract a platform integration implements:
// a named binding of auth scheme, query shape, pagination strategy and
// filter rules onto the generic engine.
package connector

import (
	"go.uber.org/zap"

	"github.com/prodbi/extractor/pkg/clients"
	"github.com/prodbi/extractor/pkg/config"
	"github.com/prodbi/extractor/pkg/engine"
	"github.com/prodbi/extractor/pkg/sink"
)

// Deps is the shared infrastructure handed to every connector when a job is
// built. The executor and sink are constructed once per invocation by the
// caller; connectors only configure them.
type Deps struct {
	Executor engine.QueryExecutor
	Sink     sink.Sink
	HTTP     *clients.HTTPClient
	Logger   *zap.Logger
}

// Connector turns validated job parameters into a runnable DownloadJob.
type Connector interface {
	// Name is the registry key, e.g. "shopify".
	Name() string

	// BuildJob validates cfg and assembles the job. Connectors must compute
	// the output path purely from cfg so reruns overwrite the same object.
	BuildJob(cfg *config.JobConfig, deps Deps) (*engine.DownloadJob, error)
}
