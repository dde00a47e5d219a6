package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/prodbi/extractor/pkg/clients"
	"github.com/prodbi/extractor/pkg/config"
	"github.com/prodbi/extractor/pkg/connector"
	"github.com/prodbi/extractor/pkg/connector/registry"
	"github.com/prodbi/extractor/pkg/engine"
	jsonpool "github.com/prodbi/extractor/pkg/json"
	"github.com/prodbi/extractor/pkg/logger"
	"github.com/prodbi/extractor/pkg/sink"
	azblobsink "github.com/prodbi/extractor/pkg/sink/azblob"
	filesink "github.com/prodbi/extractor/pkg/sink/file"
	gcssink "github.com/prodbi/extractor/pkg/sink/gcs"
	s3sink "github.com/prodbi/extractor/pkg/sink/s3"

	// Import all available connectors to register them
	_ "github.com/prodbi/extractor/pkg/connector/bigcommerce"
	_ "github.com/prodbi/extractor/pkg/connector/magento"
	_ "github.com/prodbi/extractor/pkg/connector/monday"
	_ "github.com/prodbi/extractor/pkg/connector/salesforce"
	_ "github.com/prodbi/extractor/pkg/connector/shopify"
	_ "github.com/prodbi/extractor/pkg/connector/slack"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "extractor",
		Short: "Extractor - vendor API download jobs for the data lake",
		Long: `Extractor runs bounded download jobs against vendor APIs (Shopify,
BigCommerce, Magento, Monday, Salesforce Commerce Cloud, Slack), pages through
the result set with retries, and persists one artifact per job to the
configured sink.`,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("extractor v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List available connectors",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Available connectors:")
			for _, name := range registry.List() {
				fmt.Printf("  - %s\n", name)
			}
		},
	})

	var configFile, connectorName, logLevel, metricsAddr string
	var timeout time.Duration

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run a download job",
		Long: `Run a download job from a YAML job configuration. Values of the form
${ENV_VAR} in the configuration are substituted from the environment, so
tokens and keys can stay out of the file.

Example:
  extractor run --config jobs/shopify-products.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(configFile, connectorName, logLevel, metricsAddr, timeout)
		},
	}

	runCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to job configuration YAML file (required)")
	_ = runCmd.MarkFlagRequired("config")
	runCmd.Flags().StringVar(&connectorName, "connector", "", "Override the connector named in the configuration")
	runCmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	runCmd.Flags().DurationVar(&timeout, "timeout", 30*time.Minute, "Job timeout")

	root.AddCommand(runCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runJob loads the configuration, wires the connector against the configured
// sink, executes the job, and prints the result descriptor to stdout.
func runJob(configFile, connectorName, logLevel, metricsAddr string, timeout time.Duration) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("job configuration error: %w", err)
	}
	if connectorName != "" {
		cfg.Connector = connectorName
	}
	if logLevel != "" {
		cfg.Observability.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid job configuration: %w", err)
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Encoding:    "json",
		OutputPaths: []string{"stderr"},
	}); err != nil {
		return err
	}
	log := logger.Get().With(zap.String("connector", cfg.Connector))
	defer func() { _ = logger.Sync() }()

	if metricsAddr != "" && cfg.Observability.EnableMetrics {
		go serveMetrics(metricsAddr, log)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	httpConfig := clients.DefaultHTTPConfig()
	httpConfig.RequestTimeout = cfg.Timeouts.Request
	httpConfig.DialTimeout = cfg.Timeouts.Connection
	httpConfig.IdleConnTimeout = cfg.Timeouts.Idle
	httpConfig.RateLimit = float64(cfg.Reliability.RateLimitPerSec)
	httpClient := clients.NewHTTPClient(httpConfig, log)
	defer httpClient.Close()

	store, err := buildSink(ctx, cfg.Sink, log)
	if err != nil {
		return fmt.Errorf("failed to create %s sink: %w", cfg.Sink.Kind, err)
	}
	defer func() { _ = store.Close() }()

	conn, err := registry.Get(cfg.Connector)
	if err != nil {
		return err
	}

	job, err := conn.BuildJob(cfg, connector.Deps{
		Executor: engine.NewHTTPQueryExecutor(httpClient, cfg.Timeouts.Request, log),
		Sink:     store,
		HTTP:     httpClient,
		Logger:   log,
	})
	if err != nil {
		return fmt.Errorf("failed to build %s job: %w", cfg.Connector, err)
	}
	applyReliability(job, cfg.Reliability)

	log.Info("starting download job",
		zap.String("item_type", job.ItemType),
		zap.String("path", job.Path),
		zap.Int("safety_limit", job.SafetyLimit))

	result, runErr := job.Run(ctx)

	payload, err := jsonpool.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(payload))

	return runErr
}

// applyReliability pushes configured retry settings into the job. Connectors
// keep their own pagination caps, so the safety limit is not overridden here.
func applyReliability(job *engine.DownloadJob, rel config.ReliabilityConfig) {
	if job.Retry == nil {
		return
	}
	if rel.RetryAttempts > 0 {
		job.Retry.MaxAttempts = rel.RetryAttempts
	}
	if rel.RetryDelay > 0 {
		job.Retry.InitialDelay = rel.RetryDelay
	}
	if rel.RetryMultiplier > 0 {
		job.Retry.Multiplier = rel.RetryMultiplier
	}
	if rel.MaxRetryDelay > 0 {
		job.Retry.MaxDelay = rel.MaxRetryDelay
	}
}

func buildSink(ctx context.Context, cfg config.SinkConfig, log *zap.Logger) (sink.Sink, error) {
	switch cfg.Kind {
	case "file":
		return filesink.New(cfg.Root, cfg.Compression == "gzip", log), nil
	case "s3":
		return s3sink.New(ctx, cfg.Bucket, cfg.Root, cfg.Region, log)
	case "gcs":
		return gcssink.New(ctx, cfg.Bucket, cfg.Root, cfg.CredentialsFile, log)
	case "azblob":
		if cfg.Account == "" {
			return azblobsink.NewFromConnectionString(cfg.AccessKey, cfg.Container, log)
		}
		return azblobsink.New(cfg.Account, cfg.AccessKey, cfg.Container, log)
	default:
		return nil, fmt.Errorf("unknown sink kind %q", cfg.Kind)
	}
}

func serveMetrics(addr string, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Info("serving metrics", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Warn("metrics server stopped", zap.Error(err))
	}
}
