// Package config provides the unified configuration system for the extractor.
// It defines a single JobConfig structure that every connector invocation uses,
// replacing the per-platform scattered defaults of earlier downloaders with one
// explicit value constructed at job start.
//
// The configuration is organized into logical sections:
//   - Params: platform credentials, endpoint and item selection
//   - Sink: where the assembled dataset is persisted
//   - Reliability: retry budget, backoff and the pagination safety limit
//   - Timeouts: per-request and connection timeouts
//   - Observability: metrics and logging
package config

import (
	"fmt"
	"time"
)

// JobConfig is the single configuration value handed to a download job.
type JobConfig struct {
	// Connector names the platform connector to run (e.g. "shopify")
	Connector string `yaml:"connector" json:"connector"`

	// Params carries the validated request parameters
	Params ParamsConfig `yaml:"params" json:"params"`

	// Sink selects and configures the storage destination
	Sink SinkConfig `yaml:"sink" json:"sink"`

	// Reliability settings for retries and pagination capping
	Reliability ReliabilityConfig `yaml:"reliability" json:"reliability"`

	// Timeouts define request timeout durations
	Timeouts TimeoutConfig `yaml:"timeouts" json:"timeouts"`

	// Observability settings for metrics and logging
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// ParamsConfig carries the per-invocation parameters. Which fields are
// required depends on the connector; Validate only checks the invariants
// shared by all of them.
type ParamsConfig struct {
	// AuthToken is the static API token for token-authenticated platforms
	AuthToken string `yaml:"auth_token" json:"auth_token"`
	// ClientID and ClientSecret drive OAuth2 client-credentials platforms
	ClientID     string `yaml:"client_id" json:"client_id"`
	ClientSecret string `yaml:"client_secret" json:"client_secret"`
	// BaseURL is the store/instance base (either a full URL or a short host id)
	BaseURL string `yaml:"base_url" json:"base_url"`
	// APIVersion selects the vendor API version path segment
	APIVersion string `yaml:"api_version" json:"api_version"`
	// Item selects the record type to download (products, variants, orders, ...)
	Item string `yaml:"item" json:"item"`
	// FilenamePrefix is the artifact name prefix
	FilenamePrefix string `yaml:"filename_prefix" json:"filename_prefix"`
	// RootPath is the storage directory the artifact is written under
	RootPath string `yaml:"root_path" json:"root_path"`
	// PageSize is the requested page size; connectors apply their own defaults
	PageSize int `yaml:"page_size" json:"page_size"`
	// BoardID addresses a single board (monday)
	BoardID string `yaml:"board_id" json:"board_id"`
	// StoreID optionally scopes results to one store view (magento)
	StoreID string `yaml:"store_id" json:"store_id"`
	// Channel addresses a single conversation (slack)
	Channel string `yaml:"channel" json:"channel"`
	// OrganizationID and SiteID scope commerce-cloud tenants (salesforce)
	OrganizationID string `yaml:"organization_id" json:"organization_id"`
	SiteID         string `yaml:"site_id" json:"site_id"`
	// StartDate / EndDate bound date-filtered downloads (YYYY-MM-DD)
	StartDate string `yaml:"start_date" json:"start_date"`
	EndDate   string `yaml:"end_date" json:"end_date"`
}

// SinkConfig selects the storage backend for the assembled artifact.
type SinkConfig struct {
	// Kind is one of "file", "azblob", "s3", "gcs"
	Kind string `yaml:"kind" json:"kind"`
	// Root is the local directory root for the file sink
	Root string `yaml:"root" json:"root"`
	// Bucket is the S3 bucket or GCS bucket name
	Bucket string `yaml:"bucket" json:"bucket"`
	// Region is the S3 region
	Region string `yaml:"region" json:"region"`
	// Account and Container address an Azure storage filesystem
	Account   string `yaml:"account" json:"account"`
	Container string `yaml:"container" json:"container"`
	// AccessKey is the shared key for the azblob sink
	AccessKey string `yaml:"access_key" json:"access_key"`
	// CredentialsFile points at a GCP service account key
	CredentialsFile string `yaml:"credentials_file" json:"credentials_file"`
	// Compression optionally gzips file-sink payloads ("", "gzip")
	Compression string `yaml:"compression" json:"compression"`
}

// ReliabilityConfig contains retry and pagination-capping settings.
type ReliabilityConfig struct {
	// RetryAttempts is the total attempt budget per page fetch
	RetryAttempts int `yaml:"retry_attempts" json:"retry_attempts"`
	// RetryDelay is the delay before the first retry
	RetryDelay time.Duration `yaml:"retry_delay" json:"retry_delay"`
	// RetryMultiplier grows the delay between subsequent retries
	RetryMultiplier float64 `yaml:"retry_multiplier" json:"retry_multiplier"`
	// MaxRetryDelay caps the backoff delay
	MaxRetryDelay time.Duration `yaml:"max_retry_delay" json:"max_retry_delay"`
	// SafetyLimit caps pages fetched per job
	SafetyLimit int `yaml:"safety_limit" json:"safety_limit"`
	// RateLimitPerSec limits upstream requests per second (0 = unlimited)
	RateLimitPerSec int `yaml:"rate_limit_per_sec" json:"rate_limit_per_sec"`
}

// TimeoutConfig contains timeout settings.
type TimeoutConfig struct {
	// Request is the per-page fetch timeout
	Request time.Duration `yaml:"request" json:"request"`
	// Connection is the dial timeout
	Connection time.Duration `yaml:"connection" json:"connection"`
	// Idle closes inactive upstream connections
	Idle time.Duration `yaml:"idle" json:"idle"`
}

// ObservabilityConfig contains monitoring settings.
type ObservabilityConfig struct {
	EnableMetrics bool   `yaml:"enable_metrics" json:"enable_metrics"`
	LogLevel      string `yaml:"log_level" json:"log_level"`
}

// NewJobConfig creates a JobConfig with the defaults shared by every
// connector. Connectors and callers override the fields they care about.
func NewJobConfig(connector string) *JobConfig {
	return &JobConfig{
		Connector: connector,
		// Params.PageSize stays zero so each connector applies its own
		// platform default when the job never set one.
		Params: ParamsConfig{},
		Sink: SinkConfig{
			Kind: "file",
		},
		Reliability: ReliabilityConfig{
			RetryAttempts:   3,
			RetryDelay:      2 * time.Second,
			RetryMultiplier: 2.0,
			MaxRetryDelay:   30 * time.Second,
			SafetyLimit:     50,
			RateLimitPerSec: 0,
		},
		Timeouts: TimeoutConfig{
			Request:    60 * time.Second,
			Connection: 10 * time.Second,
			Idle:       90 * time.Second,
		},
		Observability: ObservabilityConfig{
			EnableMetrics: true,
			LogLevel:      "info",
		},
	}
}

// Validate validates the configuration for correctness.
func (jc *JobConfig) Validate() error {
	if jc.Connector == "" {
		return fmt.Errorf("connector is required")
	}
	if jc.Params.PageSize < 0 {
		return fmt.Errorf("page_size cannot be negative")
	}
	if jc.Reliability.RetryAttempts < 1 {
		return fmt.Errorf("retry_attempts must be at least 1")
	}
	if jc.Reliability.SafetyLimit < 1 {
		return fmt.Errorf("safety_limit must be at least 1")
	}
	if jc.Reliability.RateLimitPerSec < 0 {
		return fmt.Errorf("rate_limit_per_sec cannot be negative")
	}
	switch jc.Sink.Kind {
	case "file", "azblob", "s3", "gcs":
	default:
		return fmt.Errorf("unknown sink kind %q", jc.Sink.Kind)
	}
	return nil
}
