// Package config loads the service configuration for the halo binary:
// defaults, then an optional YAML file, then environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the recognized configuration surface of the halo service.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`

	// ProviderURL is the embedding sidecar address.
	ProviderURL string `yaml:"provider_url"`

	// Dimension is the embedding dimensionality (ArcFace default).
	Dimension int `yaml:"dimension"`

	// Metric is "cosine" or "euclidean".
	Metric string `yaml:"metric"`

	// Index is "flat" or "hnsw".
	Index string `yaml:"index"`

	// Breadth is the approximate-search breadth (efSearch).
	Breadth int `yaml:"ann_breadth"`

	// TopKDefault is used when a search request omits top_k.
	TopKDefault int `yaml:"top_k_default"`

	// TopKMax caps requested top_k.
	TopKMax int `yaml:"top_k_max"`

	// RequestTimeout bounds embedding calls and searches.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// CacheTTL bounds how long cached query results are served.
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// CacheMaxEntries caps the result cache (LRU).
	CacheMaxEntries int `yaml:"cache_max_entries"`

	// CacheInvalidationMode is "stale-ok" or "strict".
	CacheInvalidationMode string `yaml:"cache_invalidation_mode"`

	// SnapshotPath, when set, is loaded on startup and saved on shutdown.
	SnapshotPath string `yaml:"snapshot_path"`

	// MetadataPath, when set, stores metadata in a bolt database there
	// instead of in memory.
	MetadataPath string `yaml:"metadata_path"`

	// RateRPS and RateBurst limit inbound HTTP requests.
	RateRPS   float64 `yaml:"rate_rps"`
	RateBurst int     `yaml:"rate_burst"`
}

// Default returns the configuration defaults.
func Default() *Config {
	return &Config{
		Listen:                ":8080",
		ProviderURL:           "http://localhost:8000",
		Dimension:             512,
		Metric:                "cosine",
		Index:                 "hnsw",
		Breadth:               64,
		TopKDefault:           5,
		TopKMax:               20,
		RequestTimeout:        2 * time.Second,
		CacheTTL:              time.Minute,
		CacheMaxEntries:       1024,
		CacheInvalidationMode: "stale-ok",
		RateRPS:               20,
		RateBurst:             40,
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// environment overrides, in that order.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	envStr("HALO_LISTEN", &c.Listen)
	envStr("HALO_PROVIDER_URL", &c.ProviderURL)
	envInt("HALO_DIMENSION", &c.Dimension)
	envStr("HALO_METRIC", &c.Metric)
	envStr("HALO_INDEX", &c.Index)
	envInt("HALO_ANN_BREADTH", &c.Breadth)
	envInt("HALO_TOP_K_DEFAULT", &c.TopKDefault)
	envInt("HALO_TOP_K_MAX", &c.TopKMax)
	envDuration("HALO_REQUEST_TIMEOUT", &c.RequestTimeout)
	envDuration("HALO_CACHE_TTL", &c.CacheTTL)
	envInt("HALO_CACHE_MAX_ENTRIES", &c.CacheMaxEntries)
	envStr("HALO_CACHE_INVALIDATION_MODE", &c.CacheInvalidationMode)
	envStr("HALO_SNAPSHOT_PATH", &c.SnapshotPath)
	envStr("HALO_METADATA_PATH", &c.MetadataPath)
}

func (c *Config) validate() error {
	if c.Dimension <= 0 {
		return fmt.Errorf("dimension must be positive, got %d", c.Dimension)
	}
	switch c.Metric {
	case "cosine", "euclidean":
	default:
		return fmt.Errorf("unknown metric: %q", c.Metric)
	}
	switch c.Index {
	case "flat", "hnsw":
	default:
		return fmt.Errorf("unknown index: %q", c.Index)
	}
	switch c.CacheInvalidationMode {
	case "stale-ok", "strict":
	default:
		return fmt.Errorf("unknown cache invalidation mode: %q", c.CacheInvalidationMode)
	}
	return nil
}

func envStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
