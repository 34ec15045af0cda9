// Package config loads the crawler configuration from a YAML file and
// applies environment variable overrides.
package config

import (
	"errors"
	"os"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the crawler.
type Config struct {
	API     API     `yaml:"api"`
	Storage Storage `yaml:"storage"`
	Crawl   Crawl   `yaml:"crawl"`
	Logging Logging `yaml:"logging"`
}

// API holds the stats API endpoint configuration.
type API struct {
	BaseURL string `yaml:"base_url"`
}

// Storage holds the destination object store and run manifest settings.
// When LocalDir is set, partitions are written to the local filesystem
// instead of S3.
type Storage struct {
	Bucket       string `yaml:"bucket"`
	Endpoint     string `yaml:"endpoint"`
	Region       string `yaml:"region"`
	LocalDir     string `yaml:"local_dir"`
	ManifestPath string `yaml:"manifest_path"`
}

// Crawl holds parameters for the crawl run itself.
type Crawl struct {
	MaxWorkers       int `yaml:"max_workers"`
	RateLimitPerMin  int `yaml:"rate_limit_per_min"`
	RetryAttempts    int `yaml:"retry_attempts"`
	RetryBaseDelayMS int `yaml:"retry_base_delay_ms"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Default returns the built-in configuration used when no config file is
// supplied. The bucket default matches the original deployment's output
// bucket.
func Default() *Config {
	return &Config{
		Storage: Storage{
			Bucket: "output",
			Region: "us-east-1",
		},
		Crawl: Crawl{
			MaxWorkers:       4,
			RateLimitPerMin:  120,
			RetryAttempts:    3,
			RetryBaseDelayMS: 500,
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the YAML configuration file at the given path, parses it over
// the defaults, and then applies environment variable overrides. An empty
// path skips the file and uses defaults plus environment only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides
// the corresponding configuration fields when they are set. DEST_BUCKET and
// S3_ENDPOINT_URL are the names the original deployment used.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("NHL_API_BASE_URL"); v != "" {
		cfg.API.BaseURL = v
	}

	if v := os.Getenv("DEST_BUCKET"); v != "" {
		cfg.Storage.Bucket = v
	}
	if v := os.Getenv("S3_ENDPOINT_URL"); v != "" {
		cfg.Storage.Endpoint = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.Storage.Region = v
	}
	if v := os.Getenv("LOCAL_OUTPUT_DIR"); v != "" {
		cfg.Storage.LocalDir = v
	}
	if v := os.Getenv("MANIFEST_PATH"); v != "" {
		cfg.Storage.ManifestPath = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// validate rejects configurations the crawler cannot run with.
func (c *Config) validate() error {
	if c.Storage.Bucket == "" && c.Storage.LocalDir == "" {
		return errors.New("config: either storage.bucket or storage.local_dir must be set")
	}
	if c.Crawl.MaxWorkers < 1 {
		return errors.New("config: crawl.max_workers must be at least 1")
	}
	if c.Crawl.RetryAttempts < 1 {
		return errors.New("config: crawl.retry_attempts must be at least 1")
	}
	return nil
}
