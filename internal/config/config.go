// Package config loads knowdisk's YAML configuration file, applying
// environment variable overrides and validated defaults the same way the
// rest of the ambient stack does.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the complete, recognised knowdisk configuration.
type Config struct {
	Indexing  IndexingConfig  `yaml:"indexing" json:"indexing"`
	Retrieval RetrievalConfig `yaml:"retrieval" json:"retrieval"`
}

// IndexingConfig groups every indexing-side tunable.
type IndexingConfig struct {
	Watch     WatchConfig     `yaml:"watch" json:"watch"`
	Reconcile ReconcileConfig `yaml:"reconcile" json:"reconcile"`
	Worker    WorkerConfig    `yaml:"worker" json:"worker"`
	Retry     RetryConfig     `yaml:"retry" json:"retry"`
}

// WatchConfig configures the filesystem watcher's debounce behavior.
type WatchConfig struct {
	DebounceMs int64 `yaml:"debounceMs" json:"debounceMs"`
}

// ReconcileConfig configures the periodic full-tree reconcile.
type ReconcileConfig struct {
	IntervalMs int64 `yaml:"intervalMs" json:"intervalMs"`
}

// WorkerConfig configures the worker pool's concurrency.
type WorkerConfig struct {
	Concurrency int `yaml:"concurrency" json:"concurrency"`
	BatchSize   int `yaml:"batchSize" json:"batchSize"`
}

// RetryConfig configures job retry/backoff behavior.
type RetryConfig struct {
	MaxAttempts int     `yaml:"maxAttempts" json:"maxAttempts"`
	BackoffMs   []int64 `yaml:"backoffMs" json:"backoffMs"`
}

// RetrievalConfig groups every retrieval-side tunable.
type RetrievalConfig struct {
	Hybrid HybridConfig `yaml:"hybrid" json:"hybrid"`
}

// HybridConfig configures the hybrid retrieval pipeline's candidate pools.
type HybridConfig struct {
	FtsTopN    int `yaml:"ftsTopN" json:"ftsTopN"`
	VectorTopK int `yaml:"vectorTopK" json:"vectorTopK"`
	RerankTopN int `yaml:"rerankTopN" json:"rerankTopN"`
}

// NewConfig returns a Config populated with spec defaults.
func NewConfig() *Config {
	return &Config{
		Indexing: IndexingConfig{
			Watch:     WatchConfig{DebounceMs: 500},
			Reconcile: ReconcileConfig{IntervalMs: 5 * 60 * 1000},
			Worker:    WorkerConfig{Concurrency: 4, BatchSize: 10},
			Retry:     RetryConfig{MaxAttempts: 5, BackoffMs: []int64{1000, 2000, 5000, 15000, 30000}},
		},
		Retrieval: RetrievalConfig{
			Hybrid: HybridConfig{FtsTopN: 50, VectorTopK: 50, RerankTopN: 10},
		},
	}
}

// Load reads knowdisk.yaml (or knowdisk.yml) from dir, merges it over the
// defaults, applies environment overrides, then validates the result. A
// missing config file is not an error; defaults apply.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFromFile(dir string) error {
	for _, name := range []string{"knowdisk.yaml", "knowdisk.yml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return c.loadYAML(path)
		}
	}
	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	c.mergeWith(&parsed)
	return nil
}

// mergeWith overlays non-zero values from other onto c.
func (c *Config) mergeWith(other *Config) {
	if other.Indexing.Watch.DebounceMs != 0 {
		c.Indexing.Watch.DebounceMs = other.Indexing.Watch.DebounceMs
	}
	if other.Indexing.Reconcile.IntervalMs != 0 {
		c.Indexing.Reconcile.IntervalMs = other.Indexing.Reconcile.IntervalMs
	}
	if other.Indexing.Worker.Concurrency != 0 {
		c.Indexing.Worker.Concurrency = other.Indexing.Worker.Concurrency
	}
	if other.Indexing.Worker.BatchSize != 0 {
		c.Indexing.Worker.BatchSize = other.Indexing.Worker.BatchSize
	}
	if other.Indexing.Retry.MaxAttempts != 0 {
		c.Indexing.Retry.MaxAttempts = other.Indexing.Retry.MaxAttempts
	}
	if len(other.Indexing.Retry.BackoffMs) != 0 {
		c.Indexing.Retry.BackoffMs = other.Indexing.Retry.BackoffMs
	}
	if other.Retrieval.Hybrid.FtsTopN != 0 {
		c.Retrieval.Hybrid.FtsTopN = other.Retrieval.Hybrid.FtsTopN
	}
	if other.Retrieval.Hybrid.VectorTopK != 0 {
		c.Retrieval.Hybrid.VectorTopK = other.Retrieval.Hybrid.VectorTopK
	}
	if other.Retrieval.Hybrid.RerankTopN != 0 {
		c.Retrieval.Hybrid.RerankTopN = other.Retrieval.Hybrid.RerankTopN
	}
}

// applyEnvOverrides lets KNOWDISK_* env vars take precedence over both
// defaults and the config file, mirroring the teacher's env-override layer.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("KNOWDISK_WATCH_DEBOUNCE_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Indexing.Watch.DebounceMs = n
		}
	}
	if v := os.Getenv("KNOWDISK_WORKER_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Indexing.Worker.Concurrency = n
		}
	}
	if v := os.Getenv("KNOWDISK_RETRY_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Indexing.Retry.MaxAttempts = n
		}
	}
}

// Validate rejects configurations that would make indexing or retrieval
// misbehave rather than merely run suboptimally.
func (c *Config) Validate() error {
	if c.Indexing.Watch.DebounceMs < 0 {
		return fmt.Errorf("indexing.watch.debounceMs must be >= 0")
	}
	if c.Indexing.Reconcile.IntervalMs < 0 {
		return fmt.Errorf("indexing.reconcile.intervalMs must be >= 0")
	}
	if c.Indexing.Worker.Concurrency < 1 {
		return fmt.Errorf("indexing.worker.concurrency must be >= 1")
	}
	if c.Indexing.Worker.BatchSize < 1 {
		return fmt.Errorf("indexing.worker.batchSize must be >= 1")
	}
	if c.Indexing.Retry.MaxAttempts < 1 {
		return fmt.Errorf("indexing.retry.maxAttempts must be >= 1")
	}
	if c.Retrieval.Hybrid.FtsTopN < 1 {
		return fmt.Errorf("retrieval.hybrid.ftsTopN must be >= 1")
	}
	if c.Retrieval.Hybrid.VectorTopK < 1 {
		return fmt.Errorf("retrieval.hybrid.vectorTopK must be >= 1")
	}
	if c.Retrieval.Hybrid.RerankTopN < 1 {
		return fmt.Errorf("retrieval.hybrid.rerankTopN must be >= 1")
	}
	return nil
}

// WriteYAML serializes c to path, creating parent directories as needed.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
