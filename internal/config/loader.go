package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// validLogLevels lists the recognized observability.log_level values.
var validLogLevels = []string{"debug", "info", "warn", "error"}

// defaultEmbeddingDimension is used when embedding.dimension is unset.
const defaultEmbeddingDimension = 1536

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills in zero-value fields with the defaults documented on
// the Config struct, warning where the default masks a likely
// misconfiguration.
func applyDefaults(cfg *Config) {
	if cfg.Embedding.Provider != "" && cfg.Embedding.Dimension <= 0 {
		slog.Warn("embedding.dimension is unset; defaulting",
			"default", defaultEmbeddingDimension)
		cfg.Embedding.Dimension = defaultEmbeddingDimension
	}
	if cfg.Extraction.Timeout <= 0 {
		cfg.Extraction.Timeout = defaultExtractionTimeout
	}
	if cfg.Ingestion.ChunkSize <= 0 {
		cfg.Ingestion.ChunkSize = defaultChunkSize
	}
	if cfg.Ingestion.ChunkOverlap <= 0 {
		cfg.Ingestion.ChunkOverlap = defaultChunkOverlap
	}
	if cfg.Ingestion.ConcurrentExtractors <= 0 {
		cfg.Ingestion.ConcurrentExtractors = defaultConcurrentExtractors
	}
	if cfg.Ingestion.BatchPause <= 0 {
		cfg.Ingestion.BatchPause = defaultBatchPause
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all hard validation failures found; soft
// misconfigurations are logged via slog.Warn instead of failing the load.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Postgres.DSN == "" {
		errs = append(errs, errors.New("postgres.dsn is required"))
	}

	if cfg.Observability.LogLevel != "" && !slices.Contains(validLogLevels, cfg.Observability.LogLevel) {
		errs = append(errs, fmt.Errorf("observability.log_level %q is invalid; valid values: %v",
			cfg.Observability.LogLevel, validLogLevels))
	}

	if cfg.Evolution.NightlyCycleHour < 0 || cfg.Evolution.NightlyCycleHour > 23 {
		errs = append(errs, fmt.Errorf("evolution.nightly_cycle_hour %d is out of range [0, 23]",
			cfg.Evolution.NightlyCycleHour))
	}

	if cfg.Embedding.Provider == "" {
		slog.Warn("embedding.provider is empty; endgamed treats it as \"openai\"")
	}
	if cfg.Extraction.Provider == "" {
		slog.Warn("extraction.provider is empty; endgamed treats it as \"openai\"")
	}

	return errors.Join(errs...)
}
