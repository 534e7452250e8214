package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
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
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Diarizer
	if cfg.Diarizer.BaseURL == "" {
		errs = append(errs, errors.New("diarizer.base_url is required"))
	}
	if cfg.Diarizer.TimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("diarizer.timeout_seconds %.1f must not be negative", cfg.Diarizer.TimeoutSeconds))
	}

	// Availability warnings for optional backends.
	if cfg.Store.PostgresDSN == "" {
		slog.Warn("store.postgres_dsn is empty; consultation outcomes will not be persisted")
	}
	if cfg.StatusFeed.BaseURL == "" {
		slog.Warn("status_feed.base_url is empty; deriving the feed endpoint from diarizer.base_url")
	}

	// Audio format: all-or-nothing.
	audioSet := cfg.Audio.SampleRate != 0 || cfg.Audio.Channels != 0 || cfg.Audio.BytesPerSample != 0
	if audioSet {
		if cfg.Audio.SampleRate <= 0 {
			errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", cfg.Audio.SampleRate))
		}
		if cfg.Audio.Channels <= 0 {
			errs = append(errs, fmt.Errorf("audio.channels %d must be positive", cfg.Audio.Channels))
		}
		if cfg.Audio.BytesPerSample <= 0 {
			errs = append(errs, fmt.Errorf("audio.bytes_per_sample %d must be positive", cfg.Audio.BytesPerSample))
		}
	}

	// Pipeline tunables.
	p := cfg.Pipeline
	if p.ChunkSeconds < 0 {
		errs = append(errs, fmt.Errorf("pipeline.chunk_seconds %.1f must not be negative", p.ChunkSeconds))
	}
	if p.OverlapSeconds < 0 {
		errs = append(errs, fmt.Errorf("pipeline.overlap_seconds %.1f must not be negative", p.OverlapSeconds))
	}
	if p.ChunkSeconds > 0 && p.OverlapSeconds >= p.ChunkSeconds {
		errs = append(errs, fmt.Errorf("pipeline.overlap_seconds %.1f must be smaller than pipeline.chunk_seconds %.1f", p.OverlapSeconds, p.ChunkSeconds))
	}
	if p.MatchThreshold < 0 || p.MatchThreshold > 1 {
		errs = append(errs, fmt.Errorf("pipeline.match_threshold %.2f is out of range [0, 1]", p.MatchThreshold))
	}
	if p.DedupToleranceSeconds < 0 {
		errs = append(errs, fmt.Errorf("pipeline.dedup_tolerance_seconds %.1f must not be negative", p.DedupToleranceSeconds))
	}
	if p.TickIntervalSeconds < 0 {
		errs = append(errs, fmt.Errorf("pipeline.tick_interval_seconds %.1f must not be negative", p.TickIntervalSeconds))
	}

	// Finalization.
	if cfg.Finalize.WaitTimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("finalize.wait_timeout_seconds %.1f must not be negative", cfg.Finalize.WaitTimeoutSeconds))
	}

	return errors.Join(errs...)
}
