package config_test

import (
	"strings"
	"testing"

	"github.com/solinvox/medscribe/internal/config"
)

func TestLogLevel_IsValid(t *testing.T) {
	valid := []config.LogLevel{config.LogDebug, config.LogInfo, config.LogWarn, config.LogError}
	for _, l := range valid {
		if !l.IsValid() {
			t.Errorf("%q should be valid", l)
		}
	}
	for _, l := range []config.LogLevel{"", "verbose", "INFO"} {
		if l.IsValid() {
			t.Errorf("%q should be invalid", l)
		}
	}
}

func TestValidate(t *testing.T) {
	base := func() *config.Config {
		return &config.Config{
			Diarizer: config.DiarizerConfig{BaseURL: "https://api.example.com"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{
			name:   "minimal valid config",
			mutate: func(*config.Config) {},
		},
		{
			name:    "missing diarizer base_url",
			mutate:  func(c *config.Config) { c.Diarizer.BaseURL = "" },
			wantErr: "diarizer.base_url",
		},
		{
			name:    "invalid log level",
			mutate:  func(c *config.Config) { c.Server.LogLevel = "loud" },
			wantErr: "server.log_level",
		},
		{
			name:    "tls missing key file",
			mutate:  func(c *config.Config) { c.Server.TLS = &config.TLSConfig{CertFile: "cert.pem"} },
			wantErr: "server.tls",
		},
		{
			name:    "negative diarizer timeout",
			mutate:  func(c *config.Config) { c.Diarizer.TimeoutSeconds = -1 },
			wantErr: "diarizer.timeout_seconds",
		},
		{
			name: "overlap not smaller than chunk",
			mutate: func(c *config.Config) {
				c.Pipeline.ChunkSeconds = 30
				c.Pipeline.OverlapSeconds = 30
			},
			wantErr: "pipeline.overlap_seconds",
		},
		{
			name:    "match threshold out of range",
			mutate:  func(c *config.Config) { c.Pipeline.MatchThreshold = 1.5 },
			wantErr: "pipeline.match_threshold",
		},
		{
			name:    "negative dedup tolerance",
			mutate:  func(c *config.Config) { c.Pipeline.DedupToleranceSeconds = -0.5 },
			wantErr: "pipeline.dedup_tolerance_seconds",
		},
		{
			name: "incomplete audio format",
			mutate: func(c *config.Config) {
				c.Audio.SampleRate = 16000
			},
			wantErr: "audio.channels",
		},
		{
			name:    "negative finalize timeout",
			mutate:  func(c *config.Config) { c.Finalize.WaitTimeoutSeconds = -5 },
			wantErr: "finalize.wait_timeout_seconds",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			err := config.Validate(cfg)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tc.wantErr)
			}
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := &config.Config{
		Server:   config.ServerConfig{LogLevel: "loud"},
		Pipeline: config.PipelineConfig{MatchThreshold: 2},
	}
	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	for _, want := range []string{"server.log_level", "diarizer.base_url", "pipeline.match_threshold"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error missing %q: %v", want, err)
		}
	}
}

func TestAudioConfig_BytesPerSecond(t *testing.T) {
	a := config.AudioConfig{SampleRate: 48000, Channels: 2, BytesPerSample: 2}
	if got := a.BytesPerSecond(); got != 192000 {
		t.Errorf("BytesPerSecond = %d, want 192000", got)
	}
	if got := (config.AudioConfig{}).BytesPerSecond(); got != 0 {
		t.Errorf("zero-value BytesPerSecond = %d, want 0", got)
	}
}
