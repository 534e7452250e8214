package config_test

import (
	"testing"

	"github.com/solinvox/medscribe/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	a := &config.Config{
		Server:   config.ServerConfig{LogLevel: config.LogInfo},
		Pipeline: config.PipelineConfig{ChunkSeconds: 60, OverlapSeconds: 5},
	}
	b := &config.Config{
		Server:   config.ServerConfig{LogLevel: config.LogInfo},
		Pipeline: config.PipelineConfig{ChunkSeconds: 60, OverlapSeconds: 5},
	}

	d := config.Diff(a, b)
	if d.LogLevelChanged || d.PipelineChanged || d.FinalizeChanged {
		t.Errorf("diff = %+v, want no changes", d)
	}
}

func TestDiff_LogLevel(t *testing.T) {
	a := &config.Config{Server: config.ServerConfig{LogLevel: config.LogInfo}}
	b := &config.Config{Server: config.ServerConfig{LogLevel: config.LogDebug}}

	d := config.Diff(a, b)
	if !d.LogLevelChanged {
		t.Fatal("LogLevelChanged = false, want true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("NewLogLevel = %q, want debug", d.NewLogLevel)
	}
}

func TestDiff_PipelineTunables(t *testing.T) {
	a := &config.Config{Pipeline: config.PipelineConfig{MatchThreshold: 0.5}}
	b := &config.Config{Pipeline: config.PipelineConfig{MatchThreshold: 0.6}}

	d := config.Diff(a, b)
	if !d.PipelineChanged {
		t.Fatal("PipelineChanged = false, want true")
	}
	if d.NewPipeline.MatchThreshold != 0.6 {
		t.Errorf("NewPipeline.MatchThreshold = %v, want 0.6", d.NewPipeline.MatchThreshold)
	}
}

func TestDiff_FinalizeTimeout(t *testing.T) {
	a := &config.Config{Finalize: config.FinalizeConfig{WaitTimeoutSeconds: 600}}
	b := &config.Config{Finalize: config.FinalizeConfig{WaitTimeoutSeconds: 300}}

	d := config.Diff(a, b)
	if !d.FinalizeChanged {
		t.Fatal("FinalizeChanged = false, want true")
	}
	if d.NewFinalize.WaitTimeoutSeconds != 300 {
		t.Errorf("NewFinalize.WaitTimeoutSeconds = %v, want 300", d.NewFinalize.WaitTimeoutSeconds)
	}
}
