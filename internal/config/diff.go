package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; connection
// endpoints and the audio format require a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// PipelineChanged is true when any continuity tunable changed. New
	// values apply to sessions started after the reload; live sessions keep
	// the parameters they began with.
	PipelineChanged bool
	NewPipeline     PipelineConfig

	FinalizeChanged bool
	NewFinalize     FinalizeConfig
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Pipeline != new.Pipeline {
		d.PipelineChanged = true
		d.NewPipeline = new.Pipeline
	}

	if old.Finalize != new.Finalize {
		d.FinalizeChanged = true
		d.NewFinalize = new.Finalize
	}

	return d
}
