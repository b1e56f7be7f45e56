package config

import (
	"strings"
	"time"

	"github.com/marmos91/fhasched/pkg/svcpool"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyShutdownTimeoutDefaults(cfg)
	cfg.API.ApplyDefaults()
	applySchedulerDefaults(&cfg.Scheduler)
	applyPoolDefaults(&cfg.Pool)
	cfg.Workload.ApplyDefaults()
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	// Default endpoint is localhost:4317 (standard OTLP gRPC port)
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}

	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}

	applyProfilingDefaults(&cfg.Profiling)
}

// applyProfilingDefaults sets Pyroscope profiling defaults.
func applyProfilingDefaults(cfg *ProfilingConfig) {
	// Default endpoint is localhost:4040 (standard Pyroscope port)
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}

	// Lock contention matters for a scheduler behind one mutex.
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_space",
			"inuse_space",
			"goroutines",
			"mutex_duration",
		}
	}
}

// applyShutdownTimeoutDefaults sets shutdown timeout defaults.
func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applySchedulerDefaults only resolves the enable switch. The numeric
// tunables keep 0 as "use the default" so a saved file stays short; they are
// resolved by SchedulerConfig.Tunables.
func applySchedulerDefaults(cfg *SchedulerConfig) {
	if cfg.Enabled == nil {
		enabled := true
		cfg.Enabled = &enabled
	}
}

// applyPoolDefaults sets service pool defaults.
func applyPoolDefaults(cfg *PoolConfig) {
	if cfg.Workers == 0 {
		cfg.Workers = svcpool.DefaultWorkers
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = svcpool.DefaultQueueSize
	}
	if cfg.WorkerQueueSize == 0 {
		cfg.WorkerQueueSize = svcpool.DefaultWorkerQueueSize
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Scheduler: SchedulerConfig{
			BinShift:          18,
			MaxThreadsPerFile: 8,
			MaxReqsPerThread:  4,
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
