package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/marmos91/fhasched/internal/logger"
	"github.com/marmos91/fhasched/internal/telemetry"
	"github.com/marmos91/fhasched/pkg/config"
	"github.com/marmos91/fhasched/pkg/metrics"
	promexporter "github.com/marmos91/fhasched/pkg/metrics/prometheus"
	"github.com/marmos91/fhasched/pkg/svcpool"
	"golang.org/x/term"
)

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// getConfigSource returns a description of where the config was loaded from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}

// isTerminal reports whether f is attached to a terminal; output is only
// coloured when it is.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// service is the process-wide state shared by simulate and serve: logger,
// tracing, profiling, metrics and the service pool built on top of them.
type service struct {
	cfg      *config.Config
	pool     *svcpool.Pool
	cleanups []func(context.Context)
}

// newService initializes the ambient stack from cfg and creates a stopped
// pool that runs handler. Call close when done, even on error paths after
// a successful return.
func newService(ctx context.Context, cfg *config.Config, handler svcpool.Handler) (*service, error) {
	if err := InitLogger(cfg); err != nil {
		return nil, err
	}

	s := &service{cfg: cfg}

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "fhasched",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	s.cleanups = append(s.cleanups, func(ctx context.Context) {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", logger.Err(err))
		}
	})

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "fhasched",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		s.close(ctx)
		return nil, fmt.Errorf("failed to initialize profiling: %w", err)
	}
	s.cleanups = append(s.cleanups, func(context.Context) {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", logger.Err(err))
		}
	})

	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	} else {
		logger.Info("Telemetry disabled")
	}
	if cfg.Telemetry.Profiling.Enabled {
		logger.Info("Profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint, "profile_types", cfg.Telemetry.Profiling.ProfileTypes)
	}

	var opts []svcpool.Option
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		opts = append(opts,
			svcpool.WithMetrics(promexporter.NewPoolMetrics()),
			svcpool.WithSchedulerMetrics(promexporter.NewSchedulerMetrics()))
		logger.Info("Metrics enabled", "path", "/metrics")
	} else {
		metrics.Disable()
		logger.Info("Metrics collection disabled")
	}

	poolCfg, err := cfg.PoolConfig()
	if err != nil {
		s.close(ctx)
		return nil, err
	}
	pool, err := svcpool.New(poolCfg, handler, opts...)
	if err != nil {
		s.close(ctx)
		return nil, fmt.Errorf("failed to create service pool: %w", err)
	}
	s.pool = pool

	tun := poolCfg.Scheduler
	logger.Info("Service pool configured",
		logger.KeyWorkers, poolCfg.Workers,
		"queue_size", poolCfg.QueueSize,
		"fha_enabled", tun.Enabled,
		"bin_shift", tun.BinShift,
		"max_threads_per_file", tun.MaxThreadsPerFile,
		"max_reqs_per_thread", tun.MaxReqsPerThread)
	return s, nil
}

// close stops the pool if it was started and releases the ambient stack in
// reverse order.
func (s *service) close(ctx context.Context) {
	if s.pool != nil && s.pool.Running() {
		if err := s.pool.Stop(s.cfg.ShutdownTimeout); err != nil {
			logger.Error("Service pool shutdown error", logger.Err(err))
		}
	}
	for i := len(s.cleanups) - 1; i >= 0; i-- {
		s.cleanups[i](ctx)
	}
	s.cleanups = nil
}
