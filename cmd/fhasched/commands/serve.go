package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/marmos91/fhasched/internal/logger"
	"github.com/marmos91/fhasched/pkg/api"
	"github.com/marmos91/fhasched/pkg/config"
	"github.com/marmos91/fhasched/pkg/svcpool"
	"github.com/marmos91/fhasched/pkg/workload"
	"github.com/spf13/cobra"
)

var (
	serveLoad    bool
	serveNoWatch bool
	servePause   time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the service pool with the admin API",
	Long: `Run the service pool in the foreground with the admin API enabled.

The scheduler tunables follow the configuration file: saving it applies the
scheduler section to the running pool without a restart. Tunables can also
be changed through the API with "fhasched tunables set".

With --load, the configured workload is replayed in rounds until the process
is stopped, so the statistics dump and the metrics have traffic to show.

Examples:
  # Serve with the default configuration
  fhasched serve

  # Serve and keep the scheduler busy
  fhasched serve --load

  # Override the API port through the environment
  FHASCHED_API_PORT=9090 fhasched serve`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveLoad, "load", false, "Replay the configured workload until stopped")
	serveCmd.Flags().BoolVar(&serveNoWatch, "no-watch", false, "Do not reload tunables when the config file changes")
	serveCmd.Flags().DurationVar(&servePause, "pause", time.Second, "Pause between workload rounds")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := newService(ctx, cfg, workload.Handler(cfg.Workload))
	if err != nil {
		return err
	}
	defer svc.close(context.Background())

	sched := svc.pool.Scheduler()

	var watcher *config.Watcher
	if path := watchPath(); path != "" && !serveNoWatch {
		watcher, err = config.NewWatcher(path, sched)
		if err != nil {
			return err
		}
	}

	svc.pool.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if cfg.API.IsEnabled() {
		server := api.NewServer(cfg.API, svc.pool, sched)
		g.Go(func() error { return server.Start(gctx) })
	} else {
		logger.Warn("Admin API disabled, stats and tunables are only reachable through the config file")
	}

	if watcher != nil {
		g.Go(func() error { return watcher.Run(gctx) })
	}

	if serveLoad {
		g.Go(func() error { return replayWorkload(gctx, svc.pool, cfg.Workload, servePause) })
	}

	logger.Info("Server is running. Press Ctrl+C to stop.")
	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Server error", logger.Err(err))
		return err
	}
	logger.Info("Shutdown signal received, stopping")
	return nil
}

// watchPath returns the config file to watch, or "" when running on
// defaults only.
func watchPath() string {
	if path := GetConfigFile(); path != "" {
		return path
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	logger.Info("No configuration file, tunables reload disabled")
	return ""
}

// replayWorkload runs wl repeatedly, pausing between rounds, until ctx is done.
func replayWorkload(ctx context.Context, pool *svcpool.Pool, wl workload.Config, pause time.Duration) error {
	for round := 1; ; round++ {
		report, err := workload.Run(ctx, pool, wl)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("workload round %d: %w", round, err)
		}
		logger.Info("Workload round complete",
			"round", round,
			"calls", report.Calls,
			"forwarded", report.Forwarded,
			"locality_hit_rate", fmt.Sprintf("%.3f", report.LocalityHitRate()))

		t := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}
