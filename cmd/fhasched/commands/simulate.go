package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/marmos91/fhasched/internal/cli/output"
	"github.com/marmos91/fhasched/internal/logger"
	"github.com/marmos91/fhasched/pkg/api"
	"github.com/marmos91/fhasched/pkg/config"
	"github.com/marmos91/fhasched/pkg/workload"
	"github.com/spf13/cobra"
)

var simulateFlags struct {
	output string
	withAPI bool

	calls         int
	clients       int
	files         int
	readRatio     float64
	metadataRatio float64
	seed          int64

	workers           int
	disable           bool
	binShift          uint
	maxThreadsPerFile int
	maxReqsPerThread  int
	maxEntries        int
	idleScanLimit     int
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a synthetic NFSv3 workload through the scheduler",
	Long: `Run a synthetic NFSv3 workload through a service pool and report how the
file-handle affinity scheduler placed the calls.

Each client issues a seeded stream of READ, WRITE and metadata calls against
a fixed set of file handles. Calls are encoded as NFSv3 arguments, classified,
scheduled and executed by the pool exactly as a server would. The workload
and scheduler come from the configuration file; the flags below override it.

Examples:
  # Run the configured workload
  fhasched simulate

  # Compare against plain round-robin dispatch
  fhasched simulate --disable-fha

  # Read-only streams over many files with at most two workers per file
  fhasched simulate --files 64 --read-ratio 1 --max-threads-per-file 2

  # Keep the admin API up while the run is in progress
  fhasched simulate --api --calls 1000000`,
	RunE: runSimulate,
}

func init() {
	f := simulateCmd.Flags()
	f.StringVarP(&simulateFlags.output, "output", "o", "table", "Output format (table|json|yaml)")
	f.BoolVar(&simulateFlags.withAPI, "api", false, "Serve the admin API while the workload runs")

	f.IntVar(&simulateFlags.calls, "calls", 0, "Total number of calls")
	f.IntVar(&simulateFlags.clients, "clients", 0, "Number of concurrent clients")
	f.IntVar(&simulateFlags.files, "files", 0, "Number of distinct files")
	f.Float64Var(&simulateFlags.readRatio, "read-ratio", 0, "Share of data calls that are READs")
	f.Float64Var(&simulateFlags.metadataRatio, "metadata-ratio", 0, "Share of calls without an offset")
	f.Int64Var(&simulateFlags.seed, "seed", 0, "Random seed")

	f.IntVar(&simulateFlags.workers, "workers", 0, "Number of pool workers")
	f.BoolVar(&simulateFlags.disable, "disable-fha", false, "Disable affinity scheduling")
	f.UintVar(&simulateFlags.binShift, "bin-shift", 0, "Read locality bin size as a power of two")
	f.IntVar(&simulateFlags.maxThreadsPerFile, "max-threads-per-file", 0, "Workers bound per file (-1 for unlimited)")
	f.IntVar(&simulateFlags.maxReqsPerThread, "max-reqs-per-thread", 0, "In-flight calls above which locality is ignored (-1 for unlimited)")
	f.IntVar(&simulateFlags.maxEntries, "max-entries", 0, "Bound on tracked files (0 for unlimited)")
	f.IntVar(&simulateFlags.idleScanLimit, "idle-scan-limit", 0, "Workers inspected when looking for an idle one (0 for all)")
}

// applySimulateFlags copies the flags the user set onto cfg.
func applySimulateFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	w := &cfg.Workload
	if f.Changed("calls") {
		w.Calls = simulateFlags.calls
	}
	if f.Changed("clients") {
		w.Clients = simulateFlags.clients
	}
	if f.Changed("files") {
		w.Files = simulateFlags.files
	}
	if f.Changed("read-ratio") {
		w.ReadRatio = simulateFlags.readRatio
	}
	if f.Changed("metadata-ratio") {
		w.MetadataRatio = simulateFlags.metadataRatio
	}
	if f.Changed("seed") {
		w.Seed = simulateFlags.seed
	}

	s := &cfg.Scheduler
	if f.Changed("workers") {
		cfg.Pool.Workers = simulateFlags.workers
	}
	if f.Changed("disable-fha") {
		enabled := !simulateFlags.disable
		s.Enabled = &enabled
	}
	if f.Changed("bin-shift") {
		s.BinShift = simulateFlags.binShift
		s.BinSize = 0
	}
	if f.Changed("max-threads-per-file") {
		s.MaxThreadsPerFile = simulateFlags.maxThreadsPerFile
	}
	if f.Changed("max-reqs-per-thread") {
		s.MaxReqsPerThread = simulateFlags.maxReqsPerThread
	}
	if f.Changed("max-entries") {
		s.MaxEntries = simulateFlags.maxEntries
	}
	if f.Changed("idle-scan-limit") {
		s.IdleScanLimit = simulateFlags.idleScanLimit
	}
}

func runSimulate(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(simulateFlags.output)
	if err != nil {
		return err
	}

	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return err
	}
	applySimulateFlags(cmd, cfg)
	cfg.Workload.ApplyDefaults()
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := newService(ctx, cfg, workload.Handler(cfg.Workload))
	if err != nil {
		return err
	}
	defer svc.close(context.Background())

	svc.pool.Start()

	if simulateFlags.withAPI {
		server := api.NewServer(cfg.API, svc.pool, svc.pool.Scheduler())
		apiCtx, cancelAPI := context.WithCancel(ctx)
		apiDone := make(chan error, 1)
		go func() { apiDone <- server.Start(apiCtx) }()
		defer func() {
			cancelAPI()
			if err := <-apiDone; err != nil {
				logger.Error("API server error", logger.Err(err))
			}
		}()
	}

	report, err := workload.Run(ctx, svc.pool, cfg.Workload)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("simulation interrupted")
		}
		return fmt.Errorf("simulation failed: %w", err)
	}

	view := simulationView{
		Workers:  svc.pool.NumWorkers(),
		Tunables: svc.pool.Scheduler().Tunables(),
		Workload: cfg.Workload,
		Report:   report,
	}
	printer := output.NewPrinter(os.Stdout, format, isTerminal(os.Stdout))
	return printer.Print(view)
}
