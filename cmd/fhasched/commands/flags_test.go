package commands

import (
	"testing"

	"github.com/marmos91/fhasched/pkg/config"
)

func TestApplySimulateFlags(t *testing.T) {
	if err := simulateCmd.ParseFlags([]string{
		"--calls", "500",
		"--files", "3",
		"--workers", "2",
		"--disable-fha",
		"--max-threads-per-file=-1",
		"--bin-shift", "20",
	}); err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}

	cfg := config.GetDefaultConfig()
	cfg.Scheduler.BinSize = 1 << 16
	applySimulateFlags(simulateCmd, cfg)

	if cfg.Workload.Calls != 500 || cfg.Workload.Files != 3 {
		t.Errorf("workload = %+v", cfg.Workload)
	}
	if cfg.Workload.Clients != config.GetDefaultConfig().Workload.Clients {
		t.Errorf("clients changed without a flag: %d", cfg.Workload.Clients)
	}
	if cfg.Pool.Workers != 2 {
		t.Errorf("workers = %d, want 2", cfg.Pool.Workers)
	}

	tun, err := cfg.Scheduler.Tunables()
	if err != nil {
		t.Fatalf("Tunables: %v", err)
	}
	if tun.Enabled {
		t.Error("--disable-fha left scheduling enabled")
	}
	if tun.MaxThreadsPerFile != 0 {
		t.Errorf("max threads = %d, want 0 (unlimited)", tun.MaxThreadsPerFile)
	}
	// --bin-shift replaces a bin_size from the file.
	if tun.BinShift != 20 {
		t.Errorf("bin shift = %d, want 20", tun.BinShift)
	}
}

func TestTunablesFromFlags(t *testing.T) {
	if err := tunablesSetCmd.ParseFlags([]string{"--enabled=false", "--max-reqs-per-thread", "0"}); err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}

	u := tunablesFromFlags(tunablesSetCmd)
	if u.Enabled == nil || *u.Enabled {
		t.Errorf("Enabled = %v, want false", u.Enabled)
	}
	if u.MaxReqsPerThread == nil || *u.MaxReqsPerThread != 0 {
		t.Errorf("MaxReqsPerThread = %v, want 0", u.MaxReqsPerThread)
	}
	if u.BinShift != nil || u.MaxThreadsPerFile != nil || u.MaxEntries != nil || u.IdleScanLimit != nil {
		t.Errorf("unset flags leaked into the update: %+v", u)
	}
}
