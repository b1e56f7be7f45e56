package workload

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/marmos91/fhasched/internal/adapter/nfs/fhinfo"
	"github.com/marmos91/fhasched/internal/logger"
	"github.com/marmos91/fhasched/pkg/fha"
	"github.com/marmos91/fhasched/pkg/svcpool"
)

// Handler returns a call handler that simulates service time. Data calls
// take cfg.ServiceTime, everything else a quarter of it.
func Handler(cfg Config) svcpool.Handler {
	cfg.ApplyDefaults()
	return func(ctx context.Context, req *svcpool.Request) error {
		d := cfg.ServiceTime
		if !fhinfo.HasOffset(req.Proc) {
			d /= 4
		}
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// WorkerLoad is the share of the run one worker carried.
type WorkerLoad struct {
	ID        int    `json:"id" yaml:"id"`
	Executed  uint64 `json:"executed" yaml:"executed"`
	Received  uint64 `json:"received" yaml:"received"`
	Forwarded uint64 `json:"forwarded" yaml:"forwarded"`
}

// Report summarises a run.
type Report struct {
	Calls     int               `json:"calls" yaml:"calls"`
	Errors    int               `json:"errors" yaml:"errors"`
	Elapsed   time.Duration     `json:"elapsed" yaml:"elapsed"`
	Rules     map[string]uint64 `json:"rules" yaml:"rules"`
	Forwarded int               `json:"forwarded" yaml:"forwarded"`

	// Reads counts READs whose (file, bin) had been read before in the run;
	// LocalityHits counts those served by the same worker as last time.
	Reads        int `json:"reads" yaml:"reads"`
	LocalityHits int `json:"locality_hits" yaml:"locality_hits"`

	Workers []WorkerLoad `json:"workers" yaml:"workers"`

	// EntriesLeft is the scheduler table size after the run. It is zero when
	// every call released its bookkeeping.
	EntriesLeft int `json:"entries_left" yaml:"entries_left"`
}

// LocalityHitRate is LocalityHits/Reads, or 0 when there were no repeat reads.
func (r *Report) LocalityHitRate() float64 {
	if r.Reads == 0 {
		return 0
	}
	return float64(r.LocalityHits) / float64(r.Reads)
}

// CallsPerSecond is the achieved throughput.
func (r *Report) CallsPerSecond() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Calls) / r.Elapsed.Seconds()
}

type binKey struct {
	file int
	bin  uint64
}

// tracker records which worker last served each (file, bin).
type tracker struct {
	mu        sync.Mutex
	binShift  uint
	last      map[binKey]int
	reads     int
	hits      int
	errors    int
	forwarded int
	calls     int
}

func (t *tracker) record(op Op, res svcpool.Result) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.calls++
	if res.Err != nil {
		t.errors++
	}
	if res.Forwarded {
		t.forwarded++
	}
	if op.Proc != fhinfo.ProcRead {
		return
	}
	k := binKey{file: op.File, bin: op.Offset >> t.binShift}
	if prev, seen := t.last[k]; seen {
		t.reads++
		if prev == res.Worker {
			t.hits++
		}
	}
	t.last[k] = res.Worker
}

// Run drives cfg through pool and reports how the scheduler placed the calls.
// pool must be started. Run returns early with an error if ctx is cancelled
// or the pool stops accepting calls.
func Run(ctx context.Context, pool *svcpool.Pool, cfg Config) (*Report, error) {
	cfg.ApplyDefaults()

	sched := pool.Scheduler()
	statsBefore := sched.Stats()
	poolBefore := pool.Stats()

	tr := &tracker{
		binShift: sched.Tunables().BinShift,
		last:     make(map[binKey]int),
	}

	logger.Info("Starting workload",
		"calls", cfg.Calls,
		"clients", cfg.Clients,
		"files", cfg.Files,
		"read_ratio", cfg.ReadRatio,
		"io_size", cfg.IOSize.String())

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for c := 0; c < cfg.Clients; c++ {
		n := cfg.Calls / cfg.Clients
		if c < cfg.Calls%cfg.Clients {
			n++
		}
		gen := NewGenerator(cfg, c)
		g.Go(func() error {
			return runClient(gctx, pool, gen, n, tr)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	elapsed := time.Since(start)

	report := &Report{
		Calls:        tr.calls,
		Errors:       tr.errors,
		Elapsed:      elapsed,
		Rules:        ruleDelta(statsBefore, sched.Stats()),
		Forwarded:    tr.forwarded,
		Reads:        tr.reads,
		LocalityHits: tr.hits,
		Workers:      workerDelta(poolBefore, pool.Stats()),
		EntriesLeft:  sched.Len(),
	}

	logger.Info("Workload finished",
		"calls", report.Calls,
		"errors", report.Errors,
		logger.DurationMs(elapsed),
		"locality_hit_rate", fmt.Sprintf("%.3f", report.LocalityHitRate()))
	return report, nil
}

func runClient(ctx context.Context, pool *svcpool.Pool, gen *Generator, n int, tr *tracker) error {
	for i := 0; i < n; i++ {
		op := gen.Next()
		args, err := op.Args()
		if err != nil {
			return fmt.Errorf("encode %s args: %w", fhinfo.ProcName(op.Proc), err)
		}
		done, err := pool.Submit(ctx, op.Proc, args)
		if err != nil {
			return fmt.Errorf("submit: %w", err)
		}
		select {
		case res := <-done:
			tr.record(op, res)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func ruleDelta(before, after fha.Stats) map[string]uint64 {
	out := make(map[string]uint64, len(after.Assigns))
	for name, n := range after.Assigns {
		if d := n - before.Assigns[name]; d > 0 {
			out[name] = d
		}
	}
	return out
}

func workerDelta(before, after svcpool.PoolStats) []WorkerLoad {
	out := make([]WorkerLoad, len(after.Workers))
	for i, w := range after.Workers {
		var b svcpool.WorkerStats
		if i < len(before.Workers) {
			b = before.Workers[i]
		}
		out[i] = WorkerLoad{
			ID:        w.ID,
			Executed:  w.Executed - b.Executed,
			Received:  w.Received - b.Received,
			Forwarded: w.Forwarded - b.Forwarded,
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
