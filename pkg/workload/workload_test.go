package workload

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/fhasched/internal/adapter/nfs/fhinfo"
	"github.com/marmos91/fhasched/internal/bytesize"
	"github.com/marmos91/fhasched/pkg/fha"
	"github.com/marmos91/fhasched/pkg/svcpool"
)

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := Config{IOSize: 64 * bytesize.KiB, FileSize: 4 * bytesize.KiB}
	cfg.ApplyDefaults()

	assert.Equal(t, DefaultFiles, cfg.Files)
	assert.Equal(t, DefaultCalls, cfg.Calls)
	assert.Equal(t, DefaultReadRatio, cfg.ReadRatio)
	assert.Equal(t, 64*bytesize.KiB, cfg.IOSize)
	assert.Equal(t, cfg.IOSize, cfg.FileSize, "file size is raised to one I/O")
}

func TestGenerator_Deterministic(t *testing.T) {
	cfg := DefaultConfig()
	a, b := NewGenerator(cfg, 3), NewGenerator(cfg, 3)
	other := NewGenerator(cfg, 4)

	same := true
	for i := 0; i < 200; i++ {
		opA, opB, opO := a.Next(), b.Next(), other.Next()
		require.Equal(t, opA, opB)
		if opA.Proc != opO.Proc || opA.Offset != opO.Offset || opA.File != opO.File {
			same = false
		}
	}
	assert.False(t, same, "different clients should produce different streams")
}

func TestGenerator_OpsAreWellFormed(t *testing.T) {
	cfg := Config{Files: 4, IOSize: 4 * bytesize.KiB, FileSize: 64 * bytesize.KiB}
	gen := NewGenerator(cfg, 0)

	for i := 0; i < 1000; i++ {
		op := gen.Next()
		require.GreaterOrEqual(t, op.File, 0)
		require.Less(t, op.File, 4)

		args, err := op.Args()
		require.NoError(t, err)

		info, ok, err := fhinfo.Extract(op.Proc, args)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, fha.KeyFromHandle(Handles(4)[op.File]), info.Descriptor.Key)

		if fhinfo.HasOffset(op.Proc) {
			assert.Zero(t, op.Offset%uint64(4*bytesize.KiB), "offsets are I/O aligned")
			assert.LessOrEqual(t, op.Offset+uint64(op.Count), uint64(64*bytesize.KiB))
			assert.Equal(t, op.Offset, info.Descriptor.Offset)
		} else {
			assert.Zero(t, info.Descriptor.Offset)
		}
	}
}

func TestGenerator_SequentialWithinFile(t *testing.T) {
	cfg := Config{Files: 1, MetadataRatio: 1e-9, ReadRatio: 1, IOSize: bytesize.KiB, FileSize: bytesize.MiB}
	gen := NewGenerator(cfg, 0)

	prev := gen.Next()
	for i := 0; i < 100; i++ {
		op := gen.Next()
		if op.Offset != 0 {
			assert.Equal(t, prev.Offset+uint64(bytesize.KiB), op.Offset)
		}
		prev = op
	}
}

func TestHandles_DistinctKeys(t *testing.T) {
	seen := make(map[fha.Key]bool)
	for _, h := range Handles(100) {
		k := fha.KeyFromHandle(h)
		assert.False(t, seen[k])
		seen[k] = true
	}
}

func newPool(t *testing.T, workers int, cfg Config) *svcpool.Pool {
	t.Helper()
	pc := svcpool.DefaultConfig()
	pc.Workers = workers
	p, err := svcpool.New(pc, Handler(cfg))
	require.NoError(t, err)
	p.Start()
	t.Cleanup(func() { _ = p.Stop(10 * time.Second) })
	return p
}

func TestRun_Report(t *testing.T) {
	cfg := Config{
		Files:       8,
		Calls:       2000,
		Clients:     4,
		IOSize:      4 * bytesize.KiB,
		FileSize:    4 * bytesize.MiB,
		ServiceTime: 20 * time.Microsecond,
	}
	p := newPool(t, 4, cfg)

	report, err := Run(context.Background(), p, cfg)
	require.NoError(t, err)

	assert.Equal(t, 2000, report.Calls)
	assert.Zero(t, report.Errors)
	assert.Zero(t, report.EntriesLeft, "all scheduler entries are released")
	assert.Len(t, report.Workers, 4)

	var executed uint64
	for _, w := range report.Workers {
		executed += w.Executed
	}
	assert.Equal(t, uint64(2000), executed)

	var ruled uint64
	for _, n := range report.Rules {
		ruled += n
	}
	assert.Equal(t, uint64(2000), ruled, "every call has a handle and gets a decision")

	assert.GreaterOrEqual(t, report.LocalityHitRate(), 0.0)
	assert.LessOrEqual(t, report.LocalityHitRate(), 1.0)
	assert.Positive(t, report.CallsPerSecond())
}

func TestRun_Cancelled(t *testing.T) {
	cfg := Config{Calls: 100000, Clients: 2, ServiceTime: time.Millisecond}
	p := newPool(t, 2, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := Run(ctx, p, cfg)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReport_EmptyRates(t *testing.T) {
	var r Report
	assert.Zero(t, r.LocalityHitRate())
	assert.Zero(t, r.CallsPerSecond())
}
