package fha

import (
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Test doubles
// ============================================================================

type fakeWorker struct {
	mu       sync.Mutex
	id       int
	inFlight int
	last     uint64
}

func (w *fakeWorker) ID() int { return w.id }

func (w *fakeWorker) InFlight() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.inFlight
}

func (w *fakeWorker) LastOffset() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

// enqueue mimics the service pool accepting a request on w.
func (w *fakeWorker) enqueue(d Descriptor) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.inFlight++
	if d.Kind == Read {
		w.last = d.Offset
	}
}

func (w *fakeWorker) finish() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.inFlight--
}

type fakePool []*fakeWorker

func (p fakePool) NumWorkers() int { return len(p) }

func (p fakePool) Worker(i int) Worker { return p[i] }

func newFakePool(n int) fakePool {
	p := make(fakePool, n)
	for i := range p {
		p[i] = &fakeWorker{id: i}
	}
	return p
}

func newTestScheduler(t *testing.T, pool fakePool, mutate func(*Tunables)) *Scheduler {
	t.Helper()
	tun := DefaultTunables()
	if mutate != nil {
		mutate(&tun)
	}
	s, err := New(pool, tun)
	require.NoError(t, err)
	return s
}

// dispatch assigns d from self and enqueues it on the chosen worker, the way
// the service pool does.
func dispatch(t *testing.T, s *Scheduler, d Descriptor, self *fakeWorker) (*fakeWorker, *Slot) {
	t.Helper()
	slot := &Slot{}
	w, err := s.Assign(d, self, slot)
	require.NoError(t, err)
	fw := w.(*fakeWorker)
	fw.enqueue(d)
	return fw, slot
}

// finish completes the request held by slot.
func finish(s *Scheduler, slot *Slot) {
	if w, ok := slot.Worker().(*fakeWorker); ok {
		w.finish()
	}
	s.Complete(slot)
}

func rd(fh Key, off uint64) Descriptor { return Descriptor{Key: fh, Kind: Read, Offset: off} }

func wr(fh Key, off uint64) Descriptor { return Descriptor{Key: fh, Kind: Write, Offset: off} }

// ============================================================================
// Lifecycle
// ============================================================================

func TestScheduler_WriteFunnelLifecycle(t *testing.T) {
	pool := newFakePool(3)
	t0, t1, t2 := pool[0], pool[1], pool[2]
	s := newTestScheduler(t, pool, nil)

	// The first read on an empty table runs on the caller.
	w, slotA := dispatch(t, s, rd(1, 0), t0)
	assert.Same(t, t0, w)
	e, ok := s.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, 1, e.Reads)
	assert.Equal(t, 0, e.Writes)
	assert.Equal(t, []int{0}, e.Workers)

	// A write grows the entry onto its idle caller...
	w, slotB := dispatch(t, s, wr(1, 0), t1)
	assert.Same(t, t1, w)
	e, _ = s.Lookup(1)
	assert.Equal(t, 1, e.Writes)
	assert.Equal(t, []int{0, 1}, e.Workers)

	// ...and from then on everything funnels to the primary worker.
	w, slotC := dispatch(t, s, rd(1, 999999), t2)
	assert.Same(t, t0, w)
	e, _ = s.Lookup(1)
	assert.Equal(t, 2, e.Reads)
	assert.Equal(t, []int{0, 1}, e.Workers)

	// Completing all three drops the entry.
	finish(s, slotA)
	e, ok = s.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, []int{0, 1}, e.Workers, "t0 still holds the third request")

	finish(s, slotB)
	e, ok = s.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, []int{0}, e.Workers)
	assert.Equal(t, 0, e.Writes)

	finish(s, slotC)
	_, ok = s.Lookup(1)
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())

	st := s.Stats()
	assert.EqualValues(t, 2, st.AssignsFor(RuleGrowth))
	assert.EqualValues(t, 1, st.AssignsFor(RuleWriteFunnel))
	assert.EqualValues(t, 3, st.Completes)
	assert.EqualValues(t, 1, st.EntriesCreated)
	assert.EqualValues(t, 1, st.EntriesRemoved)
}

// ============================================================================
// Properties
// ============================================================================

func TestScheduler_WriteFunnel(t *testing.T) {
	pool := newFakePool(6)
	s := newTestScheduler(t, pool, nil)

	writer, wslot := dispatch(t, s, wr(7, 0), pool[0])
	require.Same(t, pool[0], writer)

	var slots []*Slot
	for i := 1; i < len(pool); i++ {
		for _, d := range []Descriptor{rd(7, uint64(i)<<30), wr(7, uint64(i))} {
			w, slot := dispatch(t, s, d, pool[i])
			assert.Same(t, writer, w, "request %v from worker %d", d, i)
			slots = append(slots, slot)
		}
	}

	e, _ := s.Lookup(7)
	assert.Equal(t, []int{0}, e.Workers, "funnel never binds new workers")

	finish(s, wslot)
	for _, slot := range slots {
		finish(s, slot)
	}
	assert.Equal(t, 0, s.Len())
}

func TestScheduler_ReadLocality(t *testing.T) {
	pool := newFakePool(5)
	s := newTestScheduler(t, pool, nil)
	const bin = uint64(5) << DefaultBinShift

	owner, first := dispatch(t, s, rd(3, bin), pool[0])
	require.Same(t, pool[0], owner)

	// Same bin, owner below MaxReqsPerThread: sticks to the owner.
	slots := []*Slot{first}
	for i := 1; i < DefaultMaxReqsPerThread; i++ {
		w, slot := dispatch(t, s, rd(3, bin+uint64(i)*4096), pool[i])
		assert.Same(t, owner, w)
		slots = append(slots, slot)
	}
	require.Equal(t, DefaultMaxReqsPerThread, owner.InFlight())

	// Owner is now saturated: the next nearby read grows onto its caller.
	w, slot := dispatch(t, s, rd(3, bin+1), pool[4])
	assert.Same(t, pool[4], w)
	slots = append(slots, slot)

	for _, slot := range slots {
		finish(s, slot)
	}
	assert.Equal(t, 0, s.Len())
}

func TestScheduler_ReadLocality_DifferentBin(t *testing.T) {
	pool := newFakePool(2)
	s := newTestScheduler(t, pool, nil)

	_, a := dispatch(t, s, rd(3, 0), pool[0])
	w, b := dispatch(t, s, rd(3, 1<<DefaultBinShift), pool[1])
	assert.Same(t, pool[1], w, "a read in another bin does not follow the owner")

	finish(s, a)
	finish(s, b)
}

func TestScheduler_WritesSkipLocality(t *testing.T) {
	pool := newFakePool(2)
	s := newTestScheduler(t, pool, nil)

	_, a := dispatch(t, s, rd(4, 0), pool[0])
	w, b := dispatch(t, s, wr(4, 0), pool[1])
	assert.Same(t, pool[1], w)

	finish(s, a)
	finish(s, b)
}

func TestScheduler_BoundedFanOut(t *testing.T) {
	pool := newFakePool(8)
	s := newTestScheduler(t, pool, func(tun *Tunables) {
		tun.MaxThreadsPerFile = 3
	})

	seen := map[int]bool{}
	var slots []*Slot
	for i := 0; i < 40; i++ {
		self := pool[i%len(pool)]
		w, slot := dispatch(t, s, rd(9, uint64(i)<<DefaultBinShift), self)
		seen[w.ID()] = true
		slots = append(slots, slot)

		e, _ := s.Lookup(9)
		assert.LessOrEqual(t, e.Threads(), 3)
	}
	assert.Len(t, seen, 3, "only three distinct workers ever served the file")
	assert.EqualValues(t, 3, s.Stats().AssignsFor(RuleGrowth))

	for _, slot := range slots {
		finish(s, slot)
	}
	assert.Equal(t, 0, s.Len())
}

func TestScheduler_OverflowPicksLeastLoaded(t *testing.T) {
	pool := newFakePool(4)
	s := newTestScheduler(t, pool, func(tun *Tunables) {
		tun.MaxThreadsPerFile = 2
	})

	_, a := dispatch(t, s, rd(5, 0), pool[0])
	_, b := dispatch(t, s, rd(5, 0), pool[0])
	_, c := dispatch(t, s, rd(5, 0), pool[0])
	_, d := dispatch(t, s, rd(5, 10<<DefaultBinShift), pool[1])

	// pool[0] carries three requests, pool[1] one. A far read must reuse pool[1].
	w, e := dispatch(t, s, rd(5, 20<<DefaultBinShift), pool[2])
	assert.Same(t, pool[1], w)
	assert.EqualValues(t, 1, s.Stats().AssignsFor(RuleOverflow))

	// Equal load: the first bound worker wins.
	pool[1].enqueue(rd(0, 0))
	w, f := dispatch(t, s, rd(5, 30<<DefaultBinShift), pool[3])
	assert.Same(t, pool[0], w)
	pool[1].finish()

	for _, slot := range []*Slot{a, b, c, d, e, f} {
		finish(s, slot)
	}
	assert.Equal(t, 0, s.Len())
}

func TestScheduler_GrowthPrefersIdleWorker(t *testing.T) {
	pool := newFakePool(4)
	s := newTestScheduler(t, pool, nil)

	// Make the caller and pool[1] busy.
	pool[0].enqueue(rd(100, 0))
	pool[1].enqueue(rd(101, 0))

	w, slot := dispatch(t, s, wr(6, 0), pool[0])
	assert.Same(t, pool[2], w)
	finish(s, slot)

	// Nobody idle: fall back to the caller.
	for _, fw := range pool {
		fw.enqueue(rd(102, 0))
	}
	w, slot = dispatch(t, s, wr(6, 0), pool[3])
	assert.Same(t, pool[3], w)
	finish(s, slot)
}

func TestScheduler_IdleScanLimitRotates(t *testing.T) {
	pool := newFakePool(6)
	s := newTestScheduler(t, pool, func(tun *Tunables) {
		tun.IdleScanLimit = 2
	})
	for _, fw := range pool[:4] {
		fw.enqueue(rd(100, 0))
	}

	// The first scan covers workers 0 and 1, both busy.
	w, a := dispatch(t, s, wr(1, 0), pool[0])
	assert.Same(t, pool[0], w)

	// The second covers 2 and 3, still busy; the third reaches 4.
	w, b := dispatch(t, s, wr(2, 0), pool[0])
	assert.Same(t, pool[0], w)
	w, c := dispatch(t, s, wr(3, 0), pool[0])
	assert.Same(t, pool[4], w)

	finish(s, a)
	finish(s, b)
	finish(s, c)
}

func TestScheduler_IdleCleanup(t *testing.T) {
	pool := newFakePool(8)
	s := newTestScheduler(t, pool, func(tun *Tunables) {
		tun.MaxThreadsPerFile = 3
	})
	rng := rand.New(rand.NewSource(42))

	var outstanding []*Slot
	for i := 0; i < 2000; i++ {
		if len(outstanding) > 0 && rng.Intn(3) == 0 {
			j := rng.Intn(len(outstanding))
			finish(s, outstanding[j])
			outstanding = append(outstanding[:j], outstanding[j+1:]...)
			continue
		}
		d := Descriptor{Key: Key(rng.Intn(5)), Offset: uint64(rng.Intn(8)) << 16}
		if rng.Intn(4) == 0 {
			d.Kind = Write
		}
		_, slot := dispatch(t, s, d, pool[rng.Intn(len(pool))])
		outstanding = append(outstanding, slot)
	}
	for _, slot := range outstanding {
		finish(s, slot)
	}

	assert.Equal(t, 0, s.Len())
	st := s.Stats()
	assert.Equal(t, st.EntriesCreated, st.EntriesRemoved)
	assert.Zero(t, st.Repairs)
}

func TestScheduler_CompleteIsIdempotent(t *testing.T) {
	pool := newFakePool(2)
	s := newTestScheduler(t, pool, nil)

	_, held := dispatch(t, s, rd(1, 0), pool[0])
	before, _ := s.Snapshot(0)

	// Never assigned, nil, and already completed slots are all no-ops.
	s.Complete(&Slot{})
	s.Complete(nil)

	_, done := dispatch(t, s, rd(2, 0), pool[1])
	finish(s, done)
	statsBefore := s.Stats()
	s.Complete(done)

	after, _ := s.Snapshot(0)
	assert.Equal(t, before, after)
	assert.Equal(t, statsBefore, s.Stats())

	finish(s, held)
	assert.Equal(t, 0, s.Len())
}

func TestScheduler_ConcurrentDoubleComplete(t *testing.T) {
	pool := newFakePool(2)
	s := newTestScheduler(t, pool, nil)

	const rounds = 2000
	for i := 0; i < rounds; i++ {
		slot := &Slot{}
		_, err := s.Assign(rd(1, 0), pool[0], slot)
		require.NoError(t, err)

		start := make(chan struct{})
		var wg sync.WaitGroup
		for g := 0; g < 2; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				s.Complete(slot)
			}()
		}
		close(start)
		wg.Wait()

		require.Equal(t, 0, s.Len(), "round %d", i)
	}

	st := s.Stats()
	assert.EqualValues(t, rounds, st.Completes)
	assert.EqualValues(t, rounds, st.EntriesRemoved)
	assert.Zero(t, st.Repairs)
}

func TestScheduler_InsertRaceKeepsExistingEntry(t *testing.T) {
	pool := newFakePool(2)
	s := newTestScheduler(t, pool, nil)

	// While the first Assign has dropped the lock to allocate, a second worker
	// creates the entry for the same file.
	var rival *Slot
	s.unlockedHook = func() {
		s.unlockedHook = nil
		_, rival = dispatch(t, s, rd(8, 0), pool[1])
	}

	w, slot := dispatch(t, s, rd(8, 0), pool[0])
	require.NotNil(t, rival)
	assert.Same(t, rival.entry, slot.entry, "the entry created first is shared")
	assert.Same(t, pool[1], w, "locality follows the entry's owner")

	e, ok := s.Lookup(8)
	require.True(t, ok)
	assert.Equal(t, 2, e.Reads)
	assert.Equal(t, []int{1}, e.Workers)

	st := s.Stats()
	assert.EqualValues(t, 1, st.EntriesCreated)
	assert.EqualValues(t, 1, st.InsertRaces)

	finish(s, slot)
	finish(s, rival)
	assert.Equal(t, 0, s.Len())
}

func TestTable_InsertIfAbsentExistingWins(t *testing.T) {
	tbl := newTable()
	first := newFileEntry(3, 0)
	got, inserted, err := tbl.insertIfAbsent(first, 0)
	require.NoError(t, err)
	require.True(t, inserted)
	require.Same(t, first, got)

	got, inserted, err = tbl.insertIfAbsent(newFileEntry(3, 0), 1)
	require.NoError(t, err, "a full table still returns the existing entry")
	assert.False(t, inserted)
	assert.Same(t, first, got)
	assert.Equal(t, 1, tbl.len())

	_, _, err = tbl.insertIfAbsent(newFileEntry(4, 0), 1)
	assert.ErrorIs(t, err, ErrTableFull)
}

func TestScheduler_Disabled(t *testing.T) {
	pool := newFakePool(2)
	s := newTestScheduler(t, pool, func(tun *Tunables) {
		tun.Enabled = false
	})

	slot := &Slot{}
	w, err := s.Assign(wr(1, 0), pool[1], slot)
	require.NoError(t, err)
	assert.Same(t, pool[1], w)
	assert.False(t, slot.Bound())
	assert.Equal(t, 0, s.Len())
	assert.EqualValues(t, 1, s.Stats().AssignsFor(RuleBypass))

	s.Complete(slot)
}

func TestScheduler_TableFull(t *testing.T) {
	pool := newFakePool(2)
	s := newTestScheduler(t, pool, func(tun *Tunables) {
		tun.MaxEntries = 1
	})

	_, held := dispatch(t, s, rd(1, 0), pool[0])

	slot := &Slot{}
	w, err := s.Assign(rd(2, 0), pool[1], slot)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTableFull))
	assert.Same(t, pool[1], w, "fallback is the caller")
	assert.False(t, slot.Bound())
	assert.EqualValues(t, 1, s.Stats().TableFull)

	// Existing files keep being scheduled.
	w, more := dispatch(t, s, rd(1, 0), pool[1])
	assert.Same(t, pool[0], w)

	finish(s, held)
	finish(s, more)
	assert.Equal(t, 0, s.Len())
}

func TestScheduler_AssignArgumentErrors(t *testing.T) {
	pool := newFakePool(1)
	s := newTestScheduler(t, pool, nil)

	_, err := s.Assign(rd(1, 0), nil, &Slot{})
	assert.ErrorIs(t, err, ErrNilWorker)

	w, err := s.Assign(rd(1, 0), pool[0], nil)
	assert.ErrorIs(t, err, ErrNilSlot)
	assert.Same(t, pool[0], w)

	_, slot := dispatch(t, s, rd(1, 0), pool[0])
	_, err = s.Assign(rd(1, 0), pool[0], slot)
	assert.ErrorIs(t, err, ErrSlotInUse)

	finish(s, slot)
	assert.Equal(t, 0, s.Len())
}

func TestScheduler_SetTunables(t *testing.T) {
	s := newTestScheduler(t, newFakePool(1), nil)

	tun := s.Tunables()
	assert.Equal(t, DefaultTunables(), tun)

	tun.BinShift = 20
	tun.MaxThreadsPerFile = 2
	require.NoError(t, s.SetTunables(tun))
	assert.Equal(t, tun, s.Tunables())

	tun.BinShift = 64
	assert.ErrorIs(t, s.SetTunables(tun), ErrInvalidTunables)
	assert.EqualValues(t, 20, s.Tunables().BinShift)
}

func TestScheduler_UpdateTunablesConcurrent(t *testing.T) {
	s := newTestScheduler(t, newFakePool(1), func(tun *Tunables) {
		tun.MaxEntries = 0
		tun.IdleScanLimit = 0
	})

	const n = 200
	var wg sync.WaitGroup
	for g := 0; g < n; g++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := s.UpdateTunables(func(t *Tunables) { t.MaxEntries++ })
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := s.UpdateTunables(func(t *Tunables) { t.IdleScanLimit++ })
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	tun := s.Tunables()
	assert.Equal(t, n, tun.MaxEntries)
	assert.Equal(t, n, tun.IdleScanLimit)
}

func TestScheduler_UpdateTunablesRejectsInvalid(t *testing.T) {
	s := newTestScheduler(t, newFakePool(1), nil)

	got, err := s.UpdateTunables(func(t *Tunables) {
		t.MaxThreadsPerFile = 2
		t.BinShift = 64
	})
	assert.ErrorIs(t, err, ErrInvalidTunables)
	assert.Equal(t, DefaultTunables(), got)
	assert.Equal(t, DefaultTunables(), s.Tunables())
}

func TestScheduler_Snapshot(t *testing.T) {
	pool := newFakePool(2)
	s := newTestScheduler(t, pool, nil)

	var slots []*Slot
	for k := Key(10); k > 0; k-- {
		_, slot := dispatch(t, s, rd(k, 0), pool[int(k)%2])
		slots = append(slots, slot)
	}

	snap, total := s.Snapshot(4)
	assert.Equal(t, 10, total)
	require.Len(t, snap, 4)
	for i := 1; i < len(snap); i++ {
		assert.Less(t, snap[i-1].Key, snap[i].Key)
	}

	all, _ := s.Snapshot(0)
	assert.Len(t, all, 10)

	for _, slot := range slots {
		finish(s, slot)
	}
}

func TestScheduler_Concurrent(t *testing.T) {
	pool := newFakePool(16)
	s := newTestScheduler(t, pool, nil)

	var wg sync.WaitGroup
	for g := 0; g < len(pool); g++ {
		wg.Add(1)
		go func(self *fakeWorker, seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < 500; i++ {
				d := Descriptor{Key: Key(rng.Intn(4)), Offset: uint64(rng.Intn(1 << 22))}
				if rng.Intn(5) == 0 {
					d.Kind = Write
				}
				slot := &Slot{}
				w, err := s.Assign(d, self, slot)
				if err != nil {
					t.Errorf("assign: %v", err)
					return
				}
				fw := w.(*fakeWorker)
				fw.enqueue(d)
				fw.finish()
				s.Complete(slot)
			}
		}(pool[g], int64(g))
	}
	wg.Wait()

	assert.Equal(t, 0, s.Len())
	assert.Zero(t, s.Stats().Repairs)
}

func TestNew_RejectsInvalidTunables(t *testing.T) {
	tun := DefaultTunables()
	tun.MaxReqsPerThread = -1
	_, err := New(nil, tun)
	assert.ErrorIs(t, err, ErrInvalidTunables)
}
