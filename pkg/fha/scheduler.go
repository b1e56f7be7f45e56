package fha

import (
	"fmt"
	"sync"

	"github.com/marmos91/fhasched/internal/logger"
)

// Metrics receives scheduler events. Implementations must be cheap and
// non-blocking; they are called right after the scheduler lock is released.
// A nil Metrics disables collection.
type Metrics interface {
	// ObserveAssign records one scheduling decision.
	ObserveAssign(rule Rule, kind OpKind)

	// ObserveComplete records one completed request.
	ObserveComplete(kind OpKind)

	// SetEntries reports the current number of tracked files.
	SetEntries(n int)

	// ObserveTableFull records an Assign that fell back because the table was full.
	ObserveTableFull()

	// ObserveRepair records a consistency violation that was repaired.
	ObserveRepair(reason string)
}

// Slot is the per-request back-reference written by Assign and consumed by
// Complete. The zero value is an unbound slot; completing it is a no-op.
//
// A Slot must not be copied once bound.
type Slot struct {
	entry  *FileEntry
	kind   OpKind
	worker Worker
	rule   Rule
}

// Bound reports whether the slot carries scheduling state to release.
func (s *Slot) Bound() bool {
	return s != nil && s.entry != nil
}

// Worker returns the worker chosen for the request, or nil if unbound.
func (s *Slot) Worker() Worker {
	if s == nil {
		return nil
	}
	return s.worker
}

// Kind returns the operation kind charged by Assign.
func (s *Slot) Kind() OpKind {
	return s.kind
}

// Rule returns the rule that chose the worker. Only meaningful while bound.
func (s *Slot) Rule() Rule {
	return s.rule
}

func (s *Slot) reset() {
	*s = Slot{}
}

// Scheduler assigns requests to workers by file-handle affinity.
//
// A Scheduler is created once per service pool and shared by all workers.
type Scheduler struct {
	mu      sync.Mutex
	table   *table
	pol     policy
	stats   counters
	metrics Metrics

	// unlockedHook runs in Assign while the lock is dropped to allocate an
	// entry. Tests use it to interleave a competing Assign.
	unlockedHook func()
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithMetrics attaches a metrics sink.
func WithMetrics(m Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// New creates a scheduler over pool with the given tunables. pool may be nil,
// in which case the growth rule never looks beyond the calling worker.
func New(pool Pool, tun Tunables, opts ...Option) (*Scheduler, error) {
	if err := tun.Validate(); err != nil {
		return nil, err
	}
	s := &Scheduler{
		table: newTable(),
		pol:   policy{tun: tun, pool: pool},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Assign picks the worker that should run the request described by d. self is
// the worker making the call. On success the slot is bound and must later be
// passed to Complete.
//
// Assign always returns a usable worker: when it fails, the worker returned is
// self and the slot stays unbound.
func (s *Scheduler) Assign(d Descriptor, self Worker, slot *Slot) (Worker, error) {
	if self == nil {
		return nil, ErrNilWorker
	}
	if slot == nil {
		return self, ErrNilSlot
	}
	if slot.Bound() {
		return self, ErrSlotInUse
	}

	s.mu.Lock()
	if !s.pol.tun.Enabled {
		s.stats.assigns[RuleBypass]++
		s.mu.Unlock()
		s.observeAssign(RuleBypass, d.Kind)
		return self, nil
	}

	e := s.table.lookup(d.Key)
	if e == nil {
		// Allocate outside the lock, then re-check: another worker may have
		// created the entry while we were unlocked.
		capHint := s.pol.tun.MaxThreadsPerFile
		s.mu.Unlock()
		fresh := newFileEntry(d.Key, capHint)
		if s.unlockedHook != nil {
			s.unlockedHook()
		}
		s.mu.Lock()

		var inserted bool
		var err error
		e, inserted, err = s.table.insertIfAbsent(fresh, s.pol.tun.MaxEntries)
		if err != nil {
			s.stats.assigns[RuleFallback]++
			s.stats.tableFull++
			entries := s.table.len()
			s.mu.Unlock()
			if s.metrics != nil {
				s.metrics.ObserveTableFull()
				s.metrics.ObserveAssign(RuleFallback, d.Kind)
				s.metrics.SetEntries(entries)
			}
			logger.Debug("fha table full, running on caller",
				logger.KeyHandle, d.Key.String(),
				logger.KeyWorker, self.ID(),
				logger.KeyEntries, entries)
			return self, fmt.Errorf("assign %s: %w", d.Key, err)
		}
		if inserted {
			s.stats.created++
		} else {
			s.stats.insertRaces++
		}
	}

	w, rule := s.pol.choose(e, d, self)
	i := e.bind(w)
	e.threads[i].reqs++
	e.addOp(d.Kind)

	slot.entry = e
	slot.kind = d.Kind
	slot.worker = w
	slot.rule = rule

	s.stats.assigns[rule]++
	entries := s.table.len()
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ObserveAssign(rule, d.Kind)
		s.metrics.SetEntries(entries)
	}
	logger.Debug("fha assign",
		logger.KeyHandle, d.Key.String(),
		logger.KeyOp, d.Kind.String(),
		logger.KeyOffset, d.Offset,
		logger.KeyWorker, w.ID(),
		logger.KeyRule, rule.String())
	return w, nil
}

// Complete releases the bookkeeping recorded in slot by Assign. Unbound
// slots, slots already completed and slots never passed to Assign are ignored.
func (s *Scheduler) Complete(slot *Slot) {
	if slot == nil {
		return
	}

	var repairs []string

	s.mu.Lock()
	// The slot is only read under the lock so concurrent completions of the
	// same slot release it once.
	e, kind, w := slot.entry, slot.kind, slot.worker
	if e == nil {
		s.mu.Unlock()
		return
	}
	slot.reset()

	if e.removed {
		s.mu.Unlock()
		return
	}

	if !e.removeOp(kind) {
		repairs = append(repairs, kind.String()+" counter underflow")
	}

	if i := e.indexOf(w); i >= 0 {
		e.threads[i].reqs--
		if e.threads[i].reqs <= 0 {
			if e.threads[i].reqs < 0 {
				repairs = append(repairs, "binding counter underflow")
			}
			e.unbind(i)
		}
	} else {
		repairs = append(repairs, "completing worker not bound")
	}

	if e.idle() && len(e.threads) > 0 {
		repairs = append(repairs, "idle entry with bound workers")
		for len(e.threads) > 0 {
			e.unbind(len(e.threads) - 1)
		}
	}

	if s.table.removeIfIdle(e) {
		s.stats.removed++
	}
	s.stats.completes++
	s.stats.repairs += uint64(len(repairs))
	entries := s.table.len()
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ObserveComplete(kind)
		s.metrics.SetEntries(entries)
	}
	for _, reason := range repairs {
		s.violation(e.key, reason)
	}
}

// violation reports a consistency violation found while the lock was held.
func (s *Scheduler) violation(key Key, reason string) {
	if strictInvariants {
		panic(fmt.Sprintf("fha: %s on %s", reason, key))
	}
	if s.metrics != nil {
		s.metrics.ObserveRepair(reason)
	}
	logger.Warn("fha consistency violation repaired",
		logger.KeyHandle, key.String(),
		logger.KeyReason, reason)
}

// Tunables returns the current tunables.
func (s *Scheduler) Tunables() Tunables {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pol.tun
}

// SetTunables replaces the tunables. Entries already bound beyond a lowered
// MaxThreadsPerFile keep their workers until those requests complete.
func (s *Scheduler) SetTunables(t Tunables) error {
	_, err := s.UpdateTunables(func(cur *Tunables) { *cur = t })
	return err
}

// UpdateTunables applies fn to a copy of the current tunables and installs the
// result if it validates. fn runs with the scheduler lock held, so concurrent
// updates of different fields never overwrite each other. fn must not call
// back into the scheduler. The installed tunables are returned; on error the
// current ones are left unchanged and returned instead.
func (s *Scheduler) UpdateTunables(fn func(*Tunables)) (Tunables, error) {
	s.mu.Lock()
	old := s.pol.tun
	t := old
	fn(&t)
	if err := t.Validate(); err != nil {
		s.mu.Unlock()
		return old, err
	}
	s.pol.tun = t
	s.mu.Unlock()

	if old != t {
		logger.Info("fha tunables updated",
			"enabled", t.Enabled,
			"bin_shift", t.BinShift,
			"max_threads_per_file", t.MaxThreadsPerFile,
			"max_reqs_per_thread", t.MaxReqsPerThread,
			"max_entries", t.MaxEntries,
			"idle_scan_limit", t.IdleScanLimit)
	}
	return t, nil
}

// Len returns the number of tracked files.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table.len()
}

func (s *Scheduler) observeAssign(rule Rule, kind OpKind) {
	if s.metrics != nil {
		s.metrics.ObserveAssign(rule, kind)
	}
}
