package fha

import "sort"

// MaxSnapshotEntries caps the number of entries a Snapshot returns so that
// diagnostics never hold the scheduler lock for long.
const MaxSnapshotEntries = 1024

// EntrySnapshot is a point-in-time copy of one file entry.
type EntrySnapshot struct {
	Key     Key   `json:"key" yaml:"key"`
	Reads   int   `json:"reads" yaml:"reads"`
	Writes  int   `json:"writes" yaml:"writes"`
	Workers []int `json:"workers" yaml:"workers"`
}

// Threads is the number of workers bound to the file.
func (e EntrySnapshot) Threads() int { return len(e.Workers) }

// counters are cumulative scheduler statistics, guarded by the scheduler lock.
type counters struct {
	assigns     [numRules]uint64
	completes   uint64
	created     uint64
	removed     uint64
	insertRaces uint64
	tableFull   uint64
	repairs     uint64
}

// Stats is a copy of the scheduler's cumulative counters.
type Stats struct {
	Entries        int               `json:"entries" yaml:"entries"`
	Assigns        map[string]uint64 `json:"assigns" yaml:"assigns"`
	Completes      uint64            `json:"completes" yaml:"completes"`
	EntriesCreated uint64            `json:"entries_created" yaml:"entries_created"`
	EntriesRemoved uint64            `json:"entries_removed" yaml:"entries_removed"`
	InsertRaces    uint64            `json:"insert_races" yaml:"insert_races"`
	TableFull      uint64            `json:"table_full" yaml:"table_full"`
	Repairs        uint64            `json:"repairs" yaml:"repairs"`
}

// AssignsFor returns the number of decisions taken by rule r.
func (st Stats) AssignsFor(r Rule) uint64 {
	return st.Assigns[r.String()]
}

// Snapshot lists up to limit tracked entries, sorted by key. A limit of zero
// or more than MaxSnapshotEntries is clamped to MaxSnapshotEntries. The second
// return value is the total number of entries in the table.
func (s *Scheduler) Snapshot(limit int) ([]EntrySnapshot, int) {
	if limit <= 0 || limit > MaxSnapshotEntries {
		limit = MaxSnapshotEntries
	}

	s.mu.Lock()
	total := s.table.len()
	if total < limit {
		limit = total
	}
	out := make([]EntrySnapshot, 0, limit)
	s.table.each(func(e *FileEntry) bool {
		if len(out) >= limit {
			return false
		}
		out = append(out, EntrySnapshot{
			Key:     e.key,
			Reads:   e.numReads,
			Writes:  e.numWrites,
			Workers: e.workerIDs(),
		})
		return true
	})
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, total
}

// Stats returns the cumulative counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	c := s.stats
	entries := s.table.len()
	s.mu.Unlock()

	st := Stats{
		Entries:        entries,
		Assigns:        make(map[string]uint64, numRules),
		Completes:      c.completes,
		EntriesCreated: c.created,
		EntriesRemoved: c.removed,
		InsertRaces:    c.insertRaces,
		TableFull:      c.tableFull,
		Repairs:        c.repairs,
	}
	for r := Rule(0); r < numRules; r++ {
		st.Assigns[r.String()] = c.assigns[r]
	}
	return st
}

// Lookup returns a snapshot of the entry for key, if tracked.
func (s *Scheduler) Lookup(key Key) (EntrySnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.table.lookup(key)
	if e == nil {
		return EntrySnapshot{}, false
	}
	return EntrySnapshot{
		Key:     e.key,
		Reads:   e.numReads,
		Writes:  e.numWrites,
		Workers: e.workerIDs(),
	}, true
}
