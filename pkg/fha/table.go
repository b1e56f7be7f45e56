package fha

// table maps keys to file entries. It has no locking of its own; every method
// runs under the scheduler lock.
//
// Entries are stored by pointer so a *FileEntry stays valid across map growth
// for as long as the caller holds it.
type table struct {
	entries map[Key]*FileEntry
}

func newTable() *table {
	return &table{entries: make(map[Key]*FileEntry)}
}

func (t *table) len() int { return len(t.entries) }

func (t *table) lookup(key Key) *FileEntry {
	return t.entries[key]
}

// insertIfAbsent stores fresh unless an entry for the same key appeared in the
// meantime, in which case the existing entry wins. limit bounds the table size
// (0 for unlimited); ErrTableFull is returned when fresh cannot be stored.
func (t *table) insertIfAbsent(fresh *FileEntry, limit int) (*FileEntry, bool, error) {
	if cur, ok := t.entries[fresh.key]; ok {
		return cur, false, nil
	}
	if limit > 0 && len(t.entries) >= limit {
		return nil, false, ErrTableFull
	}
	t.entries[fresh.key] = fresh
	return fresh, true, nil
}

// removeIfIdle drops e when no request is outstanding against it. It only
// removes e itself, never a different entry that reused its key.
func (t *table) removeIfIdle(e *FileEntry) bool {
	if !e.idle() || e.removed {
		return false
	}
	if cur, ok := t.entries[e.key]; ok && cur == e {
		delete(t.entries, e.key)
	}
	e.removed = true
	return true
}

// each visits entries in unspecified order until fn returns false.
func (t *table) each(fn func(*FileEntry) bool) {
	for _, e := range t.entries {
		if !fn(e) {
			return
		}
	}
}
