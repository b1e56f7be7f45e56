package fha

// binding associates a worker with a file and counts the requests the worker
// holds against that file.
type binding struct {
	worker Worker
	reqs   int
}

// FileEntry is the per-file scheduling state. It is owned by the table and
// only touched with the scheduler lock held.
//
// The entry's state is implicit: no bindings and zero counts is idle, reads
// only is the (multi)reader state, and any outstanding write puts it in the
// write-funnel state where new work goes to threads[0].
type FileEntry struct {
	key       Key
	numReads  int
	numWrites int

	// threads is kept in binding order; threads[0] is the primary worker.
	threads []binding

	// removed is set once the table drops the entry so stale slots can be
	// recognised.
	removed bool
}

func newFileEntry(key Key, capHint int) *FileEntry {
	if capHint <= 0 || capHint > DefaultMaxThreadsPerFile*4 {
		capHint = DefaultMaxThreadsPerFile
	}
	return &FileEntry{
		key:     key,
		threads: make([]binding, 0, capHint),
	}
}

func (e *FileEntry) Key() Key { return e.key }

func (e *FileEntry) NumReads() int { return e.numReads }

func (e *FileEntry) NumWrites() int { return e.numWrites }

func (e *FileEntry) NumThreads() int { return len(e.threads) }

// idle reports whether no request is outstanding against the file.
func (e *FileEntry) idle() bool {
	return e.numReads+e.numWrites == 0
}

// indexOf returns the binding index of w, or -1.
func (e *FileEntry) indexOf(w Worker) int {
	for i := range e.threads {
		if e.threads[i].worker == w {
			return i
		}
	}
	return -1
}

// bind adds w at the tail unless it is already bound.
func (e *FileEntry) bind(w Worker) int {
	if i := e.indexOf(w); i >= 0 {
		return i
	}
	e.threads = append(e.threads, binding{worker: w})
	return len(e.threads) - 1
}

// unbind removes the binding at i, preserving order.
func (e *FileEntry) unbind(i int) {
	copy(e.threads[i:], e.threads[i+1:])
	e.threads[len(e.threads)-1] = binding{}
	e.threads = e.threads[:len(e.threads)-1]
}

// addOp charges one request of the given kind to the entry.
func (e *FileEntry) addOp(kind OpKind) {
	if kind == Write {
		e.numWrites++
	} else {
		e.numReads++
	}
}

// removeOp releases one request of the given kind. It returns false, and
// leaves the counter at zero, if the counter was already zero.
func (e *FileEntry) removeOp(kind OpKind) bool {
	c := &e.numReads
	if kind == Write {
		c = &e.numWrites
	}
	if *c <= 0 {
		*c = 0
		return false
	}
	*c--
	return true
}

// workerIDs lists bound worker ids in binding order.
func (e *FileEntry) workerIDs() []int {
	ids := make([]int, len(e.threads))
	for i := range e.threads {
		ids[i] = e.threads[i].worker.ID()
	}
	return ids
}
