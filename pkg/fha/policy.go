package fha

// policy is the affinity decision function. It reads entry and worker state
// but mutates neither; the only state it keeps is the rotating start of the
// bounded idle scan.
type policy struct {
	tun  Tunables
	pool Pool

	// scanStart rotates the bounded idle scan across the pool so that the
	// first workers are not always preferred.
	scanStart int
}

// choose returns the worker that should run a request described by d against
// entry e, and the rule that selected it. self is the worker making the
// decision. The caller binds the returned worker and charges the request.
func (p *policy) choose(e *FileEntry, d Descriptor, self Worker) (Worker, Rule) {
	// Outstanding writes serialize everything on the primary worker.
	if e.numWrites > 0 && len(e.threads) > 0 {
		return e.threads[0].worker, RuleWriteFunnel
	}

	if d.Kind == Read {
		want := p.tun.bin(d.Offset)
		for i := range e.threads {
			w := e.threads[i].worker
			if p.tun.bin(w.LastOffset()) != want {
				continue
			}
			if p.tun.overloaded(w.InFlight()) {
				continue
			}
			return w, RuleLocality
		}
	}

	if !p.tun.threadsFull(len(e.threads)) {
		if self.InFlight() == 0 {
			return self, RuleGrowth
		}
		if w := p.idleWorker(self); w != nil {
			return w, RuleGrowth
		}
		return self, RuleGrowth
	}

	return leastLoaded(e), RuleOverflow
}

// idleWorker looks for a pool worker other than self with nothing in flight.
func (p *policy) idleWorker(self Worker) Worker {
	if p.pool == nil {
		return nil
	}
	n := p.pool.NumWorkers()
	if n == 0 {
		return nil
	}

	start, limit := 0, n
	if p.tun.IdleScanLimit > 0 && p.tun.IdleScanLimit < n {
		limit = p.tun.IdleScanLimit
		start = p.scanStart % n
		p.scanStart = (start + limit) % n
	}

	for i := 0; i < limit; i++ {
		w := p.pool.Worker((start + i) % n)
		if w == nil || w == self {
			continue
		}
		if w.InFlight() == 0 {
			return w
		}
	}
	return nil
}

// leastLoaded returns the bound worker with the fewest in-flight requests;
// the first one wins ties.
func leastLoaded(e *FileEntry) Worker {
	best := e.threads[0].worker
	bestLoad := best.InFlight()
	for i := 1; i < len(e.threads); i++ {
		w := e.threads[i].worker
		if load := w.InFlight(); load < bestLoad {
			best, bestLoad = w, load
		}
	}
	return best
}
