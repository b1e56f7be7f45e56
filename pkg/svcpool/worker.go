package svcpool

import (
	"sync/atomic"
)

// Worker is one dispatch goroutine. It implements fha.Worker.
//
// InFlight counts calls queued on the worker's private queue plus the call it
// is executing. The scheduler reads it without synchronisation with the
// pool, so it is an advisory load figure.
type Worker struct {
	id    int
	queue chan *call

	inFlight   atomic.Int64
	lastOffset atomic.Uint64
	executed   atomic.Uint64
	received   atomic.Uint64
	forwarded  atomic.Uint64
}

func newWorker(id, queueSize int) *Worker {
	return &Worker{
		id:    id,
		queue: make(chan *call, queueSize),
	}
}

// ID returns the worker's index in the pool.
func (w *Worker) ID() int { return w.id }

// InFlight returns queued plus executing calls.
func (w *Worker) InFlight() int { return int(w.inFlight.Load()) }

// LastOffset returns the offset of the last read charged to the worker.
func (w *Worker) LastOffset() uint64 { return w.lastOffset.Load() }

// WorkerStats is a point-in-time view of one worker.
type WorkerStats struct {
	ID         int    `json:"id" yaml:"id"`
	InFlight   int    `json:"in_flight" yaml:"in_flight"`
	Queued     int    `json:"queued" yaml:"queued"`
	Executed   uint64 `json:"executed" yaml:"executed"`
	Received   uint64 `json:"received" yaml:"received"`
	Forwarded  uint64 `json:"forwarded" yaml:"forwarded"`
	LastOffset uint64 `json:"last_offset" yaml:"last_offset"`
}

func (w *Worker) stats() WorkerStats {
	return WorkerStats{
		ID:         w.id,
		InFlight:   w.InFlight(),
		Queued:     len(w.queue),
		Executed:   w.executed.Load(),
		Received:   w.received.Load(),
		Forwarded:  w.forwarded.Load(),
		LastOffset: w.LastOffset(),
	}
}
