package metrics

import "time"

// PoolMetrics provides observability for the service pool dispatch loop.
//
// Pass nil to disable collection.
type PoolMetrics interface {
	// RecordDispatch records whether a call ran on the worker that received
	// it or was forwarded to another one.
	RecordDispatch(procedure string, forwarded bool)

	// RecordCall records a finished call and how long it spent in its handler.
	RecordCall(procedure string, duration time.Duration, err error)

	// RecordRejected records a call refused because the pool was stopped or
	// its queue was full.
	RecordRejected(reason string)

	// SetQueueDepth reports the number of calls waiting in the shared queue.
	SetQueueDepth(n int)

	// SetWorkerInFlight reports a worker's queued plus executing calls.
	SetWorkerInFlight(worker int, n int)
}
