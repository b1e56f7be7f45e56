// Package svcpool is the dispatch loop that sits between an RPC transport and
// the NFS procedure handlers.
//
// Calls enter through one shared ingress queue. Whichever worker pulls a call
// asks the file-handle affinity scheduler where it belongs and either runs it
// or forwards it to the chosen worker's private queue. Workers always drain
// their private queue before taking new work from the shared one.
package svcpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/fhasched/internal/adapter/nfs/fhinfo"
	"github.com/marmos91/fhasched/internal/logger"
	"github.com/marmos91/fhasched/internal/telemetry"
	"github.com/marmos91/fhasched/pkg/fha"
	"github.com/marmos91/fhasched/pkg/metrics"
)

var (
	ErrStopped     = errors.New("svcpool: pool stopped")
	ErrNilHandler  = errors.New("svcpool: nil handler")
	ErrStopTimeout = errors.New("svcpool: stop timed out with calls pending")
)

// Handler executes one call on the worker the scheduler picked.
type Handler func(ctx context.Context, req *Request) error

// Request is a call as seen by the handler.
type Request struct {
	ID        string
	Proc      uint32
	Procedure string
	Args      []byte

	// Descriptor is valid when HasDescriptor is set (every procedure but
	// NULL with decodable arguments).
	Descriptor    fha.Descriptor
	HasDescriptor bool

	// Receiver pulled the call from the shared queue; Worker executes it.
	Receiver int
	Worker   int
}

// Result reports how a call was dispatched and how it ended.
type Result struct {
	ID        string
	Receiver  int
	Worker    int
	Forwarded bool
	// Rule is the scheduling rule name, empty when the call was not scheduled.
	Rule     string
	Duration time.Duration
	Err      error
}

type call struct {
	ctx       context.Context
	req       Request
	slot      fha.Slot
	rule      string
	forwarded bool
	done      chan Result
}

// Pool is a fixed set of workers sharing one affinity scheduler. It
// implements fha.Pool.
type Pool struct {
	handler Handler
	sched   *fha.Scheduler
	workers []*Worker
	ingress chan *call

	metrics      metrics.PoolMetrics
	schedMetrics fha.Metrics

	mu        sync.RWMutex
	started   bool
	stopped   bool
	calls     sync.WaitGroup
	wg        sync.WaitGroup
	quit      chan struct{}
	stoppedCh chan struct{}

	submitted atomic.Uint64
	completed atomic.Uint64
	forwarded atomic.Uint64
}

// Option configures a Pool.
type Option func(*Pool)

// WithMetrics attaches pool metrics. nil disables them.
func WithMetrics(m metrics.PoolMetrics) Option {
	return func(p *Pool) { p.metrics = m }
}

// WithSchedulerMetrics attaches scheduler metrics. nil disables them.
func WithSchedulerMetrics(m fha.Metrics) Option {
	return func(p *Pool) { p.schedMetrics = m }
}

// New creates a pool. Call Start to launch the workers.
func New(cfg Config, handler Handler, opts ...Option) (*Pool, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	p := &Pool{
		handler:   handler,
		workers:   make([]*Worker, cfg.Workers),
		ingress:   make(chan *call, cfg.QueueSize),
		quit:      make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
	for i := range p.workers {
		p.workers[i] = newWorker(i, cfg.WorkerQueueSize)
	}
	for _, opt := range opts {
		opt(p)
	}

	var schedOpts []fha.Option
	if p.schedMetrics != nil {
		schedOpts = append(schedOpts, fha.WithMetrics(p.schedMetrics))
	}
	sched, err := fha.New(p, cfg.Scheduler, schedOpts...)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	p.sched = sched
	return p, nil
}

// NumWorkers implements fha.Pool.
func (p *Pool) NumWorkers() int { return len(p.workers) }

// Worker implements fha.Pool.
func (p *Pool) Worker(i int) fha.Worker {
	if i < 0 || i >= len(p.workers) {
		return nil
	}
	return p.workers[i]
}

// Scheduler returns the pool's affinity scheduler.
func (p *Pool) Scheduler() *fha.Scheduler { return p.sched }

// Running reports whether the pool has been started and not yet stopped.
func (p *Pool) Running() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.started && !p.stopped
}

// Start launches the workers. It is a no-op if the pool is already running.
func (p *Pool) Start() {
	p.mu.Lock()
	if p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	logger.Info("Starting service pool", logger.KeyWorkers, len(p.workers))

	for _, w := range p.workers {
		p.wg.Add(1)
		go p.run(w)
	}

	go func() {
		p.wg.Wait()
		close(p.stoppedCh)
	}()
}

// Stop refuses new calls, waits for accepted ones to finish and then stops
// the workers. It returns ErrStopTimeout if that takes longer than timeout;
// the workers keep draining in the background. Calls queued on a pool that
// was never started complete with ErrStopped.
func (p *Pool) Stop(timeout time.Duration) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	started := p.started
	p.mu.Unlock()

	if !started {
		p.drain()
		return nil
	}

	logger.Info("Stopping service pool", logger.KeyQueue, len(p.ingress))

	go func() {
		p.calls.Wait()
		close(p.quit)
	}()

	select {
	case <-p.stoppedCh:
		logger.Info("Service pool stopped gracefully")
		return nil
	case <-time.After(timeout):
		logger.Warn("Service pool stop timed out", logger.KeyQueue, len(p.ingress))
		return ErrStopTimeout
	}
}

// drain fails every call queued on a pool that never started. It returns once
// no Submit is left in flight.
func (p *Pool) drain() {
	idle := make(chan struct{})
	go func() {
		p.calls.Wait()
		close(idle)
	}()

	n := 0
	for {
		select {
		case c := <-p.ingress:
			p.fail(c, ErrStopped)
			n++
		case <-idle:
			if n > 0 {
				logger.Info("Service pool stopped before start", "failed_calls", n)
			}
			return
		}
	}
}

// fail completes a call that never reached a worker.
func (p *Pool) fail(c *call, err error) {
	p.reject("stopped")
	c.done <- Result{
		ID:       c.req.ID,
		Receiver: -1,
		Worker:   -1,
		Err:      err,
	}
	p.calls.Done()
}

// Submit queues a call on the shared ingress queue and returns a channel that
// receives exactly one Result. It blocks while the queue is full, until ctx
// is done.
func (p *Pool) Submit(ctx context.Context, proc uint32, args []byte) (<-chan Result, error) {
	p.mu.RLock()
	if p.stopped {
		p.mu.RUnlock()
		p.reject("stopped")
		return nil, ErrStopped
	}
	p.calls.Add(1)
	p.mu.RUnlock()

	c := &call{
		ctx: ctx,
		req: Request{
			ID:        uuid.NewString(),
			Proc:      proc,
			Procedure: fhinfo.ProcName(proc),
			Args:      args,
			Receiver:  -1,
			Worker:    -1,
		},
		done: make(chan Result, 1),
	}

	select {
	case p.ingress <- c:
		p.submitted.Add(1)
		if p.metrics != nil {
			p.metrics.SetQueueDepth(len(p.ingress))
		}
		return c.done, nil
	case <-ctx.Done():
		p.calls.Done()
		p.reject("canceled")
		return nil, ctx.Err()
	}
}

// Do submits a call and waits for its result.
func (p *Pool) Do(ctx context.Context, proc uint32, args []byte) (Result, error) {
	done, err := p.Submit(ctx, proc, args)
	if err != nil {
		return Result{}, err
	}
	select {
	case res := <-done:
		return res, res.Err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (p *Pool) reject(reason string) {
	if p.metrics != nil {
		p.metrics.RecordRejected(reason)
	}
}

// run is the worker loop. Forwarded calls take priority over new ones.
func (p *Pool) run(w *Worker) {
	defer p.wg.Done()

	logger.Debug("Service pool worker started", logger.KeyWorker, w.id)

	for {
		select {
		case c := <-w.queue:
			p.execute(w, c)
			continue
		default:
		}

		select {
		case c := <-w.queue:
			p.execute(w, c)
		case c := <-p.ingress:
			p.dispatch(w, c)
		case <-p.quit:
			logger.Debug("Service pool worker stopped", logger.KeyWorker, w.id)
			return
		}
	}
}

// dispatch decides where a call pulled from the shared queue runs.
func (p *Pool) dispatch(w *Worker, c *call) {
	w.received.Add(1)
	c.req.Receiver = w.id
	if p.metrics != nil {
		p.metrics.SetQueueDepth(len(p.ingress))
	}

	target := w
	info, ok, err := fhinfo.Extract(c.req.Proc, c.req.Args)
	switch {
	case err != nil:
		logger.Debug("Undecodable call arguments, running on receiver",
			logger.KeyRequestID, c.req.ID,
			logger.KeyProcedure, c.req.Procedure,
			logger.KeyError, err)
	case ok:
		c.req.Descriptor, c.req.HasDescriptor = info.Descriptor, true
		chosen, err := p.sched.Assign(info.Descriptor, w, &c.slot)
		if err != nil {
			logger.Debug("Affinity scheduling failed, running on receiver",
				logger.KeyRequestID, c.req.ID,
				logger.KeyError, err)
		}
		if cw, isPoolWorker := chosen.(*Worker); isPoolWorker {
			target = cw
		}
		if c.slot.Bound() {
			c.rule = c.slot.Rule().String()
		}
	}

	prev := p.charge(target, c)

	if target != w {
		select {
		case target.queue <- c:
			c.forwarded = true
			w.forwarded.Add(1)
			p.forwarded.Add(1)
			if p.metrics != nil {
				p.metrics.RecordDispatch(c.req.Procedure, true)
			}
			return
		default:
			// The scheduler's bookkeeping stays with target; only the
			// execution moves.
			logger.Debug("Worker queue full, running on receiver",
				logger.KeyRequestID, c.req.ID,
				logger.KeyWorker, target.id)
			p.uncharge(target, c, prev)
			p.charge(w, c)
		}
	}

	if p.metrics != nil {
		p.metrics.RecordDispatch(c.req.Procedure, false)
	}
	p.execute(w, c)
}

// charge accounts a call to the worker that will run it. It returns the
// worker's previous last offset for uncharge.
func (p *Pool) charge(w *Worker, c *call) uint64 {
	n := w.inFlight.Add(1)
	var prev uint64
	if chargesOffset(c) {
		prev = w.lastOffset.Swap(c.req.Descriptor.Offset)
	} else {
		prev = w.lastOffset.Load()
	}
	if p.metrics != nil {
		p.metrics.SetWorkerInFlight(w.id, int(n))
	}
	return prev
}

// uncharge reverts charge when a forward fails. The last offset is only put
// back if no other call has moved it since.
func (p *Pool) uncharge(w *Worker, c *call, prev uint64) {
	n := w.inFlight.Add(-1)
	if chargesOffset(c) {
		w.lastOffset.CompareAndSwap(c.req.Descriptor.Offset, prev)
	}
	if p.metrics != nil {
		p.metrics.SetWorkerInFlight(w.id, int(n))
	}
}

func chargesOffset(c *call) bool {
	return c.req.HasDescriptor && c.req.Descriptor.Kind == fha.Read
}

// execute runs the handler and releases the scheduler slot.
func (p *Pool) execute(w *Worker, c *call) {
	c.req.Worker = w.id

	ctx, span := telemetry.StartCallSpan(c.ctx, c.req.ID, c.req.Procedure,
		telemetry.Worker(w.id),
		telemetry.Receiver(c.req.Receiver),
		telemetry.Forwarded(c.forwarded))
	if c.req.HasDescriptor {
		span.SetAttributes(
			telemetry.Handle(c.req.Descriptor.Key.String()),
			telemetry.Op(c.req.Descriptor.Kind.String()),
			telemetry.Offset(c.req.Descriptor.Offset))
	}
	if c.rule != "" {
		span.SetAttributes(telemetry.Rule(c.rule))
	}

	lc := logger.NewLogContext(c.req.ID, c.req.Procedure).
		WithWorker(w.id).
		WithTrace(telemetry.TraceID(ctx), telemetry.SpanID(ctx))
	ctx = logger.WithContext(ctx, lc)

	start := time.Now()
	err := p.invoke(ctx, &c.req)
	dur := time.Since(start)

	telemetry.RecordError(ctx, err)
	span.End()

	p.sched.Complete(&c.slot)
	n := w.inFlight.Add(-1)
	w.executed.Add(1)
	p.completed.Add(1)

	if p.metrics != nil {
		p.metrics.RecordCall(c.req.Procedure, dur, err)
		p.metrics.SetWorkerInFlight(w.id, int(n))
	}
	if err != nil {
		logger.DebugCtx(ctx, "Call failed", logger.KeyError, err)
	}

	c.done <- Result{
		ID:        c.req.ID,
		Receiver:  c.req.Receiver,
		Worker:    w.id,
		Forwarded: c.forwarded,
		Rule:      c.rule,
		Duration:  dur,
		Err:       err,
	}
	p.calls.Done()
}

// invoke runs the handler, turning a panic into an error so the call's
// bookkeeping is still released.
func (p *Pool) invoke(ctx context.Context, req *Request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCtx(ctx, "Call handler panicked", "panic", r)
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return p.handler(ctx, req)
}

// PoolStats is a point-in-time view of the pool.
type PoolStats struct {
	QueueDepth int           `json:"queue_depth" yaml:"queue_depth"`
	Submitted  uint64        `json:"submitted" yaml:"submitted"`
	Completed  uint64        `json:"completed" yaml:"completed"`
	Forwarded  uint64        `json:"forwarded" yaml:"forwarded"`
	Workers    []WorkerStats `json:"workers" yaml:"workers"`
}

// Stats returns the pool counters and per-worker load.
func (p *Pool) Stats() PoolStats {
	st := PoolStats{
		QueueDepth: len(p.ingress),
		Submitted:  p.submitted.Load(),
		Completed:  p.completed.Load(),
		Forwarded:  p.forwarded.Load(),
		Workers:    make([]WorkerStats, len(p.workers)),
	}
	for i, w := range p.workers {
		st.Workers[i] = w.stats()
	}
	return st
}
