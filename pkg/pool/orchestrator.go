package pool

import (
	"context"
	"runtime"
)

// Orchestrator is the thin façade application code is meant to use: it owns
// a Pool and exposes the handful of operations callers actually need,
// without handing out the Pool's internals.
type Orchestrator struct {
	pool *Pool
}

// DefaultThreadCounts derives (default, frame, background, async) worker
// counts from detected parallelism the way a freshly started kernel does:
// default = p, frame = max(1, p/2), background = 1, async = clamp(p, 1, 4).
func DefaultThreadCounts() (defaultN, frameN, backgroundN, asyncN int) {
	p := runtime.GOMAXPROCS(0)
	defaultN = p
	frameN = p / 2
	if frameN < 1 {
		frameN = 1
	}
	backgroundN = 1
	asyncN = p
	if asyncN < 1 {
		asyncN = 1
	}
	if asyncN > 4 {
		asyncN = 4
	}
	return
}

// NewOrchestrator builds an Orchestrator around a freshly started Pool
// sized by DefaultThreadCounts.
func NewOrchestrator() *Orchestrator {
	d, f, b, a := DefaultThreadCounts()
	return &Orchestrator{pool: New(d, f, b, a)}
}

// NewOrchestratorWithCounts builds an Orchestrator with explicit thread
// counts, e.g. from loaded configuration.
func NewOrchestratorWithCounts(defaultN, frameN, backgroundN, asyncN int) *Orchestrator {
	return &Orchestrator{pool: New(defaultN, frameN, backgroundN, asyncN)}
}

// SubmitJob enqueues a synchronous closure at the given priority.
func (o *Orchestrator) SubmitJob(priority Priority, fn func()) error {
	return o.pool.Submit(Job{Fn: fn, Priority: priority})
}

// SubmitAsync enqueues an asynchronous factory at the given priority.
func (o *Orchestrator) SubmitAsync(priority Priority, factory func() Future) error {
	return o.pool.SubmitAsync(AsyncJob{Factory: factory, Priority: priority})
}

// JoinForeground blocks until every foreground-priority job submitted so
// far has completed.
func (o *Orchestrator) JoinForeground() { o.pool.JoinForeground() }

// JoinAll blocks until both foreground and background work have drained.
func (o *Orchestrator) JoinAll() { o.pool.JoinAll() }

// SetThreads reconfigures the pool's default/frame/background thread
// counts, preserving queued work.
func (o *Orchestrator) SetThreads(defaultN, frameN, backgroundN int) {
	o.pool.Reconfigure(defaultN, frameN, backgroundN)
}

// Profile returns a snapshot of queue depths and running thread counts.
func (o *Orchestrator) Profile() Profile { return o.pool.Profile() }

// SetObserver installs obs as the underlying pool's lifecycle observer.
func (o *Orchestrator) SetObserver(obs Observer) { o.pool.SetObserver(obs) }

// Shutdown stops every worker, including the async runtime. Terminal.
func (o *Orchestrator) Shutdown() { o.pool.Shutdown() }

var _ DynOrchestrator = (*Orchestrator)(nil)

// DynOrchestrator is the dynamic-dispatch façade used by callers that sit
// behind the plugin boundary and cannot or should not use Go generics -
// closures are already boxed by the Go runtime, so this interface mainly
// exists to give such callers a narrow, non-pointer-typed contract to
// depend on instead of *Orchestrator directly.
type DynOrchestrator interface {
	SubmitJob(priority Priority, fn func()) error
	SubmitAsync(priority Priority, factory func() Future) error
	JoinForeground()
	JoinAll()
	SetThreads(defaultN, frameN, backgroundN int)
	Profile() Profile
}

// FutureFromContext adapts a context-aware function into the Future used by
// SubmitAsync's factory, for callers that already have a ctx-shaped
// operation in hand.
func FutureFromContext(fn func(ctx context.Context) error) Future {
	return FutureFunc(fn)
}
