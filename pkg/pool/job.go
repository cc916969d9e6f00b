package pool

import "context"

// Job is a single-shot synchronous unit of work tagged with the priority
// that determines which queue group and join counter it belongs to.
type Job struct {
	Fn       func()
	Priority Priority
}

// Future is whatever an AsyncJob's factory produces - the embedded async
// runtime simply awaits it to completion. Callers that need a result should
// close over a variable or channel from within Run.
type Future interface {
	Run(ctx context.Context) error
}

// FutureFunc adapts a plain function to the Future interface, analogous to
// http.HandlerFunc.
type FutureFunc func(ctx context.Context) error

func (f FutureFunc) Run(ctx context.Context) error { return f(ctx) }

// AsyncJob is a single-shot factory that produces a Future when invoked by
// the async runtime. The factory itself must be cheap; the work belongs in
// the returned Future.
type AsyncJob struct {
	Factory  func() Future
	Priority Priority
}
