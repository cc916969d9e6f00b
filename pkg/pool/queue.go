package pool

import "sync"

// frameQueueCapacity is the fixed capacity of the bounded video-frame ring.
// Fixed at construction time; never grows.
const frameQueueCapacity = 1024

// defaultQueues is the triple-priority, mutex-guarded deque set backing
// Immediate/Normal/Deferred submissions. Pop order is strict priority
// (Immediate > Normal > Deferred); within one sub-queue, FIFO.
type defaultQueues struct {
	mu        sync.Mutex
	cond      *sync.Cond
	immediate []Job
	normal    []Job
	deferred  []Job
}

func newDefaultQueues() *defaultQueues {
	q := &defaultQueues{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push enqueues j in the sub-queue matching its priority and wakes exactly
// one waiting worker.
func (q *defaultQueues) push(j Job) {
	q.mu.Lock()
	switch j.Priority {
	case Immediate:
		q.immediate = append(q.immediate, j)
	case Deferred:
		q.deferred = append(q.deferred, j)
	default:
		q.normal = append(q.normal, j)
	}
	q.mu.Unlock()
	q.cond.Signal()
}

// popLocked removes and returns the highest-priority queued job. Caller
// must hold q.mu.
func (q *defaultQueues) popLocked() (Job, bool) {
	if len(q.immediate) > 0 {
		j := q.immediate[0]
		q.immediate = q.immediate[1:]
		return j, true
	}
	if len(q.normal) > 0 {
		j := q.normal[0]
		q.normal = q.normal[1:]
		return j, true
	}
	if len(q.deferred) > 0 {
		j := q.deferred[0]
		q.deferred = q.deferred[1:]
		return j, true
	}
	return Job{}, false
}

// next blocks until a job is available or stopping reports true, in which
// case it returns (Job{}, false). Spurious wakeups are tolerated: the loop
// re-checks both conditions on every wakeup.
func (q *defaultQueues) next(stopping func() bool) (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if j, ok := q.popLocked(); ok {
			return j, true
		}
		if stopping() {
			return Job{}, false
		}
		q.cond.Wait()
	}
}

// wake broadcasts the condvar so every blocked worker re-checks the
// stopping flag - used by Reconfigure's stop-the-world phase.
func (q *defaultQueues) wake() {
	q.mu.Lock()
	q.cond.Broadcast()
	q.mu.Unlock()
}

// depths returns (immediate, normal, deferred) queue lengths for profile().
func (q *defaultQueues) depths() (int, int, int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.immediate), len(q.normal), len(q.deferred)
}

// backgroundQueue is a single, unbounded, mutex-guarded FIFO deque for
// Background-priority work.
type backgroundQueue struct {
	mu    sync.Mutex
	cond  *sync.Cond
	items []Job
}

func newBackgroundQueue() *backgroundQueue {
	q := &backgroundQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *backgroundQueue) push(j Job) {
	q.mu.Lock()
	q.items = append(q.items, j)
	q.mu.Unlock()
	q.cond.Signal()
}

func (q *backgroundQueue) next(stopping func() bool) (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if len(q.items) > 0 {
			j := q.items[0]
			q.items = q.items[1:]
			return j, true
		}
		if stopping() {
			return Job{}, false
		}
		q.cond.Wait()
	}
}

func (q *backgroundQueue) wake() {
	q.mu.Lock()
	q.cond.Broadcast()
	q.mu.Unlock()
}

func (q *backgroundQueue) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// frameQueue is the bounded lock-free ring dedicated to VideoFrame
// priority. It is implemented as a fixed-capacity buffered channel: Go's
// channel send/receive already gives us the non-blocking fast path
// (select/default) and the blocking slow path (plain receive) as two
// distinct code paths.
type frameQueue struct {
	ch      chan Job
	stopCh  chan struct{}
	stopped sync.Once
}

func newFrameQueue() *frameQueue {
	return &frameQueue{
		ch:     make(chan Job, frameQueueCapacity),
		stopCh: make(chan struct{}),
	}
}

// tryPush attempts a single non-blocking push. false means the ring is
// full and the caller must not count this submission as queued.
func (q *frameQueue) tryPush(j Job) bool {
	select {
	case q.ch <- j:
		return true
	default:
		return false
	}
}

// next is the worker-side pop: a non-blocking fast path followed by a
// blocking slow path that also observes the stop signal.
func (q *frameQueue) next() (Job, bool) {
	select {
	case j := <-q.ch:
		return j, true
	default:
	}

	select {
	case j := <-q.ch:
		return j, true
	case <-q.stopCh:
		return Job{}, false
	}
}

// wake unblocks every worker parked in next()'s slow path so they can
// observe the stop signal. Safe to call multiple times across
// reconfigurations because stopCh is recreated on restart.
func (q *frameQueue) wake() {
	q.stopped.Do(func() { close(q.stopCh) })
}

// reset replaces the stop signal ahead of a fresh batch of workers after a
// Reconfigure. Queued jobs in q.ch are preserved.
func (q *frameQueue) reset() {
	q.stopCh = make(chan struct{})
	q.stopped = sync.Once{}
}

func (q *frameQueue) depth() int {
	return len(q.ch)
}
