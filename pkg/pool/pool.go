package pool

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/shuntia/lunaris/pkg/logger"
)

var poolLog = logger.Get("Pool")

// Pool is the tiered worker pool: three worker goroutine groups (default,
// frame, background) plus a fixed-size goroutine runtime for AsyncJob, two global
// counters tracking submitted-but-incomplete work, and a single condvar
// broadcast whenever either counter reaches zero.
//
// The zero value is not usable; construct with New.
type Pool struct {
	defaultQ *defaultQueues
	frameQ   *frameQueue
	bgQ      *backgroundQueue

	foreground atomic.Int64
	background atomic.Int64

	zeroMu   sync.Mutex
	zeroCond *sync.Cond

	// stopping gates the default/frame/background worker groups during a
	// Reconfigure's stop-the-world phase. asyncStopping is separate because
	// Reconfigure never touches the async runtime's size.
	stopping      atomic.Bool
	asyncStopping atomic.Bool

	defaultWG sync.WaitGroup
	frameWG   sync.WaitGroup
	bgWG      sync.WaitGroup

	// reconfigureMu serializes Reconfigure calls and protects the thread
	// count fields below it from concurrent readers in Profile.
	reconfigureMu sync.Mutex
	defaultN      int
	frameN        int
	bgN           int

	asyncQ  *asyncQueue
	asyncWG sync.WaitGroup
	asyncN  int

	observer Observer
}

// Observer receives lifecycle notifications from a Pool without the pool
// package depending on anything app-specific. internal/kernel wires an
// Observer that forwards to the process-wide event bus; nil fields are
// simply not called.
type Observer struct {
	OnReconfigure     func(defaultN, frameN, backgroundN int)
	OnWorkerPanic     func(priority string, recovered any)
	OnRenderQueueFull func()
}

func (p *Pool) notifyReconfigure(d, f, b int) {
	if p.observer.OnReconfigure != nil {
		p.observer.OnReconfigure(d, f, b)
	}
}

func (p *Pool) notifyWorkerPanic(priority string, recovered any) {
	if p.observer.OnWorkerPanic != nil {
		p.observer.OnWorkerPanic(priority, recovered)
	}
}

func (p *Pool) notifyRenderQueueFull() {
	if p.observer.OnRenderQueueFull != nil {
		p.observer.OnRenderQueueFull()
	}
}

// SetObserver installs obs as the pool's lifecycle observer, replacing any
// previously installed one.
func (p *Pool) SetObserver(obs Observer) { p.observer = obs }

// New constructs and starts a Pool with the given thread counts. asyncN is
// the fixed size of the embedded async runtime and is not touched by
// Reconfigure.
func New(defaultN, frameN, bgN, asyncN int) *Pool {
	p := &Pool{
		defaultQ: newDefaultQueues(),
		frameQ:   newFrameQueue(),
		bgQ:      newBackgroundQueue(),
		asyncQ:   newAsyncQueue(),
	}
	p.zeroCond = sync.NewCond(&p.zeroMu)

	d, f, b := normalizeThreeCounts(defaultN, frameN, bgN)
	p.defaultN, p.frameN, p.bgN = d, f, b
	p.asyncN = max(1, asyncN)

	p.spawnDefault(p.defaultN)
	p.spawnFrame(p.frameN)
	p.spawnBackground(p.bgN)
	p.spawnAsync(p.asyncN)

	return p
}

// normalizeThreeCounts applies the "(0,0,0) means (1,1,1)" rule and floors
// every individual count at 1 - a pool with zero workers in a group can
// never drain it, which would make Submit succeed but JoinForeground hang
// forever.
func normalizeThreeCounts(d, f, b int) (int, int, int) {
	if d <= 0 && f <= 0 && b <= 0 {
		return 1, 1, 1
	}
	return max(1, d), max(1, f), max(1, b)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func (p *Pool) isStopping() bool      { return p.stopping.Load() }
func (p *Pool) isAsyncStopping() bool { return p.asyncStopping.Load() }

// Submit enqueues a synchronous job. It never blocks. The only failure mode
// is ErrRenderQueueFull for a VideoFrame submission against a full frame
// ring.
func (p *Pool) Submit(j Job) error {
	p.incr(j.Priority)

	if j.Priority == VideoFrame {
		if !p.frameQ.tryPush(j) {
			p.decr(j.Priority)
			p.notifyRenderQueueFull()
			return ErrRenderQueueFull
		}
		return nil
	}

	if j.Priority == Background {
		p.bgQ.push(j)
		return nil
	}

	p.defaultQ.push(j)
	return nil
}

// SubmitAsync hands an AsyncJob to the embedded async runtime. The counter
// discipline is identical to Submit; the runtime invokes the factory and
// awaits the resulting Future, decrementing on completion.
func (p *Pool) SubmitAsync(j AsyncJob) error {
	p.incr(j.Priority)
	p.asyncQ.push(j)
	return nil
}

func (p *Pool) incr(pr Priority) {
	if pr.isForeground() {
		p.foreground.Add(1)
	} else {
		p.background.Add(1)
	}
}

// decr fires the zero-transition notification exactly when the
// pre-decrement value was 1, i.e. when the post-decrement value is 0.
func (p *Pool) decr(pr Priority) {
	var newVal int64
	if pr.isForeground() {
		newVal = p.foreground.Add(-1)
	} else {
		newVal = p.background.Add(-1)
	}
	if newVal == 0 {
		p.zeroMu.Lock()
		p.zeroCond.Broadcast()
		p.zeroMu.Unlock()
	}
}

// JoinForeground blocks until every Immediate/Normal/Deferred/VideoFrame
// job submitted before this call has completed. Background work is
// excluded. Returns immediately if nothing is in flight.
func (p *Pool) JoinForeground() {
	p.zeroMu.Lock()
	for p.foreground.Load() != 0 {
		p.zeroCond.Wait()
	}
	p.zeroMu.Unlock()
}

// JoinAll blocks until both the foreground and background counters read
// zero. Discouraged outside shutdown.
func (p *Pool) JoinAll() {
	p.zeroMu.Lock()
	for p.foreground.Load() != 0 || p.background.Load() != 0 {
		p.zeroCond.Wait()
	}
	p.zeroMu.Unlock()
}

// Profile is a point-in-time snapshot of queue depths and the running
// thread count.
type Profile struct {
	Immediate    uint64 `json:"immediate"`
	Normal       uint64 `json:"normal"`
	Deferred     uint64 `json:"deferred"`
	Frame        uint64 `json:"frame"`
	RunningTasks uint64 `json:"running_tasks"`
}

// Profile takes a brief lock on the default queue (and the reconfigure
// lock, to read thread counts consistently) and returns a snapshot.
func (p *Pool) Profile() Profile {
	imm, nor, def := p.defaultQ.depths()

	p.reconfigureMu.Lock()
	running := uint64(p.defaultN + p.frameN + p.bgN + p.asyncN)
	p.reconfigureMu.Unlock()

	return Profile{
		Immediate:    uint64(imm),
		Normal:       uint64(nor),
		Deferred:     uint64(def),
		Frame:        uint64(p.frameQ.depth()),
		RunningTasks: running,
	}
}

// Reconfigure stops every default/frame/background worker, joins their
// threads, and respawns the groups with new counts. Default and background
// workers exit only once their queue is empty, so jobs already queued there
// are run by the outgoing workers before the respawn; queued frame jobs stay
// in the ring for the new frame workers. No queued job is dropped. The async
// runtime's size is not affected.
func (p *Pool) Reconfigure(defaultN, frameN, bgN int) {
	p.reconfigureMu.Lock()
	defer p.reconfigureMu.Unlock()

	d, f, b := normalizeThreeCounts(defaultN, frameN, bgN)

	p.stopping.Store(true)
	p.defaultQ.wake()
	p.bgQ.wake()
	p.frameQ.wake()

	p.defaultWG.Wait()
	p.frameWG.Wait()
	p.bgWG.Wait()

	p.stopping.Store(false)
	p.frameQ.reset()

	p.defaultN, p.frameN, p.bgN = d, f, b
	p.spawnDefault(d)
	p.spawnFrame(f)
	p.spawnBackground(b)

	poolLog.Infof("Pool reconfigured: default=%d frame=%d background=%d\n", d, f, b)
	p.notifyReconfigure(d, f, b)
}

// Shutdown stops every worker, including the async runtime, and waits for
// them all to exit. Unlike Reconfigure, it is terminal: the Pool must not be
// used afterward.
func (p *Pool) Shutdown() {
	p.stopping.Store(true)
	p.asyncStopping.Store(true)
	p.defaultQ.wake()
	p.bgQ.wake()
	p.frameQ.wake()
	p.asyncQ.wake()

	p.defaultWG.Wait()
	p.frameWG.Wait()
	p.bgWG.Wait()
	p.asyncWG.Wait()
}

func (p *Pool) spawnDefault(n int) {
	for i := 0; i < n; i++ {
		p.defaultWG.Add(1)
		go p.runDefaultWorker()
	}
}

func (p *Pool) spawnFrame(n int) {
	for i := 0; i < n; i++ {
		p.frameWG.Add(1)
		go p.runFrameWorker()
	}
}

func (p *Pool) spawnBackground(n int) {
	for i := 0; i < n; i++ {
		p.bgWG.Add(1)
		go p.runBackgroundWorker()
	}
}

func (p *Pool) spawnAsync(n int) {
	for i := 0; i < n; i++ {
		p.asyncWG.Add(1)
		go p.runAsyncWorker()
	}
}

func (p *Pool) runDefaultWorker() {
	defer p.defaultWG.Done()
	for {
		j, ok := p.defaultQ.next(p.isStopping)
		if !ok {
			return
		}
		if !p.execRecover(j) {
			return
		}
	}
}

func (p *Pool) runBackgroundWorker() {
	defer p.bgWG.Done()
	for {
		j, ok := p.bgQ.next(p.isStopping)
		if !ok {
			return
		}
		if !p.execRecover(j) {
			return
		}
	}
}

func (p *Pool) runFrameWorker() {
	defer p.frameWG.Done()
	for {
		if p.isStopping() {
			return
		}
		j, ok := p.frameQ.next()
		if !ok {
			return
		}
		if !p.execRecover(j) {
			return
		}
	}
}

// execRecover runs j.Fn, recovering a panic so it terminates only this
// worker rather than the process. A panicking worker is not replaced:
// execRecover returns false to tell the caller's loop to exit instead of
// looping back for more work.
func (p *Pool) execRecover(j Job) (ok bool) {
	ok = true
	defer func() {
		if r := recover(); r != nil {
			ok = false
			poolLog.Errorf("worker panic running %s job: %v\n", j.Priority, r)
			p.notifyWorkerPanic(j.Priority.String(), r)
		}
		p.decr(j.Priority)
	}()
	j.Fn()
	return
}

func (p *Pool) runAsyncWorker() {
	defer p.asyncWG.Done()
	ctx := context.Background()
	for {
		j, ok := p.asyncQ.next(p.isAsyncStopping)
		if !ok {
			return
		}
		p.execAsyncRecover(ctx, j)
	}
}

func (p *Pool) execAsyncRecover(ctx context.Context, j AsyncJob) {
	defer func() {
		if r := recover(); r != nil {
			poolLog.Errorf("async worker panic running %s job: %v\n", j.Priority, r)
			p.notifyWorkerPanic(j.Priority.String(), r)
		}
		p.decr(j.Priority)
	}()
	fut := j.Factory()
	if fut == nil {
		return
	}
	if err := fut.Run(ctx); err != nil {
		poolLog.Warnf("async %s job returned error: %v\n", j.Priority, err)
	}
}
