// Package pool implements Lunaris's tiered, priority-aware worker pool: the
// substrate every plugin and internal service uses to schedule compute and
// render work without blocking the caller.
package pool

// Priority tags a unit of work with the queue group and join counter it
// belongs to. The zero value is Immediate.
type Priority int

const (
	// Immediate work is served ahead of Normal and Deferred within the
	// default queue group. Used sparingly - a flood of Immediate work
	// degrades to FIFO against itself.
	Immediate Priority = iota

	// Normal is the default priority for interactive/foreground work.
	Normal

	// Deferred runs after Immediate and Normal have drained.
	Deferred

	// VideoFrame routes to the bounded frame queue. Submission fails with
	// ErrRenderQueueFull instead of blocking or growing unboundedly.
	VideoFrame

	// Background work does not count toward the foreground join barrier;
	// JoinForeground returns without waiting for it.
	Background
)

func (p Priority) String() string {
	switch p {
	case Immediate:
		return "immediate"
	case Normal:
		return "normal"
	case Deferred:
		return "deferred"
	case VideoFrame:
		return "video-frame"
	case Background:
		return "background"
	default:
		return "unknown"
	}
}

// isForeground reports whether a completed/submitted job of this priority
// should be tracked against the foreground counter (everything except
// Background).
func (p Priority) isForeground() bool {
	return p != Background
}
