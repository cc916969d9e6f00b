package pool

import "errors"

// ErrRenderQueueFull is returned by Submit when a VideoFrame job is pushed
// onto a full bounded frame queue. The counter increment made before the
// push attempt is rolled back before this error is returned, so a
// concurrent JoinForeground never observes an inflated count for a job that
// never actually entered a queue.
var ErrRenderQueueFull = errors.New("pool: render queue full")
