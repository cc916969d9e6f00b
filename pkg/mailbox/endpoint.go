package mailbox

// Listener observes every envelope delivered to an Endpoint, in addition to
// whatever the endpoint's own Deliver does with it, so traffic can be
// mirrored without participating in delivery itself.
type Listener func(Envelope)

// Endpoint is anything that can accept a delivered Envelope. register takes
// ownership of whichever Endpoint implementation a plugin or internal
// service constructs.
type Endpoint interface {
	Deliver(Envelope) error
	AddListener(Listener)
	listeners() []Listener
}

type baseEndpoint struct {
	listenerList []Listener
}

func (b *baseEndpoint) AddListener(l Listener) { b.listenerList = append(b.listenerList, l) }
func (b *baseEndpoint) listeners() []Listener  { return b.listenerList }

func (b *baseEndpoint) notify(env Envelope) {
	for _, l := range b.listenerList {
		l(env)
	}
}

// FuncEndpoint wraps a plain function as an Endpoint - the most common case
// for in-process plugins that want synchronous delivery without owning a
// channel themselves.
type FuncEndpoint struct {
	baseEndpoint
	Fn func(Envelope) error
}

// NewFuncEndpoint builds a FuncEndpoint around fn.
func NewFuncEndpoint(fn func(Envelope) error) *FuncEndpoint {
	return &FuncEndpoint{Fn: fn}
}

func (e *FuncEndpoint) Deliver(env Envelope) error {
	e.notify(env)
	if e.Fn == nil {
		return nil
	}
	return e.Fn(env)
}

// ChannelEndpoint delivers into a buffered channel the owner drains at its
// own pace. Deliver is non-blocking: a full channel yields
// PluginFailedMessage rather than stalling the sender, mirroring the
// backpressure discipline used for the video-frame queue elsewhere in
// Lunaris.
type ChannelEndpoint struct {
	baseEndpoint
	ch chan Envelope
}

// NewChannelEndpoint builds a ChannelEndpoint with the given buffer size.
func NewChannelEndpoint(capacity int) *ChannelEndpoint {
	return &ChannelEndpoint{ch: make(chan Envelope, capacity)}
}

// C returns the receive side of the endpoint's channel for the owner to
// range/select over.
func (e *ChannelEndpoint) C() <-chan Envelope { return e.ch }

func (e *ChannelEndpoint) Deliver(env Envelope) error {
	e.notify(env)
	select {
	case e.ch <- env:
		return nil
	default:
		return &PluginFailedMessage{Envelope: env}
	}
}
