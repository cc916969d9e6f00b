// Package event is Lunaris's lifecycle event bus: pool and mailbox
// internals dispatch onto it, and collaborators - chiefly the admin
// websocket hub - subscribe without coupling directly to pool or mailbox
// types.
package event

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/shuntia/lunaris/pkg/logger"
)

var log = logger.Get("Event")

type (
	Event         string
	Payload       any
	HandlerMethod func(Event, Payload)

	HandlerChannel chan HandlerEvent
	HandlerEvent   struct {
		Event   Event
		Payload Payload
	}

	EventDispatcher interface {
		Dispatch(Event, Payload)
	}

	EventHandler interface {
		RegisterAsyncHandlerFunction(Event, HandlerMethod)
		RegisterHandlerFunction(Event, HandlerMethod)
		RegisterHandlerChannel(HandlerChannel, ...Event)
	}

	EventCoordinator interface {
		EventDispatcher
		EventHandler
	}

	eventHandler struct {
		fnHandlers   map[Event][]handlerMethod
		chanHandlers map[Event][]HandlerChannel
	}

	handlerMethod struct {
		handle HandlerMethod
		async  bool
	}
)

// Lifecycle events dispatched by pkg/pool, pkg/mailbox, and internal/plugin.
// Payload shapes are documented alongside each constant and enforced by
// validatePayload.
const (
	// PoolReconfigured payload: ReconfiguredPayload.
	PoolReconfigured Event = "pool:reconfigured"
	// PoolWorkerPanicked payload: WorkerPanicPayload.
	PoolWorkerPanicked Event = "pool:worker_panicked"
	// PoolRenderQueueFull payload: RenderQueueFullPayload.
	PoolRenderQueueFull Event = "pool:render_queue_full"

	// MailboxRegistered payload: MailboxSlotPayload.
	MailboxRegistered Event = "mailbox:registered"
	// MailboxUnregistered payload: MailboxSlotPayload.
	MailboxUnregistered Event = "mailbox:unregistered"
	// MailboxSendFailed payload: MailboxSendFailedPayload.
	MailboxSendFailed Event = "mailbox:send_failed"

	// PluginLoaded payload: PluginLifecyclePayload.
	PluginLoaded Event = "plugin:loaded"
	// PluginUnloaded payload: PluginLifecyclePayload.
	PluginUnloaded Event = "plugin:unloaded"
)

// ReconfiguredPayload accompanies PoolReconfigured.
type ReconfiguredPayload struct {
	DefaultThreads    int
	FrameThreads      int
	BackgroundThreads int
}

// WorkerPanicPayload accompanies PoolWorkerPanicked.
type WorkerPanicPayload struct {
	Priority  string
	Recovered any
}

// RenderQueueFullPayload accompanies PoolRenderQueueFull.
type RenderQueueFullPayload struct {
	AttemptedAt int64
}

// MailboxSlotPayload accompanies MailboxRegistered and MailboxUnregistered.
type MailboxSlotPayload struct {
	SlotID uint32
	Name   string
}

// MailboxSendFailedPayload accompanies MailboxSendFailed.
type MailboxSendFailedPayload struct {
	EnvelopeID  uint64
	Destination uint32
}

// PluginLifecyclePayload accompanies PluginLoaded and PluginUnloaded.
type PluginLifecyclePayload struct {
	Name   string
	SlotID uint32
	Kind   string
}

func New() EventCoordinator {
	return &eventHandler{
		fnHandlers:   make(map[Event][]handlerMethod),
		chanHandlers: make(map[Event][]HandlerChannel),
	}
}

// RegisterHandlerChannel takes an event type and a channel and will send
// Event messages on the channel any time a Dispatch for the provided event
// occurs. This method can be used multiple times for different events on
// the same channel.
//
// If the channel is blocked when the event bus attempts to send, the
// dispatching goroutine blocks too. Buffer handler channels appropriately
// to avoid dispatcher-side stalls.
func (handler *eventHandler) RegisterHandlerChannel(handle HandlerChannel, events ...Event) {
	for _, event := range events {
		handler.chanHandlers[event] = append(handler.chanHandlers[event], handle)
	}
}

// RegisterHandlerFunction stores a handler called synchronously with the
// payload whenever Dispatch fires for event. The handle should return
// quickly or it blocks every other caller of Dispatch.
func (handler *eventHandler) RegisterHandlerFunction(event Event, handle HandlerMethod) {
	handler.registerHandlerMethod(event, handlerMethod{handle, false})
}

// RegisterAsyncHandlerFunction stores a handler invoked in its own
// goroutine when the event fires.
func (handler *eventHandler) RegisterAsyncHandlerFunction(event Event, handle HandlerMethod) {
	handler.registerHandlerMethod(event, handlerMethod{handle, true})
}

func (handler *eventHandler) registerHandlerMethod(event Event, handle handlerMethod) {
	handler.fnHandlers[event] = append(handler.fnHandlers[event], handle)
}

// Dispatch sends payload to every handler registered for event. Invalid
// payloads are logged and dropped rather than delivered.
func (handler *eventHandler) Dispatch(event Event, payload Payload) {
	if err := handler.validatePayload(event, payload); err != nil {
		log.Emit(logger.WARNING, "dispatch for event %v failed validation: %v\n", event, err)
		return
	}

	if handles, ok := handler.fnHandlers[event]; ok {
		for _, handle := range handles {
			if handle.async {
				go handle.handle(event, payload)
			} else {
				handle.handle(event, payload)
			}
		}
	}

	if handles, ok := handler.chanHandlers[event]; ok {
		wrapped := HandlerEvent{event, payload}
		for _, handle := range handles {
			handle <- wrapped
		}
	}
}

// validatePayload checks the payload's concrete type matches what the
// event documents. Unknown events are rejected outright - Lunaris does not
// carry the source's implicit "no validation for unrecognized event"
// fallthrough.
func (handler *eventHandler) validatePayload(event Event, payload Payload) error {
	payloadTypeName := "Nil"
	if t := reflect.TypeOf(payload); t != nil {
		payloadTypeName = t.Name()
	}

	expect := func(want any) error {
		wantType := reflect.TypeOf(want)
		if reflect.TypeOf(payload) != wantType {
			return fmt.Errorf("illegal payload (type %s) for %s event, expected %s", payloadTypeName, event, wantType.Name())
		}
		return nil
	}

	switch event {
	case PoolReconfigured:
		return expect(ReconfiguredPayload{})
	case PoolWorkerPanicked:
		return expect(WorkerPanicPayload{})
	case PoolRenderQueueFull:
		return expect(RenderQueueFullPayload{})
	case MailboxRegistered, MailboxUnregistered:
		return expect(MailboxSlotPayload{})
	case MailboxSendFailed:
		return expect(MailboxSendFailedPayload{})
	case PluginLoaded, PluginUnloaded:
		return expect(PluginLifecyclePayload{})
	}

	return errors.New("event type not recognized for validation")
}
