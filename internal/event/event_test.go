package event_test

import (
	"testing"
	"time"

	"github.com/shuntia/lunaris/internal/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatch_SyncHandlerReceivesPayload(t *testing.T) {
	bus := event.New()

	var got event.MailboxSlotPayload
	bus.RegisterHandlerFunction(event.MailboxRegistered, func(_ event.Event, p event.Payload) {
		got = p.(event.MailboxSlotPayload)
	})

	bus.Dispatch(event.MailboxRegistered, event.MailboxSlotPayload{SlotID: 3, Name: "renderer"})

	assert.Equal(t, uint32(3), got.SlotID)
	assert.Equal(t, "renderer", got.Name)
}

func TestDispatch_RejectsMismatchedPayload(t *testing.T) {
	bus := event.New()

	called := false
	bus.RegisterHandlerFunction(event.MailboxRegistered, func(_ event.Event, _ event.Payload) {
		called = true
	})

	bus.Dispatch(event.MailboxRegistered, "not the right type")

	assert.False(t, called)
}

func TestDispatch_ChannelHandlerReceivesEvent(t *testing.T) {
	bus := event.New()
	ch := make(event.HandlerChannel, 1)
	bus.RegisterHandlerChannel(ch, event.PluginLoaded)

	bus.Dispatch(event.PluginLoaded, event.PluginLifecyclePayload{Name: "compute", SlotID: 1, Kind: "compute"})

	select {
	case he := <-ch:
		assert.Equal(t, event.PluginLoaded, he.Event)
		payload, ok := he.Payload.(event.PluginLifecyclePayload)
		require.True(t, ok)
		assert.Equal(t, "compute", payload.Name)
	case <-time.After(time.Second):
		t.Fatal("expected channel handler to receive dispatched event")
	}
}

func TestDispatch_AsyncHandlerRunsInGoroutine(t *testing.T) {
	bus := event.New()
	done := make(chan struct{})

	bus.RegisterAsyncHandlerFunction(event.PoolWorkerPanicked, func(_ event.Event, _ event.Payload) {
		close(done)
	})

	bus.Dispatch(event.PoolWorkerPanicked, event.WorkerPanicPayload{Priority: "normal", Recovered: "boom"})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected async handler to run")
	}
}
