package mailbox_test

import (
	"errors"
	"testing"

	"github.com/shuntia/lunaris/pkg/mailbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterResolveSend(t *testing.T) {
	box := mailbox.New()

	var received mailbox.Envelope
	ep := mailbox.NewFuncEndpoint(func(env mailbox.Envelope) error {
		received = env
		return nil
	})

	id := box.Register(ep, "renderer")

	resolved, err := box.Resolve("renderer")
	require.NoError(t, err)
	assert.Equal(t, id, resolved)

	env := mailbox.NewEnvelope(0, id, false, mailbox.Message{
		Opcode:  mailbox.TICK,
		Payload: mailbox.PayloadCode(42),
	})
	require.NoError(t, box.Send(env))

	code, ok := received.Message.Payload.Code()
	require.True(t, ok)
	assert.EqualValues(t, 42, code)
}

func TestResolve_UnknownName(t *testing.T) {
	box := mailbox.New()
	_, err := box.Resolve("nope")

	var nameErr *mailbox.PluginNameNotFound
	assert.True(t, errors.As(err, &nameErr))
}

func TestSend_UnknownDestination(t *testing.T) {
	box := mailbox.New()
	err := box.Send(mailbox.NewEnvelope(0, 999, false, mailbox.Message{Opcode: mailbox.NOOP}))

	var notFound *mailbox.PluginNotFound
	require.True(t, errors.As(err, &notFound))
	assert.EqualValues(t, 999, notFound.ID)
}

func TestUnregister_NameTableNotScrubbed(t *testing.T) {
	box := mailbox.New()
	ep := mailbox.NewFuncEndpoint(func(mailbox.Envelope) error { return nil })
	id := box.Register(ep, "plugin-a")

	_, err := box.Unregister(id)
	require.NoError(t, err)

	// The name still resolves to the freed slot - Unregister does not
	// scrub the name table. Sending to it now fails because the slot is
	// empty, not because the name lookup failed.
	resolved, err := box.Resolve("plugin-a")
	require.NoError(t, err)
	assert.Equal(t, id, resolved)

	sendErr := box.Send(mailbox.NewEnvelope(0, resolved, false, mailbox.Message{Opcode: mailbox.NOOP}))
	var notFound *mailbox.PluginNotFound
	assert.True(t, errors.As(sendErr, &notFound))
}

func TestUnregister_UnknownSlot(t *testing.T) {
	box := mailbox.New()
	_, err := box.Unregister(5)

	var unloadErr *mailbox.PluginUnloadFailed
	assert.True(t, errors.As(err, &unloadErr))
}

func TestChannelEndpoint_BackpressureReturnsError(t *testing.T) {
	box := mailbox.New()
	ep := mailbox.NewChannelEndpoint(1)
	id := box.Register(ep, "bounded")

	require.NoError(t, box.Send(mailbox.NewEnvelope(0, id, false, mailbox.Message{Opcode: mailbox.NOOP})))

	err := box.Send(mailbox.NewEnvelope(0, id, false, mailbox.Message{Opcode: mailbox.NOOP}))
	var failed *mailbox.PluginFailedMessage
	assert.True(t, errors.As(err, &failed))
}

func TestReInit_ClearsSlotsAndNames(t *testing.T) {
	box := mailbox.New()
	ep := mailbox.NewFuncEndpoint(func(mailbox.Envelope) error { return nil })
	box.Register(ep, "thing")
	assert.Equal(t, 1, box.Len())

	box.ReInit()

	assert.Equal(t, 0, box.Len())
	_, err := box.Resolve("thing")
	assert.Error(t, err)
}

func TestForeignOwned_ReleaseIsIdempotent(t *testing.T) {
	calls := 0
	owned := &mailbox.ForeignOwned{
		Ptr: 0xdeadbeef,
		Len: 16,
		Free: func(ptr uintptr, length int) {
			calls++
		},
	}

	owned.Release()
	owned.Release()

	assert.Equal(t, 1, calls)
}

func TestGlobalMailbox_ReInitThenSecondInitFails(t *testing.T) {
	mailbox.ReInit() // ensure the global slot is occupied regardless of test order
	require.NotNil(t, mailbox.Global())

	err := mailbox.Init()
	var initErr *mailbox.KernelInitFailed
	require.Error(t, err)
	assert.True(t, errors.As(err, &initErr))
}
