package plugin_test

import (
	"errors"
	"testing"

	"github.com/shuntia/lunaris/internal/plugin"
	"github.com/shuntia/lunaris/pkg/logger"
	"github.com/shuntia/lunaris/pkg/mailbox"
	"github.com/shuntia/lunaris/pkg/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.SetMinLoggingLevel(logger.VERBOSE.Level())
}

type fakePlugin struct {
	name string
	kind plugin.Kind
}

func (f *fakePlugin) Name() string                              { return f.name }
func (f *fakePlugin) Kind() plugin.Kind                         { return f.kind }
func (f *fakePlugin) HandleEnvelope(env mailbox.Envelope) error { return nil }

type fakeBackgroundPlugin struct {
	fakePlugin
	ran bool
}

func (f *fakeBackgroundPlugin) RunBackground(orch pool.DynOrchestrator) error {
	f.ran = true
	return nil
}

func TestLoad_AssignsSlotAndCapabilities(t *testing.T) {
	box := mailbox.New()
	reg := plugin.NewRegistry(box)

	bg := &fakeBackgroundPlugin{fakePlugin: fakePlugin{name: "asset-cache", kind: plugin.KindBackgroundService}}
	entry, err := reg.Load(bg)
	require.NoError(t, err)

	assert.Equal(t, "asset-cache", entry.Plugin.Name())
	assert.Equal(t, plugin.StateReady, entry.State)

	capability, ok := entry.Background()
	require.True(t, ok)
	require.NoError(t, capability.RunBackground(nil))
	assert.True(t, bg.ran)

	_, isGUI := entry.GUI()
	assert.False(t, isGUI)

	resolved, err := box.Resolve("asset-cache")
	require.NoError(t, err)
	assert.Equal(t, entry.SlotID, resolved)
}

func TestUnload_RemovesFromRegistryAndMailbox(t *testing.T) {
	box := mailbox.New()
	reg := plugin.NewRegistry(box)

	entry, err := reg.Load(&fakePlugin{name: "compute", kind: plugin.KindCompute})
	require.NoError(t, err)

	require.NoError(t, reg.Unload(entry.SlotID))

	_, err = reg.Lookup(entry.SlotID)
	var uninit *plugin.Uninit
	assert.True(t, errors.As(err, &uninit))

	sendErr := box.Send(mailbox.NewEnvelope(0, entry.SlotID, false, mailbox.Message{Opcode: mailbox.NOOP}))
	var notFound *mailbox.PluginNotFound
	assert.True(t, errors.As(sendErr, &notFound))
}

func TestLookup_UnloadedSlotReturnsUninit(t *testing.T) {
	box := mailbox.New()
	reg := plugin.NewRegistry(box)

	_, err := reg.Lookup(42)
	var uninit *plugin.Uninit
	assert.True(t, errors.As(err, &uninit))
}

func TestLoadStatic_InstantiatesRegisteredFactories(t *testing.T) {
	plugin.Register(func() plugin.Plugin {
		return &fakePlugin{name: "registered-via-init", kind: plugin.KindRenderer}
	})

	box := mailbox.New()
	reg := plugin.NewRegistry(box)
	errs := reg.LoadStatic()
	assert.Empty(t, errs)

	found := false
	for _, e := range reg.Entries() {
		if e.Plugin.Name() == "registered-via-init" {
			found = true
		}
	}
	assert.True(t, found)
}
