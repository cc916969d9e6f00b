package plugin

import (
	"fmt"
	"sync"

	"github.com/shuntia/lunaris/pkg/logger"
	"github.com/shuntia/lunaris/pkg/mailbox"
)

var registryLog = logger.Get("Plugin")

// Factory builds a Plugin instance. Plugin packages register one at
// package init time via Register, the static-registration pattern the
// kernel's native counterpart implements with inventory::submit!.
type Factory func() Plugin

var (
	staticMu        sync.Mutex
	staticFactories []Factory
)

// Register records a plugin factory to be instantiated the next time a
// Registry loads static plugins. Intended to be called from a plugin
// package's init function.
func Register(f Factory) {
	staticMu.Lock()
	defer staticMu.Unlock()
	staticFactories = append(staticFactories, f)
}

// Entry is one loaded plugin, its capability set, its assigned Mailbox
// slot, and its current lifecycle state.
type Entry struct {
	Plugin Plugin
	SlotID uint32
	State  State

	background BackgroundPlugin
	gui        GUIPlugin
}

// Background returns the plugin's BackgroundPlugin capability, if any.
func (e *Entry) Background() (BackgroundPlugin, bool) {
	return e.background, e.background != nil
}

// GUI returns the plugin's GUIPlugin capability, if any.
func (e *Entry) GUI() (GUIPlugin, bool) {
	return e.gui, e.gui != nil
}

// Observer receives lifecycle notifications from a Registry without this
// package depending on anything app-specific, the same pattern pool.Observer
// and mailbox.Observer use.
type Observer struct {
	OnLoaded   func(name string, slot uint32, kind Kind)
	OnUnloaded func(name string, slot uint32, kind Kind)
}

// Registry owns every loaded plugin entry, keyed by the Mailbox slot each
// was assigned at load time.
type Registry struct {
	mailbox *mailbox.Mailbox

	mu      sync.RWMutex
	entries []*Entry
	bySlot  map[uint32]*Entry

	observer Observer
}

// NewRegistry builds an empty Registry bound to box. Plugins loaded through
// it register their own endpoint in box under their own slot.
func NewRegistry(box *mailbox.Mailbox) *Registry {
	return &Registry{
		mailbox: box,
		bySlot:  make(map[uint32]*Entry),
	}
}

// SetObserver installs obs as the registry's lifecycle observer, replacing
// any previously installed one.
func (r *Registry) SetObserver(obs Observer) { r.observer = obs }

// LoadStatic instantiates every plugin registered via Register and loads
// each into the registry, in registration order.
func (r *Registry) LoadStatic() []error {
	staticMu.Lock()
	factories := append([]Factory(nil), staticFactories...)
	staticMu.Unlock()

	var errs []error
	for _, f := range factories {
		if _, err := r.Load(f()); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Load registers p's endpoint with the Mailbox, assembles its optional
// sibling capabilities, and tracks the resulting Entry.
func (r *Registry) Load(p Plugin) (*Entry, error) {
	if p == nil {
		return nil, fmt.Errorf("plugin: cannot load a nil plugin")
	}

	endpoint := mailbox.NewFuncEndpoint(p.HandleEnvelope)
	slot := r.mailbox.Register(endpoint, p.Name())

	entry := &Entry{Plugin: p, SlotID: slot, State: StateReady}
	if bg, ok := p.(BackgroundPlugin); ok {
		entry.background = bg
	}
	if gui, ok := p.(GUIPlugin); ok {
		entry.gui = gui
	}

	r.mu.Lock()
	r.entries = append(r.entries, entry)
	r.bySlot[slot] = entry
	r.mu.Unlock()

	registryLog.Infof("loaded plugin %q (%s) at slot %d\n", p.Name(), p.Kind(), slot)
	if r.observer.OnLoaded != nil {
		r.observer.OnLoaded(p.Name(), slot, p.Kind())
	}
	return entry, nil
}

// Unload removes slot's endpoint from the Mailbox and drops the entry.
// Returns PluginUnloadFailed (via the mailbox package) if slot is not
// currently loaded.
func (r *Registry) Unload(slot uint32) error {
	if _, err := r.mailbox.Unregister(slot); err != nil {
		return err
	}

	r.mu.Lock()
	entry, ok := r.bySlot[slot]
	delete(r.bySlot, slot)
	if ok {
		for i, e := range r.entries {
			if e == entry {
				r.entries = append(r.entries[:i], r.entries[i+1:]...)
				break
			}
		}
	}
	r.mu.Unlock()

	if ok && r.observer.OnUnloaded != nil {
		r.observer.OnUnloaded(entry.Plugin.Name(), slot, entry.Plugin.Kind())
	}

	return nil
}

// Lookup returns the entry loaded at slot. Returns Uninit if the registry
// has never loaded anything at that slot - distinct from the mailbox's own
// PluginNotFound, which fires for sends rather than registry lookups.
func (r *Registry) Lookup(slot uint32) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.bySlot[slot]
	if !ok {
		return nil, &Uninit{Resource: fmt.Sprintf("plugin slot %d", slot)}
	}
	return entry, nil
}

// Entries returns a snapshot slice of every loaded entry.
func (r *Registry) Entries() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Entry, len(r.entries))
	copy(out, r.entries)
	return out
}
