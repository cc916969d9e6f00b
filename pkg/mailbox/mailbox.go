// Package mailbox implements Lunaris's process-wide message registry: a
// numeric slot table plugins and internal services register endpoints
// into, a name-to-slot index for discovery, and envelope delivery between
// them.
package mailbox

import (
	"sync"
	"sync/atomic"

	lsync "github.com/shuntia/lunaris/pkg/sync"
)

// Mailbox is the registry itself. The zero value is an empty, ready-to-use
// Mailbox; New returns a pointer to one.
type Mailbox struct {
	nextSlot atomic.Uint32

	mu       sync.RWMutex
	freeList []uint32
	slots    lsync.TypedSyncMap[uint32, Endpoint]
	names    lsync.TypedSyncMap[string, uint32]

	observer Observer
}

// Observer receives lifecycle notifications from a Mailbox without this
// package depending on anything app-specific. internal/kernel wires an
// Observer that forwards to the process-wide event bus; nil fields are
// simply not called.
type Observer struct {
	OnRegistered   func(slot uint32, name string)
	OnUnregistered func(slot uint32)
	OnSendFailed   func(envelopeID uint64, destination uint32)
}

// New builds an empty Mailbox.
func New() *Mailbox {
	return &Mailbox{}
}

// SetObserver installs obs as the mailbox's lifecycle observer, replacing
// any previously installed one.
func (m *Mailbox) SetObserver(obs Observer) { m.observer = obs }

// Register inserts endpoint under a freshly allocated slot (reusing a slot
// freed by a prior Unregister when one is available, the same dense-slab
// reuse discipline the kernel's native registry uses) and indexes it under
// name. Returns the assigned slot ID.
func (m *Mailbox) Register(endpoint Endpoint, name string) uint32 {
	id := m.allocSlot()
	m.slots.Store(id, endpoint)
	if name != "" {
		m.names.Store(name, id)
	}
	if m.observer.OnRegistered != nil {
		m.observer.OnRegistered(id, name)
	}
	return id
}

func (m *Mailbox) allocSlot() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := len(m.freeList); n > 0 {
		id := m.freeList[n-1]
		m.freeList = m.freeList[:n-1]
		return id
	}
	return m.nextSlot.Add(1) - 1
}

// Unregister removes the endpoint at id and returns it. Deliberately does
// not scrub any name currently pointing at id from the name table - a
// stale name will resolve to a freed (and possibly reused) slot until
// something re-registers under the same name. This matches the kernel's
// native registry's actual behavior rather than the safer behavior one
// might expect; Resolve callers that care must re-register under the name
// to correct it.
func (m *Mailbox) Unregister(id uint32) (Endpoint, error) {
	endpoint, ok := m.slots.LoadAndDelete(id)
	if !ok {
		return nil, &PluginUnloadFailed{ID: id}
	}
	m.mu.Lock()
	m.freeList = append(m.freeList, id)
	m.mu.Unlock()
	if m.observer.OnUnregistered != nil {
		m.observer.OnUnregistered(id)
	}
	return endpoint, nil
}

// Resolve looks up the slot ID registered under name.
func (m *Mailbox) Resolve(name string) (uint32, error) {
	id, ok := m.names.Load(name)
	if !ok {
		return 0, &PluginNameNotFound{Name: name}
	}
	return id, nil
}

// Send routes env to the endpoint at env.Destination.
func (m *Mailbox) Send(env Envelope) error {
	endpoint, ok := m.slots.Load(env.Destination)
	if !ok {
		return &PluginNotFound{ID: env.Destination}
	}
	if err := endpoint.Deliver(env); err != nil {
		if m.observer.OnSendFailed != nil {
			m.observer.OnSendFailed(env.ID, env.Destination)
		}
		return &PluginFailedMessage{Envelope: env}
	}
	return nil
}

// ReInit clears every registered slot and name. Existing Endpoint values
// are dropped without being notified; callers are expected to have already
// torn down whatever owned them.
func (m *Mailbox) ReInit() {
	m.mu.Lock()
	m.freeList = nil
	m.nextSlot.Store(0)
	m.mu.Unlock()

	m.slots.Range(func(k uint32, _ Endpoint) bool {
		m.slots.Delete(k)
		return true
	})
	m.names.Range(func(k string, _ uint32) bool {
		m.names.Delete(k)
		return true
	})
}

// Len returns the number of live registered slots.
func (m *Mailbox) Len() int { return m.slots.Len() }
