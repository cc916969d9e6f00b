package plugin

import (
	"github.com/shuntia/lunaris/pkg/mailbox"
	"github.com/shuntia/lunaris/pkg/pool"
)

// Plugin is the capability every registered plugin must implement: a name,
// a kind, and a handler for envelopes the kernel or another plugin routes
// to it. This replaces the per-plugin arm the source's generated enum used
// to carry.
type Plugin interface {
	Name() string
	Kind() Kind
	HandleEnvelope(env mailbox.Envelope) error
}

// BackgroundPlugin is a sibling capability a Plugin may additionally
// implement: work that should run on the orchestrator's background tier
// rather than blocking whatever submitted it.
type BackgroundPlugin interface {
	Plugin
	RunBackground(orch pool.DynOrchestrator) error
}

// GUIPlugin is a sibling capability for plugins that contribute a pane to
// the (out-of-scope) tiled GUI shell. Lunaris only carries the interface
// the shell consumes; the shell itself is an external collaborator.
type GUIPlugin interface {
	Plugin
	PaneTitle() string
}

// Context bundles narrow, non-generic access to the orchestrator and
// mailbox rather than the kernel's full internals. Neither Registry nor the
// kernel constructs one or passes it to a plugin.
type Context struct {
	Orchestrator pool.DynOrchestrator
	Mailbox      *mailbox.Mailbox
	SlotID       uint32
}
