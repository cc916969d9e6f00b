// Package internal wires Lunaris's independent packages - the worker pool,
// the mailbox registry, the plugin registry, the lifecycle event bus, the
// admin surface, and the optional sidecar supervisor - into a single
// runnable process, the way Thea's top-level tpa.go wires its own
// independent managers together.
package internal

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/shuntia/lunaris/internal/admin"
	"github.com/shuntia/lunaris/internal/config"
	"github.com/shuntia/lunaris/internal/event"
	"github.com/shuntia/lunaris/internal/plugin"
	"github.com/shuntia/lunaris/internal/services"
	"github.com/shuntia/lunaris/pkg/logger"
	"github.com/shuntia/lunaris/pkg/mailbox"
	"github.com/shuntia/lunaris/pkg/pool"
)

var kernelLog = logger.Get("Kernel")

// KernelInitFailed reports that Kernel.Run was called on a Kernel that is
// already running. Mirrors mailbox.KernelInitFailed in spirit:
// the Kernel is a singleton-per-process resource too.
type KernelInitFailed struct {
	Reason string
}

func (e *KernelInitFailed) Error() string {
	return fmt.Sprintf("kernel: init failed: %s", e.Reason)
}

// Kernel is the top-level lifecycle object: it owns an Orchestrator, a
// Mailbox, a plugin Registry, an event bus, and the optional admin and
// sidecar subsystems, and bridges lifecycle notifications between them.
type Kernel struct {
	cfg config.Config

	orch     *pool.Orchestrator
	box      *mailbox.Mailbox
	registry *plugin.Registry
	events   event.EventCoordinator

	adminHub    *admin.Hub
	adminServer *admin.Server
	svcMgr      *services.Manager

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// New builds a Kernel from cfg without starting anything. Call Run to bring
// it up.
func New(cfg config.Config) *Kernel {
	resolved := cfg.Pool.Resolved()
	orch := pool.NewOrchestratorWithCounts(resolved.DefaultThreads, resolved.FrameThreads, resolved.BackgroundThreads, resolved.AsyncWorkers)

	box := mailbox.New()
	registry := plugin.NewRegistry(box)
	events := event.New()

	k := &Kernel{
		cfg:      cfg,
		orch:     orch,
		box:      box,
		registry: registry,
		events:   events,
	}

	k.wireObservers()

	if cfg.Admin.Enabled {
		k.adminHub = admin.NewHub()
		k.adminServer = admin.NewServer(orch, box, k.adminHub)
		events.RegisterHandlerFunction(event.PoolReconfigured, k.adminHub.EventObserver())
		events.RegisterHandlerFunction(event.PoolWorkerPanicked, k.adminHub.EventObserver())
		events.RegisterHandlerFunction(event.PoolRenderQueueFull, k.adminHub.EventObserver())
		events.RegisterHandlerFunction(event.MailboxRegistered, k.adminHub.EventObserver())
		events.RegisterHandlerFunction(event.MailboxUnregistered, k.adminHub.EventObserver())
		events.RegisterHandlerFunction(event.MailboxSendFailed, k.adminHub.EventObserver())
		events.RegisterHandlerFunction(event.PluginLoaded, k.adminHub.EventObserver())
		events.RegisterHandlerFunction(event.PluginUnloaded, k.adminHub.EventObserver())
	}

	return k
}

// wireObservers bridges pool/mailbox lifecycle callbacks onto the event
// bus, so neither package needs to import internal/event itself.
func (k *Kernel) wireObservers() {
	k.orch.SetObserver(pool.Observer{
		OnReconfigure: func(defaultN, frameN, backgroundN int) {
			k.events.Dispatch(event.PoolReconfigured, event.ReconfiguredPayload{
				DefaultThreads:    defaultN,
				FrameThreads:      frameN,
				BackgroundThreads: backgroundN,
			})
		},
		OnWorkerPanic: func(priority string, recovered any) {
			k.events.Dispatch(event.PoolWorkerPanicked, event.WorkerPanicPayload{Priority: priority, Recovered: recovered})
		},
		OnRenderQueueFull: func() {
			k.events.Dispatch(event.PoolRenderQueueFull, event.RenderQueueFullPayload{AttemptedAt: time.Now().UnixNano()})
		},
	})

	k.box.SetObserver(mailbox.Observer{
		OnRegistered: func(slot uint32, name string) {
			k.events.Dispatch(event.MailboxRegistered, event.MailboxSlotPayload{SlotID: slot, Name: name})
		},
		OnUnregistered: func(slot uint32) {
			k.events.Dispatch(event.MailboxUnregistered, event.MailboxSlotPayload{SlotID: slot})
		},
		OnSendFailed: func(envelopeID uint64, destination uint32) {
			k.events.Dispatch(event.MailboxSendFailed, event.MailboxSendFailedPayload{EnvelopeID: envelopeID, Destination: destination})
		},
	})

	k.registry.SetObserver(plugin.Observer{
		OnLoaded: func(name string, slot uint32, kind plugin.Kind) {
			k.events.Dispatch(event.PluginLoaded, event.PluginLifecyclePayload{Name: name, SlotID: slot, Kind: kind.String()})
		},
		OnUnloaded: func(name string, slot uint32, kind plugin.Kind) {
			k.events.Dispatch(event.PluginUnloaded, event.PluginLifecyclePayload{Name: name, SlotID: slot, Kind: kind.String()})
		},
	})
}

// Events returns the kernel's lifecycle event bus, for application code
// that wants to subscribe directly rather than through the admin stream.
func (k *Kernel) Events() event.EventCoordinator { return k.events }

// Orchestrator returns the kernel's worker pool façade.
func (k *Kernel) Orchestrator() *pool.Orchestrator { return k.orch }

// Mailbox returns the kernel's message registry.
func (k *Kernel) Mailbox() *mailbox.Mailbox { return k.box }

// Registry returns the kernel's plugin registry.
func (k *Kernel) Registry() *plugin.Registry { return k.registry }

// Run brings the kernel fully up - loading static plugins, starting the
// admin surface and any enabled sidecars - then blocks until ctx is
// cancelled or an interrupt/SIGTERM is received, following the same
// select-loop shape Thea's tpa.Start uses.
func (k *Kernel) Run(ctx context.Context) error {
	k.runMu.Lock()
	if k.running {
		k.runMu.Unlock()
		return &KernelInitFailed{Reason: "kernel is already running"}
	}
	k.running = true
	runCtx, cancel := context.WithCancel(ctx)
	k.cancel = cancel
	k.runMu.Unlock()

	kernelLog.Infof("--- Lunaris starting ---\n")

	if errs := k.registry.LoadStatic(); len(errs) > 0 {
		for _, err := range errs {
			kernelLog.Errorf("failed to load static plugin: %v\n", err)
		}
	}

	if k.adminHub != nil {
		go k.adminHub.Start()
		go func() {
			addr := k.cfg.Admin.Addr()
			kernelLog.Infof("admin surface listening on %s\n", addr)
			if err := k.adminServer.ListenAndServe(addr); err != nil {
				kernelLog.Warnf("admin surface stopped: %v\n", err)
			}
		}()
	}

	if err := k.startServices(); err != nil {
		return fmt.Errorf("kernel: failed to start auxiliary services: %w", err)
	}

	exitCh := make(chan os.Signal, 1)
	signal.Notify(exitCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-exitCh:
		kernelLog.Infof("interrupt received\n")
	case <-runCtx.Done():
		kernelLog.Warnf("kernel context cancelled\n")
	}

	k.Stop()
	return nil
}

func (k *Kernel) startServices() error {
	svcCfg := k.cfg.Services
	if !svcCfg.EnableAssetCache && !svcCfg.EnableRenderProxy {
		return nil
	}

	mgr, err := services.NewManager()
	if err != nil {
		return err
	}
	k.svcMgr = mgr

	if svcCfg.EnableAssetCache {
		c := services.NewAssetCacheContainer(services.AssetCacheConfig{Port: "6379", DataPath: os.TempDir(), MaxMemory: "256mb"})
		if err := mgr.Spawn(c); err != nil {
			return fmt.Errorf("asset-cache: %w", err)
		}
	}
	if svcCfg.EnableRenderProxy {
		c := services.NewRenderProxyContainer(services.RenderProxyConfig{ListenPort: "8080", UpstreamAddr: k.cfg.Admin.Addr()})
		if err := mgr.Spawn(c); err != nil {
			return fmt.Errorf("render-proxy: %w", err)
		}
	}
	return nil
}

// Stop tears every subsystem down: sidecars, admin surface, worker pool.
// Safe to call more than once.
func (k *Kernel) Stop() {
	k.runMu.Lock()
	if !k.running {
		k.runMu.Unlock()
		return
	}
	k.running = false
	cancel := k.cancel
	k.runMu.Unlock()

	kernelLog.Infof("--- Lunaris shutting down ---\n")

	if k.svcMgr != nil {
		k.svcMgr.Shutdown(15 * time.Second)
	}
	if k.adminHub != nil {
		k.adminHub.Close()
	}

	k.orch.JoinAll()
	k.orch.Shutdown()

	if cancel != nil {
		cancel()
	}

	kernelLog.Infof("--- Lunaris shutdown complete ---\n")
}
