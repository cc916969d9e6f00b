package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
	"github.com/shuntia/lunaris/pkg/logger"
)

var managerLog = logger.Get("Services")

// NetworkName is the bridge network every Lunaris-managed sidecar joins, so
// the asset cache and render proxy can reach each other by container name.
const NetworkName = "lunaris_network"

// Observer receives lifecycle notifications from a Manager without this
// package depending on anything app-specific, the same pattern pool.Observer
// and mailbox.Observer use.
type Observer struct {
	OnContainerStatus func(label string, status ContainerStatus)
}

// statusUpdate is published on the manager's internal broadcaster whenever
// a supervised container's status changes.
type statusUpdate struct {
	label  string
	status ContainerStatus
}

// Manager supervises a set of labeled sidecar Containers: spawning them on
// a shared Docker network, monitoring their status, and tearing them down
// on Shutdown. Generalized from the kernel's native container supervisor,
// with its broker-based pub/sub replaced by a small in-package broadcaster
// since no pub/sub library is part of this module's dependency set.
type Manager struct {
	containers map[string]Container
	cli        client.APIClient
	ctx        context.Context
	ctxCancel  context.CancelFunc
	wg         sync.WaitGroup

	bus *broadcaster[statusUpdate]

	observer Observer
}

// NewManager builds a Manager using a Docker client constructed from the
// ambient environment (DOCKER_HOST and friends), creating the shared
// network if it doesn't already exist.
func NewManager() (*Manager, error) {
	ctx, cancel := context.WithCancel(context.Background())

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		cancel()
		return nil, fmt.Errorf("services: failed to build docker client: %w", err)
	}

	if _, err := cli.NetworkCreate(ctx, NetworkName, types.NetworkCreate{CheckDuplicate: true, Driver: "bridge"}); err != nil {
		managerLog.Warnf("failed to create docker network %s (often already exists, safe to ignore): %v\n", NetworkName, err)
	}

	return &Manager{
		containers: make(map[string]Container),
		cli:        cli,
		ctx:        ctx,
		ctxCancel:  cancel,
		bus:        newBroadcaster[statusUpdate](),
	}, nil
}

// SetObserver installs obs as the manager's lifecycle observer, replacing
// any previously installed one.
func (m *Manager) SetObserver(obs Observer) { m.observer = obs }

// Spawn starts c, joins it to the shared network, and blocks until it
// reports UP (or the wait fails).
func (m *Manager) Spawn(c Container) error {
	if _, ok := m.containers[c.Label()]; ok {
		return fmt.Errorf("services: container %s already spawned", c.Label())
	}
	m.containers[c.Label()] = c

	m.wg.Add(1)
	if err := c.Start(m.ctx, m.cli); err != nil {
		c.Close(m.ctx, m.cli, 10*time.Second)
		m.wg.Done()
		return err
	}

	if err := m.cli.NetworkConnect(m.ctx, NetworkName, c.ID(), nil); err != nil {
		managerLog.Errorf("failed to connect container %s to network: %v\n", c, err)
	}

	go m.monitor(c)

	managerLog.Infof("waiting for container %s to come UP\n", c.Label())
	if _, err := m.WaitFor(c, UP); err != nil {
		managerLog.Errorf("container %s failed to come online: %v\n", c.Label(), err)
		return err
	}
	managerLog.Infof("container %s is UP\n", c.Label())
	return nil
}

// Shutdown closes every supervised container and waits for their monitors
// to detach, then removes the shared network.
func (m *Manager) Shutdown(timeout time.Duration) {
	for _, c := range m.containers {
		m.close(c, timeout)
	}
	m.wg.Wait()
	m.ctxCancel()

	if err := m.cli.NetworkRemove(context.Background(), NetworkName); err != nil {
		managerLog.Warnf("failed to remove docker network: %v\n", err)
	}
}

// Close stops and removes a single supervised container by label. A no-op
// if the label isn't known.
func (m *Manager) Close(label string, timeout time.Duration) {
	c, ok := m.containers[label]
	if !ok {
		return
	}
	m.close(c, timeout)
}

func (m *Manager) close(c Container, timeout time.Duration) {
	managerLog.Infof("closing container %s\n", c.Label())
	if err := c.Close(m.ctx, m.cli, timeout); err != nil {
		managerLog.Warnf("failed to close container %s: %v\n", c.Label(), err)
	}
	if _, err := m.WaitFor(c, DEAD); err != nil {
		managerLog.Warnf("container %s did not confirm DEAD: %v\n", c.Label(), err)
	}
}

// WaitFor blocks until c reports one of statuses, or reports DEAD without
// any of them being reached.
func (m *Manager) WaitFor(c Container, statuses ...ContainerStatus) (ContainerStatus, error) {
	sub := m.bus.subscribe()
	defer m.bus.unsubscribe(sub)

	if c.Status() == DEAD {
		return DEAD, fmt.Errorf("services: cannot wait on DEAD container %s", c.Label())
	}
	for _, s := range statuses {
		if c.Status() == s {
			return s, nil
		}
	}

	for update := range sub {
		if update.label != c.Label() {
			continue
		}
		for _, s := range statuses {
			if update.status == s {
				return s, nil
			}
		}
		if update.status == DEAD {
			return DEAD, fmt.Errorf("services: container %s went DEAD before reaching a wanted status", c.Label())
		}
	}
	return DEAD, fmt.Errorf("services: wait on container %s aborted, manager shutting down", c.Label())
}

func (m *Manager) monitor(c Container) {
	defer func() {
		managerLog.Infof("container %s status monitoring detached\n", c.Label())
		m.wg.Done()
	}()

	for {
		select {
		case status, ok := <-c.StatusChannel():
			if !ok {
				return
			}
			managerLog.Infof("container %s status change: %s\n", c.Label(), status)
			if m.observer.OnContainerStatus != nil {
				m.observer.OnContainerStatus(c.Label(), status)
			}
			m.bus.publish(statusUpdate{label: c.Label(), status: status})
		case msg, ok := <-c.MessageChannel():
			if !ok {
				return
			}
			managerLog.Debugf("%s: %s\n", c.Label(), msg)
		}
	}
}
