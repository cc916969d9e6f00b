// Package services supervises the optional Docker-backed sidecars a
// Lunaris host may run alongside its own process: an asset cache and a
// render proxy, toggled by config.ServiceConfig.
package services

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	dCont "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/shuntia/lunaris/pkg/logger"
)

var containerLog = logger.Get("Services")

// ContainerStatus is a sidecar's lifecycle state. A sidecar only ever moves
// forward through this machine; Manager.WaitFor blocks on the forward edges
// a caller cares about (usually UP, sometimes DEAD).
type ContainerStatus int

const (
	INIT ContainerStatus = iota
	PULLED
	CREATED
	UP
	CRASHED
	CLOSING
	DOWN
	DEAD
)

func (s ContainerStatus) String() string {
	return []string{"INIT", "PULLED", "CREATED", "UP", "CRASHED", "CLOSING", "DOWN", "DEAD"}[s]
}

// pullEvent is one line of the newline-delimited JSON stream the Docker
// daemon emits while pulling a sidecar's image.
type pullEvent struct {
	Status   string `json:"status"`
	Error    string `json:"error"`
	Progress string `json:"progress"`
}

// Container is a single supervised sidecar - the asset cache or the render
// proxy - described by its image and Docker config, plus the running state
// machine once Manager.Spawn has started it.
type Container interface {
	// Start pulls the sidecar's image and creates+starts it. Once this
	// returns without error the sidecar has been marked UP; a later crash
	// is reported asynchronously on StatusChannel rather than as a Start
	// error.
	Start(ctx context.Context, cli client.APIClient) error

	// Close stops and removes the sidecar, waiting up to timeout for a
	// graceful stop before the Docker daemon kills it outright.
	Close(ctx context.Context, cli client.APIClient, timeout time.Duration) error

	MessageChannel() chan []byte
	StatusChannel() chan ContainerStatus
	Label() string
	ID() string
	Status() ContainerStatus
}

type container struct {
	statusCh    chan ContainerStatus
	messageCh   chan []byte
	label       string
	image       string
	containerID string
	status      ContainerStatus
	conf        *dCont.Config
	hostConf    *dCont.HostConfig
}

// NewContainer describes a sidecar by label (e.g. "asset-cache" or
// "render-proxy") and image, ready to be handed to a Manager's Spawn.
func NewContainer(label, image string, conf *dCont.Config, hostConf *dCont.HostConfig) Container {
	return &container{
		statusCh:  make(chan ContainerStatus, 5),
		messageCh: make(chan []byte, 5),
		label:     label,
		image:     image,
		conf:      conf,
		hostConf:  hostConf,
		status:    INIT,
	}
}

// Start runs the sidecar's image-pull, create, and start steps in sequence,
// advancing status after each one completes so a concurrent WaitFor
// observes every intermediate state.
func (c *container) Start(ctx context.Context, cli client.APIClient) error {
	if c.status != INIT {
		return fmt.Errorf("cannot start sidecar %s: status %s is not INIT", c, c.status)
	}

	if err := c.pullImage(ctx, cli); err != nil {
		return err
	}
	c.setStatus(PULLED)

	if err := c.createAndStart(ctx, cli); err != nil {
		return err
	}
	c.setStatus(UP)

	go c.streamLogs(ctx, cli)
	return nil
}

// pullImage streams the daemon's pull progress straight to the log, one
// sidecar-labeled line per event, rather than buffering it.
func (c *container) pullImage(ctx context.Context, cli client.APIClient) error {
	out, err := cli.ImagePull(ctx, c.image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("sidecar %s: failed to pull image %s: %w", c, c.image, err)
	}
	defer out.Close()

	dec := json.NewDecoder(out)
	for {
		var ev pullEvent
		if err := dec.Decode(&ev); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("sidecar %s: malformed pull event: %w", c, err)
		}
		c.logPullEvent(ev)
	}
}

func (c *container) createAndStart(ctx context.Context, cli client.APIClient) error {
	resp, err := cli.ContainerCreate(ctx, c.conf, c.hostConf, nil, nil, c.label)
	if err != nil {
		return fmt.Errorf("sidecar %s: failed to create container: %w", c, err)
	}
	c.containerID = resp.ID
	c.setStatus(CREATED)

	if err := cli.ContainerStart(ctx, resp.ID, dCont.StartOptions{}); err != nil {
		return fmt.Errorf("sidecar %s: failed to start container: %w", c, err)
	}
	return nil
}

// Close winds the sidecar back down: a graceful stop (if it's running),
// then removal (if it was ever created), landing on DEAD either way.
func (c *container) Close(ctx context.Context, cli client.APIClient, timeout time.Duration) error {
	if c.status == DEAD {
		return nil
	}

	if err := c.stopIfRunning(ctx, cli, timeout); err != nil {
		return err
	}
	if err := c.removeIfPresent(ctx, cli); err != nil {
		return err
	}
	c.setStatus(DEAD)

	close(c.statusCh)
	close(c.messageCh)
	return nil
}

func (c *container) stopIfRunning(ctx context.Context, cli client.APIClient, timeout time.Duration) error {
	if !c.canStop() {
		return nil
	}
	c.setStatus(CLOSING)
	secs := int(timeout.Seconds())
	if err := cli.ContainerStop(ctx, c.containerID, dCont.StopOptions{Timeout: &secs}); err != nil {
		return fmt.Errorf("sidecar %s: failed to stop: %w", c, err)
	}
	c.setStatus(DOWN)
	return nil
}

func (c *container) removeIfPresent(ctx context.Context, cli client.APIClient) error {
	if !c.canRemove() {
		return nil
	}
	if err := cli.ContainerRemove(ctx, c.containerID, dCont.RemoveOptions{}); err != nil {
		return fmt.Errorf("sidecar %s: failed to remove: %w", c, err)
	}
	return nil
}

func (c *container) MessageChannel() chan []byte        { return c.messageCh }
func (c *container) StatusChannel() chan ContainerStatus { return c.statusCh }
func (c *container) ID() string                          { return c.containerID }
func (c *container) Label() string                       { return c.label }
func (c *container) Status() ContainerStatus             { return c.status }

func (c *container) String() string {
	if c.containerID == "" {
		return fmt.Sprintf("%s[...]", c.label)
	}
	n := c.containerID
	if len(n) > 10 {
		n = n[:10]
	}
	return fmt.Sprintf("%s[%s]", c.label, n)
}

func (c *container) canStop() bool {
	return c.status == CLOSING || c.status == CREATED || c.status == UP || c.status == CRASHED
}

func (c *container) canRemove() bool {
	return c.canStop() || c.status == DOWN || c.status == CRASHED
}

func (c *container) setStatus(s ContainerStatus) {
	if c.status == DEAD {
		return
	}
	c.status = s
	c.statusCh <- s
}

func (c *container) logPullEvent(ev pullEvent) {
	switch {
	case ev.Error != "":
		containerLog.Errorf("%s: %s\n", c, ev.Error)
	case ev.Progress != "":
		containerLog.Infof("%s: %s\n", c, ev.Progress)
	case ev.Status != "":
		containerLog.Infof("%s: %s\n", c, ev.Status)
	default:
		containerLog.Warnf("sidecar %s emitted unrecognized pull event %+v\n", c, ev)
	}
}

// streamLogs forwards the sidecar's stdout/stderr onto MessageChannel for
// as long as it reports UP, the way the render proxy's access log or the
// asset cache's eviction chatter reaches Lunaris's own log stream.
func (c *container) streamLogs(ctx context.Context, cli client.APIClient) {
	reader, err := cli.ContainerLogs(ctx, c.containerID, dCont.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		c.setStatus(CRASHED)
		return
	}
	defer reader.Close()

	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		if c.status != UP {
			break
		}
		c.messageCh <- scanner.Bytes()
	}

	if c.status != CLOSING {
		c.setStatus(CRASHED)
	}
}
