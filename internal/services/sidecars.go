package services

import (
	"fmt"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/go-connections/nat"
)

// AssetCacheConfig parameterizes the asset-cache sidecar: a Redis instance
// plugins use to cache decoded frames and intermediate render artifacts
// across process restarts.
type AssetCacheConfig struct {
	Port      string
	DataPath  string
	MaxMemory string
}

// NewAssetCacheContainer builds the Container description for the asset
// cache sidecar, toggled by config.ServiceConfig.EnableAssetCache.
func NewAssetCacheContainer(cfg AssetCacheConfig) Container {
	containerConf := &container.Config{
		Image: "redis:7-alpine",
		Cmd:   []string{"redis-server", "--maxmemory", cfg.MaxMemory, "--maxmemory-policy", "allkeys-lru"},
		ExposedPorts: nat.PortSet{
			"6379/tcp": struct{}{},
		},
	}
	hostConf := &container.HostConfig{
		PortBindings: nat.PortMap{
			"6379/tcp": []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: cfg.Port}},
		},
		Mounts: []mount.Mount{
			{Type: mount.TypeBind, Source: cfg.DataPath, Target: "/data"},
		},
	}
	return NewContainer("asset-cache", "redis:7-alpine", containerConf, hostConf)
}

// RenderProxyConfig parameterizes the render-proxy sidecar: an HTTP reverse
// proxy that lets remote render-farm workers reach the admin surface
// without exposing the host process's own listener publicly.
type RenderProxyConfig struct {
	ListenPort   string
	UpstreamAddr string
}

// NewRenderProxyContainer builds the Container description for the render
// proxy sidecar, toggled by config.ServiceConfig.EnableRenderProxy.
func NewRenderProxyContainer(cfg RenderProxyConfig) Container {
	containerConf := &container.Config{
		Image: "nginx:alpine",
		Env: []string{
			fmt.Sprintf("LUNARIS_UPSTREAM=%s", cfg.UpstreamAddr),
		},
		ExposedPorts: nat.PortSet{
			"80/tcp": struct{}{},
		},
	}
	hostConf := &container.HostConfig{
		PortBindings: nat.PortMap{
			"80/tcp": []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: cfg.ListenPort}},
		},
	}
	return NewContainer("render-proxy", "nginx:alpine", containerConf, hostConf)
}
