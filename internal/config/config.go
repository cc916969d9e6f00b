// Package config loads Lunaris's process-wide configuration: pool sizing,
// mailbox limits, auxiliary service toggles, and the admin HTTP surface's
// bind address.
package config

import (
	"fmt"
	"runtime"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the root configuration struct. Every field can be overridden by
// environment variable; LoadFromFile additionally accepts a YAML file on
// disk, the same two-source precedence the kernel's native config loader
// uses.
type Config struct {
	Pool      PoolConfig    `yaml:"pool"`
	Mailbox   MailboxConfig `yaml:"mailbox"`
	Services  ServiceConfig `yaml:"services"`
	Admin     AdminConfig   `yaml:"admin"`
	LogLevel  string        `yaml:"log_level" env:"LUNARIS_LOG_LEVEL" env-default:"info"`
	ConfigDir string        `yaml:"config_dir" env:"LUNARIS_CONFIG_DIR"`
}

// PoolConfig sizes the orchestrator's worker pool. Zero values mean "derive
// from detected parallelism" - the same rule DefaultThreadCounts applies.
type PoolConfig struct {
	DefaultThreads    int `yaml:"default_threads" env:"LUNARIS_POOL_DEFAULT_THREADS" env-default:"0"`
	FrameThreads      int `yaml:"frame_threads" env:"LUNARIS_POOL_FRAME_THREADS" env-default:"0"`
	BackgroundThreads int `yaml:"background_threads" env:"LUNARIS_POOL_BACKGROUND_THREADS" env-default:"0"`
	AsyncWorkers      int `yaml:"async_workers" env:"LUNARIS_POOL_ASYNC_WORKERS" env-default:"0"`
}

// Resolved fills in zero fields using the same derivation Orchestrator uses
// by default, so callers always see concrete counts.
func (p PoolConfig) Resolved() PoolConfig {
	if p.DefaultThreads > 0 && p.FrameThreads > 0 && p.BackgroundThreads > 0 && p.AsyncWorkers > 0 {
		return p
	}

	n := runtime.GOMAXPROCS(0)
	out := p
	if out.DefaultThreads <= 0 {
		out.DefaultThreads = n
	}
	if out.FrameThreads <= 0 {
		out.FrameThreads = max(1, n/2)
	}
	if out.BackgroundThreads <= 0 {
		out.BackgroundThreads = 1
	}
	if out.AsyncWorkers <= 0 {
		out.AsyncWorkers = clamp(n, 1, 4)
	}
	return out
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// MailboxConfig holds a default channel-endpoint buffer size. Nothing in the
// kernel reads it: Registry.Load registers every plugin through a
// FuncEndpoint, which has no buffer.
type MailboxConfig struct {
	DefaultEndpointBuffer int `yaml:"default_endpoint_buffer" env:"LUNARIS_MAILBOX_BUFFER" env-default:"64"`
}

// ServiceConfig toggles the optional Docker-backed sidecar services, the
// same enable/disable shape the kernel's native ServiceConfig exposes.
type ServiceConfig struct {
	EnableAssetCache  bool `yaml:"enable_asset_cache" env:"LUNARIS_ENABLE_ASSET_CACHE" env-default:"false"`
	EnableRenderProxy bool `yaml:"enable_render_proxy" env:"LUNARIS_ENABLE_RENDER_PROXY" env-default:"false"`
}

// AdminConfig configures the HTTP/WS admin surface.
type AdminConfig struct {
	Enabled  bool   `yaml:"enabled" env:"LUNARIS_ADMIN_ENABLED" env-default:"true"`
	HostAddr string `yaml:"host" env:"LUNARIS_ADMIN_HOST" env-default:"127.0.0.1"`
	HostPort string `yaml:"port" env:"LUNARIS_ADMIN_PORT" env-default:"7890"`
}

// Addr returns the admin surface's listen address.
func (a AdminConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.HostAddr, a.HostPort)
}

// Load reads configuration from environment variables only, applying
// every env-default above.
func Load() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: failed to load from environment: %w", err)
	}
	return &cfg, nil
}

// LoadFromFile reads configuration from a YAML file, falling back to
// environment variables and defaults for anything the file omits.
func LoadFromFile(path string) (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to load %s: %w", path, err)
	}
	return &cfg, nil
}
