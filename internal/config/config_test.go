package config_test

import (
	"testing"

	"github.com/shuntia/lunaris/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestPoolConfig_ResolvedFillsZeroFields(t *testing.T) {
	resolved := config.PoolConfig{}.Resolved()

	assert.Greater(t, resolved.DefaultThreads, 0)
	assert.Greater(t, resolved.FrameThreads, 0)
	assert.Equal(t, 1, resolved.BackgroundThreads)
	assert.GreaterOrEqual(t, resolved.AsyncWorkers, 1)
	assert.LessOrEqual(t, resolved.AsyncWorkers, 4)
}

func TestPoolConfig_ResolvedPreservesExplicitValues(t *testing.T) {
	explicit := config.PoolConfig{
		DefaultThreads:    8,
		FrameThreads:      4,
		BackgroundThreads: 2,
		AsyncWorkers:      3,
	}

	assert.Equal(t, explicit, explicit.Resolved())
}

func TestAdminConfig_Addr(t *testing.T) {
	a := config.AdminConfig{HostAddr: "0.0.0.0", HostPort: "9999"}
	assert.Equal(t, "0.0.0.0:9999", a.Addr())
}
