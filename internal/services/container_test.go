package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContainerStatus_String(t *testing.T) {
	assert.Equal(t, "INIT", INIT.String())
	assert.Equal(t, "UP", UP.String())
	assert.Equal(t, "DEAD", DEAD.String())
}

func TestContainer_CloseOnAlreadyDeadIsNoop(t *testing.T) {
	c := &container{label: "x", status: DEAD}
	require.NoError(t, c.Close(nil, nil, 0))
	assert.Equal(t, DEAD, c.Status())
}

func TestContainer_StringFormatsLabelAndShortID(t *testing.T) {
	c := &container{label: "asset-cache"}
	assert.Equal(t, "asset-cache[...]", c.String())

	c.containerID = "abcdefghijklmnop"
	assert.Equal(t, "asset-cache[abcdefghij]", c.String())
}

func TestContainer_CanStopAndCanRemoveTransitions(t *testing.T) {
	c := &container{status: CREATED}
	assert.True(t, c.canStop())
	assert.True(t, c.canRemove())

	c.status = DOWN
	assert.False(t, c.canStop())
	assert.True(t, c.canRemove())

	c.status = INIT
	assert.False(t, c.canStop())
	assert.False(t, c.canRemove())
}

func TestContainer_SetStatusPublishesAndIgnoresAfterDead(t *testing.T) {
	c := &container{label: "x", status: UP, statusCh: make(chan ContainerStatus, 2)}
	c.setStatus(CLOSING)
	c.setStatus(DEAD)

	assert.Equal(t, CLOSING, <-c.statusCh)
	assert.Equal(t, DEAD, <-c.statusCh)

	c.setStatus(UP)
	select {
	case <-c.statusCh:
		t.Fatal("setStatus should be a no-op once status is DEAD")
	default:
	}
}
