package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcaster_PublishDeliversToAllSubscribers(t *testing.T) {
	b := newBroadcaster[int]()
	a := b.subscribe()
	c := b.subscribe()

	b.publish(42)

	select {
	case v := <-a:
		assert.Equal(t, 42, v)
	case <-time.After(time.Second):
		t.Fatal("subscriber a never received the published value")
	}
	select {
	case v := <-c:
		assert.Equal(t, 42, v)
	case <-time.After(time.Second):
		t.Fatal("subscriber c never received the published value")
	}
}

func TestBroadcaster_UnsubscribeClosesChannel(t *testing.T) {
	b := newBroadcaster[int]()
	ch := b.subscribe()
	b.unsubscribe(ch)

	_, ok := <-ch
	require.False(t, ok)
}

func TestBroadcaster_PublishNeverBlocksOnFullSubscriber(t *testing.T) {
	b := newBroadcaster[int]()
	ch := b.subscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.publish(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow/full subscriber")
	}
	_ = ch
}
