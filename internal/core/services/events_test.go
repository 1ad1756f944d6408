package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcaster_FansOutToEverySubscriber(t *testing.T) {
	b := newBroadcaster[int]()
	a, cancelA := b.Subscribe(4)
	c, cancelC := b.Subscribe(4)
	defer cancelA()
	defer cancelC()

	b.Publish(1)
	b.Publish(2)

	assert.Equal(t, 1, <-a)
	assert.Equal(t, 2, <-a)
	assert.Equal(t, 1, <-c)
	assert.Equal(t, 2, <-c)
}

func TestBroadcaster_FullBufferKeepsNewest(t *testing.T) {
	b := newBroadcaster[int]()
	ch, cancel := b.Subscribe(1)
	defer cancel()

	for i := 1; i <= 5; i++ {
		b.Publish(i)
	}

	assert.Equal(t, 5, <-ch)
	select {
	case v := <-ch:
		t.Fatalf("unexpected extra value %d", v)
	default:
	}
}

func TestBroadcaster_CancelClosesOnlyThatChannel(t *testing.T) {
	b := newBroadcaster[string]()
	gone, cancel := b.Subscribe(1)
	kept, keepCancel := b.Subscribe(1)
	defer keepCancel()

	cancel()
	cancel()

	_, ok := <-gone
	assert.False(t, ok)

	b.Publish("still here")
	assert.Equal(t, "still here", <-kept)
}

func TestBroadcaster_Close(t *testing.T) {
	b := newBroadcaster[int]()
	ch, cancel := b.Subscribe(1)

	b.Close()
	b.Close()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)

	late, _ := b.Subscribe(1)
	_, ok = <-late
	require.False(t, ok, "subscriptions after Close get a closed channel")

	assert.NotPanics(t, func() { b.Publish(1) })
}
