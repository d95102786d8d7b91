package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypedBusPublishSubscribe(t *testing.T) {
	bus := NewTyped[string]()
	sub := bus.Subscribe()
	bus.Publish("hello")
	assert.Equal(t, "hello", <-sub.C)
	sub.Cancel()
	_, ok := <-sub.C
	assert.False(t, ok, "channel should be closed after Cancel")
}

func TestTypedBusClose(t *testing.T) {
	bus := NewTyped[int]()
	s1 := bus.Subscribe()
	s2 := bus.Subscribe()
	bus.Close()
	_, ok1 := <-s1.C
	_, ok2 := <-s2.C
	assert.False(t, ok1)
	assert.False(t, ok2)

	late := bus.Subscribe()
	_, ok := <-late.C
	assert.False(t, ok, "subscribing to a closed bus yields a closed channel")
}

func TestTypedBusCancelAfterClose(t *testing.T) {
	bus := NewTyped[float64]()
	sub := bus.Subscribe()
	bus.Close()
	assert.NotPanics(t, func() {
		sub.Cancel()
		sub.Cancel()
	})
}

func TestTypedBusDropsWhenFull(t *testing.T) {
	bus := NewTypedWithBuffer[int](1)
	sub := bus.Subscribe()
	bus.Publish(1)
	bus.Publish(2)
	assert.Equal(t, uint64(1), bus.Dropped())
	assert.Equal(t, 1, <-sub.C)
	sub.Cancel()
}
