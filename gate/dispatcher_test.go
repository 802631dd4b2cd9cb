package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDispatcherOnEmit(t *testing.T) {
	d := NewDispatcher()

	var calls []string
	d.On("a", func(messageType string, payload []byte) {
		calls = append(calls, "a:"+string(payload))
	})
	d.On("b", func(messageType string, payload []byte) {
		calls = append(calls, "b:"+string(payload))
	})

	d.Emit("a", []byte("one"))
	d.Emit("b", []byte("two"))
	d.Emit("c", []byte("dropped"))

	assert.Equal(t, []string{"a:one", "b:two"}, calls)
}

func TestDispatcherWildcard(t *testing.T) {
	d := NewDispatcher()

	var typed, wild int
	d.On("a", func(string, []byte) { typed++ })
	d.On(Wildcard, func(string, []byte) { wild++ })

	d.Emit("a", nil)
	d.Emit("b", nil)

	assert.Equal(t, 1, typed)
	assert.Equal(t, 2, wild)
}

func TestDispatcherPanicContained(t *testing.T) {
	d := NewDispatcher()

	var after bool
	d.On("a", func(string, []byte) { panic("boom") })
	d.On("a", func(string, []byte) { after = true })

	assert.NotPanics(t, func() { d.Emit("a", nil) })
	assert.True(t, after)
}

func TestDispatcherOff(t *testing.T) {
	d := NewDispatcher()

	var first, second int
	one := func(string, []byte) { first++ }
	two := func(string, []byte) { second++ }
	d.On("a", one)
	d.On("a", two)

	d.Emit("a", nil)
	d.Off("a", one)
	d.Emit("a", nil)

	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)

	d.Off("a", two)
	d.Off("a", two)
	d.Emit("a", nil)
	assert.Equal(t, 2, second)
}

func TestDispatcherOffWildcard(t *testing.T) {
	d := NewDispatcher()

	var wild int
	h := func(string, []byte) { wild++ }
	d.On(Wildcard, h)
	d.Emit("a", nil)
	d.Off(Wildcard, h)
	d.Emit("a", nil)

	assert.Equal(t, 1, wild)
}

func TestDispatcherClear(t *testing.T) {
	d := NewDispatcher()

	var calls int
	d.On("a", func(string, []byte) { calls++ })
	d.Emit("a", nil)
	d.Clear()
	d.Emit("a", nil)

	assert.Equal(t, 1, calls)
}

func TestDispatcherNilHandlerIgnored(t *testing.T) {
	d := NewDispatcher()
	d.On("a", nil)
	assert.NotPanics(t, func() { d.Emit("a", nil) })
}
