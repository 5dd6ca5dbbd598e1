package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSetGet_RoundTrips(t *testing.T) {
	c := New(time.Minute)
	c.Set("k", "v")

	got, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", got)
}

func TestGet_MissingKey(t *testing.T) {
	c := New(time.Minute)
	_, ok := c.Get("missing")
	assert.False(t, ok)
}

func TestGet_ExpiredEntryIsEvicted(t *testing.T) {
	c := New(5 * time.Millisecond)
	c.Set("k", "v")

	time.Sleep(15 * time.Millisecond)

	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestDelete_RemovesEntry(t *testing.T) {
	c := New(time.Minute)
	c.Set("k", "v")
	c.Delete("k")

	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestClear_RemovesEverything(t *testing.T) {
	c := New(time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Clear()

	_, okA := c.Get("a")
	_, okB := c.Get("b")
	assert.False(t, okA)
	assert.False(t, okB)
}
