package dedup

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWindow_AddAndContains(t *testing.T) {
	w := NewWindow(3)

	assert.True(t, w.Add("a"), "first insert should report new")
	assert.False(t, w.Add("a"), "repeat insert should report seen")
	assert.True(t, w.Contains("a"))
	assert.False(t, w.Contains("b"))
	assert.Equal(t, 1, w.Len())
}

func TestWindow_EvictsOldestAtCap(t *testing.T) {
	w := NewWindow(3)

	w.Add("a")
	w.Add("b")
	w.Add("c")
	w.Add("d")

	assert.Equal(t, 3, w.Len())
	assert.False(t, w.Contains("a"), "oldest entry should be evicted")
	assert.True(t, w.Contains("b"))
	assert.True(t, w.Contains("d"))
}

func TestWindow_TouchRefreshesPosition(t *testing.T) {
	w := NewWindow(3)

	w.Add("a")
	w.Add("b")
	w.Add("c")

	// Touching "a" makes "b" the oldest entry.
	assert.True(t, w.Contains("a"))

	w.Add("d")

	assert.True(t, w.Contains("a"), "recently touched entry should survive eviction")
	assert.False(t, w.Contains("b"))
}

func TestWindow_Remove(t *testing.T) {
	w := NewWindow(3)

	w.Add("a")
	w.Remove("a")
	w.Remove("a") // idempotent

	assert.False(t, w.Contains("a"))
	assert.Equal(t, 0, w.Len())
	assert.True(t, w.Add("a"), "removed entry should insert as new")
}

func TestWindow_MinimumCapacity(t *testing.T) {
	w := NewWindow(0)

	assert.Equal(t, 1, w.Cap())

	w.Add("a")
	w.Add("b")

	assert.Equal(t, 1, w.Len())
	assert.True(t, w.Contains("b"))
}

func TestWindow_NewestOrdersByRecency(t *testing.T) {
	w := NewWindow(5)

	w.Add("a")
	w.Add("b")
	w.Add("c")
	w.Add("a") // touch

	assert.Equal(t, []string{"a", "c", "b"}, w.Newest(3))
	assert.Equal(t, []string{"a", "c"}, w.Newest(2))
	assert.Equal(t, []string{"a", "c", "b"}, w.Newest(10), "n beyond size returns everything")
	assert.Empty(t, w.Newest(0))
}

func TestWindow_SizeNeverExceedsCap(t *testing.T) {
	w := NewWindow(100)

	for i := 0; i < 500; i++ {
		w.Add(fmt.Sprintf("id-%d", i))
		assert.LessOrEqual(t, w.Len(), 100)
	}

	assert.Equal(t, 100, w.Len())
}
