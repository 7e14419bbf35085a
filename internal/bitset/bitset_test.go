package bitset

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetIdempotent(t *testing.T) {
	b := New(10)
	b.Set(3, true)
	assert.Equal(t, 1, b.Count())
	b.Set(3, true)
	assert.Equal(t, 1, b.Count(), "re-setting an already-set bit must not bump the counter")
}

func TestClearIdempotent(t *testing.T) {
	b := New(10)
	b.Set(3, false)
	assert.Equal(t, 0, b.Count())
}

func TestIsComplete(t *testing.T) {
	b := New(3)
	assert.False(t, b.IsComplete())
	b.Set(0, true)
	b.Set(1, true)
	assert.False(t, b.IsComplete())
	b.Set(2, true)
	assert.True(t, b.IsComplete())
}

func TestPercentCapsBelow100UntilComplete(t *testing.T) {
	b := New(3)
	b.Set(0, true)
	b.Set(1, true)
	// 2/3 = 66
	assert.Equal(t, 66, b.Percent())
	b.Set(2, true)
	assert.Equal(t, 100, b.Percent())
}

func TestPercentNeverRoundsTo100Early(t *testing.T) {
	b := New(100)
	for i := 0; i < 99; i++ {
		b.Set(i, true)
	}
	assert.Equal(t, 99, b.Percent())
	b.Set(99, true)
	assert.Equal(t, 100, b.Percent())
}

func TestGetOutOfBackingDefaultsClear(t *testing.T) {
	b := New(1)
	assert.False(t, b.Get(100))
}

func TestString(t *testing.T) {
	b := New(4)
	b.Set(0, true)
	b.Set(2, true)
	assert.Equal(t, "1010", b.String())
}
