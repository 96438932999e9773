package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRing_PushUnderCapacity(t *testing.T) {
	r := NewRing[int](3)
	assert.False(t, r.Push(1))
	assert.False(t, r.Push(2))

	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []int{1, 2}, r.Items())

	last, ok := r.Last()
	assert.True(t, ok)
	assert.Equal(t, 2, last)
}

func TestRing_EvictsOldest(t *testing.T) {
	r := NewRing[int](3)
	for i := 1; i <= 3; i++ {
		r.Push(i)
	}
	assert.True(t, r.Push(4))
	assert.True(t, r.Push(5))

	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []int{3, 4, 5}, r.Items())

	last, _ := r.Last()
	assert.Equal(t, 5, last)
}

func TestRing_Empty(t *testing.T) {
	r := NewRing[string](2)
	_, ok := r.Last()
	assert.False(t, ok)
	assert.Empty(t, r.Items())
}

func TestRing_MinimumCapacity(t *testing.T) {
	r := NewRing[int](0)
	assert.False(t, r.Push(1))
	assert.True(t, r.Push(2))
	assert.Equal(t, []int{2}, r.Items())
}

func TestRing_ItemsIsCopy(t *testing.T) {
	r := NewRing[int](2)
	r.Push(1)
	items := r.Items()
	items[0] = 99
	assert.Equal(t, []int{1}, r.Items())
}
