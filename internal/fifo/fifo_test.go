package fifo

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueOrder(t *testing.T) {
	var q Queue[string]
	q.Push("a")
	q.Push("b")
	q.Push("c")

	require.Equal(t, 3, q.Len())
	for _, want := range []string{"a", "b", "c"} {
		got, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
	_, ok := q.Pop()
	assert.False(t, ok)
	assert.Equal(t, 0, q.Len())
}

func TestQueueCompactKeepsOrder(t *testing.T) {
	var q Queue[int]
	for i := range 200 {
		q.Push(i)
	}
	for i := range 150 {
		v, ok := q.Pop()
		require.True(t, ok)
		require.Equal(t, i, v)
	}
	q.Push(200)
	assert.Equal(t, 51, q.Len())
	assert.Equal(t, 150, q.Drain()[0])
	assert.Equal(t, 0, q.Len())
}

func TestQueueRemove(t *testing.T) {
	var q Queue[int]
	q.Push(1)
	q.Push(2)
	q.Push(3)

	assert.True(t, q.Remove(func(v int) bool { return v == 2 }))
	assert.False(t, q.Remove(func(v int) bool { return v == 7 }))
	assert.Equal(t, []int{1, 3}, q.Drain())
}

func TestQueueConcurrentPush(t *testing.T) {
	var q Queue[int]
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for j := range 100 {
				q.Push(base*100 + j)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 800, q.Len())
}
