package pool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnboundedQueue_PushTryPopOrder(t *testing.T) {
	q := newUnboundedQueue[int]()
	assert.True(t, q.Empty())

	q.Push(1)
	q.Push(2)
	q.Push(3)
	assert.False(t, q.Empty())

	for _, want := range []int{1, 2, 3} {
		got, ok := q.TryPop()
		assert.True(t, ok)
		assert.Equal(t, want, got)
	}

	_, ok := q.TryPop()
	assert.False(t, ok)
}

func TestUnboundedQueue_Drain(t *testing.T) {
	q := newUnboundedQueue[string]()
	q.Push("a")
	q.Push("b")

	items := q.Drain()
	assert.Equal(t, []string{"a", "b"}, items)
	assert.True(t, q.Empty())
}

func TestUnboundedQueue_CloseDropsFuturePushes(t *testing.T) {
	q := newUnboundedQueue[int]()
	q.Push(1)
	q.Close()
	q.Push(2)

	items := q.Drain()
	assert.Equal(t, []int{1}, items)
}

func TestUnboundedQueue_PushFromGoroutineThenPop(t *testing.T) {
	q := newUnboundedQueue[int]()
	const n = 500

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			q.Push(i)
		}
	}()
	wg.Wait()

	seen := 0
	for {
		_, ok := q.TryPop()
		if !ok {
			break
		}
		seen++
	}
	assert.Equal(t, n, seen)
}
