package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueOrder(t *testing.T) {
	q := NewQueue(nil, nil)
	done := make(chan struct{})
	go func() { q.Run(); close(done) }()

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		require.True(t, q.Post(func() { got = append(got, i) }))
	}
	q.Close()
	<-done

	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestQueuePanic(t *testing.T) {
	var mu sync.Mutex
	var panics []any
	after := 0
	q := NewQueue(func(v any) { mu.Lock(); panics = append(panics, v); mu.Unlock() }, func() { after++ })
	done := make(chan struct{})
	go func() { q.Run(); close(done) }()

	ran := false
	q.Post(func() { panic("boom") })
	q.Post(func() { ran = true })
	q.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("queue is stuck")
	}
	assert.True(t, ran, "items after a panic should run")
	assert.Equal(t, []any{"boom"}, panics)
	assert.Equal(t, 2, after)
}

func TestQueueClosed(t *testing.T) {
	q := NewQueue(nil, nil)
	q.Post(func() {})
	q.Close()
	assert.False(t, q.Post(func() {}))
	assert.Equal(t, 1, q.Len())

	done := make(chan struct{})
	go func() { q.Run(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("closed queue should drain and stop")
	}
	assert.Zero(t, q.Len())
}

func TestQueueConcurrentPost(t *testing.T) {
	q := NewQueue(nil, nil)
	done := make(chan struct{})
	go func() { q.Run(); close(done) }()

	var wg sync.WaitGroup
	n := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Post(func() { n++ })
		}()
	}
	wg.Wait()
	q.Close()
	<-done
	assert.Equal(t, 50, n)
}
