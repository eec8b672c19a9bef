package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerialRunsInOrder(t *testing.T) {
	q := NewSerial("order")
	defer q.Close()

	var mu sync.Mutex
	var got []int
	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		require.True(t, q.Push(func() {
			defer wg.Done()
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}))
	}
	wg.Wait()

	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestSerialTasksNeverOverlap(t *testing.T) {
	q := NewSerial("overlap")
	defer q.Close()

	var running, maxRunning int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		q.Push(func() {
			defer wg.Done()
			mu.Lock()
			running++
			if running > maxRunning {
				maxRunning = running
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			running--
			mu.Unlock()
		})
	}
	wg.Wait()
	assert.Equal(t, 1, maxRunning)
}

func TestSerialRecoversPanics(t *testing.T) {
	q := NewSerial("panic")
	defer q.Close()

	ran := make(chan struct{})
	q.Push(func() { panic("render failed") })
	q.Push(func() { close(ran) })

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("task after panic did not run")
	}
}

func TestSerialCloseDiscardsPending(t *testing.T) {
	q := NewSerial("close")

	release := make(chan struct{})
	started := make(chan struct{})
	q.Push(func() {
		close(started)
		<-release
	})
	<-started

	ranLate := false
	q.Push(func() { ranLate = true })
	assert.Equal(t, 1, q.Len())

	q.Close()
	close(release)
	require.NoError(t, q.Wait(context.Background()))

	assert.False(t, ranLate)
	assert.False(t, q.Push(func() {}))
}

func TestSerialWaitHonoursContext(t *testing.T) {
	q := NewSerial("ctx")
	defer q.Close()

	block := make(chan struct{})
	defer close(block)
	q.Push(func() { <-block })
	q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Wait(ctx), context.DeadlineExceeded)
}
