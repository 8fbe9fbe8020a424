package ioengine_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hermes-go/hermes/ioengine"
	"github.com/stretchr/testify/require"
)

func TestIoEngine_RunIdempotent(t *testing.T) {
	e, err := ioengine.New()
	require.NoError(t, err)
	e.Run()
	e.Run()
	defer e.Stop()

	var n atomic.Int32
	var wg sync.WaitGroup
	wg.Add(1)
	e.Post(func() {
		n.Add(1)
		wg.Done()
	})
	wg.Wait()
	require.Equal(t, int32(1), n.Load())
}

func TestIoEngine_PostSerialized_OrderedAndExclusive(t *testing.T) {
	e, err := ioengine.New(ioengine.WithWorkers(4))
	require.NoError(t, err)
	e.Run()
	defer e.Stop()

	var mu sync.Mutex
	var order []int
	var active atomic.Int32
	var overlapped atomic.Bool
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.PostSerialized(func() {
				if active.Add(1) > 1 {
					overlapped.Store(true)
				}
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				time.Sleep(100 * time.Microsecond)
				active.Add(-1)
			})
		}()
	}
	wg.Wait()
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	require.Len(t, order, 50)
	require.False(t, overlapped.Load())
	order = nil
	mu.Unlock()

	// Items posted one after another from a single goroutine run in that
	// order.
	want := make([]int, 50)
	for i := 0; i < 50; i++ {
		i := i
		want[i] = i
		e.PostSerialized(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, want, order)
}

func TestIoEngine_Stop_IsIdempotentAndDiscardsPost(t *testing.T) {
	e, err := ioengine.New()
	require.NoError(t, err)
	e.Run()
	e.Stop()
	e.Stop()
	require.True(t, e.IsStopped())

	var called atomic.Bool
	e.Post(func() { called.Store(true) })
	e.PostSerialized(func() { called.Store(true) })
	time.Sleep(10 * time.Millisecond)
	require.False(t, called.Load())
}

func TestIoEngine_KeepAlive_DelaysStop(t *testing.T) {
	e, err := ioengine.New()
	require.NoError(t, err)
	e.Run()

	release := e.KeepAlive()
	stopped := make(chan struct{})
	go func() {
		e.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned before keepalive released")
	case <-time.After(20 * time.Millisecond):
	}
	release()
	<-stopped
}
