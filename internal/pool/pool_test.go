// Package pool provides unit tests for the worker pools.
package pool

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// contractPools returns a constructor per pool kind so the shared
// behavior is exercised against every implementation.
func contractPools() map[string]func(n int) (Pool, error) {
	return map[string]func(n int) (Pool, error){
		KindNaive:       func(n int) (Pool, error) { return NewNaive(n) },
		KindSharedQueue: func(n int) (Pool, error) { return NewSharedQueue(n) },
		KindGroup:       func(n int) (Pool, error) { return NewGroup(n) },
	}
}

func TestPool_RunsAllJobs(t *testing.T) {
	for name, build := range contractPools() {
		t.Run(name, func(t *testing.T) {
			p, err := build(4)
			require.NoError(t, err)

			var counter atomic.Int64
			jobs := 100
			for i := 0; i < jobs; i++ {
				p.Spawn(func() {
					counter.Add(1)
				})
			}
			p.Shutdown()

			require.Equal(t, int64(jobs), counter.Load())
		})
	}
}

func TestPool_PanicIsolation(t *testing.T) {
	for name, build := range contractPools() {
		t.Run(name, func(t *testing.T) {
			p, err := build(2)
			require.NoError(t, err)

			var counter atomic.Int64
			for i := 0; i < 10; i++ {
				p.Spawn(func() {
					panic("job blew up")
				})
				p.Spawn(func() {
					counter.Add(1)
				})
			}
			p.Shutdown()

			// Workers survive panicking jobs and keep draining the queue.
			require.Equal(t, int64(10), counter.Load())
		})
	}
}

func TestPool_InvalidWorkerCount(t *testing.T) {
	for name, build := range contractPools() {
		t.Run(name, func(t *testing.T) {
			_, err := build(0)
			require.ErrorIs(t, err, ErrBuild)
		})
	}
}

func TestPool_ConcurrentSpawn(t *testing.T) {
	for name, build := range contractPools() {
		t.Run(name, func(t *testing.T) {
			p, err := build(4)
			require.NoError(t, err)

			var counter atomic.Int64
			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for j := 0; j < 50; j++ {
						p.Spawn(func() {
							counter.Add(1)
						})
					}
				}()
			}
			wg.Wait()
			p.Shutdown()

			require.Equal(t, int64(400), counter.Load())
		})
	}
}

func TestNew_Dispatch(t *testing.T) {
	p, err := New(KindSharedQueue, 2)
	require.NoError(t, err)
	require.IsType(t, &SharedQueue{}, p)
	p.Shutdown()

	_, err = New("rayon", 2)
	require.ErrorIs(t, err, ErrBuild)
}

func TestSharedQueue_SpawnAfterShutdown(t *testing.T) {
	p, err := NewSharedQueue(2)
	require.NoError(t, err)
	p.Shutdown()

	// Must not panic or deadlock.
	p.Spawn(func() {})
	p.Shutdown()
}
