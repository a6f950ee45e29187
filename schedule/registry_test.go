package schedule_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"tripbased.dev/core/schedule"
)

func TestRegistryCurrentReturnsInitialSnapshot(t *testing.T) {
	initial := schedule.Snapshot{Transfers: "v0"}
	reg := schedule.NewRegistry(initial)
	require.Equal(t, "v0", reg.Current().Transfers)
}

func TestRegistrySwapReturnsPreviousSnapshot(t *testing.T) {
	reg := schedule.NewRegistry(schedule.Snapshot{Transfers: "v0"})
	prev := reg.Swap(schedule.Snapshot{Transfers: "v1"})
	require.Equal(t, "v0", prev.Transfers)
	require.Equal(t, "v1", reg.Current().Transfers)
}

// Concurrent readers must never observe a torn (half-swapped) snapshot: every
// Current() call returns one of the fully-formed generations installed by
// Swap, never a zero-value or mixed one.
func TestRegistrySwapIsAtomicUnderConcurrentReaders(t *testing.T) {
	reg := schedule.NewRegistry(schedule.Snapshot{Transfers: 0})

	const generations = 200
	var wg sync.WaitGroup
	done := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(done)
		for i := 1; i <= generations; i++ {
			reg.Swap(schedule.Snapshot{Transfers: i})
		}
	}()

	seen := make(chan int, 1000)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					gen, ok := reg.Current().Transfers.(int)
					require.True(t, ok, "snapshot must always be a fully-formed generation")
					select {
					case seen <- gen:
					default:
					}
				}
			}
		}()
	}

	wg.Wait()
	close(seen)
	for gen := range seen {
		require.GreaterOrEqual(t, gen, 0)
		require.LessOrEqual(t, gen, generations)
	}
}
