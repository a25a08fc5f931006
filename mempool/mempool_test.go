package mempool

import (
	"fmt"
	"sync"
	"testing"

	"github.com/spacedata/sdchain/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddKeepsInsertionOrder(t *testing.T) {
	mp := NewMempool(0)
	for _, s := range []string{"A", "B", "A"} {
		require.NoError(t, mp.Add(types.MustEntry(s)))
	}
	assert.Equal(t, 3, mp.Len())

	got := mp.Snapshot()
	assert.Equal(t, []types.Entry{types.MustEntry("A"), types.MustEntry("B"), types.MustEntry("A")}, got)
	assert.Equal(t, 3, mp.Len(), "snapshot must not remove entries")
}

func TestDrainEmptiesMempool(t *testing.T) {
	mp := NewMempool(0)
	require.NoError(t, mp.Add(types.MustEntry("A")))
	require.NoError(t, mp.Add(types.MustEntry("B")))

	drained := mp.Drain()
	assert.Len(t, drained, 2)
	assert.Equal(t, 0, mp.Len())
	assert.Empty(t, mp.Drain())
}

func TestCapAppliesBackpressure(t *testing.T) {
	mp := NewMempool(2)
	require.NoError(t, mp.Add(types.MustEntry(1)))
	require.NoError(t, mp.Add(types.MustEntry(2)))
	assert.ErrorIs(t, mp.Add(types.MustEntry(3)), ErrMempoolFull)
	assert.Equal(t, 2, mp.Cap())

	mp.Drain()
	assert.NoError(t, mp.Add(types.MustEntry(3)))
}

func TestRestorePrependsDrainedEntries(t *testing.T) {
	mp := NewMempool(2)
	require.NoError(t, mp.Add(types.MustEntry("A")))
	require.NoError(t, mp.Add(types.MustEntry("B")))
	drained := mp.Drain()

	require.NoError(t, mp.Add(types.MustEntry("C")))
	mp.Restore(drained)

	assert.Equal(t, []types.Entry{types.MustEntry("A"), types.MustEntry("B"), types.MustEntry("C")}, mp.Snapshot())
	assert.Equal(t, 3, mp.Len())
}

func TestConcurrentAdd(t *testing.T) {
	mp := NewMempool(0)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_ = mp.Add(types.MustEntry(fmt.Sprintf("%d-%d", w, i)))
			}
		}(w)
	}
	wg.Wait()
	assert.Equal(t, 800, mp.Len())
}
