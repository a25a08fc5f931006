package chain

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spacedata/sdchain/block"
	"github.com/spacedata/sdchain/db"
	"github.com/spacedata/sdchain/events"
	"github.com/spacedata/sdchain/mempool"
	"github.com/spacedata/sdchain/pow"
	"github.com/spacedata/sdchain/store"
	"github.com/spacedata/sdchain/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChain(t *testing.T, difficulty int, opts ...Option) *Chain {
	t.Helper()
	engine, err := pow.NewEngine(pow.Config{Difficulty: difficulty})
	require.NoError(t, err)
	c, err := New(append([]Option{WithEngine(engine)}, opts...)...)
	require.NoError(t, err)
	return c
}

func newMemStore(t *testing.T) store.BlockStore {
	t.Helper()
	p, err := db.NewMemLevelDBProvider()
	require.NoError(t, err)
	s, err := store.NewGenericBlockStore(p, 8)
	require.NoError(t, err)
	t.Cleanup(s.MustClose)
	return s
}

func TestNewChainStartsWithGenesis(t *testing.T) {
	c := newTestChain(t, 2)

	assert.Equal(t, 1, c.Len())
	last, err := c.LastBlock()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), last.Index)
	assert.Equal(t, "0", last.PreviousHash)
	assert.Equal(t, uint64(100), last.Proof)
	assert.Empty(t, last.Data)
	assert.Empty(t, c.Pending())
	assert.NoError(t, c.Validate())
}

func TestAppendCommitsPendingEntries(t *testing.T) {
	c := newTestChain(t, 4)
	for _, s := range []string{"A", "B", "C"} {
		require.NoError(t, c.AddEntry(types.MustEntry(s)))
	}
	assert.Equal(t, 3, c.PendingLen())

	genesis, err := c.Block(1)
	require.NoError(t, err)
	genesisHash, err := c.Hash(genesis)
	require.NoError(t, err)

	proof, err := c.Engine().Solve(context.Background(), genesis.Proof)
	require.NoError(t, err)
	assert.Equal(t, uint64(35293), proof)

	blk, err := c.Append(proof, "")
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, uint64(2), blk.Index)
	assert.Equal(t, genesisHash, blk.PreviousHash)
	assert.Equal(t, []types.Entry{types.MustEntry("A"), types.MustEntry("B"), types.MustEntry("C")}, blk.Data)
	assert.Empty(t, c.Pending())

	last, err := c.LastBlock()
	require.NoError(t, err)
	assert.Equal(t, blk, last)
}

func TestAppendWithExplicitPreviousHash(t *testing.T) {
	c := newTestChain(t, 2)
	lastHash, err := c.LastHash()
	require.NoError(t, err)
	proof, err := c.Engine().Solve(context.Background(), block.GenesisProof)
	require.NoError(t, err)

	blk, err := c.Append(proof, lastHash)
	require.NoError(t, err)
	assert.Equal(t, lastHash, blk.PreviousHash)
	assert.Empty(t, blk.Data)
}

func TestAppendRejectsInvalidProof(t *testing.T) {
	c := newTestChain(t, 4)
	require.NoError(t, c.AddEntry(types.MustEntry("A")))

	_, err := c.Append(0, "")
	assert.ErrorIs(t, err, ErrInvalidProof)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 1, c.PendingLen(), "rejected append keeps pending entries")
}

func TestAppendRejectsForeignPreviousHash(t *testing.T) {
	c := newTestChain(t, 4)
	require.NoError(t, c.AddEntry(types.MustEntry("A")))

	_, err := c.Append(35293, "deadbeef")
	assert.ErrorIs(t, err, ErrPrevHashMismatch)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 1, c.PendingLen())
}

func TestMineKeepsChainLinked(t *testing.T) {
	c := newTestChain(t, 2)
	for i := 0; i < 4; i++ {
		require.NoError(t, c.AddData(map[string]interface{}{"n": i}))
		_, err := c.Mine(context.Background())
		require.NoError(t, err)
	}

	blocks := c.Blocks()
	require.Len(t, blocks, 5)
	for i := 1; i < len(blocks); i++ {
		prevHash, err := blocks[i-1].Hash()
		require.NoError(t, err)
		assert.Equal(t, prevHash, blocks[i].PreviousHash)
		assert.Equal(t, uint64(i+1), blocks[i].Index)
		assert.True(t, pow.Valid(blocks[i-1].Proof, blocks[i].Proof, 2))
	}
	assert.NoError(t, c.Validate())
}

func TestBlocksReturnsCopies(t *testing.T) {
	c := newTestChain(t, 2)
	blocks := c.Blocks()
	blocks[0].Proof = 1

	genesis, err := c.Block(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), genesis.Proof)
}

func TestBlockNotFound(t *testing.T) {
	c := newTestChain(t, 2)
	_, err := c.Block(0)
	assert.ErrorIs(t, err, ErrBlockNotFound)
	_, err = c.Block(2)
	assert.ErrorIs(t, err, ErrBlockNotFound)
}

func TestMineHonoursCancellation(t *testing.T) {
	c := newTestChain(t, 20)
	require.NoError(t, c.AddEntry(types.MustEntry("A")))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Mine(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	var searchErr *pow.SearchError
	assert.True(t, errors.As(err, &searchErr))
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 1, c.PendingLen())
}

func TestConcurrentMiners(t *testing.T) {
	c := newTestChain(t, 2)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, c.AddData(i))
			_, err := c.Mine(context.Background())
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 5, c.Len())
	assert.NoError(t, c.Validate())

	total := 0
	for _, b := range c.Blocks() {
		total += len(b.Data)
	}
	assert.Equal(t, 4, total, "every entry lands in exactly one block")
}

func TestMempoolCapacity(t *testing.T) {
	c := newTestChain(t, 2, WithMempool(mempool.NewMempool(1)))
	require.NoError(t, c.AddEntry(types.MustEntry("A")))
	assert.ErrorIs(t, c.AddEntry(types.MustEntry("B")), mempool.ErrMempoolFull)
}

func TestAddDataRejectsUnencodable(t *testing.T) {
	c := newTestChain(t, 2)
	assert.Error(t, c.AddData(make(chan int)))
	assert.Equal(t, 0, c.PendingLen())
}

func TestAddEntryRejectsInvalidJSON(t *testing.T) {
	c := newTestChain(t, 2)
	require.NoError(t, c.AddEntry(types.MustEntry("ok")))

	for _, bad := range []types.Entry{types.Entry("not json"), nil, types.Entry(""), types.Entry(`{"a":1} 2`)} {
		assert.ErrorIs(t, c.AddEntry(bad), ErrInvalidEntry, "entry %q", string(bad))
	}
	assert.Equal(t, 1, c.PendingLen())

	blk, err := c.Mine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []types.Entry{types.MustEntry("ok")}, blk.Data)
	assert.Equal(t, 0, c.PendingLen())
	assert.NoError(t, c.Validate())
}

func TestAddEntryStoresCanonicalForm(t *testing.T) {
	c := newTestChain(t, 2)
	require.NoError(t, c.AddEntry(types.Entry(`{ "b": 1, "a": [ 2 ] }`)))
	assert.Equal(t, `{"a":[2],"b":1}`, c.Pending()[0].String())
}

func TestWork(t *testing.T) {
	c := newTestChain(t, 2)
	assert.True(t, c.Work().IsZero())

	for i := 0; i < 2; i++ {
		_, err := c.Mine(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, uint64(512), c.Work().Uint64())
}

func TestReloadFromStore(t *testing.T) {
	bs := newMemStore(t)
	c := newTestChain(t, 2, WithStore(bs))
	require.NoError(t, c.AddEntry(types.MustEntry("A")))
	_, err := c.Mine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), bs.LatestIndex())

	reloaded := newTestChain(t, 2, WithStore(bs))
	assert.Equal(t, c.Blocks(), reloaded.Blocks())
	assert.Empty(t, reloaded.Pending())
}

func TestReloadRejectsCorruptStore(t *testing.T) {
	bs := newMemStore(t)
	genesis := block.Genesis()
	require.NoError(t, bs.SaveBlock(genesis))
	require.NoError(t, bs.SaveBlock(block.Assemble(2, nil, 1, "forged")))

	engine, err := pow.NewEngine(pow.Config{Difficulty: 2})
	require.NoError(t, err)
	_, err = New(WithEngine(engine), WithStore(bs))
	assert.ErrorIs(t, err, ErrCorruptStore)
}

type failingStore struct {
	store.BlockStore
	fail bool
}

func (f *failingStore) SaveBlock(b *block.Block) error {
	if f.fail {
		return errors.New("disk full")
	}
	return f.BlockStore.SaveBlock(b)
}

func TestFailedPersistRestoresPending(t *testing.T) {
	bs := &failingStore{BlockStore: newMemStore(t)}
	c := newTestChain(t, 2, WithStore(bs))
	require.NoError(t, c.AddEntry(types.MustEntry("A")))
	require.NoError(t, c.AddEntry(types.MustEntry("B")))

	bs.fail = true
	_, err := c.Mine(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, []types.Entry{types.MustEntry("A"), types.MustEntry("B")}, c.Pending())

	bs.fail = false
	blk, err := c.Mine(context.Background())
	require.NoError(t, err)
	assert.Len(t, blk.Data, 2)
}

func TestEventsPublished(t *testing.T) {
	bus := events.NewEventBus()
	_, ch := bus.Subscribe()
	c := newTestChain(t, 2, WithEventBus(bus))

	require.NoError(t, c.AddEntry(types.MustEntry("A")))
	blk, err := c.Mine(context.Background())
	require.NoError(t, err)

	added := (<-ch).(*events.EntryAdded)
	assert.Equal(t, uint64(2), added.BlockIndex())
	assert.Equal(t, types.MustEntry("A"), added.Entry())

	appended := (<-ch).(*events.BlockAppended)
	assert.Equal(t, blk.Index, appended.BlockIndex())
	assert.Equal(t, blk.Proof, appended.Proof())
	assert.Equal(t, 1, appended.EntryCount())
}
