package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/spacedata/sdchain/block"
	"github.com/spacedata/sdchain/events"
	"github.com/spacedata/sdchain/logx"
	"github.com/spacedata/sdchain/mempool"
	"github.com/spacedata/sdchain/monitoring"
	"github.com/spacedata/sdchain/pow"
	"github.com/spacedata/sdchain/store"
	"github.com/spacedata/sdchain/types"
	"github.com/spacedata/sdchain/validator"
)

var (
	ErrEmptyChain       = errors.New("chain has no blocks")
	ErrInvalidProof     = errors.New("proof does not satisfy the difficulty")
	ErrPrevHashMismatch = errors.New("previous hash does not match the last block")
	ErrBlockNotFound    = errors.New("block not found")
	ErrCorruptStore     = errors.New("stored chain failed validation")
	ErrInvalidEntry     = errors.New("entry is not a JSON value")
)

type Option func(*Chain)

// WithStore persists every appended block and reloads an existing chain at
// construction.
func WithStore(bs store.BlockStore) Option {
	return func(c *Chain) { c.store = bs }
}

func WithEventBus(bus *events.EventBus) Option {
	return func(c *Chain) { c.bus = bus }
}

func WithMempool(mp *mempool.Mempool) Option {
	return func(c *Chain) { c.pending = mp }
}

func WithEngine(engine *pow.Engine) Option {
	return func(c *Chain) { c.engine = engine }
}

// Chain is the ordered, hash-linked sequence of blocks together with the
// buffer of entries waiting for the next one. It only ever grows by Append.
type Chain struct {
	mu         sync.RWMutex
	blocks     []*block.Block
	hashes     []string
	lastAppend time.Time

	pending *mempool.Mempool
	engine  *pow.Engine
	store   store.BlockStore
	bus     *events.EventBus
}

// New creates a chain holding only the genesis block, or, when a store with
// blocks is attached, the stored chain after it passed validation.
func New(opts ...Option) (*Chain, error) {
	c := &Chain{}
	for _, opt := range opts {
		opt(c)
	}
	if c.pending == nil {
		c.pending = mempool.NewMempool(0)
	}
	if c.engine == nil {
		engine, err := pow.NewEngine(pow.DefaultConfig())
		if err != nil {
			return nil, err
		}
		c.engine = engine
	}

	if c.store != nil && c.store.LatestIndex() > 0 {
		if err := c.load(); err != nil {
			return nil, err
		}
	} else {
		genesis := block.Genesis()
		if c.store != nil {
			if err := c.store.SaveBlock(genesis); err != nil {
				return nil, fmt.Errorf("persist genesis block: %w", err)
			}
		}
		if err := c.push(genesis); err != nil {
			return nil, err
		}
		logx.Info("CHAIN", "Created chain with genesis block")
	}

	monitoring.SetBlockHeight(uint64(len(c.blocks)))
	monitoring.SetMempoolSize(c.pending.Len())
	return c, nil
}

func (c *Chain) load() error {
	blocks, err := c.store.LoadAll()
	if err != nil {
		return fmt.Errorf("load stored chain: %w", err)
	}
	if err := validator.Validate(blocks, c.engine.Difficulty()); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptStore, err)
	}
	for _, b := range blocks {
		if err := c.push(b); err != nil {
			return err
		}
	}
	logx.Info("CHAIN", fmt.Sprintf("Loaded %d blocks from store", len(blocks)))
	return nil
}

func (c *Chain) push(b *block.Block) error {
	h, err := b.Hash()
	if err != nil {
		return err
	}
	c.blocks = append(c.blocks, b)
	c.hashes = append(c.hashes, h)
	return nil
}

// Hash returns the content hash of b.
func (c *Chain) Hash(b *block.Block) (string, error) {
	if b == nil {
		return "", ErrEmptyChain
	}
	return b.Hash()
}

// AddEntry stages an entry for the next block. The entry is stored in its
// canonical form; anything that is not a single JSON value is refused so it
// can never block a later Append.
func (c *Chain) AddEntry(e types.Entry) error {
	e, err := types.CanonicalEntry(e)
	if err != nil {
		monitoring.RecordRejectedEntry(monitoring.EntryInvalid)
		return fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	if err := c.pending.Add(e); err != nil {
		if errors.Is(err, mempool.ErrMempoolFull) {
			monitoring.RecordRejectedEntry(monitoring.EntryMempoolFull)
		}
		return err
	}
	monitoring.IncreaseIngressEntryCount()
	monitoring.SetMempoolSize(c.pending.Len())

	if c.bus != nil {
		c.bus.Publish(events.NewEntryAdded(e, uint64(c.Len())+1))
	}
	return nil
}

// AddData encodes v and stages it.
func (c *Chain) AddData(v interface{}) error {
	e, err := types.NewEntry(v)
	if err != nil {
		monitoring.RecordRejectedEntry(monitoring.EntryInvalid)
		return err
	}
	return c.AddEntry(e)
}

// Append commits every pending entry into a new block carrying proof. An
// empty previousHash defaults to the hash of the last block; any other value
// must equal it. The pending buffer is empty afterwards.
func (c *Chain) Append(proof uint64, previousHash string) (*block.Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.blocks) == 0 {
		return nil, ErrEmptyChain
	}
	last := c.blocks[len(c.blocks)-1]
	lastHash := c.hashes[len(c.hashes)-1]

	if previousHash == "" {
		previousHash = lastHash
	} else if previousHash != lastHash {
		return nil, fmt.Errorf("%w: got %s, last block %d has %s", ErrPrevHashMismatch, previousHash, last.Index, lastHash)
	}
	if !c.engine.Valid(last.Proof, proof) {
		return nil, fmt.Errorf("%w: proof %d against previous proof %d", ErrInvalidProof, proof, last.Proof)
	}

	entries := c.pending.Drain()
	blk := block.Assemble(last.Index+1, entries, proof, previousHash)
	h, err := blk.Hash()
	if err != nil {
		c.pending.Restore(entries)
		return nil, err
	}
	if c.store != nil {
		if err := c.store.SaveBlock(blk); err != nil {
			c.pending.Restore(entries)
			return nil, fmt.Errorf("persist block %d: %w", blk.Index, err)
		}
	}

	c.blocks = append(c.blocks, blk)
	c.hashes = append(c.hashes, h)
	c.recordAppend(blk, h)

	return blk.Clone(), nil
}

func (c *Chain) recordAppend(blk *block.Block, hash string) {
	now := time.Now()
	if !c.lastAppend.IsZero() {
		monitoring.RecordBlockTime(now.Sub(c.lastAppend))
	}
	c.lastAppend = now

	monitoring.SetBlockHeight(blk.Index)
	monitoring.RecordBlockSizeBytes(blk.Size())
	monitoring.RecordEntriesInBlock(len(blk.Data))
	monitoring.SetMempoolSize(c.pending.Len())

	logx.Info("CHAIN", fmt.Sprintf("Appended block index=%d proof=%d entries=%d hash=%s", blk.Index, blk.Proof, len(blk.Data), hash))
	if c.bus != nil {
		c.bus.Publish(events.NewBlockAppended(blk.Index, hash, blk.Proof, len(blk.Data)))
	}
}

// Mine searches a proof for the current tip and appends the pending entries
// with it. When another writer extends the chain during the search, the
// search restarts on the new tip.
func (c *Chain) Mine(ctx context.Context) (*block.Block, error) {
	for {
		last, lastHash, err := c.tip()
		if err != nil {
			return nil, err
		}
		proof, err := c.engine.Solve(ctx, last.Proof)
		if err != nil {
			return nil, err
		}
		blk, err := c.Append(proof, lastHash)
		if errors.Is(err, ErrPrevHashMismatch) {
			logx.Debug("CHAIN", "Tip moved while mining block ", last.Index+1, ", retrying")
			continue
		}
		return blk, err
	}
}

func (c *Chain) tip() (*block.Block, string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.blocks) == 0 {
		return nil, "", ErrEmptyChain
	}
	return c.blocks[len(c.blocks)-1].Clone(), c.hashes[len(c.hashes)-1], nil
}

// LastBlock returns a copy of the tip.
func (c *Chain) LastBlock() (*block.Block, error) {
	last, _, err := c.tip()
	return last, err
}

// LastHash returns the hash of the tip.
func (c *Chain) LastHash() (string, error) {
	_, h, err := c.tip()
	return h, err
}

// Block returns a copy of the block with the given 1-based index.
func (c *Chain) Block(index uint64) (*block.Block, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if index == 0 || index > uint64(len(c.blocks)) {
		return nil, fmt.Errorf("%w: index %d", ErrBlockNotFound, index)
	}
	return c.blocks[index-1].Clone(), nil
}

// Blocks returns a copy of the whole chain.
func (c *Chain) Blocks() []*block.Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*block.Block, len(c.blocks))
	for i, b := range c.blocks {
		out[i] = b.Clone()
	}
	return out
}

func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blocks)
}

// Pending returns a copy of the entries waiting for the next block.
func (c *Chain) Pending() []types.Entry {
	return c.pending.Snapshot()
}

func (c *Chain) PendingLen() int {
	return c.pending.Len()
}

func (c *Chain) Difficulty() int {
	return c.engine.Difficulty()
}

func (c *Chain) Engine() *pow.Engine {
	return c.engine
}

// Validate re-checks the whole chain from genesis.
func (c *Chain) Validate() error {
	return validator.Validate(c.Blocks(), c.engine.Difficulty())
}

// Work is the expected number of hashes behind the chain: one proof per
// block after genesis at 16^difficulty each.
func (c *Chain) Work() *uint256.Int {
	n := c.Len() - 1
	if n <= 0 {
		return uint256.NewInt(0)
	}
	total, overflow := new(uint256.Int).MulOverflow(pow.Work(c.engine.Difficulty()), uint256.NewInt(uint64(n)))
	if overflow {
		return new(uint256.Int).SetAllOne()
	}
	return total
}
