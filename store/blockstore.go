package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/spacedata/sdchain/block"
	"github.com/spacedata/sdchain/db"
	"github.com/spacedata/sdchain/jsonx"
	"github.com/spacedata/sdchain/logx"
)

const DefaultCacheSize = 1024

var (
	ErrBlockNotFound = errors.New("block not found")
	ErrNonContiguous = errors.New("block index does not follow the stored chain")
)

// BlockStore persists an append-only chain of blocks keyed by index.
type BlockStore interface {
	Block(index uint64) (*block.Block, error)
	HasBlock(index uint64) bool
	LatestIndex() uint64
	SaveBlock(b *block.Block) error
	LoadAll() ([]*block.Block, error)
	MustClose()
}

// GenericBlockStore is a database-agnostic implementation over a
// db.DatabaseProvider, with an LRU cache of decoded blocks in front of it.
type GenericBlockStore struct {
	provider    db.DatabaseProvider
	txManager   *db.DBTxManager
	cache       *lru.Cache
	mu          sync.RWMutex
	latestIndex uint64
}

// NewGenericBlockStore creates a block store on provider. cacheSize <= 0
// selects DefaultCacheSize.
func NewGenericBlockStore(provider db.DatabaseProvider, cacheSize int) (*GenericBlockStore, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider cannot be nil")
	}
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create block cache: %w", err)
	}

	s := &GenericBlockStore{
		provider:  provider,
		txManager: db.NewDBTxManager(provider),
		cache:     cache,
	}

	if err := s.loadLatestIndex(); err != nil {
		return nil, fmt.Errorf("failed to load metadata: %w", err)
	}

	return s, nil
}

func latestIndexKey() []byte {
	return []byte(PrefixBlockMeta + BlockMetaKeyLatestIndex)
}

// indexToBlockKey converts a block index to its storage key
func indexToBlockKey(index uint64) []byte {
	key := make([]byte, len(PrefixBlock)+8)
	copy(key, PrefixBlock)
	binary.BigEndian.PutUint64(key[len(PrefixBlock):], index)
	return key
}

func encodeIndex(index uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, index)
	return buf
}

func (s *GenericBlockStore) loadLatestIndex() error {
	value, err := s.provider.Get(latestIndexKey())
	if err != nil {
		return fmt.Errorf("failed to get latest index: %w", err)
	}

	if value == nil {
		return s.recoverLatestIndex()
	}

	if len(value) != 8 {
		return fmt.Errorf("invalid latest index value length: %d", len(value))
	}

	s.latestIndex = binary.BigEndian.Uint64(value)
	return nil
}

// recoverLatestIndex rebuilds the height marker from the stored blocks when
// it is missing.
func (s *GenericBlockStore) recoverLatestIndex() error {
	var (
		latest  uint64
		scanErr error
	)
	err := s.provider.IteratePrefix([]byte(PrefixBlock), func(_, value []byte) bool {
		var blk block.Block
		if err := jsonx.Unmarshal(value, &blk); err != nil {
			scanErr = fmt.Errorf("failed to decode stored block: %w", err)
			return false
		}
		if blk.Index > latest {
			latest = blk.Index
		}
		return true
	})
	if err != nil {
		return fmt.Errorf("failed to scan blocks: %w", err)
	}
	if scanErr != nil {
		return scanErr
	}
	if latest == 0 {
		return nil
	}

	if err := s.provider.Put(latestIndexKey(), encodeIndex(latest)); err != nil {
		return fmt.Errorf("failed to restore latest index: %w", err)
	}
	logx.Warn("BLOCKSTORE", "Latest index marker was missing, recovered index ", latest)
	s.latestIndex = latest
	return nil
}

// Block retrieves a block by index
func (s *GenericBlockStore) Block(index uint64) (*block.Block, error) {
	if cached, ok := s.cache.Get(index); ok {
		return cached.(*block.Block).Clone(), nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	value, err := s.provider.Get(indexToBlockKey(index))
	if err != nil {
		return nil, fmt.Errorf("failed to get block %d: %w", index, err)
	}
	if value == nil {
		return nil, fmt.Errorf("%w: index %d", ErrBlockNotFound, index)
	}

	var blk block.Block
	if err := jsonx.Unmarshal(value, &blk); err != nil {
		return nil, fmt.Errorf("failed to unmarshal block %d: %w", index, err)
	}
	s.cache.Add(index, blk.Clone())

	return &blk, nil
}

// HasBlock checks if a block exists at the given index
func (s *GenericBlockStore) HasBlock(index uint64) bool {
	if s.cache.Contains(index) {
		return true
	}

	exists, err := s.provider.Has(indexToBlockKey(index))
	if err != nil {
		logx.Error("BLOCKSTORE", "Failed to check block existence ", index, " error: ", err)
		return false
	}
	return exists
}

// LatestIndex returns the index of the last stored block, zero when empty
func (s *GenericBlockStore) LatestIndex() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latestIndex
}

// SaveBlock stores b as the new tip. The block and the height marker are
// written in one batch.
func (s *GenericBlockStore) SaveBlock(b *block.Block) error {
	if b == nil {
		return fmt.Errorf("block cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if b.Index != s.latestIndex+1 {
		return fmt.Errorf("%w: got %d, want %d", ErrNonContiguous, b.Index, s.latestIndex+1)
	}

	value, err := jsonx.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to marshal block: %w", err)
	}

	err = s.txManager.WithBatch(func(batch db.DatabaseBatch) error {
		batch.Put(indexToBlockKey(b.Index), value)
		batch.Put(latestIndexKey(), encodeIndex(b.Index))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store block %d: %w", b.Index, err)
	}

	s.latestIndex = b.Index
	s.cache.Add(b.Index, b.Clone())
	logx.Debug("BLOCKSTORE", "Stored block at index ", b.Index)
	return nil
}

// LoadAll returns every stored block in index order
func (s *GenericBlockStore) LoadAll() ([]*block.Block, error) {
	latest := s.LatestIndex()
	blocks := make([]*block.Block, 0, latest)
	for i := block.GenesisIndex; i <= latest; i++ {
		blk, err := s.Block(i)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, blk)
	}
	return blocks, nil
}

// MustClose closes the underlying database provider
func (s *GenericBlockStore) MustClose() {
	if err := s.provider.Close(); err != nil {
		logx.Error("BLOCKSTORE", "Failed to close provider: ", err)
	}
}
