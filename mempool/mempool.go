package mempool

import (
	"errors"
	"sync"

	"github.com/spacedata/sdchain/types"
)

// ErrMempoolFull is returned by Add once a capped mempool holds maxEntries.
var ErrMempoolFull = errors.New("mempool is full")

// Mempool is the thread-safe staging area for entries that are not yet part
// of a block.
type Mempool struct {
	mu         sync.Mutex
	entries    []types.Entry
	maxEntries int
}

// NewMempool creates an empty mempool. A maxEntries of zero or less leaves it
// unbounded.
func NewMempool(maxEntries int) *Mempool {
	if maxEntries < 0 {
		maxEntries = 0
	}
	return &Mempool{
		entries:    make([]types.Entry, 0),
		maxEntries: maxEntries,
	}
}

// Add appends an entry. There is no deduplication.
func (m *Mempool) Add(e types.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.maxEntries > 0 && len(m.entries) >= m.maxEntries {
		return ErrMempoolFull
	}
	m.entries = append(m.entries, e)
	return nil
}

// Len returns the number of pending entries.
func (m *Mempool) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Mempool) Cap() int {
	return m.maxEntries
}

// Snapshot returns a copy of the pending entries without removing them.
func (m *Mempool) Snapshot() []types.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return types.CloneEntries(m.entries)
}

// Drain removes and returns every pending entry in insertion order.
func (m *Mempool) Drain() []types.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.entries
	m.entries = make([]types.Entry, 0)
	return out
}

// Restore puts previously drained entries back in front of anything added
// since. The cap is not enforced here so nothing drained is ever lost.
func (m *Mempool) Restore(entries []types.Entry) {
	if len(entries) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	merged := make([]types.Entry, 0, len(entries)+len(m.entries))
	merged = append(merged, entries...)
	merged = append(merged, m.entries...)
	m.entries = merged
}
