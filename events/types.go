package events

import (
	"time"

	"github.com/spacedata/sdchain/types"
)

// EventType is an enum-like string type for chain events
type EventType string

const (
	EventEntryAdded       EventType = "EntryAdded"
	EventBlockAppended    EventType = "BlockAppended"
	EventValidationFailed EventType = "ValidationFailed"
)

// BlockchainEvent represents any event that occurs on the chain
type BlockchainEvent interface {
	Type() EventType
	Timestamp() time.Time
	// BlockIndex is the block the event refers to; for EntryAdded it is the
	// index the entry is expected to land in.
	BlockIndex() uint64
}

// EntryAdded event when an entry is accepted into the mempool
type EntryAdded struct {
	entry     types.Entry
	nextIndex uint64
	timestamp time.Time
}

func NewEntryAdded(entry types.Entry, nextIndex uint64) *EntryAdded {
	return &EntryAdded{
		entry:     entry,
		nextIndex: nextIndex,
		timestamp: time.Now(),
	}
}

func (e *EntryAdded) Type() EventType      { return EventEntryAdded }
func (e *EntryAdded) Timestamp() time.Time { return e.timestamp }
func (e *EntryAdded) BlockIndex() uint64   { return e.nextIndex }
func (e *EntryAdded) Entry() types.Entry   { return e.entry }

// BlockAppended event when a block becomes the new tip
type BlockAppended struct {
	index      uint64
	blockHash  string
	proof      uint64
	entryCount int
	timestamp  time.Time
}

func NewBlockAppended(index uint64, blockHash string, proof uint64, entryCount int) *BlockAppended {
	return &BlockAppended{
		index:      index,
		blockHash:  blockHash,
		proof:      proof,
		entryCount: entryCount,
		timestamp:  time.Now(),
	}
}

func (e *BlockAppended) Type() EventType      { return EventBlockAppended }
func (e *BlockAppended) Timestamp() time.Time { return e.timestamp }
func (e *BlockAppended) BlockIndex() uint64   { return e.index }
func (e *BlockAppended) BlockHash() string    { return e.blockHash }
func (e *BlockAppended) Proof() uint64        { return e.proof }
func (e *BlockAppended) EntryCount() int      { return e.entryCount }

// ValidationFailed event when a chain walk finds a broken block
type ValidationFailed struct {
	index     uint64
	reason    string
	timestamp time.Time
}

func NewValidationFailed(index uint64, reason string) *ValidationFailed {
	return &ValidationFailed{
		index:     index,
		reason:    reason,
		timestamp: time.Now(),
	}
}

func (e *ValidationFailed) Type() EventType      { return EventValidationFailed }
func (e *ValidationFailed) Timestamp() time.Time { return e.timestamp }
func (e *ValidationFailed) BlockIndex() uint64   { return e.index }
func (e *ValidationFailed) Reason() string       { return e.reason }
