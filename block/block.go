package block

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/spacedata/sdchain/jsonx"
	"github.com/spacedata/sdchain/types"
)

const (
	// GenesisPrevHash stands in for the predecessor hash of the first block.
	GenesisPrevHash = "0"
	// GenesisProof is the proof every fresh chain starts from.
	GenesisProof uint64 = 100
	// GenesisIndex is the index of the first block; indices are 1-based.
	GenesisIndex uint64 = 1
)

type Block struct {
	Index        uint64        `json:"index"`
	Timestamp    int64         `json:"timestamp"` // unix nanoseconds
	Data         []types.Entry `json:"data"`
	Proof        uint64        `json:"proof"`
	PreviousHash string        `json:"previous_hash"`
}

// Assemble builds a block stamped with the current time. The entries slice is
// owned by the block afterwards.
func Assemble(index uint64, entries []types.Entry, proof uint64, previousHash string) *Block {
	if entries == nil {
		entries = []types.Entry{}
	}
	return &Block{
		Index:        index,
		Timestamp:    time.Now().UnixNano(),
		Data:         entries,
		Proof:        proof,
		PreviousHash: previousHash,
	}
}

func Genesis() *Block {
	return Assemble(GenesisIndex, nil, GenesisProof, GenesisPrevHash)
}

func (b *Block) IsGenesis() bool {
	return b.Index == GenesisIndex && b.PreviousHash == GenesisPrevHash
}

// CanonicalBytes returns the encoding the block hash is computed over: a
// compact JSON object whose keys are sorted.
func (b *Block) CanonicalBytes() ([]byte, error) {
	data := b.Data
	if data == nil {
		data = []types.Entry{}
	}
	for i, e := range data {
		if !jsonx.Valid(e) {
			return nil, fmt.Errorf("block %d: entry %d is not valid JSON", b.Index, i)
		}
	}
	fields := map[string]interface{}{
		"data":          data,
		"index":         b.Index,
		"previous_hash": b.PreviousHash,
		"proof":         b.Proof,
		"timestamp":     b.Timestamp,
	}
	out, err := jsonx.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("block %d: encode: %w", b.Index, err)
	}
	return out, nil
}

// Hash returns the lowercase hex SHA-256 of the canonical encoding.
func (b *Block) Hash() (string, error) {
	raw, err := b.CanonicalBytes()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// Clone returns a deep copy.
func (b *Block) Clone() *Block {
	if b == nil {
		return nil
	}
	cp := *b
	cp.Data = types.CloneEntries(b.Data)
	return &cp
}

// Size is the length of the canonical encoding, zero if it cannot be encoded.
func (b *Block) Size() int {
	raw, err := b.CanonicalBytes()
	if err != nil {
		return 0
	}
	return len(raw)
}
