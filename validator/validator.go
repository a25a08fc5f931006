package validator

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/spacedata/sdchain/block"
	"github.com/spacedata/sdchain/pow"
)

var ErrEmptyChain = errors.New("chain is empty")

// InvalidBlockError identifies the block at which the chain stops being
// consistent. Index is the block's own 1-based index field as it should be,
// i.e. its position in the chain plus one.
type InvalidBlockError struct {
	Index  uint64
	Reason string
}

func (e *InvalidBlockError) Error() string {
	return fmt.Sprintf("block %d is invalid: %s", e.Index, e.Reason)
}

// Validate walks blocks from genesis and returns the first broken block as an
// *InvalidBlockError, or nil when the chain is intact. A difficulty of zero
// or less skips the proof-of-work check.
func Validate(blocks []*block.Block, difficulty int) error {
	if len(blocks) == 0 {
		return ErrEmptyChain
	}
	var first error
	walk(blocks, difficulty, func(err *InvalidBlockError) bool {
		first = err
		return false
	})
	return first
}

// ValidateAll is Validate without stopping at the first problem: every broken
// block is reported in one *multierror.Error.
func ValidateAll(blocks []*block.Block, difficulty int) error {
	if len(blocks) == 0 {
		return ErrEmptyChain
	}
	var result *multierror.Error
	walk(blocks, difficulty, func(err *InvalidBlockError) bool {
		result = multierror.Append(result, err)
		return true
	})
	return result.ErrorOrNil()
}

// walk calls report for each problem found until report returns false. Each
// link is judged on its own, so one tampered block yields one report for the
// block after it rather than a cascade.
func walk(blocks []*block.Block, difficulty int, report func(*InvalidBlockError) bool) {
	hashes := make([]string, len(blocks))

	for i, b := range blocks {
		pos := uint64(i) + 1
		if b == nil {
			if !report(&InvalidBlockError{Index: pos, Reason: "missing block"}) {
				return
			}
			continue
		}

		h, err := b.Hash()
		if err != nil {
			if !report(&InvalidBlockError{Index: pos, Reason: fmt.Sprintf("cannot hash block: %v", err)}) {
				return
			}
		}
		hashes[i] = h

		for _, reason := range checkBlock(blocks, hashes, i, difficulty) {
			if !report(&InvalidBlockError{Index: pos, Reason: reason}) {
				return
			}
		}
	}
}

func checkBlock(blocks []*block.Block, hashes []string, i int, difficulty int) []string {
	b := blocks[i]
	want := uint64(i) + 1
	var reasons []string

	if b.Index != want {
		reasons = append(reasons, fmt.Sprintf("index is %d, expected %d", b.Index, want))
	}

	if i == 0 {
		if b.PreviousHash != block.GenesisPrevHash {
			reasons = append(reasons, fmt.Sprintf("genesis previous hash is %q, expected %q", b.PreviousHash, block.GenesisPrevHash))
		}
		if b.Proof != block.GenesisProof {
			reasons = append(reasons, fmt.Sprintf("genesis proof is %d, expected %d", b.Proof, block.GenesisProof))
		}
		return reasons
	}

	prev := blocks[i-1]
	if prev == nil || hashes[i-1] == "" {
		return append(reasons, "predecessor cannot be hashed")
	}
	if b.PreviousHash != hashes[i-1] {
		reasons = append(reasons, fmt.Sprintf("previous hash %s does not match hash of block %d (%s)", b.PreviousHash, i, hashes[i-1]))
	}
	if difficulty > 0 && !pow.Valid(prev.Proof, b.Proof, difficulty) {
		reasons = append(reasons, fmt.Sprintf("proof %d does not satisfy difficulty %d against previous proof %d", b.Proof, difficulty, prev.Proof))
	}
	return reasons
}
