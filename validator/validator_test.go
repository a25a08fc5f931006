package validator

import (
	"context"
	"errors"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/spacedata/sdchain/block"
	"github.com/spacedata/sdchain/events"
	"github.com/spacedata/sdchain/pow"
	"github.com/spacedata/sdchain/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDifficulty = 2

func buildChain(t *testing.T, n int) []*block.Block {
	t.Helper()
	engine, err := pow.NewEngine(pow.Config{Difficulty: testDifficulty})
	require.NoError(t, err)

	blocks := []*block.Block{block.Genesis()}
	for len(blocks) < n {
		last := blocks[len(blocks)-1]
		proof, err := engine.Solve(context.Background(), last.Proof)
		require.NoError(t, err)
		prevHash, err := last.Hash()
		require.NoError(t, err)
		entries := []types.Entry{types.MustEntry(len(blocks))}
		blocks = append(blocks, block.Assemble(uint64(len(blocks)+1), entries, proof, prevHash))
	}
	return blocks
}

func requireInvalidAt(t *testing.T, err error, index uint64) *InvalidBlockError {
	t.Helper()
	var invalid *InvalidBlockError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, index, invalid.Index, invalid.Reason)
	return invalid
}

func TestValidChain(t *testing.T) {
	blocks := buildChain(t, 5)
	assert.NoError(t, Validate(blocks, testDifficulty))
	assert.NoError(t, ValidateAll(blocks, testDifficulty))
	assert.NoError(t, Validate(blocks[:1], testDifficulty), "genesis alone is a valid chain")
}

func TestEmptyChain(t *testing.T) {
	assert.ErrorIs(t, Validate(nil, testDifficulty), ErrEmptyChain)
	assert.ErrorIs(t, ValidateAll([]*block.Block{}, testDifficulty), ErrEmptyChain)
}

func TestTamperedMiddleBlockReportsFirstBrokenLink(t *testing.T) {
	blocks := buildChain(t, 5)
	blocks[2].Data = []types.Entry{types.MustEntry("forged")}

	invalid := requireInvalidAt(t, Validate(blocks, testDifficulty), 4)
	assert.Contains(t, invalid.Reason, "previous hash")
}

func TestTamperedPreviousHash(t *testing.T) {
	blocks := buildChain(t, 4)
	blocks[1].PreviousHash = "deadbeef"
	requireInvalidAt(t, Validate(blocks, testDifficulty), 2)
}

func TestBadGenesis(t *testing.T) {
	blocks := buildChain(t, 2)
	blocks[0].PreviousHash = "1"
	requireInvalidAt(t, Validate(blocks, testDifficulty), 1)
}

func TestGenesisProofIsFixed(t *testing.T) {
	blocks := buildChain(t, 1)
	blocks[0].Proof = 7
	invalid := requireInvalidAt(t, Validate(blocks, testDifficulty), 1)
	assert.Contains(t, invalid.Reason, "genesis proof is 7")
}

func TestWrongIndex(t *testing.T) {
	blocks := buildChain(t, 3)
	blocks[2].Index = 7
	invalid := requireInvalidAt(t, Validate(blocks, testDifficulty), 3)
	assert.Contains(t, invalid.Reason, "index is 7")
}

func TestInvalidProof(t *testing.T) {
	blocks := buildChain(t, 3)
	last := blocks[2]
	for p := uint64(0); ; p++ {
		if !pow.Valid(blocks[1].Proof, p, testDifficulty) {
			last.Proof = p
			break
		}
	}
	invalid := requireInvalidAt(t, Validate(blocks, testDifficulty), 3)
	assert.Contains(t, invalid.Reason, "proof")

	assert.NoError(t, Validate(blocks, 0), "difficulty 0 skips proof checks")
}

func TestUnhashableBlock(t *testing.T) {
	blocks := buildChain(t, 3)
	blocks[1].Data = []types.Entry{types.Entry("{broken")}
	requireInvalidAt(t, Validate(blocks, testDifficulty), 2)
}

func TestNilBlock(t *testing.T) {
	blocks := buildChain(t, 3)
	blocks[1] = nil
	requireInvalidAt(t, Validate(blocks, testDifficulty), 2)
}

func TestValidateAllCollectsEveryLink(t *testing.T) {
	blocks := buildChain(t, 6)
	blocks[1].Data = []types.Entry{types.MustEntry("x")}
	blocks[3].Data = []types.Entry{types.MustEntry("y")}

	err := ValidateAll(blocks, testDifficulty)
	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	require.Len(t, merr.Errors, 2)
	requireInvalidAt(t, merr.Errors[0], 3)
	requireInvalidAt(t, merr.Errors[1], 5)
}

func TestCheckerPublishesFailure(t *testing.T) {
	bus := events.NewEventBus()
	_, ch := bus.Subscribe()
	checker := NewChecker(testDifficulty, bus)

	blocks := buildChain(t, 3)
	require.NoError(t, checker.Check(blocks))
	assert.Len(t, ch, 0)

	blocks[1].PreviousHash = "forged"
	err := checker.Check(blocks)
	require.Error(t, err)

	require.Len(t, ch, 1)
	ev := <-ch
	assert.Equal(t, events.EventValidationFailed, ev.Type())
	assert.Equal(t, uint64(2), ev.BlockIndex())
}
