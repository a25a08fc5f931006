package block

import (
	"testing"

	"github.com/spacedata/sdchain/jsonx"
	"github.com/spacedata/sdchain/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedBlock() *Block {
	return &Block{
		Index:        2,
		Timestamp:    1700000000000000000,
		Data:         []types.Entry{types.MustEntry("A"), types.MustEntry("B")},
		Proof:        35293,
		PreviousHash: "abc",
	}
}

func TestGenesis(t *testing.T) {
	g := Genesis()
	assert.Equal(t, GenesisIndex, g.Index)
	assert.Equal(t, GenesisProof, g.Proof)
	assert.Equal(t, GenesisPrevHash, g.PreviousHash)
	assert.NotNil(t, g.Data)
	assert.Empty(t, g.Data)
	assert.True(t, g.IsGenesis())
}

func TestCanonicalBytesSortedKeys(t *testing.T) {
	raw, err := fixedBlock().CanonicalBytes()
	require.NoError(t, err)
	assert.Equal(t,
		`{"data":["A","B"],"index":2,"previous_hash":"abc","proof":35293,"timestamp":1700000000000000000}`,
		string(raw))
}

func TestHashDeterministic(t *testing.T) {
	b := fixedBlock()
	h1, err := b.Hash()
	require.NoError(t, err)
	h2, err := b.Hash()
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)

	h3, err := b.Clone().Hash()
	require.NoError(t, err)
	assert.Equal(t, h1, h3)
}

func TestHashChangesWithEveryField(t *testing.T) {
	base, err := fixedBlock().Hash()
	require.NoError(t, err)

	mutations := map[string]func(b *Block){
		"index":         func(b *Block) { b.Index++ },
		"timestamp":     func(b *Block) { b.Timestamp++ },
		"data":          func(b *Block) { b.Data = append(b.Data, types.MustEntry("C")) },
		"proof":         func(b *Block) { b.Proof++ },
		"previous_hash": func(b *Block) { b.PreviousHash = "abd" },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			b := fixedBlock()
			mutate(b)
			h, err := b.Hash()
			require.NoError(t, err)
			assert.NotEqual(t, base, h)
		})
	}
}

func TestNilAndEmptyDataHashAlike(t *testing.T) {
	a := fixedBlock()
	a.Data = nil
	b := fixedBlock()
	b.Data = []types.Entry{}

	ha, err := a.Hash()
	require.NoError(t, err)
	hb, err := b.Hash()
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
}

func TestHashSurvivesJSONRoundTrip(t *testing.T) {
	b := fixedBlock()
	want, err := b.Hash()
	require.NoError(t, err)

	raw, err := jsonx.Marshal(b)
	require.NoError(t, err)
	var back Block
	require.NoError(t, jsonx.Unmarshal(raw, &back))

	got, err := back.Hash()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestHashRejectsInvalidEntry(t *testing.T) {
	b := fixedBlock()
	b.Data = append(b.Data, types.Entry("not json"))
	_, err := b.Hash()
	assert.Error(t, err)
	assert.Zero(t, b.Size())
}

func TestCloneIsIndependent(t *testing.T) {
	b := fixedBlock()
	cp := b.Clone()
	cp.Data[0] = types.MustEntry("X")
	cp.Proof = 1
	assert.Equal(t, `"A"`, b.Data[0].String())
	assert.Equal(t, uint64(35293), b.Proof)

	var nilBlock *Block
	assert.Nil(t, nilBlock.Clone())
}
