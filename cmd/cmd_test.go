package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spacedata/sdchain/block"
	"github.com/spacedata/sdchain/jsonx"
	"github.com/spacedata/sdchain/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testNode struct {
	dir    string
	config string
	tuning string
}

func newTestNode(t *testing.T) *testNode {
	t.Helper()
	dir := t.TempDir()
	n := &testNode{
		dir:    dir,
		config: filepath.Join(dir, "node.yml"),
		tuning: filepath.Join(dir, "sdchain.ini"),
	}
	nodeYml := "node:\n  store:\n    type: leveldb\n    directory: " + filepath.Join(dir, "chain") + "\n"
	require.NoError(t, os.WriteFile(n.config, []byte(nodeYml), 0o644))
	require.NoError(t, os.WriteFile(n.tuning, []byte("[pow]\ndifficulty = 2\n"), 0o644))
	return n
}

func (n *testNode) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append(args, "--config", n.config, "--tuning", n.tuning, "--data-dir", ""))
	err := rootCmd.Execute()
	return out.String(), err
}

func (n *testNode) blocks(t *testing.T) []*block.Block {
	t.Helper()
	bs, err := store.CreateStore(&store.StoreConfig{Type: store.LevelDBStoreType, Directory: filepath.Join(n.dir, "chain")})
	require.NoError(t, err)
	defer bs.MustClose()
	blocks, err := bs.LoadAll()
	require.NoError(t, err)
	return blocks
}

func TestInitAddPrintValidate(t *testing.T) {
	n := newTestNode(t)

	out, err := n.run(t, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "chain ready: 1 blocks")

	_, err = n.run(t, "add", `{"sensor": "temp", "value": 21.5}`, `"note"`)
	require.NoError(t, err)

	_, err = n.run(t, "mine", "--count", "2", "--sample")
	require.NoError(t, err)
	mineSample, mineCount = false, 1

	blocks := n.blocks(t)
	require.Len(t, blocks, 4)
	assert.Equal(t, `{"sensor":"temp","value":21.5}`, blocks[1].Data[0].String())
	assert.Equal(t, `"note"`, blocks[1].Data[1].String())
	assert.Len(t, blocks[2].Data, 3)
	assert.Empty(t, blocks[3].Data)

	out, err = n.run(t, "print")
	require.NoError(t, err)
	var printed []*block.Block
	require.NoError(t, jsonx.Unmarshal([]byte(out), &printed))
	assert.Equal(t, blocks, printed)

	out, err = n.run(t, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "chain valid: 4 blocks")
}

func TestAddRejectsInvalidJSON(t *testing.T) {
	n := newTestNode(t)
	_, err := n.run(t, "add", "{not json")
	assert.Error(t, err)
}

func TestValidateReportsBrokenBlocks(t *testing.T) {
	n := newTestNode(t)
	bs, err := store.CreateStore(&store.StoreConfig{Type: store.LevelDBStoreType, Directory: filepath.Join(n.dir, "chain")})
	require.NoError(t, err)
	require.NoError(t, bs.SaveBlock(block.Genesis()))
	require.NoError(t, bs.SaveBlock(block.Assemble(2, nil, 1, "forged")))
	bs.MustClose()

	out, err := n.run(t, "validate")
	assert.Error(t, err)
	assert.Contains(t, out, "block 2")

	_, err = n.run(t, "print")
	assert.Error(t, err, "a corrupt store is refused")
}
