package db

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openProviders(t *testing.T) map[string]DatabaseProvider {
	t.Helper()
	mem, err := NewMemLevelDBProvider()
	require.NoError(t, err)
	file, err := NewLevelDBProvider(filepath.Join(t.TempDir(), "ldb"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = mem.Close()
		_ = file.Close()
	})
	return map[string]DatabaseProvider{"memory": mem, "file": file}
}

func TestProviderBasicOperations(t *testing.T) {
	for name, p := range openProviders(t) {
		t.Run(name, func(t *testing.T) {
			v, err := p.Get([]byte("missing"))
			require.NoError(t, err)
			assert.Nil(t, v)

			require.NoError(t, p.Put([]byte("k"), []byte("v")))
			v, err = p.Get([]byte("k"))
			require.NoError(t, err)
			assert.Equal(t, []byte("v"), v)

			ok, err := p.Has([]byte("k"))
			require.NoError(t, err)
			assert.True(t, ok)

			require.NoError(t, p.Delete([]byte("k")))
			ok, err = p.Has([]byte("k"))
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestIteratePrefix(t *testing.T) {
	for name, p := range openProviders(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, p.Put([]byte("blk:2"), []byte("b")))
			require.NoError(t, p.Put([]byte("blk:1"), []byte("a")))
			require.NoError(t, p.Put([]byte("blk_meta:x"), []byte("m")))
			require.NoError(t, p.Put([]byte("other"), []byte("o")))

			var keys []string
			require.NoError(t, p.IteratePrefix([]byte("blk:"), func(k, _ []byte) bool {
				keys = append(keys, string(k))
				return true
			}))
			assert.Equal(t, []string{"blk:1", "blk:2"}, keys)

			count := 0
			require.NoError(t, p.IteratePrefix([]byte("blk"), func(_, _ []byte) bool {
				count++
				return false
			}))
			assert.Equal(t, 1, count)
		})
	}
}

func TestDBTxManager(t *testing.T) {
	p, err := NewMemLevelDBProvider()
	require.NoError(t, err)
	defer p.Close()
	tm := NewDBTxManager(p)

	require.NoError(t, tm.WithBatch(func(b DatabaseBatch) error {
		b.Put([]byte("a"), []byte("1"))
		b.Put([]byte("b"), []byte("2"))
		return nil
	}))
	v, err := p.Get([]byte("b"))
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), v)

	boom := errors.New("boom")
	err = tm.WithBatch(func(b DatabaseBatch) error {
		b.Put([]byte("c"), []byte("3"))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	ok, err := p.Has([]byte("c"))
	require.NoError(t, err)
	assert.False(t, ok, "aborted batch must not be written")
}

func TestCloseTwice(t *testing.T) {
	p, err := NewMemLevelDBProvider()
	require.NoError(t, err)
	assert.NoError(t, p.Close())
	assert.NoError(t, p.Close())
}

func TestConvertKeyToHumanReadable(t *testing.T) {
	key := append([]byte(blockKeyPrefix), 0, 0, 0, 0, 0, 0, 1, 2)
	assert.Equal(t, "blk:258", convertKeyToHumanReadable(key))
	assert.Equal(t, "blk_meta:latest_index", convertKeyToHumanReadable([]byte("blk_meta:latest_index")))
	assert.Equal(t, "blk:short", convertKeyToHumanReadable([]byte("blk:short")))
}
