// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package chaindb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vechain/worldstate/bloomdb"
	"github.com/vechain/worldstate/muxdb"
)

func testBloom(s string) types.Bloom {
	var b types.Bloom
	b.Add([]byte(s))
	return b
}

func TestOpenLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain")
	db, err := Open(path, DefaultConfig())
	require.NoError(t, err)

	for _, dir := range []string{path, filepath.Join(path, "blooms"), filepath.Join(path, "trace_blooms")} {
		st, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, st.IsDir())
	}
	assert.Equal(t, NumColumns, db.KeyValue().Columns())
	assert.Equal(t, 7, NumColumns)
	require.NoError(t, db.Close())
	require.NoError(t, db.Close())
}

func TestRestorationHandlerReopen(t *testing.T) {
	path := t.TempDir()
	handler := NewRestorationHandler(DefaultConfig())

	db, err := handler.Open(path)
	require.NoError(t, err)
	require.NoError(t, db.KeyValue().Column(ColState).Put([]byte("k"), []byte("v")))
	require.NoError(t, db.Blooms().InsertBlooms(7, []types.Bloom{testBloom("log")}))
	require.NoError(t, db.TraceBlooms().InsertBlooms(9, []types.Bloom{testBloom("trace")}))
	require.NoError(t, db.Close())

	db, err = handler.Open(path)
	require.NoError(t, err)
	defer db.Close()

	v, err := db.KeyValue().Column(ColState).Get([]byte("k"))
	assert.NoError(t, err)
	assert.Equal(t, []byte("v"), v)

	found, err := db.Blooms().Filter(0, 100, []types.Bloom{testBloom("log")})
	require.NoError(t, err)
	assert.Equal(t, []uint64{7}, found)

	found, err = db.TraceBlooms().Filter(0, 100, []types.Bloom{testBloom("trace")})
	require.NoError(t, err)
	assert.Equal(t, []uint64{9}, found)

	found, err = db.Blooms().Filter(0, 100, []types.Bloom{testBloom("trace")})
	require.NoError(t, err)
	assert.Empty(t, found, "indices are independent")
}

func TestOpenFailures(t *testing.T) {
	dir := t.TempDir()

	// path occupied by a regular file
	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0644))
	_, err := Open(file, DefaultConfig())
	assert.True(t, IsIOError(err))

	// column count persisted on creation
	path := filepath.Join(dir, "chain")
	db, err := Open(path, DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, db.Close())

	cfg := DefaultConfig()
	cfg.Columns = NumColumns + 1
	_, err = Open(path, cfg)
	assert.True(t, IsIOError(err))
	assert.True(t, errors.Is(err, muxdb.ErrColumnMismatch))

	// a corrupted bloom index fails the open, and releases the key-value store
	corrupted := filepath.Join(path, "trace_blooms", "bot.bdb")
	require.NoError(t, os.WriteFile(corrupted, []byte{1}, 0644))
	_, err = Open(path, DefaultConfig())
	assert.True(t, IsIOError(err))
	assert.True(t, errors.Is(err, bloomdb.ErrCorrupted))

	require.NoError(t, os.Remove(corrupted))
	db, err = Open(path, DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, db.Close())
}

func TestNewMem(t *testing.T) {
	db, err := NewMem()
	require.NoError(t, err)

	h := db.(*database)
	require.Len(t, h.tempDirs, 2)
	for _, dir := range h.tempDirs {
		_, err := os.Stat(dir)
		assert.NoError(t, err)
	}

	store := db.KeyValue().NewStore("meta")
	require.NoError(t, store.Put([]byte("k"), []byte("v")))
	_, err = db.KeyValue().Column(ColState).Get([]byte("k"))
	assert.True(t, db.KeyValue().IsNotFound(err))

	require.NoError(t, db.Close())
	for _, dir := range h.tempDirs {
		_, err := os.Stat(dir)
		assert.True(t, os.IsNotExist(err))
	}
}

func TestNewTemp(t *testing.T) {
	dir := t.TempDir()
	db, err := NewTemp(dir)
	require.NoError(t, err)
	defer db.Close()

	_, err = os.Stat(filepath.Join(dir, "key_value"))
	assert.NoError(t, err)
	assert.Equal(t, NumColumns, db.KeyValue().Columns())
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine: pebble\nread-cache-mb: 32\n"), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "pebble", cfg.Engine)
	assert.Equal(t, 32, cfg.ReadCacheMB)
	assert.Equal(t, NumColumns, cfg.Columns)
	assert.Equal(t, DefaultConfig().WriteBufferMB, cfg.WriteBufferMB)

	require.NoError(t, os.WriteFile(path, []byte("engine: [\n"), 0644))
	_, err = LoadConfig(path)
	assert.Error(t, err)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
