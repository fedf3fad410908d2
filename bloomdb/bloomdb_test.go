// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package bloomdb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bloomOf(items ...string) types.Bloom {
	var b types.Bloom
	for _, item := range items {
		b.Add([]byte(item))
	}
	return b
}

func TestInsertAndFilter(t *testing.T) {
	db, err := Open(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	blooms := make([]types.Bloom, 600)
	blooms[3] = bloomOf("alice")
	blooms[17] = bloomOf("bob")
	blooms[300] = bloomOf("alice", "bob")
	blooms[599] = bloomOf("carol")
	require.NoError(t, db.InsertBlooms(0, blooms))
	assert.Equal(t, uint64(600), db.Blocks())

	got, err := db.Filter(0, 599, []types.Bloom{bloomOf("alice")})
	require.NoError(t, err)
	assert.Equal(t, []uint64{3, 300}, got)

	got, err = db.Filter(0, 599, []types.Bloom{bloomOf("bob")})
	require.NoError(t, err)
	assert.Equal(t, []uint64{17, 300}, got)

	// any of the given blooms
	got, err = db.Filter(0, 10000, []types.Bloom{bloomOf("alice"), bloomOf("carol")})
	require.NoError(t, err)
	assert.Equal(t, []uint64{3, 300, 599}, got)

	// range bounds are inclusive
	got, err = db.Filter(4, 300, []types.Bloom{bloomOf("alice")})
	require.NoError(t, err)
	assert.Equal(t, []uint64{300}, got)

	got, err = db.Filter(301, 598, []types.Bloom{bloomOf("alice")})
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = db.Filter(10, 5, []types.Bloom{bloomOf("alice")})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReplaceBottom(t *testing.T) {
	db, err := Open(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.InsertBlooms(5, []types.Bloom{bloomOf("old")}))
	require.NoError(t, db.InsertBlooms(5, []types.Bloom{bloomOf("new")}))

	b, err := db.Bloom(5)
	require.NoError(t, err)
	assert.Equal(t, bloomOf("new"), b)

	got, err := db.Filter(0, 10, []types.Bloom{bloomOf("old")})
	require.NoError(t, err)
	assert.Empty(t, got, "replaced bloom no longer matches")

	got, err = db.Filter(0, 10, []types.Bloom{bloomOf("new")})
	require.NoError(t, err)
	assert.Equal(t, []uint64{5}, got)

	b, err = db.Bloom(1000)
	require.NoError(t, err)
	assert.Equal(t, types.Bloom{}, b)
}

func TestReopen(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	require.NoError(t, err)

	_, err = Open(dir)
	assert.True(t, errors.Is(err, ErrLocked))

	require.NoError(t, db.InsertBlooms(42, []types.Bloom{bloomOf("x")}))
	require.NoError(t, db.Flush())
	require.NoError(t, db.Close())
	require.NoError(t, db.Close())

	_, err = db.Bloom(42)
	assert.Equal(t, ErrClosed, err)

	db, err = Open(dir)
	require.NoError(t, err)
	defer db.Close()

	b, err := db.Bloom(42)
	require.NoError(t, err)
	assert.Equal(t, bloomOf("x"), b)
	assert.Equal(t, uint64(43), db.Blocks())
}

func TestCorruptedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mid.bdb"), []byte{1, 2, 3}, 0644))

	_, err := Open(dir)
	assert.True(t, errors.Is(err, ErrCorrupted))

	// the failed open released the lock
	require.NoError(t, os.Remove(filepath.Join(dir, "mid.bdb")))
	db, err := Open(dir)
	require.NoError(t, err)
	db.Close()
}
