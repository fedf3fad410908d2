// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vechain/worldstate/chaindb"
	"github.com/vechain/worldstate/journaldb"
	"github.com/vechain/worldstate/thor"
	"github.com/vechain/worldstate/trie"
)

func TestVerify(t *testing.T) {
	cdb, err := chaindb.NewMem()
	require.Nil(t, err)
	t.Cleanup(func() { cdb.Close() })

	open := func() *journaldb.Database {
		db, err := journaldb.New(cdb.KeyValue(), journaldb.Archive, chaindb.ColState, &journaldb.Options{History: 1})
		require.Nil(t, err)
		return db
	}

	db := open()
	st := New(db, 0, DefaultFactories())
	code := []byte("contract code")
	for i := range 20 {
		require.Nil(t, st.SetNonce(addr(i), uint64(i)))
		if i%5 == 0 {
			require.Nil(t, st.SetCode(addr(i), code))
			require.Nil(t, st.SetStorage(addr(i), thor.BytesToBytes32([]byte{1}), thor.BytesToBytes32([]byte{byte(i + 1)})))
			require.Nil(t, st.SetStorage(addr(i), thor.BytesToBytes32([]byte{2}), thor.BytesToBytes32([]byte{9})))
		}
	}
	root, err := st.Commit()
	require.Nil(t, err)

	stats, err := Verify(db, root, trie.SpecSecure)
	require.Nil(t, err)
	assert.Equal(t, 20, stats.Accounts)
	assert.Equal(t, 4, stats.Codes)
	assert.Equal(t, 8, stats.Slots)
	assert.Positive(t, stats.AccountNodes)
	assert.Positive(t, stats.StorageNodes)

	stats, err = Verify(db, thor.EmptyRoot, trie.SpecSecure)
	require.Nil(t, err)
	assert.Equal(t, VerifyStats{}, *stats)

	_, err = Verify(db, thor.Keccak256([]byte("absent")), trie.SpecSecure)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindRootNotFound, kind)

	// a lost code blob in a database that never prunes
	nodes := cdb.KeyValue().Column(chaindb.ColState)
	require.Nil(t, nodes.Delete(append([]byte{0}, thor.Keccak256(code).Bytes()...)))
	_, err = Verify(open(), root, trie.SpecSecure)
	kind, ok = KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindCorrupted, kind)
}
