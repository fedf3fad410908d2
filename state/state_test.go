// Copyright (c) 2018 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package state

import (
	"maps"
	"testing"

	fuzz "github.com/google/gofuzz"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/vechain/worldstate/journaldb"
	"github.com/vechain/worldstate/kv"
	"github.com/vechain/worldstate/muxdb"
	"github.com/vechain/worldstate/thor"
	"github.com/vechain/worldstate/trie"
)

func newTestState(t *testing.T, algo journaldb.Algorithm) (*State, *journaldb.Database) {
	db, _ := newJournal(t, algo)
	return New(db, 0, DefaultFactories()), db
}

// randomAccount fills nonce and balance of an account.
func randomAccount(f *fuzz.Fuzzer) *Account {
	var (
		nonce   uint64
		balance [32]byte
	)
	f.Fuzz(&nonce)
	f.Fuzz(&balance)
	return &Account{Nonce: nonce, Balance: new(uint256.Int).SetBytes(balance[:])}
}

func TestCreateSetCommitReopen(t *testing.T) {
	st, db := newTestState(t, journaldb.EarlyMerge)
	r0 := st.Root()
	assert.Equal(t, thor.EmptyRoot, r0)

	a := &Account{Nonce: 0, Balance: new(uint256.Int)}
	require.Nil(t, st.SetAccount(addr(1), a))
	r1, err := st.Commit()
	require.Nil(t, err)
	assert.NotEqual(t, r0, r1)
	assert.Equal(t, r1, st.Root())

	reopened, err := FromExisting(db, r1, 0, DefaultFactories())
	require.Nil(t, err)
	got, err := reopened.GetAccount(addr(1))
	require.Nil(t, err)
	assert.Equal(t, uint64(0), got.Nonce)
	assert.True(t, got.Balance.IsZero())
	assert.Equal(t, thor.EmptyCodeHash, got.CodeHash)
	assert.Equal(t, thor.EmptyRoot, got.StorageRoot)
}

func TestFromExistingRootNotFound(t *testing.T) {
	db, store := newJournal(t, journaldb.EarlyMerge)
	st := New(db, 0, DefaultFactories())
	require.Nil(t, st.SetNonce(addr(1), 1))
	_, err := st.Commit()
	require.Nil(t, err)

	before := dump(t, store)
	_, err = FromExisting(db, thor.Keccak256([]byte("never committed")), 0, DefaultFactories())
	var stateErr *Error
	require.True(t, errors.As(err, &stateErr))
	assert.Equal(t, KindRootNotFound, stateErr.Kind)
	assert.True(t, stateErr.Recoverable())
	assert.Equal(t, before, dump(t, store))

	// nor is the zero hash a root
	_, err = FromExisting(db, thor.Bytes32{}, 0, DefaultFactories())
	require.True(t, errors.As(err, &stateErr))
	assert.Equal(t, KindRootNotFound, stateErr.Kind)
	assert.Equal(t, before, dump(t, store))

	// the two step bootstrap falls back to the empty state
	resolved, err := Resolve(db, thor.Keccak256([]byte("never committed")), 0, DefaultFactories())
	require.Nil(t, err)
	assert.Equal(t, thor.EmptyRoot, resolved.Root())
	resolved, err = Resolve(db, st.Root(), 0, DefaultFactories())
	require.Nil(t, err)
	assert.Equal(t, st.Root(), resolved.Root())
	assert.Equal(t, before, dump(t, store))
}

func TestLastWriteWins(t *testing.T) {
	st, db := newTestState(t, journaldb.EarlyMerge)
	f := fuzz.NewWithSeed(1).NilChance(0)

	want := make(map[thor.Address]*Account)
	for round := range 10 {
		prev := st.Root()
		committed := maps.Clone(want)
		for range 30 {
			var i uint8
			f.Fuzz(&i)
			a := addr(int(i % 40))

			cur, err := st.GetAccount(a)
			require.Nil(t, err)
			next := randomAccount(f)
			if cur != nil && i%3 == 0 {
				// rewrite the current value
				next = &Account{Nonce: cur.Nonce, Balance: cur.Balance}
			}
			require.Nil(t, st.SetAccount(a, next))
			want[a] = next
		}
		changed := false
		for a, w := range want {
			if c, ok := committed[a]; !ok || c.Nonce != w.Nonce || !c.Balance.Eq(w.Balance) {
				changed = true
			}
		}
		root, err := st.Commit()
		require.Nil(t, err)
		assert.Equal(t, changed, root != prev, "round %d", round)

		for a, w := range want {
			got, err := st.GetAccount(a)
			require.Nil(t, err)
			assert.Equal(t, w.Nonce, got.Nonce)
			assert.True(t, w.Balance.Eq(got.Balance))
		}
	}

	// round trip through a fresh state
	reopened, err := FromExisting(db, st.Root(), 0, DefaultFactories())
	require.Nil(t, err)
	for a, w := range want {
		got, err := reopened.GetAccount(a)
		require.Nil(t, err)
		assert.Equal(t, w.Nonce, got.Nonce)
		assert.True(t, w.Balance.Eq(got.Balance))
	}
}

func TestRoundTripWithCodeAndStorage(t *testing.T) {
	st, db := newTestState(t, journaldb.EarlyMerge)
	f := fuzz.NewWithSeed(2).NilChance(0).NumElements(1, 16)

	type contract struct {
		code    []byte
		storage map[thor.Bytes32]thor.Bytes32
	}
	contracts := make(map[thor.Address]contract)
	for i := range 20 {
		var c contract
		f.Fuzz(&c.code)
		f.Fuzz(&c.storage)
		a := addr(i)
		require.Nil(t, st.SetCode(a, c.code))
		for k, v := range c.storage {
			require.Nil(t, st.SetStorage(a, k, v))
		}
		contracts[a] = c
	}
	before := make(map[thor.Address]*Account)
	for a := range contracts {
		acc, err := st.GetAccount(a)
		require.Nil(t, err)
		before[a] = acc
	}
	root, err := st.Commit()
	require.Nil(t, err)

	reopened, err := FromExisting(db, root, 0, DefaultFactories())
	require.Nil(t, err)
	for a, c := range contracts {
		got, err := reopened.GetAccount(a)
		require.Nil(t, err)
		assert.Equal(t, before[a].Nonce, got.Nonce)
		assert.Equal(t, before[a].CodeHash, got.CodeHash)
		assert.Equal(t, thor.Keccak256(c.code), got.CodeHash)

		code, err := reopened.GetCode(a)
		require.Nil(t, err)
		assert.Equal(t, c.code, code)
		for k, v := range c.storage {
			got, err := reopened.GetStorage(a, k)
			require.Nil(t, err)
			assert.Equal(t, v, got)
		}
		v, err := reopened.GetStorage(a, thor.Keccak256([]byte("unset")))
		assert.Nil(t, err)
		assert.True(t, v.IsZero())
	}
}

func TestCodeCache(t *testing.T) {
	st, db := newTestState(t, journaldb.EarlyMerge)
	code := []byte{0x60, 0x01, 0x60, 0x02}
	require.Nil(t, st.SetCode(addr(1), code))
	root, err := st.Commit()
	require.Nil(t, err)
	hash := thor.Keccak256(code)

	factories := DefaultFactories()
	assert.Empty(t, factories.CodeCache.GetBig(nil, hash[:]))
	for range 2 {
		reopened, err := FromExisting(db, root, 0, factories)
		require.Nil(t, err)
		got, err := reopened.GetCode(addr(1))
		require.Nil(t, err)
		assert.Equal(t, code, got)
		assert.NotEmpty(t, factories.CodeCache.GetBig(nil, hash[:]))
	}

	// states without a code cache read the journal
	factories.CodeCache = nil
	reopened, err := FromExisting(db, root, 0, factories)
	require.Nil(t, err)
	got, err := reopened.GetCode(addr(1))
	require.Nil(t, err)
	assert.Equal(t, code, got)
}

func TestBalanceAndNonce(t *testing.T) {
	db, _ := newJournal(t, journaldb.Archive)
	st := New(db, 7, DefaultFactories())

	nonce, err := st.GetNonce(addr(1))
	assert.Nil(t, err)
	assert.Equal(t, uint64(7), nonce)
	exists, _ := st.Exists(addr(1))
	assert.False(t, exists)

	// no account is created by adding zero
	assert.Nil(t, st.AddBalance(addr(1), new(uint256.Int)))
	exists, _ = st.Exists(addr(1))
	assert.False(t, exists)

	assert.Nil(t, st.AddBalance(addr(1), uint256.NewInt(100)))
	assert.Nil(t, st.SubBalance(addr(1), uint256.NewInt(30)))
	err = st.SubBalance(addr(1), uint256.NewInt(71))
	assert.True(t, errors.Is(err, ErrInsufficientBalance))
	balance, _ := st.GetBalance(addr(1))
	assert.Equal(t, uint64(70), balance.Uint64())

	huge := new(uint256.Int).SetAllOne()
	assert.NotNil(t, st.AddBalance(addr(1), huge))

	assert.Nil(t, st.IncNonce(addr(1)))
	nonce, _ = st.GetNonce(addr(1))
	assert.Equal(t, uint64(8), nonce)

	// returned balances are copies
	balance.SetUint64(1)
	balance, _ = st.GetBalance(addr(1))
	assert.Equal(t, uint64(70), balance.Uint64())

	assert.NotNil(t, st.SetAccount(addr(1), &Account{CodeHash: thor.Keccak256([]byte("code"))}))
	assert.NotNil(t, st.SetAccount(addr(1), &Account{StorageRoot: thor.Keccak256([]byte("root"))}))
}

func TestRemoveAccount(t *testing.T) {
	db, _ := newJournal(t, journaldb.EarlyMerge)
	st := New(db, 0, DefaultFactories())

	code := []byte("contract code long enough to be stored as a node of its own")
	key := thor.Keccak256([]byte("slot"))
	value := thor.Keccak256([]byte("value"))
	require.Nil(t, st.SetCode(addr(1), code))
	require.Nil(t, st.SetStorage(addr(1), key, value))
	require.Nil(t, st.SetNonce(addr(2), 1))
	root0, err := st.CommitTo(0, thor.Keccak256([]byte("b0")), thor.Bytes32{})
	require.Nil(t, err)
	acc, _ := st.GetAccount(addr(1))
	storageRoot := acc.StorageRoot
	assert.NotEqual(t, thor.EmptyRoot, storageRoot)

	require.Nil(t, st.RemoveAccount(addr(1)))
	v, err := st.GetStorage(addr(1), key)
	assert.Nil(t, err)
	assert.True(t, v.IsZero())
	_, err = st.CommitTo(1, thor.Keccak256([]byte("b1")), thor.Keccak256([]byte("b0")))
	require.Nil(t, err)

	// the account comes back empty
	require.Nil(t, st.SetNonce(addr(1), 5))
	v, _ = st.GetStorage(addr(1), key)
	assert.True(t, v.IsZero())
	code2, _ := st.GetCode(addr(1))
	assert.Empty(t, code2)
	_, err = st.CommitTo(2, thor.Keccak256([]byte("b2")), thor.Keccak256([]byte("b1")))
	require.Nil(t, err)

	require.Nil(t, db.MarkCanonical(0, thor.Keccak256([]byte("b0"))))
	require.Nil(t, db.MarkCanonical(1, thor.Keccak256([]byte("b1"))))

	for _, hash := range []thor.Bytes32{storageRoot, thor.Keccak256(code), root0} {
		_, err := db.Node(hash)
		assert.True(t, errors.Is(err, journaldb.ErrStateUnavailable), "node %v should be reclaimed", hash)
	}
	acc, err = st.GetAccount(addr(1))
	require.Nil(t, err)
	assert.Equal(t, uint64(5), acc.Nonce)
	assert.Equal(t, thor.EmptyRoot, acc.StorageRoot)
	assert.Equal(t, thor.EmptyCodeHash, acc.CodeHash)
}

func TestDiscard(t *testing.T) {
	st, _ := newTestState(t, journaldb.EarlyMerge)
	require.Nil(t, st.SetNonce(addr(1), 1))
	_, err := st.Commit()
	require.Nil(t, err)
	root := st.Root()

	require.Nil(t, st.SetNonce(addr(1), 2))
	require.Nil(t, st.SetNonce(addr(2), 2))
	st.Discard()

	nonce, _ := st.GetNonce(addr(1))
	assert.Equal(t, uint64(1), nonce)
	exists, _ := st.Exists(addr(2))
	assert.False(t, exists)
	_, pinned := st.CacheUsage()
	assert.Zero(t, pinned)

	got, err := st.Commit()
	require.Nil(t, err)
	assert.Equal(t, root, got)
}

func TestCacheBounded(t *testing.T) {
	db, _ := newJournal(t, journaldb.EarlyMerge)
	factories := Factories{Trie: trie.SpecSecure, CacheSize: 8 * entryOverhead}

	st := New(db, 0, factories)
	for i := range 100 {
		require.Nil(t, st.SetNonce(addr(i), uint64(i)))
		require.Nil(t, st.SetStorage(addr(i), thor.Bytes32{1}, thor.Bytes32{2}))
	}
	_, pinned := st.CacheUsage()
	assert.Equal(t, 100*(entryOverhead+slotSize), pinned)
	root, err := st.Commit()
	require.Nil(t, err)

	st, err = FromExisting(db, root, 0, factories)
	require.Nil(t, err)
	f := fuzz.NewWithSeed(3)
	for range 500 {
		var i uint8
		f.Fuzz(&i)
		a := addr(int(i % 100))
		nonce, err := st.GetNonce(a)
		require.Nil(t, err)
		assert.Equal(t, uint64(i%100), nonce)
		v, err := st.GetStorage(a, thor.Bytes32{1})
		require.Nil(t, err)
		assert.Equal(t, thor.Bytes32{2}, v)

		clean, _ := st.CacheUsage()
		assert.LessOrEqual(t, clean, factories.CacheSize)
	}

	// dirty entries are never evicted
	for i := range 50 {
		require.Nil(t, st.IncNonce(addr(i)))
		_, err := st.GetStorage(addr(i), thor.Bytes32{1})
		require.Nil(t, err)
	}
	clean, pinned := st.CacheUsage()
	assert.LessOrEqual(t, clean, factories.CacheSize)
	assert.Equal(t, 50*(entryOverhead+slotSize), pinned)
	for range 200 {
		var i uint8
		f.Fuzz(&i)
		_, err := st.GetStorage(addr(50+int(i%50)), thor.Bytes32{1})
		require.Nil(t, err)
	}
	for i := range 50 {
		nonce, _ := st.GetNonce(addr(i))
		assert.Equal(t, uint64(i+1), nonce)
	}
}

// flakyColumns fails the writes of bulks while fail is set.
type flakyColumns struct {
	kv.ColumnStore
	fail *bool
}

func (f flakyColumns) Column(id int) kv.Store {
	s := f.ColumnStore.Column(id)
	return &struct {
		kv.Getter
		kv.Putter
		kv.SnapshotFunc
		kv.BulkFunc
		kv.IterateFunc
	}{
		s,
		s,
		s.Snapshot,
		func() kv.Bulk {
			bulk := s.Bulk()
			return &struct {
				kv.Putter
				kv.EnableAutoFlushFunc
				kv.WriteFunc
			}{
				bulk,
				bulk.EnableAutoFlush,
				func() error {
					if *f.fail {
						return errors.New("disk failure")
					}
					return bulk.Write()
				},
			}
		},
		s.Iterate,
	}
}

func TestCommitFailureRetry(t *testing.T) {
	fail := false
	db, err := journaldb.New(flakyColumns{muxdb.NewMem(1), &fail}, journaldb.EarlyMerge, 0, nil)
	require.Nil(t, err)
	refDB, _ := newJournal(t, journaldb.EarlyMerge)

	st := New(db, 0, DefaultFactories())
	ref := New(refDB, 0, DefaultFactories())
	for _, s := range []*State{st, ref} {
		for i := range 10 {
			require.Nil(t, s.SetBalance(addr(i), uint256.NewInt(uint64(i+1))))
			require.Nil(t, s.SetStorage(addr(i), thor.Bytes32{byte(i)}, thor.Bytes32{1}))
		}
		require.Nil(t, s.SetCode(addr(3), []byte("some contract code, long enough for a node")))
	}
	want, err := ref.Commit()
	require.Nil(t, err)

	fail = true
	for range 2 {
		_, err = st.Commit()
		kind, ok := KindOf(err)
		require.True(t, ok)
		assert.Equal(t, KindCommitFailure, kind)
		assert.True(t, errors.Is(err, journaldb.ErrCommitFailure))

		// nothing changed
		assert.Equal(t, thor.EmptyRoot, st.Root())
		_, ok = db.Latest()
		assert.False(t, ok)
		_, pinned := st.CacheUsage()
		assert.NotZero(t, pinned)
		balance, _ := st.GetBalance(addr(9))
		assert.Equal(t, uint64(10), balance.Uint64())
	}

	fail = false
	got, err := st.Commit()
	require.Nil(t, err)
	assert.Equal(t, want, got)

	reopened, err := FromExisting(db, got, 0, DefaultFactories())
	require.Nil(t, err)
	code, err := reopened.GetCode(addr(3))
	require.Nil(t, err)
	assert.Equal(t, []byte("some contract code, long enough for a node"), code)
	v, err := reopened.GetStorage(addr(7), thor.Bytes32{7})
	require.Nil(t, err)
	assert.Equal(t, thor.Bytes32{1}, v)
}

func TestConcurrentHistoricalReaders(t *testing.T) {
	st, db := newTestState(t, journaldb.Archive)

	var roots []thor.Bytes32
	for n := range 5 {
		for i := range 20 {
			require.Nil(t, st.SetNonce(addr(i), uint64(n*100+i)))
		}
		root, err := st.Commit()
		require.Nil(t, err)
		roots = append(roots, root)
	}

	var g errgroup.Group
	for n, root := range roots {
		for range 3 {
			g.Go(func() error {
				s, err := FromExisting(db, root, 0, DefaultFactories())
				if err != nil {
					return err
				}
				for i := range 20 {
					nonce, err := s.GetNonce(addr(i))
					if err != nil {
						return err
					}
					if nonce != uint64(n*100+i) {
						return errors.Errorf("state %d: nonce of %v is %d", n, addr(i), nonce)
					}
				}
				return nil
			})
		}
	}
	assert.Nil(t, g.Wait())
}
