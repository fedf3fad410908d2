// Copyright (c) 2018 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package state manages the world state: the account trie, storage tries of
// accounts and contract code, all kept as nodes of a journal database.
//
//	[ State ] -> dirty accounts (pinned) + clean accounts (size bounded LRU)
//	    |
//	[ TrieView ] -> account trie at the committed root
//	    |
//	[ journaldb ] -> nodes by hash, journaled per block
//
// A State is owned by one goroutine. States and TrieViews at committed roots
// can be used in parallel over the same journal database.
package state

import (
	"bytes"
	"maps"
	"slices"
	"time"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/golang/snappy"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/vechain/worldstate/cache"
	"github.com/vechain/worldstate/journaldb"
	"github.com/vechain/worldstate/log"
	"github.com/vechain/worldstate/thor"
	"github.com/vechain/worldstate/trie"
)

var logger = log.WithContext("pkg", "state")

// estimated memory held by cache entries
const (
	entryOverhead = 192
	slotSize      = 96
)

// Factories configures how a State builds its tries and cache.
type Factories struct {
	Trie      trie.Spec
	CacheSize int // byte budget of clean cached accounts

	// CodeCache keeps snappy compressed code by code hash. States built from the
	// same factories share it. Nil disables it.
	CodeCache *fastcache.Cache
}

// DefaultFactories returns secure tries, the default cache budget and a new
// code cache of the default size.
func DefaultFactories() Factories {
	return Factories{
		Trie:      trie.SpecSecure,
		CacheSize: thor.DefaultStateCacheSize,
		CodeCache: fastcache.New(thor.DefaultCodeCacheSize),
	}
}

// cachedAccount caches an account with the storage slots read or written.
type cachedAccount struct {
	origin  *Account // at the committed root, nil if absent
	account *Account // current value, nil if absent
	removed bool     // removed since the last commit, storage and code of origin are dropped

	code      []byte // new code, valid if codeDirty
	codeDirty bool

	storage     map[thor.Bytes32]thor.Bytes32
	dirtySlots  map[thor.Bytes32]struct{}
	storageTrie *trie.Trie // storage trie of origin, opened on demand
}

func (c *cachedAccount) size() int {
	return entryOverhead + len(c.code) + slotSize*len(c.storage)
}

// State is the cache facade over the account trie.
//
// Reads are served from dirty entries, then from a byte bounded LRU of clean
// entries, then from the trie. Written entries are pinned until committed.
type State struct {
	db         *journaldb.Database
	view       *TrieView
	startNonce uint64
	factories  Factories

	clean *cache.SizeLRU // thor.Address => *cachedAccount
	dirty map[thor.Address]*cachedAccount
}

// New creates a state at the empty root. Accounts created by the state
// start with startNonce.
func New(db *journaldb.Database, startNonce uint64, factories Factories) *State {
	return newState(CreateEmpty(db, factories.Trie), startNonce, factories)
}

// FromExisting creates a state at root. A root absent from db is an error
// of KindRootNotFound; nothing is written to db.
func FromExisting(db *journaldb.Database, root thor.Bytes32, startNonce uint64, factories Factories) (*State, error) {
	view, err := OpenExisting(db, root, factories.Trie)
	if err != nil {
		return nil, err
	}
	return newState(view, startNonce, factories), nil
}

// Resolve creates a state at candidate, or at the empty root if candidate is absent from db.
func Resolve(db *journaldb.Database, candidate thor.Bytes32, startNonce uint64, factories Factories) (*State, error) {
	view, err := Bootstrap(db, candidate, factories.Trie)
	if err != nil {
		return nil, err
	}
	if view.Committed() != candidate {
		logger.Info("state bootstrapped from empty root", "candidate", candidate)
	}
	return newState(view, startNonce, factories), nil
}

func newState(view *TrieView, startNonce uint64, factories Factories) *State {
	return &State{
		db:         view.db,
		view:       view,
		startNonce: startNonce,
		factories:  factories,
		clean: cache.NewSizeLRU(max(factories.CacheSize, 0), func(_, _ any) {
			metricAccountCache().AddWithLabel(1, evictLabels)
		}),
		dirty: make(map[thor.Address]*cachedAccount),
	}
}

// Root returns the state root as of the last commit.
func (s *State) Root() thor.Bytes32 {
	return s.view.Committed()
}

// CacheUsage returns the estimated bytes held by clean and by pinned (dirty) entries.
func (s *State) CacheUsage() (clean, pinned int) {
	for _, e := range s.dirty {
		pinned += e.size()
	}
	return s.clean.Size(), pinned
}

// entry returns the cached account of addr, loading it from the trie if needed.
func (s *State) entry(addr thor.Address) (*cachedAccount, error) {
	if e, ok := s.dirty[addr]; ok {
		return e, nil
	}
	labels := hitLabels
	v, err := s.clean.GetOrLoad(addr, func(any) (any, int, error) {
		labels = missLabels
		a, err := s.view.Get(addr)
		if err != nil {
			return nil, 0, err
		}
		e := &cachedAccount{origin: a}
		if a != nil {
			e.account = a.Copy()
		}
		return e, e.size(), nil
	})
	metricAccountCache().AddWithLabel(1, labels)
	if err != nil {
		return nil, err
	}
	return v.(*cachedAccount), nil
}

// dirtyEntry returns the entry of addr pinned for writing.
func (s *State) dirtyEntry(addr thor.Address) (*cachedAccount, error) {
	e, err := s.entry(addr)
	if err != nil {
		return nil, err
	}
	if _, ok := s.dirty[addr]; !ok {
		s.clean.Remove(addr)
		s.dirty[addr] = e
	}
	return e, nil
}

// mutable returns the dirty entry of addr, creating the account if absent.
func (s *State) mutable(addr thor.Address) (*cachedAccount, error) {
	e, err := s.dirtyEntry(addr)
	if err != nil {
		return nil, err
	}
	if e.account == nil {
		e.account = newAccount(s.startNonce)
	}
	return e, nil
}

// GetAccount returns a copy of the account at addr, or nil if there is none.
// Its StorageRoot is the one as of the last commit.
func (s *State) GetAccount(addr thor.Address) (*Account, error) {
	e, err := s.entry(addr)
	if err != nil {
		return nil, err
	}
	if e.account == nil {
		return nil, nil
	}
	return e.account.Copy(), nil
}

// Exists returns whether the account at addr exists.
func (s *State) Exists(addr thor.Address) (bool, error) {
	e, err := s.entry(addr)
	if err != nil {
		return false, err
	}
	return e.account != nil, nil
}

// SetAccount sets nonce and balance of the account at addr, creating it if absent.
// Code and storage are changed by SetCode and SetStorage; a non-zero CodeHash or
// StorageRoot must equal the current one.
func (s *State) SetAccount(addr thor.Address, a *Account) error {
	e, err := s.entry(addr)
	if err != nil {
		return err
	}
	codeHash, storageRoot := thor.EmptyCodeHash, thor.EmptyRoot
	if e.account != nil {
		codeHash, storageRoot = e.account.CodeHash, e.account.StorageRoot
	}
	if !a.CodeHash.IsZero() && a.CodeHash != codeHash {
		return errors.Errorf("set account %v: code hash %v differs from %v", addr, a.CodeHash, codeHash)
	}
	if !a.StorageRoot.IsZero() && a.StorageRoot != storageRoot {
		return errors.Errorf("set account %v: storage root %v differs from %v", addr, a.StorageRoot, storageRoot)
	}

	if e, err = s.mutable(addr); err != nil {
		return err
	}
	e.account.Nonce = a.Nonce
	e.account.Balance = a.balance().Clone()
	return nil
}

// RemoveAccount removes the account at addr with its code and storage.
func (s *State) RemoveAccount(addr thor.Address) error {
	e, err := s.dirtyEntry(addr)
	if err != nil {
		return err
	}
	e.account = nil
	e.removed = true
	e.code, e.codeDirty = nil, false
	e.storage, e.dirtySlots, e.storageTrie = nil, nil, nil
	return nil
}

// GetBalance returns the balance of the account at addr.
func (s *State) GetBalance(addr thor.Address) (*uint256.Int, error) {
	e, err := s.entry(addr)
	if err != nil {
		return nil, err
	}
	if e.account == nil {
		return new(uint256.Int), nil
	}
	return e.account.balance().Clone(), nil
}

// SetBalance sets the balance of the account at addr.
func (s *State) SetBalance(addr thor.Address, balance *uint256.Int) error {
	e, err := s.mutable(addr)
	if err != nil {
		return err
	}
	e.account.Balance = balance.Clone()
	return nil
}

// AddBalance adds amount to the balance of the account at addr.
// Adding zero leaves the state untouched.
func (s *State) AddBalance(addr thor.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	e, err := s.mutable(addr)
	if err != nil {
		return err
	}
	sum, overflow := new(uint256.Int).AddOverflow(e.account.balance(), amount)
	if overflow {
		return errors.Errorf("add balance %v: overflow", addr)
	}
	e.account.Balance = sum
	return nil
}

// SubBalance subtracts amount from the balance of the account at addr.
func (s *State) SubBalance(addr thor.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	balance, err := s.GetBalance(addr)
	if err != nil {
		return err
	}
	if balance.Lt(amount) {
		return errors.WithMessagef(ErrInsufficientBalance, "account %v", addr)
	}
	return s.SetBalance(addr, balance.Sub(balance, amount))
}

// GetNonce returns the nonce of the account at addr, the start nonce if absent.
func (s *State) GetNonce(addr thor.Address) (uint64, error) {
	e, err := s.entry(addr)
	if err != nil {
		return 0, err
	}
	if e.account == nil {
		return s.startNonce, nil
	}
	return e.account.Nonce, nil
}

// SetNonce sets the nonce of the account at addr.
func (s *State) SetNonce(addr thor.Address, nonce uint64) error {
	e, err := s.mutable(addr)
	if err != nil {
		return err
	}
	e.account.Nonce = nonce
	return nil
}

// IncNonce increments the nonce of the account at addr.
func (s *State) IncNonce(addr thor.Address) error {
	e, err := s.mutable(addr)
	if err != nil {
		return err
	}
	e.account.Nonce++
	return nil
}

// GetCodeHash returns the code hash of the account at addr.
func (s *State) GetCodeHash(addr thor.Address) (thor.Bytes32, error) {
	e, err := s.entry(addr)
	if err != nil {
		return thor.Bytes32{}, err
	}
	if e.account == nil {
		return thor.EmptyCodeHash, nil
	}
	return e.account.CodeHash, nil
}

// GetCode returns the code of the account at addr.
func (s *State) GetCode(addr thor.Address) ([]byte, error) {
	e, err := s.entry(addr)
	if err != nil {
		return nil, err
	}
	if e.account == nil {
		return nil, nil
	}
	if e.codeDirty {
		return bytes.Clone(e.code), nil
	}
	return s.loadCode(e.account.CodeHash)
}

func (s *State) loadCode(hash thor.Bytes32) ([]byte, error) {
	if hash == thor.EmptyCodeHash {
		return nil, nil
	}
	codeCache := s.factories.CodeCache
	if codeCache != nil {
		if enc := codeCache.GetBig(nil, hash[:]); len(enc) > 0 {
			if code, err := snappy.Decode(nil, enc); err == nil {
				metricCodeCache().AddWithLabel(1, hitLabels)
				return code, nil
			}
		}
		metricCodeCache().AddWithLabel(1, missLabels)
	}

	code, err := s.db.Node(hash)
	if err != nil {
		return nil, classify(errors.WithMessagef(err, "load code %v", hash))
	}
	if codeCache != nil {
		codeCache.SetBig(hash[:], snappy.Encode(nil, code))
	}
	return code, nil
}

// SetCode sets the code of the account at addr.
func (s *State) SetCode(addr thor.Address, code []byte) error {
	e, err := s.mutable(addr)
	if err != nil {
		return err
	}
	e.codeDirty = true
	if len(code) == 0 {
		e.code = nil
		e.account.CodeHash = thor.EmptyCodeHash
		return nil
	}
	e.code = bytes.Clone(code)
	e.account.CodeHash = thor.Keccak256(code)
	return nil
}

// GetStorage returns the storage value at key of the account at addr.
func (s *State) GetStorage(addr thor.Address, key thor.Bytes32) (thor.Bytes32, error) {
	e, err := s.entry(addr)
	if err != nil {
		return thor.Bytes32{}, err
	}
	if v, ok := e.storage[key]; ok {
		return v, nil
	}
	if e.account == nil || e.origin == nil || e.removed {
		return thor.Bytes32{}, nil
	}

	v, err := s.loadSlot(e, key)
	if err != nil {
		return thor.Bytes32{}, err
	}
	if e.storage == nil {
		e.storage = make(map[thor.Bytes32]thor.Bytes32)
	}
	e.storage[key] = v
	if _, ok := s.dirty[addr]; !ok {
		// the entry grew
		s.clean.Add(addr, e, e.size())
	}
	return v, nil
}

func (s *State) loadSlot(e *cachedAccount, key thor.Bytes32) (thor.Bytes32, error) {
	if e.storageTrie == nil {
		t, err := s.factories.Trie.New(e.origin.StorageRoot, s.db)
		if err != nil {
			if errors.Is(err, trie.ErrRootNotFound) {
				// the account refers to it, so it was there
				kind := KindCorrupted
				if s.db.Algorithm().IsPruning() {
					kind = KindStateUnavailable
				}
				return thor.Bytes32{}, &Error{kind, err}
			}
			return thor.Bytes32{}, classify(err)
		}
		e.storageTrie = t
	}
	data, err := e.storageTrie.Get(key[:])
	if err != nil {
		return thor.Bytes32{}, classify(err)
	}
	v, err := decodeSlot(data)
	if err != nil {
		return thor.Bytes32{}, classify(err)
	}
	return v, nil
}

// SetStorage sets the storage value at key of the account at addr.
// Setting the zero value deletes the slot.
func (s *State) SetStorage(addr thor.Address, key, value thor.Bytes32) error {
	e, err := s.mutable(addr)
	if err != nil {
		return err
	}
	if e.storage == nil {
		e.storage = make(map[thor.Bytes32]thor.Bytes32)
	}
	if e.dirtySlots == nil {
		e.dirtySlots = make(map[thor.Bytes32]struct{})
	}
	e.storage[key] = value
	e.dirtySlots[key] = struct{}{}
	return nil
}

// Discard drops all changes since the last commit.
func (s *State) Discard() {
	s.dirty = make(map[thor.Address]*cachedAccount)
}

// Commit commits the changes as the block following the latest journaled era,
// identified by the new root, with the previous root as parent.
func (s *State) Commit() (thor.Bytes32, error) {
	var number uint64
	if latest, ok := s.db.Latest(); ok {
		number = latest + 1
	}
	parent := s.view.Committed()

	// the block id is only known once the root is
	return s.commit(func(root thor.Bytes32) error {
		return s.db.Commit(number, root, parent)
	})
}

// CommitTo commits the changes as block id at era number, child of parent,
// and returns the new root.
//
// It is all or nothing: on failure nothing is persisted, the state keeps its
// root and uncommitted changes, and the commit can be retried.
func (s *State) CommitTo(number uint64, id, parent thor.Bytes32) (thor.Bytes32, error) {
	return s.commit(func(thor.Bytes32) error {
		return s.db.Commit(number, id, parent)
	})
}

func (s *State) commit(journal func(root thor.Bytes32) error) (root thor.Bytes32, err error) {
	start := time.Now()
	defer func() {
		if err != nil {
			// nodes staged by this attempt
			s.db.Discard()
			metricCommitFailures().Add(1)
			err = classify(err)
			logger.Debug("state commit failed", "dirty", len(s.dirty), "err", err)
		}
	}()

	view := s.view.copy()
	addrs := slices.SortedFunc(maps.Keys(s.dirty), func(a, b thor.Address) int {
		return bytes.Compare(a[:], b[:])
	})
	updated := make(map[thor.Address]*Account, len(addrs))
	for _, addr := range addrs {
		acc, err := s.flush(s.dirty[addr])
		if err != nil {
			return thor.Bytes32{}, errors.WithMessagef(err, "flush account %v", addr)
		}
		if acc == nil {
			err = view.Remove(addr)
		} else {
			err = view.Set(addr, acc)
		}
		if err != nil {
			return thor.Bytes32{}, err
		}
		updated[addr] = acc
	}
	if root, err = view.Commit(); err != nil {
		return thor.Bytes32{}, err
	}
	if err := journal(root); err != nil {
		return thor.Bytes32{}, err
	}

	s.view = view
	for addr, acc := range updated {
		e := &cachedAccount{origin: acc}
		if acc != nil {
			e.account = acc.Copy()
			e.storage = s.dirty[addr].storage
		}
		s.clean.Add(addr, e, e.size())
	}
	s.dirty = make(map[thor.Address]*cachedAccount)

	metricCommittedDirty().Add(int64(len(updated)))
	metricCommitDurations().Observe(time.Since(start).Milliseconds())
	logger.Debug("state committed", "root", root.AbbrevString(), "accounts", len(updated), "et", time.Since(start))
	return root, nil
}

// flush stages the code and storage changes of the entry into the journal and
// returns the account to store, nil if it is to be removed. The entry is not modified.
func (s *State) flush(e *cachedAccount) (*Account, error) {
	o := e.origin
	if o != nil && e.removed {
		if err := trie.Walk(o.StorageRoot, s.db, trie.Visitor{
			Node: func(hash thor.Bytes32, _ []byte) error {
				s.db.Remove(hash)
				return nil
			},
		}); err != nil {
			return nil, err
		}
	}
	if o != nil && o.CodeHash != thor.EmptyCodeHash && (e.removed || e.codeDirty) {
		s.db.Remove(o.CodeHash)
	}
	if e.account == nil {
		return nil, nil
	}

	acc := e.account.Copy()
	if e.codeDirty && acc.CodeHash != thor.EmptyCodeHash {
		if err := s.db.Insert(acc.CodeHash, e.code); err != nil {
			return nil, err
		}
	}
	if len(e.dirtySlots) > 0 {
		base := thor.EmptyRoot
		if o != nil && !e.removed {
			base = o.StorageRoot
		}
		st, err := s.factories.Trie.New(base, s.db)
		if err != nil {
			return nil, err
		}
		for key := range e.dirtySlots {
			v := e.storage[key]
			if v.IsZero() {
				err = st.Delete(key[:])
			} else {
				var enc []byte
				if enc, err = encodeSlot(v); err == nil {
					err = st.Update(key[:], enc)
				}
			}
			if err != nil {
				return nil, err
			}
		}
		if acc.StorageRoot, err = st.Commit(s.db); err != nil {
			return nil, err
		}
	}
	return acc, nil
}
