// Copyright (c) 2018 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package state

import (
	"github.com/vechain/worldstate/journaldb"
	"github.com/vechain/worldstate/thor"
	"github.com/vechain/worldstate/trie"
)

// TrieView is the account trie at a state root, backed by a journal database.
//
// Changes made by Set and Remove are staged into the journal by Commit, and become
// durable with the next journal commit. Views at committed roots may be read
// concurrently; a view being changed must be owned by one goroutine.
type TrieView struct {
	db   *journaldb.Database
	trie *trie.Trie
	root thor.Bytes32 // root as of the last commit
}

// OpenExisting opens the view at root. It fails with KindRootNotFound unless root
// is the empty root or its node is present in db.
func OpenExisting(db *journaldb.Database, root thor.Bytes32, spec trie.Spec) (*TrieView, error) {
	t, err := spec.New(root, db)
	if err != nil {
		return nil, classify(err)
	}
	return &TrieView{db, t, root}, nil
}

// CreateEmpty creates a view without accounts, at thor.EmptyRoot.
func CreateEmpty(db *journaldb.Database, spec trie.Spec) *TrieView {
	return &TrieView{db, spec.NewEmpty(db), thor.EmptyRoot}
}

// Bootstrap opens the view at candidate, or an empty one if candidate is not in db.
// It never writes, so it can be called again with the same result. Root tells
// which root was actually opened.
func Bootstrap(db *journaldb.Database, candidate thor.Bytes32, spec trie.Spec) (*TrieView, error) {
	t, root, err := spec.OpenOrEmpty(candidate, db)
	if err != nil {
		return nil, classify(err)
	}
	return &TrieView{db, t, root}, nil
}

// Get returns the account at addr, or nil if there is none.
func (v *TrieView) Get(addr thor.Address) (*Account, error) {
	data, err := v.trie.Get(addr[:])
	if err != nil {
		return nil, classify(err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	a, err := decodeAccount(data)
	if err != nil {
		return nil, classify(err)
	}
	return a, nil
}

// Set stores the account at addr.
func (v *TrieView) Set(addr thor.Address, a *Account) error {
	data, err := encodeAccount(a)
	if err != nil {
		return err
	}
	return classify(v.trie.Update(addr[:], data))
}

// Remove deletes the account at addr.
func (v *TrieView) Remove(addr thor.Address) error {
	return classify(v.trie.Delete(addr[:]))
}

// Root returns the root hash including uncommitted changes.
func (v *TrieView) Root() thor.Bytes32 {
	return v.trie.Hash()
}

// Committed returns the root as of the last commit.
func (v *TrieView) Committed() thor.Bytes32 {
	return v.root
}

// Commit stages the changed nodes into the journal and returns the new root.
func (v *TrieView) Commit() (thor.Bytes32, error) {
	root, err := v.trie.Commit(v.db)
	if err != nil {
		return thor.Bytes32{}, classify(err)
	}
	v.root = root
	return root, nil
}

func (v *TrieView) copy() *TrieView {
	return &TrieView{v.db, v.trie.Copy(), v.root}
}
