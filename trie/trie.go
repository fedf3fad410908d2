// Copyright 2014 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

// Package trie implements Merkle Patricia Tries.
package trie

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/vechain/worldstate/thor"
)

// Reader wraps the Node method of a backing trie store.
// A node absent from the store must be reported by an error whose chain
// contains a value with a NotFound() bool method returning true.
type Reader interface {
	Node(hash thor.Bytes32) ([]byte, error)
}

// Writer receives the nodes staged by Trie.Commit.
// Insert stores a node under its hash. Remove tells the store a previously
// committed node is no longer referenced by the committed trie.
type Writer interface {
	Insert(hash thor.Bytes32, blob []byte) error
	Remove(hash thor.Bytes32)
}

// Database is a backing store of trie nodes.
type Database interface {
	Reader
	Writer
}

// Trie is a Merkle Patricia Trie.
// The zero value is an empty trie with no database.
// Use New to create a trie that sits on top of a database.
//
// Get may be called concurrently on tries rooted at committed roots.
// Other methods are not safe for concurrent use.
type Trie struct {
	root   node
	db     Reader
	secure bool

	// hashes of stored nodes replaced since the last commit
	obsolete []thor.Bytes32
}

// newFlag returns the cache flag value for a newly created node.
func (t *Trie) newFlag() nodeFlag {
	return nodeFlag{dirty: true}
}

// New creates a trie with an existing root node from db.
//
// If root is the empty root, the trie is initially empty.
// Otherwise, New returns ErrRootNotFound if the root node is absent from db.
func New(root thor.Bytes32, db Reader) (*Trie, error) {
	return newTrie(root, db, false)
}

// NewEmpty creates an empty trie on top of db.
func NewEmpty(db Reader) *Trie {
	return &Trie{db: db}
}

func newTrie(root thor.Bytes32, db Reader, secure bool) (*Trie, error) {
	trie := &Trie{db: db, secure: secure}
	if root == thor.EmptyRoot {
		return trie, nil
	}
	if db == nil {
		panic("trie.New called with nil database")
	}
	n, err := resolveHash(db, hashNode(root.Bytes()), nil)
	if err != nil {
		if IsNotFound(err) {
			return nil, errors.Wrapf(ErrRootNotFound, "root %v", root)
		}
		return nil, err
	}
	trie.root = n
	return trie, nil
}

// Copy returns a copy of the trie. The copy shares committed nodes with the
// original but later changes to either are not seen by the other.
func (t *Trie) Copy() *Trie {
	cpy := *t
	cpy.obsolete = append([]thor.Bytes32(nil), t.obsolete...)
	return &cpy
}

func (t *Trie) key(key []byte) []byte {
	if t.secure {
		h := thor.Keccak256(key)
		return keybytesToHex(h[:])
	}
	return keybytesToHex(key)
}

// Get returns the value for key stored in the trie.
// The value bytes must not be modified by the caller.
// A key absent from the trie yields nil and no error.
func (t *Trie) Get(key []byte) ([]byte, error) {
	return t.get(t.root, t.key(key), 0)
}

func (t *Trie) get(origNode node, key []byte, pos int) ([]byte, error) {
	switch n := (origNode).(type) {
	case nil:
		return nil, nil
	case valueNode:
		return n, nil
	case *shortNode:
		if len(key)-pos < len(n.Key) || !bytes.Equal(n.Key, key[pos:pos+len(n.Key)]) {
			// key not found in trie
			return nil, nil
		}
		return t.get(n.Val, key, pos+len(n.Key))
	case *fullNode:
		return t.get(n.Children[key[pos]], key, pos+1)
	case hashNode:
		child, err := t.resolveHash(n, key[:pos])
		if err != nil {
			return nil, err
		}
		return t.get(child, key, pos)
	default:
		panic(fmt.Sprintf("%T: invalid node: %v", origNode, origNode))
	}
}

// Update associates key with value in the trie. Subsequent calls to
// Get will return value. If value has length zero, any existing value
// is deleted from the trie and calls to Get will return nil.
//
// The value bytes are copied.
//
// If a node was not found in the database, a MissingNodeError is returned
// and the trie is left unchanged.
func (t *Trie) Update(key, value []byte) error {
	k := t.key(key)
	mark := len(t.obsolete)
	var (
		n   node
		err error
	)
	if len(value) != 0 {
		_, n, err = t.insert(t.root, nil, k, valueNode(common.CopyBytes(value)))
	} else {
		_, n, err = t.delete(t.root, nil, k)
	}
	if err != nil {
		t.obsolete = t.obsolete[:mark]
		return err
	}
	t.root = n
	return nil
}

// Delete removes any existing value for key from the trie.
func (t *Trie) Delete(key []byte) error {
	return t.Update(key, nil)
}

// discard records n as replaced, if it is a node already stored in the database.
func (t *Trie) discard(n node) {
	if hash, dirty := n.cache(); hash != nil && !dirty {
		t.obsolete = append(t.obsolete, thor.BytesToBytes32(hash))
	}
}

func (t *Trie) insert(n node, prefix, key []byte, value node) (bool, node, error) {
	if len(key) == 0 {
		if v, ok := n.(valueNode); ok {
			return !bytes.Equal(v, value.(valueNode)), value, nil
		}
		return true, value, nil
	}
	switch n := n.(type) {
	case *shortNode:
		matchlen := prefixLen(key, n.Key)
		// If the whole key matches, keep this short node as is
		// and only update the value.
		if matchlen == len(n.Key) {
			dirty, nn, err := t.insert(n.Val, append(prefix, key[:matchlen]...), key[matchlen:], value)
			if !dirty || err != nil {
				return false, n, err
			}
			t.discard(n)
			return true, &shortNode{n.Key, nn, t.newFlag()}, nil
		}
		// Otherwise branch out at the index where they differ.
		branch := &fullNode{flags: t.newFlag()}
		var err error
		_, branch.Children[n.Key[matchlen]], err = t.insert(nil, append(prefix, n.Key[:matchlen+1]...), n.Key[matchlen+1:], n.Val)
		if err != nil {
			return false, nil, err
		}
		_, branch.Children[key[matchlen]], err = t.insert(nil, append(prefix, key[:matchlen+1]...), key[matchlen+1:], value)
		if err != nil {
			return false, nil, err
		}
		t.discard(n)
		// Replace this shortNode with the branch if it occurs at index 0.
		if matchlen == 0 {
			return true, branch, nil
		}
		// Otherwise, replace it with a short node leading up to the branch.
		return true, &shortNode{key[:matchlen], branch, t.newFlag()}, nil

	case *fullNode:
		dirty, nn, err := t.insert(n.Children[key[0]], append(prefix, key[0]), key[1:], value)
		if !dirty || err != nil {
			return false, n, err
		}
		t.discard(n)
		n = n.copy()
		n.flags = t.newFlag()
		n.Children[key[0]] = nn
		return true, n, nil

	case nil:
		return true, &shortNode{key, value, t.newFlag()}, nil

	case hashNode:
		// We've hit a part of the trie that isn't loaded yet. Load
		// the node and insert into it. This leaves all child nodes on
		// the path to the value in the trie.
		rn, err := t.resolveHash(n, prefix)
		if err != nil {
			return false, nil, err
		}
		dirty, nn, err := t.insert(rn, prefix, key, value)
		if !dirty || err != nil {
			return false, rn, err
		}
		return true, nn, nil

	default:
		panic(fmt.Sprintf("%T: invalid node: %v", n, n))
	}
}

// delete returns the new root of the trie with key deleted.
// It reduces the trie to minimal form by simplifying
// nodes on the way up after deleting recursively.
func (t *Trie) delete(n node, prefix, key []byte) (bool, node, error) {
	switch n := n.(type) {
	case *shortNode:
		matchlen := prefixLen(key, n.Key)
		if matchlen < len(n.Key) {
			return false, n, nil // don't replace n on mismatch
		}
		if matchlen == len(key) {
			t.discard(n)
			return true, nil, nil // remove n entirely for whole matches
		}
		// The key is longer than n.Key. Remove the remaining suffix
		// from the subtrie. Child can never be nil here since the
		// subtrie must contain at least two other values with keys
		// longer than n.Key.
		dirty, child, err := t.delete(n.Val, append(prefix, key[:len(n.Key)]...), key[len(n.Key):])
		if !dirty || err != nil {
			return false, n, err
		}
		t.discard(n)
		switch child := child.(type) {
		case *shortNode:
			// Deleting from the subtrie reduced it to another
			// short node. Merge the nodes to avoid creating a
			// shortNode{..., shortNode{...}}. Use concat (which
			// always creates a new slice) instead of append to
			// avoid modifying n.Key since it might be shared with
			// other nodes.
			t.discard(child)
			return true, &shortNode{concat(n.Key, child.Key...), child.Val, t.newFlag()}, nil
		default:
			return true, &shortNode{n.Key, child, t.newFlag()}, nil
		}

	case *fullNode:
		dirty, nn, err := t.delete(n.Children[key[0]], append(prefix, key[0]), key[1:])
		if !dirty || err != nil {
			return false, n, err
		}
		replaced := n
		n = n.copy()
		n.flags = t.newFlag()
		n.Children[key[0]] = nn

		// Check how many non-nil entries are left after deleting and
		// reduce the full node to a short node if only one entry is
		// left. Since n must've contained at least two children
		// before deletion (otherwise it would not be a full node) n
		// can never be reduced to nil.
		//
		// When the loop is done, pos contains the index of the single
		// value that is left in n or -2 if n contains at least two
		// values.
		pos := -1
		for i, cld := range &n.Children {
			if cld != nil {
				if pos == -1 {
					pos = i
				} else {
					pos = -2
					break
				}
			}
		}
		if pos >= 0 {
			if pos != 16 {
				// If the remaining entry is a short node, it replaces
				// n and its key gets the missing nibble tacked to the
				// front. This avoids creating an invalid
				// shortNode{..., shortNode{...}}.  Since the entry
				// might not be loaded yet, resolve it just for this
				// check.
				cnode, err := t.resolve(n.Children[pos], append(prefix, byte(pos)))
				if err != nil {
					return false, nil, err
				}
				if cnode, ok := cnode.(*shortNode); ok {
					t.discard(replaced)
					t.discard(cnode)
					k := append([]byte{byte(pos)}, cnode.Key...)
					return true, &shortNode{k, cnode.Val, t.newFlag()}, nil
				}
			}
			// Otherwise, n is replaced by a one-nibble short node
			// containing the child.
			t.discard(replaced)
			return true, &shortNode{[]byte{byte(pos)}, n.Children[pos], t.newFlag()}, nil
		}
		// n still contains at least two values and cannot be reduced.
		t.discard(replaced)
		return true, n, nil

	case valueNode:
		return true, nil, nil

	case nil:
		return false, nil, nil

	case hashNode:
		// We've hit a part of the trie that isn't loaded yet. Load
		// the node and delete from it. This leaves all child nodes on
		// the path to the value in the trie.
		rn, err := t.resolveHash(n, prefix)
		if err != nil {
			return false, nil, err
		}
		dirty, nn, err := t.delete(rn, prefix, key)
		if !dirty || err != nil {
			return false, rn, err
		}
		return true, nn, nil

	default:
		panic(fmt.Sprintf("%T: invalid node: %v (%v)", n, n, key))
	}
}

func concat(s1 []byte, s2 ...byte) []byte {
	r := make([]byte, len(s1)+len(s2))
	copy(r, s1)
	copy(r[len(s1):], s2)
	return r
}

func (t *Trie) resolve(n node, prefix []byte) (node, error) {
	if n, ok := n.(hashNode); ok {
		return t.resolveHash(n, prefix)
	}
	return n, nil
}

func (t *Trie) resolveHash(n hashNode, prefix []byte) (node, error) {
	if t.db == nil {
		return nil, &MissingNodeError{NodeHash: thor.BytesToBytes32(n), Path: prefix, Err: errors.New("no database")}
	}
	return resolveHash(t.db, n, prefix)
}

// resolveHash loads and decodes a stored node.
func resolveHash(db Reader, n hashNode, prefix []byte) (node, error) {
	dec, _, err := loadNode(db, n, prefix)
	return dec, err
}

// loadNode reads a stored node, checks its content against the hash and decodes it.
func loadNode(db Reader, n hashNode, prefix []byte) (node, []byte, error) {
	hash := thor.BytesToBytes32(n)
	blob, err := db.Node(hash)
	if err != nil {
		return nil, nil, &MissingNodeError{NodeHash: hash, Path: common.CopyBytes(prefix), Err: err}
	}
	if thor.Keccak256(blob) != hash {
		return nil, nil, errors.Wrapf(ErrCorruptNode, "node %v: hash mismatch", hash)
	}
	dec, err := decodeNode(n, blob)
	if err != nil {
		return nil, nil, errors.Wrapf(ErrCorruptNode, "node %v: %v", hash, err)
	}
	return dec, blob, nil
}

// Hash returns the root hash of the trie. It does not write to the
// database and can be used even if the trie doesn't have one.
func (t *Trie) Hash() thor.Bytes32 {
	if t.root == nil {
		return thor.EmptyRoot
	}
	h := newHasher()
	defer returnHasherToPool(h)

	hashed, cached, _ := h.hash(t.root, nil, true)
	t.root = cached
	return thor.BytesToBytes32(hashed.(hashNode))
}

// Commit writes all new nodes to w, children before parents, then reports
// every stored node replaced since the previous commit via w.Remove.
// It returns the new root hash.
//
// If Insert fails, the trie keeps its uncommitted state and Commit may be retried.
func (t *Trie) Commit(w Writer) (thor.Bytes32, error) {
	if w == nil {
		return thor.Bytes32{}, errors.New("trie: commit with nil writer")
	}
	root := thor.EmptyRoot
	if t.root != nil {
		h := newHasher()
		defer returnHasherToPool(h)

		hashed, cached, err := h.hash(t.root, w, true)
		if err != nil {
			return thor.Bytes32{}, err
		}
		t.root = cached
		root = thor.BytesToBytes32(hashed.(hashNode))
	}
	for _, hash := range t.obsolete {
		w.Remove(hash)
	}
	t.obsolete = nil
	return root, nil
}
