// Copyright (c) 2018 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package trie

import (
	"github.com/pkg/errors"
	"github.com/vechain/worldstate/log"
	"github.com/vechain/worldstate/thor"
)

var logger = log.WithContext("pkg", "trie")

// Spec selects how keys are mapped to trie paths.
type Spec int

const (
	// SpecSecure hashes keys with keccak256 before use, keeping the trie balanced
	// whatever keys callers choose.
	SpecSecure Spec = iota
	// SpecGeneric uses keys as they are.
	SpecGeneric
)

func (s Spec) String() string {
	switch s {
	case SpecSecure:
		return "secure"
	case SpecGeneric:
		return "generic"
	default:
		return "unknown"
	}
}

// NewSecure creates a trie whose keys are hashed with keccak256.
// Root handling is the same as New.
func NewSecure(root thor.Bytes32, db Reader) (*Trie, error) {
	return newTrie(root, db, true)
}

// New creates a trie of this spec at root.
func (s Spec) New(root thor.Bytes32, db Reader) (*Trie, error) {
	return newTrie(root, db, s == SpecSecure)
}

// NewEmpty creates an empty trie of this spec.
func (s Spec) NewEmpty(db Reader) *Trie {
	return &Trie{db: db, secure: s == SpecSecure}
}

// OpenOrEmpty opens the trie at candidate, falling back to an empty trie when
// the candidate root is absent from db. It returns the trie and the root it is
// actually at. Nothing is written to db, so calling it again is harmless.
// Errors other than a missing root are returned as they are.
func (s Spec) OpenOrEmpty(candidate thor.Bytes32, db Reader) (*Trie, thor.Bytes32, error) {
	t, err := s.New(candidate, db)
	if err == nil {
		return t, candidate, nil
	}
	if !errors.Is(err, ErrRootNotFound) {
		return nil, thor.Bytes32{}, err
	}
	logger.Debug("state root not found, starting from empty trie", "root", candidate)
	return s.NewEmpty(db), thor.EmptyRoot, nil
}

// OpenOrEmpty is SpecGeneric.OpenOrEmpty.
func OpenOrEmpty(candidate thor.Bytes32, db Reader) (*Trie, thor.Bytes32, error) {
	return SpecGeneric.OpenOrEmpty(candidate, db)
}
