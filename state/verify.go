// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package state

import (
	"github.com/pkg/errors"
	"github.com/vechain/worldstate/journaldb"
	"github.com/vechain/worldstate/thor"
	"github.com/vechain/worldstate/trie"
)

// VerifyStats counts what Verify visited.
type VerifyStats struct {
	Accounts     int
	AccountNodes int
	StorageNodes int
	Slots        int
	Codes        int
}

// Verify walks the whole state at root: every account trie node, every storage
// trie and every code blob must be present, match its hash and decode.
// Failures are classified like those of other state operations.
func Verify(db *journaldb.Database, root thor.Bytes32, spec trie.Spec) (*VerifyStats, error) {
	view, err := OpenExisting(db, root, spec)
	if err != nil {
		return nil, err
	}

	var stats VerifyStats
	err = trie.Walk(view.Committed(), db, trie.Visitor{
		Node: func(thor.Bytes32, []byte) error {
			stats.AccountNodes++
			return nil
		},
		Leaf: func(path, value []byte) error {
			acc, err := decodeAccount(value)
			if err != nil {
				return err
			}
			stats.Accounts++
			if acc.CodeHash != thor.EmptyCodeHash {
				code, err := db.Node(acc.CodeHash)
				if err != nil {
					return errors.WithMessagef(err, "code of account at %x", path)
				}
				if thor.Keccak256(code) != acc.CodeHash {
					return errors.Wrapf(errCorrupted, "code of account at %x", path)
				}
				stats.Codes++
			}
			return trie.Walk(acc.StorageRoot, db, trie.Visitor{
				Node: func(thor.Bytes32, []byte) error {
					stats.StorageNodes++
					return nil
				},
				Leaf: func(_, value []byte) error {
					if _, err := decodeSlot(value); err != nil {
						return err
					}
					stats.Slots++
					return nil
				},
			})
		},
	})
	if err != nil {
		return &stats, classify(err)
	}
	return &stats, nil
}
