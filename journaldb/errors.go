// Copyright (c) 2018 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package journaldb

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/vechain/worldstate/thor"
)

var (
	// ErrHashMismatch is returned when a node is inserted with content
	// different from the content already known under its hash.
	ErrHashMismatch = errors.New("node content mismatch")
	// ErrStateUnavailable matches reads of nodes a pruning database has reclaimed.
	ErrStateUnavailable = errors.New("state unavailable")
	// ErrCommitFailure matches errors returned by Commit.
	ErrCommitFailure = errors.New("commit failure")
	// ErrWithinWindow is returned when finalising an era still inside the retained window.
	ErrWithinWindow = errors.New("era within retained window")
	// ErrNotJournaled is returned when finalising a block that has no journal entry.
	ErrNotJournaled = errors.New("block not journaled")
	// ErrAlreadyJournaled is returned when committing a block that already has a journal entry.
	ErrAlreadyJournaled = errors.New("block already journaled")
	// ErrEraFinalised is returned when committing a block at an era already finalised.
	ErrEraFinalised = errors.New("era already finalised")
	// ErrOutOfOrder is returned when finalising an era while older eras are still journaled.
	ErrOutOfOrder = errors.New("older eras not finalised")
	// ErrAlgorithmMismatch is returned when opening a column with an algorithm other than
	// the one it was created with.
	ErrAlgorithmMismatch = errors.New("pruning algorithm mismatch")
)

// MissingNodeError is returned when a node is absent from the database.
type MissingNodeError struct {
	Hash   thor.Bytes32
	Pruned bool // whether the database reclaims nodes, so the node may have existed
}

func (e *MissingNodeError) Error() string {
	if e.Pruned {
		return fmt.Sprintf("node %v unavailable, possibly pruned", e.Hash)
	}
	return fmt.Sprintf("node %v not found", e.Hash)
}

// NotFound always returns true.
func (e *MissingNodeError) NotFound() bool { return true }

// Is reports a node missing from a pruning database as ErrStateUnavailable.
func (e *MissingNodeError) Is(target error) bool {
	return e.Pruned && target == ErrStateUnavailable
}

// CommitError is returned when the batch of a commit fails to write.
// Nothing of the commit is persisted and the staged nodes are kept.
type CommitError struct {
	Number uint64
	ID     thor.Bytes32
	Err    error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit block %v #%v: %v", e.ID.AbbrevString(), e.Number, e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }

// Is makes CommitError match ErrCommitFailure.
func (e *CommitError) Is(target error) bool {
	return target == ErrCommitFailure
}
