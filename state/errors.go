// Copyright (c) 2018 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package state

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/vechain/worldstate/chaindb"
	"github.com/vechain/worldstate/journaldb"
	"github.com/vechain/worldstate/trie"
)

// Kind classifies state access failures.
type Kind int

const (
	// KindIO is a failing storage engine.
	KindIO Kind = iota
	// KindRootNotFound is a state root absent from the database.
	KindRootNotFound
	// KindStateUnavailable is state reclaimed by pruning.
	KindStateUnavailable
	// KindHashMismatch is different content under one node hash.
	KindHashMismatch
	// KindCommitFailure is a commit that persisted nothing and may be retried.
	KindCommitFailure
	// KindCorrupted is stored data that is missing or does not decode, although it must be there.
	KindCorrupted
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindRootNotFound:
		return "root not found"
	case KindStateUnavailable:
		return "state unavailable"
	case KindHashMismatch:
		return "hash mismatch"
	case KindCommitFailure:
		return "commit failure"
	case KindCorrupted:
		return "corrupted"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

var (
	errCorrupted = errors.New("corrupted state data")
	// ErrInsufficientBalance is returned when subtracting more than an account's balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// Error is the error caused by state access failure.
type Error struct {
	Kind  Kind
	cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("state: %v: %v", e.Kind, e.cause)
}

func (e *Error) Unwrap() error { return e.cause }

// Recoverable reports whether the failure is routine: a missing or pruned state
// the caller may replace, or a commit that can be retried. Other kinds need an
// operator to look at the database.
func (e *Error) Recoverable() bool {
	switch e.Kind {
	case KindRootNotFound, KindStateUnavailable, KindCommitFailure:
		return true
	default:
		return false
	}
}

// KindOf returns the kind of err, and false if err is not a state error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// classify wraps err into an *Error. Errors already classified are returned as they are.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}

	kind := KindIO
	switch {
	case errors.Is(err, trie.ErrRootNotFound):
		kind = KindRootNotFound
	case errors.Is(err, journaldb.ErrStateUnavailable):
		kind = KindStateUnavailable
	case errors.Is(err, journaldb.ErrHashMismatch):
		kind = KindHashMismatch
	case errors.Is(err, journaldb.ErrCommitFailure):
		kind = KindCommitFailure
	case errors.Is(err, trie.ErrCorruptNode), errors.Is(err, errCorrupted), trie.IsNotFound(err):
		// a node missing from a database that never prunes was lost
		kind = KindCorrupted
	case chaindb.IsIOError(err):
		kind = KindIO
	}
	return &Error{kind, err}
}
