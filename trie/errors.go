// Copyright (c) 2018 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package trie

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/vechain/worldstate/thor"
)

var (
	// ErrRootNotFound is returned when a trie is opened at a root absent from its database.
	ErrRootNotFound = errors.New("trie root not found")
	// ErrCorruptNode is returned when a stored node does not decode or does not match its hash.
	ErrCorruptNode = errors.New("corrupt trie node")
)

// MissingNodeError is returned by the trie functions (Get, Update, Delete)
// in the case where a trie node is not present in the local database. It contains
// information necessary for retrieving the missing node.
type MissingNodeError struct {
	NodeHash thor.Bytes32 // hash of the missing node
	Path     []byte       // hex-encoded path to the missing node
	Err      error        // error returned by the database
}

func (err *MissingNodeError) Error() string {
	return fmt.Sprintf("missing trie node %v (path %x): %v", err.NodeHash, err.Path, err.Err)
}

func (err *MissingNodeError) Unwrap() error { return err.Err }

// notFound is implemented by database errors that report an absent node,
// as opposed to a failing storage engine.
type notFound interface {
	NotFound() bool
}

// IsNotFound reports whether err says a node is absent from the database.
func IsNotFound(err error) bool {
	var nf notFound
	return errors.As(err, &nf) && nf.NotFound()
}
