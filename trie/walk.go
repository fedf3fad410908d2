// Copyright (c) 2018 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package trie

import (
	"github.com/vechain/worldstate/thor"
)

// Visitor receives what Walk finds. Either callback may be nil.
type Visitor struct {
	// Node is called for each node stored under its own hash, after it is loaded.
	Node func(hash thor.Bytes32, blob []byte) error
	// Leaf is called for each value, with the trie path it is stored at.
	// For secure tries the path is the hashed key.
	Leaf func(path, value []byte) error
}

// Walk visits every node reachable from root, parents before children.
// A node referenced several times is visited as many times.
func Walk(root thor.Bytes32, db Reader, v Visitor) error {
	if root == thor.EmptyRoot {
		return nil
	}
	w := walker{db, v}
	return w.walk(hashNode(root.Bytes()), nil)
}

type walker struct {
	db Reader
	v  Visitor
}

func (w *walker) walk(n node, path []byte) error {
	switch n := n.(type) {
	case nil:
		return nil
	case valueNode:
		if w.v.Leaf != nil {
			return w.v.Leaf(hexToKeybytes(path), n)
		}
		return nil
	case hashNode:
		dec, blob, err := loadNode(w.db, n, path)
		if err != nil {
			return err
		}
		if w.v.Node != nil {
			if err := w.v.Node(thor.BytesToBytes32(n), blob); err != nil {
				return err
			}
		}
		return w.walk(dec, path)
	case *shortNode:
		return w.walk(n.Val, concat(path, n.Key...))
	case *fullNode:
		for i, child := range &n.Children {
			if child == nil {
				continue
			}
			if err := w.walk(child, concat(path, byte(i))); err != nil {
				return err
			}
		}
		return nil
	default:
		return nil
	}
}
