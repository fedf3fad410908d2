// Copyright (c) 2018 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package logdb

import (
	"slices"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/vechain/worldstate/thor"
)

// maxBloomPossibilities caps the blooms a filter expands to. A filter with more
// combinations scans every block and relies on exact matching.
const maxBloomPossibilities = 4096

// Filter selects logs. Empty sets match anything.
type Filter struct {
	Addresses []thor.Address   // log address is any of them
	Topics    [][]thor.Bytes32 // topic i is any of Topics[i]
}

// Match reports whether the log matches the filter.
func (f *Filter) Match(l *Log) bool {
	if len(f.Addresses) > 0 && !slices.Contains(f.Addresses, l.Address) {
		return false
	}
	for i, set := range f.Topics {
		if len(set) == 0 {
			continue
		}
		if i >= len(l.Topics) || !slices.Contains(set, l.Topics[i]) {
			return false
		}
	}
	return true
}

// Blooms expands the filter into the blooms a matching block must contain one of.
func (f *Filter) Blooms() []types.Bloom {
	possibilities := []types.Bloom{{}}
	expand := func(items [][]byte) bool {
		if len(items) == 0 {
			return true
		}
		if len(possibilities)*len(items) > maxBloomPossibilities {
			return false
		}
		next := make([]types.Bloom, 0, len(possibilities)*len(items))
		for _, b := range possibilities {
			for _, item := range items {
				nb := b
				nb.Add(item)
				next = append(next, nb)
			}
		}
		possibilities = next
		return true
	}

	addrs := make([][]byte, 0, len(f.Addresses))
	for _, a := range f.Addresses {
		addrs = append(addrs, a.Bytes())
	}
	if !expand(addrs) {
		return []types.Bloom{{}}
	}
	for _, set := range f.Topics {
		topics := make([][]byte, 0, len(set))
		for _, t := range set {
			topics = append(topics, t.Bytes())
		}
		if !expand(topics) {
			return []types.Bloom{{}}
		}
	}
	return possibilities
}
