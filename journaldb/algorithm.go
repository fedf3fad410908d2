// Copyright (c) 2018 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package journaldb

import (
	"strings"

	"github.com/pkg/errors"
)

// Algorithm is the pruning policy of a journal database.
type Algorithm byte

const (
	// Archive keeps every node ever written.
	Archive Algorithm = iota + 1
	// EarlyMerge reference counts nodes and reclaims those no finalised state needs,
	// once their era falls out of the retained window.
	EarlyMerge
)

// String returns the name of the algorithm, as accepted by ParseAlgorithm.
func (a Algorithm) String() string {
	switch a {
	case Archive:
		return "archive"
	case EarlyMerge:
		return "earlymerge"
	default:
		return "unknown"
	}
}

// IsPruning returns whether the algorithm ever reclaims nodes.
func (a Algorithm) IsPruning() bool {
	return a == EarlyMerge
}

func (a Algorithm) valid() bool {
	return a == Archive || a == EarlyMerge
}

// ParseAlgorithm parses an algorithm name. Matching is case insensitive,
// and "fast" is an alias of earlymerge.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(s) {
	case "archive":
		return Archive, nil
	case "earlymerge", "fast":
		return EarlyMerge, nil
	default:
		return 0, errors.Errorf("unknown pruning algorithm %q", s)
	}
}
