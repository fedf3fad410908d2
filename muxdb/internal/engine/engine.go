// Copyright (c) 2022 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package engine

import (
	"io"

	"github.com/vechain/worldstate/kv"
)

// idealBatchSize is the bulk size that triggers a flush when auto flush enabled.
const idealBatchSize = 128 * 1024

// Engine defines the interface of K-V engine.
type Engine interface {
	kv.Store
	io.Closer

	// Name returns the engine name.
	Name() string
}
