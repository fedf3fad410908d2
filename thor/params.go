// Copyright (c) 2018 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package thor

var (
	// EmptyRoot is the root hash of an empty trie, keccak256(rlp("")).
	// It is the only root that denotes the empty state; the zero hash is not a root.
	EmptyRoot = MustParseBytes32("0x56e81f171bcc55a6ff8345e692c0f86e5b48e01b996cadc001622fb5e363b421")

	// EmptyCodeHash is keccak256 of empty bytes, the code hash of accounts without code.
	EmptyCodeHash = MustParseBytes32("0xc5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470")
)

const (
	// DefaultStateHistory is the number of recent eras kept journaled, so they can still be reorganized.
	DefaultStateHistory = 64

	// DefaultStateCacheSize is the byte budget of the account cache.
	DefaultStateCacheSize = 5 * 1024 * 1024

	// DefaultCodeCacheSize is the size of the compressed code cache.
	DefaultCodeCacheSize = 32 * 1024 * 1024
)
