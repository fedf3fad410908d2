// Copyright (c) 2018 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package journaldb

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/vechain/worldstate/kv"
	"github.com/vechain/worldstate/thor"
)

// key spaces within the column
var (
	nodeSpace    = kv.Bucket("\x00") // hash => node blob
	refSpace     = kv.Bucket("\x01") // hash => uvarint reference count
	journalSpace = kv.Bucket("\x02") // number(8) + id => rlp(entry)
	metaSpace    = kv.Bucket("\x03") // name => value
)

var (
	algorithmKey = []byte("algorithm")
	latestKey    = []byte("latest")
	finalisedKey = []byte("finalised")
)

// entry is the journal record of one committed block.
type entry struct {
	Parent   thor.Bytes32
	Inserted []thor.Bytes32 // nodes written by the block, one item per reference
	Deleted  []thor.Bytes32 // nodes the block made unreachable, one item per reference
}

func journalKey(number uint64, id thor.Bytes32) []byte {
	k := binary.BigEndian.AppendUint64(make([]byte, 0, 8+32), number)
	return append(k, id[:]...)
}

func eraPrefix(number uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, number)
}

func encodeEntry(e *entry) ([]byte, error) {
	return rlp.EncodeToBytes(e)
}

func decodeEntry(data []byte) (*entry, error) {
	var e entry
	if err := rlp.DecodeBytes(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func encodeRefCount(n uint64) []byte {
	return binary.AppendUvarint(nil, n)
}

func decodeRefCount(data []byte) uint64 {
	n, _ := binary.Uvarint(data)
	return n
}
