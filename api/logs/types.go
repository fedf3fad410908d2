// Copyright (c) 2018 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package logs

import (
	"math"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
	"github.com/vechain/worldstate/logdb"
	"github.com/vechain/worldstate/thor"
)

// Log is the JSON form of a log. Addresses and hashes are rendered at their
// full byte width, integers in minimal hex.
type Log struct {
	Address          thor.Address   `json:"address"`
	Topics           []thor.Bytes32 `json:"topics"`
	Data             hexutil.Bytes  `json:"data"`
	BlockHash        thor.Bytes32   `json:"blockHash"`
	BlockNumber      hexutil.Uint64 `json:"blockNumber"`
	TransactionHash  thor.Bytes32   `json:"transactionHash"`
	TransactionIndex hexutil.Uint64 `json:"transactionIndex"`
	LogIndex         hexutil.Uint64 `json:"logIndex"`
}

// ConvertLog converts a stored log into its JSON form.
func ConvertLog(l *logdb.LocalizedLog) *Log {
	topics := make([]thor.Bytes32, len(l.Topics))
	copy(topics, l.Topics)
	return &Log{
		Address:          l.Address,
		Topics:           topics,
		Data:             hexutil.Bytes(l.Data),
		BlockHash:        l.BlockHash,
		BlockNumber:      hexutil.Uint64(l.BlockNumber),
		TransactionHash:  l.TransactionHash,
		TransactionIndex: hexutil.Uint64(l.TransactionIndex),
		LogIndex:         hexutil.Uint64(l.LogIndex),
	}
}

// FilterRequest is the body of a filter query.
type FilterRequest struct {
	FromBlock *hexutil.Uint64  `json:"fromBlock,omitempty"`
	ToBlock   *hexutil.Uint64  `json:"toBlock,omitempty"`
	Address   []thor.Address   `json:"address,omitempty"`
	Topics    [][]thor.Bytes32 `json:"topics,omitempty"`
	Limit     int              `json:"limit,omitempty"`
}

// rangeAndFilter validates the request and returns the block range and the filter.
func (req *FilterRequest) rangeAndFilter() (from, to uint64, filter *logdb.Filter, err error) {
	to = math.MaxUint64
	if req.FromBlock != nil {
		from = uint64(*req.FromBlock)
	}
	if req.ToBlock != nil {
		to = uint64(*req.ToBlock)
	}
	if from > to {
		return 0, 0, nil, errors.Errorf("fromBlock %v beyond toBlock %v", from, to)
	}
	if req.Limit < 0 {
		return 0, 0, nil, errors.New("negative limit")
	}
	return from, to, &logdb.Filter{Addresses: req.Address, Topics: req.Topics}, nil
}
