// Copyright (c) 2018 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package logdb

import (
	"fmt"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/vechain/worldstate/thor"
)

// Log is an event log emitted by a contract.
type Log struct {
	Address thor.Address
	Topics  []thor.Bytes32
	Data    []byte
}

// LocalizedLog is a log with the position it was emitted at.
type LocalizedLog struct {
	Log
	BlockHash        thor.Bytes32
	BlockNumber      uint64
	TransactionHash  thor.Bytes32
	TransactionIndex uint64
	LogIndex         uint64 // index within the block
}

func (l *LocalizedLog) String() string {
	return fmt.Sprintf(`
		Log(
			address:          %v,
			topics:           %v,
			data:             0x%x,
			blockHash:        %v,
			blockNumber:      %v,
			transactionHash:  %v,
			transactionIndex: %v,
			logIndex:         %v)`,
		l.Address,
		l.Topics,
		l.Data,
		l.BlockHash,
		l.BlockNumber,
		l.TransactionHash,
		l.TransactionIndex,
		l.LogIndex)
}

// CreateBloom returns the bloom of addresses and topics of the logs.
func CreateBloom(logs []*Log) types.Bloom {
	var b types.Bloom
	for _, l := range logs {
		b.Add(l.Address[:])
		for _, topic := range l.Topics {
			b.Add(topic[:])
		}
	}
	return b
}
