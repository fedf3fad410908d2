// Copyright (c) 2018 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package logdb

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vechain/worldstate/chaindb"
	"github.com/vechain/worldstate/thor"
)

func newTestIndexer(t *testing.T) *Indexer {
	db, err := chaindb.NewMem()
	require.Nil(t, err)
	t.Cleanup(func() { db.Close() })
	return NewFromDatabase(db)
}

func topic(s string) thor.Bytes32 {
	return thor.Keccak256([]byte(s))
}

func newLog(number, index uint64, addr thor.Address, topics ...thor.Bytes32) *LocalizedLog {
	return &LocalizedLog{
		Log: Log{
			Address: addr,
			Topics:  topics,
			Data:    []byte(fmt.Sprintf("data-%d-%d", number, index)),
		},
		BlockHash:        thor.Keccak256([]byte(fmt.Sprintf("block-%d", number))),
		BlockNumber:      number,
		TransactionHash:  thor.Keccak256([]byte(fmt.Sprintf("tx-%d-%d", number, index))),
		TransactionIndex: index / 2,
		LogIndex:         index,
	}
}

var (
	addr1 = thor.BytesToAddress([]byte("addr1"))
	addr2 = thor.BytesToAddress([]byte("addr2"))
)

func TestCreateBloom(t *testing.T) {
	b := CreateBloom([]*Log{{Address: addr1, Topics: []thor.Bytes32{topic("transfer")}}})
	assert.True(t, b.Test(addr1[:]))
	assert.True(t, b.Test(topic("transfer").Bytes()))

	empty := CreateBloom(nil)
	assert.False(t, empty.Test(addr1[:]))
}

func TestFilterMatch(t *testing.T) {
	l := &newLog(1, 0, addr1, topic("transfer"), topic("alice")).Log

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"all", Filter{}, true},
		{"address", Filter{Addresses: []thor.Address{addr2, addr1}}, true},
		{"other address", Filter{Addresses: []thor.Address{addr2}}, false},
		{"topic0", Filter{Topics: [][]thor.Bytes32{{topic("transfer")}}}, true},
		{"any topic0, topic1", Filter{Topics: [][]thor.Bytes32{nil, {topic("bob"), topic("alice")}}}, true},
		{"topic1 mismatch", Filter{Topics: [][]thor.Bytes32{nil, {topic("bob")}}}, false},
		{"topic beyond", Filter{Topics: [][]thor.Bytes32{nil, nil, {topic("x")}}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Match(l))
		})
	}
}

func TestFilterBlooms(t *testing.T) {
	f := Filter{
		Addresses: []thor.Address{addr1, addr2},
		Topics:    [][]thor.Bytes32{{topic("a"), topic("b"), topic("c")}, nil},
	}
	assert.Len(t, f.Blooms(), 6)
	assert.Len(t, (&Filter{}).Blooms(), 1)

	many := make([]thor.Bytes32, 100)
	for i := range many {
		many[i] = topic(fmt.Sprint(i))
	}
	wide := Filter{Topics: [][]thor.Bytes32{many, many}}
	// falls back to scanning every block
	assert.Equal(t, 1, len(wide.Blooms()))
	assert.Equal(t, [256]byte{}, [256]byte(wide.Blooms()[0]))
}

func TestIndexAndFilter(t *testing.T) {
	idx := newTestIndexer(t)

	for n := uint64(0); n < 300; n++ {
		var logs []*LocalizedLog
		switch {
		case n%100 == 7:
			logs = append(logs, newLog(n, 0, addr1, topic("transfer"), topic("alice")))
		case n%10 == 3:
			logs = append(logs, newLog(n, 0, addr2, topic("approval")))
		}
		require.Nil(t, idx.IndexBlock(n, logs))
	}

	numbers, err := idx.FilterBlocks(0, 299, &Filter{Addresses: []thor.Address{addr1}})
	require.Nil(t, err)
	assert.Subset(t, numbers, []uint64{7, 107, 207})

	logs, err := idx.FilterLogs(context.Background(), 0, 299, &Filter{
		Addresses: []thor.Address{addr1},
		Topics:    [][]thor.Bytes32{{topic("transfer")}},
	}, 0)
	require.Nil(t, err)
	require.Len(t, logs, 3)
	for i, l := range logs {
		assert.Equal(t, uint64(7+100*i), l.BlockNumber)
		assert.Equal(t, newLog(l.BlockNumber, 0, addr1, topic("transfer"), topic("alice")), l)
	}

	logs, err = idx.FilterLogs(context.Background(), 100, 299, &Filter{Topics: [][]thor.Bytes32{{topic("approval")}}}, 5)
	require.Nil(t, err)
	require.Len(t, logs, 5)
	assert.Equal(t, uint64(103), logs[0].BlockNumber)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = idx.FilterLogs(ctx, 0, 299, &Filter{Addresses: []thor.Address{addr2}}, 0)
	assert.Equal(t, context.Canceled, err)

	// re-indexing a block replaces its logs
	require.Nil(t, idx.IndexBlock(7, nil))
	got, err := idx.Logs(7)
	assert.Nil(t, err)
	assert.Empty(t, got)

	assert.NotNil(t, idx.IndexBlock(8, []*LocalizedLog{newLog(9, 0, addr1)}))
}
