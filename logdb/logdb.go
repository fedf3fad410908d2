// Copyright (c) 2018 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package logdb stores event logs by block, and finds them through a bloom index
// of the addresses and topics of each block.
package logdb

import (
	"context"
	"encoding/binary"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/golang/snappy"
	"github.com/pkg/errors"
	"github.com/vechain/worldstate/chaindb"
	"github.com/vechain/worldstate/kv"
	"github.com/vechain/worldstate/log"
	"github.com/vechain/worldstate/metrics"
)

const logStoreName = "logdb.logs"

var (
	logger = log.WithContext("pkg", "logdb")

	metricIndexedLogs  = metrics.LazyLoadCounter("logdb_indexed_logs_count")
	metricFilterBlocks = metrics.LazyLoadCounterVec("logdb_filter_blocks_count", []string{"result"})

	candidateLabels     = map[string]string{"result": "candidate"}
	falsePositiveLabels = map[string]string{"result": "false_positive"}
)

// Indexer writes logs of blocks together with their blooms, and filters them.
type Indexer struct {
	blooms chaindb.BloomIndex
	store  kv.Store // rlp encoded, snappy compressed logs by block number
}

// New creates an indexer over the bloom index and the log store.
func New(blooms chaindb.BloomIndex, store kv.Store) *Indexer {
	return &Indexer{blooms, store}
}

// NewFromDatabase creates an indexer over the log bloom index of db, with logs
// kept in a named store of its key-value store.
func NewFromDatabase(db chaindb.Database) *Indexer {
	return New(db.Blooms(), db.KeyValue().NewStore(logStoreName))
}

func blockKey(number uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, number)
}

// IndexBlock stores the logs of block number, replacing what was stored for it,
// and sets the bloom of the block.
func (idx *Indexer) IndexBlock(number uint64, logs []*LocalizedLog) error {
	plain := make([]*Log, 0, len(logs))
	for _, l := range logs {
		if l.BlockNumber != number {
			return errors.Errorf("log of block %v indexed at %v", l.BlockNumber, number)
		}
		plain = append(plain, &l.Log)
	}

	// logs first, a bloom without logs would only cost a lookup
	if len(logs) == 0 {
		if err := idx.store.Delete(blockKey(number)); err != nil {
			return errors.Wrapf(err, "delete logs of block %v", number)
		}
	} else {
		data, err := rlp.EncodeToBytes(logs)
		if err != nil {
			return err
		}
		if err := idx.store.Put(blockKey(number), snappy.Encode(nil, data)); err != nil {
			return errors.Wrapf(err, "store logs of block %v", number)
		}
	}
	if err := idx.blooms.InsertBlooms(number, []types.Bloom{CreateBloom(plain)}); err != nil {
		return errors.Wrapf(err, "index bloom of block %v", number)
	}
	metricIndexedLogs().Add(int64(len(logs)))
	return nil
}

// Logs returns the logs stored for block number.
func (idx *Indexer) Logs(number uint64) ([]*LocalizedLog, error) {
	data, err := idx.store.Get(blockKey(number))
	if err != nil {
		if idx.store.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, errors.Wrapf(err, "decompress logs of block %v", number)
	}
	var logs []*LocalizedLog
	if err := rlp.DecodeBytes(raw, &logs); err != nil {
		return nil, errors.Wrapf(err, "decode logs of block %v", number)
	}
	return logs, nil
}

// FilterBlocks returns numbers of blocks in [from, to] whose bloom may match the filter.
func (idx *Indexer) FilterBlocks(from, to uint64, filter *Filter) ([]uint64, error) {
	return idx.blooms.Filter(from, to, filter.Blooms())
}

// FilterLogs returns logs of blocks in [from, to] matching the filter, in block order.
// A positive limit caps the count of logs returned.
func (idx *Indexer) FilterLogs(ctx context.Context, from, to uint64, filter *Filter, limit int) ([]*LocalizedLog, error) {
	numbers, err := idx.FilterBlocks(from, to, filter)
	if err != nil {
		return nil, err
	}
	metricFilterBlocks().AddWithLabel(int64(len(numbers)), candidateLabels)

	var result []*LocalizedLog
	for _, n := range numbers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		logs, err := idx.Logs(n)
		if err != nil {
			return nil, err
		}
		matched := false
		for _, l := range logs {
			if !filter.Match(&l.Log) {
				continue
			}
			matched = true
			result = append(result, l)
			if limit > 0 && len(result) >= limit {
				return result, nil
			}
		}
		if !matched {
			metricFilterBlocks().AddWithLabel(1, falsePositiveLabels)
		}
	}
	logger.Debug("logs filtered", "from", from, "to", to, "candidates", len(numbers), "logs", len(result))
	return result, nil
}
