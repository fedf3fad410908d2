// Copyright (c) 2022 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package engine

import (
	"errors"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
	"github.com/vechain/worldstate/kv"
)

// LevelDB is the name of the goleveldb engine.
const LevelDB = "leveldb"

var (
	levelWriteOpt = &opt.WriteOptions{}
	levelReadOpt  = &opt.ReadOptions{}
	levelScanOpt  = &opt.ReadOptions{DontFillCache: true}

	levelBatches = sync.Pool{New: func() any { return new(leveldb.Batch) }}
)

// levelReader is the read side shared by leveldb.DB and leveldb.Snapshot.
type levelReader interface {
	Get(key []byte, ro *opt.ReadOptions) ([]byte, error)
	Has(key []byte, ro *opt.ReadOptions) (bool, error)
}

func levelGet(src levelReader, key []byte) ([]byte, error) {
	val, err := src.Get(key, levelReadOpt)
	if err != nil {
		// goleveldb returns an empty slice along with errors
		return nil, err
	}
	return val, nil
}

type levelEngine struct {
	db *leveldb.DB
}

// NewLevelEngine creates leveldb instance which implements the Engine interface.
func NewLevelEngine(db *leveldb.DB) Engine {
	return &levelEngine{db}
}

func (le *levelEngine) Name() string { return LevelDB }

func (le *levelEngine) Close() error {
	return le.db.Close()
}

func (le *levelEngine) IsNotFound(err error) bool {
	return errors.Is(err, leveldb.ErrNotFound)
}

func (le *levelEngine) Get(key []byte) ([]byte, error) {
	return levelGet(le.db, key)
}

func (le *levelEngine) Has(key []byte) (bool, error) {
	return le.db.Has(key, levelReadOpt)
}

func (le *levelEngine) Put(key, val []byte) error {
	return le.db.Put(key, val, levelWriteOpt)
}

func (le *levelEngine) Delete(key []byte) error {
	return le.db.Delete(key, levelWriteOpt)
}

func (le *levelEngine) Snapshot() kv.Snapshot {
	s, err := le.db.GetSnapshot()
	if err != nil {
		// reads report the failure
		fail := func([]byte) ([]byte, error) { return nil, err }
		return &struct {
			kv.GetFunc
			kv.HasFunc
			kv.IsNotFoundFunc
			kv.ReleaseFunc
		}{
			fail,
			func([]byte) (bool, error) { return false, err },
			le.IsNotFound,
			func() {},
		}
	}
	return &struct {
		kv.GetFunc
		kv.HasFunc
		kv.IsNotFoundFunc
		kv.ReleaseFunc
	}{
		func(key []byte) ([]byte, error) { return levelGet(s, key) },
		func(key []byte) (bool, error) { return s.Has(key, levelReadOpt) },
		le.IsNotFound,
		s.Release,
	}
}

// levelBulk buffers writes in a pooled batch. A failed write keeps the batch,
// so the next Write retries the same operations.
type levelBulk struct {
	db        *leveldb.DB
	batch     *leveldb.Batch
	autoFlush bool
}

func (b *levelBulk) current() *leveldb.Batch {
	if b.batch == nil {
		b.batch = levelBatches.Get().(*leveldb.Batch)
		b.batch.Reset()
	}
	return b.batch
}

func (b *levelBulk) flush(minSize int) error {
	if b.batch == nil || len(b.batch.Dump()) < minSize {
		return nil
	}
	if b.batch.Len() > 0 {
		if err := b.db.Write(b.batch, levelWriteOpt); err != nil {
			return err
		}
	}
	levelBatches.Put(b.batch)
	b.batch = nil
	return nil
}

func (b *levelBulk) maybeFlush() error {
	if b.autoFlush {
		return b.flush(idealBatchSize)
	}
	return nil
}

func (b *levelBulk) Put(key, val []byte) error {
	b.current().Put(key, val)
	return b.maybeFlush()
}

func (b *levelBulk) Delete(key []byte) error {
	b.current().Delete(key)
	return b.maybeFlush()
}

func (b *levelBulk) EnableAutoFlush() { b.autoFlush = true }

func (b *levelBulk) Write() error { return b.flush(0) }

func (le *levelEngine) Bulk() kv.Bulk {
	return &levelBulk{db: le.db}
}

func (le *levelEngine) Iterate(r kv.Range) kv.Iterator {
	return le.db.NewIterator(&util.Range{Start: r.Start, Limit: r.Limit}, levelScanOpt)
}
