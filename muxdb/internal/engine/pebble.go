// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package engine

import (
	"errors"
	"io"

	"github.com/cockroachdb/pebble"
	"github.com/vechain/worldstate/kv"
)

// Pebble is the name of the pebble engine.
const Pebble = "pebble"

type pebbleEngine struct {
	db *pebble.DB
}

// NewPebbleEngine creates pebble instance which implements the Engine interface.
func NewPebbleEngine(db *pebble.DB) Engine {
	return &pebbleEngine{db}
}

func (pdb *pebbleEngine) Name() string { return Pebble }

func (pdb *pebbleEngine) Close() error {
	return pdb.db.Close()
}

func (pdb *pebbleEngine) IsNotFound(err error) bool {
	return errors.Is(err, pebble.ErrNotFound)
}

// pebbleGetter is the read side shared by pebble.DB and pebble.Snapshot.
type pebbleGetter interface {
	Get(key []byte) ([]byte, io.Closer, error)
}

func get(src pebbleGetter, key []byte) ([]byte, error) {
	val, closer, err := src.Get(key)
	if err != nil {
		return nil, err
	}
	// the returned slice is only valid until closer is closed
	ret := append([]byte(nil), val...)
	closer.Close()
	return ret, nil
}

func has(src pebbleGetter, key []byte) (bool, error) {
	_, closer, err := src.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	closer.Close()
	return true, nil
}

func (pdb *pebbleEngine) Get(key []byte) ([]byte, error) {
	return get(pdb.db, key)
}

func (pdb *pebbleEngine) Has(key []byte) (bool, error) {
	return has(pdb.db, key)
}

func (pdb *pebbleEngine) Put(key, val []byte) error {
	return pdb.db.Set(key, val, pebble.NoSync)
}

func (pdb *pebbleEngine) Delete(key []byte) error {
	return pdb.db.Delete(key, pebble.NoSync)
}

func (pdb *pebbleEngine) Snapshot() kv.Snapshot {
	s := pdb.db.NewSnapshot()
	return &struct {
		kv.GetFunc
		kv.HasFunc
		kv.IsNotFoundFunc
		kv.ReleaseFunc
	}{
		func(key []byte) ([]byte, error) { return get(s, key) },
		func(key []byte) (bool, error) { return has(s, key) },
		pdb.IsNotFound,
		func() { s.Close() },
	}
}

func (pdb *pebbleEngine) Bulk() kv.Bulk {
	var (
		batch     *pebble.Batch
		autoFlush bool
	)
	getBatch := func() *pebble.Batch {
		if batch == nil {
			batch = pdb.db.NewBatch()
		}
		return batch
	}
	flush := func(minSize int) error {
		if batch == nil || batch.Len() < minSize {
			return nil
		}
		if !batch.Empty() {
			if err := batch.Commit(pebble.NoSync); err != nil {
				return err
			}
		}
		batch.Close()
		batch = nil
		return nil
	}

	return &struct {
		kv.PutFunc
		kv.DeleteFunc
		kv.EnableAutoFlushFunc
		kv.WriteFunc
	}{
		func(key, val []byte) error {
			if err := getBatch().Set(key, val, nil); err != nil {
				return err
			}
			if autoFlush {
				return flush(idealBatchSize)
			}
			return nil
		},
		func(key []byte) error {
			if err := getBatch().Delete(key, nil); err != nil {
				return err
			}
			if autoFlush {
				return flush(idealBatchSize)
			}
			return nil
		},
		func() { autoFlush = true },
		func() error { return flush(0) },
	}
}

func (pdb *pebbleEngine) Iterate(r kv.Range) kv.Iterator {
	iter, err := pdb.db.NewIter(&pebble.IterOptions{
		LowerBound: r.Start,
		UpperBound: r.Limit,
	})
	if err != nil {
		return &errIterator{err}
	}
	return &pebbleIterator{iter: iter}
}

// pebbleIterator adapts pebble.Iterator to kv.Iterator.
// Like leveldb iterators, the first Next call positions at the first key.
type pebbleIterator struct {
	iter    *pebble.Iterator
	moved   bool
	release error
}

func (it *pebbleIterator) First() bool {
	it.moved = true
	return it.iter.First()
}

func (it *pebbleIterator) Last() bool {
	it.moved = true
	return it.iter.Last()
}

func (it *pebbleIterator) Next() bool {
	if !it.moved {
		it.moved = true
		return it.iter.First()
	}
	return it.iter.Next()
}

func (it *pebbleIterator) Prev() bool {
	if !it.moved {
		it.moved = true
		return it.iter.Last()
	}
	return it.iter.Prev()
}

func (it *pebbleIterator) Key() []byte {
	if it.iter == nil || !it.iter.Valid() {
		return nil
	}
	return it.iter.Key()
}

func (it *pebbleIterator) Value() []byte {
	if it.iter == nil || !it.iter.Valid() {
		return nil
	}
	return it.iter.Value()
}

func (it *pebbleIterator) Release() {
	if it.iter != nil {
		it.release = it.iter.Close()
		it.iter = nil
	}
}

func (it *pebbleIterator) Error() error {
	if it.iter == nil {
		return it.release
	}
	return it.iter.Error()
}

type errIterator struct{ err error }

func (it *errIterator) First() bool   { return false }
func (it *errIterator) Last() bool    { return false }
func (it *errIterator) Next() bool    { return false }
func (it *errIterator) Prev() bool    { return false }
func (it *errIterator) Key() []byte   { return nil }
func (it *errIterator) Value() []byte { return nil }
func (it *errIterator) Release()      {}
func (it *errIterator) Error() error  { return it.err }
