// Copyright (c) 2019 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package kv

import "github.com/syndtr/goleveldb/leveldb/util"

// Getter defines methods to read kv.
type Getter interface {
	// Get returns the value of key. An error returned if key not found,
	// which can be checked via IsNotFound.
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	IsNotFound(err error) bool
}

// Putter defines methods to write kv.
type Putter interface {
	Put(key, val []byte) error
	Delete(key []byte) error
}

// Snapshot is the store's snapshot.
type Snapshot interface {
	Getter
	Release()
}

// Bulk is the bulk putter.
// Ops are written atomically on Write, unless auto flush is enabled.
type Bulk interface {
	Putter
	EnableAutoFlush() // if set, the bulk will be non-atomic
	Write() error
}

// Iterator iterates over kv pairs.
type Iterator interface {
	First() bool
	Last() bool
	Next() bool
	Prev() bool
	Key() []byte
	Value() []byte
	Release()
	Error() error
}

// Range is the key range.
type Range struct {
	Start []byte // start of key range (included)
	Limit []byte // limit of key range (excluded)
}

// PrefixRange returns the range covering all keys with the given prefix.
func PrefixRange(prefix []byte) Range {
	r := util.BytesPrefix(prefix)
	return Range{Start: r.Start, Limit: r.Limit}
}

// Store defines the full functional kv store.
type Store interface {
	Getter
	Putter

	Snapshot() Snapshot
	Bulk() Bulk
	Iterate(r Range) Iterator
}

// ColumnStore is a store partitioned into a fixed set of columns.
// Columns share the underlying engine, so a bulk of one column commits atomically.
type ColumnStore interface {
	// Columns returns the number of columns.
	Columns() int
	// Column returns the store of the column id. It panics if id is out of range.
	Column(id int) Store
}
