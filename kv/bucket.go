// Copyright (c) 2021 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package kv

import (
	"sync"
)

// Bucket provides logical bucket for kv store.
// Keys are prefixed with the bucket name, so buckets sharing a store never overlap
// as long as no bucket name is a prefix of another.
type Bucket string

func (b Bucket) withKey(fn func(key []byte) error, key []byte) error {
	buf := bufPool.Get().(*buf)
	defer bufPool.Put(buf)
	buf.k = append(append(buf.k[:0], b...), key...)
	return fn(buf.k)
}

// NewGetter creates a bucket getter from the source getter.
func (b Bucket) NewGetter(src Getter) Getter {
	return &struct {
		GetFunc
		HasFunc
		IsNotFoundFunc
	}{
		func(key []byte) (val []byte, err error) {
			err = b.withKey(func(k []byte) error {
				val, err = src.Get(k)
				return err
			}, key)
			return
		},
		func(key []byte) (has bool, err error) {
			err = b.withKey(func(k []byte) error {
				has, err = src.Has(k)
				return err
			}, key)
			return
		},
		src.IsNotFound,
	}
}

// NewPutter creates a bucket putter from the source putter.
// The source putter is expected to copy keys it retains.
func (b Bucket) NewPutter(src Putter) Putter {
	return &struct {
		PutFunc
		DeleteFunc
	}{
		func(key, val []byte) error {
			return b.withKey(func(k []byte) error { return src.Put(k, val) }, key)
		},
		func(key []byte) error {
			return b.withKey(src.Delete, key)
		},
	}
}

// NewStore creates a bucket store from the source store.
func (b Bucket) NewStore(src Store) Store {
	return &struct {
		Getter
		Putter
		SnapshotFunc
		BulkFunc
		IterateFunc
	}{
		b.NewGetter(src),
		b.NewPutter(src),
		func() Snapshot {
			snapshot := src.Snapshot()
			return &struct {
				Getter
				ReleaseFunc
			}{
				b.NewGetter(snapshot),
				snapshot.Release,
			}
		},
		func() Bulk {
			bulk := src.Bulk()
			return &struct {
				Putter
				EnableAutoFlushFunc
				WriteFunc
			}{
				b.NewPutter(bulk),
				bulk.EnableAutoFlush,
				bulk.Write,
			}
		},
		func(r Range) Iterator {
			// iterators may hold the range until released, so the bounds are not pooled.
			bounded := Range{
				Start: append([]byte(b), r.Start...),
			}
			if len(r.Limit) == 0 {
				bounded.Limit = PrefixRange([]byte(b)).Limit
			} else {
				bounded.Limit = append([]byte(b), r.Limit...)
			}
			iter := src.Iterate(bounded)
			return &struct {
				FirstFunc
				LastFunc
				NextFunc
				PrevFunc
				KeyFunc
				ValueFunc
				ReleaseFunc
				ErrorFunc
			}{
				iter.First,
				iter.Last,
				iter.Next,
				iter.Prev,
				// strip the bucket
				func() []byte { return iter.Key()[len(b):] },
				iter.Value,
				iter.Release,
				iter.Error,
			}
		},
	}
}

type buf struct {
	k []byte
}

var bufPool = sync.Pool{
	New: func() any {
		return &buf{}
	},
}
