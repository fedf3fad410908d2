// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package chaindb composes the chain database: one column partitioned key-value store
// and two bloom indices, for event logs and for traces.
package chaindb

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/vechain/worldstate/bloomdb"
	"github.com/vechain/worldstate/kv"
	"github.com/vechain/worldstate/log"
	"github.com/vechain/worldstate/muxdb"
)

// Column ids of the key-value store.
const (
	ColState        = iota // world state trie nodes and journal
	ColHeaders             // block headers
	ColBodies              // block bodies
	ColExtra               // extra block data
	ColTrace               // traces
	ColAccountBloom        // account bloom
	ColNodeInfo            // node info

	// NumColumns is the count of columns.
	NumColumns
)

const (
	bloomsDirName      = "blooms"
	traceBloomsDirName = "trace_blooms"
	keyValueDirName    = "key_value"
)

var logger = log.WithContext("pkg", "chaindb")

// KeyValueStore is the column partitioned key-value store.
type KeyValueStore interface {
	kv.ColumnStore
	// NewStore returns a named store, disjoint from all columns.
	NewStore(name string) kv.Store
	IsNotFound(err error) bool
}

// BloomIndex is a bloom index keyed by block number.
type BloomIndex interface {
	InsertBlooms(from uint64, blooms []types.Bloom) error
	Bloom(n uint64) (types.Bloom, error)
	Filter(from, to uint64, blooms []types.Bloom) ([]uint64, error)
	Flush() error
}

// Database is the composite database handle. It owns its stores,
// which live until Close.
type Database interface {
	KeyValue() KeyValueStore
	Blooms() BloomIndex
	TraceBlooms() BloomIndex
	Close() error
}

// IOError is the failure to create or open a storage resource.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("chaindb: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

type database struct {
	kv          *muxdb.MuxDB
	blooms      *bloomdb.Database
	traceBlooms *bloomdb.Database
	tempDirs    []string // removed on close
	closeOnce   sync.Once
	closeErr    error
}

func (db *database) KeyValue() KeyValueStore { return db.kv }
func (db *database) Blooms() BloomIndex      { return db.blooms }
func (db *database) TraceBlooms() BloomIndex { return db.traceBlooms }

func (db *database) Close() error {
	db.closeOnce.Do(func() {
		var errs []error
		for _, c := range []interface{ Close() error }{db.blooms, db.traceBlooms, db.kv} {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		for _, dir := range db.tempDirs {
			if err := os.RemoveAll(dir); err != nil {
				errs = append(errs, err)
			}
		}
		if len(errs) > 0 {
			db.closeErr = errs[0]
		}
	})
	return db.closeErr
}

// Open opens or creates the database at path. The key-value store lives in path
// itself, bloom indices in the "blooms" and "trace_blooms" sub directories.
// Resources opened before a failure are released.
func Open(path string, cfg Config) (Database, error) {
	bloomsDir := filepath.Join(path, bloomsDirName)
	traceBloomsDir := filepath.Join(path, traceBloomsDirName)
	for _, dir := range []string{path, bloomsDir, traceBloomsDir} {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, &IOError{"create", dir, err}
		}
	}

	kvs, err := muxdb.Open(path, cfg.muxdbOptions())
	if err != nil {
		return nil, &IOError{"open key-value store", path, err}
	}
	db, err := openBlooms(kvs, bloomsDir, traceBloomsDir)
	if err != nil {
		kvs.Close()
		return nil, err
	}
	logger.Info("database opened", "path", path, "engine", kvs.Engine())
	return db, nil
}

// NewMem creates a database with a memory backed key-value store and bloom
// indices in temporary directories. The directories are removed on Close.
func NewMem() (Database, error) {
	return newTemp(muxdb.NewMem(NumColumns))
}

// NewTemp creates a database with the key-value store on disk in dir/key_value,
// and bloom indices in temporary directories removed on Close.
func NewTemp(dir string) (Database, error) {
	path := filepath.Join(dir, keyValueDirName)
	kvs, err := muxdb.Open(path, DefaultConfig().muxdbOptions())
	if err != nil {
		return nil, &IOError{"open key-value store", path, err}
	}
	return newTemp(kvs)
}

func newTemp(kvs *muxdb.MuxDB) (Database, error) {
	var dirs []string
	cleanup := func() {
		kvs.Close()
		for _, dir := range dirs {
			os.RemoveAll(dir)
		}
	}
	for _, pattern := range []string{"blooms-*", "trace-blooms-*"} {
		dir, err := os.MkdirTemp("", pattern)
		if err != nil {
			cleanup()
			return nil, &IOError{"create temp", pattern, err}
		}
		dirs = append(dirs, dir)
	}
	db, err := openBlooms(kvs, dirs[0], dirs[1])
	if err != nil {
		cleanup()
		return nil, err
	}
	db.tempDirs = dirs
	return db, nil
}

func openBlooms(kvs *muxdb.MuxDB, bloomsDir, traceBloomsDir string) (*database, error) {
	blooms, err := bloomdb.Open(bloomsDir)
	if err != nil {
		return nil, &IOError{"open bloom index", bloomsDir, err}
	}
	traceBlooms, err := bloomdb.Open(traceBloomsDir)
	if err != nil {
		blooms.Close()
		return nil, &IOError{"open bloom index", traceBloomsDir, err}
	}
	return &database{
		kv:          kvs,
		blooms:      blooms,
		traceBlooms: traceBlooms,
	}, nil
}

// IsIOError reports whether err is an IOError.
func IsIOError(err error) bool {
	var ioErr *IOError
	return errors.As(err, &ioErr)
}
