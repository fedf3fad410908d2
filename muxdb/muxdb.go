// Copyright (c) 2019 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package muxdb implements the key-value storage layer.
// It multiplexes a fixed number of columns and general purpose named kv-stores over one engine.
package muxdb

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/bloom"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	dberrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/vechain/worldstate/kv"
	"github.com/vechain/worldstate/log"
	"github.com/vechain/worldstate/muxdb/internal/engine"
)

const (
	// MaxColumns is the max number of columns. Column ids are single byte key prefixes,
	// and the last prefix is reserved for named stores.
	MaxColumns = int(namedStoreSpace)

	namedStoreSpace = byte(0xff) // the key space for named store.
)

const (
	propStoreName = "muxdb.props"
	configKey     = "config"
)

// Engine names.
const (
	LevelDB = engine.LevelDB
	Pebble  = engine.Pebble
)

var logger = log.WithContext("pkg", "muxdb")

var (
	// ErrColumnMismatch is returned when a database is reopened with a different column count.
	ErrColumnMismatch = errors.New("column count mismatch")
	// ErrEngineMismatch is returned when a database is reopened with a different engine.
	ErrEngineMismatch = errors.New("engine mismatch")
)

// Options optional parameters for MuxDB.
type Options struct {
	// Engine is the underlying engine, LevelDB if empty.
	Engine string
	// Columns is the number of columns. It's persisted on creation.
	Columns int

	// OpenFilesCacheCapacity is the capacity of open files caching for underlying database.
	OpenFilesCacheCapacity int
	// ReadCacheMB is the size of read cache for underlying database.
	ReadCacheMB int
	// WriteBufferMB is the size of write buffer for underlying database.
	WriteBufferMB int
}

// MuxDB is the database multiplexing columns over one kv engine.
type MuxDB struct {
	engine  engine.Engine
	columns []kv.Store
}

// Open opens or creates DB at the given path.
func Open(path string, options *Options) (*MuxDB, error) {
	if options.Columns < 0 || options.Columns > MaxColumns {
		return nil, fmt.Errorf("invalid column count %d", options.Columns)
	}

	var (
		eng engine.Engine
		err error
	)
	switch options.Engine {
	case "", LevelDB:
		eng, err = openLevelDB(path, options)
	case Pebble:
		eng, err = openPebble(path, options)
	default:
		return nil, fmt.Errorf("unsupported engine %q", options.Engine)
	}
	if err != nil {
		return nil, err
	}

	// persists critical options to avoid corruption when tweaked.
	propStore := kv.Bucket(string([]byte{namedStoreSpace}) + propStoreName).NewStore(eng)
	cfg := config{
		Engine:  eng.Name(),
		Columns: options.Columns,
	}
	if err := cfg.LoadOrSave(propStore); err != nil {
		eng.Close()
		return nil, err
	}
	if cfg.Engine != eng.Name() {
		eng.Close()
		return nil, errors.Wrapf(ErrEngineMismatch, "want %s, stored %s", eng.Name(), cfg.Engine)
	}
	if cfg.Columns != options.Columns {
		eng.Close()
		return nil, errors.Wrapf(ErrColumnMismatch, "want %d, stored %d", options.Columns, cfg.Columns)
	}

	logger.Debug("database opened", "path", path, "engine", eng.Name(), "columns", cfg.Columns)
	return newMuxDB(eng, options.Columns), nil
}

func openLevelDB(path string, options *Options) (engine.Engine, error) {
	ldbOpts := opt.Options{
		OpenFilesCacheCapacity: options.OpenFilesCacheCapacity,
		BlockCacheCapacity:     options.ReadCacheMB * opt.MiB,
		WriteBuffer:            options.WriteBufferMB * opt.MiB,
		Filter:                 filter.NewBloomFilter(10),
		BlockSize:              1024 * 32, // balance performance of point reads and compression ratio.
		CompactionTableSize:    4 * opt.MiB,
	}

	ldb, err := leveldb.OpenFile(path, &ldbOpts)
	if _, corrupted := err.(*dberrors.ErrCorrupted); corrupted {
		logger.Warn("database corrupted, try to recover", "path", path, "err", err)
		ldb, err = leveldb.RecoverFile(path, &ldbOpts)
	}
	if err != nil {
		return nil, err
	}
	return engine.NewLevelEngine(ldb), nil
}

func openPebble(path string, options *Options) (engine.Engine, error) {
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, err
	}
	cacheBytes := int64(options.ReadCacheMB) * 1024 * 1024
	if cacheBytes <= 0 {
		cacheBytes = 8 * 1024 * 1024
	}
	cache := pebble.NewCache(cacheBytes)
	defer cache.Unref()

	popts := &pebble.Options{
		Cache:        cache,
		MaxOpenFiles: options.OpenFilesCacheCapacity,
		Levels: []pebble.LevelOptions{
			{TargetFileSize: 2 * 1024 * 1024, FilterPolicy: bloom.FilterPolicy(10)},
			{TargetFileSize: 4 * 1024 * 1024, FilterPolicy: bloom.FilterPolicy(10)},
			{TargetFileSize: 8 * 1024 * 1024, FilterPolicy: bloom.FilterPolicy(10)},
			{TargetFileSize: 16 * 1024 * 1024, FilterPolicy: bloom.FilterPolicy(10)},
		},
	}
	if options.WriteBufferMB > 0 {
		popts.MemTableSize = uint64(options.WriteBufferMB) * 1024 * 1024
	}
	if popts.MaxOpenFiles <= 0 {
		popts.MaxOpenFiles = 64
	}

	pdb, err := pebble.Open(path, popts)
	if err != nil {
		return nil, err
	}
	return engine.NewPebbleEngine(pdb), nil
}

// NewMem creates a memory-backed DB with the given column count.
func NewMem(columns int) *MuxDB {
	if columns < 0 || columns > MaxColumns {
		panic(fmt.Sprintf("invalid column count %d", columns))
	}
	storage := storage.NewMemStorage()
	ldb, _ := leveldb.Open(storage, nil)

	return newMuxDB(engine.NewLevelEngine(ldb), columns)
}

func newMuxDB(eng engine.Engine, columns int) *MuxDB {
	db := &MuxDB{
		engine:  eng,
		columns: make([]kv.Store, columns),
	}
	for i := range db.columns {
		db.columns[i] = kv.Bucket([]byte{byte(i)}).NewStore(eng)
	}
	return db
}

// Close closes the DB.
func (db *MuxDB) Close() error {
	return db.engine.Close()
}

// Engine returns the name of the underlying engine.
func (db *MuxDB) Engine() string {
	return db.engine.Name()
}

// Columns returns the number of columns.
func (db *MuxDB) Columns() int {
	return len(db.columns)
}

// Column returns the kv-store of the column id.
func (db *MuxDB) Column(id int) kv.Store {
	if id < 0 || id >= len(db.columns) {
		panic(fmt.Sprintf("column %d out of range [0, %d)", id, len(db.columns)))
	}
	return db.columns[id]
}

// NewStore creates named kv-store.
func (db *MuxDB) NewStore(name string) kv.Store {
	return kv.Bucket(string([]byte{namedStoreSpace}) + name).NewStore(db.engine)
}

// IsNotFound returns if the error indicates key not found.
func (db *MuxDB) IsNotFound(err error) bool {
	return db.engine.IsNotFound(err)
}

type config struct {
	Engine  string
	Columns int
}

// LoadOrSave loads the stored config, or saves c if none stored.
func (c *config) LoadOrSave(store kv.Store) error {
	// try to load
	data, err := store.Get([]byte(configKey))
	if err == nil {
		// and decode
		return json.Unmarshal(data, c)
	}

	if !store.IsNotFound(err) {
		return err
	}
	// not found
	// encode and save
	data, err = json.Marshal(c)
	if err != nil {
		return err
	}
	return store.Put([]byte(configKey), data)
}
