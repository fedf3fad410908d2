// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package bloomdb implements a three level bloom index keyed by block number.
//
// The bottom level keeps one bloom per block. The middle level merges every
// 16 blocks, the top level every 256 blocks, so a range filter skips groups
// whose merged bloom can't match.
package bloomdb

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"github.com/vechain/worldstate/log"
	"github.com/vechain/worldstate/metrics"
)

const (
	// MidGroup is the count of blocks merged into one middle level bloom.
	MidGroup = 16
	// TopGroup is the count of blocks merged into one top level bloom.
	TopGroup = MidGroup * MidGroup
)

var (
	// ErrCorrupted is returned when a bloom file is malformed.
	ErrCorrupted = errors.New("bloom index corrupted")
	// ErrLocked is returned when the directory is in use by another instance.
	ErrLocked = errors.New("bloom index locked")
	// ErrClosed is returned on access after Close.
	ErrClosed = errors.New("bloom index closed")
)

var (
	logger = log.WithContext("pkg", "bloomdb")

	metricScannedBlooms = metrics.LazyLoadCounterVec("bloom_scanned_count", []string{"level"})
)

// Database is the bloom index stored in a directory.
type Database struct {
	lock   sync.RWMutex
	dir    string
	flock  *flock.Flock
	top    *bloomFile
	mid    *bloomFile
	bot    *bloomFile
	closed bool
}

// Open opens the bloom index in dir, initializing an empty one if absent.
// The directory must exist.
func Open(dir string) (*Database, error) {
	fl := flock.New(filepath.Join(dir, "LOCK"))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, errors.Wrap(err, "lock bloom index")
	}
	if !locked {
		return nil, errors.Wrap(ErrLocked, dir)
	}

	db := &Database{dir: dir, flock: fl}
	for _, item := range []struct {
		name string
		f    **bloomFile
	}{
		{"top.bdb", &db.top},
		{"mid.bdb", &db.mid},
		{"bot.bdb", &db.bot},
	} {
		bf, err := openBloomFile(filepath.Join(dir, item.name))
		if err != nil {
			db.closeFiles()
			fl.Unlock()
			return nil, err
		}
		*item.f = bf
	}
	logger.Debug("bloom index opened", "dir", dir, "blocks", db.bot.len)
	return db, nil
}

// Dir returns the directory of the index.
func (db *Database) Dir() string {
	return db.dir
}

// InsertBlooms indexes blooms of consecutive blocks starting at from.
// Re-inserting a block replaces its own bloom, while merged levels keep the union.
func (db *Database) InsertBlooms(from uint64, blooms []types.Bloom) error {
	db.lock.Lock()
	defer db.lock.Unlock()

	if db.closed {
		return ErrClosed
	}
	for i := range blooms {
		n := from + uint64(i)
		b := &blooms[i]
		if err := db.top.accrue(n/TopGroup, b); err != nil {
			return err
		}
		if err := db.mid.accrue(n/MidGroup, b); err != nil {
			return err
		}
		if err := db.bot.replace(n, b); err != nil {
			return err
		}
	}
	return nil
}

// Bloom returns the bloom of block n. Blocks never indexed have empty blooms.
func (db *Database) Bloom(n uint64) (types.Bloom, error) {
	db.lock.RLock()
	defer db.lock.RUnlock()

	if db.closed {
		return types.Bloom{}, ErrClosed
	}
	return db.bot.get(n)
}

// Blocks returns the count of bottom level slots, one past the highest indexed block.
func (db *Database) Blocks() uint64 {
	db.lock.RLock()
	defer db.lock.RUnlock()

	return db.bot.len
}

// Filter returns numbers of blocks in [from, to] whose bloom contains any of the given blooms.
func (db *Database) Filter(from, to uint64, blooms []types.Bloom) ([]uint64, error) {
	db.lock.RLock()
	defer db.lock.RUnlock()

	if db.closed {
		return nil, ErrClosed
	}
	if from > to || len(blooms) == 0 {
		return nil, nil
	}
	if to >= db.bot.len {
		if db.bot.len == 0 {
			return nil, nil
		}
		to = db.bot.len - 1
	}

	var (
		result           []uint64
		nTop, nMid, nBot int64
	)
	for t := from / TopGroup; t <= to/TopGroup; t++ {
		nTop++
		tb, err := db.top.get(t)
		if err != nil {
			return nil, err
		}
		if !containsAny(&tb, blooms) {
			continue
		}
		midStart := max(t*MidGroup, from/MidGroup)
		midEnd := min(t*MidGroup+MidGroup-1, to/MidGroup)
		for m := midStart; m <= midEnd; m++ {
			nMid++
			mb, err := db.mid.get(m)
			if err != nil {
				return nil, err
			}
			if !containsAny(&mb, blooms) {
				continue
			}
			botStart := max(m*MidGroup, from)
			botEnd := min(m*MidGroup+MidGroup-1, to)
			for n := botStart; n <= botEnd; n++ {
				nBot++
				bb, err := db.bot.get(n)
				if err != nil {
					return nil, err
				}
				if containsAny(&bb, blooms) {
					result = append(result, n)
				}
			}
		}
	}
	metricScannedBlooms().AddWithLabel(nTop, map[string]string{"level": "top"})
	metricScannedBlooms().AddWithLabel(nMid, map[string]string{"level": "mid"})
	metricScannedBlooms().AddWithLabel(nBot, map[string]string{"level": "bot"})
	return result, nil
}

// Flush syncs bloom files to disk.
func (db *Database) Flush() error {
	db.lock.Lock()
	defer db.lock.Unlock()

	if db.closed {
		return ErrClosed
	}
	for _, bf := range []*bloomFile{db.top, db.mid, db.bot} {
		if err := bf.flush(); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes and closes the index. It's safe to call more than once.
func (db *Database) Close() error {
	db.lock.Lock()
	defer db.lock.Unlock()

	if db.closed {
		return nil
	}
	db.closed = true

	var firstErr error
	for _, bf := range []*bloomFile{db.top, db.mid, db.bot} {
		if err := bf.flush(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := db.closeFiles(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := db.flock.Unlock(); err != nil && firstErr == nil {
		firstErr = err
	}
	os.Remove(db.flock.Path())
	return firstErr
}

func (db *Database) closeFiles() error {
	var firstErr error
	for _, bf := range []*bloomFile{db.top, db.mid, db.bot} {
		if bf == nil {
			continue
		}
		if err := bf.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// containsAny reports whether b contains every bit of at least one of the blooms.
func containsAny(b *types.Bloom, blooms []types.Bloom) bool {
	for i := range blooms {
		if contains(b, &blooms[i]) {
			return true
		}
	}
	return false
}

func contains(b, sub *types.Bloom) bool {
	for i := range b {
		if b[i]&sub[i] != sub[i] {
			return false
		}
	}
	return true
}
