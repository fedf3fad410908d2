// Copyright (c) 2018 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package journaldb stores trie nodes by content hash in one column of a key-value store,
// and journals the nodes each committed block writes and orphans, so that a pruning
// algorithm can reclaim nodes without breaking states that may still be reorganized to.
package journaldb

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/qianbin/directcache"
	"github.com/vechain/worldstate/cache"
	"github.com/vechain/worldstate/kv"
	"github.com/vechain/worldstate/log"
	"github.com/vechain/worldstate/thor"
)

var logger = log.WithContext("pkg", "journaldb")

const (
	// DefaultHistory is the default number of most recent eras kept journaled.
	DefaultHistory = thor.DefaultStateHistory
	// DefaultCacheSizeMB is the default size of the clean node cache.
	DefaultCacheSizeMB = 16
)

// Options optional parameters of a journal database.
type Options struct {
	// History is the retained window: an era can be finalised only when at least
	// History newer eras are committed. Zero means DefaultHistory.
	History uint64
	// CacheSizeMB is the size of the clean node cache. Zero disables it.
	CacheSizeMB int
}

// Database is a journaling node store over one column of a key-value store.
// It implements trie.Database.
type Database struct {
	algo    Algorithm
	history uint64

	store    kv.Store // the column
	nodes    kv.Store
	refs     kv.Store
	journal  kv.Store
	meta     kv.Store
	cache    *directcache.Cache
	stats    cache.Stats
	commitMu sync.Mutex // serializes Commit and MarkCanonical

	finalised struct { // guarded by commitMu
		number uint64
		ok     bool
	}

	latest struct {
		sync.RWMutex
		number uint64
		ok     bool
	}

	pending struct {
		sync.RWMutex
		nodes    map[thor.Bytes32][]byte
		inserted []thor.Bytes32
		deleted  []thor.Bytes32
	}
}

// New opens the journal database in column col of store.
// A column keeps the algorithm it was created with; opening it with another
// algorithm fails with ErrAlgorithmMismatch.
func New(store kv.ColumnStore, algo Algorithm, col int, opts *Options) (*Database, error) {
	if !algo.valid() {
		return nil, errors.Errorf("invalid pruning algorithm %d", algo)
	}
	if col < 0 || col >= store.Columns() {
		return nil, errors.Errorf("column %d out of range [0, %d)", col, store.Columns())
	}
	if opts == nil {
		opts = &Options{CacheSizeMB: DefaultCacheSizeMB}
	}

	column := store.Column(col)
	db := &Database{
		algo:    algo,
		history: opts.History,
		store:   column,
		nodes:   nodeSpace.NewStore(column),
		refs:    refSpace.NewStore(column),
		journal: journalSpace.NewStore(column),
		meta:    metaSpace.NewStore(column),
	}
	if db.history == 0 {
		db.history = DefaultHistory
	}
	if opts.CacheSizeMB > 0 {
		db.cache = directcache.New(opts.CacheSizeMB * 1024 * 1024)
	}
	db.resetPending()

	// the algorithm is fixed once the column is in use
	saved, err := db.meta.Get(algorithmKey)
	switch {
	case err == nil:
		if len(saved) != 1 {
			return nil, errors.New("corrupted algorithm")
		}
		if Algorithm(saved[0]) != algo {
			return nil, errors.Wrapf(ErrAlgorithmMismatch, "column %d created with %v, opened with %v", col, Algorithm(saved[0]), algo)
		}
	case db.meta.IsNotFound(err):
		if err := db.meta.Put(algorithmKey, []byte{byte(algo)}); err != nil {
			return nil, errors.Wrap(err, "save algorithm")
		}
	default:
		return nil, errors.Wrap(err, "load algorithm")
	}

	latest, err := db.meta.Get(latestKey)
	switch {
	case err == nil:
		if len(latest) != 8 {
			return nil, errors.New("corrupted latest era")
		}
		db.latest.number, db.latest.ok = binary.BigEndian.Uint64(latest), true
	case !db.meta.IsNotFound(err):
		return nil, errors.Wrap(err, "load latest era")
	}

	finalised, err := db.meta.Get(finalisedKey)
	switch {
	case err == nil:
		if len(finalised) != 8 {
			return nil, errors.New("corrupted finalised era")
		}
		db.finalised.number, db.finalised.ok = binary.BigEndian.Uint64(finalised), true
	case !db.meta.IsNotFound(err):
		return nil, errors.Wrap(err, "load finalised era")
	}

	logger.Debug("journal opened", "algorithm", algo, "column", col, "history", db.history, "latest", db.latest.number)
	return db, nil
}

// Algorithm returns the pruning algorithm.
func (db *Database) Algorithm() Algorithm { return db.algo }

// History returns the retained window.
func (db *Database) History() uint64 { return db.history }

// Finalised returns the highest era finalised by MarkCanonical.
func (db *Database) Finalised() (uint64, bool) {
	db.commitMu.Lock()
	defer db.commitMu.Unlock()
	return db.finalised.number, db.finalised.ok
}

// Latest returns the highest committed era.
func (db *Database) Latest() (uint64, bool) {
	db.latest.RLock()
	defer db.latest.RUnlock()
	return db.latest.number, db.latest.ok
}

func (db *Database) resetPending() {
	db.pending.nodes = make(map[thor.Bytes32][]byte)
	db.pending.inserted = nil
	db.pending.deleted = nil
}

// Insert stages a node for the next commit. Inserting a node already known with the
// same content is fine, and counts as one more reference to it. Different content
// under a known hash fails with ErrHashMismatch.
// Each Insert must be paired with a later Remove of the same hash, or the node is
// never reclaimed.
func (db *Database) Insert(hash thor.Bytes32, blob []byte) error {
	if len(blob) == 0 {
		return errors.Errorf("insert node %v: empty blob", hash)
	}
	db.pending.Lock()
	defer db.pending.Unlock()

	if staged, ok := db.pending.nodes[hash]; ok {
		if !bytes.Equal(staged, blob) {
			return errors.Wrapf(ErrHashMismatch, "node %v", hash)
		}
	} else {
		stored, err := db.load(hash)
		if err != nil && !db.nodes.IsNotFound(err) {
			return err
		}
		if stored != nil && !bytes.Equal(stored, blob) {
			return errors.Wrapf(ErrHashMismatch, "node %v", hash)
		}
		db.pending.nodes[hash] = bytes.Clone(blob)
	}
	db.pending.inserted = append(db.pending.inserted, hash)
	return nil
}

// Remove stages that a reference to the node is dropped by the pending block.
// The node stays readable; pruning algorithms reclaim it once no finalised
// state refers to it.
func (db *Database) Remove(hash thor.Bytes32) {
	if !db.algo.IsPruning() {
		return
	}
	db.pending.Lock()
	defer db.pending.Unlock()

	db.pending.deleted = append(db.pending.deleted, hash)
}

// Discard drops everything staged since the last commit.
func (db *Database) Discard() {
	db.pending.Lock()
	defer db.pending.Unlock()

	db.resetPending()
}

// Node returns the node blob of hash.
// A missing node yields a *MissingNodeError, matching ErrStateUnavailable if the
// database prunes.
func (db *Database) Node(hash thor.Bytes32) ([]byte, error) {
	db.pending.RLock()
	blob, ok := db.pending.nodes[hash]
	db.pending.RUnlock()
	if ok {
		return blob, nil
	}

	blob, err := db.load(hash)
	if err != nil {
		if db.nodes.IsNotFound(err) {
			return nil, &MissingNodeError{Hash: hash, Pruned: db.algo.IsPruning()}
		}
		return nil, errors.Wrapf(err, "read node %v", hash)
	}
	return blob, nil
}

// Has returns whether the node is staged or stored.
func (db *Database) Has(hash thor.Bytes32) (bool, error) {
	db.pending.RLock()
	_, ok := db.pending.nodes[hash]
	db.pending.RUnlock()
	if ok {
		return true, nil
	}
	if db.cache != nil && db.cache.Has(hash[:]) {
		return true, nil
	}
	return db.nodes.Has(hash[:])
}

// load reads a stored node through the clean cache.
func (db *Database) load(hash thor.Bytes32) ([]byte, error) {
	if db.cache != nil {
		var blob []byte
		if db.cache.AdvGet(hash[:], func(val []byte) {
			blob = slices.Clone(val)
		}, false) && len(blob) > 0 {
			metricCacheHitMiss().AddWithLabel(1, hitLabels)
			if db.stats.Hit()%2000 == 0 {
				db.logStats()
			}
			return blob, nil
		}
		metricCacheHitMiss().AddWithLabel(1, missLabels)
		db.stats.Miss()
	}
	blob, err := db.nodes.Get(hash[:])
	if err != nil {
		return nil, err
	}
	if db.cache != nil {
		db.cache.Set(hash[:], blob)
	}
	return blob, nil
}

func (db *Database) logStats() {
	if s, ok := db.stats.Report(20 * time.Second); ok {
		logger.Info("node cache stats", "lookups", s.Lookups(), "hitrate", fmt.Sprintf("%.3f", s.HitRate()))
	}
}

// Commit atomically persists the staged nodes together with the journal entry of
// block id at era number, child of parent.
//
// On failure a *CommitError is returned, nothing is persisted and the staged
// nodes are kept, so the commit can be retried. Eras finalised by MarkCanonical
// take no more blocks: committing at one fails with ErrEraFinalised.
func (db *Database) Commit(number uint64, id, parent thor.Bytes32) error {
	db.commitMu.Lock()
	defer db.commitMu.Unlock()

	if db.finalised.ok && number <= db.finalised.number {
		return &CommitError{number, id, errors.Wrapf(ErrEraFinalised, "finalised up to %v", db.finalised.number)}
	}

	start := time.Now()
	jkey := journalKey(number, id)
	if has, err := db.journal.Has(jkey); err != nil {
		return &CommitError{number, id, err}
	} else if has {
		return &CommitError{number, id, ErrAlreadyJournaled}
	}

	db.pending.Lock()
	defer db.pending.Unlock()

	var (
		bulk    = db.store.Bulk()
		nodes   = nodeSpace.NewPutter(bulk)
		refs    = refSpace.NewPutter(bulk)
		journal = journalSpace.NewPutter(bulk)
		meta    = metaSpace.NewPutter(bulk)
		e       = entry{Parent: parent}
	)
	for hash, blob := range db.pending.nodes {
		if err := nodes.Put(hash[:], blob); err != nil {
			return &CommitError{number, id, err}
		}
	}
	if db.algo.IsPruning() {
		e.Inserted = db.pending.inserted
		e.Deleted = db.pending.deleted

		counts := make(map[thor.Bytes32]uint64, len(db.pending.nodes))
		for _, hash := range db.pending.inserted {
			counts[hash]++
		}
		for hash, n := range counts {
			cur, err := db.refCount(hash)
			if err != nil {
				return &CommitError{number, id, err}
			}
			if err := refs.Put(hash[:], encodeRefCount(cur+n)); err != nil {
				return &CommitError{number, id, err}
			}
		}
	}
	data, err := encodeEntry(&e)
	if err != nil {
		return &CommitError{number, id, err}
	}
	if err := journal.Put(jkey, data); err != nil {
		return &CommitError{number, id, err}
	}

	latest, ok := db.Latest()
	if !ok || number > latest {
		if err := meta.Put(latestKey, binary.BigEndian.AppendUint64(nil, number)); err != nil {
			return &CommitError{number, id, err}
		}
		latest = number
	}
	if err := bulk.Write(); err != nil {
		metricCommitFailures().Add(1)
		return &CommitError{number, id, err}
	}

	if db.cache != nil {
		for hash, blob := range db.pending.nodes {
			db.cache.Set(hash[:], blob)
		}
	}
	db.latest.Lock()
	db.latest.number, db.latest.ok = latest, true
	db.latest.Unlock()

	metricCommittedNodes().Add(int64(len(db.pending.nodes)))
	metricLatestEra().Set(int64(latest))
	metricCommitDuration().Observe(time.Since(start).Milliseconds())
	logger.Debug("committed",
		"number", number,
		"id", id.AbbrevString(),
		"nodes", len(db.pending.nodes),
		"orphaned", len(db.pending.deleted),
		"et", time.Since(start),
	)

	db.resetPending()
	return nil
}

func (db *Database) refCount(hash thor.Bytes32) (uint64, error) {
	data, err := db.refs.Get(hash[:])
	if err != nil {
		if db.refs.IsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	return decodeRefCount(data), nil
}

// Journaled returns ids of the blocks journaled at era number.
func (db *Database) Journaled(number uint64) ([]thor.Bytes32, error) {
	entries, err := db.era(number)
	if err != nil {
		return nil, err
	}
	ids := make([]thor.Bytes32, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.id)
	}
	return ids, nil
}

type eraEntry struct {
	id thor.Bytes32
	*entry
}

// era loads all journal entries of era number, ordered by id.
func (db *Database) era(number uint64) ([]eraEntry, error) {
	it := db.journal.Iterate(kv.PrefixRange(eraPrefix(number)))
	defer it.Release()

	var entries []eraEntry
	for it.Next() {
		e, err := decodeEntry(it.Value())
		if err != nil {
			return nil, errors.Wrapf(err, "decode journal entry %x", it.Key())
		}
		entries = append(entries, eraEntry{thor.BytesToBytes32(it.Key()[8:]), e})
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	return entries, nil
}

// MarkCanonical finalises era number with block id as the canonical one.
//
// The era must be out of the retained window, and older eras must be finalised
// already. With EarlyMerge, references dropped by the canonical block and references
// added by the other blocks of the era are released, and nodes left unreferenced are
// deleted. The journal entries of the era are removed in the same batch.
func (db *Database) MarkCanonical(number uint64, id thor.Bytes32) error {
	db.commitMu.Lock()
	defer db.commitMu.Unlock()

	latest, ok := db.Latest()
	if !ok {
		return errors.Wrapf(ErrNotJournaled, "block %v #%v", id.AbbrevString(), number)
	}
	if db.finalised.ok && number <= db.finalised.number {
		return errors.Wrapf(ErrEraFinalised, "era %v, finalised up to %v", number, db.finalised.number)
	}
	if number > latest || latest-number < db.history {
		return errors.Wrapf(ErrWithinWindow, "era %v, latest %v, history %v", number, latest, db.history)
	}

	// older eras first
	it := db.journal.Iterate(kv.Range{Limit: eraPrefix(number)})
	older := it.Next()
	it.Release()
	if older {
		return errors.Wrapf(ErrOutOfOrder, "era %v", number)
	}

	entries, err := db.era(number)
	if err != nil {
		return err
	}
	canon := slices.IndexFunc(entries, func(e eraEntry) bool { return e.id == id })
	if canon < 0 {
		return errors.Wrapf(ErrNotJournaled, "block %v #%v", id.AbbrevString(), number)
	}

	var (
		bulk    = db.store.Bulk()
		nodes   = nodeSpace.NewPutter(bulk)
		refs    = refSpace.NewPutter(bulk)
		journal = journalSpace.NewPutter(bulk)
		meta    = metaSpace.NewPutter(bulk)
		release = make(map[thor.Bytes32]uint64)
		pruned  []thor.Bytes32
	)
	if db.algo.IsPruning() {
		for i, e := range entries {
			hashes := e.Inserted
			if i == canon {
				hashes = e.Deleted
			}
			for _, hash := range hashes {
				release[hash]++
			}
		}
		for hash, n := range release {
			cur, err := db.refCount(hash)
			if err != nil {
				return err
			}
			if cur <= n {
				if cur < n {
					logger.Warn("reference count underflow", "node", hash, "count", cur, "release", n)
				}
				if err := refs.Delete(hash[:]); err != nil {
					return err
				}
				if err := nodes.Delete(hash[:]); err != nil {
					return err
				}
				pruned = append(pruned, hash)
			} else if err := refs.Put(hash[:], encodeRefCount(cur-n)); err != nil {
				return err
			}
		}
	}
	for _, e := range entries {
		if err := journal.Delete(journalKey(number, e.id)); err != nil {
			return err
		}
	}
	if err := meta.Put(finalisedKey, binary.BigEndian.AppendUint64(nil, number)); err != nil {
		return err
	}
	if err := bulk.Write(); err != nil {
		return errors.Wrapf(err, "finalise era %v", number)
	}
	db.finalised.number, db.finalised.ok = number, true

	if db.cache != nil {
		for _, hash := range pruned {
			db.cache.Del(hash[:])
		}
	}
	metricPrunedNodes().Add(int64(len(pruned)))
	metricFinalisedEra().Set(int64(number))
	logger.Debug("era finalised",
		"number", number,
		"canonical", id.AbbrevString(),
		"abandoned", len(entries)-1,
		"pruned", len(pruned),
	)
	return nil
}
