// Copyright (c) 2024 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package cache

import (
	"sync/atomic"
	"time"
)

// Snapshot is the hit and miss count of a cache at some point.
type Snapshot struct {
	Hits   int64
	Misses int64
}

// Lookups returns the count of lookups.
func (s Snapshot) Lookups() int64 { return s.Hits + s.Misses }

// HitRate returns the ratio of hits to lookups, 0 if there were none.
func (s Snapshot) HitRate() float64 {
	if n := s.Lookups(); n > 0 {
		return float64(s.Hits) / float64(n)
	}
	return 0
}

// Stats counts cache hits and misses. It is safe for concurrent use.
type Stats struct {
	hit, miss  atomic.Int64
	lastReport atomic.Int64 // unix nano
	lastRate   atomic.Int32 // per mille
}

// Hit records a hit and returns the count of hits.
func (cs *Stats) Hit() int64 { return cs.hit.Add(1) }

// Miss records a miss and returns the count of misses.
func (cs *Stats) Miss() int64 { return cs.miss.Add(1) }

// Snapshot returns the current counts.
func (cs *Stats) Snapshot() Snapshot {
	return Snapshot{cs.hit.Load(), cs.miss.Load()}
}

// Report returns the current counts, and whether they are worth reporting: at
// least interval passed since the last report, and the hit rate moved since.
// Concurrent callers get at most one report per interval.
func (cs *Stats) Report(interval time.Duration) (Snapshot, bool) {
	s := cs.Snapshot()

	now := time.Now().UnixNano()
	last := cs.lastReport.Load()
	if now-last < int64(interval) || !cs.lastReport.CompareAndSwap(last, now) {
		return s, false
	}
	rate := int32(s.HitRate() * 1000)
	return s, cs.lastRate.Swap(rate) != rate
}
