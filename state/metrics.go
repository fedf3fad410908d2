// Copyright (c) 2024 The VeChainThor developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package state

import "github.com/vechain/worldstate/metrics"

var (
	metricAccountCache    = metrics.LazyLoadCounterVec("state_account_cache_count", []string{"event"})
	metricCodeCache       = metrics.LazyLoadCounterVec("state_code_cache_count", []string{"event"})
	metricCommittedDirty  = metrics.LazyLoadCounter("state_committed_accounts_count")
	metricCommitFailures  = metrics.LazyLoadCounter("state_commit_failures_count")
	metricCommitDurations = metrics.LazyLoadHistogram("state_commit_duration_ms", metrics.BucketCommitMS)
)

var (
	hitLabels   = map[string]string{"event": "hit"}
	missLabels  = map[string]string{"event": "miss"}
	evictLabels = map[string]string{"event": "evict"}
)
