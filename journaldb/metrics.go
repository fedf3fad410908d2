// Copyright (c) 2024 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package journaldb

import "github.com/vechain/worldstate/metrics"

var (
	metricCacheHitMiss   = metrics.LazyLoadCounterVec("journal_node_cache_hit_miss_count", []string{"event"})
	metricCommittedNodes = metrics.LazyLoadCounter("journal_committed_nodes_count")
	metricPrunedNodes    = metrics.LazyLoadCounter("journal_pruned_nodes_count")
	metricCommitFailures = metrics.LazyLoadCounter("journal_commit_failures_count")
	metricCommitDuration = metrics.LazyLoadHistogram("journal_commit_duration_ms", metrics.BucketCommitMS)
	metricLatestEra      = metrics.LazyLoadGauge("journal_latest_era")
	metricFinalisedEra   = metrics.LazyLoadGauge("journal_finalised_era")
)

var (
	hitLabels  = map[string]string{"event": "hit"}
	missLabels = map[string]string{"event": "miss"}
)
