// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"github.com/vechain/worldstate/journaldb"
	"github.com/vechain/worldstate/muxdb"
	cli "gopkg.in/urfave/cli.v1"
)

var (
	dataDirFlag = cli.StringFlag{
		Name:  "data-dir",
		Value: defaultDataDir(),
		Usage: "directory of the database",
	}
	configFlag = cli.StringFlag{
		Name:  "config",
		Usage: "path to a YAML file of database options",
	}
	engineFlag = cli.StringFlag{
		Name:  "engine",
		Usage: "key-value engine of a new database (" + muxdb.LevelDB + " or " + muxdb.Pebble + ")",
	}
	algorithmFlag = cli.StringFlag{
		Name:  "algorithm",
		Value: journaldb.EarlyMerge.String(),
		Usage: "state pruning algorithm (archive or earlymerge)",
	}
	historyFlag = cli.Uint64Flag{
		Name:  "history",
		Value: journaldb.DefaultHistory,
		Usage: "count of recent eras kept journaled",
	}
	verbosityFlag = cli.StringFlag{
		Name:  "verbosity",
		Value: "info",
		Usage: "log verbosity (trace, debug, info, warn, error, crit or 0-5)",
	}
	jsonLogsFlag = cli.BoolFlag{
		Name:  "json-logs",
		Usage: "output logs in JSON format",
	}
	rootFlag = cli.StringFlag{
		Name:  "root",
		Usage: "state root, the latest committed one if omitted",
	}
	addressFlag = cli.StringSliceFlag{
		Name:  "address",
		Usage: "account address",
	}
	balanceFlag = cli.StringFlag{
		Name:  "balance",
		Usage: "balance in decimal or 0x hex",
	}
	nonceFlag = cli.Uint64Flag{
		Name:  "nonce",
		Usage: "account nonce",
	}
	codeFlag = cli.StringFlag{
		Name:  "code",
		Usage: "contract code in hex",
	}
	storageFlag = cli.StringSliceFlag{
		Name:  "storage",
		Usage: "storage slot as key=value, both 32 bytes hex",
	}
	removeFlag = cli.BoolFlag{
		Name:  "remove",
		Usage: "remove the account",
	}
	fromFlag = cli.Uint64Flag{
		Name:  "from",
		Usage: "first block number",
	}
	toFlag = cli.Uint64Flag{
		Name:  "to",
		Usage: "last block number, the last indexed one if omitted",
	}
	topicFlag = cli.StringSliceFlag{
		Name:  "topic",
		Usage: "topics at position i as comma separated hex, repeat for each position",
	}
	traceFlag = cli.BoolFlag{
		Name:  "trace",
		Usage: "filter the trace bloom index instead of the log one",
	}
	apiAddrFlag = cli.StringFlag{
		Name:  "api-addr",
		Value: "localhost:8669",
		Usage: "API service listening address",
	}
	apiCorsFlag = cli.StringFlag{
		Name:  "api-cors",
		Value: "",
		Usage: "comma separated list of domains from which to accept cross origin requests to API",
	}
	enableMetricsFlag = cli.BoolFlag{
		Name:  "enable-metrics",
		Usage: "serve prometheus metrics at /metrics",
	}
)
