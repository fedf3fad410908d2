// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Command statetool inspects and maintains a world state database.
package main

import (
	"fmt"
	"os"

	"github.com/vechain/worldstate/log"
	cli "gopkg.in/urfave/cli.v1"
)

var (
	version   string
	gitCommit string

	logger = log.WithContext("pkg", "statetool")
)

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "statetool"
	app.Usage = "World state database tool"
	app.Version = fmt.Sprintf("%s-%s", version, gitCommit)
	app.Flags = []cli.Flag{
		dataDirFlag,
		configFlag,
		engineFlag,
		algorithmFlag,
		historyFlag,
		verbosityFlag,
		jsonLogsFlag,
	}
	app.Before = initLogger
	app.Commands = []cli.Command{
		{
			Name:   "init",
			Usage:  "create the database with an empty state",
			Action: initAction,
		},
		{
			Name:   "inspect",
			Usage:  "print the journal and disk usage",
			Action: inspectAction,
		},
		{
			Name:   "get",
			Usage:  "print accounts",
			Flags:  []cli.Flag{rootFlag, addressFlag},
			Action: getAction,
		},
		{
			Name:   "put",
			Usage:  "change an account and commit a new state",
			Flags:  []cli.Flag{addressFlag, balanceFlag, nonceFlag, codeFlag, storageFlag, removeFlag},
			Action: putAction,
		},
		{
			Name:   "verify",
			Usage:  "check that every node, storage trie and code of a state is present and intact",
			Flags:  []cli.Flag{rootFlag},
			Action: verifyAction,
		},
		{
			Name:   "blooms",
			Usage:  "list blocks whose bloom may match addresses and topics",
			Flags:  []cli.Flag{fromFlag, toFlag, addressFlag, topicFlag, traceFlag},
			Action: bloomsAction,
		},
		{
			Name:   "serve",
			Usage:  "serve the log filter API",
			Flags:  []cli.Flag{apiAddrFlag, apiCorsFlag, enableMetricsFlag},
			Action: serveAction,
		},
	}
	return app
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Fatal:", err)
		os.Exit(exitCode(err))
	}
}
