// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"runtime"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/vechain/worldstate/chaindb"
	"github.com/vechain/worldstate/journaldb"
	"github.com/vechain/worldstate/log"
	"github.com/vechain/worldstate/state"
	"github.com/vechain/worldstate/thor"
	cli "gopkg.in/urfave/cli.v1"
)

const (
	exitFailure     = 1
	exitUnavailable = 2
	exitCorrupted   = 3
)

// exitCode maps an error to the process exit code. State that is gone but may
// be found elsewhere is told apart from state that is broken.
func exitCode(err error) int {
	kind, ok := state.KindOf(err)
	if !ok {
		return exitFailure
	}
	switch kind {
	case state.KindRootNotFound, state.KindStateUnavailable:
		return exitUnavailable
	case state.KindCorrupted, state.KindHashMismatch:
		return exitCorrupted
	default:
		return exitFailure
	}
}

func initLogger(ctx *cli.Context) error {
	level, err := log.ParseLevel(ctx.GlobalString(verbosityFlag.Name))
	if err != nil {
		return err
	}
	if ctx.GlobalBool(jsonLogsFlag.Name) {
		log.SetDefault(log.NewJSONHandler(os.Stderr, level))
		return nil
	}
	fd := os.Stderr.Fd()
	useColor := (isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)) && os.Getenv("TERM") != "dumb"
	log.SetDefault(log.NewTerminalHandler(os.Stderr, level, useColor))
	return nil
}

func defaultDataDir() string {
	if home := homeDir(); home != "" {
		switch runtime.GOOS {
		case "darwin":
			return filepath.Join(home, "Library", "Application Support", "org.vechain.worldstate")
		case "windows":
			return filepath.Join(home, "AppData", "Roaming", "org.vechain.worldstate")
		default:
			return filepath.Join(home, ".org.vechain.worldstate")
		}
	}
	return ""
}

func homeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// sizeOfDir returns the disk usage in bytes of files under path.
func sizeOfDir(path string) (int64, error) {
	var size int64
	err := filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		size += info.Size()
		return nil
	})
	return size, err
}

func databaseConfig(ctx *cli.Context) (chaindb.Config, error) {
	cfg := chaindb.DefaultConfig()
	if path := ctx.GlobalString(configFlag.Name); path != "" {
		var err error
		if cfg, err = chaindb.LoadConfig(path); err != nil {
			return chaindb.Config{}, err
		}
	}
	if engine := ctx.GlobalString(engineFlag.Name); engine != "" {
		cfg.Engine = engine
	}
	return cfg, nil
}

// env is what commands work on.
type env struct {
	dataDir string
	db      chaindb.Database
	journal *journaldb.Database
}

func (e *env) Close() {
	if err := e.db.Close(); err != nil {
		logger.Warn("failed to close database", "err", err)
	}
}

func openEnv(ctx *cli.Context) (*env, error) {
	dataDir := ctx.GlobalString(dataDirFlag.Name)
	if dataDir == "" {
		return nil, errors.New("unable to infer default data dir, use --data-dir")
	}
	cfg, err := databaseConfig(ctx)
	if err != nil {
		return nil, err
	}
	algo, err := journaldb.ParseAlgorithm(ctx.GlobalString(algorithmFlag.Name))
	if err != nil {
		return nil, err
	}

	db, err := chaindb.Open(dataDir, cfg)
	if err != nil {
		return nil, err
	}
	journal, err := journaldb.New(db.KeyValue(), algo, chaindb.ColState, &journaldb.Options{
		History:     ctx.GlobalUint64(historyFlag.Name),
		CacheSizeMB: journaldb.DefaultCacheSizeMB,
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &env{dataDir, db, journal}, nil
}

// head returns the root and number of the latest committed era. The tool
// commits a single chain, identifying blocks by their state root.
func (e *env) head() (root thor.Bytes32, number uint64, ok bool, err error) {
	number, ok = e.journal.Latest()
	if !ok {
		return thor.Bytes32{}, 0, false, nil
	}
	ids, err := e.journal.Journaled(number)
	if err != nil {
		return thor.Bytes32{}, 0, false, err
	}
	switch len(ids) {
	case 0:
		return thor.Bytes32{}, 0, false, errors.Errorf("era %v has no journal entry", number)
	case 1:
		return ids[0], number, true, nil
	default:
		return thor.Bytes32{}, 0, false, errors.Errorf("era %v has %v entries, use --root", number, len(ids))
	}
}

// rootOf returns the --root flag, or the head root.
func (e *env) rootOf(ctx *cli.Context) (thor.Bytes32, error) {
	if s := ctx.String(rootFlag.Name); s != "" {
		return thor.ParseBytes32(s)
	}
	root, _, ok, err := e.head()
	if err != nil {
		return thor.Bytes32{}, err
	}
	if !ok {
		return thor.Bytes32{}, errors.New("no state committed, run init first")
	}
	return root, nil
}

// finalise makes canonical the era falling out of the retained window, if any.
func (e *env) finalise(latest uint64) error {
	history := e.journal.History()
	if latest < history {
		return nil
	}
	n := latest - history
	ids, err := e.journal.Journaled(n)
	if err != nil {
		return err
	}
	if len(ids) != 1 {
		// already finalised, or not a single chain
		return nil
	}
	if err := e.journal.MarkCanonical(n, ids[0]); err != nil {
		return errors.WithMessagef(err, "finalise era %v", n)
	}
	return nil
}
