// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"fmt"
	"math"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/vechain/worldstate/logdb"
	"github.com/vechain/worldstate/state"
	"github.com/vechain/worldstate/thor"
	cli "gopkg.in/urfave/cli.v1"
)

func initAction(ctx *cli.Context) error {
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	root, number, ok, err := e.head()
	if err != nil {
		return err
	}
	if ok {
		fmt.Printf("already initialised, era %v root %v\n", number, root)
		return nil
	}
	root, err = state.New(e.journal, 0, state.DefaultFactories()).Commit()
	if err != nil {
		return err
	}
	logger.Info("database initialised", "dir", e.dataDir, "algorithm", e.journal.Algorithm())
	fmt.Printf("era 0 root %v\n", root)
	return nil
}

func inspectAction(ctx *cli.Context) error {
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	fmt.Printf("data dir:   %v\n", e.dataDir)
	fmt.Printf("algorithm:  %v\n", e.journal.Algorithm())
	fmt.Printf("history:    %v\n", e.journal.History())
	if n, ok := e.journal.Finalised(); ok {
		fmt.Printf("finalised:  %v\n", n)
	}

	latest, ok := e.journal.Latest()
	if !ok {
		fmt.Println("latest era: none")
	} else {
		fmt.Printf("latest era: %v\n", latest)
		from := uint64(0)
		if latest >= e.journal.History() {
			from = latest - e.journal.History()
		}
		for n := from; n <= latest; n++ {
			ids, err := e.journal.Journaled(n)
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Printf("  #%v %v\n", n, id)
			}
		}
	}

	size, err := sizeOfDir(e.dataDir)
	if err != nil {
		return err
	}
	fmt.Printf("disk usage: %v bytes\n", size)
	return nil
}

func parseAddresses(ctx *cli.Context) ([]thor.Address, error) {
	var addrs []thor.Address
	for _, s := range ctx.StringSlice(addressFlag.Name) {
		addr, err := thor.ParseAddress(s)
		if err != nil {
			return nil, errors.WithMessagef(err, "address %q", s)
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

func getAction(ctx *cli.Context) error {
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	addrs, err := parseAddresses(ctx)
	if err != nil {
		return err
	}
	root, err := e.rootOf(ctx)
	if err != nil {
		return err
	}
	st, err := state.FromExisting(e.journal, root, 0, state.DefaultFactories())
	if err != nil {
		return err
	}
	for _, addr := range addrs {
		acc, err := st.GetAccount(addr)
		if err != nil {
			return err
		}
		if acc == nil {
			fmt.Printf("%v: absent\n", addr)
			continue
		}
		fmt.Printf("%v: nonce %v balance %v code %v storage %v\n",
			addr, acc.Nonce, acc.Balance.Dec(), acc.CodeHash, acc.StorageRoot)
	}
	return nil
}

func parseBalance(s string) (*uint256.Int, error) {
	if strings.HasPrefix(s, "0x") {
		return uint256.FromHex(s)
	}
	return uint256.FromDecimal(s)
}

func parseSlot(s string) (key, value thor.Bytes32, err error) {
	k, v, ok := strings.Cut(s, "=")
	if !ok {
		return key, value, errors.Errorf("storage %q: want key=value", s)
	}
	if key, err = thor.ParseBytes32(k); err != nil {
		return key, value, errors.WithMessagef(err, "storage key %q", k)
	}
	if value, err = thor.ParseBytes32(v); err != nil {
		return key, value, errors.WithMessagef(err, "storage value %q", v)
	}
	return key, value, nil
}

func putAction(ctx *cli.Context) error {
	addrs, err := parseAddresses(ctx)
	if err != nil {
		return err
	}
	if len(addrs) != 1 {
		return errors.New("exactly one --address is required")
	}
	addr := addrs[0]

	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	root, number, ok, err := e.head()
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("no state committed, run init first")
	}
	st, err := state.FromExisting(e.journal, root, 0, state.DefaultFactories())
	if err != nil {
		return err
	}

	if ctx.Bool(removeFlag.Name) {
		if err := st.RemoveAccount(addr); err != nil {
			return err
		}
	} else {
		if ctx.IsSet(balanceFlag.Name) {
			balance, err := parseBalance(ctx.String(balanceFlag.Name))
			if err != nil {
				return errors.WithMessage(err, "balance")
			}
			if err := st.SetBalance(addr, balance); err != nil {
				return err
			}
		}
		if ctx.IsSet(nonceFlag.Name) {
			if err := st.SetNonce(addr, ctx.Uint64(nonceFlag.Name)); err != nil {
				return err
			}
		}
		if ctx.IsSet(codeFlag.Name) {
			code, err := hexutil.Decode(ctx.String(codeFlag.Name))
			if err != nil {
				return errors.WithMessage(err, "code")
			}
			if err := st.SetCode(addr, code); err != nil {
				return err
			}
		}
		for _, s := range ctx.StringSlice(storageFlag.Name) {
			key, value, err := parseSlot(s)
			if err != nil {
				return err
			}
			if err := st.SetStorage(addr, key, value); err != nil {
				return err
			}
		}
	}

	newRoot, err := st.Commit()
	if err != nil {
		return err
	}
	if err := e.finalise(number + 1); err != nil {
		return err
	}
	fmt.Printf("era %v root %v\n", number+1, newRoot)
	return nil
}

func verifyAction(ctx *cli.Context) error {
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	root, err := e.rootOf(ctx)
	if err != nil {
		return err
	}
	stats, err := state.Verify(e.journal, root, state.DefaultFactories().Trie)
	if stats != nil {
		fmt.Printf("accounts %v (nodes %v), storage slots %v (nodes %v), codes %v\n",
			stats.Accounts, stats.AccountNodes, stats.Slots, stats.StorageNodes, stats.Codes)
	}
	if err != nil {
		if kind, ok := state.KindOf(err); ok {
			logger.Error("state verification failed", "root", root, "kind", kind, "err", err)
		}
		return err
	}
	fmt.Printf("state %v is intact\n", root)
	return nil
}

func parseFilter(ctx *cli.Context) (*logdb.Filter, error) {
	addrs, err := parseAddresses(ctx)
	if err != nil {
		return nil, err
	}
	filter := &logdb.Filter{Addresses: addrs}
	for _, s := range ctx.StringSlice(topicFlag.Name) {
		var set []thor.Bytes32
		for _, item := range strings.Split(s, ",") {
			if item = strings.TrimSpace(item); item == "" {
				continue
			}
			topic, err := thor.ParseBytes32(item)
			if err != nil {
				return nil, errors.WithMessagef(err, "topic %q", item)
			}
			set = append(set, topic)
		}
		filter.Topics = append(filter.Topics, set)
	}
	return filter, nil
}

func bloomsAction(ctx *cli.Context) error {
	filter, err := parseFilter(ctx)
	if err != nil {
		return err
	}
	from, to := ctx.Uint64(fromFlag.Name), uint64(math.MaxUint64)
	if ctx.IsSet(toFlag.Name) {
		to = ctx.Uint64(toFlag.Name)
	}
	if from > to {
		return errors.Errorf("--from %v beyond --to %v", from, to)
	}

	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	index := e.db.Blooms()
	if ctx.Bool(traceFlag.Name) {
		index = e.db.TraceBlooms()
	}
	numbers, err := index.Filter(from, to, filter.Blooms())
	if err != nil {
		return err
	}
	for _, n := range numbers {
		fmt.Println(n)
	}
	logger.Debug("blooms filtered", "from", from, "to", to, "matched", len(numbers))
	return nil
}
