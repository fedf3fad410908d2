// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vechain/worldstate/chaindb"
	"github.com/vechain/worldstate/journaldb"
	"github.com/vechain/worldstate/logdb"
	"github.com/vechain/worldstate/metrics"
	"github.com/vechain/worldstate/state"
	"github.com/vechain/worldstate/thor"
)

func run(t *testing.T, dataDir string, args ...string) error {
	return newApp().Run(append([]string{"statetool", "--data-dir", dataDir, "--verbosity", "error"}, args...))
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errors.New("plain"), exitFailure},
		{&state.Error{Kind: state.KindRootNotFound}, exitUnavailable},
		{errors.WithMessage(&state.Error{Kind: state.KindStateUnavailable}, "get"), exitUnavailable},
		{&state.Error{Kind: state.KindCorrupted}, exitCorrupted},
		{&state.Error{Kind: state.KindHashMismatch}, exitCorrupted},
		{&state.Error{Kind: state.KindIO}, exitFailure},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, exitCode(tt.err), "%v", tt.err)
	}
}

func TestParseSlot(t *testing.T) {
	key, value, err := parseSlot("0x" + strings.Repeat("01", 32) + "=" + strings.Repeat("0", 63) + "2")
	require.Nil(t, err)
	assert.Equal(t, thor.BytesToBytes32([]byte{2}), value)
	assert.Equal(t, byte(1), key[31])

	for _, s := range []string{"", "0x01=0x02", strings.Repeat("0", 64)} {
		_, _, err := parseSlot(s)
		assert.NotNil(t, err, s)
	}
}

func TestSizeOfDir(t *testing.T) {
	dir := t.TempDir()
	require.Nil(t, os.WriteFile(filepath.Join(dir, "a"), make([]byte, 10), 0600))
	require.Nil(t, os.Mkdir(filepath.Join(dir, "sub"), 0700))
	require.Nil(t, os.WriteFile(filepath.Join(dir, "sub", "b"), make([]byte, 5), 0600))

	size, err := sizeOfDir(dir)
	require.Nil(t, err)
	assert.Equal(t, int64(15), size)
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()
	addr := thor.BytesToAddress([]byte("account")).String()

	require.Nil(t, run(t, dir, "init"))
	require.Nil(t, run(t, dir, "init"))
	require.Nil(t, run(t, dir, "put", "--address", addr, "--balance", "1000", "--nonce", "3",
		"--code", "0x6001", "--storage", strings.Repeat("0", 63)+"1="+strings.Repeat("0", 63)+"7"))
	require.Nil(t, run(t, dir, "get", "--address", addr))
	require.Nil(t, run(t, dir, "verify"))
	require.Nil(t, run(t, dir, "inspect"))
	require.Nil(t, run(t, dir, "blooms", "--address", addr))

	err := run(t, dir, "verify", "--root", thor.Keccak256([]byte("absent")).String())
	assert.Equal(t, exitUnavailable, exitCode(err))

	assert.NotNil(t, run(t, dir, "put", "--balance", "1"))
	assert.NotNil(t, run(t, dir, "--algorithm", "archive", "inspect"))

	db, err := chaindb.Open(dir, chaindb.DefaultConfig())
	require.Nil(t, err)
	defer db.Close()
	journal, err := journaldb.New(db.KeyValue(), journaldb.EarlyMerge, chaindb.ColState, nil)
	require.Nil(t, err)
	latest, ok := journal.Latest()
	require.True(t, ok)
	assert.Equal(t, uint64(1), latest)

	ids, err := journal.Journaled(latest)
	require.Nil(t, err)
	require.Len(t, ids, 1)
	st, err := state.FromExisting(journal, ids[0], 0, state.DefaultFactories())
	require.Nil(t, err)
	nonce, err := st.GetNonce(thor.MustParseAddress(addr))
	require.Nil(t, err)
	assert.Equal(t, uint64(3), nonce)
	code, err := st.GetCode(thor.MustParseAddress(addr))
	require.Nil(t, err)
	assert.Equal(t, []byte{0x60, 0x01}, code)
}

func TestHandler(t *testing.T) {
	db, err := chaindb.NewMem()
	require.Nil(t, err)
	defer db.Close()

	metrics.InitializePrometheusMetrics()
	ts := httptest.NewServer(newHandler(logdb.NewFromDatabase(db), "https://example.org", true))
	defer ts.Close()

	res, err := http.Post(ts.URL+"/logs", "application/json", nil) // #nosec
	require.Nil(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/logs", nil)
	require.Nil(t, err)
	req.Header.Set("Origin", "https://example.org")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	res, err = http.DefaultClient.Do(req)
	require.Nil(t, err)
	res.Body.Close()
	assert.Equal(t, "https://example.org", res.Header.Get("Access-Control-Allow-Origin"))

	res, err = http.Get(ts.URL + "/metrics") // #nosec
	require.Nil(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}
