// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/vechain/worldstate/api/logs"
	"github.com/vechain/worldstate/logdb"
	"github.com/vechain/worldstate/metrics"
	cli "gopkg.in/urfave/cli.v1"
)

// newHandler routes the log filter API, and metrics if enabled.
func newHandler(indexer *logdb.Indexer, cors string, enableMetrics bool) http.Handler {
	router := mux.NewRouter()
	logs.New(indexer).Mount(router, "/logs")
	if enableMetrics {
		router.PathPrefix("/metrics").Handler(metrics.HTTPHandler())
	}

	handler := handlers.CompressHandler(router)
	if cors != "" {
		origins := strings.Split(strings.TrimSpace(cors), ",")
		for i, o := range origins {
			origins[i] = strings.ToLower(strings.TrimSpace(o))
		}
		handler = handlers.CORS(
			handlers.AllowedOrigins(origins),
			handlers.AllowedHeaders([]string{"content-type"}),
		)(handler)
	}
	return handler
}

func serveAction(ctx *cli.Context) error {
	enableMetrics := ctx.Bool(enableMetricsFlag.Name)
	if enableMetrics {
		// before any meter is created
		metrics.InitializePrometheusMetrics()
	}

	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	addr := ctx.String(apiAddrFlag.Name)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listen API addr [%v]", addr)
	}
	srv := &http.Server{
		Handler:           newHandler(logdb.NewFromDatabase(e.db), ctx.String(apiCorsFlag.Name), enableMetrics),
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
	}

	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(listener)
	}()
	logger.Info("API server started", "url", "http://"+listener.Addr().String()+"/logs")

	interrupt, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-interrupt.Done():
		logger.Info("stopping API server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-done:
		return err
	}
}
