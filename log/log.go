// Copyright (c) 2024 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package log provides package scoped structured loggers on top of go-ethereum's log.
// Loggers created by WithContext resolve the root logger at each call, so a handler
// installed later by the command takes effect for loggers declared at package level.
package log

import (
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	ethlog "github.com/ethereum/go-ethereum/log"
)

// Log levels.
const (
	LevelTrace = ethlog.LevelTrace
	LevelDebug = ethlog.LevelDebug
	LevelInfo  = ethlog.LevelInfo
	LevelWarn  = ethlog.LevelWarn
	LevelError = ethlog.LevelError
	LevelCrit  = ethlog.LevelCrit
)

// Logger writes key/value pairs to the root handler.
type Logger interface {
	With(ctx ...any) Logger

	Trace(msg string, ctx ...any)
	Debug(msg string, ctx ...any)
	Info(msg string, ctx ...any)
	Warn(msg string, ctx ...any)
	Error(msg string, ctx ...any)
	Crit(msg string, ctx ...any)
}

type logger struct {
	ctx []any
}

// WithContext returns a logger carrying the given context pairs.
func WithContext(ctx ...any) Logger {
	return &logger{ctx: ctx}
}

// Root returns the root logger.
func Root() Logger {
	return &logger{}
}

func (l *logger) With(ctx ...any) Logger {
	merged := make([]any, 0, len(l.ctx)+len(ctx))
	merged = append(append(merged, l.ctx...), ctx...)
	return &logger{ctx: merged}
}

func (l *logger) write(level slog.Level, msg string, ctx []any) {
	root := ethlog.Root()
	if len(l.ctx) > 0 {
		root = root.With(l.ctx...)
	}
	root.Write(level, msg, ctx...)
}

func (l *logger) Trace(msg string, ctx ...any) { l.write(LevelTrace, msg, ctx) }
func (l *logger) Debug(msg string, ctx ...any) { l.write(LevelDebug, msg, ctx) }
func (l *logger) Info(msg string, ctx ...any)  { l.write(LevelInfo, msg, ctx) }
func (l *logger) Warn(msg string, ctx ...any)  { l.write(LevelWarn, msg, ctx) }
func (l *logger) Error(msg string, ctx ...any) { l.write(LevelError, msg, ctx) }
func (l *logger) Crit(msg string, ctx ...any)  { l.write(LevelCrit, msg, ctx) }

// SetDefault installs h as the root handler.
func SetDefault(h slog.Handler) {
	ethlog.SetDefault(ethlog.NewLogger(h))
}

// NewTerminalHandler returns a human readable handler emitting records at or above level.
func NewTerminalHandler(w io.Writer, level slog.Level, useColor bool) slog.Handler {
	return ethlog.NewTerminalHandlerWithLevel(w, level, useColor)
}

// NewJSONHandler returns a handler emitting JSON records at or above level.
func NewJSONHandler(w io.Writer, level slog.Level) slog.Handler {
	return ethlog.JSONHandlerWithLevel(w, level)
}

// ParseLevel parses a level name (trace, debug, info, warn, error, crit)
// or a legacy verbosity number (0 crit .. 5 trace).
func ParseLevel(s string) (slog.Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 || n > 5 {
			return 0, errors.Errorf("verbosity %d out of range [0, 5]", n)
		}
		return ethlog.FromLegacyLevel(n), nil
	}
	switch s {
	case "trace", "trce":
		return LevelTrace, nil
	case "debug", "dbug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn":
		return LevelWarn, nil
	case "error", "eror":
		return LevelError, nil
	case "crit":
		return LevelCrit, nil
	}
	return 0, errors.Errorf("unknown log level %q", s)
}
