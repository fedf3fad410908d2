// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package chaindb

// Handler opens databases by path.
type Handler interface {
	Open(path string) (Database, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(path string) (Database, error)

// Open implements Handler.
func (f HandlerFunc) Open(path string) (Database, error) { return f(path) }

// NewRestorationHandler returns the handler used to open the target database
// of a snapshot restoration. Opening an absent path creates an empty database,
// opening an existing one resumes it.
func NewRestorationHandler(cfg Config) Handler {
	return HandlerFunc(func(path string) (Database, error) {
		logger.Debug("open restoration database", "path", path)
		return Open(path, cfg)
	})
}
