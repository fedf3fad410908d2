// Copyright (c) 2018 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package logs serves log filter queries over HTTP.
package logs

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/vechain/worldstate/api/utils"
	"github.com/vechain/worldstate/logdb"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

type Logs struct {
	indexer *logdb.Indexer
}

func New(indexer *logdb.Indexer) *Logs {
	return &Logs{indexer}
}

func (l *Logs) filter(req *http.Request, body *FilterRequest) ([]*Log, error) {
	from, to, filter, err := body.rangeAndFilter()
	if err != nil {
		return nil, utils.BadRequest(err)
	}
	limit := body.Limit
	if limit == 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		return nil, utils.BadRequest(errors.Errorf("limit exceeds %v", maxLimit))
	}

	found, err := l.indexer.FilterLogs(req.Context(), from, to, filter, limit)
	if err != nil {
		return nil, err
	}
	result := make([]*Log, 0, len(found))
	for _, lg := range found {
		result = append(result, ConvertLog(lg))
	}
	return result, nil
}

func (l *Logs) handleFilterLogs(w http.ResponseWriter, req *http.Request) error {
	var body FilterRequest
	if req.ContentLength != 0 {
		if err := utils.ParseJSON(req.Body, &body); err != nil {
			return utils.BadRequest(errors.WithMessage(err, "body"))
		}
	}
	logs, err := l.filter(req, &body)
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, logs)
}

func (l *Logs) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("").Methods(http.MethodPost).HandlerFunc(utils.WrapHandlerFunc(l.handleFilterLogs))
}
