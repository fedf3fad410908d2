// Copyright (c) 2018 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package utils has helpers shared by API handlers.
package utils

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"
)

type httpError struct {
	cause  error
	status int
}

func (e *httpError) Error() string {
	return e.cause.Error()
}

func (e *httpError) Unwrap() error { return e.cause }

// HTTPError create an error with http status code.
func HTTPError(cause error, status int) error {
	return &httpError{
		cause:  cause,
		status: status,
	}
}

// BadRequest convenience method to create http bad request error.
func BadRequest(cause error) error {
	return HTTPError(cause, http.StatusBadRequest)
}

// ServiceUnavailable marks failures a client may retry later or elsewhere.
func ServiceUnavailable(cause error) error {
	return HTTPError(cause, http.StatusServiceUnavailable)
}

// HandlerFunc like http.HandlerFunc, but it returns an error.
// If the returned error is made by HTTPError, its status is responded,
// otherwise http.StatusInternalServerError.
type HandlerFunc func(http.ResponseWriter, *http.Request) error

// WrapHandlerFunc convert HandlerFunc to http.HandlerFunc.
func WrapHandlerFunc(f HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := f(w, r)
		if err == nil {
			return
		}
		var he *httpError
		if errors.As(err, &he) {
			http.Error(w, he.cause.Error(), he.status)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// JSONContentType is the content type of JSON responses.
const JSONContentType = "application/json; charset=utf-8"

// ParseJSON parse a JSON object using strict mode.
func ParseJSON(r io.Reader, v any) error {
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// WriteJSON response an object in JSON encoding.
func WriteJSON(w http.ResponseWriter, obj any) error {
	w.Header().Set("Content-Type", JSONContentType)
	return json.NewEncoder(w).Encode(obj)
}
