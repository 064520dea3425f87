// Copyright 2023 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

// Package api defines the HTTP API exposed by replicas.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/minio/bank/internal/headers"
)

// API paths exposed by replicas. The broadcast
// APIs are only called by peer replicas.
const (
	PathVersion  = "/version"
	PathStatus   = "/v1/status"
	PathMetrics  = "/v1/metrics"
	PathLogError = "/v1/log/error"

	PathPing = "/v1/ping"

	PathAccountOpen           = "/v1/account/open"
	PathAccountCheck          = "/v1/account/check"
	PathAccountSend           = "/v1/account/send"
	PathAccountReceive        = "/v1/account/receive"
	PathAccountAudit          = "/v1/account/audit"
	PathAccountRID            = "/v1/account/rid"
	PathAccountCheckWriteBack = "/v1/account/check/writeback"
	PathAccountAuditWriteBack = "/v1/account/audit/writeback"

	PathBroadcastEcho  = "/v1/broadcast/echo"  // replica only
	PathBroadcastReady = "/v1/broadcast/ready" // replica only
)

// API describes a replica API.
type API struct {
	Method  string        // The HTTP method
	Path    string        // The URI API path
	MaxBody int64         // The max. body size the API accepts
	Timeout time.Duration // The duration after which an API request times out. 0 means no timeout

	// Handler implements the API.
	//
	// When invoked by the API's ServeHTTP method, the handler
	// can rely upon:
	//  - the request method matching the API's HTTP method.
	//  - the request path matching the API path.
	//  - the request body being limited to the API's MaxBody size.
	//  - the request timing out after the duration specified for the API.
	Handler http.Handler
}

// ServeHTTP takes an HTTP Request and ResponseWriter and executes the
// API's Handler.
func (a API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if a.Method == http.MethodPut && r.Method == http.MethodPost {
		r.Method = http.MethodPut
	}
	if r.Method != a.Method {
		w.Header().Set(headers.Accept, a.Method)
		Failf(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
		return
	}
	if r.URL.Path != a.Path {
		Failf(w, http.StatusNotFound, "api: path mismatch: received '%s' - expected '%s'", r.URL.Path, a.Path)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, a.MaxBody)

	if a.Timeout > 0 {
		switch err := http.NewResponseController(w).SetWriteDeadline(time.Now().Add(a.Timeout)); {
		case errors.Is(err, http.ErrNotSupported):
			Failf(w, http.StatusInternalServerError, "internal error: HTTP connection does not accept a timeout")
			return
		case err != nil:
			Failf(w, http.StatusInternalServerError, "internal error: %v", err)
			return
		}
	}
	a.Handler.ServeHTTP(w, r)
}

// ReadBody decodes the JSON encoded request body into v.
func ReadBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return NewError(http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", maxBytes.Limit))
		}
		return NewError(http.StatusBadRequest, "invalid request body: "+err.Error())
	}
	return nil
}

// Reply writes v as JSON encoded response body with
// the given status code.
func Reply(w http.ResponseWriter, code int, v any) error {
	w.Header().Set(headers.ContentType, headers.ContentTypeJSON)
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(v)
}
