// Copyright 2023 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

// Package headers defines the HTTP headers and content
// types exchanged between replicas and clients.
package headers

import (
	"net/http"
	"slices"
	"strings"
)

// HTTP headers used by replicas and clients.
const (
	Accept        = "Accept"         // RFC 2616
	ContentType   = "Content-Type"   // RFC 2616
	ContentLength = "Content-Length" // RFC 2616
)

// HTTP content types. Requests and responses are JSON
// encoded. The error log is streamed as JSON lines and
// metrics use the Prometheus text format.
const (
	ContentTypeJSON      = "application/json"
	ContentTypeJSONLines = "application/x-ndjson"
	ContentTypeText      = "text/plain"
	ContentTypeHTML      = "text/html"
)

// Accepts reports whether h contains an "Accept" header
// that includes s.
func Accepts(h http.Header, s string) bool {
	values := h[Accept]
	if len(values) == 0 {
		return false
	}

	return slices.ContainsFunc(values, func(v string) bool {
		if v == "*/*" { // matches any MIME type
			return true
		}
		if v == s {
			return true
		}
		if i := strings.IndexByte(v, '*'); i > 0 { // MIME patterns, like application/*
			if v[i-1] == '/' {
				return strings.HasPrefix(s, v[:i])
			}
		}
		return false
	})
}
