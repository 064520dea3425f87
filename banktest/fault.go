// Copyright 2021 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

package banktest

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"sync"

	"github.com/minio/bank/internal/api"
	"github.com/minio/bank/internal/headers"
	"github.com/minio/bank/internal/protocol"
)

// Fault is the behavior of a Byzantine replica. It only
// affects responses to clients. Broadcast votes between
// replicas are not altered, unless the replica is Silent.
type Fault int

// All supported faults.
const (
	// Correct replicas follow the protocol.
	Correct Fault = iota

	// Silent replicas never respond. They behave like
	// crashed replicas and hold requests open until the
	// Cluster is closed or the caller gives up.
	Silent

	// ForgeSignature replicas replace the signature of
	// every client response with random bytes.
	ForgeSignature

	// ForgeBalance replicas return a higher balance for
	// every account. They sign the altered response with
	// their own key but cannot produce the owner's pair
	// signature for the altered balance.
	ForgeBalance

	// ForgeRID replicas report an rid close to the maximum
	// for every account. The responses carry valid replica
	// signatures.
	ForgeRID

	// StaleState replicas answer every check and audit of
	// an account with the state and history they reported
	// first. The responses carry valid replica signatures
	// and remain valid owner-signed states.
	StaleState
)

// String returns the Fault's string representation.
func (f Fault) String() string {
	switch f {
	case Correct:
		return "correct"
	case Silent:
		return "silent"
	case ForgeSignature:
		return "forge-signature"
	case ForgeBalance:
		return "forge-balance"
	case ForgeRID:
		return "forge-rid"
	case StaleState:
		return "stale-state"
	default:
		return "fault:" + strconv.Itoa(int(f))
	}
}

func (f Fault) handler(key ed25519.PrivateKey, done <-chan struct{}, next http.Handler) http.Handler {
	switch f {
	case Silent:
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-done:
			case <-r.Context().Done():
			}
		})
	case ForgeSignature:
		return rewrite(next, func(path string, body map[string]json.RawMessage) {
			if _, ok := body["signature"]; ok {
				forged, _ := json.Marshal(make([]byte, ed25519.SignatureSize))
				body["signature"] = forged
			}
		})
	case ForgeBalance:
		return replace(next, api.PathAccountCheck, func(body []byte) []byte {
			var resp protocol.CheckResponse
			if err := json.Unmarshal(body, &resp); err != nil || resp.Message != protocol.Valid {
				return body
			}
			resp.Balance += 1000
			resp.Signature = resp.Transcript().Sign(key)
			body, _ = json.Marshal(resp)
			return body
		})
	case ForgeRID:
		return replace(next, api.PathAccountRID, func(body []byte) []byte {
			var resp protocol.RIDResponse
			if err := json.Unmarshal(body, &resp); err != nil || resp.Message != protocol.Valid {
				return body
			}
			resp.RID = math.MaxUint64 - 1
			resp.Signature = resp.Transcript().Sign(key)
			body, _ = json.Marshal(resp)
			return body
		})
	case StaleState:
		var (
			mu      sync.Mutex
			states  = map[string]protocol.CheckResponse{}
			history = map[string][]protocol.Transaction{}
		)
		check := replace(next, api.PathAccountCheck, func(body []byte) []byte {
			var resp protocol.CheckResponse
			if err := json.Unmarshal(body, &resp); err != nil || resp.Message != protocol.Valid {
				return body
			}
			mu.Lock()
			first, ok := states[string(resp.Target)]
			if !ok {
				states[string(resp.Target)] = resp
			}
			mu.Unlock()
			if !ok {
				return body
			}
			resp.Balance, resp.WID = first.Balance, first.WID
			resp.PairSignature, resp.Pending = first.PairSignature, first.Pending
			resp.Signature = resp.Transcript().Sign(key)
			body, _ = json.Marshal(resp)
			return body
		})
		return replace(check, api.PathAccountAudit, func(body []byte) []byte {
			var resp protocol.AuditResponse
			if err := json.Unmarshal(body, &resp); err != nil || resp.Message != protocol.Valid {
				return body
			}
			mu.Lock()
			first, ok := history[string(resp.Target)]
			if !ok {
				history[string(resp.Target)] = resp.History
			}
			mu.Unlock()
			if !ok {
				return body
			}
			resp.History = first
			resp.Signature = resp.Transcript().Sign(key)
			body, _ = json.Marshal(resp)
			return body
		})
	default:
		return next
	}
}

// replace returns a handler that passes the response body of
// every request to path to fn and sends the returned body
// instead. Requests to other paths are served by next.
func replace(next http.Handler, path string, fn func(body []byte) []byte) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != path {
			next.ServeHTTP(w, r)
			return
		}

		rec := newRecorder(w)
		next.ServeHTTP(rec, r)
		rec.send(fn(rec.body.Bytes()))
	})
}

// rewrite returns a handler that passes the JSON object of
// every response of next to fn before sending it. Responses
// that are not JSON objects are sent unmodified.
func rewrite(next http.Handler, fn func(path string, body map[string]json.RawMessage)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := newRecorder(w)
		next.ServeHTTP(rec, r)

		var body map[string]json.RawMessage
		if w.Header().Get(headers.ContentType) != headers.ContentTypeJSON || json.Unmarshal(rec.body.Bytes(), &body) != nil {
			rec.send(rec.body.Bytes())
			return
		}
		fn(r.URL.Path, body)

		b, _ := json.Marshal(body)
		rec.send(b)
	})
}

// recorder buffers the response body until send is called.
// Headers are written to the underlying ResponseWriter
// directly.
type recorder struct {
	w    http.ResponseWriter
	code int
	body bytes.Buffer
}

func newRecorder(w http.ResponseWriter) *recorder {
	return &recorder{w: w, code: http.StatusOK}
}

func (r *recorder) Header() http.Header { return r.w.Header() }

func (r *recorder) WriteHeader(code int) { r.code = code }

func (r *recorder) Write(b []byte) (int, error) { return r.body.Write(b) }

func (r *recorder) Unwrap() http.ResponseWriter { return r.w }

func (r *recorder) send(body []byte) {
	r.w.Header().Set(headers.ContentLength, strconv.Itoa(len(body)))
	r.w.WriteHeader(r.code)
	r.w.Write(body)
}
