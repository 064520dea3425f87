// Copyright 2023 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

package bank

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/minio/bank/internal/api"
	"github.com/minio/bank/internal/headers"
	"github.com/minio/bank/internal/protocol"
)

func TestAPI(t *testing.T) {
	t.Parallel()

	t.Run("version", testVersion)
	t.Run("v1/status", testStatus)
	t.Run("v1/metrics", testMetrics)
	t.Run("v1/log/error", testErrorLogNotAcceptable)
	t.Run("v1/ping", testPing)
	t.Run("v1/account/open", testOpenAccount)
	t.Run("v1/broadcast/echo", testEcho)
	t.Run("method", testMethodNotAllowed)
}

func testVersion(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(newTestReplica(t).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + api.PathVersion)
	if err != nil {
		t.Fatalf("Failed to fetch version: %v", err)
	}
	defer resp.Body.Close()

	var version api.VersionResponse
	if err := json.NewDecoder(resp.Body).Decode(&version); err != nil {
		t.Fatalf("Failed to decode version: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Invalid status code: got %d - want %d", resp.StatusCode, http.StatusOK)
	}
}

func testStatus(t *testing.T) {
	t.Parallel()

	replica := newTestReplica(t)
	srv := httptest.NewServer(replica.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + api.PathStatus)
	if err != nil {
		t.Fatalf("Failed to fetch status: %v", err)
	}
	defer resp.Body.Close()

	var status api.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("Failed to decode status: %v", err)
	}
	if status.Name != replica.Name() {
		t.Fatalf("Invalid replica name: got '%s' - want '%s'", status.Name, replica.Name())
	}
	if status.Replicas != 1 || status.Quorum != 1 || status.Byzantine != 0 {
		t.Fatalf("Invalid status: %+v", status)
	}
	if status.OS == "" || status.Arch == "" {
		t.Fatalf("Status contains no OS or CPU architecture: %+v", status)
	}
}

func testMetrics(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(newTestReplica(t).Handler())
	defer srv.Close()

	// Generate at least one request before fetching the metrics.
	if resp, err := http.Get(srv.URL + api.PathStatus); err == nil {
		resp.Body.Close()
	}

	resp, err := http.Get(srv.URL + api.PathMetrics)
	if err != nil {
		t.Fatalf("Failed to fetch metrics: %v", err)
	}
	defer resp.Body.Close()

	var body bytes.Buffer
	if _, err = body.ReadFrom(resp.Body); err != nil {
		t.Fatalf("Failed to read metrics: %v", err)
	}
	if !strings.Contains(body.String(), "bank_http_request_success") {
		t.Fatalf("Metrics contain no request counter:\n%s", body.String())
	}
}

func testErrorLogNotAcceptable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(newTestReplica(t).Handler())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+api.PathLogError, nil)
	req.Header.Set(headers.Accept, headers.ContentTypeHTML)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Failed to send request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotAcceptable {
		t.Fatalf("Invalid status code: got %d - want %d", resp.StatusCode, http.StatusNotAcceptable)
	}
}

func testPing(t *testing.T) {
	t.Parallel()

	replica := newTestReplica(t)
	srv := httptest.NewServer(replica.Handler())
	defer srv.Close()

	for i, test := range pingTests {
		body, _ := json.Marshal(protocol.PingRequest{Text: test.Text})
		req, _ := http.NewRequest(http.MethodPut, srv.URL+api.PathPing, bytes.NewReader(body))
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("Test %d: failed to ping: %v", i, err)
		}

		var ping protocol.PingResponse
		err = json.NewDecoder(resp.Body).Decode(&ping)
		resp.Body.Close()
		if err != nil {
			t.Fatalf("Test %d: failed to decode response: %v", i, err)
		}
		if status := statusOf(test.Message); resp.StatusCode != status {
			t.Fatalf("Test %d: invalid status code: got %d - want %d", i, resp.StatusCode, status)
		}
		if ping.Message != test.Message {
			t.Fatalf("Test %d: got message '%s' - want '%s'", i, ping.Message, test.Message)
		}
	}
}

func testOpenAccount(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(newTestReplica(t).Handler())
	defer srv.Close()

	alice := newTestUser(t, "alice")
	openAccount := func() (*http.Response, *protocol.OpenResponse) {
		body, _ := json.Marshal(alice.openRequest())
		req, _ := http.NewRequest(http.MethodPut, srv.URL+api.PathAccountOpen, bytes.NewReader(body))
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("Failed to open account: %v", err)
		}
		defer resp.Body.Close()

		var open protocol.OpenResponse
		if err = json.NewDecoder(resp.Body).Decode(&open); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		return resp, &open
	}

	if resp, open := openAccount(); resp.StatusCode != http.StatusOK || open.Message != protocol.Valid {
		t.Fatalf("Failed to open account: %d %s", resp.StatusCode, open.Message)
	}
	resp, open := openAccount()
	if resp.StatusCode != ErrAccountExists.Status() || open.Message != ErrAccountExists.Error() {
		t.Fatalf("Opening an account twice: got %d '%s' - want %d '%s'", resp.StatusCode, open.Message, ErrAccountExists.Status(), ErrAccountExists)
	}
	if !open.Transcript().Verify(open.Key, open.Signature) {
		t.Fatal("Rejection is not signed by the replica")
	}
}

func testEcho(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(newTestReplica(t).Handler())
	defer srv.Close()

	// Votes of unknown replicas are rejected.
	body := `{"slot":"00/1","value":"AA==","nonce":1,"sender":"replica-7","signature":"AA=="}`
	req, _ := http.NewRequest(http.MethodPut, srv.URL+api.PathBroadcastEcho, strings.NewReader(body))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Failed to send echo: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("Invalid status code: got %d - want %d", resp.StatusCode, http.StatusForbidden)
	}
}

func testMethodNotAllowed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(newTestReplica(t).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + api.PathPing)
	if err != nil {
		t.Fatalf("Failed to send request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("Invalid status code: got %d - want %d", resp.StatusCode, http.StatusMethodNotAllowed)
	}
}
