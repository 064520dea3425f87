// Copyright 2023 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

package bank

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"aead.dev/mem"
	"github.com/minio/bank/internal/api"
	"github.com/minio/bank/internal/broadcast"
	"github.com/minio/bank/internal/headers"
)

// newHTTPClient returns an HTTP client for replica and
// peer connections. Per-call deadlines are set through
// request contexts.
func newHTTPClient(config *tls.Config) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConnsPerHost:   50,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			TLSClientConfig:       config.Clone(),
		},
	}
}

// httpPeer sends broadcast votes to a peer replica.
type httpPeer struct {
	client *http.Client
	addr   Addr
}

func (p *httpPeer) Send(ctx context.Context, kind broadcast.Kind, msg *broadcast.Message) error {
	path := api.PathBroadcastEcho
	if kind == broadcast.Ready {
		path = api.PathBroadcastReady
	}

	req, err := newRequest(ctx, p.addr, path, msg)
	if err != nil {
		return err
	}
	// Votes are idempotent. Hence, a vote can be sent again
	// if the peer is temporarily unreachable.
	resp, err := (*retry)(p.client).Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return api.ReadError(resp)
	}
	return nil
}

// newRequest returns a PUT request for the path of the
// given address with body as JSON encoded request body.
func newRequest(ctx context.Context, addr Addr, path string, body any) (*http.Request, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	r, err := http.NewRequestWithContext(ctx, http.MethodPut, addr.URL(path).String(), bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	r.Header.Set(headers.ContentType, headers.ContentTypeJSON)
	return r, nil
}

// put sends the JSON encoded body as PUT request to
// the path of the given address.
func put(ctx context.Context, client *http.Client, addr Addr, path string, body any) (*http.Response, error) {
	r, err := newRequest(ctx, addr, path, body)
	if err != nil {
		return nil, err
	}
	return client.Do(r)
}

// call sends the JSON encoded request body as PUT request
// to the path of the given address and decodes the response
// body into resp.
//
// Replicas sign rejections as well. Hence, call decodes the
// response body of 4xx responses. Other status codes are
// returned as error.
func call(ctx context.Context, client *http.Client, addr Addr, path string, req, resp any) error {
	const MaxResponse = 16 * mem.MiB

	r, err := put(ctx, client, addr, path, req)
	if err != nil {
		return err
	}
	defer r.Body.Close()

	if r.StatusCode != http.StatusOK && (r.StatusCode < 400 || r.StatusCode >= 500) {
		return api.ReadError(r)
	}
	return json.NewDecoder(mem.LimitReader(r.Body, MaxResponse)).Decode(resp)
}
