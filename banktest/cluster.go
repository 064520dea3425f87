// Copyright 2021 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

// Package banktest provides utilities for end-to-end
// bank testing.
package banktest

import (
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/minio/bank"
)

// Timeout is the client and broadcast timeout of a Cluster.
const Timeout = 2 * time.Second

// NewCluster starts and returns a new Cluster of 3f+1
// replicas tolerating f Byzantine replicas. The i-th
// replica behaves as the i-th fault. Replicas without
// a fault are correct.
//
// The caller should call Close when finished, to shut
// it down.
func NewCluster(f int, faults ...Fault) *Cluster {
	n := 3*f + 1
	if len(faults) > n {
		panic(fmt.Sprintf("banktest: %d faults for %d replicas", len(faults), n))
	}

	c := &Cluster{
		f:       f,
		nodes:   make([]bank.Node, 0, n),
		keys:    make([]bank.APIKey, 0, n),
		servers: make([]*httptest.Server, 0, n),
		done:    make(chan struct{}),
	}
	for i := 0; i < n; i++ {
		key, err := bank.GenerateAPIKey(rand.Reader)
		if err != nil {
			panic(fmt.Sprintf("banktest: failed to generate replica key: %v", err))
		}
		server := httptest.NewUnstartedServer(nil)
		addr, err := bank.ParseAddr("http://" + server.Listener.Addr().String())
		if err != nil {
			panic(fmt.Sprintf("banktest: invalid listener address: %v", err))
		}

		c.keys = append(c.keys, key)
		c.servers = append(c.servers, server)
		c.nodes = append(c.nodes, bank.Node{
			Name:      "replica-" + strconv.Itoa(i),
			Addr:      addr,
			PublicKey: key.Public(),
		})
	}

	for i, server := range c.servers {
		replica, err := bank.NewReplica(&bank.Config{
			Name:      c.nodes[i].Name,
			Key:       c.keys[i],
			Byzantine: f,
			Replicas:  c.nodes,
			Timeout:   Timeout,
			ErrorLog:  slog.NewTextHandler(io.Discard, nil),
		})
		if err != nil {
			panic(fmt.Sprintf("banktest: failed to create replica: %v", err))
		}
		c.replicas = append(c.replicas, replica)

		fault := Correct
		if i < len(faults) {
			fault = faults[i]
		}
		server.Config.Handler = fault.handler(c.keys[i].Private(), c.done, replica.Handler())
		server.Start()
	}
	return c
}

// A Cluster is a set of bank replicas listening on
// system-chosen ports on the local loopback interface,
// for use in end-to-end tests.
type Cluster struct {
	f        int
	nodes    []bank.Node
	keys     []bank.APIKey
	servers  []*httptest.Server
	replicas []*bank.Replica

	done      chan struct{}
	closeOnce sync.Once
}

// Byzantine returns the number of Byzantine replicas
// tolerated by the Cluster.
func (c *Cluster) Byzantine() int { return c.f }

// Nodes returns the replicas of the Cluster.
func (c *Cluster) Nodes() []bank.Node { return c.nodes }

// Replica returns the i-th replica.
func (c *Cluster) Replica(i int) *bank.Replica { return c.replicas[i] }

// NewClient returns a new Client for the Cluster. It
// generates a new account key.
func (c *Cluster) NewClient() *bank.Client {
	key, err := bank.GenerateAPIKey(rand.Reader)
	if err != nil {
		panic(fmt.Sprintf("banktest: failed to generate client key: %v", err))
	}
	return c.Client(key)
}

// Client returns a new Client for the Cluster
// using the given account key.
func (c *Cluster) Client(key bank.APIKey) *bank.Client {
	client, err := bank.NewClient(&bank.ClientConfig{
		Byzantine: c.f,
		Replicas:  c.nodes,
		Key:       key,
		Timeout:   Timeout,
		ErrorLog:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		panic(fmt.Sprintf("banktest: failed to create client: %v", err))
	}
	return client
}

// Close shuts down all replicas and blocks until all
// outstanding requests have completed.
func (c *Cluster) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		for _, server := range c.servers {
			server.Close()
		}
		for _, replica := range c.replicas {
			replica.Close()
		}
	})
}
