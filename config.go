// Copyright 2023 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

package bank

import (
	"crypto/ed25519"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultTimeout is the default deadline of one
// client call and of one broadcast vote.
const DefaultTimeout = 3 * time.Second

// Node is a replica as seen by its peers and clients.
type Node struct {
	Name      string
	Addr      Addr
	PublicKey ed25519.PublicKey
}

// Config is a structure containing the configuration
// of one replica.
type Config struct {
	// Addr optionally specifies the TCP address for the
	// replica's HTTP server to listen on, in the form
	// "host:port". If empty, ":7373" is used.
	Addr string

	// TLS, if not nil, is the TLS configuration used to
	// accept client and peer connections.
	TLS *tls.Config

	// Name is the name of the replica. It must match
	// one of the Replicas.
	Name string

	// Key is the replica's signing key. Its public key
	// must match the public key of the replica's Node.
	Key APIKey

	// Byzantine is the number of arbitrarily faulty
	// replicas tolerated. There must be exactly
	// 3*Byzantine+1 Replicas.
	Byzantine int

	// Replicas are all replicas, including this one.
	Replicas []Node

	// Timeout is the deadline for sending a broadcast
	// vote to a peer. If 0, defaults to DefaultTimeout.
	Timeout time.Duration

	// Database is the path of the account database. If
	// empty, accounts are only kept in memory.
	Database string

	// PeerTLS, if not nil, is the TLS configuration used
	// to connect to peer replicas.
	PeerTLS *tls.Config

	// ErrorLog is the handler for error and debug log
	// records. If nil, records are written to stderr.
	ErrorLog slog.Handler

	// AuditLog is the handler for audit records, one per
	// request. If nil, no audit records are produced.
	AuditLog slog.Handler
}

// Verify reports whether the configuration is complete
// and consistent.
func (c *Config) Verify() error {
	if c.Key == nil {
		return errors.New("bank: invalid config: no replica key")
	}
	if err := verifyReplicas(c.Byzantine, c.Replicas); err != nil {
		return err
	}
	node, ok := c.node(c.Name)
	if !ok {
		return fmt.Errorf("bank: invalid config: replica '%s' is not part of the replicas", c.Name)
	}
	if !node.PublicKey.Equal(c.Key.Public()) {
		return fmt.Errorf("bank: invalid config: key does not match public key of replica '%s'", c.Name)
	}
	return nil
}

func (c *Config) node(name string) (Node, bool) {
	for _, n := range c.Replicas {
		if n.Name == name {
			return n, true
		}
	}
	return Node{}, false
}

func verifyReplicas(f int, replicas []Node) error {
	if f < 0 {
		return errors.New("bank: invalid config: number of byzantine replicas is negative")
	}
	if n := 3*f + 1; len(replicas) != n {
		return fmt.Errorf("bank: invalid config: %d byzantine replicas require %d replicas but %d are given", f, n, len(replicas))
	}
	names := make(map[string]struct{}, len(replicas))
	for _, n := range replicas {
		if n.Name == "" {
			return errors.New("bank: invalid config: replica name is empty")
		}
		if _, ok := names[n.Name]; ok {
			return fmt.Errorf("bank: invalid config: replica '%s' is listed twice", n.Name)
		}
		if len(n.PublicKey) != ed25519.PublicKeySize {
			return fmt.Errorf("bank: invalid config: replica '%s' has an invalid public key", n.Name)
		}
		names[n.Name] = struct{}{}
	}
	return nil
}
