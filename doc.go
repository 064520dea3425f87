// Copyright 2023 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

// Package bank implements a replicated bank ledger that tolerates
// arbitrarily faulty (Byzantine) replicas.
//
// ## Replicas
//
// A bank consists of N = 3f+1 replicas, where f is the number of
// faulty replicas tolerated. Each replica is an HTTP server that
// keeps a copy of all accounts in a local database and signs all
// of its responses with its ed25519 private key. Refer to the
// Server and Replica types.
//
// ## Clients
//
// A Client sends each request to all replicas and accepts a result
// once a quorum of 2f+1 replicas returned valid, signed responses.
// Since any two quorums intersect in at least one correct replica,
// a client always observes the latest completed write. A client
// writes the freshest state it has read back to lagging replicas.
//
// Replicas sign their rejections as well. A client returns an error
// reported by a replica once f+1 replicas agree on it.
//
// ## Writes
//
// An account is only modified by its owner. Each write carries a
// write ID (wid) that must advance the account's wid by one. Before
// applying a write, the replicas agree on it using Bracha's reliable
// broadcast: a write is applied by a correct replica only if 2f+1
// replicas vouched for the same value for the account's (key, wid)
// slot. Hence, correct replicas never apply two different writes
// with the same wid, even if the account owner equivocates.
//
// ## Transfers
//
// A transfer is a two-step process. The sender debits its balance
// and appends the transfer to the receiver's pending list. The
// receiver accepts a pending transfer, which credits its balance
// and moves the transfer to its transaction history.
//
// ## Reads
//
// Reads carry a read ID (rid) and a nonce to prevent replays of
// stale responses. A replica signs the account state together with
// the client's rid and nonce.
package bank
