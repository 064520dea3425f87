// Copyright 2024 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

package broadcast

import (
	"context"
	"encoding/hex"
	"sync"

	"github.com/minio/bank/internal/protocol"
	"golang.org/x/crypto/blake2b"
)

// Digest identifies a proposed value within its slot.
type Digest [blake2b.Size256]byte

// DigestOf returns the digest of value proposed for slot.
func DigestOf(slot string, value []byte) Digest {
	t := protocol.NewTranscript("proposal").AddString(slot).AddBytes(value)
	return blake2b.Sum256(t.Bytes())
}

// String returns the hex encoding of d.
func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// Instance counts the echo and ready votes for one
// proposed value and gates its delivery.
//
// Votes are counted per sender. A sender that votes
// twice is counted once.
type Instance struct {
	Slot   string
	Digest Digest
	Value  []byte

	owner string // replica whose vote created the instance

	mu        sync.Mutex
	echoes    map[string]struct{}
	readies   map[string]struct{}
	sentReady bool
	delivered bool
	released  bool
	err       error
	done      chan struct{}
}

func newInstance(slot string, digest Digest, value []byte) *Instance {
	return &Instance{
		Slot:    slot,
		Digest:  digest,
		Value:   value,
		echoes:  map[string]struct{}{},
		readies: map[string]struct{}{},
		done:    make(chan struct{}),
	}
}

// AddEcho records an echo vote of sender. It reports
// whether the instance has just collected a quorum of
// echoes and has to send its ready vote.
func (i *Instance) AddEcho(sender string, quorum int) (sendReady bool) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.echoes[sender] = struct{}{}
	if len(i.echoes) >= quorum && !i.sentReady {
		i.sentReady = true
		return true
	}
	return false
}

// AddReady records a ready vote of sender. It reports
// whether the instance has to send its ready vote and
// whether the value has just been delivered. Waiters are
// released once the delivery is finished.
func (i *Instance) AddReady(sender string, quorum int) (sendReady, deliver bool) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.readies[sender] = struct{}{}
	if len(i.readies) < quorum {
		return false, false
	}
	if !i.sentReady {
		i.sentReady = true
		sendReady = true
	}
	if !i.delivered {
		i.delivered = true
		deliver = true
	}
	return sendReady, deliver
}

// Wait blocks until the value has been delivered, the
// instance has been released with an error or ctx is
// done.
func (i *Instance) Wait(ctx context.Context) error {
	select {
	case <-i.done:
		i.mu.Lock()
		defer i.mu.Unlock()
		return i.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Delivered reports whether the value has been delivered.
func (i *Instance) Delivered() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.delivered
}

// Votes returns the number of echo and ready votes.
func (i *Instance) Votes() (echoes, readies int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.echoes), len(i.readies)
}

// finish releases all waiters of a delivered value.
func (i *Instance) finish() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.release(nil)
}

// abort releases all waiters with err unless the value
// has been delivered.
func (i *Instance) abort(err error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.delivered {
		i.release(err)
	}
}

// release must be called while holding i.mu.
func (i *Instance) release(err error) {
	if i.released {
		return
	}
	i.released = true
	i.err = err
	close(i.done)
}
