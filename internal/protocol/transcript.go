// Copyright 2024 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

// Package protocol implements the canonical message encoding
// shared by replicas and clients. Every signature covers a
// Transcript and signer and verifier must compose transcripts
// field by field in the same order.
package protocol

import (
	"crypto/ed25519"
	"encoding/binary"
)

// A Transcript is a canonical, unambiguous byte encoding of a
// sequence of fields.
//
// It starts with a domain separation tag. Variable-length fields
// are prefixed with their uvarint encoded length. Integers are
// encoded as 8 byte big endian values.
type Transcript struct {
	buf []byte
}

// NewTranscript returns a new Transcript for the given
// domain separation tag.
func NewTranscript(tag string) *Transcript {
	t := &Transcript{buf: make([]byte, 0, 256)}
	t.AddString("minio/bank/v1/" + tag)
	return t
}

// AddBytes appends b, prefixed by its length, to t.
func (t *Transcript) AddBytes(b []byte) *Transcript {
	t.buf = binary.AppendUvarint(t.buf, uint64(len(b)))
	t.buf = append(t.buf, b...)
	return t
}

// AddString appends s, prefixed by its length, to t.
func (t *Transcript) AddString(s string) *Transcript {
	t.buf = binary.AppendUvarint(t.buf, uint64(len(s)))
	t.buf = append(t.buf, s...)
	return t
}

// AddUint64 appends v to t.
func (t *Transcript) AddUint64(v uint64) *Transcript {
	t.buf = binary.BigEndian.AppendUint64(t.buf, v)
	return t
}

// AddInt64 appends v to t.
func (t *Transcript) AddInt64(v int64) *Transcript { return t.AddUint64(uint64(v)) }

// AddTransaction appends the transaction tuple and its
// signature to t.
func (t *Transcript) AddTransaction(tx *Transaction) *Transcript {
	tx.appendTo(t)
	return t.AddBytes(tx.Signature)
}

// AddTransactions appends the number of transactions
// followed by each transaction to t.
func (t *Transcript) AddTransactions(txs []Transaction) *Transcript {
	t.buf = binary.AppendUvarint(t.buf, uint64(len(txs)))
	for i := range txs {
		t.AddTransaction(&txs[i])
	}
	return t
}

// Bytes returns the transcript's encoding.
func (t *Transcript) Bytes() []byte { return t.buf }

// Sign signs the transcript with the private key.
func (t *Transcript) Sign(key ed25519.PrivateKey) []byte {
	return ed25519.Sign(key, t.buf)
}

// Verify reports whether signature is a valid signature
// of t by key. It returns false if key or signature are
// malformed.
func (t *Transcript) Verify(key ed25519.PublicKey, signature []byte) bool {
	if len(key) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(key, t.buf, signature)
}
