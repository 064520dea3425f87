// Copyright 2024 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

package protocol

import (
	"bytes"
	"crypto/ed25519"
)

// Transaction is a signed transfer of Amount from the
// source to the destination account.
//
// A positive amount is the receiver's view of a transfer
// and is signed by the source key. A negative amount is
// the sender's history entry written once the receiver
// accepted the transfer and is signed by the destination
// key.
type Transaction struct {
	SourceUsername string            `json:"source_username"`
	DestUsername   string            `json:"dest_username"`
	Amount         int64             `json:"amount"`
	SourceKey      ed25519.PublicKey `json:"source_key"`
	DestKey        ed25519.PublicKey `json:"dest_key"`
	WID            uint64            `json:"wid"`
	Signature      []byte            `json:"signature"`
}

func (tx *Transaction) appendTo(t *Transcript) {
	t.AddString(tx.SourceUsername).
		AddString(tx.DestUsername).
		AddInt64(tx.Amount).
		AddBytes(tx.SourceKey).
		AddBytes(tx.DestKey).
		AddUint64(tx.WID)
}

// Message returns the transcript covered by the
// transaction's signature.
func (tx *Transaction) Message() *Transcript {
	t := NewTranscript("transaction")
	tx.appendTo(t)
	return t
}

// Signer returns the public key expected to have
// signed the transaction.
func (tx *Transaction) Signer() ed25519.PublicKey {
	if tx.Amount < 0 {
		return tx.DestKey
	}
	return tx.SourceKey
}

// Sign signs the transaction with key and sets
// its signature.
func (tx *Transaction) Sign(key ed25519.PrivateKey) {
	tx.Signature = tx.Message().Sign(key)
}

// Verify reports whether the transaction carries a valid
// signature of its signer.
func (tx *Transaction) Verify() bool {
	return tx.Message().Verify(tx.Signer(), tx.Signature)
}

// Mirror returns the unsigned history entry of the sender
// for a transfer that the receiver accepted.
func (tx *Transaction) Mirror() Transaction {
	return Transaction{
		SourceUsername: tx.SourceUsername,
		DestUsername:   tx.DestUsername,
		Amount:         -tx.Amount,
		SourceKey:      bytes.Clone(tx.SourceKey),
		DestKey:        bytes.Clone(tx.DestKey),
		WID:            tx.WID,
	}
}

// Equal reports whether tx and o describe the same transfer.
// Signatures are not compared.
func (tx *Transaction) Equal(o *Transaction) bool {
	return tx.SourceUsername == o.SourceUsername &&
		tx.DestUsername == o.DestUsername &&
		tx.Amount == o.Amount &&
		tx.SourceKey.Equal(o.SourceKey) &&
		tx.DestKey.Equal(o.DestKey) &&
		tx.WID == o.WID
}

// Clone returns a deep copy of tx.
func (tx *Transaction) Clone() Transaction {
	c := *tx
	c.SourceKey = bytes.Clone(tx.SourceKey)
	c.DestKey = bytes.Clone(tx.DestKey)
	c.Signature = bytes.Clone(tx.Signature)
	return c
}

// VerifyAll reports whether every transaction in txs
// carries a valid signature.
func VerifyAll(txs []Transaction) bool {
	for i := range txs {
		if !txs[i].Verify() {
			return false
		}
	}
	return true
}
