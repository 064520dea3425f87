// Copyright 2024 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

// Package ledger implements the account register of a
// replica.
package ledger

import (
	"bytes"
	"crypto/ed25519"

	"github.com/minio/bank/internal/msgp"
	"github.com/minio/bank/internal/protocol"
)

// InitialBalance is the balance of a newly opened account.
const InitialBalance = 500

// Account is the state a replica keeps for one account.
type Account struct {
	Username string
	Key      ed25519.PublicKey

	Balance       int64
	WID           uint64
	RID           uint64
	PairSignature []byte // owner signature of (Key, Balance, WID)

	Pending []protocol.Transaction // incoming transfers, index is the transfer id
	History []protocol.Transaction // settled transfers, append-only
}

// Clone returns a deep copy of a.
func (a *Account) Clone() *Account {
	c := &Account{
		Username:      a.Username,
		Key:           bytes.Clone(a.Key),
		Balance:       a.Balance,
		WID:           a.WID,
		RID:           a.RID,
		PairSignature: bytes.Clone(a.PairSignature),
	}
	c.Pending = cloneTransactions(a.Pending)
	c.History = cloneTransactions(a.History)
	return c
}

// PendingSum returns the sum of all pending amounts.
func (a *Account) PendingSum() int64 {
	var sum int64
	for _, tx := range a.Pending {
		sum += tx.Amount
	}
	return sum
}

// MarshalMsg converts the account into its msgp representation.
func (a *Account) MarshalMsg() *msgp.Account {
	return &msgp.Account{
		Username:      a.Username,
		Key:           a.Key,
		Balance:       a.Balance,
		WID:           a.WID,
		RID:           a.RID,
		PairSignature: a.PairSignature,
		Pending:       marshalTransactions(a.Pending),
		History:       marshalTransactions(a.History),
	}
}

// UnmarshalMsg initializes the account from its msgp representation.
func (a *Account) UnmarshalMsg(v *msgp.Account) {
	a.Username = v.Username
	a.Key = v.Key
	a.Balance = v.Balance
	a.WID = v.WID
	a.RID = v.RID
	a.PairSignature = v.PairSignature
	a.Pending = unmarshalTransactions(v.Pending)
	a.History = unmarshalTransactions(v.History)
}

func cloneTransactions(txs []protocol.Transaction) []protocol.Transaction {
	if len(txs) == 0 {
		return nil
	}
	c := make([]protocol.Transaction, 0, len(txs))
	for i := range txs {
		c = append(c, txs[i].Clone())
	}
	return c
}

func marshalTransactions(txs []protocol.Transaction) []msgp.Transaction {
	if len(txs) == 0 {
		return nil
	}
	m := make([]msgp.Transaction, 0, len(txs))
	for _, tx := range txs {
		m = append(m, msgp.Transaction{
			SourceUsername: tx.SourceUsername,
			DestUsername:   tx.DestUsername,
			Amount:         tx.Amount,
			SourceKey:      tx.SourceKey,
			DestKey:        tx.DestKey,
			WID:            tx.WID,
			Signature:      tx.Signature,
		})
	}
	return m
}

func unmarshalTransactions(m []msgp.Transaction) []protocol.Transaction {
	if len(m) == 0 {
		return nil
	}
	txs := make([]protocol.Transaction, 0, len(m))
	for _, tx := range m {
		txs = append(txs, protocol.Transaction{
			SourceUsername: tx.SourceUsername,
			DestUsername:   tx.DestUsername,
			Amount:         tx.Amount,
			SourceKey:      tx.SourceKey,
			DestKey:        tx.DestKey,
			WID:            tx.WID,
			Signature:      tx.Signature,
		})
	}
	return txs
}
