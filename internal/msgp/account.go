// Copyright 2024 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

package msgp

import (
	"github.com/tinylib/msgp/msgp"
)

// Transaction is the on-disk representation of a transfer.
// It is encoded as MessagePack array of its fields.
type Transaction struct {
	SourceUsername string
	DestUsername   string
	Amount         int64
	SourceKey      []byte
	DestKey        []byte
	WID            uint64
	Signature      []byte
}

const transactionFields = 7

// MarshalMsg implements msgp.Marshaler
func (t *Transaction) MarshalMsg(b []byte) ([]byte, error) {
	b = msgp.AppendArrayHeader(b, transactionFields)
	b = msgp.AppendString(b, t.SourceUsername)
	b = msgp.AppendString(b, t.DestUsername)
	b = msgp.AppendInt64(b, t.Amount)
	b = msgp.AppendBytes(b, t.SourceKey)
	b = msgp.AppendBytes(b, t.DestKey)
	b = msgp.AppendUint64(b, t.WID)
	b = msgp.AppendBytes(b, t.Signature)
	return b, nil
}

// UnmarshalMsg implements msgp.Unmarshaler
func (t *Transaction) UnmarshalMsg(b []byte) ([]byte, error) {
	n, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return b, msgp.WrapError(err, "Transaction")
	}
	if n != transactionFields {
		return b, msgp.ArrayError{Wanted: transactionFields, Got: n}
	}
	if t.SourceUsername, b, err = msgp.ReadStringBytes(b); err != nil {
		return b, msgp.WrapError(err, "SourceUsername")
	}
	if t.DestUsername, b, err = msgp.ReadStringBytes(b); err != nil {
		return b, msgp.WrapError(err, "DestUsername")
	}
	if t.Amount, b, err = msgp.ReadInt64Bytes(b); err != nil {
		return b, msgp.WrapError(err, "Amount")
	}
	if t.SourceKey, b, err = msgp.ReadBytesBytes(b, nil); err != nil {
		return b, msgp.WrapError(err, "SourceKey")
	}
	if t.DestKey, b, err = msgp.ReadBytesBytes(b, nil); err != nil {
		return b, msgp.WrapError(err, "DestKey")
	}
	if t.WID, b, err = msgp.ReadUint64Bytes(b); err != nil {
		return b, msgp.WrapError(err, "WID")
	}
	if t.Signature, b, err = msgp.ReadBytesBytes(b, nil); err != nil {
		return b, msgp.WrapError(err, "Signature")
	}
	return b, nil
}

// Msgsize returns an upper bound estimate of the number of
// bytes occupied by the serialized message
func (t *Transaction) Msgsize() int {
	return msgp.ArrayHeaderSize +
		2*msgp.StringPrefixSize + len(t.SourceUsername) + len(t.DestUsername) +
		msgp.Int64Size + msgp.Uint64Size +
		3*msgp.BytesPrefixSize + len(t.SourceKey) + len(t.DestKey) + len(t.Signature)
}

// Account is the on-disk representation of an account.
type Account struct {
	Username      string
	Key           []byte
	Balance       int64
	WID           uint64
	RID           uint64
	PairSignature []byte
	Pending       []Transaction
	History       []Transaction
}

const accountFields = 8

// MarshalMsg implements msgp.Marshaler
func (a *Account) MarshalMsg(b []byte) ([]byte, error) {
	b = msgp.AppendArrayHeader(b, accountFields)
	b = msgp.AppendString(b, a.Username)
	b = msgp.AppendBytes(b, a.Key)
	b = msgp.AppendInt64(b, a.Balance)
	b = msgp.AppendUint64(b, a.WID)
	b = msgp.AppendUint64(b, a.RID)
	b = msgp.AppendBytes(b, a.PairSignature)

	var err error
	for _, list := range [][]Transaction{a.Pending, a.History} {
		b = msgp.AppendArrayHeader(b, uint32(len(list)))
		for i := range list {
			if b, err = list[i].MarshalMsg(b); err != nil {
				return b, msgp.WrapError(err, "Transaction", i)
			}
		}
	}
	return b, nil
}

// UnmarshalMsg implements msgp.Unmarshaler
func (a *Account) UnmarshalMsg(b []byte) ([]byte, error) {
	n, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return b, msgp.WrapError(err, "Account")
	}
	if n != accountFields {
		return b, msgp.ArrayError{Wanted: accountFields, Got: n}
	}
	if a.Username, b, err = msgp.ReadStringBytes(b); err != nil {
		return b, msgp.WrapError(err, "Username")
	}
	if a.Key, b, err = msgp.ReadBytesBytes(b, nil); err != nil {
		return b, msgp.WrapError(err, "Key")
	}
	if a.Balance, b, err = msgp.ReadInt64Bytes(b); err != nil {
		return b, msgp.WrapError(err, "Balance")
	}
	if a.WID, b, err = msgp.ReadUint64Bytes(b); err != nil {
		return b, msgp.WrapError(err, "WID")
	}
	if a.RID, b, err = msgp.ReadUint64Bytes(b); err != nil {
		return b, msgp.WrapError(err, "RID")
	}
	if a.PairSignature, b, err = msgp.ReadBytesBytes(b, nil); err != nil {
		return b, msgp.WrapError(err, "PairSignature")
	}
	if a.Pending, b, err = readTransactions(b); err != nil {
		return b, msgp.WrapError(err, "Pending")
	}
	if a.History, b, err = readTransactions(b); err != nil {
		return b, msgp.WrapError(err, "History")
	}
	return b, nil
}

// Msgsize returns an upper bound estimate of the number of
// bytes occupied by the serialized message
func (a *Account) Msgsize() int {
	s := msgp.ArrayHeaderSize +
		msgp.StringPrefixSize + len(a.Username) +
		2*msgp.BytesPrefixSize + len(a.Key) + len(a.PairSignature) +
		msgp.Int64Size + 2*msgp.Uint64Size +
		2*msgp.ArrayHeaderSize
	for i := range a.Pending {
		s += a.Pending[i].Msgsize()
	}
	for i := range a.History {
		s += a.History[i].Msgsize()
	}
	return s
}

func readTransactions(b []byte) ([]Transaction, []byte, error) {
	n, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return nil, b, err
	}
	if n == 0 {
		return nil, b, nil
	}
	txs := make([]Transaction, n)
	for i := range txs {
		if b, err = txs[i].UnmarshalMsg(b); err != nil {
			return nil, b, msgp.WrapError(err, i)
		}
	}
	return txs, b, nil
}
