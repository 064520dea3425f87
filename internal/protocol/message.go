// Copyright 2024 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

package protocol

import (
	"crypto/ed25519"
	"encoding/binary"

	"github.com/secure-io/sio-go/sioutil"
)

// Valid is the message of a response that accepts a request.
// Any other message is a rejection and describes its reason.
const Valid = "valid"

// Read operations. Requests of different read operations
// produce different transcripts.
const (
	OpCheck = "check"
	OpAudit = "audit"
)

// Write operations.
const (
	OpOpen    = "open"
	OpSend    = "send"
	OpReceive = "receive"
)

// NewNonce returns a new random nonce.
func NewNonce() (uint64, error) {
	b, err := sioutil.Random(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// Pair returns the transcript of the owner signature binding
// an account's balance to its wid.
func Pair(key ed25519.PublicKey, balance int64, wid uint64) *Transcript {
	return NewTranscript("pair").AddBytes(key).AddInt64(balance).AddUint64(wid)
}

// PingRequest is the request sent by clients to the Ping API.
type PingRequest struct {
	Text string `json:"text"`
}

// PingResponse is the replica's answer to a PingRequest.
type PingResponse struct {
	Replica   string `json:"replica"`
	Message   string `json:"message"`
	Text      string `json:"text"`
	Signature []byte `json:"signature"`
}

func (r *PingResponse) Transcript() *Transcript {
	return NewTranscript("ping-response").
		AddString(r.Replica).
		AddString(r.Message).
		AddString(r.Text)
}

// OpenRequest is the request sent by clients to open a new
// account. It is signed by the account key.
type OpenRequest struct {
	Key           ed25519.PublicKey `json:"key"`
	Username      string            `json:"username"`
	Balance       int64             `json:"balance"`
	WID           uint64            `json:"wid"`
	PairSignature []byte            `json:"pair_signature"`
	Signature     []byte            `json:"signature"`
}

func (r *OpenRequest) Transcript() *Transcript {
	return NewTranscript(OpOpen).
		AddBytes(r.Key).
		AddString(r.Username).
		AddInt64(r.Balance).
		AddUint64(r.WID).
		AddBytes(r.PairSignature)
}

// OpenResponse is the replica's answer to an OpenRequest.
// Key is the replica's public key.
type OpenResponse struct {
	Replica   string            `json:"replica"`
	Message   string            `json:"message"`
	Account   ed25519.PublicKey `json:"account"`
	Key       ed25519.PublicKey `json:"key"`
	Signature []byte            `json:"signature"`
}

func (r *OpenResponse) Transcript() *Transcript {
	return NewTranscript("open-response").
		AddString(r.Replica).
		AddString(r.Message).
		AddBytes(r.Account).
		AddBytes(r.Key)
}

// ReadRequest is the request sent by clients to read an
// account's state, either by the check or the audit
// operation. It is signed by the requester.
type ReadRequest struct {
	Target    ed25519.PublicKey `json:"target"`
	Requester ed25519.PublicKey `json:"requester"`
	RID       uint64            `json:"rid"`
	Nonce     uint64            `json:"nonce"`
	Signature []byte            `json:"signature"`
}

// Transcript returns the transcript of the request for
// the read operation op.
func (r *ReadRequest) Transcript(op string) *Transcript {
	return NewTranscript(op).
		AddBytes(r.Target).
		AddBytes(r.Requester).
		AddUint64(r.RID).
		AddUint64(r.Nonce)
}

// CheckResponse is the replica's answer to a check request.
// Nonce is the request nonce plus one.
type CheckResponse struct {
	Replica       string            `json:"replica"`
	Message       string            `json:"message"`
	Target        ed25519.PublicKey `json:"target"`
	Username      string            `json:"username"`
	Balance       int64             `json:"balance"`
	WID           uint64            `json:"wid"`
	PairSignature []byte            `json:"pair_signature"`
	RID           uint64            `json:"rid"`
	Nonce         uint64            `json:"nonce"`
	Pending       []Transaction     `json:"pending"`
	Signature     []byte            `json:"signature"`
}

func (r *CheckResponse) Transcript() *Transcript {
	return NewTranscript("check-response").
		AddString(r.Replica).
		AddString(r.Message).
		AddBytes(r.Target).
		AddString(r.Username).
		AddInt64(r.Balance).
		AddUint64(r.WID).
		AddBytes(r.PairSignature).
		AddUint64(r.RID).
		AddUint64(r.Nonce).
		AddTransactions(r.Pending)
}

// AuditResponse is the replica's answer to an audit request.
// Nonce is the request nonce plus one.
type AuditResponse struct {
	Replica   string            `json:"replica"`
	Message   string            `json:"message"`
	Target    ed25519.PublicKey `json:"target"`
	RID       uint64            `json:"rid"`
	Nonce     uint64            `json:"nonce"`
	History   []Transaction     `json:"history"`
	Signature []byte            `json:"signature"`
}

func (r *AuditResponse) Transcript() *Transcript {
	return NewTranscript("audit-response").
		AddString(r.Replica).
		AddString(r.Message).
		AddBytes(r.Target).
		AddUint64(r.RID).
		AddUint64(r.Nonce).
		AddTransactions(r.History)
}

// RIDRequest asks for the current rid of an account.
type RIDRequest struct {
	Key   ed25519.PublicKey `json:"key"`
	Nonce uint64            `json:"nonce"`
}

// RIDResponse is the replica's answer to a RIDRequest.
// Nonce is the request nonce plus one.
type RIDResponse struct {
	Replica   string            `json:"replica"`
	Message   string            `json:"message"`
	Key       ed25519.PublicKey `json:"key"`
	RID       uint64            `json:"rid"`
	Nonce     uint64            `json:"nonce"`
	Signature []byte            `json:"signature"`
}

func (r *RIDResponse) Transcript() *Transcript {
	return NewTranscript("rid-response").
		AddString(r.Replica).
		AddString(r.Message).
		AddBytes(r.Key).
		AddUint64(r.RID).
		AddUint64(r.Nonce)
}

// SendRequest is the request sent by the owner of the
// source account to transfer an amount. The transaction
// wid is the sender's new wid and PairSignature binds it
// to NewBalance.
type SendRequest struct {
	Transaction   Transaction `json:"transaction"`
	NewBalance    int64       `json:"new_balance"`
	PairSignature []byte      `json:"pair_signature"`
	Signature     []byte      `json:"signature"`
}

func (r *SendRequest) Transcript() *Transcript {
	tx := &r.Transaction
	return NewTranscript(OpSend).
		AddString(tx.SourceUsername).
		AddString(tx.DestUsername).
		AddInt64(tx.Amount).
		AddBytes(tx.SourceKey).
		AddBytes(tx.DestKey).
		AddBytes(tx.Signature).
		AddUint64(tx.WID).
		AddBytes(r.PairSignature).
		AddInt64(r.NewBalance)
}

// ReceiveRequest is the request sent by the owner of an
// account to accept the pending transfer at Index. ToAudit
// is the sender's history entry, signed by the receiver.
type ReceiveRequest struct {
	Key           ed25519.PublicKey `json:"key"`
	Index         uint64            `json:"index"`
	WID           uint64            `json:"wid"`
	FutureBalance int64             `json:"future_balance"`
	PairSignature []byte            `json:"pair_signature"`
	ToAudit       Transaction       `json:"to_audit"`
	Signature     []byte            `json:"signature"`
}

func (r *ReceiveRequest) Transcript() *Transcript {
	return NewTranscript(OpReceive).
		AddBytes(r.Key).
		AddUint64(r.Index).
		AddUint64(r.WID).
		AddInt64(r.FutureBalance).
		AddBytes(r.PairSignature).
		AddTransaction(&r.ToAudit)
}

// WriteResponse is the replica's answer to send and receive
// requests. WID is the account's wid after the request has
// been processed.
type WriteResponse struct {
	Replica   string            `json:"replica"`
	Message   string            `json:"message"`
	Key       ed25519.PublicKey `json:"key"`
	WID       uint64            `json:"wid"`
	Signature []byte            `json:"signature"`
}

// Transcript returns the transcript of the response to
// the write operation op.
func (r *WriteResponse) Transcript(op string) *Transcript {
	return NewTranscript(op + "-response").
		AddString(r.Replica).
		AddString(r.Message).
		AddBytes(r.Key).
		AddUint64(r.WID)
}

// CheckWriteBackRequest carries the check responses a client
// has collected to a lagging replica. The replica adopts the
// account state that f+1 of these responses agree on.
type CheckWriteBackRequest struct {
	Requester ed25519.PublicKey `json:"requester"`
	Target    ed25519.PublicKey `json:"target"`
	Proofs    []CheckResponse   `json:"proofs"`
	Signature []byte            `json:"signature"`
}

func (r *CheckWriteBackRequest) Transcript() *Transcript {
	t := NewTranscript("check-writeback").
		AddBytes(r.Requester).
		AddBytes(r.Target).
		AddUint64(uint64(len(r.Proofs)))
	for i := range r.Proofs {
		t.AddBytes(r.Proofs[i].Transcript().Bytes()).AddBytes(r.Proofs[i].Signature)
	}
	return t
}

// AuditWriteBackRequest carries the audit responses a client
// has collected to a lagging replica. The replica adopts the
// history that f+1 of these responses agree on.
type AuditWriteBackRequest struct {
	Requester ed25519.PublicKey `json:"requester"`
	Target    ed25519.PublicKey `json:"target"`
	Proofs    []AuditResponse   `json:"proofs"`
	Signature []byte            `json:"signature"`
}

func (r *AuditWriteBackRequest) Transcript() *Transcript {
	t := NewTranscript("audit-writeback").
		AddBytes(r.Requester).
		AddBytes(r.Target).
		AddUint64(uint64(len(r.Proofs)))
	for i := range r.Proofs {
		t.AddBytes(r.Proofs[i].Transcript().Bytes()).AddBytes(r.Proofs[i].Signature)
	}
	return t
}

// WriteBackResponse is the replica's answer to a write-back.
type WriteBackResponse struct {
	Replica   string            `json:"replica"`
	Message   string            `json:"message"`
	Target    ed25519.PublicKey `json:"target"`
	Signature []byte            `json:"signature"`
}

func (r *WriteBackResponse) Transcript() *Transcript {
	return NewTranscript("writeback-response").
		AddString(r.Replica).
		AddString(r.Message).
		AddBytes(r.Target)
}
