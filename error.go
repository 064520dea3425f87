// Copyright 2019 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

package bank

import (
	"errors"
	"net"

	"github.com/minio/bank/internal/api"
)

// Errors returned by replicas and the quorum client.
// Replica errors are signed rejections. A client
// returns them once f+1 replicas agree on them.
var (
	// ErrInvalidSignature is returned when a request, a pair
	// or a transaction signature does not verify.
	ErrInvalidSignature = api.ErrInvalidSignature

	// ErrReplayedNonce is returned when a read request presents
	// a nonce that the requester has used before.
	ErrReplayedNonce = api.ErrReplayedNonce

	// ErrStaleWrite is returned when a write does not advance
	// the account's wid or lost the agreement on its wid.
	ErrStaleWrite = api.ErrStaleWrite

	// ErrStaleRead is returned when a read does not advance
	// the account's rid.
	ErrStaleRead = api.ErrStaleRead

	// ErrInsufficientBalance is returned when the sender's
	// balance does not cover the amount.
	ErrInsufficientBalance = api.ErrInsufficientBalance

	// ErrInvalidAmount is returned when an amount is not positive
	// or a presented balance does not match the transfer.
	ErrInvalidAmount = api.ErrInvalidAmount

	// ErrUnknownAccount is returned when an account does not exist.
	ErrUnknownAccount = api.ErrUnknownAccount

	// ErrAccountExists is returned when opening an account that
	// already exists.
	ErrAccountExists = api.ErrAccountExists

	// ErrInvalidTransfer is returned when a transfer refers to an
	// unknown pending entry or to the sender itself.
	ErrInvalidTransfer = api.ErrInvalidTransfer

	// ErrUnvouchedState is returned when a write-back does not
	// carry f+1 replica responses agreeing on a state.
	ErrUnvouchedState = api.ErrUnvouchedState

	// ErrQuorumNotReached is returned by a Client when the replicas
	// did not produce 2f+1 valid, signed responses.
	ErrQuorumNotReached = api.ErrQuorumNotReached
)

// Error is a replica API error with an HTTP status code.
type Error = api.Error

// NewError returns a new Error with the given
// HTTP status code and error message.
func NewError(code int, msg string) Error { return api.NewError(code, msg) }

// ConnError is a network connection error. It is returned
// when a request to a replica fails due to a network or
// connection error, even after retrying.
type ConnError struct {
	Host string // The host that couldn't be reached
	Err  error  // The underlying error, if any.
}

var _ net.Error = (*ConnError)(nil)

// Error returns the string representation of the ConnError.
func (c *ConnError) Error() string {
	if c.Err == nil {
		return "bank: connection error: " + c.Host + " is unreachable"
	}
	return "bank: connection error: " + c.Host + ": " + c.Err.Error()
}

// Unwrap returns the underlying connection error.
func (c *ConnError) Unwrap() error { return c.Err }

// Timeout reports whether the error is caused
// by a timeout.
func (c *ConnError) Timeout() bool {
	var netErr net.Error
	return errors.As(c.Err, &netErr) && netErr.Timeout()
}

// Temporary returns false. It is only implemented
// to satisfy the net.Error interface.
func (c *ConnError) Temporary() bool { return false }
