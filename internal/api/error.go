// Copyright 2023 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"aead.dev/mem"
	"github.com/minio/bank/internal/headers"
)

// Errors returned by replicas and clients.
var (
	// ErrInvalidSignature is returned when a request, a pair
	// or a transaction signature does not verify.
	ErrInvalidSignature = NewError(http.StatusForbidden, "invalid signature")

	// ErrReplayedNonce is returned when a read request presents
	// a nonce that the requester has used before.
	ErrReplayedNonce = NewError(http.StatusConflict, "nonce has already been used")

	// ErrStaleWrite is returned when a write does not advance
	// the account's wid or lost the agreement on its wid.
	ErrStaleWrite = NewError(http.StatusConflict, "stale write: wid does not advance")

	// ErrStaleRead is returned when a read does not advance the
	// account's rid.
	ErrStaleRead = NewError(http.StatusConflict, "stale read: rid does not advance")

	// ErrInsufficientBalance is returned when the sender's
	// balance does not cover the amount.
	ErrInsufficientBalance = NewError(http.StatusBadRequest, "insufficient balance")

	// ErrInvalidAmount is returned when an amount is not positive
	// or a presented balance does not match the transfer.
	ErrInvalidAmount = NewError(http.StatusBadRequest, "invalid amount")

	// ErrUnknownAccount is returned when an account does not exist.
	ErrUnknownAccount = NewError(http.StatusNotFound, "account does not exist")

	// ErrAccountExists is returned when opening an account that
	// already exists.
	ErrAccountExists = NewError(http.StatusConflict, "account already exists")

	// ErrInvalidTransfer is returned when a transfer refers to an
	// unknown pending entry or to the sender itself.
	ErrInvalidTransfer = NewError(http.StatusBadRequest, "invalid transfer")

	// ErrUnvouchedState is returned when a write-back does not
	// carry f+1 replica responses agreeing on a state.
	ErrUnvouchedState = NewError(http.StatusBadRequest, "write-back state is not vouched for by f+1 replicas")

	// ErrQuorumNotReached is returned by clients when fewer than
	// a quorum of replicas answered with valid, signed responses.
	ErrQuorumNotReached = NewError(http.StatusServiceUnavailable, "quorum not reached: no trustworthy result")
)

var knownErrors = []Error{
	ErrInvalidSignature,
	ErrReplayedNonce,
	ErrStaleWrite,
	ErrStaleRead,
	ErrInsufficientBalance,
	ErrInvalidAmount,
	ErrUnknownAccount,
	ErrAccountExists,
	ErrInvalidTransfer,
	ErrUnvouchedState,
	ErrQuorumNotReached,
}

// Error is an API error with an HTTP status code.
type Error struct {
	code    int
	message string
}

// NewError returns a new Error with the given
// HTTP status code and error message.
func NewError(code int, msg string) Error {
	return Error{
		code:    code,
		message: msg,
	}
}

// Status returns the HTTP status code of the error.
func (e Error) Status() int { return e.code }

func (e Error) Error() string { return e.message }

// ParseError returns the known error with the given
// message. Unknown messages are returned as new Error
// with status code 400.
func ParseError(msg string) Error {
	for _, err := range knownErrors {
		if err.message == msg {
			return err
		}
	}
	return NewError(http.StatusBadRequest, msg)
}

// StatusOf returns the HTTP status code of err. It
// returns 500 if err is not an Error.
func StatusOf(err error) int {
	var e Error
	if errors.As(err, &e) {
		return e.code
	}
	return http.StatusInternalServerError
}

// Failf responds to the client with the given status code
// and formatted error message. Handlers should return after
// calling Failf.
func Failf(w http.ResponseWriter, code int, format string, a ...any) error {
	return fail(w, code, fmt.Sprintf(format, a...))
}

// Fail responds to the client with err. The status code is
// err's status code, if err is an Error, and 500 otherwise.
// Handlers should return after calling Fail.
func Fail(w http.ResponseWriter, err error) error {
	return fail(w, StatusOf(err), err.Error())
}

func fail(w http.ResponseWriter, code int, msg string) error {
	var buf bytes.Buffer
	buf.WriteString(`{"message":`)
	if err := json.NewEncoder(&buf).Encode(msg); err != nil {
		return err
	}
	buf.WriteByte('}')

	w.Header().Set(headers.ContentType, headers.ContentTypeJSON)
	w.Header().Set(headers.ContentLength, strconv.Itoa(buf.Len()))
	w.WriteHeader(code)
	_, err := w.Write(buf.Bytes())
	return err
}

// ReadError reads the response body into an Error using
// the response content encoding. It limits the response
// body to a reasonable size for typical error messages.
func ReadError(resp *http.Response) Error {
	const MaxSize = 5 * mem.KB // An error message should not exceed 5 KB.

	msg, err := readErrorMessage(resp, MaxSize)
	if err != nil {
		return NewError(resp.StatusCode, err.Error())
	}
	return NewError(resp.StatusCode, msg)
}

func readErrorMessage(resp *http.Response, maxSize mem.Size) (string, error) {
	size := mem.Size(resp.ContentLength)
	if size <= 0 || size > maxSize {
		size = maxSize
	}
	body := mem.LimitReader(resp.Body, size)

	switch resp.Header.Get(headers.ContentType) {
	case headers.ContentTypeHTML, headers.ContentTypeText:
		var sb strings.Builder
		if _, err := io.Copy(&sb, body); err != nil {
			return "", err
		}
		return sb.String(), nil
	default:
		type ErrResponse struct {
			Message string `json:"message"`
		}
		var response ErrResponse
		if err := json.NewDecoder(body).Decode(&response); err != nil {
			return "", err
		}
		return response.Message, nil
	}
}
