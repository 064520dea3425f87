// Copyright 2020 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

package bank

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/minio/bank/internal/api"
)

var newErrorTests = []struct {
	Code    int
	Message string
	Err     Error
}{
	{Code: http.StatusBadRequest, Message: "", Err: NewError(http.StatusBadRequest, "")},
	{Code: http.StatusNotFound, Message: "account does not exist", Err: ErrUnknownAccount},
	{Code: http.StatusConflict, Message: "nonce has already been used", Err: ErrReplayedNonce},
	{Code: http.StatusForbidden, Message: "invalid signature", Err: ErrInvalidSignature},
}

func TestNewError(t *testing.T) {
	for i, test := range newErrorTests {
		err := NewError(test.Code, test.Message)
		if err != test.Err {
			t.Fatalf("Test %d: got %v - want %v", i, err, test.Err)
		}
	}
}

var parseErrorTests = []struct {
	Message string
	Err     error
}{
	{Message: ErrStaleWrite.Error(), Err: ErrStaleWrite},                                  // 0
	{Message: ErrInsufficientBalance.Error(), Err: ErrInsufficientBalance},                // 1
	{Message: ErrQuorumNotReached.Error(), Err: ErrQuorumNotReached},                      // 2
	{Message: "replica on fire", Err: NewError(http.StatusBadRequest, "replica on fire")}, // 3
}

func TestParseError(t *testing.T) {
	for i, test := range parseErrorTests {
		err := api.ParseError(test.Message)
		if !errors.Is(err, test.Err) {
			t.Fatalf("Test %d: got %v - want %v", i, err, test.Err)
		}
		if wrapped := fmt.Errorf("bank: check: %w", err); !errors.Is(wrapped, test.Err) {
			t.Fatalf("Test %d: wrapped error does not match %v", i, test.Err)
		}
	}
}
