// Copyright 2024 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

package protocol

import (
	"math"
	"testing"
)

var vouchedRIDTests = []struct {
	F    int
	RIDs []uint64
	RID  uint64
}{
	{F: 0, RIDs: []uint64{3}, RID: 3},                                 // 0
	{F: 1, RIDs: []uint64{3, 3, 3}, RID: 3},                           // 1
	{F: 1, RIDs: []uint64{3, math.MaxUint64 - 1, 2}, RID: 3},          // 2
	{F: 1, RIDs: []uint64{math.MaxUint64, 1, 1}, RID: 1},              // 3
	{F: 1, RIDs: []uint64{7}, RID: 0},                                 // 4
	{F: 2, RIDs: []uint64{9, 1, 8, math.MaxUint64, 2}, RID: 8},        // 5
	{F: 2, RIDs: []uint64{math.MaxUint64, math.MaxUint64, 4}, RID: 4}, // 6
}

func TestVouchedRID(t *testing.T) {
	for i, test := range vouchedRIDTests {
		if rid := VouchedRID(test.F, test.RIDs); rid != test.RID {
			t.Fatalf("Test %d: got rid %d - want %d", i, rid, test.RID)
		}
	}
}

func TestVouchedState(t *testing.T) {
	alicePub, alicePriv := newKey(t)
	bobPub, _ := newKey(t)

	first := Transaction{SourceUsername: "alice", DestUsername: "bob", Amount: 10, SourceKey: alicePub, DestKey: bobPub, WID: 1}
	first.Sign(alicePriv)
	forged := Transaction{SourceUsername: "alice", DestUsername: "bob", Amount: 400, SourceKey: alicePub, DestKey: bobPub, WID: 2}
	forged.Sign(alicePriv)

	state := func(replica string, balance int64, wid, rid uint64, pending ...Transaction) CheckResponse {
		return CheckResponse{
			Replica:       replica,
			Message:       Valid,
			Target:        bobPub,
			Username:      "bob",
			Balance:       balance,
			WID:           wid,
			PairSignature: []byte{byte(wid)},
			RID:           rid,
			Pending:       pending,
		}
	}

	// A fresher state reported by a single replica is not vouched for.
	vouched, ok := VouchedState(1, []CheckResponse{
		state("r0", 500, 0, 1),
		state("r1", 500, 0, 2),
		state("r2", 9000, 5, 1),
	})
	if !ok {
		t.Fatal("state of two replicas is not vouched for")
	}
	if vouched.Balance != 500 || vouched.WID != 0 {
		t.Fatalf("vouched for balance %d at wid %d - want 500 at wid 0", vouched.Balance, vouched.WID)
	}
	if vouched.RID != 1 {
		t.Fatalf("vouched for rid %d - want 1", vouched.RID)
	}

	// A pending transfer reported by a single replica is dropped.
	vouched, ok = VouchedState(1, []CheckResponse{
		state("r0", 500, 0, 1, first),
		state("r1", 500, 0, 1, first, forged),
		state("r2", 500, 0, 1),
	})
	if !ok {
		t.Fatal("state of three replicas is not vouched for")
	}
	if len(vouched.Pending) != 1 || !vouched.Pending[0].Equal(&first) {
		t.Fatalf("vouched for pending transfers %+v - want only the first", vouched.Pending)
	}

	// The freshest state with f+1 reports wins.
	vouched, _ = VouchedState(1, []CheckResponse{
		state("r0", 500, 0, 1),
		state("r1", 510, 1, 1),
		state("r2", 510, 1, 1),
		state("r3", 500, 0, 1),
	})
	if vouched.WID != 1 || vouched.Balance != 510 {
		t.Fatalf("vouched for balance %d at wid %d - want 510 at wid 1", vouched.Balance, vouched.WID)
	}

	if _, ok = VouchedState(1, []CheckResponse{state("r0", 500, 0, 1), state("r1", 510, 1, 1)}); ok {
		t.Fatal("disagreeing states are vouched for")
	}
	rejected := state("r1", 500, 0, 1)
	rejected.Message = "account does not exist"
	if _, ok = VouchedState(1, []CheckResponse{state("r0", 500, 0, 1), rejected}); ok {
		t.Fatal("rejection vouches for a state")
	}
}

func TestVouchedHistory(t *testing.T) {
	alicePub, alicePriv := newKey(t)
	bobPub, _ := newKey(t)

	txs := make([]Transaction, 3)
	for i := range txs {
		txs[i] = Transaction{SourceUsername: "alice", DestUsername: "bob", Amount: int64(i + 1), SourceKey: alicePub, DestKey: bobPub, WID: uint64(i + 1)}
		txs[i].Sign(alicePriv)
	}
	audit := func(rid uint64, history ...Transaction) AuditResponse {
		return AuditResponse{Message: Valid, Target: bobPub, RID: rid, History: history}
	}

	tests := []struct {
		Responses []AuditResponse
		Len       int
		RID       uint64
		OK        bool
	}{
		{ // 0
			Responses: []AuditResponse{audit(1, txs...), audit(2, txs[:2]...), audit(3)},
			Len:       2, RID: 2, OK: true,
		},
		{ // 1
			Responses: []AuditResponse{audit(1, txs...), audit(1, txs...), audit(1, txs[:1]...)},
			Len:       3, RID: 1, OK: true,
		},
		{ // 2
			Responses: []AuditResponse{audit(1, txs[1]), audit(1, txs[0]), audit(1)},
			Len:       0, RID: 1, OK: true,
		},
		{ // 3
			Responses: []AuditResponse{audit(1, txs...)},
			OK:        false,
		},
	}
	for i, test := range tests {
		history, rid, ok := VouchedHistory(1, test.Responses)
		if ok != test.OK {
			t.Fatalf("Test %d: got ok=%v - want %v", i, ok, test.OK)
		}
		if !ok {
			continue
		}
		if len(history) != test.Len || !HasPrefix(txs, history) {
			t.Fatalf("Test %d: got history of length %d - want %d", i, len(history), test.Len)
		}
		if rid != test.RID {
			t.Fatalf("Test %d: got rid %d - want %d", i, rid, test.RID)
		}
	}
}
