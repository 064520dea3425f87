// Copyright 2024 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

package protocol

import (
	"bytes"
	"crypto/ed25519"
	"testing"
)

func TestTranscriptUnambiguous(t *testing.T) {
	a := NewTranscript("test").AddString("ab").AddString("c")
	b := NewTranscript("test").AddString("a").AddString("bc")
	if bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Fatal("different field splits produce the same transcript")
	}

	c := NewTranscript("check").AddUint64(1)
	d := NewTranscript("audit").AddUint64(1)
	if bytes.Equal(c.Bytes(), d.Bytes()) {
		t.Fatal("different tags produce the same transcript")
	}
}

func TestTransactionSignature(t *testing.T) {
	srcPub, srcPriv := newKey(t)
	dstPub, dstPriv := newKey(t)

	tx := Transaction{
		SourceUsername: "alice",
		DestUsername:   "bob",
		Amount:         50,
		SourceKey:      srcPub,
		DestKey:        dstPub,
		WID:            1,
	}
	tx.Sign(srcPriv)
	if !tx.Verify() {
		t.Fatal("valid transaction signature rejected")
	}

	forged := tx.Clone()
	forged.Amount = 500
	if forged.Verify() {
		t.Fatal("modified transaction accepted")
	}

	wrong := tx.Clone()
	wrong.Sign(dstPriv)
	if wrong.Verify() {
		t.Fatal("transfer signed by the destination accepted")
	}

	mirror := tx.Mirror()
	if mirror.Amount != -50 || !mirror.Signer().Equal(dstPub) {
		t.Fatalf("mirror entry has amount %d and wrong signer", mirror.Amount)
	}
	mirror.Sign(dstPriv)
	if !mirror.Verify() {
		t.Fatal("mirror entry signed by the destination rejected")
	}
	if !VerifyAll([]Transaction{tx, mirror}) {
		t.Fatal("VerifyAll rejected valid transactions")
	}
	if VerifyAll([]Transaction{tx, forged}) {
		t.Fatal("VerifyAll accepted a forged transaction")
	}
}

var verifyMalformedTests = []struct {
	Key       []byte
	Signature []byte
}{
	{Key: nil, Signature: make([]byte, ed25519.SignatureSize)},                // 0
	{Key: make([]byte, 31), Signature: make([]byte, ed25519.SignatureSize)},   // 1
	{Key: make([]byte, ed25519.PublicKeySize), Signature: nil},                // 2
	{Key: make([]byte, ed25519.PublicKeySize), Signature: make([]byte, 63)},   // 3
	{Key: make([]byte, 33), Signature: make([]byte, ed25519.SignatureSize+1)}, // 4
}

func TestVerifyMalformed(t *testing.T) {
	msg := NewTranscript("test").AddString("message")
	for i, test := range verifyMalformedTests {
		if msg.Verify(test.Key, test.Signature) {
			t.Fatalf("Test %d: malformed key or signature accepted", i)
		}
	}
}

func TestSendTranscriptCoversPairSignature(t *testing.T) {
	pub, priv := newKey(t)
	req := SendRequest{
		Transaction:   Transaction{SourceKey: pub, Amount: 1, WID: 1},
		NewBalance:    499,
		PairSignature: Pair(pub, 499, 1).Sign(priv),
	}
	req.Signature = req.Transcript().Sign(priv)

	req.PairSignature = Pair(pub, 500, 1).Sign(priv)
	if req.Transcript().Verify(pub, req.Signature) {
		t.Fatal("request signature does not cover the pair signature")
	}
}

func TestNewNonce(t *testing.T) {
	a, err := NewNonce()
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewNonce()
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatal("two random nonces are equal")
	}
}

func newKey(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	return pub, priv
}
