// Copyright 2023 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

package bank

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
	"strings"
)

// APIKey is an Ed25519 private/public key pair identifying
// an account owner or a replica.
type APIKey interface {
	// Public returns the public key that corresponds to
	// the private key.
	Public() ed25519.PublicKey

	// Private returns the private key.
	Private() ed25519.PrivateKey

	// Identity returns the Identity of the public key.
	//
	// The identity is the cryptographic fingerprint of
	// the raw DER-encoded public key as present in a
	// corresponding X509 certificate.
	Identity() Identity

	// String returns the APIKey's textual representation.
	String() string
}

// GenerateAPIKey generates a new random API key. If rand
// is nil, crypto/rand.Reader is used.
func GenerateAPIKey(rand io.Reader) (APIKey, error) {
	_, priv, err := ed25519.GenerateKey(rand)
	if err != nil {
		return nil, err
	}
	return newAPIKey(priv)
}

// ParseAPIKey parses a formatted APIKey and returns the
// value it represents.
func ParseAPIKey(s string) (APIKey, error) {
	const (
		Header      = "bank:v1:"
		Ed25519Type = 0
	)
	if !strings.HasPrefix(s, Header) {
		return nil, errors.New("bank: invalid API key: missing 'bank:v1:' prefix")
	}
	b, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(s, Header))
	if err != nil {
		return nil, err
	}
	if len(b) != 1+ed25519.SeedSize {
		return nil, errors.New("bank: invalid API key: invalid length")
	}
	if b[0] != Ed25519Type {
		return nil, errors.New("bank: invalid API key: unsupported type")
	}
	return newAPIKey(ed25519.NewKeyFromSeed(b[1:]))
}

// ParsePublicKey parses a hex-encoded Ed25519 public key.
func ParsePublicKey(s string) (ed25519.PublicKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.New("bank: invalid public key: not hex encoded")
	}
	if len(b) != ed25519.PublicKeySize {
		return nil, errors.New("bank: invalid public key: invalid length")
	}
	return ed25519.PublicKey(b), nil
}

// EncodePublicKey returns the hex encoding of key. It is
// the inverse of ParsePublicKey.
func EncodePublicKey(key ed25519.PublicKey) string { return hex.EncodeToString(key) }

func newAPIKey(key ed25519.PrivateKey) (*apiKey, error) {
	id, err := ed25519Identity(key[ed25519.SeedSize:])
	if err != nil {
		return nil, err
	}
	return &apiKey{
		key:      key,
		identity: id,
	}, nil
}

// apiKey is an APIKey implementation using Ed25519 public/private keys.
type apiKey struct {
	key      ed25519.PrivateKey
	identity Identity
}

func (ak *apiKey) Public() ed25519.PublicKey {
	public := make([]byte, 0, len(ak.key[ed25519.SeedSize:]))
	return ed25519.PublicKey(append(public, ak.key[ed25519.SeedSize:]...))
}

func (ak *apiKey) Private() ed25519.PrivateKey {
	private := make([]byte, 0, len(ak.key))
	return ed25519.PrivateKey(append(private, ak.key...))
}

func (ak *apiKey) Identity() Identity { return ak.identity }

func (ak *apiKey) String() string {
	const Ed25519Type = 0
	k := make([]byte, 0, 1+ed25519.SeedSize)
	k = append(k, Ed25519Type)
	k = append(k, ak.key[:ed25519.SeedSize]...)
	return "bank:v1:" + base64.StdEncoding.EncodeToString(k)
}

// IdentityOf returns the Identity of an Ed25519 public key.
func IdentityOf(key ed25519.PublicKey) Identity {
	id, err := ed25519Identity(key)
	if err != nil {
		return IdentityUnknown
	}
	return id
}

func ed25519Identity(pubKey []byte) (Identity, error) {
	type publicKeyInfo struct {
		Algorithm pkix.AlgorithmIdentifier
		PublicKey asn1.BitString
	}
	derPublicKey, err := asn1.Marshal(publicKeyInfo{
		Algorithm: pkix.AlgorithmIdentifier{
			Algorithm: asn1.ObjectIdentifier{1, 3, 101, 112},
		},
		PublicKey: asn1.BitString{BitLength: len(pubKey) * 8, Bytes: pubKey},
	})
	if err != nil {
		return "", err
	}
	id := sha256.Sum256(derPublicKey)
	return Identity(hex.EncodeToString(id[:])), nil
}
