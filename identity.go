// Copyright 2019 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

package bank

// IdentityUnknown is the identity of requests that
// do not carry a public key.
const IdentityUnknown Identity = ""

// An Identity uniquely identifies a key owner. It is
// the fingerprint of the owner's Ed25519 public key.
type Identity string

// IsUnknown returns true if and only if the
// identity is IdentityUnknown.
func (id Identity) IsUnknown() bool { return id == IdentityUnknown }

// String returns the string representation of
// the identity.
func (id Identity) String() string { return string(id) }
