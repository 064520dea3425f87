// Copyright 2023 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

// Package keysource loads the signing key of a replica from
// a local file or from a secret store.
//
// A key is stored in its textual form, "bank:v1:...", as
// produced by bank.APIKey.String.
package keysource

import (
	"context"
	"errors"
	"strings"

	"github.com/minio/bank"
)

// ErrNotFound is returned by a Source if no key with the
// given name exists.
var ErrNotFound = errors.New("keysource: key not found")

// Source is a location from which an API key can be loaded.
type Source interface {
	// Load fetches and parses the API key.
	Load(ctx context.Context) (bank.APIKey, error)

	// String returns a description of the source, suitable
	// for log messages. It must not contain credentials.
	String() string
}

func parse(value string) (bank.APIKey, error) {
	key, err := bank.ParseAPIKey(strings.TrimSpace(value))
	if err != nil {
		return nil, errors.New("keysource: " + strings.TrimPrefix(err.Error(), "bank: "))
	}
	return key, nil
}
