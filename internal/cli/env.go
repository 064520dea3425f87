// Copyright 2023 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

package cli

import "os"

// Environment variables used by the bank CLI.
const (
	// EnvConfig is the path of the client configuration
	// file. If not set, clients use './bank.yml'.
	EnvConfig = "BANK_CONFIG"

	// EnvAPIKey is the account key of the client. It is
	// used if the configuration file contains no key.
	EnvAPIKey = "BANK_API_KEY"
)

// Env returns the value of the environment variable
// key, or the empty string if it is not set.
func Env(key string) string { return os.Getenv(key) }
