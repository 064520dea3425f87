// Copyright 2023 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

package bankconf

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/minio/bank"
	yaml "gopkg.in/yaml.v3"
)

// ClientFile is a structure that holds the content of a
// client configuration file.
type ClientFile struct {
	// APIKey is the account key of the client. It is
	// nil if the file specifies no key.
	APIKey bank.APIKey

	// Byzantine is the number of faulty replicas the
	// bank tolerates.
	Byzantine int

	// Replicas are all replicas of the bank.
	Replicas []Replica

	// Timeout is the deadline of one client call.
	Timeout time.Duration

	// CAPath is an optional path to a X.509 certificate
	// or directory of certificates used to verify replicas.
	CAPath string
}

// ReadClientFile opens the given file and reads the client
// configuration from it by calling ReadClientFrom.
func ReadClientFile(filename string) (*ClientFile, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	file, err := ReadClientFrom(f)
	if cErr := f.Close(); err == nil {
		err = cErr
	}
	return file, err
}

// ReadClientFrom parses and returns a new client configuration
// file from r.
func ReadClientFrom(r io.Reader) (*ClientFile, error) {
	var node yaml.Node
	if err := yaml.NewDecoder(r).Decode(&node); err != nil {
		return nil, err
	}
	if err := checkVersion(&node); err != nil {
		return nil, err
	}

	var y ymlClientFile
	if err := node.Decode(&y); err != nil {
		return nil, err
	}
	return ymlToClientConfig(&y)
}

// Config returns a new client configuration as specified
// by the ClientFile. If the file contains no API key, key
// is used instead.
func (f *ClientFile) Config(key bank.APIKey) (*bank.ClientConfig, error) {
	if f.APIKey != nil {
		key = f.APIKey
	}
	if key == nil {
		return nil, errors.New("bankconf: no API key specified")
	}

	tlsConfig, err := f.TLSConfig()
	if err != nil {
		return nil, err
	}
	return &bank.ClientConfig{
		Byzantine: f.Byzantine,
		Replicas:  nodes(f.Replicas),
		Key:       key,
		Timeout:   f.Timeout,
		TLS:       tlsConfig,
	}, nil
}

// TLSConfig returns the TLS configuration used to connect
// to replicas. It returns nil if the file specifies no CA
// certificates such that the system root CAs are used.
func (f *ClientFile) TLSConfig() (*tls.Config, error) {
	if f.CAPath == "" {
		return nil, nil
	}
	rootCAs, err := certPoolFromFile(f.CAPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read TLS CA certificates: %v", err)
	}
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		RootCAs:    rootCAs,
	}, nil
}
