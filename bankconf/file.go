// Copyright 2023 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

// Package bankconf reads replica and client configuration
// files.
//
// A configuration file is a YAML document starting with
// "version: v1". Every scalar value may reference an
// environment variable, as in "${BANK_API_KEY}".
package bankconf

import (
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/minio/bank"
	"github.com/minio/bank/internal/keysource"
	yaml "gopkg.in/yaml.v3"
)

// ReadFile opens the given file and reads the replica
// configuration from it by calling ReadFrom.
func ReadFile(filename string) (*File, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close() // make sure to close file in case of panic

	file, err := ReadFrom(f)
	if cErr := f.Close(); err == nil {
		err = cErr
	}
	return file, err
}

// ReadFrom parses and returns a new replica configuration
// file from r.
func ReadFrom(r io.Reader) (*File, error) {
	var node yaml.Node
	if err := yaml.NewDecoder(r).Decode(&node); err != nil {
		return nil, err
	}
	if err := checkVersion(&node); err != nil {
		return nil, err
	}

	var y ymlFile
	if err := node.Decode(&y); err != nil {
		return nil, err
	}
	return ymlToServerConfig(&y)
}

func checkVersion(node *yaml.Node) error {
	const Version = "v1"

	version, err := findVersion(node)
	if err != nil {
		return err
	}
	if version != "" && version != Version {
		return fmt.Errorf("bankconf: invalid config version '%s'", version)
	}
	return nil
}

// Replica is a replica entry of a configuration file.
type Replica struct {
	Name      string
	Endpoint  bank.Addr
	PublicKey ed25519.PublicKey
}

// File is a structure that holds the content of a replica
// configuration file.
type File struct {
	// Addr is the network interface address and
	// optional port the replica listens on, e.g.
	// ":7373" or "127.0.0.1:7373".
	Addr string

	// Name is the name of this replica. It must be one
	// of the Replicas.
	Name string

	// Byzantine is the number of faulty replicas the
	// bank tolerates.
	Byzantine int

	// Replicas are all replicas of the bank.
	Replicas []Replica

	// Timeout is the deadline for broadcast votes.
	Timeout time.Duration

	// Database is the path of the account database.
	Database string

	// Key is the source of the replica's signing key.
	Key keysource.Source

	// TLS contains the replica's TLS configuration.
	TLS *TLSConfig

	// Log contains the logging configuration.
	Log *LogConfig
}

// TLSConfig is a structure that holds the TLS configuration
// of a replica.
type TLSConfig struct {
	// PrivateKey is the path to the TLS private key.
	PrivateKey string

	// Certificate is the path to the TLS certificate.
	Certificate string

	// Password is an optional password to decrypt the
	// private key.
	Password string

	// CAPath is an optional path to a X.509 certificate or
	// directory of certificates used, in addition to the
	// system root certificates, to verify peer replicas.
	CAPath string
}

// LogConfig is a structure that holds the logging configuration
// of a replica.
type LogConfig struct {
	// ErrLevel is the minimum level of error log records
	// written to STDERR.
	ErrLevel slog.Level

	// AuditLevel is the minimum level of audit records
	// written to STDOUT. Audit records have level INFO.
	AuditLevel slog.Level
}

// TLSConfig returns a new TLS configuration as specified by
// the File. It returns nil and no error if File.TLS is nil.
func (f *File) TLSConfig() (*tls.Config, error) {
	if f.TLS == nil {
		return nil, nil
	}

	certificate, err := certificateFromFile(f.TLS.Certificate, f.TLS.PrivateKey, f.TLS.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to read TLS certificate: %v", err)
	}
	if certificate.Leaf != nil {
		if len(certificate.Leaf.DNSNames) == 0 && len(certificate.Leaf.IPAddresses) == 0 {
			// Go 1.15 and later ignore the subject CN.
			return nil, fmt.Errorf("invalid TLS certificate: certificate does not contain any DNS or IP address as SAN")
		}
	}

	var rootCAs *x509.CertPool
	if f.TLS.CAPath != "" {
		rootCAs, err = certPoolFromFile(f.TLS.CAPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read TLS CA certificates: %v", err)
		}
	}
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{certificate},
		NextProtos:   []string{"h2", "http/1.1"},
		RootCAs:      rootCAs,
	}, nil
}

// Config returns a new replica configuration as specified
// by the File. It loads the replica's signing key from the
// key source using the given context.
func (f *File) Config(ctx context.Context) (*bank.Config, error) {
	key, err := f.Key.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load replica key from '%s': %w", f.Key, err)
	}

	conf := &bank.Config{
		Addr:      f.Addr,
		Name:      f.Name,
		Key:       key,
		Byzantine: f.Byzantine,
		Replicas:  nodes(f.Replicas),
		Timeout:   f.Timeout,
		Database:  f.Database,
	}
	if f.TLS != nil {
		tlsConf, err := f.TLSConfig()
		if err != nil {
			return nil, err
		}
		conf.TLS = tlsConf
		conf.PeerTLS = &tls.Config{
			MinVersion: tls.VersionTLS12,
			RootCAs:    tlsConf.RootCAs,
		}
	}
	if err = conf.Verify(); err != nil {
		return nil, err
	}
	return conf, nil
}

func nodes(replicas []Replica) []bank.Node {
	nodes := make([]bank.Node, 0, len(replicas))
	for _, r := range replicas {
		nodes = append(nodes, bank.Node{
			Name:      r.Name,
			Addr:      r.Endpoint,
			PublicKey: r.PublicKey,
		})
	}
	return nodes
}
