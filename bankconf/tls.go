// Copyright 2023 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

package bankconf

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// certificateFromFile reads and parses the PEM-encoded private
// key from keyFile and the X.509 certificate from certFile.
//
// An encrypted private key is decrypted with password.
func certificateFromFile(certFile, keyFile, password string) (tls.Certificate, error) {
	certBytes, err := readPEM(certFile, func(b *pem.Block) bool { return b.Type == "CERTIFICATE" })
	if err != nil {
		return tls.Certificate{}, err
	}
	keyBytes, err := readPrivateKey(keyFile, password)
	if err != nil {
		return tls.Certificate{}, err
	}
	certificate, err := tls.X509KeyPair(certBytes, keyBytes)
	if err != nil {
		return tls.Certificate{}, err
	}
	if certificate.Leaf == nil {
		certificate.Leaf, err = x509.ParseCertificate(certificate.Certificate[0])
		if err != nil {
			return tls.Certificate{}, err
		}
	}
	return certificate, nil
}

// certPoolFromFile returns the system root certificates
// extended by the certificate(s) at filename. If filename
// is a directory, every file in it must be a certificate.
func certPoolFromFile(filename string) (*x509.CertPool, error) {
	stat, err := os.Stat(filename)
	if err != nil {
		return nil, err
	}

	pool, _ := x509.SystemCertPool()
	if pool == nil {
		pool = x509.NewCertPool()
	}
	files := []string{filename}
	if stat.IsDir() {
		entries, err := os.ReadDir(filename)
		if err != nil {
			return nil, err
		}
		files = files[:0]
		for _, entry := range entries {
			if !entry.IsDir() {
				files = append(files, filepath.Join(filename, entry.Name()))
			}
		}
	}
	for _, file := range files {
		b, err := readPEM(file, func(b *pem.Block) bool { return b.Type == "CERTIFICATE" })
		if err != nil {
			return nil, err
		}
		if !pool.AppendCertsFromPEM(b) {
			return nil, errors.New("bankconf: failed to add '" + file + "' as CA certificate")
		}
	}
	return pool, nil
}

func readPrivateKey(keyFile, password string) ([]byte, error) {
	pemBlock, err := readPEM(keyFile, func(b *pem.Block) bool {
		return b.Type == "CERTIFICATE" || b.Type == "PRIVATE KEY" || strings.HasSuffix(b.Type, " PRIVATE KEY")
	})
	if err != nil {
		return nil, err
	}

	for len(pemBlock) > 0 {
		next, rest := pem.Decode(pemBlock)
		if next == nil {
			break
		}
		if next.Type != "PRIVATE KEY" && !strings.HasSuffix(next.Type, " PRIVATE KEY") {
			pemBlock = rest
			continue
		}

		if x509.IsEncryptedPEMBlock(next) {
			if password == "" {
				return nil, errors.New("bankconf: private key is encrypted: password required")
			}
			plaintext, err := x509.DecryptPEMBlock(next, []byte(password))
			if err != nil {
				return nil, err
			}
			return pem.EncodeToMemory(&pem.Block{Type: next.Type, Bytes: plaintext}), nil
		}
		return pem.EncodeToMemory(next), nil
	}
	return nil, errors.New("bankconf: no PEM-encoded private key found")
}

// readPEM reads filename and returns its PEM blocks if
// every block passes filter.
func readPEM(filename string, filter func(*pem.Block) bool) ([]byte, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)

	for b := data; len(b) > 0; {
		next, rest := pem.Decode(b)
		if next == nil {
			return nil, errors.New("bankconf: no valid PEM data")
		}
		if !filter(next) {
			return nil, errors.New("bankconf: unsupported PEM data block")
		}
		b = bytes.TrimSpace(rest)
	}
	return data, nil
}
