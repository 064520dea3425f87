// Copyright 2023 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

package keysource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"aead.dev/mem"
	"github.com/minio/bank"
)

// File is a Source that reads an API key from a file.
type File struct {
	Path string
}

// Load reads the API key from the file.
func (f *File) Load(context.Context) (bank.APIKey, error) {
	file, err := os.Open(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	b, err := io.ReadAll(mem.LimitReader(file, 1*mem.KiB))
	if err != nil {
		return nil, fmt.Errorf("keysource: failed to read '%s': %v", f.Path, err)
	}
	return parse(string(b))
}

// Create writes the API key to the file. It fails if
// the file already exists.
func (f *File) Create(key bank.APIKey) error {
	file, err := os.OpenFile(f.Path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer file.Close()

	if _, err = io.WriteString(file, key.String()+"\n"); err != nil {
		return err
	}
	if err = file.Sync(); err != nil {
		return err
	}
	return file.Close()
}

func (f *File) String() string { return "File: " + f.Path }
