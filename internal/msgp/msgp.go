// Copyright 2023 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

// Package msgp defines the MessagePack representation of
// state that replicas persist on disk.
package msgp

import (
	"errors"

	"github.com/tinylib/msgp/msgp"
)

// Marshal returns the MessagePack encoding of v.
func Marshal(v msgp.MarshalSizer) ([]byte, error) {
	return v.MarshalMsg(make([]byte, 0, v.Msgsize()))
}

// Unmarshal decodes the MessagePack encoded b into v.
// It returns an error if b contains trailing data.
func Unmarshal(b []byte, v msgp.Unmarshaler) error {
	rest, err := v.UnmarshalMsg(b)
	if err != nil {
		return err
	}
	if len(rest) != 0 {
		return errors.New("msgp: trailing data after encoded value")
	}
	return nil
}
