// Copyright 2023 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

//go:build !linux

package main

import "errors"

func mlockall() error { return errors.New("memory locking is only supported on linux") }
