// Copyright 2023 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

package main

import "golang.org/x/sys/unix"

// mlockall locks all current and future memory pages
// such that the replica's private key is never swapped
// to disk.
func mlockall() error { return unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE) }
