// Copyright 2023 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

package sys

import (
	"runtime"
	"strings"
	"testing"

	"github.com/blang/semver/v4"
)

func TestBinaryInfo(t *testing.T) {
	info := BinaryInfo()
	if _, err := semver.ParseTolerant(info.Version); err != nil {
		t.Fatalf("Invalid version '%s': %v", info.Version, err)
	}
	if info.CommitID == "" {
		t.Fatal("Build info contains no commit ID")
	}
	if s := info.String(); !strings.HasPrefix(s, info.Version) || !strings.HasSuffix(s, runtime.GOOS+"/"+runtime.GOARCH+")") {
		t.Fatalf("Invalid build info string: %s", s)
	}
}
