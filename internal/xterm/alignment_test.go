// Copyright 2024 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

package xterm

import "testing"

var alignmentFormatTests = []struct {
	Alignment Alignment
	Text      string
	Width     int
	Formatted string
}{
	{Alignment: AlignLeft, Text: "", Width: 0, Formatted: ""},                         // 0
	{Alignment: AlignLeft, Text: "alice", Width: 0, Formatted: ""},                    // 1
	{Alignment: AlignLeft, Text: "alice", Width: 8, Formatted: "alice   "},            // 2
	{Alignment: AlignLeft, Text: "alice-and-bob", Width: 6, Formatted: "alice…"},      // 3
	{Alignment: AlignLeft, Text: " replica-0 ", Width: 6, Formatted: " rep… "},        // 4
	{Alignment: AlignLeft, Text: "alice", Width: 1, Formatted: "…"},                   // 5
	{Alignment: AlignLeft, Text: " alice ", Width: 2, Formatted: "… "},                // 6
	{Alignment: AlignCenter, Text: "alice", Width: 9, Formatted: "  alice  "},         // 7
	{Alignment: AlignCenter, Text: "alice", Width: 8, Formatted: " alice  "},          // 8
	{Alignment: AlignCenter, Text: "3b1f22229ac0", Width: 9, Formatted: "3b1f…9ac0"},  // 9
	{Alignment: AlignCenter, Text: " 3b1f22229ac0 ", Width: 8, Formatted: " 3b1…c0 "}, // 10
	{Alignment: AlignRight, Text: " 500 ", Width: 7, Formatted: "   500 "},            // 11
	{Alignment: AlignRight, Text: "123456", Width: 4, Formatted: "123…"},              // 12
	{Alignment: AlignLeft, Text: "日本語", Width: 8, Formatted: "日本語  "},                 // 13
	{Alignment: AlignLeft, Text: "日本語", Width: 5, Formatted: "日本…"},                   // 14
	{Alignment: AlignLeft, Text: "日本語", Width: 4, Formatted: "日… "},                   // 15
	{Alignment: AlignRight, Text: "日本", Width: 6, Formatted: "  日本"},                  // 16
}

func TestAlignmentFormat(t *testing.T) {
	for i, test := range alignmentFormatTests {
		formatted := test.Alignment.Format(test.Text, test.Width)
		if formatted != test.Formatted {
			t.Fatalf("Test %d: got '%s' - want '%s'", i, formatted, test.Formatted)
		}
		if test.Width > 0 {
			if w := cells.StringWidth(formatted); w != test.Width {
				t.Fatalf("Test %d: formatted text occupies %d cells - want %d", i, w, test.Width)
			}
		}
	}
}
