// Copyright 2024 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

package xterm

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"
)

const (
	AlignLeft Alignment = iota
	AlignCenter
	AlignRight
)

// Alignment is the text alignment of a table column.
//
// Usernames are aligned to the left, amounts and wids to
// the right and keys to the center. A centered text that
// does not fit is elided in the middle, such that a key
// keeps its prefix and suffix: "3b1f…9ac0".
type Alignment int

// cells measures text in terminal cells. Ambiguous runes,
// like '…', occupy one cell.
var cells = &runewidth.Condition{EastAsianWidth: false}

// Format aligns text and returns a string that occupies
// exactly width terminal cells.
//
// Shorter text is padded with whitespaces. Longer text is
// cut and marked with '…'. Surrounding whitespace of the
// text is preserved.
func (a Alignment) Format(text string, width int) string {
	if width <= 0 {
		return ""
	}

	w := cells.StringWidth(text)
	if w > width {
		return a.cut(text, width)
	}
	switch n := width - w; a {
	case AlignLeft:
		return text + strings.Repeat(" ", n)
	case AlignCenter:
		return strings.Repeat(" ", n/2) + text + strings.Repeat(" ", n-n/2)
	case AlignRight:
		return strings.Repeat(" ", n) + text
	default:
		panic(fmt.Sprintf("invalid alignment: %v", a))
	}
}

// cut shortens text to width cells including the '…'.
func (a Alignment) cut(text string, width int) string {
	body := strings.TrimSpace(text)
	lead := text[:strings.Index(text, body)]
	trail := text[len(lead)+len(body):]
	if len(lead) > 1 {
		lead = lead[:1]
	}
	if len(trail) > 1 {
		trail = trail[:1]
	}

	room := width - len(lead) - len(trail) - 1
	if room < 0 || body == "" {
		return strings.Repeat("…", min(width, 1)) + strings.Repeat(" ", max(width-1, 0))
	}

	var s string
	if a == AlignCenter {
		head := take([]rune(body), (room+1)/2)
		tail := reverse(take(reverse([]rune(body)), room/2))
		s = string(head) + "…" + string(tail)
	} else {
		s = string(take([]rune(body), room)) + "…"
	}
	s = lead + s + trail
	if w := cells.StringWidth(s); w < width {
		s += strings.Repeat(" ", width-w)
	}
	return s
}

// take returns the longest prefix of r that fits into
// width cells.
func take(r []rune, width int) []rune {
	for i, c := range r {
		if width -= cells.RuneWidth(c); width < 0 {
			return r[:i]
		}
	}
	return r
}

func reverse(r []rune) []rune {
	s := make([]rune, len(r))
	for i, c := range r {
		s[len(r)-1-i] = c
	}
	return s
}
