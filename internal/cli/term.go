// Copyright 2024 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

package cli

import (
	"os"

	tui "github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// DefaultWidth is the width of tables and other output
// if STDOUT is not a terminal.
const DefaultWidth = 80

var isTerm = term.IsTerminal(int(os.Stdout.Fd())) || term.IsTerminal(int(os.Stderr.Fd()))

// IsTerminal reports whether stdout is a terminal.
func IsTerminal() bool { return isTerm }

// Width returns the width of the terminal attached to
// STDOUT, or DefaultWidth.
func Width() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return DefaultWidth
	}
	return width
}

// Fg returns a new style with the given foreground
// color. All strings s are rendered with the style.
// For example:
//
//	fmt.Println(cli.Fg(tui.ANSIColor(2), "Sent:"), 50)
func Fg(c tui.TerminalColor, s ...string) tui.Style {
	return tui.NewStyle().Foreground(c).SetString(s...)
}
