// Copyright 2023 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

package xterm

import (
	"strings"

	tui "github.com/charmbracelet/lipgloss"
)

// Column represents the header of one table column.
// It defines certain properties for all cells of the
// column, like the column width.
type Column struct {
	Cell
	Width     float64   // The width of the column in percent.
	Alignment Alignment // The text alignment of the column.
}

// Cell represents a single table cell.
type Cell struct {
	Text  string
	Style tui.Style
}

// NewCell returns a new table cell with the given
// text and no style.
func NewCell(text string) Cell { return Cell{Text: text} }

// Table is a table of n columns and any number of rows.
type Table struct {
	columns []*Column
	rows    [][]Cell
}

// NewTable creates a new table with len(headers)
// columns. Each column has its own header title
// in bold text, aligned to the left. All columns
// have the same width of 1/len(headers).
func NewTable(headers ...string) *Table {
	bold := tui.NewStyle().Bold(true)
	columns := make([]*Column, len(headers))
	for i, header := range headers {
		columns[i] = &Column{
			Cell: Cell{
				Text:  header,
				Style: bold,
			},
			Width:     1 / float64(len(headers)),
			Alignment: AlignLeft,
		}
	}
	return &Table{columns: columns}
}

// Columns returns the header of each column.
func (t *Table) Columns() []*Column { return t.columns }

// AddRow appends a row to the table. Missing cells
// are left empty.
func (t *Table) AddRow(cells ...Cell) { t.rows = append(t.rows, cells) }

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Format returns the table as string adjusted to
// the given width.
func (t *Table) Format(width int) string {
	var s strings.Builder
	s.WriteString(t.borderString(width, '┌', '┬', '┐'))
	s.WriteByte('\n')
	s.WriteString(t.rowString(width, true, nil))
	s.WriteByte('\n')
	s.WriteString(t.borderString(width, '├', '┼', '┤'))
	s.WriteByte('\n')
	for _, row := range t.rows {
		s.WriteString(t.rowString(width, false, row))
		s.WriteByte('\n')
	}
	s.WriteString(t.borderString(width, '└', '┴', '┘'))
	return s.String()
}

// rowString returns the row where each cell consumes
// a fraction of width, as specified by its column. If
// header is true, it returns the header row instead.
func (t *Table) rowString(width int, header bool, row []Cell) string {
	var s strings.Builder

	s.WriteRune('│')
	for i, c := range t.columns {
		w := int(float64(width) * c.Width)

		cell := c.Cell
		if !header {
			cell = Cell{}
			if i < len(row) {
				cell = row[i]
			}
		}
		s.WriteString(cell.Style.Render(c.Alignment.Format(" "+cell.Text+" ", w-1)))
		s.WriteRune('│')
	}
	return s.String()
}

// borderString returns a table border that starts with
// left, contains separator between two columns and ends
// with right.
//
// For instance:
//
//	table.borderString(width, '┌', '┬', '┐'))
//	┌───────┬────────┬───────┐
func (t *Table) borderString(width int, left, separator, right rune) string {
	var border strings.Builder

	border.WriteRune(left)
	for i, c := range t.columns {
		w := int(float64(width) * c.Width)

		border.WriteString(strings.Repeat("─", w-1))
		if i < len(t.columns)-1 {
			border.WriteRune(separator)
		}
	}
	border.WriteRune(right)
	return border.String()
}
