// Package ui renders terminal output for the assetforge command line.
package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/conduit-lang/assetforge/internal/asset"
)

// Table renders rows under bold headers with padded columns
type Table struct {
	writer  io.Writer
	headers []string
	rows    [][]string
	noColor bool
}

// NewTable creates a table with the given headers
func NewTable(w io.Writer, noColor bool, headers ...string) *Table {
	return &Table{writer: w, headers: headers, noColor: noColor}
}

// AddRow adds a row. Missing cells render empty.
func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// Len returns the number of rows
func (t *Table) Len() int {
	return len(t.rows)
}

// Render writes the table. Widths are measured on the plain text, so cells
// must not carry color codes.
func (t *Table) Render() {
	if len(t.headers) == 0 {
		return
	}

	widths := make([]int, len(t.headers))
	for i, header := range t.headers {
		widths[i] = len(header)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	bold := t.color(color.Bold, color.FgCyan)
	for i, header := range t.headers {
		bold.Fprint(t.writer, t.cell(header, i, widths))
	}
	fmt.Fprintln(t.writer)

	gray := t.color(color.FgHiBlack)
	for i, width := range widths {
		gray.Fprint(t.writer, t.cell(strings.Repeat("─", width), i, widths))
	}
	fmt.Fprintln(t.writer)

	for _, row := range t.rows {
		for i := range widths {
			var value string
			if i < len(row) {
				value = row[i]
			}
			fmt.Fprint(t.writer, t.cell(value, i, widths))
		}
		fmt.Fprintln(t.writer)
	}
}

// cell pads value to its column, leaving the last column unpadded
func (t *Table) cell(value string, i int, widths []int) string {
	if i == len(widths)-1 {
		return value
	}
	return padRight(value, widths[i]) + "  "
}

func (t *Table) color(attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if t.noColor {
		c.DisableColor()
	}
	return c
}

func padRight(s string, width int) string {
	n := len([]rune(s))
	if n >= width {
		return s
	}
	return s + strings.Repeat(" ", width-n)
}

// KeyValueTable renders aligned key: value lines
type KeyValueTable struct {
	writer  io.Writer
	keys    []string
	values  []string
	noColor bool
}

// NewKeyValueTable creates an empty key-value table
func NewKeyValueTable(w io.Writer, noColor bool) *KeyValueTable {
	return &KeyValueTable{writer: w, noColor: noColor}
}

// AddRow adds a key-value pair
func (t *KeyValueTable) AddRow(key, value string) {
	t.keys = append(t.keys, key)
	t.values = append(t.values, value)
}

// Render writes the table
func (t *KeyValueTable) Render() {
	width := 0
	for _, k := range t.keys {
		if len(k) > width {
			width = len(k)
		}
	}

	cyan := color.New(color.FgCyan)
	if t.noColor {
		cyan.DisableColor()
	}
	for i, k := range t.keys {
		cyan.Fprint(t.writer, padRight(k+":", width+1))
		fmt.Fprintf(t.writer, " %s\n", t.values[i])
	}
}

// StateLabel renders a compile state, colored by outcome
func StateLabel(state asset.CompileState, upToDate, noColor bool) string {
	label := state.String()
	var c *color.Color
	switch {
	case state == asset.Failed:
		c = color.New(color.FgRed)
	case state == asset.Compiled && !upToDate:
		label += " (stale)"
		c = color.New(color.FgYellow)
	case state == asset.Compiled:
		c = color.New(color.FgGreen)
	default:
		c = color.New(color.FgHiBlack)
	}
	if noColor {
		c.DisableColor()
	}
	return c.Sprint(label)
}
