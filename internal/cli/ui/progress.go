package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// ProgressBar renders a single-line bar that is redrawn in place
type ProgressBar struct {
	writer  io.Writer
	total   int
	current int
	width   int
	message string
	noColor bool
}

// NewProgressBar creates a bar for total steps
func NewProgressBar(w io.Writer, total int, message string, noColor bool) *ProgressBar {
	return &ProgressBar{writer: w, total: total, width: 30, message: message, noColor: noColor}
}

// Add advances the bar by n steps
func (p *ProgressBar) Add(n int) {
	p.current = min(p.current+n, p.total)
	p.render()
}

// Current returns the number of completed steps
func (p *ProgressBar) Current() int {
	return p.current
}

// Finish fills the bar and ends the line
func (p *ProgressBar) Finish() {
	p.current = p.total
	p.render()
	fmt.Fprintln(p.writer)
}

func (p *ProgressBar) render() {
	if p.total == 0 {
		return
	}
	filled := p.width * p.current / p.total

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	if p.noColor {
		cyan.DisableColor()
		gray.DisableColor()
	}

	var bar strings.Builder
	bar.WriteString("[")
	cyan.Fprint(&bar, strings.Repeat("█", filled))
	gray.Fprint(&bar, strings.Repeat("░", p.width-filled))
	bar.WriteString("]")

	fmt.Fprintf(p.writer, "\r%s %d/%d %s", bar.String(), p.current, p.total, p.message)
}
