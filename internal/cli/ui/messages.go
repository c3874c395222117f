package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Level is the severity of a message
type Level int

const (
	LevelError Level = iota
	LevelWarning
	LevelInfo
)

// Message is a structured terminal message
//
//	❌ ASSET NOT FOUND: textures/wod.png
//	   No asset is registered at textures/wod.png.
//
//	   Did you mean: textures/wood.png?
//
//	   → List assets: assetforge status
type Message struct {
	Level        Level
	Context      string
	Problem      string
	Detail       string
	Suggestions  []string
	HelpCommands []string
	NoColor      bool
}

// Format renders the message
func (m Message) Format() string {
	var b strings.Builder

	var header, body *color.Color
	var symbol string
	switch m.Level {
	case LevelWarning:
		header, body, symbol = color.New(color.FgYellow, color.Bold), color.New(color.FgYellow), "⚠️"
	case LevelInfo:
		header, body, symbol = color.New(color.FgCyan, color.Bold), color.New(color.FgCyan), "ℹ️"
	default:
		header, body, symbol = color.New(color.FgRed, color.Bold), color.New(color.FgRed), "❌"
	}
	if m.NoColor {
		header.DisableColor()
		body.DisableColor()
	}

	if m.Context != "" {
		header.Fprintf(&b, "%s %s: %s\n", symbol, strings.ToUpper(m.Context), m.Problem)
	} else {
		header.Fprintf(&b, "%s %s\n", symbol, m.Problem)
	}
	if m.Detail != "" {
		body.Fprintf(&b, "   %s\n", m.Detail)
	}

	if len(m.Suggestions) > 0 {
		yellow := color.New(color.FgYellow)
		if m.NoColor {
			yellow.DisableColor()
		}
		b.WriteString("\n")
		yellow.Fprintf(&b, "   Did you mean: %s?\n", strings.Join(m.Suggestions, ", "))
	}

	if len(m.HelpCommands) > 0 {
		cyan := color.New(color.FgCyan)
		if m.NoColor {
			cyan.DisableColor()
		}
		b.WriteString("\n")
		for _, cmd := range m.HelpCommands {
			cyan.Fprintf(&b, "   → %s\n", cmd)
		}
	}
	return b.String()
}

// Write renders the message to w
func (m Message) Write(w io.Writer) {
	fmt.Fprint(w, m.Format())
}

// AssetNotFound builds the message for an unknown asset path
func AssetNotFound(path string, suggestions []string, noColor bool) Message {
	return Message{
		Context:      "asset not found",
		Problem:      path,
		Detail:       fmt.Sprintf("No asset is registered at %s.", path),
		Suggestions:  suggestions,
		HelpCommands: []string{"List assets: assetforge status", "Rescan content: assetforge scan"},
		NoColor:      noColor,
	}
}

// CompileFailed builds the message for a failed compile
func CompileFailed(path, reason string, noColor bool) Message {
	return Message{
		Context:      "compile failed",
		Problem:      path,
		Detail:       reason,
		HelpCommands: []string{fmt.Sprintf("Inspect dependencies: assetforge deps %s", path)},
		NoColor:      noColor,
	}
}

// ConfigError builds the message for an unusable configuration
func ConfigError(err error, noColor bool) Message {
	return Message{
		Context:      "configuration error",
		Problem:      err.Error(),
		HelpCommands: []string{"Create a config: assetforge init", "View config: cat assetforge.yaml"},
		NoColor:      noColor,
	}
}

// Success formats a success line
func Success(message string, noColor bool) string {
	green := color.New(color.FgGreen, color.Bold)
	if noColor {
		green.DisableColor()
	}
	return green.Sprintf("✓ %s", message)
}

// Warning formats a one-line warning
func Warning(message string, noColor bool) string {
	return Message{Level: LevelWarning, Problem: message, NoColor: noColor}.Format()
}
