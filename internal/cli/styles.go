// Package cli renders the terminal output of the ipusegment command.
package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

// Color palette
var (
	primaryColor = lipgloss.Color("#2E86AB")
	accentColor  = lipgloss.Color("#F18F01")
	errorColor   = lipgloss.Color("#C73E1D")
	mutedColor   = lipgloss.Color("#888888")
	textColor    = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	SectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accentColor).
			MarginTop(1)

	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(errorColor)

	WarnStyle = lipgloss.NewStyle().
			Foreground(accentColor)

	KeyStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	ValueStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(textColor)
)

// PrintVersion writes version information to w.
func PrintVersion(w io.Writer, version string) {
	_, _ = fmt.Fprintln(w, TitleStyle.Render("ipusegment"))
	_, _ = fmt.Fprintf(w, "%s %s\n", KeyStyle.Render("Version:"), ValueStyle.Render(version))
}

// PrintError writes an error message to w.
func PrintError(w io.Writer, message string) {
	_, _ = fmt.Fprintf(w, "%s %s\n", ErrorStyle.Render("Error:"), message)
}
