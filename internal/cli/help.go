package cli

import (
	"fmt"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/lipgloss"
)

var (
	helpFlagStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#3BB273")).
			Bold(true)

	helpArgStyle = lipgloss.NewStyle().
			Foreground(primaryColor).
			Bold(true)

	helpDefaultStyle = lipgloss.NewStyle().
				Foreground(mutedColor).
				Italic(true)
)

// StyledHelpPrinter returns a kong help printer rendering usage, arguments
// and flags with the CLI palette.
func StyledHelpPrinter(description string) kong.HelpPrinter {
	return func(_ kong.HelpOptions, ctx *kong.Context) error {
		var sb strings.Builder

		sb.WriteString(TitleStyle.Render(ctx.Model.Name))
		sb.WriteString("\n")
		sb.WriteString(KeyStyle.Render(description))
		sb.WriteString("\n")

		sb.WriteString(SectionStyle.Render("Usage:"))
		fmt.Fprintf(&sb, "\n  %s\n", ctx.Model.Summary())

		if positional := ctx.Model.Node.Positional; len(positional) > 0 {
			sb.WriteString(SectionStyle.Render("Arguments:"))
			sb.WriteString("\n")
			for _, arg := range positional {
				fmt.Fprintf(&sb, "  %s  %s\n", helpArgStyle.Render(arg.Summary()), arg.Help)
			}
		}

		sb.WriteString(SectionStyle.Render("Flags:"))
		sb.WriteString("\n")
		for _, f := range ctx.Model.Node.Flags {
			name := "--" + f.Name
			if f.Short != 0 {
				name = fmt.Sprintf("-%c, %s", f.Short, name)
			}
			if !f.IsBool() && f.PlaceHolder != "" {
				name += "=" + strings.ToUpper(f.PlaceHolder)
			}
			sb.WriteString("  " + helpFlagStyle.Render(name))
			if f.Help != "" {
				sb.WriteString("  " + f.Help)
			}
			if f.HasDefault {
				sb.WriteString(" " + helpDefaultStyle.Render("(default: "+f.Default+")"))
			}
			sb.WriteString("\n")
		}

		_, err := fmt.Fprint(ctx.Stdout, sb.String())
		return err
	}
}
