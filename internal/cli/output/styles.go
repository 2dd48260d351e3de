package output

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Styles holds the lipgloss styles used by the renderer.
type Styles struct {
	Header      lipgloss.Style
	Subheader   lipgloss.Style
	Success     lipgloss.Style
	Warning     lipgloss.Style
	Error       lipgloss.Style
	Muted       lipgloss.Style
	Fingerprint lipgloss.Style
	Key         lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) *Styles {
	return &Styles{
		Header:      r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		Subheader:   r.NewStyle().Bold(true),
		Success:     r.NewStyle().Foreground(lipgloss.Color("10")),
		Warning:     r.NewStyle().Foreground(lipgloss.Color("11")),
		Error:       r.NewStyle().Foreground(lipgloss.Color("9")),
		Muted:       r.NewStyle().Foreground(lipgloss.Color("8")),
		Fingerprint: r.NewStyle().Foreground(lipgloss.Color("14")),
		Key:         r.NewStyle().Bold(true),
	}
}

// FormatHeader returns a markdown heading.
func FormatHeader(level int, text string) string {
	if level < 1 {
		level = 1
	}
	return strings.Repeat("#", level) + " " + text
}

// FormatKeyValue returns a markdown list item.
func FormatKeyValue(key, value string) string {
	return fmt.Sprintf("- **%s**: %s", key, value)
}

// FormatCode returns a fenced code block.
func FormatCode(lang, code string) string {
	return "```" + lang + "\n" + strings.TrimRight(code, "\n") + "\n```"
}
