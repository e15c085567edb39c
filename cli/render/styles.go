package render

import "github.com/charmbracelet/lipgloss"

var (
	keyColor     = lipgloss.Color("#7C3AED")
	successColor = lipgloss.Color("#10B981")
	errorColor   = lipgloss.Color("#EF4444")
	mutedColor   = lipgloss.Color("#6B7280")
)

// styles renders table decorations. The zero value is plain text.
type styles struct {
	plain  bool
	keyS   lipgloss.Style
	okS    lipgloss.Style
	failS  lipgloss.Style
	mutedS lipgloss.Style
}

func newStyles(noColor bool) styles {
	if noColor {
		return styles{plain: true}
	}
	return styles{
		keyS:   lipgloss.NewStyle().Bold(true).Foreground(keyColor),
		okS:    lipgloss.NewStyle().Foreground(successColor),
		failS:  lipgloss.NewStyle().Bold(true).Foreground(errorColor),
		mutedS: lipgloss.NewStyle().Foreground(mutedColor),
	}
}

func (s styles) key(text string) string {
	if s.plain {
		return text
	}
	return s.keyS.Render(text)
}

func (s styles) muted(text string) string {
	if s.plain {
		return text
	}
	return s.mutedS.Render(text)
}

// state colors terminal job states.
func (s styles) state(text string) string {
	if s.plain {
		return text
	}
	switch text {
	case "done", "ok":
		return s.okS.Render(text)
	case "aborted", "error":
		return s.failS.Render(text)
	default:
		return text
	}
}
