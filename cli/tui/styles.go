// Package tui provides the interactive record browser behind
// `glean records list --tui`.
//
// The browser is read-only and shows exactly the records the plain list
// renders; it adds navigation, not data.
package tui

import "github.com/charmbracelet/lipgloss"

var (
	accent = lipgloss.Color("#0EA5E9")
	good   = lipgloss.Color("#22C55E")
	bad    = lipgloss.Color("#F43F5E")
	dim    = lipgloss.Color("#94A3B8")
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(accent)
	labelStyle = lipgloss.NewStyle().Foreground(dim).Width(14)
	valueStyle = lipgloss.NewStyle()
	okStyle    = lipgloss.NewStyle().Foreground(good)
	failStyle  = lipgloss.NewStyle().Foreground(bad)
	helpStyle  = lipgloss.NewStyle().Foreground(dim).MarginTop(1)
	textStyle  = lipgloss.NewStyle().Foreground(dim).Italic(true)
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(dim).
			Padding(0, 1)
)
