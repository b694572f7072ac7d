package tui

import (
	"github.com/charmbracelet/lipgloss"
)

// Theme contains the styles shared by every screen.
type Theme struct {
	Title       lipgloss.Style
	Subtitle    lipgloss.Style
	ItemNormal  lipgloss.Style
	ItemActive  lipgloss.Style
	Description lipgloss.Style
	Code        lipgloss.Style
	Error       lipgloss.Style
	Help        lipgloss.Style

	HUDLabel lipgloss.Style
	HUDValue lipgloss.Style
	HUDWarn  lipgloss.Style
	HUDSep   lipgloss.Style
}

// DefaultTheme returns the default visual theme.
func DefaultTheme() Theme {
	return Theme{
		Title:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229")),
		Subtitle:    lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		ItemNormal:  lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		ItemActive:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57")),
		Description: lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true),
		Code:        lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("51")).Border(lipgloss.RoundedBorder()).Padding(0, 2),
		Error:       lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		Help:        lipgloss.NewStyle().Foreground(lipgloss.Color("241")),

		HUDLabel: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		HUDValue: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252")),
		HUDWarn:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		HUDSep:   lipgloss.NewStyle().Foreground(lipgloss.Color("238")),
	}
}

var theme = DefaultTheme()

// centerText centers text within given width.
func centerText(text string, width int) string {
	return lipgloss.PlaceHorizontal(width, lipgloss.Center, text)
}
