package cmd

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

var (
	accent  = lipgloss.Color("#FF8800")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	failure = lipgloss.Color("#FF3333")
	white   = lipgloss.Color("#FFFFFF")
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(failure).Bold(true)
	keyStyle     = lipgloss.NewStyle().Foreground(muted).Width(26)
	sectionStyle = lipgloss.NewStyle().Foreground(accent).Bold(true).MarginTop(1)
)

func printSection(title string) {
	fmt.Println(sectionStyle.Render("▸ " + title))
}

func printField(key, value string) {
	fmt.Printf("  %s %s\n", keyStyle.Render(key), titleStyle.Render(value))
}
