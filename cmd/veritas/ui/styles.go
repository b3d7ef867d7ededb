// Package ui provides the visual styling and panel rendering for the VERITAS console.
// Dark "forensic lab" palette by default, with a light variant.
package ui

import (
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Color palette
var (
	// Dark Mode Colors (Default)
	DarkBackground = lipgloss.Color("#09090b") // zinc-950
	DarkForeground = lipgloss.Color("#f4f4f5") // zinc-100
	DarkPrimary    = lipgloss.Color("#ef4444") // red-500
	DarkAccent     = lipgloss.Color("#a855f7") // purple-500
	DarkMuted      = lipgloss.Color("#71717a") // zinc-500
	DarkBorder     = lipgloss.Color("#27272a") // zinc-800

	// Light Mode Colors
	LightBackground = lipgloss.Color("#fafafa")
	LightForeground = lipgloss.Color("#18181b")
	LightPrimary    = lipgloss.Color("#b91c1c")
	LightAccent     = lipgloss.Color("#7e22ce")
	LightMuted      = lipgloss.Color("#52525b")
	LightBorder     = lipgloss.Color("#d4d4d8")

	// Semantic Colors (same in both modes)
	Destructive = lipgloss.Color("#f87171") // red-400
	Success     = lipgloss.Color("#4ade80") // green-400
	Warning     = lipgloss.Color("#facc15") // yellow-400
	Info        = lipgloss.Color("#3b82f6") // blue-500
)

// Theme holds the current color scheme
type Theme struct {
	Background lipgloss.Color
	Foreground lipgloss.Color
	Primary    lipgloss.Color
	Accent     lipgloss.Color
	Muted      lipgloss.Color
	Border     lipgloss.Color
	IsDark     bool
}

// DarkTheme returns the dark mode theme
func DarkTheme() Theme {
	return Theme{
		Background: DarkBackground,
		Foreground: DarkForeground,
		Primary:    DarkPrimary,
		Accent:     DarkAccent,
		Muted:      DarkMuted,
		Border:     DarkBorder,
		IsDark:     true,
	}
}

// LightTheme returns the light mode theme
func LightTheme() Theme {
	return Theme{
		Background: LightBackground,
		Foreground: LightForeground,
		Primary:    LightPrimary,
		Accent:     LightAccent,
		Muted:      LightMuted,
		Border:     LightBorder,
		IsDark:     false,
	}
}

// DetectTheme resolves a ui.theme setting. "dark" and "light" are explicit;
// anything else consults COLORFGBG and falls back to dark.
func DetectTheme(preference string) Theme {
	switch strings.ToLower(strings.TrimSpace(preference)) {
	case "dark":
		return DarkTheme()
	case "light":
		return LightTheme()
	}

	// Format is usually "foreground;background"; 7 and 9-15 are light backgrounds.
	if colorTerm := os.Getenv("COLORFGBG"); colorTerm != "" {
		parts := strings.Split(colorTerm, ";")
		if bgIdx, err := strconv.Atoi(parts[len(parts)-1]); err == nil {
			if bgIdx == 7 || bgIdx >= 9 {
				return LightTheme()
			}
		}
	}
	return DarkTheme()
}

// Styles holds all the styled components
type Styles struct {
	Theme Theme

	// Layout
	Header lipgloss.Style
	Footer lipgloss.Style
	Panel  lipgloss.Style
	Active lipgloss.Style

	// Text
	Title  lipgloss.Style
	Label  lipgloss.Style
	Body   lipgloss.Style
	Muted  lipgloss.Style
	Metric lipgloss.Style

	// Status
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style

	// Components
	Spinner lipgloss.Style
	Divider lipgloss.Style
	Badge   lipgloss.Style
	Room    lipgloss.Style
}

// NewStyles creates a new Styles instance with the given theme
func NewStyles(theme Theme) Styles {
	return Styles{
		Theme: theme,

		Header: lipgloss.NewStyle().
			Foreground(theme.Primary).
			Bold(true).
			Padding(0, 1),

		Footer: lipgloss.NewStyle().
			Foreground(theme.Muted).
			Padding(0, 1),

		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(theme.Border).
			Padding(0, 1),

		Active: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(theme.Accent).
			Padding(0, 1),

		Title: lipgloss.NewStyle().
			Foreground(theme.Foreground).
			Bold(true),

		Label: lipgloss.NewStyle().
			Foreground(theme.Muted).
			Bold(true),

		Body: lipgloss.NewStyle().
			Foreground(theme.Foreground),

		Muted: lipgloss.NewStyle().
			Foreground(theme.Muted),

		Metric: lipgloss.NewStyle().
			Foreground(theme.Foreground).
			Bold(true),

		Success: lipgloss.NewStyle().
			Foreground(Success).
			Bold(true),

		Error: lipgloss.NewStyle().
			Foreground(Destructive).
			Bold(true),

		Warning: lipgloss.NewStyle().
			Foreground(Warning).
			Bold(true),

		Info: lipgloss.NewStyle().
			Foreground(Info),

		Spinner: lipgloss.NewStyle().
			Foreground(theme.Accent),

		Divider: lipgloss.NewStyle().
			Foreground(theme.Border),

		Badge: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#ffffff")).
			Padding(0, 1).
			Bold(true),

		Room: lipgloss.NewStyle().
			Foreground(theme.Accent),
	}
}

// Logo returns the VERITAS banner
func Logo(s Styles) string {
	return s.Header.Render("VERITAS.ai") + s.Muted.Render("| Forensic Engine")
}

// RenderDivider returns a horizontal divider
func (s Styles) RenderDivider(width int) string {
	if width < 1 {
		width = 1
	}
	return s.Divider.Render(strings.Repeat("─", width))
}
