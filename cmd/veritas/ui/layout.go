package ui

// Layout constants for viewport and panel sizing
const (
	ViewportHorizontalPadding = 2

	SplitPaneLeftRatio = 0.5
	SplitPaneDivider   = 1

	PanelBorderWidth = 1
	PanelPaddingH    = 1

	// Chrome around the results viewport
	HeaderHeight = 2
	InputHeight  = 5
	FooterHeight = 2

	CompactModeWidth = 100
	MinContentWidth  = 40
)

// LayoutConfig provides computed layout dimensions based on terminal size
type LayoutConfig struct {
	TerminalWidth  int
	TerminalHeight int
	IsCompact      bool
}

// NewLayoutConfig creates a layout configuration for the given terminal size
func NewLayoutConfig(width, height int) LayoutConfig {
	return LayoutConfig{
		TerminalWidth:  width,
		TerminalHeight: height,
		IsCompact:      width < CompactModeWidth,
	}
}

// ContentWidth returns the usable content width, never below MinContentWidth
func (l LayoutConfig) ContentWidth() int {
	return max(l.TerminalWidth-ViewportHorizontalPadding, MinContentWidth)
}

// ResultsHeight returns the height left for the results viewport
func (l LayoutConfig) ResultsHeight() int {
	return max(l.TerminalHeight-HeaderHeight-InputHeight-FooterHeight, 3)
}

// SplitPaneWidths calculates left and right pane widths for a split view
func SplitPaneWidths(totalWidth int) (leftWidth, rightWidth int) {
	leftWidth = int(float64(totalWidth) * SplitPaneLeftRatio)
	rightWidth = totalWidth - leftWidth - SplitPaneDivider
	return
}

// PanelContentWidth returns the content width inside a bordered panel
func PanelContentWidth(panelWidth int) int {
	return max(panelWidth-(PanelBorderWidth*2)-(PanelPaddingH*2), 1)
}
