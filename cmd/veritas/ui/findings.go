package ui

import (
	"math"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"veritas/internal/types"
)

// Units appended to numeric findings.
const (
	UnitProbability = "/ 1.0 (Prob)"
	UnitCount       = "nodes/days"
)

// FindingDisplay is the presentation of one deep-dive finding.
type FindingDisplay struct {
	Label string
	Value string
	Unit  string
	Kind  types.FindingKind
	// Alert marks a boolean finding that was detected.
	Alert bool
}

// DescribeFinding chooses a presentation from the finding's value type alone.
// Booleans become DETECTED/CLEAR, numbers below 1 read as probabilities, other
// numbers as counts, and everything else is shown verbatim.
func DescribeFinding(f types.Finding) FindingDisplay {
	d := types.MatchFinding(f.Value,
		func(b bool) FindingDisplay {
			if b {
				return FindingDisplay{Value: "DETECTED", Alert: true}
			}
			return FindingDisplay{Value: "CLEAR"}
		},
		func(n float64) FindingDisplay {
			unit := UnitCount
			if n < 1 {
				unit = UnitProbability
			}
			return FindingDisplay{Value: FormatNumber(n), Unit: unit}
		},
		func(s string) FindingDisplay {
			return FindingDisplay{Value: s}
		},
	)
	d.Label = strings.ToUpper(strings.ReplaceAll(f.Key, "_", " "))
	d.Kind = f.Value.Kind()
	return d
}

// FormatNumber prints n with the shortest exact representation.
func FormatNumber(n float64) string {
	if math.IsInf(n, 0) || math.IsNaN(n) {
		return strconv.FormatFloat(n, 'g', -1, 64)
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// FormatPercent prints a 0..1 fraction as a percentage with one decimal.
func FormatPercent(f float64) string {
	return strconv.FormatFloat(f*100, 'f', 1, 64) + "%"
}

// ConfidenceBar draws a fraction as a fixed-width bar. Values outside 0..1 are
// clamped.
func ConfidenceBar(f float64, width int) string {
	if width < 1 {
		return ""
	}
	if math.IsNaN(f) {
		f = 0
	}
	f = math.Max(0, math.Min(1, f))
	filled := int(math.Round(f * float64(width)))
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

// renderFinding draws one finding as a small card row.
func (s Styles) renderFinding(d FindingDisplay) string {
	var value string
	switch d.Kind {
	case types.FindingBool:
		if d.Alert {
			value = s.Error.Render(d.Value)
		} else {
			value = s.Success.Render(d.Value)
		}
	case types.FindingNumber:
		value = s.Metric.Render(d.Value) + " " + s.Muted.Render(d.Unit)
	default:
		value = s.Body.Render(d.Value)
	}
	return lipgloss.JoinVertical(lipgloss.Left, s.Label.Render(d.Label), value)
}

// ScoreBand buckets a deception score for coloring.
type ScoreBand int

const (
	ScoreLow ScoreBand = iota
	ScoreElevated
	ScoreHigh
)

// ScoreBandOf returns the band of a 0..100 deception score.
func ScoreBandOf(score int) ScoreBand {
	switch {
	case score < 30:
		return ScoreLow
	case score < 70:
		return ScoreElevated
	default:
		return ScoreHigh
	}
}

func (s Styles) scoreStyle(score int) lipgloss.Style {
	switch ScoreBandOf(score) {
	case ScoreLow:
		return s.Success
	case ScoreElevated:
		return s.Warning
	default:
		return s.Error
	}
}

func (s Styles) verdictBadge(v types.Verdict) string {
	bg := s.Theme.Muted
	switch v {
	case types.VerdictManipulated:
		bg = Destructive
	case types.VerdictAuthentic:
		bg = Success
	case types.VerdictUncertain:
		bg = Warning
	}
	return s.Badge.Background(bg).Foreground(lipgloss.Color("#09090b")).Render(v.Label())
}
