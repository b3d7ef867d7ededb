package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"veritas/internal/types"
	"veritas/internal/workflow"
)

// Renderer draws the four stage panels from a workflow snapshot.
type Renderer struct {
	styles   Styles
	width    int
	markdown bool
	md       *glamour.TermRenderer
}

// NewRenderer creates a renderer. When markdown is set, adjudication narratives
// are rendered through glamour.
func NewRenderer(styles Styles, width int, markdown bool) *Renderer {
	r := &Renderer{styles: styles, markdown: markdown}
	r.SetWidth(width)
	return r
}

// Styles returns the renderer's styles.
func (r *Renderer) Styles() Styles {
	return r.styles
}

// Width returns the wrap width.
func (r *Renderer) Width() int {
	return r.width
}

// SetWidth resizes the renderer and rebuilds the markdown renderer for the new
// wrap width.
func (r *Renderer) SetWidth(width int) {
	if width < MinContentWidth {
		width = MinContentWidth
	}
	if width == r.width && (r.md != nil || !r.markdown) {
		return
	}
	r.width = width
	r.md = nil
	if !r.markdown {
		return
	}
	style := "light"
	if r.styles.Theme.IsDark {
		style = "dark"
	}
	md, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(PanelContentWidth(width)),
	)
	if err == nil {
		r.md = md
	}
}

// Markdown renders src, falling back to wrapped plain text.
func (r *Renderer) Markdown(src string) string {
	if r.md != nil {
		if out, err := r.md.Render(src); err == nil {
			return strings.Trim(out, "\n")
		}
	}
	return lipgloss.NewStyle().Width(PanelContentWidth(r.width)).Render(strings.TrimSpace(src))
}

func (r *Renderer) panel(stage types.Stage, active bool, body ...string) string {
	style := r.styles.Panel
	if active {
		style = r.styles.Active
	}
	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{r.styles.Title.Render(stage.Title())}, body...)...)
	return style.Width(r.width - PanelBorderWidth*2).Render(content)
}

func (r *Renderer) failureLine(f *types.Failure) string {
	return r.styles.Error.Render("✗ " + f.Error())
}

// Workflow renders every mounted panel in workflow order.
func (r *Renderer) Workflow(snap workflow.Snapshot, spin string) string {
	var parts []string
	for _, p := range []string{
		r.Triage(snap, spin),
		r.DeepDive(snap.DeepDive, spin),
		r.Adjudication(snap, spin),
		r.Reconstruction(snap, spin),
	} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// Triage renders the Stage 1 panel. It is always mounted.
func (r *Renderer) Triage(snap workflow.Snapshot, spin string) string {
	s := r.styles
	switch {
	case snap.Loading(types.StageTriage):
		return r.panel(types.StageTriage, true, spin+" "+s.Muted.Render("PHASE 1: SEMANTIC TRIAGE IN PROGRESS..."))
	case snap.Triage == nil:
		body := []string{s.Muted.Render("Submit text or a file to begin.")}
		if f := snap.Failure(types.StageTriage); f != nil {
			body = append([]string{r.failureLine(f)}, body...)
		}
		return r.panel(types.StageTriage, false, body...)
	}
	return r.panel(types.StageTriage, false, r.TriageCard(*snap.Triage))
}

// TriageCard renders a triage result.
func (r *Renderer) TriageCard(t types.TriageResult) string {
	s := r.styles
	score := lipgloss.JoinVertical(lipgloss.Left,
		s.Label.Render("DECEPTION SCORE"),
		s.scoreStyle(t.DeceptionScore).Render(fmt.Sprintf("%d", t.DeceptionScore)),
		s.Muted.Render("Confidence: "+FormatPercent(t.Confidence)),
	)
	category := lipgloss.JoinVertical(lipgloss.Left,
		s.Label.Render("RISK CATEGORY"),
		s.Metric.Render(string(t.Category)),
		s.Muted.Render("Phase 1 Classification"),
	)

	var routing []string
	routing = append(routing, s.Label.Render("RISK ROUTING"))
	if t.Escalatable() {
		for _, room := range t.RoutingDecision {
			routing = append(routing, s.Room.Render("→ "+room))
		}
	} else {
		routing = append(routing, s.Success.Render("No escalation required. Content marked as benign."))
	}

	var header string
	if lipgloss.Width(score)+lipgloss.Width(category)+4 < r.width {
		header = lipgloss.JoinHorizontal(lipgloss.Top, score, "    ", category)
	} else {
		header = lipgloss.JoinVertical(lipgloss.Left, score, category)
	}

	lines := []string{
		s.Muted.Render("scan " + t.ID + " · " + t.Status),
		header,
		"",
		lipgloss.JoinVertical(lipgloss.Left, routing...),
	}
	if t.ExplanationSummary != "" {
		lines = append(lines, "", s.Body.Width(PanelContentWidth(r.width)).Render(t.ExplanationSummary))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// DeepDive renders the Stage 2 panel, or "" when it is not mounted.
func (r *Renderer) DeepDive(view workflow.DeepDiveView, spin string) string {
	if !view.Open() {
		return ""
	}
	s := r.styles
	switch {
	case view.Loading:
		return r.panel(types.StageDeepDive, true, spin+" "+s.Muted.Render("ROUTING TO DEEP FORENSIC ROOM..."))
	case view.Failure != nil:
		return r.panel(types.StageDeepDive, false,
			s.Muted.Render("scan "+view.ScanID),
			r.failureLine(view.Failure),
			s.Muted.Render("Press d to retry."))
	case view.Result == nil:
		return ""
	}
	return r.panel(types.StageDeepDive, false, r.DeepDiveCard(*view.Result))
}

// DeepDiveCard renders a deep-dive result as a grid of findings.
func (r *Renderer) DeepDiveCard(d types.DeepDiveResult) string {
	s := r.styles
	lines := []string{
		s.Metric.Render(d.Feature),
		s.Label.Render("CATEGORY ANALYSIS: " + strings.ToUpper(string(d.Category))),
		"",
	}
	if len(d.Findings) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, append(lines, s.Muted.Render("No findings reported for this scan."))...)
	}

	cols := 2
	if r.width < CompactModeWidth {
		cols = 1
	}
	colWidth := PanelContentWidth(r.width)/cols - 2
	cell := lipgloss.NewStyle().Width(colWidth).MarginRight(2).MarginBottom(1)

	var row []string
	for _, f := range d.Findings {
		row = append(row, cell.Render(s.renderFinding(DescribeFinding(f))))
		if len(row) == cols {
			lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, row...))
			row = nil
		}
	}
	if len(row) > 0 {
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, row...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// Adjudication renders the Stage 3 panel, or "" when it is not mounted.
func (r *Renderer) Adjudication(snap workflow.Snapshot, spin string) string {
	if !snap.AdjudicationMounted() {
		return ""
	}
	s := r.styles
	switch {
	case snap.Loading(types.StageAdjudication):
		return r.panel(types.StageAdjudication, true, spin+" "+s.Muted.Render("LLM reasoning layer analyzing conflict models."))
	case snap.Adjudication == nil:
		body := []string{s.Info.Render("[e] Escalate to Supreme Court")}
		if f := snap.Failure(types.StageAdjudication); f != nil {
			body = append([]string{r.failureLine(f)}, body...)
		}
		return r.panel(types.StageAdjudication, false, body...)
	}
	return r.panel(types.StageAdjudication, false, r.AdjudicationCard(*snap.Adjudication))
}

// AdjudicationCard renders an adjudication result.
func (r *Renderer) AdjudicationCard(a types.AdjudicationResult) string {
	s := r.styles
	barWidth := min(PanelContentWidth(r.width)-8, 40)
	return lipgloss.JoinVertical(lipgloss.Left,
		s.Label.Render("VERDICT ")+s.verdictBadge(a.Verdict),
		"",
		s.Label.Render("JUDICIAL REASONING LOG"),
		r.Markdown(a.ReasoningLog),
		"",
		s.Label.Render("AUDIT TRAIL & CALIBRATION"),
		r.Markdown(a.AuditTrail),
		s.Muted.Render("Confidence Calibration ")+s.Metric.Render(FormatPercent(a.ConfidenceCalibration)),
		s.Info.Render(ConfidenceBar(a.ConfidenceCalibration, barWidth)),
		"",
		s.Label.Render("EVIDENCE HEATMAP TARGET"),
		s.Body.Render(a.EvidenceHeatmap),
	)
}

// Reconstruction renders the Stage 4 panel, or "" when it is not mounted.
func (r *Renderer) Reconstruction(snap workflow.Snapshot, spin string) string {
	if !snap.ReconstructionMounted() {
		return ""
	}
	s := r.styles
	switch {
	case snap.Loading(types.StageReconstruction):
		return r.panel(types.StageReconstruction, true,
			spin+" "+s.Warning.Render("Inverse Diffusion Active"),
			s.Muted.Render("Stripping generator artifacts and mapping back to the ground truth representation."))
	case snap.Reconstruction == nil:
		body := []string{
			s.Body.Width(PanelContentWidth(r.width)).Render("Has the content been poisoned? Initiate the Inverse Diffusion Engine to revert the asset back to its unmanipulated truth baseline."),
			s.Info.Render("[r] Revert to Truth"),
		}
		if f := snap.Failure(types.StageReconstruction); f != nil {
			body = append([]string{r.failureLine(f)}, body...)
		}
		return r.panel(types.StageReconstruction, false, body...)
	}
	return r.panel(types.StageReconstruction, false, r.ReconstructionCard(*snap.Reconstruction))
}

// ReconstructionCard renders a reconstruction result with a before/after split.
func (r *Renderer) ReconstructionCard(rec types.ReconstructionResult) string {
	s := r.styles
	left, right := SplitPaneWidths(PanelContentWidth(r.width))
	box := s.Panel.Width(left - PanelBorderWidth*2)
	before := box.Render(lipgloss.JoinVertical(lipgloss.Left,
		s.Label.Render("MANIPULATED PAYLOAD"),
		s.Error.Render("REDACTED"),
		s.Muted.Render("Deceptive Trace Detected"),
	))
	after := box.Width(right - PanelBorderWidth*2).Render(lipgloss.JoinVertical(lipgloss.Left,
		s.Label.Render("BASELINE CORE"),
		s.Success.Render("CLEAN"),
		s.Body.Render(rec.StatusMessage),
	))

	return lipgloss.JoinVertical(lipgloss.Left,
		s.Success.Render("Truth Reconstructed"),
		s.Muted.Render(rec.InverseDiffusionModel),
		"",
		s.Label.Render("RECONSTRUCTION LATENCY ")+s.Metric.Render(fmt.Sprintf("%dms", rec.LatencyMS)),
		s.Label.Render("CONFIDENCE LABEL ")+s.Metric.Render(FormatPercent(rec.ReconstructionConfidence)),
		"",
		lipgloss.JoinHorizontal(lipgloss.Top, before, " ", after),
		"",
		s.Label.Render("ACTION LOG"),
		s.Body.Render(rec.RevertAction),
	)
}
