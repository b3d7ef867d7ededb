package console

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"veritas/cmd/veritas/ui"
	"veritas/internal/types"
)

func (m Model) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}
	s := m.styles
	header := lipgloss.JoinHorizontal(lipgloss.Left, ui.Logo(s), "  ", s.Muted.Render(m.cfg.Backend.BaseURL))

	if m.picking {
		return lipgloss.JoinVertical(lipgloss.Left,
			header,
			s.Title.Render("Attach a file")+s.Muted.Render("  (enter to select, esc to cancel)"),
			m.filepicker.View(),
		)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.inputView(),
		m.viewport.View(),
		m.statusLine(),
		m.help.View(m.keys),
	)
}

func (m Model) inputView() string {
	s := m.styles
	box := s.Panel
	if m.focus == focusInput {
		box = s.Active
	}
	attach := s.Muted.Render("no file attached")
	if m.attachment != nil {
		attach = s.Info.Render(fmt.Sprintf("attached: %s (%d bytes)", m.attachment.Name, len(m.attachment.Data)))
	}
	return box.Render(lipgloss.JoinVertical(lipgloss.Left, m.textarea.View(), attach+"  "+m.submitHint()))
}

// submitHint mirrors the submit binding: offered when enabled, otherwise the
// reason it is not.
func (m Model) submitHint() string {
	s := m.styles
	switch {
	case m.keys.Submit.Enabled():
		return s.Success.Render("ctrl+s to scan")
	case m.machine.Snapshot().Loading(types.StageTriage):
		return s.Muted.Render("triage in progress")
	default:
		return s.Muted.Render("enter text or attach a file to scan")
	}
}

func (m Model) statusLine() string {
	s := m.styles
	switch {
	case m.err != nil:
		return s.Error.Render(m.err.Error())
	case m.notice != "":
		return s.Warning.Render(m.notice)
	}
	snap := m.machine.Snapshot()
	line := "state: " + snap.State.String()
	if id := snap.ScanID(); id != "" {
		line += " · scan " + id
	}
	if m.focus == focusInput {
		line += " · tab to act on results"
	}
	return s.Footer.Render(line)
}
