package console

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"veritas/cmd/veritas/ui"
	"veritas/internal/logging"
	"veritas/internal/types"
	"veritas/internal/workflow"
)

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	next, cmd := m.update(msg)
	if nm, ok := next.(Model); ok {
		next = nm.syncKeys()
	}
	return next, cmd
}

// syncKeys enables the stage bindings the current state offers.
func (m Model) syncKeys() Model {
	snap := m.machine.Snapshot()
	m.keys.Submit.SetEnabled(snap.CanSubmit(m.submission()))
	m.keys.Escalate.SetEnabled(snap.CanEscalate())
	m.keys.Reconstruct.SetEnabled(snap.CanReconstruct())
	return m
}

func (m Model) update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m = m.resize(msg.Width, msg.Height)
		if m.picking {
			var cmd tea.Cmd
			m.filepicker, cmd = m.filepicker.Update(msg)
			return m.refresh(), cmd
		}
		return m.refresh(), nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.busy() {
			m = m.refresh()
		}
		return m, cmd

	case triageMsg:
		if m.machine.ApplyTriage(msg.ticket, msg.outcome) {
			m.done(types.StageTriage)
		}
		m.logFailure(msg.outcome.Failure)
		return m.refresh(), nil

	case deepDiveMsg:
		if m.machine.ApplyDeepDive(msg.ticket, msg.outcome) {
			m.done(types.StageDeepDive)
		}
		m.logFailure(msg.outcome.Failure)
		return m.refresh(), nil

	case adjudicationMsg:
		if m.machine.ApplyAdjudication(msg.ticket, msg.outcome) {
			m.done(types.StageAdjudication)
		}
		m.logFailure(msg.outcome.Failure)
		return m.refresh(), nil

	case reconstructionMsg:
		if m.machine.ApplyReconstruction(msg.ticket, msg.outcome) {
			m.done(types.StageReconstruction)
		}
		m.logFailure(msg.outcome.Failure)
		return m.refresh(), nil

	case openDeepDiveMsg:
		return m.openDeepDive(msg.scanID)

	case attachmentMsg:
		if msg.err != nil {
			m.err = fmt.Errorf("attach: %w", msg.err)
			return m.refresh(), nil
		}
		m.attachment = msg.attachment
		m.err = nil
		m.notice = fmt.Sprintf("attached %s (%d bytes)", msg.attachment.Name, len(msg.attachment.Data))
		return m.refresh(), nil

	case configReloadedMsg:
		next, err := m.applyConfig(msg.cfg)
		if err != nil {
			m.err = fmt.Errorf("config reload: %w", err)
		} else {
			m = next
			m.notice = "config reloaded"
		}
		return m.refresh(), m.waitForReload()
	}

	if m.picking {
		return m.updatePicker(msg)
	}
	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		m.cancelAll()
		return m, tea.Quit
	}
	if m.picking {
		if msg.String() == "esc" {
			m.picking = false
			return m.refresh(), nil
		}
		return m.updatePicker(msg)
	}

	switch {
	case pressed(msg, m.keys.Submit):
		return m.submit()
	case key.Matches(msg, m.keys.Focus):
		return m.toggleFocus(), nil
	case key.Matches(msg, m.keys.Attach):
		m.picking = true
		m.filepicker.Height = max(m.layout.TerminalHeight-ui.HeaderHeight-ui.FooterHeight-2, 5)
		return m, m.filepicker.Init()
	case key.Matches(msg, m.keys.Detach):
		if m.attachment != nil {
			m.notice = "dropped " + m.attachment.Name
			m.attachment = nil
		}
		return m.refresh(), nil
	}

	if m.focus == focusInput {
		var cmd tea.Cmd
		m.textarea, cmd = m.textarea.Update(msg)
		return m, cmd
	}

	switch {
	case pressed(msg, m.keys.Escalate):
		return m.escalate()
	case pressed(msg, m.keys.Reconstruct):
		return m.reconstruct()
	case key.Matches(msg, m.keys.DeepDive):
		return m.openDeepDive(m.machine.Snapshot().ScanID())
	case key.Matches(msg, m.keys.Close):
		m.machine.CloseDeepDive()
		m.done(types.StageDeepDive)
		return m.refresh(), nil
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m.resize(m.layout.TerminalWidth, m.layout.TerminalHeight).refresh(), nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) updatePicker(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	m.filepicker, cmd = m.filepicker.Update(msg)
	if ok, path := m.filepicker.DidSelectFile(msg); ok {
		m.picking = false
		return m, tea.Batch(cmd, loadAttachment(path, m.cfg.Backend.MaxUploadBytes))
	}
	if ok, path := m.filepicker.DidSelectDisabledFile(msg); ok {
		m.err = fmt.Errorf("file %s is not selectable", path)
	}
	return m, cmd
}

func (m Model) submission() types.ScanSubmission {
	return types.ScanSubmission{Text: m.textarea.Value(), Attachment: m.attachment}
}

// submit starts a new scan. Every in-flight request of the previous scan is
// canceled; the machine drops any that still land.
func (m Model) submit() (tea.Model, tea.Cmd) {
	sub := m.submission()
	ticket, err := m.machine.Submit(sub)
	if err != nil {
		m.notice = submitNotice(err)
		return m.refresh(), nil
	}
	m.cancelAll()
	m.err = nil
	m.notice = ""
	logging.UI("submitted scan (text=%t, file=%t)", sub.HasText(), sub.HasAttachment())
	m.viewport.GotoTop()
	return m.refresh(), tea.Batch(m.triageCmd(ticket, sub), m.spinner.Tick)
}

func submitNotice(err error) string {
	switch {
	case errors.Is(err, workflow.ErrNotReady):
		return "enter text or attach a file first"
	case errors.Is(err, workflow.ErrBusy):
		return "triage already in progress"
	default:
		return err.Error()
	}
}

func (m Model) escalate() (tea.Model, tea.Cmd) {
	ticket, err := m.machine.Escalate()
	if err != nil {
		m.notice = err.Error()
		return m.refresh(), nil
	}
	return m.refresh(), tea.Batch(m.adjudicationCmd(ticket), m.spinner.Tick)
}

func (m Model) reconstruct() (tea.Model, tea.Cmd) {
	ticket, err := m.machine.TriggerReconstruction()
	if err != nil {
		m.notice = err.Error()
		return m.refresh(), nil
	}
	return m.refresh(), tea.Batch(m.reconstructionCmd(ticket), m.spinner.Tick)
}

func (m Model) openDeepDive(scanID string) (tea.Model, tea.Cmd) {
	ticket, err := m.machine.OpenDeepDive(scanID)
	if err != nil {
		if errors.Is(err, workflow.ErrNoScanID) {
			m.notice = "no scan to deep dive yet"
		} else {
			m.notice = err.Error()
		}
		return m.refresh(), nil
	}
	return m.refresh(), tea.Batch(m.deepDiveCmd(ticket), m.spinner.Tick)
}

func (m Model) toggleFocus() Model {
	if m.focus == focusInput {
		m.focus = focusResults
		m.textarea.Blur()
	} else {
		m.focus = focusInput
		m.textarea.Focus()
	}
	return m
}

func (m Model) busy() bool {
	snap := m.machine.Snapshot()
	for _, stage := range types.Stages {
		if snap.Loading(stage) {
			return true
		}
	}
	return false
}

func (m Model) logFailure(f *types.Failure) {
	if f != nil {
		logging.Get(logging.CategoryUI).Warn("%s", f.Error())
	}
}

func (m Model) resize(width, height int) Model {
	m.layout = ui.NewLayoutConfig(width, height)
	m.ready = true
	m.textarea.SetWidth(m.layout.ContentWidth())
	m.help.Width = width

	footer := ui.FooterHeight
	if m.help.ShowAll {
		footer += 2
	}
	m.viewport.Width = m.layout.ContentWidth()
	m.viewport.Height = max(height-ui.HeaderHeight-ui.InputHeight-footer, 3)
	m.renderer.SetWidth(rendererWidth(m.cfg, m.layout))
	return m
}

// refresh re-renders the panels into the viewport.
func (m Model) refresh() Model {
	m.viewport.SetContent(m.renderer.Workflow(m.machine.Snapshot(), m.spinner.View()))
	return m
}
