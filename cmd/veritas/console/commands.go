package console

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"

	"veritas/internal/backend"
	"veritas/internal/config"
	"veritas/internal/logging"
	"veritas/internal/types"
	"veritas/internal/workflow"
)

var errNoBackend = errors.New("console needs a backend or a backend factory")

// Stage outcomes carry the ticket they were started with; the machine decides
// whether they still apply.
type (
	triageMsg struct {
		ticket  workflow.Ticket
		outcome types.Outcome[types.TriageResult]
	}
	deepDiveMsg struct {
		ticket  workflow.Ticket
		outcome types.Outcome[types.DeepDiveResult]
	}
	adjudicationMsg struct {
		ticket  workflow.Ticket
		outcome types.Outcome[types.AdjudicationResult]
	}
	reconstructionMsg struct {
		ticket  workflow.Ticket
		outcome types.Outcome[types.ReconstructionResult]
	}

	openDeepDiveMsg struct{ scanID string }

	attachmentMsg struct {
		attachment *types.Attachment
		err        error
	}

	configReloadedMsg struct{ cfg *config.Config }
)

// track registers a cancel func for stage, canceling any previous one.
func (m Model) track(stage types.Stage) context.Context {
	if cancel, ok := m.inflight[stage]; ok {
		cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.inflight[stage] = cancel
	return ctx
}

func (m Model) done(stage types.Stage) {
	if cancel, ok := m.inflight[stage]; ok {
		cancel()
		delete(m.inflight, stage)
	}
}

func (m Model) cancelAll() {
	for stage, cancel := range m.inflight {
		cancel()
		delete(m.inflight, stage)
	}
}

func (m Model) triageCmd(t workflow.Ticket, sub types.ScanSubmission) tea.Cmd {
	ctx := m.track(types.StageTriage)
	b := m.backend
	return func() tea.Msg {
		res, err := b.Triage(ctx, sub)
		return triageMsg{ticket: t, outcome: backend.ToOutcome(types.StageTriage, res, err)}
	}
}

func (m Model) deepDiveCmd(t workflow.Ticket) tea.Cmd {
	ctx := m.track(types.StageDeepDive)
	b := m.backend
	return func() tea.Msg {
		res, err := b.DeepDive(ctx, t.ScanID)
		return deepDiveMsg{ticket: t, outcome: backend.ToOutcome(types.StageDeepDive, res, err)}
	}
}

func (m Model) adjudicationCmd(t workflow.Ticket) tea.Cmd {
	ctx := m.track(types.StageAdjudication)
	b := m.backend
	return func() tea.Msg {
		res, err := b.Adjudicate(ctx, t.ScanID)
		return adjudicationMsg{ticket: t, outcome: backend.ToOutcome(types.StageAdjudication, res, err)}
	}
}

func (m Model) reconstructionCmd(t workflow.Ticket) tea.Cmd {
	ctx := m.track(types.StageReconstruction)
	b := m.backend
	return func() tea.Msg {
		res, err := b.Reconstruct(ctx, t.ScanID)
		return reconstructionMsg{ticket: t, outcome: backend.ToOutcome(types.StageReconstruction, res, err)}
	}
}

// loadAttachment reads a picked file, refusing files over the upload limit.
func loadAttachment(path string, limit int64) tea.Cmd {
	return func() tea.Msg {
		info, err := os.Stat(path)
		if err != nil {
			return attachmentMsg{err: err}
		}
		if limit > 0 && info.Size() > limit {
			return attachmentMsg{err: fmt.Errorf("%s is %d bytes, limit is %d", filepath.Base(path), info.Size(), limit)}
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return attachmentMsg{err: err}
		}
		return attachmentMsg{attachment: &types.Attachment{Name: filepath.Base(path), Data: data}}
	}
}

func (m Model) waitForReload() tea.Cmd {
	ch := m.reloads
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		cfg, ok := <-ch
		if !ok {
			return nil
		}
		return configReloadedMsg{cfg: cfg}
	}
}

// applyConfig swaps in a reloaded config. The backend is rebuilt only when the
// backend section changed; in-flight requests keep the client they started with.
func (m Model) applyConfig(cfg *config.Config) (Model, error) {
	if m.newBackend != nil && cfg.Backend != m.cfg.Backend {
		b, err := m.newBackend(cfg)
		if err != nil {
			return m, err
		}
		m.backend = b
		logging.UI("backend switched to %s", cfg.Backend.BaseURL)
	}
	if cfg.UI != m.cfg.UI {
		m.styles = newStyles(cfg)
		m.spinner.Style = m.styles.Spinner
		m.renderer = newRenderer(m.styles, cfg, m.layout)
	}
	m.cfg = cfg
	return m, nil
}
