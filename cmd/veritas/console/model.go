// Package console is the interactive terminal front end: one screen holding the
// submission input and the four stage panels, driven by a workflow.Machine.
package console

import (
	"context"
	"os"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"veritas/cmd/veritas/ui"
	"veritas/internal/config"
	"veritas/internal/logging"
	"veritas/internal/types"
	"veritas/internal/workflow"
)

// focus selects which area receives plain keys.
type focus int

const (
	focusInput focus = iota
	focusResults
)

// BackendFactory builds a backend for a (re)loaded config.
type BackendFactory func(cfg *config.Config) (workflow.Backend, error)

// Options configures a console Model.
type Options struct {
	Config *config.Config
	// Backend is used as-is when set; otherwise NewBackend builds one.
	Backend    workflow.Backend
	NewBackend BackendFactory
	// Reloads delivers validated configs from a config.Watcher.
	Reloads <-chan *config.Config
	// ScanID opens the deep-dive panel for this scan at startup.
	ScanID string
}

// Model is the bubbletea model of the console.
type Model struct {
	cfg        *config.Config
	backend    workflow.Backend
	newBackend BackendFactory
	reloads    <-chan *config.Config
	initialID  string

	machine *workflow.Machine
	// inflight cancels outstanding stage requests by stage.
	inflight map[types.Stage]context.CancelFunc

	styles   ui.Styles
	renderer *ui.Renderer
	keys     keyMap
	help     help.Model

	textarea   textarea.Model
	filepicker filepicker.Model
	spinner    spinner.Model
	viewport   viewport.Model

	layout     ui.LayoutConfig
	focus      focus
	picking    bool
	attachment *types.Attachment
	notice     string
	err        error
	ready      bool
}

// New creates a console model.
func New(opts Options) (Model, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	b := opts.Backend
	if b == nil {
		if opts.NewBackend == nil {
			return Model{}, errNoBackend
		}
		var err error
		if b, err = opts.NewBackend(cfg); err != nil {
			return Model{}, err
		}
	}

	styles := newStyles(cfg)
	layout := ui.NewLayoutConfig(80, 24)

	ta := textarea.New()
	ta.Placeholder = "Paste a claim, headline, or transcript..."
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.SetHeight(ui.InputHeight - 2)
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Spinner

	fp := filepicker.New()
	fp.CurrentDirectory, _ = os.Getwd()

	vp := viewport.New(80, 20)

	m := Model{
		cfg:        cfg,
		backend:    b,
		newBackend: opts.NewBackend,
		reloads:    opts.Reloads,
		initialID:  opts.ScanID,
		machine:    workflow.NewMachine(),
		inflight:   make(map[types.Stage]context.CancelFunc),
		styles:     styles,
		renderer:   newRenderer(styles, cfg, layout),
		keys:       defaultKeyMap(),
		help:       help.New(),
		textarea:   ta,
		filepicker: fp,
		spinner:    sp,
		viewport:   vp,
		layout:     layout,
	}
	m.machine.OnTransition(func(from, to workflow.State) {
		logging.UIDebug("workflow %s -> %s", from, to)
	})
	return m.syncKeys(), nil
}

func newStyles(cfg *config.Config) ui.Styles {
	return ui.NewStyles(ui.DetectTheme(cfg.UI.Theme))
}

// newRenderer sizes the renderer to the terminal unless ui.word_wrap pins it.
func newRenderer(styles ui.Styles, cfg *config.Config, layout ui.LayoutConfig) *ui.Renderer {
	return ui.NewRenderer(styles, rendererWidth(cfg, layout), cfg.UI.Markdown)
}

func rendererWidth(cfg *config.Config, layout ui.LayoutConfig) int {
	if cfg.UI.WordWrap > 0 {
		return min(cfg.UI.WordWrap, layout.ContentWidth())
	}
	return layout.ContentWidth()
}

// Machine exposes the workflow machine.
func (m Model) Machine() *workflow.Machine {
	return m.machine
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textarea.Blink, m.spinner.Tick, m.waitForReload()}
	if m.initialID != "" {
		cmds = append(cmds, func() tea.Msg { return openDeepDiveMsg{scanID: m.initialID} })
	}
	return tea.Batch(cmds...)
}

// Run starts the console on the terminal and blocks until it exits.
func Run(opts Options) error {
	m, err := New(opts)
	if err != nil {
		return err
	}
	final, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	if fm, ok := final.(Model); ok {
		fm.cancelAll()
	}
	return err
}
