package console

import (
	"slices"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// keyMap holds the console key bindings.
type keyMap struct {
	Submit      key.Binding
	Focus       key.Binding
	Attach      key.Binding
	Detach      key.Binding
	Escalate    key.Binding
	Reconstruct key.Binding
	DeepDive    key.Binding
	Close       key.Binding
	Help        key.Binding
	Quit        key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Submit: key.NewBinding(
			key.WithKeys("ctrl+s"),
			key.WithHelp("ctrl+s", "submit"),
		),
		Focus: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "input/results"),
		),
		Attach: key.NewBinding(
			key.WithKeys("ctrl+o"),
			key.WithHelp("ctrl+o", "attach file"),
		),
		Detach: key.NewBinding(
			key.WithKeys("ctrl+x"),
			key.WithHelp("ctrl+x", "drop file"),
		),
		Escalate: key.NewBinding(
			key.WithKeys("e"),
			key.WithHelp("e", "escalate"),
		),
		Reconstruct: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "revert to truth"),
		),
		DeepDive: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "deep dive"),
		),
		Close: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "close deep dive"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "more keys"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "quit"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Submit, k.Focus, k.Attach, k.Escalate, k.Reconstruct, k.DeepDive, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Submit, k.Attach, k.Detach},
		{k.Focus, k.Escalate, k.Reconstruct},
		{k.DeepDive, k.Close, k.Help, k.Quit},
	}
}

// pressed matches msg against b's keys even when b is disabled. Disabled
// bindings only drop out of the help line; the machine refuses the action and
// the console explains why.
func pressed(msg tea.KeyMsg, b key.Binding) bool {
	return slices.Contains(b.Keys(), msg.String())
}
