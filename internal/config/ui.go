package config

import "fmt"

// UIConfig holds user interface configuration.
type UIConfig struct {
	// Theme is "light", "dark", or "auto" (detect from the terminal).
	Theme string `yaml:"theme"`

	// Markdown renders narrative fields (reasoning log, audit trail) with glamour.
	Markdown bool `yaml:"markdown"`

	// WordWrap is the narrative wrap width; 0 follows the terminal width.
	WordWrap int `yaml:"word_wrap"`
}

// DefaultUIConfig returns sensible UI defaults.
func DefaultUIConfig() UIConfig {
	return UIConfig{
		Theme:    "auto",
		Markdown: true,
		WordWrap: 0,
	}
}

// Validate checks the UI section.
func (u UIConfig) Validate() error {
	switch u.Theme {
	case "", "auto", "light", "dark":
	default:
		return fmt.Errorf("invalid ui.theme %q (valid: auto, light, dark)", u.Theme)
	}
	if u.WordWrap < 0 {
		return fmt.Errorf("ui.word_wrap must not be negative")
	}
	return nil
}
