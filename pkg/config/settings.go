// Package config holds the user settings consumed by a session.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"time"

	"github.com/aretw0/arepl/pkg/domain"
	"github.com/aretw0/arepl/pkg/render"
)

// WhenToExecute selects which edits trigger an evaluation.
type WhenToExecute string

const (
	OnSave       WhenToExecute = "onSave"
	AfterDelay   WhenToExecute = "afterDelay"
	OnKeybinding WhenToExecute = "onKeybinding"
)

// Settings is read once at session start and replaced as a whole on change.
type Settings struct {
	PythonPath           string           `yaml:"pythonPath" json:"pythonPath" mapstructure:"pythonPath"`
	EnvFile              string           `yaml:"envFile" json:"envFile" mapstructure:"envFile"`
	PythonOptions        []string         `yaml:"pythonOptions" json:"pythonOptions" mapstructure:"pythonOptions"`
	WhenToExecute        WhenToExecute    `yaml:"whenToExecute" json:"whenToExecute" mapstructure:"whenToExecute"`
	Delay                time.Duration    `yaml:"delay" json:"delay" mapstructure:"delay"`
	RestartDelay         time.Duration    `yaml:"restartDelay" json:"restartDelay" mapstructure:"restartDelay"`
	ShowGlobalVars       bool             `yaml:"showGlobalVars" json:"showGlobalVars" mapstructure:"showGlobalVars"`
	PrintResultPlacement render.Placement `yaml:"printResultPlacement" json:"printResultPlacement" mapstructure:"printResultPlacement"`
	ShowFooter           bool             `yaml:"showFooter" json:"showFooter" mapstructure:"showFooter"`
	DefaultImports       []string         `yaml:"defaultImports" json:"defaultImports" mapstructure:"defaultImports"`
	SkipLandingPage      bool             `yaml:"skipLandingPage" json:"skipLandingPage" mapstructure:"skipLandingPage"`

	// RenderInterval is the minimum time between two panel refreshes.
	RenderInterval time.Duration `yaml:"renderInterval" json:"renderInterval" mapstructure:"renderInterval"`
	// StopGrace is how long a stopping interpreter gets before it is killed.
	StopGrace   time.Duration `yaml:"stopGrace" json:"stopGrace" mapstructure:"stopGrace"`
	SearchURL   string        `yaml:"searchURL" json:"searchURL" mapstructure:"searchURL"`
	EnvCacheTTL time.Duration `yaml:"envCacheTTL" json:"envCacheTTL" mapstructure:"envCacheTTL"`
}

// Default returns the settings used when nothing is configured.
func Default() Settings {
	return Settings{
		WhenToExecute:        AfterDelay,
		Delay:                300 * time.Millisecond,
		RestartDelay:         300 * time.Millisecond,
		ShowGlobalVars:       true,
		PrintResultPlacement: render.PlacementTop,
		ShowFooter:           true,
		RenderInterval:       50 * time.Millisecond,
		StopGrace:            2 * time.Second,
		SearchURL:            render.DefaultSearchURL,
		EnvCacheTTL:          30 * time.Second,
	}
}

// Validate checks value ranges and enumerations. Whether the interpreter
// exists is only checked at evaluation time (see ResolveInterpreter).
func (s Settings) Validate() error {
	var errs []error
	if !slices.Contains([]WhenToExecute{OnSave, AfterDelay, OnKeybinding}, s.WhenToExecute) {
		errs = append(errs, fmt.Errorf("%w: whenToExecute %q is not one of onSave, afterDelay or onKeybinding", domain.ErrConfiguration, s.WhenToExecute))
	}
	if s.PrintResultPlacement != render.PlacementTop && s.PrintResultPlacement != render.PlacementBottom {
		errs = append(errs, fmt.Errorf("%w: printResultPlacement %q must be top or bottom", domain.ErrConfiguration, s.PrintResultPlacement))
	}
	for name, d := range map[string]time.Duration{
		"delay":          s.Delay,
		"restartDelay":   s.RestartDelay,
		"renderInterval": s.RenderInterval,
		"stopGrace":      s.StopGrace,
		"envCacheTTL":    s.EnvCacheTTL,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%w: %s must not be negative", domain.ErrConfiguration, name))
		}
	}
	if s.SearchURL != "" {
		if u, err := url.Parse(s.SearchURL); err != nil || u.Scheme == "" {
			errs = append(errs, fmt.Errorf("%w: searchURL %q is not an absolute URL", domain.ErrConfiguration, s.SearchURL))
		}
	}
	return errors.Join(errs...)
}

// RequiresRestart reports whether moving from s to next needs a new
// interpreter process.
func (s Settings) RequiresRestart(next Settings) bool {
	return s.PythonPath != next.PythonPath ||
		s.EnvFile != next.EnvFile ||
		!slices.Equal(s.PythonOptions, next.PythonOptions)
}

// RenderOptions maps the presentation settings onto the renderer.
func (s Settings) RenderOptions(format render.Format) render.Options {
	return render.Options{
		Placement:       s.PrintResultPlacement,
		ShowFooter:      s.ShowFooter,
		Format:          format,
		SearchURL:       s.SearchURL,
		SkipLandingPage: s.SkipLandingPage,
	}
}
