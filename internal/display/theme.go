// Package display renders pipeline and scheduler progress in the
// terminal. Non-interactive contexts (pipes, CI, NDJSON mode) never
// touch this package — it is wired in only when the CLI detects a TTY.
package display

import (
	"os"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// palette is the set of colors a Theme draws from. defaultPalette matches
// the module's cyan accent; asciiPalette degrades to whatever the
// terminal's own default foreground is, for profiles that can't render
// ANSI color codes at all (redirected output piped through `less -R`
// without color support, some CI log viewers).
type palette struct {
	accent lipgloss.Color
	text   lipgloss.Color
	muted  lipgloss.Color
	danger lipgloss.Color
}

var (
	defaultPalette = palette{
		accent: lipgloss.Color("6"),
		text:   lipgloss.Color("7"),
		muted:  lipgloss.Color("244"),
		danger: lipgloss.Color("1"),
	}
	asciiPalette = palette{
		accent: lipgloss.Color(""),
		text:   lipgloss.Color(""),
		muted:  lipgloss.Color(""),
		danger: lipgloss.Color(""),
	}
)

// activePalette picks defaultPalette unless the output renderer reports a
// color profile too limited to show it (SPEC_FULL §4.15 — the same
// non-interactive/NDJSON fallback path that ProgressDisplay uses, applied
// to the huh forms instead of the progress bar).
func activePalette() palette {
	if lipgloss.NewRenderer(os.Stdout).ColorProfile() == termenv.Ascii {
		return asciiPalette
	}
	return defaultPalette
}

// Theme returns the huh form theme used by this module's interactive
// prompt, the generate-approval selector.
func Theme() *huh.Theme {
	t := huh.ThemeBase()

	p := activePalette()
	cyan, white, muted, red := p.accent, p.text, p.muted, p.danger

	t.Focused.Base = t.Focused.Base.BorderForeground(cyan)
	t.Focused.Card = t.Focused.Base
	t.Focused.Title = t.Focused.Title.Foreground(cyan).Bold(true)
	t.Focused.Description = t.Focused.Description.Foreground(muted)
	t.Focused.ErrorIndicator = t.Focused.ErrorIndicator.Foreground(red)
	t.Focused.ErrorMessage = t.Focused.ErrorMessage.Foreground(red)

	t.Focused.MultiSelectSelector = t.Focused.MultiSelectSelector.Foreground(cyan)
	t.Focused.SelectedOption = t.Focused.SelectedOption.Foreground(cyan)
	t.Focused.SelectedPrefix = lipgloss.NewStyle().Foreground(cyan).SetString("[x] ")
	t.Focused.UnselectedPrefix = lipgloss.NewStyle().Foreground(muted).SetString("[ ] ")
	t.Focused.UnselectedOption = t.Focused.UnselectedOption.Foreground(white)

	t.Focused.FocusedButton = t.Focused.FocusedButton.Foreground(lipgloss.Color("0")).Background(cyan)
	t.Focused.Next = t.Focused.FocusedButton
	t.Focused.BlurredButton = t.Focused.BlurredButton.Foreground(white).Background(lipgloss.Color("237"))

	t.Blurred = t.Focused
	t.Blurred.Base = t.Focused.Base.BorderStyle(lipgloss.HiddenBorder())
	t.Blurred.Card = t.Blurred.Base

	t.Group.Title = t.Focused.Title
	t.Group.Description = t.Focused.Description

	return t
}

func renderBar(width int, percentage float64) string {
	if width <= 0 {
		width = 30
	}
	filled := int(percentage / 100.0 * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	p := activePalette()
	barFilled := lipgloss.NewStyle().Foreground(p.accent)
	barEmpty := lipgloss.NewStyle().Foreground(lipgloss.Color("237"))
	return barFilled.Render(repeat("█", filled)) + barEmpty.Render(repeat("░", width-filled))
}

func repeat(s string, n int) string {
	out := make([]byte, 0, len(s)*n)
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return string(out)
}
