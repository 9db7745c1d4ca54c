package wizard

import (
	"os"

	"golang.org/x/term"

	"github.com/inkdrift/refrain/internal/library"
)

// Interactive provides interactive fallback functionality for commands that
// can prompt instead of failing when an argument is missing.
type Interactive struct {
	enabled    bool
	searchFunc SearchFunc
	entries    []library.Entry
}

// NewInteractive creates a new interactive handler.
func NewInteractive() *Interactive {
	return &Interactive{
		enabled: true,
	}
}

// SetEnabled enables or disables interactive mode.
func (i *Interactive) SetEnabled(enabled bool) {
	i.enabled = enabled
}

// SetSearchFunc sets the search function for the track search wizard.
func (i *Interactive) SetSearchFunc(fn SearchFunc) {
	i.searchFunc = fn
}

// SetEntries sets the stored clips for the clip picker.
func (i *Interactive) SetEntries(entries []library.Entry) {
	i.entries = entries
}

// IsTerminal returns true if stdout is a terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// CanInteract returns true if interactive mode is available.
func (i *Interactive) CanInteract() bool {
	return i.enabled && IsTerminal()
}

// PromptSearch launches the track search wizard if interactive mode is
// available. Returns the selected track, or nil if cancelled or not
// interactive.
func (i *Interactive) PromptSearch() (*SearchResult, error) {
	if !i.CanInteract() || i.searchFunc == nil {
		return nil, nil
	}
	return RunSearch(i.searchFunc)
}

// PromptClip launches the clip picker if interactive mode is available.
// Returns the selected entry, or nil if cancelled or not interactive.
func (i *Interactive) PromptClip() (*library.Entry, error) {
	if !i.CanInteract() || len(i.entries) == 0 {
		return nil, nil
	}
	return RunClipPicker(i.entries)
}

// NeedsTrack returns true if a track argument is required but missing.
func NeedsTrack(args []string) bool {
	return len(args) == 0
}

// NeedsEntry returns true if an entry id argument is required but missing.
func NeedsEntry(args []string) bool {
	return len(args) == 0
}
