package components

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/inkdrift/refrain/internal/tui/styles"
)

// Play outcomes recorded in the session history.
const (
	OutcomeFinished = "finished"
	OutcomePaused   = "paused"
	OutcomeFailed   = "failed"
)

// HistoryEntry records one clip play observed this session.
type HistoryEntry struct {
	EntryID  string
	Title    string
	Artist   string
	PlayedAt time.Time
	Outcome  string
}

// History displays clips played this session.
type History struct{}

// NewHistory creates a new History component.
func NewHistory() *History {
	return &History{}
}

// Render renders the history panel.
func (h *History) Render(entries []HistoryEntry, width, height int, focused bool) string {
	title := styles.PanelTitle("History", focused)

	var content string
	if len(entries) == 0 {
		content = styles.Muted.Render("No clips played yet")
	} else {
		content = h.renderHistory(entries, width-4, height-4)
	}

	panel := styles.Panel(focused).
		Width(width).
		Height(height)

	return panel.Render(lipgloss.JoinVertical(lipgloss.Left,
		title,
		"",
		content,
	))
}

func (h *History) renderHistory(entries []HistoryEntry, width, maxLines int) string {
	lines := make([]string, 0, maxLines)

	// Fixed overhead: icon (2) + " — " (3) + padding before the time (8).
	const overhead = 13

	for i, entry := range entries {
		if i >= maxLines {
			break
		}

		timeAgo := formatTimeAgo(entry.PlayedAt)

		name := entry.Title
		if name == "" {
			name = entry.EntryID
		}

		available := width - overhead - len(timeAgo)
		if available < 12 {
			available = 12
		}

		var title, artist string
		if len(name)+len(entry.Artist) <= available {
			title = name
			artist = entry.Artist
		} else {
			minArtist := available / 3
			if minArtist < 8 {
				minArtist = 8
			}
			if minArtist > available-8 {
				minArtist = available - 8
			}

			artistSpace := minArtist
			if len(entry.Artist) < artistSpace {
				artistSpace = len(entry.Artist)
			}

			title = truncate(name, available-artistSpace)
			artist = truncate(entry.Artist, artistSpace)
		}

		info := title
		infoLen := len(title)
		if artist != "" {
			info += " — " + styles.Muted.Render(artist)
			infoLen += 3 + len(artist)
		}

		padding := width - 2 - infoLen - len(timeAgo)
		if padding < 1 {
			padding = 1
		}

		line := fmt.Sprintf("%s %s%s%s",
			outcomeIcon(entry.Outcome),
			info,
			lipgloss.NewStyle().Width(padding).Render(""),
			styles.Dim.Render(timeAgo))

		lines = append(lines, line)
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func outcomeIcon(outcome string) string {
	switch outcome {
	case OutcomeFinished:
		return styles.Playing.Render("✓")
	case OutcomePaused:
		return styles.Paused.Render("⏸")
	case OutcomeFailed:
		return styles.Alert.Render("✗")
	default:
		return styles.Dim.Render("·")
	}
}

func formatTimeAgo(t time.Time) string {
	d := time.Since(t)

	if d < time.Minute {
		return "now"
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return t.Format("Jan 2")
}
