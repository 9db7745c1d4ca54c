package components

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/inkdrift/refrain/internal/library"
	"github.com/inkdrift/refrain/internal/tui/styles"
)

// Clips displays the saved clip library.
type Clips struct {
	selected int
	offset   int
}

// NewClips creates a new Clips component.
func NewClips() *Clips {
	return &Clips{}
}

// SelectNext moves the selection down.
func (c *Clips) SelectNext() {
	c.selected++
}

// SelectPrev moves the selection up.
func (c *Clips) SelectPrev() {
	if c.selected > 0 {
		c.selected--
	}
}

// Selected returns the selected index.
func (c *Clips) Selected() int {
	return c.selected
}

// Render renders the clips panel. playingID marks the entry whose clip is
// currently owned by the session.
func (c *Clips) Render(entries []library.Entry, width, height int, focused bool, playingID string) string {
	title := styles.PanelTitle("Clips", focused)

	var content string
	if len(entries) == 0 {
		content = styles.Muted.Render("No clips saved. Add one with 'refrain clip add'.")
	} else {
		content = c.renderEntries(entries, width-4, height-4, focused, playingID)
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

func (c *Clips) renderEntries(entries []library.Entry, width, maxLines int, focused bool, playingID string) string {
	if c.selected >= len(entries) {
		c.selected = len(entries) - 1
	}
	if c.selected < 0 {
		c.selected = 0
	}

	// Keep room for the "more" indicator.
	visible := maxLines - 1
	if visible < 1 {
		visible = 1
	}

	// Scroll so the selection stays on screen.
	if c.selected < c.offset {
		c.offset = c.selected
	}
	if c.selected >= c.offset+visible {
		c.offset = c.selected - visible + 1
	}

	start := c.offset
	end := start + visible
	if end > len(entries) {
		end = len(entries)
	}

	lines := make([]string, 0, end-start+1)

	// Fixed overhead: "▸ " (2) + " — " (3) + " " + window "m:ss-m:ss" (10).
	const overhead = 16

	for i := start; i < end; i++ {
		entry := entries[i]

		selector := "  "
		if focused && i == c.selected {
			selector = "▸ "
		}

		name := entry.Title
		if name == "" {
			name = entry.EntryID
		}

		available := width - overhead
		if available < 12 {
			available = 12
		}

		var title, artist string
		if len(name)+len(entry.Artist) <= available {
			title = name
			artist = entry.Artist
		} else {
			// Give the artist at least a third of the space.
			minArtist := available / 3
			if minArtist < 10 {
				minArtist = 10
			}
			if minArtist > available-10 {
				minArtist = available - 10
			}

			artistSpace := minArtist
			if len(entry.Artist) < artistSpace {
				artistSpace = len(entry.Artist)
			}

			title = truncate(name, available-artistSpace)
			artist = truncate(entry.Artist, artistSpace)
		}

		window := formatWindow(entry.Start, entry.End)

		var line string
		switch {
		case entry.EntryID == playingID:
			line = selector + styles.Playing.Render(fmt.Sprintf("▶ %s — %s %s", title, artist, window))
		case focused && i == c.selected:
			line = selector + styles.Highlight.Render(title) + " — " +
				styles.Muted.Render(artist) + " " + styles.Dim.Render(window)
		default:
			line = selector + title + " — " +
				styles.Muted.Render(artist) + " " + styles.Dim.Render(window)
		}

		lines = append(lines, line)
	}

	if end < len(entries) {
		lines = append(lines, styles.Dim.Render(fmt.Sprintf("  ... and %d more", len(entries)-end)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func formatWindow(start, end time.Duration) string {
	return formatDuration(start) + "-" + formatDuration(end)
}

func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
