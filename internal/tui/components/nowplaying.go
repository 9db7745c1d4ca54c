package components

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/inkdrift/refrain/internal/core"
	"github.com/inkdrift/refrain/internal/library"
	"github.com/inkdrift/refrain/internal/tui/styles"
)

// NowPlaying displays the state of the owned clip.
type NowPlaying struct{}

// NewNowPlaying creates a new NowPlaying component.
func NewNowPlaying() *NowPlaying {
	return &NowPlaying{}
}

// Render renders the now playing panel. entry carries display metadata for
// the owned clip and may be nil when the clip was saved outside the library.
func (n *NowPlaying) Render(st core.Status, entry *library.Entry, width, height int, focused bool) string {
	title := styles.PanelTitle("Now Playing", focused)

	var content string
	if !st.HasClip() {
		content = n.renderIdle(st)
	} else {
		content = n.renderClip(st, entry, width-4)
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

func (n *NowPlaying) renderIdle(st core.Status) string {
	lines := []string{styles.Muted.Render("No clip playing")}

	if st.Initializing {
		lines = append(lines, "", styles.Subtitle.Render("Connecting to Spotify..."))
	} else if st.Ready {
		lines = append(lines, "", styles.Dim.Render("Session ready. Press enter on a clip to play it."))
	} else {
		lines = append(lines, "", styles.Dim.Render("Press enter on a clip to play it."))
	}

	if warn := accountWarning(st); warn != "" {
		lines = append(lines, "", styles.Alert.Render(warn))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (n *NowPlaying) renderClip(st core.Status, entry *library.Entry, width int) string {
	clip := st.Clip

	title := clip.EntryID
	artist := ""
	if entry != nil {
		if entry.Title != "" {
			title = entry.Title
		}
		artist = entry.Artist
	}

	titleStyle := styles.Title.Width(width - 4)
	head := phaseIcon(st.Phase) + " " + titleStyle.Render(title)

	lines := []string{head}
	if artist != "" {
		lines = append(lines, "  "+styles.Subtitle.Render(artist))
	}
	lines = append(lines, "  "+styles.Dim.Render(
		fmt.Sprintf("Clip %s-%s (%s)", formatDuration(clip.Start), formatDuration(clip.End), formatDuration(clip.Window()))))

	lines = append(lines, "", n.renderProgress(st, width))

	if state := phaseLine(st); state != "" {
		lines = append(lines, "", state)
	}

	if st.DeviceID != "" {
		lines = append(lines, "", styles.Muted.Render("📱 "+st.DeviceID))
	}

	if warn := accountWarning(st); warn != "" {
		lines = append(lines, "", styles.Alert.Render(warn))
	}
	if st.LastFailure != nil {
		lines = append(lines, "", styles.Alert.Render(failureLine(st.LastFailure)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (n *NowPlaying) renderProgress(st core.Status, width int) string {
	// Account for the times on either side.
	barWidth := width - 14
	if barWidth < 10 {
		barWidth = 10
	}

	bar := styles.ProgressBar(st.ClipPercent(), barWidth)
	return fmt.Sprintf("%s %s %s",
		formatDuration(st.Position), bar, formatDuration(st.Clip.End))
}

func phaseIcon(p core.Phase) string {
	switch p {
	case core.PhasePlaying:
		return styles.Playing.Render("▶")
	case core.PhasePaused:
		return styles.Paused.Render("⏸")
	case core.PhasePriming, core.PhaseActivating:
		return styles.Dim.Render("◌")
	default:
		return styles.Dim.Render("·")
	}
}

func phaseLine(st core.Status) string {
	switch {
	case st.Initializing:
		return styles.Subtitle.Render("Connecting to Spotify...")
	case st.Loading:
		return styles.Subtitle.Render("Starting playback...")
	case st.Phase == core.PhaseIdle && st.HasClip():
		return styles.Subtitle.Render("Session primed. Press enter to start the clip.")
	case st.Phase == core.PhasePaused:
		if st.Clip != nil && st.Position >= st.Clip.End {
			return styles.Playing.Render("Clip finished")
		}
		return styles.Paused.Render("Paused")
	default:
		return ""
	}
}

func accountWarning(st core.Status) string {
	if st.NeedsReauth {
		return "Reauthentication required. Run 'refrain auth login'"
	}
	if !st.Premium {
		return "Clip playback requires Spotify Premium"
	}
	return ""
}

func failureLine(f *core.Failure) string {
	switch f.Reason {
	case core.ReasonPrimeFailed:
		return "Session setup failed"
	case core.ReasonTransferFailed:
		return fmt.Sprintf("Transfer to device failed (status %d)", f.Status)
	case core.ReasonConfirmTimeout:
		return "Device did not become active in time"
	case core.ReasonPlayRejected:
		return fmt.Sprintf("Play rejected by Spotify (status %d)", f.Status)
	default:
		return "Clip playback failed"
	}
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	m := d / time.Minute
	s := (d % time.Minute) / time.Second
	return fmt.Sprintf("%d:%02d", m, s)
}
