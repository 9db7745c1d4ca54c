package wizard

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/inkdrift/refrain/internal/library"
)

// ClipModel is the bubbletea model for the clip picker.
type ClipModel struct {
	entries  []library.Entry
	cursor   int
	selected *library.Entry
	width    int
	height   int
}

// Styles for clip picker
var (
	clipTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	clipItemStyle = lipgloss.NewStyle().
			PaddingLeft(2)

	clipSelectedStyle = lipgloss.NewStyle().
				PaddingLeft(2).
				Background(lipgloss.Color("237"))

	clipMetaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))
)

// NewClipModel creates a new clip picker model.
func NewClipModel(entries []library.Entry) ClipModel {
	return ClipModel{
		entries: entries,
		width:   80,
		height:  20,
	}
}

// Init initializes the model.
func (m ClipModel) Init() tea.Cmd {
	return nil
}

// Update handles messages.
func (m ClipModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc", "q":
			return m, tea.Quit

		case "enter", " ":
			if len(m.entries) > 0 && m.cursor < len(m.entries) {
				m.selected = &m.entries[m.cursor]
				return m, tea.Quit
			}

		case "up", "k", "ctrl+p":
			if m.cursor > 0 {
				m.cursor--
			}

		case "down", "j", "ctrl+n":
			if m.cursor < len(m.entries)-1 {
				m.cursor++
			}

		case "home", "g":
			m.cursor = 0

		case "end", "G":
			m.cursor = len(m.entries) - 1
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	}

	return m, nil
}

// View renders the model.
func (m ClipModel) View() string {
	var b strings.Builder

	b.WriteString(clipTitleStyle.Render("📖 Select Clip"))
	b.WriteString("\n\n")

	if len(m.entries) == 0 {
		b.WriteString(clipMetaStyle.Render("No clips saved"))
		b.WriteString("\n\n")
		b.WriteString(clipMetaStyle.Render("Add one with: refrain clip add"))
	} else {
		for i, entry := range m.entries {
			var line strings.Builder

			line.WriteString(entry.Title)
			if entry.Artist != "" {
				line.WriteString(clipMetaStyle.Render(" - " + entry.Artist))
			}
			line.WriteString(clipMetaStyle.Render(
				" (" + formatDuration(entry.Start) + "-" + formatDuration(entry.End) + ")"))

			if i == m.cursor {
				b.WriteString(clipSelectedStyle.Render("▸ " + line.String()))
			} else {
				b.WriteString(clipItemStyle.Render("  " + line.String()))
			}
			b.WriteString("\n")
		}
	}

	// Help
	b.WriteString("\n")
	b.WriteString(clipMetaStyle.Render("↑/↓ navigate • enter play • esc quit"))

	return b.String()
}

// Selected returns the selected entry, or nil if none.
func (m ClipModel) Selected() *library.Entry {
	return m.selected
}

// RunClipPicker runs the clip picker and returns the selected entry.
func RunClipPicker(entries []library.Entry) (*library.Entry, error) {
	model := NewClipModel(entries)
	p := tea.NewProgram(model, tea.WithAltScreen())
	finalModel, err := p.Run()
	if err != nil {
		return nil, err
	}
	return finalModel.(ClipModel).Selected(), nil
}
