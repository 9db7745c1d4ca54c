package styles

import (
	"strings"

	catppuccin "github.com/catppuccin/go"
	"github.com/charmbracelet/lipgloss"
)

// flavor is the slice of a catppuccin flavor the palette draws from.
type flavor interface {
	Mauve() catppuccin.Color
	Green() catppuccin.Color
	Peach() catppuccin.Color
	Red() catppuccin.Color
	Text() catppuccin.Color
	Subtext0() catppuccin.Color
	Overlay0() catppuccin.Color
	Surface2() catppuccin.Color
}

// Palette colors, rebuilt by UseTheme.
var (
	Primary   lipgloss.TerminalColor
	Success   lipgloss.TerminalColor
	Warning   lipgloss.TerminalColor
	Error     lipgloss.TerminalColor
	Border    lipgloss.TerminalColor
	Text      lipgloss.TerminalColor
	TextMuted lipgloss.TerminalColor
	TextDim   lipgloss.TerminalColor

	// Spotify green
	SpotifyGreen = lipgloss.Color("#1DB954")
)

// Text styles
var (
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Label     lipgloss.Style
	Highlight lipgloss.Style
	Muted     lipgloss.Style
	Dim       lipgloss.Style
	Playing   lipgloss.Style
	Paused    lipgloss.Style
	Alert     lipgloss.Style
)

// Border styles
var (
	BorderStyle   lipgloss.Style
	FocusedBorder lipgloss.Style
)

type palette struct {
	primary lipgloss.TerminalColor
	success lipgloss.TerminalColor
	warning lipgloss.TerminalColor
	alert   lipgloss.TerminalColor
	border  lipgloss.TerminalColor
	text    lipgloss.TerminalColor
	muted   lipgloss.TerminalColor
	dim     lipgloss.TerminalColor
}

func init() {
	UseTheme("auto")
}

// UseTheme selects the color palette by flavor name. Known names are
// latte, frappe, macchiato and mocha; anything else (including "auto")
// adapts latte/mocha to the terminal background.
func UseTheme(name string) {
	switch strings.ToLower(name) {
	case "latte":
		apply(fixed(catppuccin.Latte))
	case "frappe":
		apply(fixed(catppuccin.Frappe))
	case "macchiato":
		apply(fixed(catppuccin.Macchiato))
	case "mocha":
		apply(fixed(catppuccin.Mocha))
	default:
		apply(adaptive(catppuccin.Latte, catppuccin.Mocha))
	}
}

func fixed(f flavor) palette {
	return palette{
		primary: lipgloss.Color(f.Mauve().Hex),
		success: lipgloss.Color(f.Green().Hex),
		warning: lipgloss.Color(f.Peach().Hex),
		alert:   lipgloss.Color(f.Red().Hex),
		border:  lipgloss.Color(f.Surface2().Hex),
		text:    lipgloss.Color(f.Text().Hex),
		muted:   lipgloss.Color(f.Subtext0().Hex),
		dim:     lipgloss.Color(f.Overlay0().Hex),
	}
}

func adaptive(light, dark flavor) palette {
	return palette{
		primary: lipgloss.AdaptiveColor{Light: light.Mauve().Hex, Dark: dark.Mauve().Hex},
		success: lipgloss.AdaptiveColor{Light: light.Green().Hex, Dark: dark.Green().Hex},
		warning: lipgloss.AdaptiveColor{Light: light.Peach().Hex, Dark: dark.Peach().Hex},
		alert:   lipgloss.AdaptiveColor{Light: light.Red().Hex, Dark: dark.Red().Hex},
		border:  lipgloss.AdaptiveColor{Light: light.Surface2().Hex, Dark: dark.Surface2().Hex},
		text:    lipgloss.AdaptiveColor{Light: light.Text().Hex, Dark: dark.Text().Hex},
		muted:   lipgloss.AdaptiveColor{Light: light.Subtext0().Hex, Dark: dark.Subtext0().Hex},
		dim:     lipgloss.AdaptiveColor{Light: light.Overlay0().Hex, Dark: dark.Overlay0().Hex},
	}
}

func apply(p palette) {
	Primary = p.primary
	Success = p.success
	Warning = p.warning
	Error = p.alert
	Border = p.border
	Text = p.text
	TextMuted = p.muted
	TextDim = p.dim

	Title = lipgloss.NewStyle().Bold(true).Foreground(Text)
	Subtitle = lipgloss.NewStyle().Foreground(TextMuted)
	Label = lipgloss.NewStyle().Foreground(TextDim)
	Highlight = lipgloss.NewStyle().Bold(true).Foreground(Primary)
	Muted = lipgloss.NewStyle().Foreground(TextMuted)
	Dim = lipgloss.NewStyle().Foreground(TextDim)
	Playing = lipgloss.NewStyle().Foreground(SpotifyGreen)
	Paused = lipgloss.NewStyle().Foreground(Warning)
	Alert = lipgloss.NewStyle().Foreground(Error)

	BorderStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Border)
	FocusedBorder = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Primary)
}

// Panel returns the bordered panel style, highlighted when focused.
func Panel(focused bool) lipgloss.Style {
	if focused {
		return FocusedBorder.Padding(0, 1)
	}
	return BorderStyle.Padding(0, 1)
}

// PanelTitle returns a styled panel title.
func PanelTitle(title string, focused bool) string {
	style := Label
	if focused {
		style = Highlight
	}
	return style.Render(" " + title + " ")
}

// ProgressBar renders a bar filled to percent (0-100).
func ProgressBar(percent float64, width int) string {
	filled := int(percent / 100 * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}

	filledStyle := lipgloss.NewStyle().Foreground(Primary)
	emptyStyle := lipgloss.NewStyle().Foreground(Border)

	return filledStyle.Render(strings.Repeat("━", filled)) +
		emptyStyle.Render(strings.Repeat("─", width-filled))
}

// DeviceIcon returns an icon for a Connect device type.
func DeviceIcon(deviceType string) string {
	switch deviceType {
	case "computer", "Computer":
		return "💻"
	case "smartphone", "Smartphone":
		return "📱"
	case "speaker", "Speaker":
		return "🔊"
	case "tv", "TV":
		return "📺"
	default:
		return "🎧"
	}
}
