package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/inkdrift/refrain/internal/spotify/client"
	"github.com/inkdrift/refrain/internal/tui/styles"
)

// Devices displays available Connect devices.
type Devices struct {
	selected int
}

// NewDevices creates a new Devices component.
func NewDevices() *Devices {
	return &Devices{}
}

// SelectNext selects the next device.
func (d *Devices) SelectNext() {
	d.selected++
}

// SelectPrev selects the previous device.
func (d *Devices) SelectPrev() {
	if d.selected > 0 {
		d.selected--
	}
}

// Selected returns the selected device index.
func (d *Devices) Selected() int {
	return d.selected
}

// Render renders the devices panel. configured is the device clips play on,
// by name or id, and gets a star.
func (d *Devices) Render(devices []client.Device, width, height int, focused bool, configured string) string {
	title := styles.PanelTitle("Devices", focused)

	var content string
	if len(devices) == 0 {
		content = styles.Muted.Render("No devices found")
	} else {
		content = d.renderDevices(devices, height-4, focused, configured)
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

func (d *Devices) renderDevices(devices []client.Device, maxLines int, focused bool, configured string) string {
	if d.selected >= len(devices) {
		d.selected = len(devices) - 1
	}
	if d.selected < 0 {
		d.selected = 0
	}

	lines := make([]string, 0, len(devices))

	for i, device := range devices {
		icon := styles.DeviceIcon(device.Type)

		selector := "  "
		if focused && i == d.selected {
			selector = "▸ "
		}

		name := device.Name
		if i == d.selected && focused {
			name = styles.Highlight.Render(name)
		}

		marks := ""
		if isConfigured(device, configured) {
			marks += styles.Paused.Render(" ★")
		}
		if device.IsActive {
			marks += styles.Playing.Render(" ●")
		}

		lines = append(lines, fmt.Sprintf("%s%s %s%s", selector, icon, name, marks))

		if len(lines) >= maxLines {
			break
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func isConfigured(device client.Device, configured string) bool {
	if configured == "" {
		return false
	}
	return device.ID == configured || strings.EqualFold(device.Name, configured)
}
