package tail

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"
)

// Formatter formats events for output.
type Formatter struct {
	showEmoji     bool
	showTimestamp bool
	template      *template.Template
}

// FormatterOption configures a Formatter.
type FormatterOption func(*Formatter)

// WithEmoji enables emoji output.
func WithEmoji(enabled bool) FormatterOption {
	return func(f *Formatter) {
		f.showEmoji = enabled
	}
}

// WithTimestamp enables timestamp output.
func WithTimestamp(enabled bool) FormatterOption {
	return func(f *Formatter) {
		f.showTimestamp = enabled
	}
}

// WithTemplate sets a custom format template.
func WithTemplate(tmpl string) FormatterOption {
	return func(f *Formatter) {
		if tmpl != "" {
			t, err := template.New("format").Parse(tmpl)
			if err == nil {
				f.template = t
			}
		}
	}
}

// NewFormatter creates a new formatter with the given options.
func NewFormatter(opts ...FormatterOption) *Formatter {
	f := &Formatter{
		showEmoji:     true,
		showTimestamp: false,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Format formats an event as a string.
func (f *Formatter) Format(e Event) string {
	if f.template != nil {
		return f.formatTemplate(e)
	}
	return f.formatLine(e)
}

// formatLine formats an event as a simple line.
func (f *Formatter) formatLine(e Event) string {
	var parts []string

	if f.showTimestamp {
		parts = append(parts, e.Timestamp.Format("15:04:05"))
	}

	if f.showEmoji {
		parts = append(parts, eventEmoji(e.Type))
	}

	parts = append(parts, f.eventDescription(e))

	return strings.Join(parts, " ")
}

// formatTemplate formats an event using a custom template.
func (f *Formatter) formatTemplate(e Event) string {
	data := templateData{
		Type:      eventTypeName(e.Type),
		Emoji:     eventEmoji(e.Type),
		Timestamp: e.Timestamp,
		Time:      e.Timestamp.Format("15:04:05"),
	}

	if e.Current != nil && e.Current.Item != nil {
		data.Title = e.Current.Item.Name
		data.Artist = e.Current.Item.ArtistNames()
		data.Album = e.Current.Item.Album.Name
	}

	if e.Current != nil {
		data.Device = e.Current.Device.Name
		data.Volume = volumePercent(e.Current)
	}

	if e.Clip != nil {
		data.Entry = e.Clip.EntryID
		data.Window = formatWindow(e.Clip.Start, e.Clip.End)
	}

	var buf bytes.Buffer
	if err := f.template.Execute(&buf, data); err != nil {
		return f.formatLine(e)
	}
	return buf.String()
}

type templateData struct {
	Type      string
	Emoji     string
	Timestamp time.Time
	Time      string
	Title     string
	Artist    string
	Album     string
	Device    string
	Volume    int
	Entry     string
	Window    string
}

// eventDescription returns a human-readable description of the event.
func (f *Formatter) eventDescription(e Event) string {
	switch e.Type {
	case EventTrackChange:
		if e.Current != nil && e.Current.Item != nil {
			return fmt.Sprintf("Now playing: %s - %s",
				e.Current.Item.ArtistNames(),
				e.Current.Item.Name)
		}
		return "Track changed"

	case EventPause:
		return "Paused"

	case EventResume:
		return "Resumed"

	case EventClipEnter:
		if e.Clip != nil {
			return fmt.Sprintf("Entered clip %s (%s)",
				e.Clip.EntryID,
				formatWindow(e.Clip.Start, e.Clip.End))
		}
		return "Entered clip window"

	case EventClipExit:
		if e.Clip != nil {
			return fmt.Sprintf("Left clip %s", e.Clip.EntryID)
		}
		return "Left clip window"

	case EventVolumeChange:
		if e.Current != nil {
			return fmt.Sprintf("Volume: %d%%", volumePercent(e.Current))
		}
		return "Volume changed"

	case EventDeviceChange:
		if e.Current != nil && e.Current.Device.Name != "" {
			return fmt.Sprintf("Device: %s", e.Current.Device.Name)
		}
		return "Device changed"

	default:
		return "Unknown event"
	}
}

// eventEmoji returns an emoji for the event type.
func eventEmoji(t EventType) string {
	switch t {
	case EventTrackChange:
		return "🎵"
	case EventPause:
		return "⏸️"
	case EventResume:
		return "▶️"
	case EventClipEnter:
		return "📖"
	case EventClipExit:
		return "📕"
	case EventVolumeChange:
		return "🔊"
	case EventDeviceChange:
		return "📱"
	default:
		return "❓"
	}
}

// eventTypeName returns the name of the event type.
func eventTypeName(t EventType) string {
	switch t {
	case EventTrackChange:
		return "track_change"
	case EventPause:
		return "pause"
	case EventResume:
		return "resume"
	case EventClipEnter:
		return "clip_enter"
	case EventClipExit:
		return "clip_exit"
	case EventVolumeChange:
		return "volume_change"
	case EventDeviceChange:
		return "device_change"
	default:
		return "unknown"
	}
}

// formatWindow renders a clip window as m:ss-m:ss.
func formatWindow(start, end time.Duration) string {
	return formatDuration(start) + "-" + formatDuration(end)
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	m := d / time.Minute
	s := (d % time.Minute) / time.Second
	return fmt.Sprintf("%d:%02d", m, s)
}
