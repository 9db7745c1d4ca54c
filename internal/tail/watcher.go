package tail

import (
	"context"
	"time"

	"github.com/inkdrift/refrain/internal/core"
	"github.com/inkdrift/refrain/internal/spotify/client"
)

// EventType represents the type of playback event.
type EventType int

const (
	EventTrackChange EventType = iota
	EventPause
	EventResume
	EventClipEnter
	EventClipExit
	EventVolumeChange
	EventDeviceChange
)

// Event represents a playback state change.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Previous  *client.PlaybackState
	Current   *client.PlaybackState

	// Clip is set on clip enter/exit events.
	Clip *core.Clip
}

// StateSource is the slice of the Web API the watcher polls.
type StateSource interface {
	GetPlaybackState(ctx context.Context) (*client.PlaybackState, error)
}

// ClipIndex resolves the stored clips for a track. The watcher consults it
// on every poll to detect the playhead crossing a clip window.
type ClipIndex interface {
	ClipsFor(trackURI string) ([]core.Clip, error)
}

// Watcher polls playback state and emits events for changes, including the
// playhead entering or leaving a stored clip window.
type Watcher struct {
	source   StateSource
	clips    ClipIndex
	interval time.Duration
	events   chan Event
	done     chan struct{}

	// inside is the clip window the playhead was in at the last poll.
	inside *core.Clip
}

// NewWatcher creates a new state watcher. clips may be nil, in which case no
// clip window events are emitted.
func NewWatcher(source StateSource, clips ClipIndex, interval time.Duration) *Watcher {
	if interval == 0 {
		interval = time.Second
	}
	return &Watcher{
		source:   source,
		clips:    clips,
		interval: interval,
		events:   make(chan Event, 16),
		done:     make(chan struct{}),
	}
}

// Events returns the channel of playback events.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Start begins polling for state changes. It blocks until ctx is cancelled
// or Stop is called, closing the events channel on the way out.
func (w *Watcher) Start(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	defer close(w.events)

	var prev *client.PlaybackState

	// Seed with the current state so the first tick diffs against reality
	// instead of announcing everything already in progress.
	state, err := w.source.GetPlaybackState(ctx)
	if err == nil {
		prev = state
		w.inside = w.matchClip(state)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.done:
			return nil
		case <-ticker.C:
			curr, err := w.source.GetPlaybackState(ctx)
			if err != nil {
				continue
			}

			events := diffStates(prev, curr)
			events = append(events, w.clipEvents(prev, curr)...)
			for _, e := range events {
				select {
				case w.events <- e:
				default:
					// Drop event if channel is full
				}
			}

			prev = curr
		}
	}
}

// Stop stops the watcher.
func (w *Watcher) Stop() {
	close(w.done)
}

// diffStates compares two states and returns detected events.
func diffStates(prev, curr *client.PlaybackState) []Event {
	if curr == nil {
		return nil
	}

	now := time.Now()
	var events []Event

	// First poll - no previous state
	if prev == nil {
		if curr.Item != nil {
			events = append(events, Event{
				Type:      EventTrackChange,
				Timestamp: now,
				Current:   curr,
			})
		}
		return events
	}

	if trackChanged(prev, curr) {
		events = append(events, Event{
			Type:      EventTrackChange,
			Timestamp: now,
			Previous:  prev,
			Current:   curr,
		})
	}

	if prev.IsPlaying && !curr.IsPlaying {
		events = append(events, Event{
			Type:      EventPause,
			Timestamp: now,
			Previous:  prev,
			Current:   curr,
		})
	} else if !prev.IsPlaying && curr.IsPlaying {
		events = append(events, Event{
			Type:      EventResume,
			Timestamp: now,
			Previous:  prev,
			Current:   curr,
		})
	}

	if volumePercent(prev) != volumePercent(curr) {
		events = append(events, Event{
			Type:      EventVolumeChange,
			Timestamp: now,
			Previous:  prev,
			Current:   curr,
		})
	}

	if prev.Device.ID != curr.Device.ID {
		events = append(events, Event{
			Type:      EventDeviceChange,
			Timestamp: now,
			Previous:  prev,
			Current:   curr,
		})
	}

	return events
}

// clipEvents detects the playhead crossing a stored clip window and updates
// the watcher's inside marker.
func (w *Watcher) clipEvents(prev, curr *client.PlaybackState) []Event {
	if w.clips == nil || curr == nil {
		return nil
	}

	now := time.Now()
	next := w.matchClip(curr)
	was := w.inside
	w.inside = next

	switch {
	case was == nil && next == nil:
		return nil
	case was != nil && next != nil && was.EntryID == next.EntryID:
		return nil
	}

	var events []Event
	if was != nil {
		events = append(events, Event{
			Type:      EventClipExit,
			Timestamp: now,
			Previous:  prev,
			Current:   curr,
			Clip:      was,
		})
	}
	if next != nil {
		events = append(events, Event{
			Type:      EventClipEnter,
			Timestamp: now,
			Previous:  prev,
			Current:   curr,
			Clip:      next,
		})
	}
	return events
}

// matchClip returns the stored clip whose window contains the playhead, or
// nil. When windows overlap the most recently updated clip wins, because
// ClipsFor returns clips in that order.
func (w *Watcher) matchClip(state *client.PlaybackState) *core.Clip {
	if w.clips == nil || state == nil || state.Item == nil {
		return nil
	}
	clips, err := w.clips.ClipsFor(state.Item.URI)
	if err != nil {
		return w.inside
	}
	pos := time.Duration(state.ProgressMS) * time.Millisecond
	for _, c := range clips {
		if pos >= c.Start && pos < c.End {
			clip := c
			return &clip
		}
	}
	return nil
}

// trackChanged returns true if the track changed.
func trackChanged(prev, curr *client.PlaybackState) bool {
	if prev.Item == nil && curr.Item == nil {
		return false
	}
	if prev.Item == nil || curr.Item == nil {
		return true
	}
	return prev.Item.URI != curr.Item.URI
}

// volumePercent returns the device volume, or -1 when the device does not
// report one.
func volumePercent(state *client.PlaybackState) int {
	if state == nil || state.Device.VolumePercent == nil {
		return -1
	}
	return *state.Device.VolumePercent
}
