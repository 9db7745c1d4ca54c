package tail

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/inkdrift/refrain/internal/core"
	"github.com/inkdrift/refrain/internal/spotify/client"
)

type fakeSource struct {
	mu     sync.Mutex
	states []*client.PlaybackState
	idx    int
}

// GetPlaybackState returns the scripted states in order, repeating the last.
func (f *fakeSource) GetPlaybackState(ctx context.Context) (*client.PlaybackState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.states[f.idx]
	if f.idx < len(f.states)-1 {
		f.idx++
	}
	return st, nil
}

type fakeIndex struct {
	clips map[string][]core.Clip
}

func (f *fakeIndex) ClipsFor(uri string) ([]core.Clip, error) {
	return f.clips[uri], nil
}

func playbackState(uri string, playing bool, progressMS int) *client.PlaybackState {
	st := &client.PlaybackState{
		IsPlaying:  playing,
		ProgressMS: progressMS,
		Device:     client.Device{ID: "dev_1", Name: "Desk"},
	}
	if uri != "" {
		st.Item = &client.Track{
			URI:     uri,
			Name:    "Track",
			Artists: []client.Artist{{Name: "Artist"}},
		}
	}
	return st
}

func eventTypes(events []Event) []EventType {
	types := make([]EventType, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	return types
}

func TestDiffStates(t *testing.T) {
	playing := playbackState("spotify:track:a", true, 1000)
	paused := playbackState("spotify:track:a", false, 1000)
	other := playbackState("spotify:track:b", true, 0)

	otherDevice := playbackState("spotify:track:a", true, 1000)
	otherDevice.Device = client.Device{ID: "dev_2", Name: "Kitchen"}

	loud := playbackState("spotify:track:a", true, 1000)
	vol := 80
	loud.Device.VolumePercent = &vol

	tests := []struct {
		name string
		prev *client.PlaybackState
		curr *client.PlaybackState
		want []EventType
	}{
		{name: "no change", prev: playing, curr: playing, want: nil},
		{name: "nil current", prev: playing, curr: nil, want: nil},
		{name: "first poll with track", prev: nil, curr: playing, want: []EventType{EventTrackChange}},
		{name: "first poll without track", prev: nil, curr: playbackState("", false, 0), want: nil},
		{name: "pause", prev: playing, curr: paused, want: []EventType{EventPause}},
		{name: "resume", prev: paused, curr: playing, want: []EventType{EventResume}},
		{name: "track change", prev: playing, curr: other, want: []EventType{EventTrackChange}},
		{name: "device change", prev: playing, curr: otherDevice, want: []EventType{EventDeviceChange}},
		{name: "volume change", prev: playing, curr: loud, want: []EventType{EventVolumeChange}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := eventTypes(diffStates(tt.prev, tt.curr))
			if len(got) != len(tt.want) {
				t.Fatalf("diffStates() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("event[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestClipEvents(t *testing.T) {
	clip := core.Clip{
		EntryID:  "entry_1",
		TrackURI: "spotify:track:a",
		Start:    10 * time.Second,
		End:      40 * time.Second,
	}
	index := &fakeIndex{clips: map[string][]core.Clip{
		clip.TrackURI: {clip},
	}}
	w := NewWatcher(nil, index, time.Hour)

	steps := []struct {
		name       string
		progressMS int
		want       []EventType
		wantEntry  string
	}{
		{name: "before window", progressMS: 5_000, want: nil},
		{name: "enters window", progressMS: 15_000, want: []EventType{EventClipEnter}, wantEntry: "entry_1"},
		{name: "still inside", progressMS: 20_000, want: nil},
		{name: "past window", progressMS: 45_000, want: []EventType{EventClipExit}, wantEntry: "entry_1"},
	}

	var prev *client.PlaybackState
	for _, step := range steps {
		curr := playbackState(clip.TrackURI, true, step.progressMS)
		events := w.clipEvents(prev, curr)
		prev = curr

		got := eventTypes(events)
		if len(got) != len(step.want) {
			t.Fatalf("%s: clipEvents() = %v, want %v", step.name, got, step.want)
		}
		for i := range got {
			if got[i] != step.want[i] {
				t.Errorf("%s: event[%d] = %v, want %v", step.name, i, got[i], step.want[i])
			}
			if events[i].Clip == nil || events[i].Clip.EntryID != step.wantEntry {
				t.Errorf("%s: event clip = %+v, want entry %q", step.name, events[i].Clip, step.wantEntry)
			}
		}
	}
}

func TestClipEventsAcrossTrackChange(t *testing.T) {
	clip := core.Clip{
		EntryID:  "entry_1",
		TrackURI: "spotify:track:a",
		Start:    0,
		End:      30 * time.Second,
	}
	index := &fakeIndex{clips: map[string][]core.Clip{
		clip.TrackURI: {clip},
	}}
	w := NewWatcher(nil, index, time.Hour)

	inside := playbackState(clip.TrackURI, true, 5_000)
	if got := eventTypes(w.clipEvents(nil, inside)); len(got) != 1 || got[0] != EventClipEnter {
		t.Fatalf("clipEvents(inside) = %v, want [EventClipEnter]", got)
	}

	elsewhere := playbackState("spotify:track:b", true, 5_000)
	got := eventTypes(w.clipEvents(inside, elsewhere))
	if len(got) != 1 || got[0] != EventClipExit {
		t.Fatalf("clipEvents(other track) = %v, want [EventClipExit]", got)
	}
}

func TestWatcherPollsAndStops(t *testing.T) {
	source := &fakeSource{states: []*client.PlaybackState{
		playbackState("spotify:track:a", false, 0),
		playbackState("spotify:track:a", true, 1000),
	}}
	w := NewWatcher(source, nil, 5*time.Millisecond)

	errCh := make(chan error, 1)
	go func() { errCh <- w.Start(context.Background()) }()

	select {
	case e := <-w.Events():
		if e.Type != EventResume {
			t.Errorf("first event = %v, want EventResume", e.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}

	w.Stop()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Start() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}

	// The events channel closes once the watcher exits.
	for {
		select {
		case _, ok := <-w.Events():
			if !ok {
				return
			}
		case <-time.After(2 * time.Second):
			t.Fatal("events channel never closed")
		}
	}
}

func TestFormatterLines(t *testing.T) {
	clip := core.Clip{
		EntryID:  "entry_1",
		TrackURI: "spotify:track:a",
		Start:    10 * time.Second,
		End:      40 * time.Second,
	}
	playing := playbackState("spotify:track:a", true, 15_000)

	f := NewFormatter(WithEmoji(false))

	tests := []struct {
		name  string
		event Event
		want  string
	}{
		{
			name:  "track change",
			event: Event{Type: EventTrackChange, Current: playing},
			want:  "Now playing: Artist - Track",
		},
		{
			name:  "pause",
			event: Event{Type: EventPause, Current: playing},
			want:  "Paused",
		},
		{
			name:  "clip enter",
			event: Event{Type: EventClipEnter, Current: playing, Clip: &clip},
			want:  "Entered clip entry_1 (0:10-0:40)",
		},
		{
			name:  "clip exit",
			event: Event{Type: EventClipExit, Current: playing, Clip: &clip},
			want:  "Left clip entry_1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.Format(tt.event); got != tt.want {
				t.Errorf("Format() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatterTemplate(t *testing.T) {
	clip := core.Clip{EntryID: "entry_1", TrackURI: "spotify:track:a", Start: 10 * time.Second, End: 40 * time.Second}
	f := NewFormatter(WithTemplate("{{.Type}} {{.Entry}} {{.Window}}"))

	got := f.Format(Event{Type: EventClipEnter, Clip: &clip})
	want := "clip_enter entry_1 0:10-0:40"
	if got != want {
		t.Errorf("Format() = %q, want %q", got, want)
	}
}
