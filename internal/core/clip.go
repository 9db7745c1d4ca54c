package core

import (
	"errors"
	"time"
)

// Clip is a request to play one bounded window of a track. Values are
// immutable: every play action constructs a fresh Clip, and two requests
// for the same journal entry are still distinct requests.
type Clip struct {
	EntryID  string        `json:"entry_id"`
	TrackURI string        `json:"track_uri"`
	Start    time.Duration `json:"start"`
	End      time.Duration `json:"end"`
}

// ErrInvalidClip indicates a clip whose window cannot be played.
var ErrInvalidClip = errors.New("invalid clip window")

// Validate checks that the clip describes a playable window.
func (c Clip) Validate() error {
	if c.EntryID == "" || c.TrackURI == "" {
		return ErrInvalidClip
	}
	if c.Start < 0 || c.End <= c.Start {
		return ErrInvalidClip
	}
	return nil
}

// Window returns the length of the clip.
func (c Clip) Window() time.Duration {
	return c.End - c.Start
}

// PositionAt derives the in-track position for playback that was confirmed
// at started, clamped to [Start, End]. Position is always computed from the
// wall clock, never accumulated.
func (c Clip) PositionAt(started, now time.Time) time.Duration {
	pos := c.Start + now.Sub(started)
	if pos < c.Start {
		return c.Start
	}
	if pos > c.End {
		return c.End
	}
	return pos
}
