package coordinator

import (
	"context"
	"time"

	"github.com/inkdrift/refrain/internal/core"
)

// handleState applies one observed playback state to the owned clip.
// Events for other tracks are ignored so stale reports from a superseded
// clip can never touch the current timers. The first "not paused" report
// for the owned track anchors the wall clock and starts the clip window;
// a "paused" report while playing reflects an external pause and stops the
// timers without issuing any command.
func (c *Coordinator) handleState(ev core.EndpointEvent) {
	if ev.State == nil {
		return
	}

	c.mu.Lock()
	clip := c.clip
	if clip == nil || ev.State.TrackURI != clip.TrackURI {
		c.mu.Unlock()
		return
	}

	switch {
	case !ev.State.Paused && c.startedAt.IsZero():
		c.startedAt = c.now()
		c.phase = core.PhasePlaying
		c.loading = false
		c.position = clip.Start
		c.startTimersLocked()
		c.log.Debug().
			Str("entry", clip.EntryID).
			Time("started", c.startedAt).
			Msg("playback confirmed")

	case ev.State.Paused && c.phase == core.PhasePlaying:
		c.position = clip.PositionAt(c.startedAt, c.now())
		c.stopTimersLocked()
		c.pauseSent = true
		c.phase = core.PhasePaused
		c.log.Debug().Str("entry", clip.EntryID).Msg("paused externally")

	default:
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.publish()
}

// startTimersLocked arms the progress ticker and the single end-of-clip
// timer, both scoped to the current generation. The window is measured
// from the observed start, not from when play was issued.
func (c *Coordinator) startTimersLocked() {
	gen := c.generation

	c.endTimer = time.AfterFunc(c.clip.Window(), func() {
		c.clipEnded(gen)
	})

	stop := make(chan struct{})
	c.tickStop = stop
	go c.progressLoop(gen, stop)
}

// stopTimersLocked cancels both timers. Timer callbacks that already fired
// find their generation stale and do nothing.
func (c *Coordinator) stopTimersLocked() {
	if c.endTimer != nil {
		c.endTimer.Stop()
		c.endTimer = nil
	}
	if c.tickStop != nil {
		close(c.tickStop)
		c.tickStop = nil
	}
}

// progressLoop republishes the derived position while the clip plays. It
// exits when its generation goes stale or its stop channel closes.
func (c *Coordinator) progressLoop(gen uint64, stop <-chan struct{}) {
	ticker := time.NewTicker(c.opts.ProgressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		c.mu.Lock()
		if c.generation != gen || c.phase != core.PhasePlaying || c.clip == nil {
			c.mu.Unlock()
			return
		}
		c.position = c.clip.PositionAt(c.startedAt, c.now())
		c.mu.Unlock()
		c.publish()
	}
}

// clipEnded fires when the clip window elapses: exactly one pause command
// goes to the endpoint, guarded against a concurrent manual pause. A stale
// generation means the clip was superseded and nothing happens.
func (c *Coordinator) clipEnded(gen uint64) {
	c.mu.Lock()
	if c.generation != gen || c.pauseSent {
		c.mu.Unlock()
		return
	}
	c.pauseSent = true
	c.stopTimersLocked()
	c.phase = core.PhasePaused
	if c.clip != nil {
		c.position = c.clip.End
	}
	ep := c.endpoint
	entry := ""
	if c.clip != nil {
		entry = c.clip.EntryID
	}
	c.mu.Unlock()
	c.publish()

	c.log.Debug().Str("entry", entry).Msg("clip window elapsed")

	if ep == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), pauseTimeout)
	defer cancel()
	if err := ep.Pause(ctx); err != nil {
		c.log.Debug().Err(err).Str("entry", entry).Msg("end-of-clip pause failed")
	}
}
