package coordinator

import (
	"context"
	"time"

	"github.com/inkdrift/refrain/internal/core"
	"github.com/inkdrift/refrain/internal/spotify/client"
)

// activate runs the device activation protocol for the clip owned at gen:
// transfer playback to the device, confirm the device actually became
// active, then issue the play command. The steps are strictly sequential;
// a later step never runs unless the one before it succeeded. Ownership is
// re-checked between steps so a superseded attempt aborts silently.
func (c *Coordinator) activate(gen uint64) {
	c.mu.Lock()
	if c.generation != gen || c.clip == nil {
		c.mu.Unlock()
		return
	}
	clip := *c.clip
	deviceID := c.deviceID
	ctx := c.sessCtx
	c.mu.Unlock()

	// Transfer. 404 counts as success: the device list on the remote side
	// is eventually consistent and the confirm step settles the question.
	if err := c.api.TransferPlayback(ctx, deviceID, false); err != nil {
		if status := client.ErrorStatus(err); status != 404 {
			c.log.Debug().Err(err).Msg("transfer failed")
			c.fail(gen, core.ReasonTransferFailed, status)
			return
		}
	}
	if !c.owns(gen) {
		return
	}

	// Confirm-active: a bounded poll, because activation is eventually
	// consistent remotely. Timing out is a failure but the session stays
	// primed, so the next action retries without re-priming.
	if !c.confirmActive(ctx, gen, deviceID) {
		if c.owns(gen) {
			c.log.Debug().Str("device_id", deviceID).Msg("device never became active")
			c.fail(gen, core.ReasonConfirmTimeout, 0)
		}
		return
	}
	if !c.owns(gen) {
		return
	}

	// Play. Acceptance is not playback: the phase advances to Playing only
	// when the endpoint reports the track audible.
	err := c.api.Play(ctx, deviceID, &client.PlayOptions{
		URIs:       []string{clip.TrackURI},
		PositionMS: int(clip.Start / time.Millisecond),
	})
	if err != nil {
		status := client.ErrorStatus(err)
		c.mu.Lock()
		if c.generation == gen {
			switch status {
			case 401:
				c.needsReauth = true
			case 403:
				c.premium = false
			}
		}
		c.mu.Unlock()
		c.log.Debug().Err(err).Int("status", status).Msg("play rejected")
		c.fail(gen, core.ReasonPlayRejected, status)
		return
	}

	c.log.Debug().
		Str("entry", clip.EntryID).
		Str("device_id", deviceID).
		Msg("play accepted, awaiting confirmation")
}

// confirmActive polls the device list until deviceID is present and marked
// active, bounded by the configured attempts and interval.
func (c *Coordinator) confirmActive(ctx context.Context, gen uint64, deviceID string) bool {
	for attempt := 0; attempt < c.opts.ConfirmAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return false
			case <-time.After(c.opts.ConfirmInterval):
			}
		}
		if !c.owns(gen) {
			return false
		}

		devices, err := c.api.GetDevices(ctx)
		if err != nil {
			c.log.Debug().Err(err).Int("attempt", attempt+1).Msg("device poll failed")
			continue
		}
		for _, d := range devices {
			if d.ID == deviceID && d.IsActive {
				return true
			}
		}
	}
	return false
}

// fail records a typed failure for the clip owned at gen and ends its
// attempt. The session itself is untouched: primed stays primed.
func (c *Coordinator) fail(gen uint64, reason core.FailureReason, status int) {
	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return
	}
	c.loading = false
	c.phase = core.PhaseIdle
	c.lastFailure = &core.Failure{Reason: reason, Status: status}
	c.mu.Unlock()
	c.publish()
}
