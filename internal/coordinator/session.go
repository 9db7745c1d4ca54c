package coordinator

import (
	"context"

	"github.com/inkdrift/refrain/internal/core"
)

// primeAttempt is one in-flight priming of the session. Concurrent callers
// share the attempt; done closes when an endpoint event resolves it either
// way. Outcome is read from the coordinator state, not from the attempt.
type primeAttempt struct {
	done chan struct{}
}

// ensureEndpointLocked constructs the session endpoint on first use. It
// runs inside the user action: construction and Activate are synchronous,
// with no I/O. The event pump starts here and is registered exactly once
// per session.
func (c *Coordinator) ensureEndpointLocked() {
	if c.endpoint != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.sessCtx = ctx
	c.sessCancel = cancel

	ep := c.factory(c.opts.DeviceName, c.opts.Volume)
	if err := ep.Activate(); err != nil {
		// Activation failure is non-fatal: playback may still work.
		c.log.Debug().Err(err).Msg("endpoint activation failed")
	}
	c.endpoint = ep
	c.pumpDone = make(chan struct{})
	go c.pump(ep.Events(), c.pumpDone)

	c.log.Debug().Str("device", c.opts.DeviceName).Msg("endpoint constructed")
}

// beginPrimeLocked starts priming the session, or joins the attempt already
// in flight. The returned channel closes when the attempt resolves. A
// failed attempt is not retried here; the next user action starts a fresh
// one.
func (c *Coordinator) beginPrimeLocked() <-chan struct{} {
	if c.priming != nil {
		return c.priming.done
	}

	attempt := &primeAttempt{done: make(chan struct{})}
	c.priming = attempt

	err := c.endpoint.Connect(c.sessCtx)
	switch err {
	case nil:
		// Resolution arrives through the pump.
	case core.ErrEndpointConnected:
		// A previous attempt's bridge is still up; the next ready or
		// error event resolves this attempt too.
	default:
		c.log.Debug().Err(err).Msg("endpoint connect refused")
		c.resolvePrimeLocked()
	}
	return attempt.done
}

// resolvePrimeLocked completes the in-flight attempt, if any, releasing
// every caller waiting on it.
func (c *Coordinator) resolvePrimeLocked() {
	if c.priming == nil {
		return
	}
	close(c.priming.done)
	c.priming = nil
}

// afterPrime is the asynchronous continuation of a play action that found
// the session unprimed. Once priming resolves it either proceeds into
// activation, parks the request for a second user action, or clears the
// loading flag on failure.
func (c *Coordinator) afterPrime(gen uint64, done <-chan struct{}, park bool) {
	<-done

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return
	}

	if !c.ready {
		c.loading = false
		c.phase = core.PhaseIdle
		c.lastFailure = &core.Failure{Reason: core.ReasonPrimeFailed}
		c.mu.Unlock()
		c.publish()
		return
	}

	if park {
		// The priming consumed this action; the clip stays owned and a
		// later play action starts it.
		c.loading = false
		c.phase = core.PhaseIdle
		c.mu.Unlock()
		c.publish()
		return
	}

	c.phase = core.PhaseActivating
	c.mu.Unlock()
	c.publish()
	c.activate(gen)
}

// pump consumes endpoint events one at a time, in arrival order. It is the
// only goroutine that applies events, so no handler ever observes another
// running concurrently. It exits when the endpoint closes its stream.
func (c *Coordinator) pump(events <-chan core.EndpointEvent, done chan struct{}) {
	defer close(done)
	for ev := range events {
		switch ev.Kind {
		case core.EndpointReady:
			c.handleReady(ev)
		case core.EndpointNotReady:
			c.handleNotReady(ev)
		case core.EndpointStateChanged:
			c.handleState(ev)
		case core.EndpointInitError, core.EndpointAuthError:
			c.handleSessionError(ev)
		case core.EndpointAccountError:
			c.handleAccountError(ev)
		case core.EndpointPlaybackError:
			c.log.Warn().Str("message", ev.Message).Msg("endpoint playback error")
		}
	}
}

func (c *Coordinator) handleReady(ev core.EndpointEvent) {
	c.mu.Lock()
	c.ready = true
	c.deviceID = ev.DeviceID
	c.premium = true
	c.needsReauth = false
	c.resolvePrimeLocked()
	c.mu.Unlock()

	c.log.Debug().Str("device_id", ev.DeviceID).Msg("session ready")
	c.publish()
}

func (c *Coordinator) handleNotReady(ev core.EndpointEvent) {
	c.mu.Lock()
	c.ready = false
	c.mu.Unlock()

	c.log.Debug().Str("device_id", ev.DeviceID).Msg("device went offline")
	c.publish()
}

// handleSessionError covers initialization and authentication errors. Both
// leave the session needing a fresh sign-in or a fresh prime; the flag is
// absorbing until a later prime succeeds.
func (c *Coordinator) handleSessionError(ev core.EndpointEvent) {
	c.mu.Lock()
	c.ready = false
	c.needsReauth = true
	c.resolvePrimeLocked()
	c.mu.Unlock()

	c.log.Warn().
		Str("event", ev.Kind.String()).
		Str("message", ev.Message).
		Msg("session error")
	c.publish()
}

func (c *Coordinator) handleAccountError(ev core.EndpointEvent) {
	c.mu.Lock()
	c.premium = false
	c.ready = false
	c.resolvePrimeLocked()
	c.mu.Unlock()

	c.log.Warn().Str("message", ev.Message).Msg("account cannot stream")
	c.publish()
}
