// Package coordinator owns clip playback end to end: it primes a playback
// endpoint for the session, drives the device activation protocol, and
// schedules the clip window against the wall clock. At most one clip is
// owned at any time; a new play request atomically supersedes the previous
// one. Failures never surface as errors from the asynchronous paths — they
// land in Status as flags and a typed LastFailure.
package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/inkdrift/refrain/internal/core"
	"github.com/inkdrift/refrain/internal/spotify/client"
)

const (
	defaultConfirmAttempts  = 8
	defaultConfirmInterval  = 250 * time.Millisecond
	defaultProgressInterval = 200 * time.Millisecond

	// Bound on best-effort pause commands issued outside a caller context.
	pauseTimeout = 5 * time.Second
)

// API is the slice of the Spotify client the activation protocol needs.
type API interface {
	TransferPlayback(ctx context.Context, deviceID string, play bool) error
	GetDevices(ctx context.Context) ([]client.Device, error)
	Play(ctx context.Context, deviceID string, opts *client.PlayOptions) error
}

// Gate claims the local audio output path. Unlock must be cheap, idempotent,
// and must never fail; the coordinator calls it at the top of every play
// action before any suspension point.
type Gate interface {
	Unlock()
}

type noopGate struct{}

func (noopGate) Unlock() {}

// Options configures a Coordinator.
type Options struct {
	// DeviceName selects the playback device, by name or id. Empty binds
	// whatever device the endpoint resolves.
	DeviceName string

	// Volume is applied to the device when the session connects.
	Volume int

	// ParkUntilReady makes the first play action on an unprimed session
	// stop once priming resolves; a second action starts playback. The
	// zero value continues into activation automatically.
	ParkUntilReady bool

	// Activation and progress cadence. Zero values take the defaults
	// (8 confirm polls at 250ms, 200ms progress ticks).
	ConfirmAttempts  int
	ConfirmInterval  time.Duration
	ProgressInterval time.Duration

	Logger zerolog.Logger

	// Now substitutes the wall clock in tests.
	Now func() time.Time
}

// Coordinator is the public facade. All exported methods are safe for
// concurrent use; internally, endpoint events are consumed one at a time in
// arrival order.
type Coordinator struct {
	api     API
	factory core.EndpointFactory
	gate    Gate
	opts    Options
	log     zerolog.Logger
	now     func() time.Time

	mu sync.Mutex

	// Session state, valid between ensureEndpointLocked and Cleanup.
	endpoint    core.Endpoint
	sessCtx     context.Context
	sessCancel  context.CancelFunc
	pumpDone    chan struct{}
	priming     *primeAttempt
	ready       bool
	deviceID    string
	premium     bool
	needsReauth bool

	// Clip ownership. generation increments on every adoption and on
	// Cleanup; asynchronous continuations capture it and re-check before
	// applying any deferred result.
	generation  uint64
	clip        *core.Clip
	phase       core.Phase
	loading     bool
	startedAt   time.Time
	position    time.Duration
	pauseSent   bool
	lastFailure *core.Failure

	// Scheduler timers, generation-scoped.
	endTimer *time.Timer
	tickStop chan struct{}

	subs map[chan core.Status]struct{}
}

// New creates a coordinator. The factory is invoked at most once per
// session, inside the play action that first needs the endpoint.
func New(api API, factory core.EndpointFactory, gate Gate, opts Options) *Coordinator {
	if opts.ConfirmAttempts <= 0 {
		opts.ConfirmAttempts = defaultConfirmAttempts
	}
	if opts.ConfirmInterval <= 0 {
		opts.ConfirmInterval = defaultConfirmInterval
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = defaultProgressInterval
	}
	if gate == nil {
		gate = noopGate{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Coordinator{
		api:     api,
		factory: factory,
		gate:    gate,
		opts:    opts,
		log:     opts.Logger.With().Str("component", "coordinator").Logger(),
		now:     now,
		premium: true,
		phase:   core.PhaseIdle,
		subs:    make(map[chan core.Status]struct{}),
	}
}

// PlayClip adopts clip as the owned request and starts playback. The
// synchronous part covers validation, the audio unlock, endpoint
// construction, and supersession of the previous clip; everything that can
// suspend continues asynchronously and reports through Status. The only
// immediate error is an invalid clip.
func (c *Coordinator) PlayClip(clip core.Clip) error {
	if err := clip.Validate(); err != nil {
		return err
	}

	c.gate.Unlock()

	c.mu.Lock()
	c.ensureEndpointLocked()
	gen := c.adoptLocked(clip)

	if !c.ready {
		c.phase = core.PhasePriming
		done := c.beginPrimeLocked()
		park := c.opts.ParkUntilReady
		c.mu.Unlock()
		c.publish()
		go c.afterPrime(gen, done, park)
		return nil
	}

	c.phase = core.PhaseActivating
	c.mu.Unlock()
	c.publish()
	go c.activate(gen)
	return nil
}

// PauseClip pauses the owned clip: timers are canceled, exactly one pause
// command goes to the endpoint, and the phase becomes Paused. Calling it
// when nothing is playing is a no-op.
func (c *Coordinator) PauseClip(ctx context.Context) error {
	c.mu.Lock()
	if c.clip == nil || c.phase != core.PhasePlaying {
		c.mu.Unlock()
		return nil
	}
	c.position = c.clip.PositionAt(c.startedAt, c.now())
	c.stopTimersLocked()
	c.phase = core.PhasePaused
	alreadySent := c.pauseSent
	c.pauseSent = true
	ep := c.endpoint
	c.mu.Unlock()
	c.publish()

	if alreadySent || ep == nil {
		return nil
	}
	return ep.Pause(ctx)
}

// Cleanup tears the session down: timers die, the endpoint disconnects, and
// all session and clip state resets to idle. The coordinator can be used
// again afterwards; the next play action builds a fresh session.
func (c *Coordinator) Cleanup() {
	c.mu.Lock()
	c.generation++
	c.stopTimersLocked()

	ep := c.endpoint
	cancel := c.sessCancel
	pumpDone := c.pumpDone
	c.endpoint = nil
	c.sessCtx = nil
	c.sessCancel = nil
	c.pumpDone = nil
	c.resolvePrimeLocked()

	c.ready = false
	c.deviceID = ""
	c.premium = true
	c.needsReauth = false
	c.clip = nil
	c.phase = core.PhaseIdle
	c.loading = false
	c.startedAt = time.Time{}
	c.position = 0
	c.pauseSent = false
	c.lastFailure = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ep != nil {
		ep.Disconnect()
	}
	if pumpDone != nil {
		<-pumpDone
	}
	c.publish()
}

// Status returns the current snapshot. While playing, position is derived
// from the observed start time and the wall clock.
func (c *Coordinator) Status() core.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *Coordinator) statusLocked() core.Status {
	st := core.Status{
		Phase:        c.phase,
		Position:     c.position,
		Ready:        c.ready,
		Initializing: c.priming != nil,
		Loading:      c.loading,
		Playing:      c.phase == core.PhasePlaying,
		Premium:      c.premium,
		NeedsReauth:  c.needsReauth,
		DeviceID:     c.deviceID,
		LastFailure:  c.lastFailure,
	}
	if c.clip != nil {
		cl := *c.clip
		st.Clip = &cl
	}
	if c.phase == core.PhasePlaying && c.clip != nil && !c.startedAt.IsZero() {
		st.Position = c.clip.PositionAt(c.startedAt, c.now())
	}
	return st
}

// Subscribe returns a channel of status snapshots. Delivery is best-effort:
// a subscriber that falls behind misses intermediate snapshots, never
// blocks the coordinator.
func (c *Coordinator) Subscribe() <-chan core.Status {
	ch := make(chan core.Status, 8)
	c.mu.Lock()
	c.subs[ch] = struct{}{}
	c.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (c *Coordinator) Unsubscribe(target <-chan core.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ch := range c.subs {
		if (<-chan core.Status)(ch) == target {
			delete(c.subs, ch)
			close(ch)
			return
		}
	}
}

// publish fans the current snapshot out to subscribers.
func (c *Coordinator) publish() {
	c.mu.Lock()
	st := c.statusLocked()
	subs := make([]chan core.Status, 0, len(c.subs))
	for ch := range c.subs {
		subs = append(subs, ch)
	}
	c.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- st:
		default:
		}
	}
}

// adoptLocked supersedes the owned clip and installs a new one. The old
// clip's timers are stopped synchronously and, if it was audible, one
// best-effort pause goes out before the new clip is installed; its outcome
// is ignored.
func (c *Coordinator) adoptLocked(clip core.Clip) uint64 {
	c.stopTimersLocked()

	if c.phase == core.PhasePlaying && c.endpoint != nil {
		ep := c.endpoint
		old := c.clip.EntryID
		log := c.log
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), pauseTimeout)
			defer cancel()
			if err := ep.Pause(ctx); err != nil {
				log.Debug().Err(err).Str("entry", old).Msg("superseded clip pause failed")
			}
		}()
	}

	c.generation++
	cl := clip
	c.clip = &cl
	c.loading = true
	c.pauseSent = false
	c.lastFailure = nil
	c.startedAt = time.Time{}
	c.position = clip.Start

	c.log.Debug().
		Str("entry", clip.EntryID).
		Str("track", clip.TrackURI).
		Dur("window", clip.Window()).
		Msg("clip adopted")
	return c.generation
}

// owns reports whether gen is still the live generation.
func (c *Coordinator) owns(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation == gen
}
