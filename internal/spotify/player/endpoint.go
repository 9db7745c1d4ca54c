// Package player binds playback to one of the user's Spotify Connect devices
// and exposes it as a core.Endpoint: commands go out over the Web API, state
// comes back as a stream of events produced by polling and diffing the
// player state.
package player

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/inkdrift/refrain/internal/core"
	"github.com/inkdrift/refrain/internal/spotify/client"
)

const (
	defaultPollInterval = 1 * time.Second

	// Consecutive poll failures before the device is reported not ready.
	notReadyThreshold = 3

	// Position moving backwards by more than this while playing is treated
	// as a restart or seek and surfaced as a state change.
	seekTolerance = 2 * time.Second

	eventBufferSize = 32
)

// API is the slice of the Spotify client the endpoint needs.
type API interface {
	Credentials(ctx context.Context) (client.Credentials, error)
	GetDevices(ctx context.Context) ([]client.Device, error)
	GetPlaybackState(ctx context.Context) (*client.PlaybackState, error)
	Pause(ctx context.Context, deviceID string) error
	SetVolume(ctx context.Context, percent int, deviceID string) error
}

// Options configures a Connect endpoint.
type Options struct {
	// Name is the device name or id to bind. Empty binds the active device,
	// falling back to the first one listed.
	Name string

	// Volume is applied to the device after connecting. Zero leaves the
	// device volume untouched.
	Volume int

	// PollInterval is the state polling cadence. Zero means the default.
	PollInterval time.Duration

	Logger zerolog.Logger
}

// Endpoint is a core.Endpoint backed by a Spotify Connect device.
type Endpoint struct {
	api  API
	opts Options
	log  zerolog.Logger

	events chan core.EndpointEvent

	activated atomic.Bool

	mu      sync.Mutex
	device  string
	running bool
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates an unconnected endpoint.
func New(api API, opts Options) *Endpoint {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	return &Endpoint{
		api:    api,
		opts:   opts,
		log:    opts.Logger.With().Str("component", "endpoint").Logger(),
		events: make(chan core.EndpointEvent, eventBufferSize),
	}
}

var _ core.Endpoint = (*Endpoint)(nil)

// Activate marks the endpoint as authorized by a user action. It is cheap,
// synchronous, and idempotent, so callers can invoke it on every action.
func (e *Endpoint) Activate() error {
	if e.activated.CompareAndSwap(false, true) {
		e.log.Debug().Msg("endpoint activated")
	}
	return nil
}

// Events returns the endpoint's event stream. The channel closes when the
// endpoint disconnects.
func (e *Endpoint) Events() <-chan core.EndpointEvent {
	return e.events
}

// Connect begins a connection attempt. It returns immediately; readiness
// and every failure mode arrive as events. The context bounds the whole
// connection, including the state bridge. An attempt that ended in a
// failure event may be retried with another Connect; only Disconnect is
// terminal.
func (e *Endpoint) Connect(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return core.ErrEndpointClosed
	}
	if e.running {
		return core.ErrEndpointConnected
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	e.running = true
	e.cancel = cancel
	e.done = done

	go e.run(ctx, done)
	return nil
}

// Disconnect stops the endpoint and closes the event stream. It is safe to
// call more than once; a disconnected endpoint cannot be reconnected.
func (e *Endpoint) Disconnect() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	cancel := e.cancel
	done := e.done
	e.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	close(e.events)
}

// Pause issues a pause command to the bound device.
func (e *Endpoint) Pause(ctx context.Context) error {
	return e.api.Pause(ctx, e.deviceID())
}

func (e *Endpoint) deviceID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.device
}

func (e *Endpoint) setDeviceID(id string) {
	e.mu.Lock()
	e.device = id
	e.mu.Unlock()
}

// run connects and then bridges polled playback state into events. It owns
// the event channel's send side until the context ends.
func (e *Endpoint) run(ctx context.Context, done chan struct{}) {
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
		close(done)
	}()

	device, ok := e.establish(ctx)
	if !ok {
		return
	}
	e.setDeviceID(device.ID)
	e.emit(ctx, core.EndpointEvent{Kind: core.EndpointReady, DeviceID: device.ID})

	if e.opts.Volume > 0 {
		if err := e.api.SetVolume(ctx, e.opts.Volume, device.ID); err != nil {
			e.log.Debug().Err(err).Msg("initial volume not applied")
		}
	}

	e.bridge(ctx, device.ID)
}

// establish verifies the account and resolves the target device. Failures
// are emitted as events, mirroring how a local player would report them.
func (e *Endpoint) establish(ctx context.Context) (client.Device, bool) {
	creds, err := e.api.Credentials(ctx)
	if err != nil {
		e.log.Debug().Err(err).Msg("credentials unavailable")
		e.emit(ctx, core.EndpointEvent{Kind: core.EndpointAuthError, Message: err.Error()})
		return client.Device{}, false
	}
	if !creds.Premium {
		e.emit(ctx, core.EndpointEvent{
			Kind:    core.EndpointAccountError,
			Message: "playback requires a premium account",
		})
		return client.Device{}, false
	}

	devices, err := e.api.GetDevices(ctx)
	if err != nil {
		kind := core.EndpointInitError
		if client.ErrorStatus(err) == 401 {
			kind = core.EndpointAuthError
		}
		e.emit(ctx, core.EndpointEvent{Kind: kind, Message: err.Error()})
		return client.Device{}, false
	}

	device, ok := matchDevice(devices, e.opts.Name)
	if !ok {
		msg := "no playback devices available"
		if e.opts.Name != "" {
			msg = "device not found: " + e.opts.Name
		}
		e.emit(ctx, core.EndpointEvent{Kind: core.EndpointInitError, Message: msg})
		return client.Device{}, false
	}

	e.log.Debug().Str("device", device.Name).Str("id", device.ID).Msg("device bound")
	return device, true
}

// bridge polls the playback state and diffs successive snapshots into
// StateChanged events. Repeated poll failures surface as NotReady; a
// successful poll afterwards re-announces the device.
func (e *Endpoint) bridge(ctx context.Context, deviceID string) {
	ticker := time.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()

	var (
		prev     *core.EndpointState
		failures int
		lost     bool
	)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		state, err := e.api.GetPlaybackState(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if client.ErrorStatus(err) == 401 {
				e.emit(ctx, core.EndpointEvent{Kind: core.EndpointAuthError, Message: err.Error()})
				return
			}
			failures++
			if failures == notReadyThreshold && !lost {
				lost = true
				e.log.Debug().Err(err).Msg("device unreachable")
				e.emit(ctx, core.EndpointEvent{Kind: core.EndpointNotReady, DeviceID: deviceID})
			}
			continue
		}
		failures = 0
		if lost {
			lost = false
			e.emit(ctx, core.EndpointEvent{Kind: core.EndpointReady, DeviceID: deviceID})
		}

		next := snapshot(state)
		if prev == nil || changed(*prev, next) {
			ev := core.EndpointEvent{
				Kind:     core.EndpointStateChanged,
				DeviceID: deviceID,
				State:    &next,
			}
			e.emit(ctx, ev)
		}
		prev = &next
	}
}

// emit delivers an event, blocking until the consumer takes it or the
// endpoint shuts down. Events are never dropped.
func (e *Endpoint) emit(ctx context.Context, ev core.EndpointEvent) {
	select {
	case e.events <- ev:
	case <-ctx.Done():
	}
}

// snapshot reduces a playback state to what the coordinator consumes.
func snapshot(state *client.PlaybackState) core.EndpointState {
	s := core.EndpointState{Paused: true}
	if state == nil {
		return s
	}
	s.Paused = !state.IsPlaying
	s.Position = time.Duration(state.ProgressMS) * time.Millisecond
	if state.Item != nil {
		s.TrackURI = state.Item.URI
	}
	return s
}

// changed reports whether two snapshots differ in a way worth an event:
// track or pause transitions always, and while playing, the position moving
// backwards (a restart of the same track).
func changed(prev, next core.EndpointState) bool {
	if prev.TrackURI != next.TrackURI || prev.Paused != next.Paused {
		return true
	}
	if !next.Paused && next.Position+seekTolerance < prev.Position {
		return true
	}
	return false
}

// matchDevice picks the target device: by id, then by case-insensitive
// name; with no name configured, the active device or the first listed.
func matchDevice(devices []client.Device, name string) (client.Device, bool) {
	if name == "" {
		for _, d := range devices {
			if d.IsActive {
				return d, true
			}
		}
		if len(devices) > 0 {
			return devices[0], true
		}
		return client.Device{}, false
	}
	for _, d := range devices {
		if d.ID == name {
			return d, true
		}
	}
	for _, d := range devices {
		if strings.EqualFold(d.Name, name) {
			return d, true
		}
	}
	return client.Device{}, false
}
