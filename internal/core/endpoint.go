package core

import (
	"context"
	"errors"
	"time"
)

// Endpoint lifecycle misuse errors. Everything else an endpoint has to say
// arrives through its event stream.
var (
	ErrEndpointConnected = errors.New("endpoint already connected")
	ErrEndpointClosed    = errors.New("endpoint is closed")
)

// EndpointEventKind identifies an endpoint event.
type EndpointEventKind int

const (
	EndpointReady EndpointEventKind = iota
	EndpointNotReady
	EndpointStateChanged
	EndpointInitError
	EndpointAuthError
	EndpointAccountError
	EndpointPlaybackError
)

// String returns the event kind name.
func (k EndpointEventKind) String() string {
	switch k {
	case EndpointReady:
		return "ready"
	case EndpointNotReady:
		return "not_ready"
	case EndpointStateChanged:
		return "state_changed"
	case EndpointInitError:
		return "initialization_error"
	case EndpointAuthError:
		return "authentication_error"
	case EndpointAccountError:
		return "account_error"
	case EndpointPlaybackError:
		return "playback_error"
	default:
		return "unknown"
	}
}

// EndpointState is the playback state carried by a state_changed event.
// Position is coarse and advisory; clip position is derived from the wall
// clock, not from these values.
type EndpointState struct {
	Paused   bool
	Position time.Duration
	TrackURI string
}

// EndpointEvent is one event emitted by a playback endpoint.
type EndpointEvent struct {
	Kind     EndpointEventKind
	DeviceID string
	State    *EndpointState
	Message  string
}

// Endpoint is a playback endpoint owned by the coordinator: a device-bound
// session that accepts a small set of commands and reports its life through
// an event stream. Readiness, failure, and playback confirmation all arrive
// as events; command success never implies audible playback.
type Endpoint interface {
	// Connect begins establishing the session. The outcome arrives as a
	// Ready event (with the device id) or one of the error events.
	Connect(ctx context.Context) error

	// Disconnect tears the session down. No events follow it.
	Disconnect()

	// Pause requests playback pause on the endpoint's device.
	Pause(ctx context.Context) error

	// Activate claims the local output path. It must be cheap, synchronous,
	// and idempotent: callers invoke it inside the user action that asked
	// for playback, before any suspension point.
	Activate() error

	// Events returns the endpoint's event stream. The channel is owned by
	// the endpoint and is never closed while the endpoint is connected.
	Events() <-chan EndpointEvent
}

// EndpointFactory constructs an endpoint bound to the named device. The
// coordinator calls it at most once per session.
type EndpointFactory func(name string, volume int) Endpoint
