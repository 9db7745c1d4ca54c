package player

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/inkdrift/refrain/internal/core"
	"github.com/inkdrift/refrain/internal/spotify/client"
)

type stateResult struct {
	state *client.PlaybackState
	err   error
}

// fakeAPI scripts the Spotify client surface. GetPlaybackState consumes the
// script one entry per call and repeats the last entry once exhausted.
type fakeAPI struct {
	mu          sync.Mutex
	creds       client.Credentials
	credsErr    error
	devices     []client.Device
	devicesErr  error
	states      []stateResult
	stateIdx    int
	pauseCalls  []string
	volumeCalls []int
}

func (f *fakeAPI) Credentials(ctx context.Context) (client.Credentials, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creds, f.credsErr
}

func (f *fakeAPI) GetDevices(ctx context.Context) ([]client.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.devices, f.devicesErr
}

func (f *fakeAPI) GetPlaybackState(ctx context.Context) (*client.PlaybackState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.states) == 0 {
		return &client.PlaybackState{}, nil
	}
	r := f.states[f.stateIdx]
	if f.stateIdx < len(f.states)-1 {
		f.stateIdx++
	}
	return r.state, r.err
}

func (f *fakeAPI) Pause(ctx context.Context, deviceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pauseCalls = append(f.pauseCalls, deviceID)
	return nil
}

func (f *fakeAPI) SetVolume(ctx context.Context, percent int, deviceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volumeCalls = append(f.volumeCalls, percent)
	return nil
}

func playing(uri string, progressMS int) *client.PlaybackState {
	return &client.PlaybackState{
		IsPlaying:  true,
		ProgressMS: progressMS,
		Item:       &client.Track{URI: uri},
	}
}

func paused(uri string, progressMS int) *client.PlaybackState {
	s := playing(uri, progressMS)
	s.IsPlaying = false
	return s
}

func premiumAPI() *fakeAPI {
	return &fakeAPI{
		creds: client.Credentials{AccessToken: "tok", Premium: true},
		devices: []client.Device{
			{ID: "dev_1", Name: "Kitchen", IsActive: false},
			{ID: "dev_2", Name: "Desk", IsActive: true},
		},
	}
}

func newTestEndpoint(api API, name string, volume int) *Endpoint {
	return New(api, Options{
		Name:         name,
		Volume:       volume,
		PollInterval: 5 * time.Millisecond,
		Logger:       zerolog.Nop(),
	})
}

// nextEvent fails the test if no event arrives in time.
func nextEvent(t *testing.T, ch <-chan core.EndpointEvent) core.EndpointEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatal("event channel closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return core.EndpointEvent{}
}

func TestConnectEmitsReady(t *testing.T) {
	api := premiumAPI()
	ep := newTestEndpoint(api, "Kitchen", 35)
	defer ep.Disconnect()

	if err := ep.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	ev := nextEvent(t, ep.Events())
	if ev.Kind != core.EndpointReady {
		t.Fatalf("event = %v, want ready", ev.Kind)
	}
	if ev.DeviceID != "dev_1" {
		t.Errorf("DeviceID = %q, want dev_1 (matched by name)", ev.DeviceID)
	}

	// Volume application is best-effort but should happen after ready.
	deadline := time.Now().Add(time.Second)
	for {
		api.mu.Lock()
		n := len(api.volumeCalls)
		api.mu.Unlock()
		if n > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}
	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.volumeCalls) != 1 || api.volumeCalls[0] != 35 {
		t.Errorf("volume calls = %v, want [35]", api.volumeCalls)
	}
}

func TestConnectPrefersActiveDeviceWithoutName(t *testing.T) {
	ep := newTestEndpoint(premiumAPI(), "", 0)
	defer ep.Disconnect()

	if err := ep.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	ev := nextEvent(t, ep.Events())
	if ev.Kind != core.EndpointReady || ev.DeviceID != "dev_2" {
		t.Errorf("event = %v device %q, want ready on dev_2", ev.Kind, ev.DeviceID)
	}
}

func TestConnectCredentialsFailure(t *testing.T) {
	api := &fakeAPI{credsErr: errors.New("not authenticated")}
	ep := newTestEndpoint(api, "Kitchen", 0)
	defer ep.Disconnect()

	if err := ep.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	ev := nextEvent(t, ep.Events())
	if ev.Kind != core.EndpointAuthError {
		t.Errorf("event = %v, want authentication_error", ev.Kind)
	}
}

func TestConnectNonPremiumAccount(t *testing.T) {
	api := premiumAPI()
	api.creds.Premium = false
	ep := newTestEndpoint(api, "Kitchen", 0)
	defer ep.Disconnect()

	if err := ep.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	ev := nextEvent(t, ep.Events())
	if ev.Kind != core.EndpointAccountError {
		t.Errorf("event = %v, want account_error", ev.Kind)
	}
}

func TestConnectDeviceNotFound(t *testing.T) {
	ep := newTestEndpoint(premiumAPI(), "Garage", 0)
	defer ep.Disconnect()

	if err := ep.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	ev := nextEvent(t, ep.Events())
	if ev.Kind != core.EndpointInitError {
		t.Errorf("event = %v, want initialization_error", ev.Kind)
	}
}

func TestBridgeDiffsStates(t *testing.T) {
	api := premiumAPI()
	api.states = []stateResult{
		{state: paused("spotify:track:a", 0)},
		{state: playing("spotify:track:a", 100)},
		{state: playing("spotify:track:a", 200)}, // position drift only, no event
		{state: paused("spotify:track:a", 300)},
	}
	ep := newTestEndpoint(api, "Kitchen", 0)
	defer ep.Disconnect()

	if err := ep.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if ev := nextEvent(t, ep.Events()); ev.Kind != core.EndpointReady {
		t.Fatalf("first event = %v, want ready", ev.Kind)
	}

	want := []bool{true, false, true} // paused values of the expected changes
	for i, wantPaused := range want {
		ev := nextEvent(t, ep.Events())
		if ev.Kind != core.EndpointStateChanged {
			t.Fatalf("event %d = %v, want state_changed", i, ev.Kind)
		}
		if ev.State == nil || ev.State.Paused != wantPaused {
			t.Errorf("event %d paused = %+v, want %v", i, ev.State, wantPaused)
		}
		if ev.State != nil && ev.State.TrackURI != "spotify:track:a" {
			t.Errorf("event %d uri = %q", i, ev.State.TrackURI)
		}
	}
}

func TestBridgeReportsRestartOfSameTrack(t *testing.T) {
	api := premiumAPI()
	api.states = []stateResult{
		{state: playing("spotify:track:a", 25000)},
		{state: playing("spotify:track:a", 10000)}, // jumped back: restarted
	}
	ep := newTestEndpoint(api, "Kitchen", 0)
	defer ep.Disconnect()

	if err := ep.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if ev := nextEvent(t, ep.Events()); ev.Kind != core.EndpointReady {
		t.Fatalf("first event = %v, want ready", ev.Kind)
	}
	for i := 0; i < 2; i++ {
		ev := nextEvent(t, ep.Events())
		if ev.Kind != core.EndpointStateChanged {
			t.Fatalf("event %d = %v, want state_changed", i, ev.Kind)
		}
	}
}

func TestBridgeAuthErrorStopsPolling(t *testing.T) {
	apiErr := &client.APIError{}
	apiErr.ErrorInfo.Status = 401
	apiErr.ErrorInfo.Message = "The access token expired"

	api := premiumAPI()
	api.states = []stateResult{
		{state: paused("spotify:track:a", 0)},
		{err: apiErr},
	}
	ep := newTestEndpoint(api, "Kitchen", 0)
	defer ep.Disconnect()

	if err := ep.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if ev := nextEvent(t, ep.Events()); ev.Kind != core.EndpointReady {
		t.Fatalf("first event = %v, want ready", ev.Kind)
	}
	if ev := nextEvent(t, ep.Events()); ev.Kind != core.EndpointStateChanged {
		t.Fatalf("second event = %v, want state_changed", ev.Kind)
	}
	if ev := nextEvent(t, ep.Events()); ev.Kind != core.EndpointAuthError {
		t.Fatalf("third event = %v, want authentication_error", ev.Kind)
	}
}

func TestBridgeNotReadyAfterRepeatedFailures(t *testing.T) {
	boom := errors.New("connection refused")
	api := premiumAPI()
	api.states = []stateResult{{err: boom}} // repeats forever
	ep := newTestEndpoint(api, "Kitchen", 0)
	defer ep.Disconnect()

	if err := ep.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if ev := nextEvent(t, ep.Events()); ev.Kind != core.EndpointReady {
		t.Fatalf("first event = %v, want ready", ev.Kind)
	}
	if ev := nextEvent(t, ep.Events()); ev.Kind != core.EndpointNotReady {
		t.Fatalf("second event = %v, want not_ready", ev.Kind)
	}
}

func TestPauseTargetsBoundDevice(t *testing.T) {
	api := premiumAPI()
	ep := newTestEndpoint(api, "Kitchen", 0)
	defer ep.Disconnect()

	if err := ep.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if ev := nextEvent(t, ep.Events()); ev.Kind != core.EndpointReady {
		t.Fatalf("first event = %v, want ready", ev.Kind)
	}

	if err := ep.Pause(context.Background()); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}

	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.pauseCalls) != 1 || api.pauseCalls[0] != "dev_1" {
		t.Errorf("pause calls = %v, want [dev_1]", api.pauseCalls)
	}
}

func TestConnectRetriableAfterFailure(t *testing.T) {
	api := premiumAPI()
	api.devicesErr = errors.New("network down")
	ep := newTestEndpoint(api, "Kitchen", 0)
	defer ep.Disconnect()

	if err := ep.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if ev := nextEvent(t, ep.Events()); ev.Kind != core.EndpointInitError {
		t.Fatalf("event = %v, want initialization_error", ev.Kind)
	}

	api.mu.Lock()
	api.devicesErr = nil
	api.mu.Unlock()

	// The failed attempt winds down asynchronously; retry until accepted.
	deadline := time.Now().Add(2 * time.Second)
	for {
		err := ep.Connect(context.Background())
		if err == nil {
			break
		}
		if err != core.ErrEndpointConnected {
			t.Fatalf("Connect() retry error = %v", err)
		}
		if time.Now().After(deadline) {
			t.Fatal("endpoint never accepted a second Connect")
		}
		time.Sleep(time.Millisecond)
	}

	if ev := nextEvent(t, ep.Events()); ev.Kind != core.EndpointReady {
		t.Errorf("event after retry = %v, want ready", ev.Kind)
	}
}

func TestConnectLifecycle(t *testing.T) {
	ep := newTestEndpoint(premiumAPI(), "Kitchen", 0)

	if err := ep.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := ep.Connect(context.Background()); err != core.ErrEndpointConnected {
		t.Errorf("second Connect() error = %v, want ErrEndpointConnected", err)
	}

	ep.Disconnect()
	ep.Disconnect() // safe to repeat

	if err := ep.Connect(context.Background()); err != core.ErrEndpointClosed {
		t.Errorf("Connect() after Disconnect error = %v, want ErrEndpointClosed", err)
	}

	// The event stream must be closed after disconnect.
	for {
		_, ok := <-ep.Events()
		if !ok {
			return
		}
	}
}

func TestActivateIsIdempotent(t *testing.T) {
	ep := newTestEndpoint(premiumAPI(), "Kitchen", 0)
	for i := 0; i < 3; i++ {
		if err := ep.Activate(); err != nil {
			t.Fatalf("Activate() call %d error = %v", i, err)
		}
	}
}

func TestMatchDevice(t *testing.T) {
	devices := []client.Device{
		{ID: "id_a", Name: "Kitchen"},
		{ID: "id_b", Name: "Desk", IsActive: true},
	}

	tests := []struct {
		name   string
		query  string
		wantID string
		wantOK bool
	}{
		{name: "by id", query: "id_a", wantID: "id_a", wantOK: true},
		{name: "by name case-insensitive", query: "kitchen", wantID: "id_a", wantOK: true},
		{name: "empty prefers active", query: "", wantID: "id_b", wantOK: true},
		{name: "unknown", query: "Garage", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := matchDevice(devices, tt.query)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got.ID != tt.wantID {
				t.Errorf("device = %q, want %q", got.ID, tt.wantID)
			}
		})
	}

	t.Run("empty list", func(t *testing.T) {
		if _, ok := matchDevice(nil, ""); ok {
			t.Error("ok = true for empty device list")
		}
	})
}
