package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/inkdrift/refrain/internal/core"
	"github.com/inkdrift/refrain/internal/spotify/client"
)

// fakeEndpoint is a scripted core.Endpoint. Each Connect call emits the
// next script's events into the stream; tests push further events by hand.
type fakeEndpoint struct {
	mu            sync.Mutex
	events        chan core.EndpointEvent
	scripts       [][]core.EndpointEvent
	connectCalls  int
	activateCalls int
	pauseCalls    int
	pauseErr      error
	closed        bool
}

func newFakeEndpoint(scripts ...[]core.EndpointEvent) *fakeEndpoint {
	return &fakeEndpoint{
		events:  make(chan core.EndpointEvent, 32),
		scripts: scripts,
	}
}

func (f *fakeEndpoint) Connect(ctx context.Context) error {
	f.mu.Lock()
	i := f.connectCalls
	f.connectCalls++
	var script []core.EndpointEvent
	if len(f.scripts) > 0 {
		if i >= len(f.scripts) {
			i = len(f.scripts) - 1
		}
		script = f.scripts[i]
	}
	f.mu.Unlock()

	for _, ev := range script {
		f.emit(ev)
	}
	return nil
}

func (f *fakeEndpoint) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	close(f.events)
}

func (f *fakeEndpoint) Pause(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pauseCalls++
	return f.pauseErr
}

func (f *fakeEndpoint) Activate() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activateCalls++
	return nil
}

func (f *fakeEndpoint) Events() <-chan core.EndpointEvent {
	return f.events
}

func (f *fakeEndpoint) emit(ev core.EndpointEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.events <- ev
}

// state pushes a player state observation into the event stream.
func (f *fakeEndpoint) state(trackURI string, paused bool) {
	f.emit(core.EndpointEvent{
		Kind:  core.EndpointStateChanged,
		State: &core.EndpointState{TrackURI: trackURI, Paused: paused},
	})
}

func (f *fakeEndpoint) pauseCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pauseCalls
}

func (f *fakeEndpoint) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connectCalls
}

// fakePlaybackAPI scripts the activation protocol's HTTP surface.
type fakePlaybackAPI struct {
	mu             sync.Mutex
	deviceID       string
	activeFrom     int // device reports active from this GetDevices call on; -1 never
	transferErr    error
	transferCalls  int
	devicesCalls   int
	playErr        error
	playCalls      int
	lastPlayDevice string
	lastPlay       *client.PlayOptions
}

func (f *fakePlaybackAPI) TransferPlayback(ctx context.Context, deviceID string, play bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transferCalls++
	return f.transferErr
}

func (f *fakePlaybackAPI) GetDevices(ctx context.Context) ([]client.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.devicesCalls
	f.devicesCalls++
	active := f.activeFrom >= 0 && i >= f.activeFrom
	return []client.Device{{ID: f.deviceID, Name: "Desk", IsActive: active}}, nil
}

func (f *fakePlaybackAPI) Play(ctx context.Context, deviceID string, opts *client.PlayOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playCalls++
	f.lastPlayDevice = deviceID
	f.lastPlay = opts
	return f.playErr
}

func (f *fakePlaybackAPI) counts() (transfers, polls, plays int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transferCalls, f.devicesCalls, f.playCalls
}

type fakeGate struct {
	mu      sync.Mutex
	unlocks int
}

func (g *fakeGate) Unlock() {
	g.mu.Lock()
	g.unlocks++
	g.mu.Unlock()
}

func (g *fakeGate) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.unlocks
}

// harness wires a coordinator to scripted fakes. The factory hands out a
// fresh endpoint per session so cleanup-then-replay can be exercised.
type harness struct {
	api  *fakePlaybackAPI
	gate *fakeGate
	c    *Coordinator

	mu      sync.Mutex
	scripts [][]core.EndpointEvent
	eps     []*fakeEndpoint
}

func readyScript(deviceID string) []core.EndpointEvent {
	return []core.EndpointEvent{{Kind: core.EndpointReady, DeviceID: deviceID}}
}

func newHarness(t *testing.T, opts Options, scripts ...[]core.EndpointEvent) *harness {
	t.Helper()
	if len(scripts) == 0 {
		scripts = [][]core.EndpointEvent{readyScript("dev_1")}
	}
	h := &harness{
		api:     &fakePlaybackAPI{deviceID: "dev_1"},
		gate:    &fakeGate{},
		scripts: scripts,
	}
	factory := func(name string, volume int) core.Endpoint {
		h.mu.Lock()
		defer h.mu.Unlock()
		ep := newFakeEndpoint(h.scripts...)
		h.eps = append(h.eps, ep)
		return ep
	}
	if opts.ConfirmInterval == 0 {
		opts.ConfirmInterval = 2 * time.Millisecond
	}
	if opts.ProgressInterval == 0 {
		opts.ProgressInterval = 5 * time.Millisecond
	}
	opts.Logger = zerolog.Nop()
	h.c = New(h.api, factory, h.gate, opts)
	t.Cleanup(h.c.Cleanup)
	return h
}

func (h *harness) endpoint() *fakeEndpoint {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.eps) == 0 {
		return nil
	}
	return h.eps[len(h.eps)-1]
}

func (h *harness) factoryCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.eps)
}

func testClip(entry string, window time.Duration) core.Clip {
	return core.Clip{
		EntryID:  entry,
		TrackURI: "spotify:track:" + entry,
		Start:    10 * time.Second,
		End:      10*time.Second + window,
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func TestPlayClipFullFlow(t *testing.T) {
	h := newHarness(t, Options{})
	clip := testClip("entry_1", 80*time.Millisecond)

	if err := h.c.PlayClip(clip); err != nil {
		t.Fatalf("PlayClip() error = %v", err)
	}
	if h.gate.count() != 1 {
		t.Errorf("gate unlocks = %d, want 1", h.gate.count())
	}

	// Priming resolves from the script, then activation runs to the play
	// command.
	waitFor(t, 2*time.Second, func() bool {
		_, _, plays := h.api.counts()
		return plays == 1
	}, "play command")

	h.api.mu.Lock()
	if h.api.lastPlayDevice != "dev_1" {
		t.Errorf("play device = %q, want dev_1", h.api.lastPlayDevice)
	}
	if h.api.lastPlay == nil || len(h.api.lastPlay.URIs) != 1 || h.api.lastPlay.URIs[0] != clip.TrackURI {
		t.Errorf("play uris = %+v, want [%s]", h.api.lastPlay, clip.TrackURI)
	}
	if h.api.lastPlay != nil && h.api.lastPlay.PositionMS != 10000 {
		t.Errorf("play position_ms = %d, want 10000", h.api.lastPlay.PositionMS)
	}
	h.api.mu.Unlock()

	// Command acceptance is not playback: still loading, not playing.
	st := h.c.Status()
	if !st.Loading {
		t.Error("Loading = false after play accepted, want true until observed")
	}
	if st.Playing {
		t.Error("Playing = true before any state observation")
	}

	// The endpoint reports the track audible; the wall clock anchors here.
	h.endpoint().state(clip.TrackURI, false)
	waitFor(t, 2*time.Second, func() bool {
		return h.c.Status().Playing
	}, "playing phase")

	st = h.c.Status()
	if st.Loading {
		t.Error("Loading = true after observed playback")
	}
	if st.Position < clip.Start || st.Position > clip.End {
		t.Errorf("Position = %v, want within [%v, %v]", st.Position, clip.Start, clip.End)
	}

	// The end timer pauses exactly once and freezes position at the end.
	waitFor(t, 2*time.Second, func() bool {
		return h.c.Status().Phase == core.PhasePaused
	}, "paused phase")
	if got := h.endpoint().pauseCount(); got != 1 {
		t.Errorf("pause commands = %d, want exactly 1", got)
	}
	if got := h.c.Status().Position; got != clip.End {
		t.Errorf("Position = %v, want %v (clip end)", got, clip.End)
	}

	// Nothing else fires after the window.
	time.Sleep(100 * time.Millisecond)
	if got := h.endpoint().pauseCount(); got != 1 {
		t.Errorf("pause commands after settle = %d, want 1", got)
	}
	if got := h.c.Status().Clip; got == nil || got.EntryID != "entry_1" {
		t.Errorf("owned clip = %+v, want entry_1 still owned", got)
	}
}

func TestPlayClipRejectsInvalidClip(t *testing.T) {
	h := newHarness(t, Options{})

	err := h.c.PlayClip(core.Clip{EntryID: "x", TrackURI: "spotify:track:x", Start: 5 * time.Second, End: 2 * time.Second})
	if err != core.ErrInvalidClip {
		t.Fatalf("PlayClip() error = %v, want ErrInvalidClip", err)
	}
	if h.gate.count() != 0 {
		t.Error("gate unlocked for an invalid clip")
	}
	if h.factoryCount() != 0 {
		t.Error("endpoint constructed for an invalid clip")
	}
}

func TestConfirmTimeoutLeavesSessionPrimed(t *testing.T) {
	h := newHarness(t, Options{})
	h.api.mu.Lock()
	h.api.activeFrom = -1 // the device never becomes active
	h.api.mu.Unlock()

	clip := testClip("entry_1", 100*time.Millisecond)
	if err := h.c.PlayClip(clip); err != nil {
		t.Fatalf("PlayClip() error = %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		st := h.c.Status()
		return st.LastFailure != nil
	}, "failure status")

	st := h.c.Status()
	if st.LastFailure.Reason != core.ReasonConfirmTimeout {
		t.Errorf("failure reason = %q, want confirm_timeout", st.LastFailure.Reason)
	}
	if st.Loading {
		t.Error("Loading = true after failure")
	}
	if !st.Ready {
		t.Error("Ready = false after confirm timeout, want session still primed")
	}

	transfers, polls, plays := h.api.counts()
	if transfers != 1 {
		t.Errorf("transfers = %d, want 1", transfers)
	}
	if polls != 8 {
		t.Errorf("device polls = %d, want 8", polls)
	}
	if plays != 0 {
		t.Errorf("play calls = %d, want 0 after confirm timeout", plays)
	}
}

func TestPrimeFailureThenRetry(t *testing.T) {
	h := newHarness(t, Options{},
		[]core.EndpointEvent{{Kind: core.EndpointAuthError, Message: "bad token"}},
		readyScript("dev_1"),
	)

	clip := testClip("entry_1", 100*time.Millisecond)
	if err := h.c.PlayClip(clip); err != nil {
		t.Fatalf("PlayClip() error = %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		st := h.c.Status()
		return st.NeedsReauth && !st.Loading
	}, "needs reauth after failed prime")

	st := h.c.Status()
	if st.LastFailure == nil || st.LastFailure.Reason != core.ReasonPrimeFailed {
		t.Errorf("LastFailure = %+v, want prime_failed", st.LastFailure)
	}
	if got := h.endpoint().connectCount(); got != 1 {
		t.Fatalf("connect calls = %d, want 1", got)
	}

	// No automatic retry: the next user action primes again.
	time.Sleep(20 * time.Millisecond)
	if got := h.endpoint().connectCount(); got != 1 {
		t.Fatalf("connect calls = %d after settle, want still 1 (no auto-retry)", got)
	}

	if err := h.c.PlayClip(testClip("entry_2", 100*time.Millisecond)); err != nil {
		t.Fatalf("second PlayClip() error = %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return h.endpoint().connectCount() == 2
	}, "second connect attempt")
	waitFor(t, 2*time.Second, func() bool {
		st := h.c.Status()
		return st.Ready && !st.NeedsReauth
	}, "reauth flag cleared by successful prime")
	waitFor(t, 2*time.Second, func() bool {
		_, _, plays := h.api.counts()
		return plays == 1
	}, "activation after recovered prime")

	if h.factoryCount() != 1 {
		t.Errorf("endpoint constructions = %d, want 1 per session", h.factoryCount())
	}
}

func TestSupersession(t *testing.T) {
	h := newHarness(t, Options{})
	clipA := testClip("entry_a", 250*time.Millisecond)
	clipB := testClip("entry_b", 80*time.Millisecond)

	if err := h.c.PlayClip(clipA); err != nil {
		t.Fatalf("PlayClip(a) error = %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		_, _, plays := h.api.counts()
		return plays == 1
	}, "first play command")
	h.endpoint().state(clipA.TrackURI, false)
	waitFor(t, 2*time.Second, func() bool {
		return h.c.Status().Playing
	}, "clip a playing")

	start := time.Now()
	if err := h.c.PlayClip(clipB); err != nil {
		t.Fatalf("PlayClip(b) error = %v", err)
	}

	// Supersession pauses the audible clip once, best-effort.
	waitFor(t, 2*time.Second, func() bool {
		return h.endpoint().pauseCount() == 1
	}, "supersession pause")

	st := h.c.Status()
	if st.Clip == nil || st.Clip.EntryID != "entry_b" {
		t.Fatalf("owned clip = %+v, want entry_b", st.Clip)
	}

	waitFor(t, 2*time.Second, func() bool {
		_, _, plays := h.api.counts()
		return plays == 2
	}, "second play command")

	// Stale events for clip a's track must not affect clip b.
	h.endpoint().state(clipA.TrackURI, true)
	h.endpoint().state(clipB.TrackURI, false)
	waitFor(t, 2*time.Second, func() bool {
		return h.c.Status().Playing
	}, "clip b playing")

	waitFor(t, 2*time.Second, func() bool {
		return h.c.Status().Phase == core.PhasePaused
	}, "clip b ended")
	if got := h.endpoint().pauseCount(); got != 2 {
		t.Errorf("pause commands = %d, want 2 (supersession + clip b end)", got)
	}

	// Clip a's end timer was canceled: wait past where it would have fired
	// and check no third pause arrives.
	if elapsed := time.Since(start); elapsed < 300*time.Millisecond {
		time.Sleep(300*time.Millisecond - elapsed)
	}
	if got := h.endpoint().pauseCount(); got != 2 {
		t.Errorf("pause commands after clip a's horizon = %d, want 2", got)
	}
}

func TestEndTimerIdempotentAgainstManualPause(t *testing.T) {
	h := newHarness(t, Options{})
	clip := testClip("entry_1", 120*time.Millisecond)

	if err := h.c.PlayClip(clip); err != nil {
		t.Fatalf("PlayClip() error = %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		_, _, plays := h.api.counts()
		return plays == 1
	}, "play command")
	h.endpoint().state(clip.TrackURI, false)
	waitFor(t, 2*time.Second, func() bool {
		return h.c.Status().Playing
	}, "playing phase")

	// Manual pause wins; the end timer must not add a second command.
	if err := h.c.PauseClip(context.Background()); err != nil {
		t.Fatalf("PauseClip() error = %v", err)
	}
	if got := h.c.Status().Phase; got != core.PhasePaused {
		t.Errorf("phase = %v, want paused", got)
	}
	pos := h.c.Status().Position
	if pos < clip.Start || pos > clip.End {
		t.Errorf("frozen position = %v, want within clip window", pos)
	}
	time.Sleep(10 * time.Millisecond)
	if got := h.c.Status().Position; got != pos {
		t.Errorf("position moved while paused: %v -> %v", pos, got)
	}

	time.Sleep(200 * time.Millisecond) // past the end timer's horizon
	if got := h.endpoint().pauseCount(); got != 1 {
		t.Errorf("pause commands = %d, want exactly 1", got)
	}

	// Pause after pause is a no-op.
	if err := h.c.PauseClip(context.Background()); err != nil {
		t.Fatalf("second PauseClip() error = %v", err)
	}
	if got := h.endpoint().pauseCount(); got != 1 {
		t.Errorf("pause commands after repeat = %d, want 1", got)
	}
}

func TestExternalPauseCancelsTimersWithoutCommand(t *testing.T) {
	h := newHarness(t, Options{})
	clip := testClip("entry_1", 100*time.Millisecond)

	if err := h.c.PlayClip(clip); err != nil {
		t.Fatalf("PlayClip() error = %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		_, _, plays := h.api.counts()
		return plays == 1
	}, "play command")

	// Events for other tracks never start the clip.
	h.endpoint().state("spotify:track:other", false)
	time.Sleep(20 * time.Millisecond)
	if st := h.c.Status(); st.Playing {
		t.Fatal("foreign track event started the clip")
	}

	h.endpoint().state(clip.TrackURI, false)
	waitFor(t, 2*time.Second, func() bool {
		return h.c.Status().Playing
	}, "playing phase")

	// A pause observed for another track is ignored too.
	h.endpoint().state("spotify:track:other", true)
	time.Sleep(20 * time.Millisecond)
	if st := h.c.Status(); !st.Playing {
		t.Fatal("foreign track pause stopped the clip")
	}

	// The user paused from another surface: reality wins, no command goes
	// out, and the end timer dies with the clip.
	h.endpoint().state(clip.TrackURI, true)
	waitFor(t, 2*time.Second, func() bool {
		return h.c.Status().Phase == core.PhasePaused
	}, "externally paused")

	time.Sleep(150 * time.Millisecond) // past the end timer's horizon
	if got := h.endpoint().pauseCount(); got != 0 {
		t.Errorf("pause commands = %d, want 0 for an external pause", got)
	}
}

func TestParkUntilReady(t *testing.T) {
	h := newHarness(t, Options{ParkUntilReady: true})
	clip := testClip("entry_1", 100*time.Millisecond)

	if err := h.c.PlayClip(clip); err != nil {
		t.Fatalf("PlayClip() error = %v", err)
	}

	// Priming resolves, but the first action stops there: the clip stays
	// owned and nothing activates.
	waitFor(t, 2*time.Second, func() bool {
		st := h.c.Status()
		return st.Ready && !st.Loading
	}, "primed and parked")

	time.Sleep(20 * time.Millisecond)
	transfers, _, plays := h.api.counts()
	if transfers != 0 || plays != 0 {
		t.Fatalf("activation ran on first action: transfers=%d plays=%d, want 0/0", transfers, plays)
	}
	st := h.c.Status()
	if st.Clip == nil || st.Clip.EntryID != "entry_1" {
		t.Fatalf("owned clip = %+v, want entry_1 parked", st.Clip)
	}

	// The second action finds the session primed and proceeds.
	if err := h.c.PlayClip(clip); err != nil {
		t.Fatalf("second PlayClip() error = %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		_, _, plays := h.api.counts()
		return plays == 1
	}, "activation on second action")

	if h.gate.count() != 2 {
		t.Errorf("gate unlocks = %d, want one per action", h.gate.count())
	}
	if h.factoryCount() != 1 {
		t.Errorf("endpoint constructions = %d, want 1", h.factoryCount())
	}
}

func TestConcurrentPlayCallsShareOnePrime(t *testing.T) {
	// An empty script leaves the prime unresolved until the test emits.
	h := newHarness(t, Options{}, []core.EndpointEvent{})
	clipA := testClip("entry_a", 100*time.Millisecond)
	clipB := testClip("entry_b", 100*time.Millisecond)

	if err := h.c.PlayClip(clipA); err != nil {
		t.Fatalf("PlayClip(a) error = %v", err)
	}
	if err := h.c.PlayClip(clipB); err != nil {
		t.Fatalf("PlayClip(b) error = %v", err)
	}

	if got := h.endpoint().connectCount(); got != 1 {
		t.Fatalf("connect calls = %d, want 1 shared attempt", got)
	}
	if got := h.factoryCount(); got != 1 {
		t.Fatalf("endpoint constructions = %d, want 1", got)
	}
	ep := h.endpoint()
	ep.mu.Lock()
	activations := ep.activateCalls
	ep.mu.Unlock()
	if activations != 1 {
		t.Errorf("activate calls = %d, want 1", activations)
	}

	// Resolve the shared attempt; only the latest clip activates.
	h.endpoint().emit(core.EndpointEvent{Kind: core.EndpointReady, DeviceID: "dev_1"})
	waitFor(t, 2*time.Second, func() bool {
		_, _, plays := h.api.counts()
		return plays == 1
	}, "activation for the owning clip")

	h.api.mu.Lock()
	got := ""
	if h.api.lastPlay != nil && len(h.api.lastPlay.URIs) == 1 {
		got = h.api.lastPlay.URIs[0]
	}
	h.api.mu.Unlock()
	if got != clipB.TrackURI {
		t.Errorf("played uri = %q, want %q (latest clip owns the session)", got, clipB.TrackURI)
	}

	transfers, _, _ := h.api.counts()
	if transfers != 1 {
		t.Errorf("transfers = %d, want 1 (superseded clip never activates)", transfers)
	}
}

func TestPlayRejectedFlags(t *testing.T) {
	tests := []struct {
		name            string
		status          int
		wantNeedsReauth bool
		wantPremium     bool
	}{
		{name: "expired token", status: 401, wantNeedsReauth: true, wantPremium: true},
		{name: "not premium", status: 403, wantNeedsReauth: false, wantPremium: false},
		{name: "server error", status: 502, wantNeedsReauth: false, wantPremium: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Options{})
			apiErr := &client.APIError{}
			apiErr.ErrorInfo.Status = tt.status
			apiErr.ErrorInfo.Message = "rejected"
			h.api.mu.Lock()
			h.api.playErr = apiErr
			h.api.mu.Unlock()

			if err := h.c.PlayClip(testClip("entry_1", 100*time.Millisecond)); err != nil {
				t.Fatalf("PlayClip() error = %v", err)
			}

			waitFor(t, 2*time.Second, func() bool {
				return h.c.Status().LastFailure != nil
			}, "failure status")

			st := h.c.Status()
			if st.LastFailure.Reason != core.ReasonPlayRejected {
				t.Errorf("reason = %q, want play_rejected", st.LastFailure.Reason)
			}
			if st.LastFailure.Status != tt.status {
				t.Errorf("status = %d, want %d", st.LastFailure.Status, tt.status)
			}
			if st.NeedsReauth != tt.wantNeedsReauth {
				t.Errorf("NeedsReauth = %v, want %v", st.NeedsReauth, tt.wantNeedsReauth)
			}
			if st.Premium != tt.wantPremium {
				t.Errorf("Premium = %v, want %v", st.Premium, tt.wantPremium)
			}
		})
	}
}

func TestTransferFailureStopsProtocol(t *testing.T) {
	h := newHarness(t, Options{})
	apiErr := &client.APIError{}
	apiErr.ErrorInfo.Status = 502
	apiErr.ErrorInfo.Message = "bad gateway"
	h.api.mu.Lock()
	h.api.transferErr = apiErr
	h.api.mu.Unlock()

	if err := h.c.PlayClip(testClip("entry_1", 100*time.Millisecond)); err != nil {
		t.Fatalf("PlayClip() error = %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return h.c.Status().LastFailure != nil
	}, "failure status")

	st := h.c.Status()
	if st.LastFailure.Reason != core.ReasonTransferFailed || st.LastFailure.Status != 502 {
		t.Errorf("LastFailure = %+v, want transfer_failed/502", st.LastFailure)
	}

	_, polls, plays := h.api.counts()
	if polls != 0 || plays != 0 {
		t.Errorf("later steps ran after transfer failure: polls=%d plays=%d", polls, plays)
	}
}

func TestTransferNotFoundIsSuccess(t *testing.T) {
	h := newHarness(t, Options{})
	apiErr := &client.APIError{}
	apiErr.ErrorInfo.Status = 404
	apiErr.ErrorInfo.Message = "Device not found"
	h.api.mu.Lock()
	h.api.transferErr = apiErr
	h.api.mu.Unlock()

	if err := h.c.PlayClip(testClip("entry_1", 100*time.Millisecond)); err != nil {
		t.Fatalf("PlayClip() error = %v", err)
	}

	// 404 on transfer is "already consistent": the protocol continues.
	waitFor(t, 2*time.Second, func() bool {
		_, _, plays := h.api.counts()
		return plays == 1
	}, "play command despite transfer 404")
}

func TestPauseClipWhenNothingPlays(t *testing.T) {
	h := newHarness(t, Options{})
	if err := h.c.PauseClip(context.Background()); err != nil {
		t.Fatalf("PauseClip() error = %v", err)
	}
	if h.factoryCount() != 0 {
		t.Error("pause constructed an endpoint")
	}
}

func TestCleanup(t *testing.T) {
	h := newHarness(t, Options{})
	clip := testClip("entry_1", 150*time.Millisecond)

	if err := h.c.PlayClip(clip); err != nil {
		t.Fatalf("PlayClip() error = %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		_, _, plays := h.api.counts()
		return plays == 1
	}, "play command")
	h.endpoint().state(clip.TrackURI, false)
	waitFor(t, 2*time.Second, func() bool {
		return h.c.Status().Playing
	}, "playing phase")

	first := h.endpoint()
	h.c.Cleanup()

	first.mu.Lock()
	closed := first.closed
	first.mu.Unlock()
	if !closed {
		t.Error("endpoint not disconnected by cleanup")
	}

	st := h.c.Status()
	if st.Phase != core.PhaseIdle || st.Clip != nil || st.Ready {
		t.Errorf("status after cleanup = %+v, want idle with no session", st)
	}

	// The dead clip's end timer must not issue anything.
	time.Sleep(200 * time.Millisecond)
	if got := first.pauseCount(); got != 0 {
		t.Errorf("pause commands after cleanup = %d, want 0", got)
	}

	// The coordinator is reusable: a new action builds a new session.
	if err := h.c.PlayClip(clip); err != nil {
		t.Fatalf("PlayClip() after cleanup error = %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		_, _, plays := h.api.counts()
		return plays == 2
	}, "activation in new session")
	if h.factoryCount() != 2 {
		t.Errorf("endpoint constructions = %d, want 2 (one per session)", h.factoryCount())
	}
}

func TestSubscribeObservesLifecycle(t *testing.T) {
	h := newHarness(t, Options{})
	ch := h.c.Subscribe()

	seen := make(map[core.Phase]bool)
	var seenLoading bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		for st := range ch {
			seen[st.Phase] = true
			if st.Loading {
				seenLoading = true
			}
		}
	}()

	clip := testClip("entry_1", 60*time.Millisecond)
	if err := h.c.PlayClip(clip); err != nil {
		t.Fatalf("PlayClip() error = %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		_, _, plays := h.api.counts()
		return plays == 1
	}, "play command")
	h.endpoint().state(clip.TrackURI, false)

	waitFor(t, 2*time.Second, func() bool {
		return h.c.Status().Phase == core.PhasePaused
	}, "clip end")

	// Let the subscriber drain, then close it out.
	time.Sleep(20 * time.Millisecond)
	h.c.Unsubscribe(ch)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("subscriber loop never exited after Unsubscribe")
	}

	if !seenLoading {
		t.Error("subscriber never saw a loading snapshot")
	}
	if !seen[core.PhasePlaying] {
		t.Error("subscriber never saw the playing phase")
	}
	if !seen[core.PhasePaused] {
		t.Error("subscriber never saw the paused phase")
	}
}
