// Package tui implements the interactive dashboard. It runs an in-process
// playback session and polls its status on a tick, alongside the clip
// library and the Connect device list.
package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"github.com/inkdrift/refrain/internal/coordinator"
	"github.com/inkdrift/refrain/internal/core"
	"github.com/inkdrift/refrain/internal/library"
	"github.com/inkdrift/refrain/internal/spotify/client"
	"github.com/inkdrift/refrain/internal/spotify/player"
	"github.com/inkdrift/refrain/internal/tui/components"
	"github.com/inkdrift/refrain/internal/tui/styles"
	"github.com/inkdrift/refrain/internal/unlock"
)

// Panel represents which panel is focused
type Panel int

const (
	PanelNowPlaying Panel = iota
	PanelClips
	PanelDevices
	PanelHistory
)

// Options configures the dashboard.
type Options struct {
	Client         *client.Client
	Store          *library.Store
	Refresh        time.Duration
	DeviceName     string
	Volume         int
	ParkUntilReady bool
	Theme          string
	Logger         zerolog.Logger
}

// App holds the pieces the dashboard drives. The coordinator is swapped
// when the session moves to another device, so access goes through the
// accessor.
type App struct {
	client  *client.Client
	store   *library.Store
	gate    coordinator.Gate
	log     zerolog.Logger
	refresh time.Duration
	volume  int
	park    bool

	mu         sync.Mutex
	coord      *coordinator.Coordinator
	deviceName string
}

func newApp(opts Options) *App {
	a := &App{
		client:     opts.Client,
		store:      opts.Store,
		gate:       unlock.NewGate(opts.Logger),
		log:        opts.Logger,
		refresh:    opts.Refresh,
		volume:     opts.Volume,
		park:       opts.ParkUntilReady,
		deviceName: opts.DeviceName,
	}
	a.coord = a.buildCoordinator(opts.DeviceName)
	return a
}

func (a *App) buildCoordinator(deviceName string) *coordinator.Coordinator {
	factory := func(name string, volume int) core.Endpoint {
		return player.New(a.client, player.Options{
			Name:   name,
			Volume: volume,
			Logger: a.log,
		})
	}
	return coordinator.New(a.client, factory, a.gate, coordinator.Options{
		DeviceName:     deviceName,
		Volume:         a.volume,
		ParkUntilReady: a.park,
		Logger:         a.log,
	})
}

func (a *App) coordinator() *coordinator.Coordinator {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.coord
}

func (a *App) device() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.deviceName
}

// switchDevice tears down the current session and starts a fresh one bound
// to the named device. The next play action primes it.
func (a *App) switchDevice(name string) {
	a.mu.Lock()
	old := a.coord
	a.deviceName = name
	a.coord = a.buildCoordinator(name)
	a.mu.Unlock()

	if old != nil {
		old.Cleanup()
	}
}

// Model is the main TUI model
type Model struct {
	app          *App
	width        int
	height       int
	focusedPanel Panel

	// State
	status  core.Status
	entries []library.Entry
	devices []client.Device
	history []components.HistoryEntry

	// Components
	nowPlaying  *components.NowPlaying
	clipsView   *components.Clips
	devicesView *components.Devices
	historyView *components.History

	// Overlays
	showHelp bool

	// Transient status bar content
	lastError    error
	errorExpiry  time.Time
	notice       string
	noticeExpiry time.Time

	// Quit flag
	quitting bool
}

// NewModel creates a new TUI model
func NewModel(app *App) Model {
	return Model{
		app:          app,
		focusedPanel: PanelClips,
		status:       app.coordinator().Status(),
		nowPlaying:   components.NewNowPlaying(),
		clipsView:    components.NewClips(),
		devicesView:  components.NewDevices(),
		historyView:  components.NewHistory(),
		history:      make([]components.HistoryEntry, 0),
	}
}

// Messages
type tickMsg time.Time
type clipsMsg []library.Entry
type devicesMsg []client.Device
type errMsg error
type noticeMsg string

// Commands
func (m Model) tick() tea.Cmd {
	return tea.Tick(m.app.refresh, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) fetchClips() tea.Cmd {
	store := m.app.store
	return func() tea.Msg {
		entries, err := store.List()
		if err != nil {
			return errMsg(err)
		}
		return clipsMsg(entries)
	}
}

func (m Model) fetchDevices() tea.Cmd {
	c := m.app.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		devices, err := c.GetDevices(ctx)
		if err != nil {
			return errMsg(err)
		}
		return devicesMsg(devices)
	}
}

func (m Model) playEntry(entry library.Entry) tea.Cmd {
	app := m.app
	return func() tea.Msg {
		if err := app.coordinator().PlayClip(entry.Clip()); err != nil {
			return errMsg(err)
		}
		return nil
	}
}

func (m Model) pauseClip() tea.Cmd {
	app := m.app
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := app.coordinator().PauseClip(ctx); err != nil {
			return errMsg(err)
		}
		return nil
	}
}

func (m Model) copyTrackURI(uri string) tea.Cmd {
	return func() tea.Msg {
		if err := clipboard.WriteAll(uri); err != nil {
			return errMsg(fmt.Errorf("copy failed: %w", err))
		}
		return noticeMsg("Copied " + uri)
	}
}

func (m Model) useDevice(device client.Device) tea.Cmd {
	app := m.app
	return func() tea.Msg {
		app.switchDevice(device.Name)
		return noticeMsg("Session moved to " + device.Name)
	}
}

func (m Model) saveDefaultDevice(device client.Device) tea.Cmd {
	return func() tea.Msg {
		if err := savePlaybackDevice(device.Name); err != nil {
			return errMsg(err)
		}
		return noticeMsg("Saved " + device.Name + " as playback device")
	}
}

// savePlaybackDevice persists the playback device name to the config file.
func savePlaybackDevice(deviceName string) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home dir: %w", err)
	}

	configPath := filepath.Join(home, ".refrainrc")

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			data = []byte{}
		} else {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	var rawConfig map[string]interface{}
	if len(data) > 0 {
		if _, err := toml.Decode(string(data), &rawConfig); err != nil {
			return fmt.Errorf("failed to parse config: %w", err)
		}
	} else {
		rawConfig = make(map[string]interface{})
	}

	playback, ok := rawConfig["playback"].(map[string]interface{})
	if !ok {
		playback = make(map[string]interface{})
		rawConfig["playback"] = playback
	}
	playback["device"] = deviceName

	f, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	defer f.Close()

	_, _ = fmt.Fprintln(f, "# Refrain Configuration")
	_, _ = fmt.Fprintln(f, "# https://github.com/inkdrift/refrain")
	_, _ = fmt.Fprintln(f, "")

	encoder := toml.NewEncoder(f)
	encoder.Indent = "  "
	return encoder.Encode(rawConfig)
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.tick(),
		m.fetchClips(),
		m.fetchDevices(),
	)
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		prev := m.status
		m.status = m.app.coordinator().Status()
		m.observeTransition(prev, m.status)

		now := time.Now()
		if m.lastError != nil && now.After(m.errorExpiry) {
			m.lastError = nil
		}
		if m.notice != "" && now.After(m.noticeExpiry) {
			m.notice = ""
		}
		return m, m.tick()

	case clipsMsg:
		m.entries = msg
		return m, nil

	case devicesMsg:
		m.devices = msg
		return m, nil

	case errMsg:
		m.lastError = msg
		m.errorExpiry = time.Now().Add(5 * time.Second)
		return m, nil

	case noticeMsg:
		m.notice = string(msg)
		m.noticeExpiry = time.Now().Add(5 * time.Second)
		return m, nil
	}

	return m, nil
}

// observeTransition records terminal clip transitions in the session
// history. Ticks bound the resolution: transitions that both start and end
// between two polls are not observed.
func (m *Model) observeTransition(prev, curr core.Status) {
	if curr.HasClip() && curr.LastFailure != nil && !sameFailure(prev.LastFailure, curr.LastFailure) {
		m.addHistory(curr.Clip.EntryID, components.OutcomeFailed)
		return
	}

	if prev.Phase == core.PhasePlaying && curr.Phase == core.PhasePaused && curr.HasClip() {
		outcome := components.OutcomePaused
		if curr.Position >= curr.Clip.End {
			outcome = components.OutcomeFinished
		}
		m.addHistory(curr.Clip.EntryID, outcome)
	}
}

func sameFailure(a, b *core.Failure) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (m *Model) addHistory(entryID, outcome string) {
	he := components.HistoryEntry{
		EntryID:  entryID,
		PlayedAt: time.Now(),
		Outcome:  outcome,
	}
	if entry := m.entryFor(entryID); entry != nil {
		he.Title = entry.Title
		he.Artist = entry.Artist
	}

	// Newest first, bounded.
	m.history = append([]components.HistoryEntry{he}, m.history...)
	if len(m.history) > 50 {
		m.history = m.history[:50]
	}
}

// entryFor finds the library entry behind a clip, for display metadata.
func (m *Model) entryFor(entryID string) *library.Entry {
	for i := range m.entries {
		if m.entries[i].EntryID == entryID {
			return &m.entries[i]
		}
	}
	return nil
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Global keys (always work)
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	}

	// Help overlay
	if m.showHelp {
		switch msg.String() {
		case "?", "esc":
			m.showHelp = false
		}
		return m, nil
	}

	// Normal mode
	switch msg.String() {
	case "q":
		m.quitting = true
		return m, tea.Quit

	case "?":
		m.showHelp = true
		return m, nil

	case "tab":
		m.focusedPanel = (m.focusedPanel + 1) % 4
		return m, nil

	case "shift+tab":
		m.focusedPanel = (m.focusedPanel + 3) % 4
		return m, nil

	case " ":
		return m, m.pauseClip()

	case "r":
		return m, tea.Batch(m.fetchClips(), m.fetchDevices())

	case "c":
		if uri := m.copySource(); uri != "" {
			return m, m.copyTrackURI(uri)
		}
		return m, nil
	}

	// Panel-specific keys
	switch m.focusedPanel {
	case PanelClips:
		switch msg.String() {
		case "j", "down":
			m.clipsView.SelectNext()
		case "k", "up":
			m.clipsView.SelectPrev()
		case "enter":
			if i := m.clipsView.Selected(); i >= 0 && i < len(m.entries) {
				return m, m.playEntry(m.entries[i])
			}
		}
	case PanelDevices:
		switch msg.String() {
		case "j", "down":
			m.devicesView.SelectNext()
		case "k", "up":
			m.devicesView.SelectPrev()
		case "enter":
			if i := m.devicesView.Selected(); i >= 0 && i < len(m.devices) {
				return m, m.useDevice(m.devices[i])
			}
		case "d":
			if i := m.devicesView.Selected(); i >= 0 && i < len(m.devices) {
				return m, m.saveDefaultDevice(m.devices[i])
			}
		}
	}

	return m, nil
}

// copySource picks the track URI the copy key applies to: the selection in
// the clips panel when it is focused, the owned clip otherwise.
func (m Model) copySource() string {
	if m.focusedPanel == PanelClips {
		if i := m.clipsView.Selected(); i >= 0 && i < len(m.entries) {
			return m.entries[i].TrackURI
		}
	}
	if m.status.HasClip() {
		return m.status.Clip.TrackURI
	}
	return ""
}

// View renders the UI
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	if m.width == 0 {
		return "Loading..."
	}

	if m.showHelp {
		return m.renderHelp()
	}

	// Main layout: two columns
	// Left: Now Playing (top), Clips (bottom)
	// Right: Devices (top), History (bottom)

	leftWidth := m.width * 60 / 100
	rightWidth := m.width - leftWidth - 2
	topHeight := m.height * 40 / 100
	bottomHeight := m.height - topHeight - 2

	playingID := ""
	if m.status.HasClip() && m.status.Phase.Active() {
		playingID = m.status.Clip.EntryID
	}

	var current *library.Entry
	if m.status.HasClip() {
		current = m.entryFor(m.status.Clip.EntryID)
	}

	nowPlaying := m.nowPlaying.Render(m.status, current, leftWidth-2, topHeight-2, m.focusedPanel == PanelNowPlaying)
	clipsView := m.clipsView.Render(m.entries, leftWidth-2, bottomHeight-2, m.focusedPanel == PanelClips, playingID)
	devicesView := m.devicesView.Render(m.devices, rightWidth-2, topHeight-2, m.focusedPanel == PanelDevices, m.app.device())
	historyView := m.historyView.Render(m.history, rightWidth-2, bottomHeight-2, m.focusedPanel == PanelHistory)

	leftCol := lipgloss.JoinVertical(lipgloss.Left, nowPlaying, clipsView)
	rightCol := lipgloss.JoinVertical(lipgloss.Left, devicesView, historyView)

	main := lipgloss.JoinHorizontal(lipgloss.Top, leftCol, rightCol)

	statusBar := m.renderStatusBar()

	return lipgloss.JoinVertical(lipgloss.Left, main, statusBar)
}

func (m Model) renderStatusBar() string {
	status := styles.Dim.Render("q:quit  ?:help  enter:play  space:pause  c:copy uri  r:refresh  tab:switch panel")

	if m.notice != "" {
		status = styles.Playing.Render(m.notice)
	}
	if m.lastError != nil {
		status = styles.Alert.Render("Error: " + m.lastError.Error())
	}

	return lipgloss.NewStyle().
		Width(m.width).
		Padding(0, 1).
		Render(status)
}

func (m Model) renderHelp() string {
	title := "Refrain Dashboard - Keyboard Shortcuts"
	divider := strings.Repeat("═", len(title))

	help := `
  ` + title + `
  ` + divider + `

  Global
  ──────
  q, Ctrl+C    Quit
  ?            Toggle help
  Tab          Next panel
  Shift+Tab    Previous panel
  Space        Pause clip
  c            Copy track URI
  r            Refresh clips and devices

  Clips Panel
  ───────────
  j/↓          Select next
  k/↑          Select previous
  Enter        Play clip (replaces the current one)

  Devices Panel
  ─────────────
  j/↓          Select next
  k/↑          Select previous
  Enter        Move the session to this device
  d            Set as playback device (★)

  Press ? or Esc to close
`

	return lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Render(styles.BorderStyle.Render(help))
}

// Run starts the dashboard and blocks until it exits. The playback session
// is torn down on the way out.
func Run(opts Options) error {
	if opts.Refresh <= 0 {
		opts.Refresh = 500 * time.Millisecond
	}
	styles.UseTheme(opts.Theme)

	app := newApp(opts)
	defer func() {
		app.coordinator().Cleanup()
	}()

	model := NewModel(app)
	p := tea.NewProgram(model, tea.WithAltScreen())

	_, err := p.Run()
	return err
}
