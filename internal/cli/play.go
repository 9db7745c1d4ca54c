package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/inkdrift/refrain/internal/coordinator"
	"github.com/inkdrift/refrain/internal/core"
	"github.com/inkdrift/refrain/internal/library"
	"github.com/inkdrift/refrain/internal/spotify/player"
	"github.com/inkdrift/refrain/internal/unlock"
	"github.com/inkdrift/refrain/internal/wizard"
)

var (
	playDevice  string
	playVolume  int
	playTimeout time.Duration
)

var playCmd = &cobra.Command{
	Use:   "play [entry-id]",
	Short: "Play a saved clip",
	Long: `Play a saved clip on the configured Spotify Connect device. The
command follows playback and exits when the clip window has elapsed, when
playback is paused from elsewhere, or when the attempt fails.

Unique entry id prefixes work. Without an argument, a picker shows the
saved clips.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPlay,
}

func init() {
	playCmd.Flags().StringVarP(&playDevice, "device", "d", "", "play on a specific device (overrides playback.device)")
	playCmd.Flags().IntVar(&playVolume, "volume", -1, "endpoint volume (overrides playback.volume)")
	playCmd.Flags().DurationVar(&playTimeout, "timeout", 2*time.Minute, "give up if the clip has not finished after this long")
	rootCmd.AddCommand(playCmd)
}

func runPlay(cmd *cobra.Command, args []string) error {
	store, err := openLibrary()
	if err != nil {
		return fmt.Errorf("failed to open clip library: %w", err)
	}
	defer store.Close()

	entry, err := pickEntry(store, args)
	if err != nil {
		return err
	}
	if entry == nil {
		return nil
	}

	spotifyClient, err := getSpotifyClient()
	if err != nil {
		return err
	}

	deviceName := cfg.Playback.Device
	if playDevice != "" {
		deviceName = playDevice
	}
	volume := cfg.Playback.Volume
	if playVolume >= 0 {
		volume = playVolume
	}

	factory := func(name string, volume int) core.Endpoint {
		return player.New(spotifyClient, player.Options{
			Name:   name,
			Volume: volume,
			Logger: log,
		})
	}

	coord := coordinator.New(spotifyClient, factory, unlock.NewGate(log), coordinator.Options{
		DeviceName:     deviceName,
		Volume:         volume,
		ParkUntilReady: cfg.Playback.ParkUntilReady,
		Logger:         log,
	})
	defer coord.Cleanup()

	updates := coord.Subscribe()
	defer coord.Unsubscribe(updates)

	clip := entry.Clip()
	if err := coord.PlayClip(clip); err != nil {
		return fmt.Errorf("failed to start clip: %w", err)
	}

	if !JSONOutput() {
		name := entry.Title
		if name == "" {
			name = entry.TrackURI
		}
		fmt.Printf("Playing clip %s: %s (%s)\n", entry.EntryID, name, formatWindow(clip.Start, clip.End))
	}

	return followClip(coord, updates, clip)
}

// pickEntry resolves the requested entry, or prompts with the clip picker
// when no argument was given. A nil entry with nil error means the picker
// was cancelled.
func pickEntry(store *library.Store, args []string) (*library.Entry, error) {
	if len(args) > 0 {
		entry, err := store.Resolve(args[0])
		if err != nil {
			return nil, err
		}
		return &entry, nil
	}

	entries, err := store.List()
	if err != nil {
		return nil, fmt.Errorf("failed to list clips: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no clips saved. Add one with 'refrain clip add'")
	}
	if !wizard.IsTerminal() {
		return nil, fmt.Errorf("no entry id given")
	}

	return wizard.RunClipPicker(entries)
}

// followClip tracks coordinator status until the clip reaches a terminal
// state. Subscription updates wake the loop; the authoritative snapshot is
// always re-read, so a dropped update cannot wedge it.
func followClip(coord *coordinator.Coordinator, updates <-chan core.Status, clip core.Clip) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	deadline := time.NewTimer(playTimeout)
	defer deadline.Stop()

	var (
		sawPlaying bool
		lastLine   int
		lastPhase  = core.Phase(-1)
	)

	for {
		select {
		case <-sigCh:
			clearProgress(lastLine)
			if !JSONOutput() {
				fmt.Println("Interrupted")
			}
			return nil

		case <-deadline.C:
			clearProgress(lastLine)
			return fmt.Errorf("gave up after %s", playTimeout)

		case <-updates:
		case <-ticker.C:
		}

		st := coord.Status()

		if JSONOutput() {
			if st.Phase != lastPhase {
				lastPhase = st.Phase
				enc := json.NewEncoder(os.Stdout)
				_ = enc.Encode(st)
			}
		} else {
			lastLine = renderProgress(st, clip, lastLine)
		}

		if st.Playing {
			sawPlaying = true
		}

		if st.LastFailure != nil {
			clearProgress(lastLine)
			return failureError(st)
		}

		switch st.Phase {
		case core.PhasePaused:
			clearProgress(lastLine)
			if !JSONOutput() {
				if st.Position >= clip.End {
					fmt.Println("Clip finished")
				} else {
					fmt.Printf("Paused at %s\n", formatDuration(st.Position))
				}
			}
			return nil

		case core.PhaseIdle:
			// A parked play request rests here once the session is ready.
			if !sawPlaying && !st.Initializing && !st.Loading && st.HasClip() {
				clearProgress(lastLine)
				if !JSONOutput() {
					fmt.Println("Session primed; run play again to start the clip.")
				}
				return nil
			}
		}
	}
}

// renderProgress draws the in-place progress line and returns its width.
func renderProgress(st core.Status, clip core.Clip, lastLine int) int {
	var line string
	switch {
	case st.Initializing:
		line = "Connecting to Spotify..."
	case st.Loading:
		line = "Starting playback..."
	case st.Playing:
		bar := FormatProgress(
			int((st.Position - clip.Start).Milliseconds()),
			int(clip.Window().Milliseconds()),
			24,
		)
		line = fmt.Sprintf("▶ %s %s / %s", bar, formatDuration(st.Position), formatDuration(clip.End))
	default:
		return lastLine
	}

	pad := ""
	if n := lastLine - len(line); n > 0 {
		pad = fmt.Sprintf("%*s", n, "")
	}
	fmt.Printf("\r%s%s", line, pad)
	return len(line)
}

// clearProgress erases the in-place progress line.
func clearProgress(width int) {
	if width > 0 {
		fmt.Printf("\r%*s\r", width, "")
	}
}

// failureError maps a failed attempt to a command error with a hint.
func failureError(st core.Status) error {
	f := st.LastFailure
	switch f.Reason {
	case core.ReasonPrimeFailed:
		if st.NeedsReauth {
			return fmt.Errorf("session setup failed: reauthentication required. Run 'refrain auth login'")
		}
		if !st.Premium {
			return fmt.Errorf("session setup failed: clip playback requires Spotify Premium")
		}
		return fmt.Errorf("session setup failed")
	case core.ReasonTransferFailed:
		return fmt.Errorf("could not transfer playback to the device (status %d)", f.Status)
	case core.ReasonConfirmTimeout:
		return fmt.Errorf("device did not become active in time. Make sure Spotify is open on it")
	case core.ReasonPlayRejected:
		if st.NeedsReauth {
			return fmt.Errorf("play rejected: reauthentication required. Run 'refrain auth login'")
		}
		if !st.Premium {
			return fmt.Errorf("play rejected: clip playback requires Spotify Premium")
		}
		return fmt.Errorf("play rejected by Spotify (status %d)", f.Status)
	default:
		return fmt.Errorf("clip playback failed: %s", f.Reason)
	}
}
