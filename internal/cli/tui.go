package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/inkdrift/refrain/internal/logging"
	"github.com/inkdrift/refrain/internal/tui"
)

var (
	tuiRefresh int
	tuiDevice  string
)

var tuiCmd = &cobra.Command{
	Use:     "ui",
	Aliases: []string{"tui", "dashboard"},
	Short:   "Launch the interactive dashboard",
	Long: `Launch the interactive terminal dashboard.

The dashboard runs its own playback session and provides a live view with:
  • Now Playing - the owned clip, its phase and progress
  • Clips - the saved clip library
  • Devices - available Connect devices
  • History - clips played this session

Keyboard shortcuts:
  q, Ctrl+C    Quit
  ?            Help
  Enter        Play selected clip
  Space        Pause clip
  c            Copy track URI
  Tab          Switch panel`,
	RunE: runTUI,
}

func init() {
	tuiCmd.Flags().IntVar(&tuiRefresh, "refresh", 0, "refresh interval in milliseconds (default from config)")
	tuiCmd.Flags().StringVarP(&tuiDevice, "device", "d", "", "play on a specific device (overrides playback.device)")
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, args []string) error {
	spotifyClient, err := getSpotifyClient()
	if err != nil {
		return err
	}

	store, err := openLibrary()
	if err != nil {
		return fmt.Errorf("failed to open clip library: %w", err)
	}
	defer store.Close()

	refresh := cfg.TUI.RefreshInterval
	if tuiRefresh > 0 {
		refresh = tuiRefresh
	}

	deviceName := cfg.Playback.Device
	if tuiDevice != "" {
		deviceName = tuiDevice
	}

	// Terminal output belongs to the dashboard; log to a file or not at all.
	tuiLog := logging.Nop()
	if cfg.Log.File != "" {
		tuiLog = logging.File(cfg.Log.Level, cfg.Log.File)
	}

	return tui.Run(tui.Options{
		Client:         spotifyClient,
		Store:          store,
		Refresh:        time.Duration(refresh) * time.Millisecond,
		DeviceName:     deviceName,
		Volume:         cfg.Playback.Volume,
		ParkUntilReady: cfg.Playback.ParkUntilReady,
		Theme:          cfg.TUI.Theme,
		Logger:         tuiLog,
	})
}
