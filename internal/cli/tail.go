package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/inkdrift/refrain/internal/tail"
)

var (
	tailNoEmoji   bool
	tailTimestamp bool
	tailFormat    string
	tailInterval  time.Duration
)

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Follow playback changes in real-time",
	Long: `Watch for playback state changes and print them as they happen.

Events tracked:
  - Track changes (new song started)
  - Pause/Resume
  - The playhead entering or leaving a saved clip window
  - Volume changes
  - Device changes`,
	RunE: runTail,
}

func init() {
	tailCmd.Flags().BoolVar(&tailNoEmoji, "no-emoji", false, "disable emoji output")
	tailCmd.Flags().BoolVarP(&tailTimestamp, "timestamp", "t", false, "show timestamps")
	tailCmd.Flags().StringVarP(&tailFormat, "format", "f", "", "custom format template")
	tailCmd.Flags().DurationVarP(&tailInterval, "interval", "i", 0, "poll interval (default: tail.interval from config)")

	rootCmd.AddCommand(tailCmd)
}

func runTail(cmd *cobra.Command, args []string) error {
	spotifyClient, err := getSpotifyClient()
	if err != nil {
		return err
	}

	// Clip window events need the library; tailing still works without it.
	var clips tail.ClipIndex
	store, err := openLibrary()
	if err == nil {
		defer store.Close()
		clips = store
	} else if Verbose() {
		fmt.Fprintf(os.Stderr, "clip library unavailable: %v\n", err)
	}

	interval := tailInterval
	if interval == 0 {
		interval = time.Duration(cfg.Tail.Interval) * time.Millisecond
	}

	// Create formatter
	formatter := tail.NewFormatter(
		tail.WithEmoji(!tailNoEmoji),
		tail.WithTimestamp(tailTimestamp),
		tail.WithTemplate(tailFormat),
	)

	// Handle Ctrl+C gracefully
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	// Show the current song on startup
	showInitialState(ctx, spotifyClient, formatter)

	// Create watcher
	watcher := tail.NewWatcher(spotifyClient, clips, interval)

	// Start watching in background
	errCh := make(chan error, 1)
	go func() {
		errCh <- watcher.Start(ctx)
	}()

	// Print events as they arrive
	for {
		select {
		case event, ok := <-watcher.Events():
			if !ok {
				return nil
			}
			fmt.Println(formatter.Format(event))

		case err := <-errCh:
			if err == context.Canceled {
				return nil
			}
			return err
		}
	}
}

// showInitialState displays the current song on startup.
func showInitialState(ctx context.Context, source tail.StateSource, formatter *tail.Formatter) {
	state, err := source.GetPlaybackState(ctx)
	if err == nil && state != nil && state.Item != nil {
		event := tail.Event{
			Type:      tail.EventTrackChange,
			Timestamp: time.Now(),
			Current:   state,
		}
		fmt.Println(formatter.Format(event))
	}
}
