package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/inkdrift/refrain/internal/core"
	"github.com/inkdrift/refrain/internal/spotify/client"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current playback status",
	Long: `Shows the current Spotify playback state. When the playing track has
saved clips, the one whose window contains the playhead is shown too.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	spotifyClient, err := getSpotifyClient()
	if err != nil {
		return err
	}

	state, err := spotifyClient.GetPlaybackState(ctx)
	if err != nil {
		return fmt.Errorf("failed to get playback state: %w", err)
	}

	if state == nil || state.Item == nil {
		if JSONOutput() {
			return json.NewEncoder(os.Stdout).Encode(map[string]interface{}{
				"playing": false,
			})
		}
		fmt.Println("No active playback")
		return nil
	}

	clip := findContainingClip(state)

	if JSONOutput() {
		return outputStatusJSON(state, clip)
	}
	return outputStatusText(state, clip)
}

// findContainingClip returns the saved clip whose window contains the
// current playhead, or nil. Library errors are not fatal for status output.
func findContainingClip(state *client.PlaybackState) *core.Clip {
	store, err := openLibrary()
	if err != nil {
		return nil
	}
	defer store.Close()

	clips, err := store.ClipsFor(state.Item.URI)
	if err != nil {
		return nil
	}

	pos := time.Duration(state.ProgressMS) * time.Millisecond
	for _, c := range clips {
		if pos >= c.Start && pos < c.End {
			clip := c
			return &clip
		}
	}
	return nil
}

func outputStatusJSON(state *client.PlaybackState, clip *core.Clip) error {
	item := map[string]interface{}{
		"playing":  state.IsPlaying,
		"progress": (time.Duration(state.ProgressMS) * time.Millisecond).String(),
		"track": map[string]interface{}{
			"title":    state.Item.Name,
			"artist":   state.Item.ArtistNames(),
			"album":    state.Item.Album.Name,
			"duration": (time.Duration(state.Item.DurationMS) * time.Millisecond).String(),
			"uri":      state.Item.URI,
		},
		"device": map[string]interface{}{
			"id":        state.Device.ID,
			"name":      state.Device.Name,
			"type":      state.Device.Type,
			"is_active": state.Device.IsActive,
		},
	}
	if state.Device.VolumePercent != nil {
		item["volume"] = *state.Device.VolumePercent
	}
	if clip != nil {
		item["clip"] = map[string]interface{}{
			"entry_id": clip.EntryID,
			"start":    clip.Start.String(),
			"end":      clip.End.String(),
		}
	}
	return json.NewEncoder(os.Stdout).Encode(item)
}

func outputStatusText(state *client.PlaybackState, clip *core.Clip) error {
	playIcon := "▶"
	if !state.IsPlaying {
		playIcon = "⏸"
	}

	progress := time.Duration(state.ProgressMS) * time.Millisecond
	duration := time.Duration(state.Item.DurationMS) * time.Millisecond

	fmt.Printf("%s %s\n", playIcon, state.Item.Name)
	fmt.Printf("  %s - %s\n", state.Item.ArtistNames(), state.Item.Album.Name)

	percent := 0.0
	if duration > 0 {
		percent = float64(progress) / float64(duration) * 100
	}
	fmt.Printf("  %s %s / %s\n",
		formatProgressBar(percent, 30),
		formatDuration(progress),
		formatDuration(duration))

	if clip != nil {
		fmt.Printf("  Inside clip %s (%s)\n", clip.EntryID, formatWindow(clip.Start, clip.End))
	}

	if state.Device.Name != "" {
		fmt.Printf("  Device: %s", state.Device.Name)
		if state.Device.VolumePercent != nil {
			fmt.Printf(" (%d%%)", *state.Device.VolumePercent)
		}
		fmt.Println()
	}

	return nil
}

func formatProgressBar(percent float64, width int) string {
	filled := int(percent / 100 * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}

	bar := strings.Repeat("━", filled) + strings.Repeat("─", width-filled)
	return bar
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	m := d / time.Minute
	s := (d % time.Minute) / time.Second
	return fmt.Sprintf("%d:%02d", m, s)
}
