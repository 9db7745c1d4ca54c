package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var pauseDevice string

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause playback",
	Long: `Pause playback on the active device via the Web API. A running
'refrain play' observes the pause within a poll interval and stops
following the clip.`,
	RunE: runPause,
}

func init() {
	pauseCmd.Flags().StringVarP(&pauseDevice, "device", "d", "", "pause a specific device instead of the active one")
	rootCmd.AddCommand(pauseCmd)
}

func runPause(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	spotifyClient, err := getSpotifyClient()
	if err != nil {
		return err
	}

	deviceID := ""
	if pauseDevice != "" {
		devices, err := spotifyClient.GetDevices(ctx)
		if err != nil {
			return fmt.Errorf("failed to get devices: %w", err)
		}
		for _, d := range devices {
			if d.ID == pauseDevice || d.Name == pauseDevice {
				deviceID = d.ID
				break
			}
		}
		if deviceID == "" {
			return fmt.Errorf("device %q not found", pauseDevice)
		}
	}

	if err := spotifyClient.Pause(ctx, deviceID); err != nil {
		return fmt.Errorf("failed to pause: %w", err)
	}

	if JSONOutput() {
		_ = json.NewEncoder(os.Stdout).Encode(map[string]string{"status": "paused"})
	} else {
		fmt.Println("⏸ Paused")
	}

	return nil
}
