package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/inkdrift/refrain/internal/spotify/client"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List available playback devices",
	Long: `Lists the Spotify Connect devices visible to your account. The device
configured as playback.device is marked with an asterisk.`,
	RunE: runDevices,
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}

func runDevices(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	spotifyClient, err := getSpotifyClient()
	if err != nil {
		return err
	}

	devices, err := spotifyClient.GetDevices(ctx)
	if err != nil {
		return fmt.Errorf("failed to get devices: %w", err)
	}

	if len(devices) == 0 {
		if JSONOutput() {
			return json.NewEncoder(os.Stdout).Encode([]interface{}{})
		}
		fmt.Println("No devices found. Make sure Spotify is open on at least one device.")
		return nil
	}

	if JSONOutput() {
		return outputDevicesJSON(devices)
	}
	return outputDevicesTable(devices)
}

func outputDevicesJSON(devices []client.Device) error {
	output := make([]map[string]interface{}, 0, len(devices))

	for _, d := range devices {
		item := map[string]interface{}{
			"id":        d.ID,
			"name":      d.Name,
			"type":      d.Type,
			"is_active": d.IsActive,
			"default":   isConfiguredDevice(d),
		}
		if d.VolumePercent != nil {
			item["volume"] = *d.VolumePercent
		}
		output = append(output, item)
	}

	return json.NewEncoder(os.Stdout).Encode(output)
}

func outputDevicesTable(devices []client.Device) error {
	table := NewTable("", "NAME", "TYPE", "VOLUME", "ID")
	for _, d := range devices {
		marker := " " + StatusIcon(d.IsActive)
		if isConfiguredDevice(d) {
			marker = "*" + StatusIcon(d.IsActive)
		}

		volume := "-"
		if d.VolumePercent != nil {
			volume = fmt.Sprintf("%d%%", *d.VolumePercent)
		}

		table.Row(marker, d.Name, d.Type, volume, d.ID)
	}
	table.Flush()

	fmt.Println()
	fmt.Println("● active  ○ inactive  * configured playback device")
	return nil
}

// isConfiguredDevice reports whether d is the device named by
// playback.device, matched by id or case-insensitive name.
func isConfiguredDevice(d client.Device) bool {
	want := cfg.Playback.Device
	if want == "" {
		return false
	}
	return d.ID == want || strings.EqualFold(d.Name, want)
}
