package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/inkdrift/refrain/internal/library"
	"github.com/inkdrift/refrain/internal/spotify/client"
	"github.com/inkdrift/refrain/internal/wizard"
)

var (
	clipAddStart    string
	clipAddEnd      string
	clipAddEntry    string
	clipAddTitle    string
	clipAddArtist   string
	clipRemoveForce bool
)

var clipCmd = &cobra.Command{
	Use:   "clip",
	Short: "Manage saved clips",
	Long:  `Commands for managing the song clips saved with journal entries.`,
}

var clipAddCmd = &cobra.Command{
	Use:   "add [track-uri or query]",
	Short: "Save a clip",
	Long: `Save a window of a track as a clip. The track can be given as a
Spotify URI, as a search query (the first match is used), or picked
interactively when no argument is given.

Start and end accept Go durations ("90s", "1m30s") or clock timestamps
("1:30", "1:02:30").

Examples:
  refrain clip add spotify:track:4uLU6hMCjMI75M1A2tKUQC --start 1:10 --end 1:40
  refrain clip add "bohemian rhapsody" --start 49s --end 1m22s
  refrain clip add --start 0:10 --end 0:40`,
	RunE: runClipAdd,
}

var clipListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved clips",
	RunE:  runClipList,
}

var clipShowCmd = &cobra.Command{
	Use:   "show <entry-id>",
	Short: "Show a saved clip",
	Long:  `Show the details of one saved clip. Unique entry id prefixes work.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runClipShow,
}

var clipRemoveCmd = &cobra.Command{
	Use:     "remove <entry-id>",
	Aliases: []string{"rm"},
	Short:   "Remove a saved clip",
	Args:    cobra.ExactArgs(1),
	RunE:    runClipRemove,
}

func init() {
	clipAddCmd.Flags().StringVar(&clipAddStart, "start", "", "clip start within the track (required)")
	clipAddCmd.Flags().StringVar(&clipAddEnd, "end", "", "clip end within the track (required)")
	clipAddCmd.Flags().StringVar(&clipAddEntry, "entry", "", "journal entry id (generated when omitted)")
	clipAddCmd.Flags().StringVar(&clipAddTitle, "title", "", "track title (taken from search results when omitted)")
	clipAddCmd.Flags().StringVar(&clipAddArtist, "artist", "", "track artist (taken from search results when omitted)")
	_ = clipAddCmd.MarkFlagRequired("start")
	_ = clipAddCmd.MarkFlagRequired("end")

	clipRemoveCmd.Flags().BoolVarP(&clipRemoveForce, "force", "f", false, "remove without confirmation")

	clipCmd.AddCommand(clipAddCmd)
	clipCmd.AddCommand(clipListCmd)
	clipCmd.AddCommand(clipShowCmd)
	clipCmd.AddCommand(clipRemoveCmd)
	rootCmd.AddCommand(clipCmd)
}

func runClipAdd(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	start, err := parseTimestamp(clipAddStart)
	if err != nil {
		return fmt.Errorf("invalid --start: %w", err)
	}
	end, err := parseTimestamp(clipAddEnd)
	if err != nil {
		return fmt.Errorf("invalid --end: %w", err)
	}
	if end <= start {
		return fmt.Errorf("clip end (%s) must be after start (%s)", clipAddEnd, clipAddStart)
	}

	entry := library.Entry{
		EntryID: clipAddEntry,
		Title:   clipAddTitle,
		Artist:  clipAddArtist,
		Start:   start,
		End:     end,
	}
	if entry.EntryID == "" {
		entry.EntryID = uuid.NewString()[:8]
	}

	var trackDuration time.Duration
	switch {
	case len(args) > 0 && strings.HasPrefix(args[0], "spotify:track:"):
		entry.TrackURI = args[0]

	case len(args) > 0:
		spotifyClient, err := getSpotifyClient()
		if err != nil {
			return err
		}
		query := strings.Join(args, " ")
		tracks, err := spotifyClient.SearchTracks(ctx, query, 1)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		if len(tracks) == 0 {
			return fmt.Errorf("no results found for %q", query)
		}
		t := tracks[0]
		entry.TrackURI = t.URI
		if entry.Title == "" {
			entry.Title = t.Name
		}
		if entry.Artist == "" {
			entry.Artist = t.ArtistNames()
		}
		trackDuration = time.Duration(t.DurationMS) * time.Millisecond

	default:
		if !wizard.IsTerminal() {
			return fmt.Errorf("no track given. Pass a Spotify URI or search query")
		}
		spotifyClient, err := getSpotifyClient()
		if err != nil {
			return err
		}
		result, err := wizard.RunSearch(searchTracksFunc(ctx, spotifyClient))
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		if result == nil {
			return fmt.Errorf("no track selected")
		}
		entry.TrackURI = result.URI
		if entry.Title == "" {
			entry.Title = result.Title
		}
		if entry.Artist == "" {
			entry.Artist = result.Artist
		}
		trackDuration = result.Duration
	}

	if trackDuration > 0 && end > trackDuration && !JSONOutput() {
		fmt.Fprintf(os.Stderr, "Warning: clip end %s is past the track length %s\n",
			formatDuration(end), formatDuration(trackDuration))
	}

	store, err := openLibrary()
	if err != nil {
		return fmt.Errorf("failed to open clip library: %w", err)
	}
	defer store.Close()

	if err := store.Save(entry); err != nil {
		return fmt.Errorf("failed to save clip: %w", err)
	}
	saved, err := store.Get(entry.EntryID)
	if err != nil {
		return err
	}

	if JSONOutput() {
		return json.NewEncoder(os.Stdout).Encode(map[string]interface{}{
			"status": "saved",
			"entry":  entryJSON(saved),
		})
	}

	name := entry.Title
	if name == "" {
		name = entry.TrackURI
	}
	fmt.Printf("Saved clip %s: %s (%s)\n", entry.EntryID, name, formatWindow(entry.Start, entry.End))
	return nil
}

func runClipList(cmd *cobra.Command, args []string) error {
	store, err := openLibrary()
	if err != nil {
		return fmt.Errorf("failed to open clip library: %w", err)
	}
	defer store.Close()

	entries, err := store.List()
	if err != nil {
		return fmt.Errorf("failed to list clips: %w", err)
	}

	if JSONOutput() {
		output := make([]map[string]interface{}, 0, len(entries))
		for _, e := range entries {
			output = append(output, entryJSON(e))
		}
		return json.NewEncoder(os.Stdout).Encode(output)
	}

	if len(entries) == 0 {
		fmt.Println("No clips saved. Add one with 'refrain clip add'.")
		return nil
	}

	table := NewTable("ENTRY", "TRACK", "WINDOW", "UPDATED")
	for _, e := range entries {
		track := e.Title
		if e.Artist != "" {
			track += " - " + e.Artist
		}
		if track == "" {
			track = e.TrackURI
		}
		table.Row(
			e.EntryID,
			TruncateString(track, 48),
			formatWindow(e.Start, e.End),
			humanize.Time(e.UpdatedAt),
		)
	}
	table.Flush()
	return nil
}

func runClipShow(cmd *cobra.Command, args []string) error {
	store, err := openLibrary()
	if err != nil {
		return fmt.Errorf("failed to open clip library: %w", err)
	}
	defer store.Close()

	entry, err := store.Resolve(args[0])
	if err != nil {
		return err
	}

	if JSONOutput() {
		return json.NewEncoder(os.Stdout).Encode(entryJSON(entry))
	}

	fmt.Printf("Entry:   %s\n", entry.EntryID)
	if entry.Title != "" {
		fmt.Printf("Track:   %s\n", entry.Title)
	}
	if entry.Artist != "" {
		fmt.Printf("Artist:  %s\n", entry.Artist)
	}
	fmt.Printf("URI:     %s\n", entry.TrackURI)
	fmt.Printf("Window:  %s (%s long)\n", formatWindow(entry.Start, entry.End), formatDuration(entry.End-entry.Start))
	fmt.Printf("Added:   %s\n", humanize.Time(entry.CreatedAt))
	fmt.Printf("Updated: %s\n", humanize.Time(entry.UpdatedAt))
	return nil
}

func runClipRemove(cmd *cobra.Command, args []string) error {
	store, err := openLibrary()
	if err != nil {
		return fmt.Errorf("failed to open clip library: %w", err)
	}
	defer store.Close()

	entry, err := store.Resolve(args[0])
	if err != nil {
		return err
	}

	if !clipRemoveForce && !JSONOutput() && wizard.IsTerminal() {
		name := entry.Title
		if name == "" {
			name = entry.TrackURI
		}

		confirmed := false
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("Remove clip %s?", entry.EntryID)).
					Description(fmt.Sprintf("%s (%s)", name, formatWindow(entry.Start, entry.End))).
					Value(&confirmed),
			),
		)
		if err := form.Run(); err != nil {
			return fmt.Errorf("confirmation cancelled: %w", err)
		}
		if !confirmed {
			fmt.Println("Aborted")
			return nil
		}
	}

	if err := store.Delete(entry.EntryID); err != nil {
		return err
	}

	if JSONOutput() {
		return json.NewEncoder(os.Stdout).Encode(map[string]string{
			"status": "removed",
			"entry":  entry.EntryID,
		})
	}
	fmt.Printf("Removed clip %s\n", entry.EntryID)
	return nil
}

// searchTracksFunc adapts the Web API track search to the wizard.
func searchTracksFunc(ctx context.Context, c *client.Client) wizard.SearchFunc {
	return func(query string) ([]wizard.SearchResult, error) {
		tracks, err := c.SearchTracks(ctx, query, 10)
		if err != nil {
			return nil, err
		}
		results := make([]wizard.SearchResult, len(tracks))
		for i, t := range tracks {
			results[i] = wizard.SearchResult{
				URI:      t.URI,
				Title:    t.Name,
				Artist:   t.ArtistNames(),
				Album:    t.Album.Name,
				Duration: time.Duration(t.DurationMS) * time.Millisecond,
			}
		}
		return results, nil
	}
}

func entryJSON(e library.Entry) map[string]interface{} {
	return map[string]interface{}{
		"entry_id":   e.EntryID,
		"track_uri":  e.TrackURI,
		"title":      e.Title,
		"artist":     e.Artist,
		"start_ms":   e.Start.Milliseconds(),
		"end_ms":     e.End.Milliseconds(),
		"created_at": e.CreatedAt,
		"updated_at": e.UpdatedAt,
	}
}

// parseTimestamp parses a clip boundary, accepting a Go duration ("90s",
// "1m30s") or a clock form ("1:30", "1:02:30").
func parseTimestamp(s string) (time.Duration, error) {
	if strings.Contains(s, ":") {
		parts := strings.Split(s, ":")
		if len(parts) > 3 {
			return 0, fmt.Errorf("invalid timestamp %q", s)
		}
		var total time.Duration
		for _, p := range parts {
			n, err := strconv.Atoi(p)
			if err != nil || n < 0 {
				return 0, fmt.Errorf("invalid timestamp %q", s)
			}
			total = total*60 + time.Duration(n)*time.Second
		}
		return total, nil
	}
	return time.ParseDuration(s)
}

// formatWindow renders a clip window as m:ss-m:ss.
func formatWindow(start, end time.Duration) string {
	return formatDuration(start) + "-" + formatDuration(end)
}
