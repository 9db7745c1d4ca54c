package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/inkdrift/refrain/internal/config"
	"github.com/inkdrift/refrain/internal/library"
	"github.com/inkdrift/refrain/internal/logging"
	"github.com/inkdrift/refrain/internal/spotify/auth"
	"github.com/inkdrift/refrain/internal/spotify/client"
)

var (
	cfgFile string
	jsonOut bool
	verbose bool

	cfg *config.Config
	log zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "refrain",
	Short: "Play journal song clips on Spotify Connect",
	Long: `Refrain plays the song clips attached to journal entries on a
Spotify Connect device: save a window of a track per entry, then play it
back on demand.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ~/.refrainrc)")
	rootCmd.PersistentFlags().BoolVarP(&jsonOut, "json", "j", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

func initConfig() error {
	var err error
	if cfgFile != "" {
		cfg, err = config.LoadFrom(cfgFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	log = logging.Setup(level, cfg.Log.File)

	return nil
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// Config returns the loaded configuration.
func Config() *config.Config {
	return cfg
}

// JSONOutput returns true if JSON output is requested.
func JSONOutput() bool {
	return jsonOut
}

// Verbose returns true if verbose output is requested.
func Verbose() bool {
	return verbose
}

// getSpotifyClient returns an authenticated Web API client.
func getSpotifyClient() (*client.Client, error) {
	if cfg.Spotify.ClientID == "" {
		return nil, fmt.Errorf("spotify not configured. Set spotify.client_id in ~/.refrainrc or via REFRAIN_SPOTIFY_CLIENT_ID")
	}

	storage, err := auth.NewTokenStorage("")
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token storage: %w", err)
	}

	spotifyClient := client.New(cfg.Spotify.ClientID, storage)
	if Verbose() {
		spotifyClient.SetVerbose(true, func(format string, args ...interface{}) {
			fmt.Fprintf(os.Stderr, format+"\n", args...)
		})
	}
	if err := spotifyClient.LoadToken(); err != nil {
		return nil, fmt.Errorf("failed to load token: %w", err)
	}

	if !spotifyClient.HasToken() {
		return nil, fmt.Errorf("not authenticated. Run 'refrain auth login' first")
	}

	return spotifyClient, nil
}

// openLibrary opens the clip database at the configured path.
func openLibrary() (*library.Store, error) {
	return library.Open(cfg.Library.Path)
}
