package config

// Config is the root configuration structure.
type Config struct {
	Spotify  SpotifyConfig  `toml:"spotify"`
	Playback PlaybackConfig `toml:"playback"`
	Library  LibraryConfig  `toml:"library"`
	Tail     TailConfig     `toml:"tail"`
	TUI      TUIConfig      `toml:"tui"`
	Log      LogConfig      `toml:"log"`
}

// SpotifyConfig holds Spotify API settings.
type SpotifyConfig struct {
	ClientID    string `toml:"client_id"`
	RedirectURI string `toml:"redirect_uri"`
}

// PlaybackConfig holds clip playback settings.
type PlaybackConfig struct {
	// Device is the Connect device clips play on, by name or id.
	Device string `toml:"device"`
	// Volume is the initial endpoint volume (0-100, 0 leaves it untouched).
	Volume int `toml:"volume"`
	// ParkUntilReady parks a play request made before the device session is
	// ready; a second request starts it. When false the request starts on
	// its own once the session comes up.
	ParkUntilReady bool `toml:"park_until_ready"`
}

// LibraryConfig holds clip storage settings.
type LibraryConfig struct {
	Path string `toml:"path"`
}

// TailConfig holds settings for tail/follow mode.
type TailConfig struct {
	Interval int `toml:"interval"`
}

// TUIConfig holds terminal UI settings.
type TUIConfig struct {
	Theme           string `toml:"theme"`
	RefreshInterval int    `toml:"refresh_interval"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}
