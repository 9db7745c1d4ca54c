package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Error types for common failure scenarios.
var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrReauthRequired   = errors.New("reauthentication required")
	ErrPremiumRequired  = errors.New("spotify premium required")
	ErrDeviceNotFound   = errors.New("device not found")
	ErrNoDevice         = errors.New("no playback device configured")
	ErrClipNotFound     = errors.New("clip not found")
	ErrRateLimited      = errors.New("rate limited")
	ErrNetworkError     = errors.New("network error")
	ErrTimeout          = errors.New("request timeout")
	ErrConfigNotFound   = errors.New("config file not found")
	ErrInvalidConfig    = errors.New("invalid configuration")
)

// RefrainError wraps an error with a user-friendly suggestion.
type RefrainError struct {
	Err        error
	Suggestion string
}

func (e *RefrainError) Error() string {
	return e.Err.Error()
}

func (e *RefrainError) Unwrap() error {
	return e.Err
}

// WithSuggestion wraps an error with a helpful suggestion.
func WithSuggestion(err error, suggestion string) error {
	return &RefrainError{
		Err:        err,
		Suggestion: suggestion,
	}
}

// GetSuggestion returns a suggestion for the given error.
func GetSuggestion(err error) string {
	if err == nil {
		return ""
	}

	// Check if it's already a RefrainError with suggestion
	var refErr *RefrainError
	if errors.As(err, &refErr) && refErr.Suggestion != "" {
		return refErr.Suggestion
	}

	errStr := strings.ToLower(err.Error())

	// Authentication errors
	if errors.Is(err, ErrNotAuthenticated) || errors.Is(err, ErrReauthRequired) ||
		strings.Contains(errStr, "not authenticated") || strings.Contains(errStr, "reauthentication") ||
		strings.Contains(errStr, "invalid access token") || strings.Contains(errStr, "token expired") {
		return "Run 'refrain auth login' to authenticate with Spotify"
	}

	// Device errors
	if errors.Is(err, ErrNoDevice) || strings.Contains(errStr, "no playback device") {
		return "Set playback.device in your config, or pass --device"
	}

	if errors.Is(err, ErrDeviceNotFound) || strings.Contains(errStr, "device not found") {
		return "Open Spotify on the device, then run 'refrain devices' to check it is visible"
	}

	// Clip errors
	if errors.Is(err, ErrClipNotFound) || strings.Contains(errStr, "clip not found") {
		return "Run 'refrain clip list' to see saved clips, or 'refrain clip add' to create one"
	}

	// Premium errors
	if errors.Is(err, ErrPremiumRequired) || strings.Contains(errStr, "premium required") ||
		strings.Contains(errStr, "restricted device") {
		return "Clip playback on remote devices requires Spotify Premium"
	}

	// Rate limiting
	if errors.Is(err, ErrRateLimited) || strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") {
		return "Too many requests. Wait a moment and try again"
	}

	// Network errors
	if errors.Is(err, ErrNetworkError) || errors.Is(err, ErrTimeout) ||
		strings.Contains(errStr, "network") || strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection refused") {
		return "Check your internet connection and try again"
	}

	// Config errors
	if errors.Is(err, ErrConfigNotFound) || strings.Contains(errStr, "config") {
		return "Run 'refrain config init' to create a configuration file"
	}

	// Server errors
	if strings.Contains(errStr, "500") || strings.Contains(errStr, "server error") {
		return "Spotify is having issues. Try again in a moment"
	}

	return ""
}

// Format returns a formatted error message with suggestion if available.
func Format(err error) string {
	if err == nil {
		return ""
	}

	suggestion := GetSuggestion(err)
	if suggestion != "" {
		return fmt.Sprintf("Error: %s\n\nSuggestion: %s", err.Error(), suggestion)
	}

	return fmt.Sprintf("Error: %s", err.Error())
}
