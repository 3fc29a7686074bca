package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Authentication errors
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrTimeout          = fmt.Errorf("operation timed out")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrDownloadFailed     = fmt.Errorf("download failed")
	ErrTrackNotFound      = fmt.Errorf("track not found")

	// Playback errors
	ErrPlaybackRejected = fmt.Errorf("playback rejected")
	ErrNoSource         = fmt.Errorf("no source loaded")
	ErrUnsupportedAudio = fmt.Errorf("unsupported audio format")
	ErrAudioUnavailable = fmt.Errorf("audio output unavailable")
	ErrStaleSource      = fmt.Errorf("stale source")

	// Storage errors
	ErrKeyNotFound = fmt.Errorf("key not found")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
