package shared

import "fmt"

var (
	// Configuration errors
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Server registry errors
	ErrValidation     = fmt.Errorf("validation failed")
	ErrNotFound       = fmt.Errorf("not found")
	ErrNoActiveServer = fmt.Errorf("no active server")

	// Signing errors
	ErrMalformedPath = fmt.Errorf("malformed resource path")

	// API and transport errors
	ErrNetwork     = fmt.Errorf("network error")
	ErrAPIRequest  = fmt.Errorf("API request failed")
	ErrAuthFailed  = fmt.Errorf("authentication failed")
	ErrPageLoad    = fmt.Errorf("page load failed")
	ErrServiceDown = fmt.Errorf("service unavailable")

	// Playback errors
	ErrIndex = fmt.Errorf("index out of range")

	// Input validation errors
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
