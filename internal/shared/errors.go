package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Run coordination errors
	ErrRunInProgress      = fmt.Errorf("a ranking run is already in progress")
	ErrSessionUnavailable = fmt.Errorf("browser session unavailable")
	ErrPersistence        = fmt.Errorf("failed to persist run state")

	// Navigation and extraction errors
	ErrNavigationTimeout = fmt.Errorf("navigation timed out")
	ErrWaitTimeout       = fmt.Errorf("element did not appear in time")
	ErrConsentRequired   = fmt.Errorf("consent interstitial blocks the results page")
	ErrExtraction        = fmt.Errorf("page extraction failed")
	ErrUnknownProvider   = fmt.Errorf("unknown provider")

	// Geocoding errors
	ErrGeocoderNotConfigured = fmt.Errorf("geocoding API key not configured")
	ErrGeocodeFailed         = fmt.Errorf("geocoding failed")

	// Task and history errors
	ErrInvalidTask  = fmt.Errorf("invalid task")
	ErrTaskNotFound = fmt.Errorf("task not found")
	ErrRunNotFound  = fmt.Errorf("run not found")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)
