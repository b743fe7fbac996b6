package errors

import "errors"

// Domain errors
var (
	// Input errors
	ErrInvalidURL     = errors.New("invalid target url")
	ErrEmptyTarget    = errors.New("target cannot be empty")
	ErrNoTargets      = errors.New("no targets supplied")
	ErrUnsupportedFmt = errors.New("unsupported output format")

	// Fetch errors
	ErrFetchFailed     = errors.New("page fetch failed")
	ErrTooManyRedirect = errors.New("too many redirects")

	// Upstream errors
	ErrNotFound       = errors.New("not found")
	ErrClientClosed   = errors.New("client closed")
	ErrRetryExhausted = errors.New("retries exhausted")
	ErrMissingAPIKey  = errors.New("missing api key")

	// Decoding errors
	ErrInvalidData = errors.New("invalid data")

	// Job errors
	ErrJobNotFound = errors.New("job not found")

	// Validation errors
	ErrInvalidInput    = errors.New("invalid input")
	ErrMissingRequired = errors.New("missing required field")
)
