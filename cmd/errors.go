package cmd

import (
	"errors"
	"fmt"

	apperrors "github.com/wpinspect/wpinspect/internal/shared/errors"
)

// FormatError rejects an unknown --format value.
type FormatError struct {
	Format string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("unsupported output format %q (want text or json)", e.Format)
}

func (e *FormatError) Unwrap() error { return apperrors.ErrUnsupportedFmt }

// BatchFailedError reports that no site in a batch could be analyzed.
type BatchFailedError struct {
	Failed int
	Total  int
}

func (e *BatchFailedError) Error() string {
	if e.Total == 0 {
		return "batch produced no results"
	}
	return fmt.Sprintf("all %d of %d targets failed", e.Failed, e.Total)
}

// Exit codes: 1 generic failure, 2 usage, 3 target unreachable.
func exitCode(err error) int {
	var formatErr *FormatError
	switch {
	case errors.As(err, &formatErr),
		errors.Is(err, apperrors.ErrInvalidURL),
		errors.Is(err, apperrors.ErrNoTargets):
		return 2
	case errors.Is(err, apperrors.ErrFetchFailed):
		return 3
	default:
		return 1
	}
}
