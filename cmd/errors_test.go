package cmd

import (
	"errors"
	"fmt"
	"testing"

	apperrors "github.com/wpinspect/wpinspect/internal/shared/errors"
)

func TestFormatError(t *testing.T) {
	err := &FormatError{Format: "xml"}
	want := `unsupported output format "xml" (want text or json)`
	if err.Error() != want {
		t.Fatalf("expected %s, got %s", want, err.Error())
	}
	if !errors.Is(err, apperrors.ErrUnsupportedFmt) {
		t.Fatal("expected FormatError to unwrap to ErrUnsupportedFmt")
	}
}

func TestBatchFailedError(t *testing.T) {
	err := &BatchFailedError{Failed: 3, Total: 3}
	if err.Error() != "all 3 of 3 targets failed" {
		t.Fatalf("unexpected error string: %s", err.Error())
	}
	err = &BatchFailedError{}
	if err.Error() != "batch produced no results" {
		t.Fatalf("unexpected error string: %s", err.Error())
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&FormatError{Format: "xml"}, 2},
		{fmt.Errorf("analyze: %w", apperrors.ErrInvalidURL), 2},
		{apperrors.ErrNoTargets, 2},
		{fmt.Errorf("%w: connection refused", apperrors.ErrFetchFailed), 3},
		{errors.New("boom"), 1},
	}
	for _, tt := range tests {
		if got := exitCode(tt.err); got != tt.want {
			t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
