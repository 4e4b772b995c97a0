// Package errors tests for error code definitions and error handling.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// TestAppErrorFormat verifies the rendered message includes the code.
func TestAppErrorFormat(t *testing.T) {
	err := New(ErrStorage, "insert failed")

	if !strings.Contains(err.Error(), string(ErrStorage)) {
		t.Errorf("expected code in message, got %q", err.Error())
	}
	if !strings.Contains(err.Error(), "insert failed") {
		t.Errorf("expected message in output, got %q", err.Error())
	}
}

// TestWrapPreservesCause verifies Unwrap returns the wrapped error.
func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(ErrStorage, "insert failed", cause)

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
	if !strings.Contains(err.Error(), "disk full") {
		t.Errorf("expected cause in message, got %q", err.Error())
	}
}

// TestIsMatchesCode verifies code matching through wrapping layers.
func TestIsMatchesCode(t *testing.T) {
	inner := Wrap(ErrConnectivity, "probe failed", errors.New("timeout"))
	outer := fmt.Errorf("sync pass: %w", inner)

	if !Is(outer, ErrConnectivity) {
		t.Error("expected Is to match code through fmt wrapping")
	}
	if Is(outer, ErrRemoteRejected) {
		t.Error("expected Is to reject a different code")
	}
	if Is(nil, ErrConnectivity) {
		t.Error("expected Is(nil) to be false")
	}
}
