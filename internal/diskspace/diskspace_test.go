package diskspace

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"
)

func TestCheckAvailableSpace(t *testing.T) {
	dir := t.TempDir()

	t.Run("small requirement", func(t *testing.T) {
		if err := CheckAvailableSpace(dir, 1024, 1.1); err != nil {
			t.Errorf("Expected no error for 1KB, got: %v", err)
		}
	})

	t.Run("zero requirement disables the check", func(t *testing.T) {
		if err := CheckAvailableSpace(dir, 0, 1.1); err != nil {
			t.Errorf("Expected no error, got: %v", err)
		}
	})

	t.Run("huge requirement", func(t *testing.T) {
		// 100PB exceeds any test machine
		err := CheckAvailableSpace(dir, 100*1024*1024*1024*1024*1024, 1.1)
		if err == nil {
			t.Skip("filesystem reports no usable free space figure")
		}
		if !IsInsufficientSpaceError(err) {
			t.Errorf("Expected InsufficientSpaceError, got: %T", err)
		}
	})

	t.Run("missing directory uses existing parent", func(t *testing.T) {
		missing := filepath.Join(dir, "sippr", "method", "run")
		if err := CheckAvailableSpace(missing, 1024, 1.1); err != nil {
			t.Errorf("Expected no error for missing directory, got: %v", err)
		}
		if GetAvailableSpace(missing) == 0 {
			t.Error("Expected free space to be reported via the parent")
		}
	})
}

func TestIsInsufficientSpaceError(t *testing.T) {
	err := &InsufficientSpaceError{Path: "/out", RequiredBytes: 1000, AvailableBytes: 500}

	if !IsInsufficientSpaceError(err) {
		t.Error("Expected true for InsufficientSpaceError")
	}
	if !IsInsufficientSpaceError(fmt.Errorf("launch: %w", err)) {
		t.Error("Expected true for wrapped InsufficientSpaceError")
	}
	if IsInsufficientSpaceError(fmt.Errorf("some other error")) {
		t.Error("Expected false for other errors")
	}
	if IsInsufficientSpaceError(nil) {
		t.Error("Expected false for nil")
	}
}

func TestInsufficientSpaceErrorMessage(t *testing.T) {
	err := &InsufficientSpaceError{
		Path:           "/home/lab/Bioinformatics/sippr/method",
		RequiredBytes:  11 * 1024 * 1024 * 1024,
		AvailableBytes: 2 * 1024 * 1024 * 1024,
	}

	msg := err.Error()
	for _, want := range []string{"/home/lab/Bioinformatics/sippr/method", "11.00 GB", "2.00 GB"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q should contain %q", msg, want)
		}
	}
}
