package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"storyforge/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrUpload, "audio", "put", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrUpload) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"audio", "put", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestRetryableAndKind(t *testing.T) {
	tests := []struct {
		marker    error
		retryable bool
		kind      string
	}{
		{services.ErrAuth, false, "auth"},
		{services.ErrUpload, true, "upload"},
		{services.ErrTranscodeTimeout, true, "transcode_timeout"},
		{services.ErrLookup, true, "lookup"},
		{services.ErrPersist, true, "persist"},
		{services.ErrConflict, true, "conflict"},
		{services.ErrBusy, true, "busy"},
		{services.ErrValidation, false, "validation"},
	}
	for _, tc := range tests {
		err := fmt.Errorf("outer: %w", services.Wrap(tc.marker, "phase", "op", "", nil))
		if got := services.Retryable(err); got != tc.retryable {
			t.Fatalf("Retryable(%v) = %v, want %v", tc.marker, got, tc.retryable)
		}
		if got := services.Kind(err); got != tc.kind {
			t.Fatalf("Kind(%v) = %q, want %q", tc.marker, got, tc.kind)
		}
	}
	if services.Retryable(nil) {
		t.Fatal("nil error must not be retryable")
	}
}
