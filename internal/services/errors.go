package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrAuth             = errors.New("authorization error")
	ErrUpload           = errors.New("upload error")
	ErrTranscodeTimeout = errors.New("transcode timeout")
	ErrLookup           = errors.New("lookup error")
	ErrPersist          = errors.New("persist error")
	ErrConflict         = errors.New("concurrent modification")
	ErrBusy             = errors.New("reconciliation already in progress")
	ErrValidation       = errors.New("validation error")
	ErrConfiguration    = errors.New("configuration error")
	ErrNotFound         = errors.New("not found")
	ErrTransient        = errors.New("transient failure")
)

// Wrap builds an error message that includes phase context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, phase, operation, message string, err error) error {
	detail := buildDetail(phase, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Retryable reports whether re-running the whole operation that produced err
// can reasonably succeed without user intervention.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrAuth), errors.Is(err, ErrValidation), errors.Is(err, ErrConfiguration):
		return false
	case errors.Is(err, ErrTranscodeTimeout),
		errors.Is(err, ErrUpload),
		errors.Is(err, ErrConflict),
		errors.Is(err, ErrBusy),
		errors.Is(err, ErrLookup),
		errors.Is(err, ErrPersist),
		errors.Is(err, ErrTransient):
		return true
	default:
		return false
	}
}

// Kind returns a short machine-readable label for the marker carried by err.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrUpload):
		return "upload"
	case errors.Is(err, ErrTranscodeTimeout):
		return "transcode_timeout"
	case errors.Is(err, ErrLookup):
		return "lookup"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrPersist):
		return "persist"
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "transient"
	}
}

func buildDetail(phase, operation, message string) string {
	parts := make([]string, 0, 3)
	if phase = strings.TrimSpace(phase); phase != "" {
		parts = append(parts, phase)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
