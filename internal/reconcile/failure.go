package reconcile

import (
	"fmt"
	"strings"

	"storyforge/internal/ledger"
	"storyforge/internal/services"
)

// Failure reports a reconciliation that did not reach persist. Err keeps the
// classified cause, so errors.Is works against the services markers.
type Failure struct {
	Phase      string
	RunID      string
	ArtifactID string
	Err        error
	Orphans    []ledger.Upload
}

func (f *Failure) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s failed", f.Phase)
	if f.RunID != "" {
		fmt.Fprintf(&b, " (run %s)", f.RunID)
	}
	if f.Err != nil {
		b.WriteString(": ")
		b.WriteString(f.Err.Error())
	}
	return b.String()
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Kind returns the error classification label.
func (f *Failure) Kind() string {
	return services.Kind(f.Err)
}

// Retryable reports whether running the same upload again may succeed.
func (f *Failure) Retryable() bool {
	return services.Retryable(f.Err)
}

// Hint is a short user-facing suggestion for the failure.
func (f *Failure) Hint() string {
	switch f.Kind() {
	case "auth":
		return "sign in again with 'storyforge auth login'"
	case "busy":
		return "wait for the running upload to finish"
	case "conflict":
		return "the playlist changed remotely; retry to merge onto the latest version"
	case "validation", "configuration":
		return "fix the input and try again"
	}
	if f.ArtifactID != "" && f.Retryable() {
		return fmt.Sprintf("retry with 'storyforge upload --artifact %s'", f.ArtifactID)
	}
	if f.Retryable() {
		return "retry the upload"
	}
	return ""
}
