package ledger

import "time"

// RunStatus is the lifecycle state of a reconciliation run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// UploadStatus tracks whether uploaded media ended up in a persisted playlist.
type UploadStatus string

const (
	// UploadPending media is uploaded but the run has not finished.
	UploadPending UploadStatus = "pending"
	// UploadReferenced media is part of a persisted playlist.
	UploadReferenced UploadStatus = "referenced"
	// UploadOrphaned media was uploaded by a run that failed afterwards.
	UploadOrphaned UploadStatus = "orphaned"
	// UploadResolved orphans were acknowledged by the user.
	UploadResolved UploadStatus = "resolved"
)

// Run is one reconciliation attempt.
type Run struct {
	ID            string
	PlaylistTitle string
	Mode          string
	ArtifactID    string
	Status        RunStatus
	Phase         string
	ErrorKind     string
	ErrorMessage  string
	CardID        string
	ChapterKey    string
	ChapterTitle  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Upload is one media object a run put on the platform.
type Upload struct {
	ID        int64
	RunID     string
	Kind      string
	Locator   string
	UploadID  string
	Status    UploadStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Completion carries the outcome of a successful run.
type Completion struct {
	CardID       string
	ChapterKey   string
	ChapterTitle string
}

// Failure carries the outcome of a failed run.
type Failure struct {
	Phase   string
	Kind    string
	Message string
}
