package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Chapter describes the outcome of adding one chapter.
type Chapter struct {
	RunID           string  `json:"runId"`
	ArtifactID      string  `json:"artifactId,omitempty"`
	Mode            string  `json:"mode"`
	CardID          string  `json:"cardId"`
	Playlist        string  `json:"playlist"`
	Created         bool    `json:"created"`
	ChapterKey      string  `json:"chapterKey"`
	ChapterTitle    string  `json:"chapterTitle"`
	ChapterCount    int     `json:"chapterCount"`
	DurationSeconds float64 `json:"durationSeconds"`
	FileSizeBytes   int64   `json:"fileSizeBytes"`
	CoverSet        bool    `json:"coverSet"`
}

// Story describes a generated story and where it landed.
type Story struct {
	Artifact Artifact `json:"artifact"`
	Chapter  *Chapter `json:"chapter,omitempty"`
}

// Artifact describes a locally saved story.
type Artifact struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	HeroName   string `json:"heroName,omitempty"`
	AgeBand    string `json:"ageBand,omitempty"`
	AudioMIME  string `json:"audioMime"`
	HasCover   bool   `json:"hasCover"`
	CreatedAt  string `json:"createdAt,omitempty"`
	CardID     string `json:"cardId,omitempty"`
	ChapterKey string `json:"chapterKey,omitempty"`
	UploadedAt string `json:"uploadedAt,omitempty"`
}

// PlaylistView is a read-only rendering of a remote playlist.
type PlaylistView struct {
	CardID          string        `json:"cardId"`
	Title           string        `json:"title"`
	DurationSeconds float64       `json:"durationSeconds"`
	FileSizeBytes   int64         `json:"fileSizeBytes"`
	Cover           string        `json:"cover,omitempty"`
	UpdatedAt       string        `json:"updatedAt,omitempty"`
	Duplicates      int           `json:"duplicates,omitempty"`
	Chapters        []ChapterView `json:"chapters"`
}

// ChapterView is one chapter of a PlaylistView.
type ChapterView struct {
	Key             string  `json:"key"`
	Title           string  `json:"title"`
	Tracks          int     `json:"tracks"`
	DurationSeconds float64 `json:"durationSeconds"`
	FileSizeBytes   int64   `json:"fileSizeBytes"`
}

// Run mirrors a ledger run.
type Run struct {
	ID            string `json:"id"`
	PlaylistTitle string `json:"playlistTitle"`
	Mode          string `json:"mode"`
	ArtifactID    string `json:"artifactId,omitempty"`
	Status        string `json:"status"`
	Phase         string `json:"phase"`
	ErrorKind     string `json:"errorKind,omitempty"`
	ErrorMessage  string `json:"errorMessage,omitempty"`
	CardID        string `json:"cardId,omitempty"`
	ChapterKey    string `json:"chapterKey,omitempty"`
	ChapterTitle  string `json:"chapterTitle,omitempty"`
	CreatedAt     string `json:"createdAt,omitempty"`
	UpdatedAt     string `json:"updatedAt,omitempty"`
}

// Upload mirrors a ledger upload record.
type Upload struct {
	ID        int64  `json:"id"`
	RunID     string `json:"runId"`
	Kind      string `json:"kind"`
	Locator   string `json:"locator,omitempty"`
	UploadID  string `json:"uploadId,omitempty"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// AuthStatus reports the stored platform session.
type AuthStatus struct {
	SignedIn  bool   `json:"signedIn"`
	Expired   bool   `json:"expired"`
	ExpiresAt string `json:"expiresAt,omitempty"`
	StatePath string `json:"statePath"`
}

// Status aggregates runtime information for API consumers.
type Status struct {
	Version      string     `json:"version,omitempty"`
	Mode         string     `json:"mode"`
	DefaultTitle string     `json:"defaultTitle"`
	Auth         AuthStatus `json:"auth"`
	LedgerPath   string     `json:"ledgerPath"`
	StagingDir   string     `json:"stagingDir"`
	Orphans      int        `json:"orphans"`
	StoryEnabled bool       `json:"storyEnabled"`
}

// Error is the transport form of a failed operation.
type Error struct {
	Message    string `json:"error"`
	Kind       string `json:"kind"`
	Phase      string `json:"phase,omitempty"`
	RunID      string `json:"runId,omitempty"`
	ArtifactID string `json:"artifactId,omitempty"`
	Retryable  bool   `json:"retryable"`
	Hint       string `json:"hint,omitempty"`
	Orphans    int    `json:"orphans,omitempty"`
}
