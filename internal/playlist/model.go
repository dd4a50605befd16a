package playlist

import "encoding/json"

// MediaKind distinguishes cover images from audio tracks.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaAudio MediaKind = "audio"
)

// MediaReference points at media already hosted by the platform. Values are
// never modified after the platform returns them.
type MediaReference struct {
	Kind            MediaKind `json:"kind"`
	Locator         string    `json:"locator"`
	Format          string    `json:"format,omitempty"`
	DurationSeconds float64   `json:"duration_seconds,omitempty"`
	FileSizeBytes   int64     `json:"file_size_bytes,omitempty"`
	Channels        string    `json:"channels,omitempty"`
}

// Track is one playable item inside a chapter.
type Track struct {
	Key   string
	Title string
	Media MediaReference
}

// Chapter is an ordered unit of a playlist holding at least one track.
//
// Raw holds the platform's encoding of chapters that were fetched rather than
// built locally. When set, it is sent back unchanged on persist and the other
// fields are read-only projections of it.
type Chapter struct {
	Key         string
	Title       string
	Tracks      []Track
	DisplayIcon string
	Raw         json.RawMessage
}

// Fetched reports whether the chapter came from the platform.
func (c Chapter) Fetched() bool {
	return len(c.Raw) > 0
}

// Playlist is the ordered chapter collection persisted as one card.
type Playlist struct {
	ID                       string
	Title                    string
	Chapters                 []Chapter
	AggregateDurationSeconds float64
	AggregateFileSizeBytes   int64
	Cover                    string
	CreatedAt                string
	UpdatedAt                string

	// ContentExtra and MetadataExtra carry platform fields this package does
	// not model so they survive a fetch/persist round trip.
	ContentExtra  map[string]json.RawMessage
	MetadataExtra map[string]json.RawMessage
}

// New returns an empty playlist with the given title.
func New(title string) Playlist {
	return Playlist{Title: title}
}
