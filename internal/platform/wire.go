package platform

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Card is the platform's playlist document. Content and Metadata keep every
// field so unknown ones survive a fetch/upsert round trip.
type Card struct {
	CardID    string                     `json:"cardId,omitempty"`
	Title     string                     `json:"title"`
	Content   map[string]json.RawMessage `json:"content"`
	Metadata  map[string]json.RawMessage `json:"metadata"`
	CreatedAt string                     `json:"createdAt,omitempty"`
	UpdatedAt string                     `json:"updatedAt,omitempty"`
}

type chapterWire struct {
	Key          string       `json:"key"`
	Title        string       `json:"title"`
	OverlayLabel string       `json:"overlayLabel,omitempty"`
	Tracks       []trackWire  `json:"tracks"`
	Display      *displayWire `json:"display,omitempty"`
}

type trackWire struct {
	Key          string       `json:"key"`
	Title        string       `json:"title"`
	TrackURL     string       `json:"trackUrl"`
	Type         string       `json:"type"`
	Format       string       `json:"format,omitempty"`
	Duration     float64      `json:"duration"`
	FileSize     float64      `json:"fileSize"`
	Channels     flexString   `json:"channels,omitempty"`
	OverlayLabel string       `json:"overlayLabel,omitempty"`
	Display      *displayWire `json:"display,omitempty"`
}

type displayWire struct {
	Icon16x16 string `json:"icon16x16"`
}

type coverWire struct {
	ImageL string `json:"imageL,omitempty"`
}

type mediaWire struct {
	Duration         float64 `json:"duration"`
	FileSize         int64   `json:"fileSize"`
	ReadableFileSize float64 `json:"readableFileSize"`
}

// flexString accepts either a JSON string or number and re-emits numbers as
// numbers.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(trimmed)
	return nil
}

func (f flexString) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseFloat(string(f), 64); err == nil {
		return []byte(f), nil
	}
	return json.Marshal(string(f))
}
