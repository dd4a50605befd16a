package playlist

import (
	"sort"
	"strings"
	"time"
)

// Summary is a playlist listing entry.
type Summary struct {
	ID        string `json:"cardId"`
	Title     string `json:"title"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// SelectByTitle finds the playlist whose title equals title exactly. When
// several match, the earliest created wins; entries without a parsable
// creation time sort after timestamped ones, and remaining ties go to the
// lowest ID.
func SelectByTitle(entries []Summary, title string) (Summary, bool) {
	matches := make([]Summary, 0, 1)
	for _, entry := range entries {
		if entry.Title == title {
			matches = append(matches, entry)
		}
	}
	if len(matches) == 0 {
		return Summary{}, false
	}
	sort.SliceStable(matches, func(i, j int) bool {
		ti, okI := parseTimestamp(matches[i].CreatedAt)
		tj, okJ := parseTimestamp(matches[j].CreatedAt)
		switch {
		case okI && okJ && !ti.Equal(tj):
			return ti.Before(tj)
		case okI != okJ:
			return okI
		default:
			return matches[i].ID < matches[j].ID
		}
	})
	return matches[0], true
}

// CountByTitle reports how many entries carry title exactly.
func CountByTitle(entries []Summary, title string) int {
	count := 0
	for _, entry := range entries {
		if entry.Title == title {
			count++
		}
	}
	return count
}

func parseTimestamp(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
