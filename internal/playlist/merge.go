package playlist

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// FirstTrackKey is the key of the single track every appended chapter holds.
const FirstTrackKey = "01"

// ChapterSpec describes a chapter to append.
type ChapterSpec struct {
	Title       string
	HeroName    string
	DisplayIcon string
	Audio       MediaReference
}

// NextChapterKey returns the zero-padded key for a chapter appended to p.
// It is one past the larger of the chapter count and the highest numeric key,
// so keys stay unique even when the stored playlist has gaps or duplicates.
func NextChapterKey(p Playlist) string {
	highest := len(p.Chapters)
	for _, chapter := range p.Chapters {
		if n, err := strconv.Atoi(strings.TrimSpace(chapter.Key)); err == nil && n > highest {
			highest = n
		}
	}
	return formatKey(highest + 1)
}

func formatKey(n int) string {
	return fmt.Sprintf("%02d", n)
}

// ChapterTitle picks the display title for a new chapter: the explicit title,
// else the hero name in title case, else "Chapter NN".
func ChapterTitle(title, heroName, key string) string {
	if t := strings.TrimSpace(title); t != "" {
		return t
	}
	if hero := strings.TrimSpace(heroName); hero != "" {
		return cases.Title(language.Und).String(strings.ToLower(hero))
	}
	return "Chapter " + key
}

// AppendChapter returns a copy of p with one new chapter at the end. Existing
// chapters are carried over untouched and p itself is not modified.
func AppendChapter(p Playlist, spec ChapterSpec) (Playlist, Chapter) {
	key := NextChapterKey(p)
	title := ChapterTitle(spec.Title, spec.HeroName, key)
	chapter := Chapter{
		Key:         key,
		Title:       title,
		DisplayIcon: spec.DisplayIcon,
		Tracks: []Track{{
			Key:   FirstTrackKey,
			Title: title,
			Media: spec.Audio,
		}},
	}

	next := p
	next.Chapters = make([]Chapter, 0, len(p.Chapters)+1)
	next.Chapters = append(next.Chapters, p.Chapters...)
	next.Chapters = append(next.Chapters, chapter)
	return next, chapter
}

// Recompute returns p with aggregates summed from every track of every chapter.
func Recompute(p Playlist) Playlist {
	var duration float64
	var size int64
	for _, chapter := range p.Chapters {
		for _, track := range chapter.Tracks {
			duration += track.Media.DurationSeconds
			size += track.Media.FileSizeBytes
		}
	}
	p.AggregateDurationSeconds = duration
	p.AggregateFileSizeBytes = size
	return p
}
