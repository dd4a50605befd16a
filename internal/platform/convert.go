package platform

import (
	"encoding/json"
	"fmt"
	"math"

	"storyforge/internal/playlist"
)

// ToPlaylist projects a fetched card into the playlist model. Chapters keep
// their verbatim encoding.
func ToPlaylist(card Card) (playlist.Playlist, error) {
	p := playlist.Playlist{
		ID:            card.CardID,
		Title:         card.Title,
		CreatedAt:     card.CreatedAt,
		UpdatedAt:     card.UpdatedAt,
		ContentExtra:  map[string]json.RawMessage{},
		MetadataExtra: map[string]json.RawMessage{},
	}
	for key, value := range card.Content {
		if key == "chapters" {
			continue
		}
		p.ContentExtra[key] = value
	}
	for key, value := range card.Metadata {
		switch key {
		case "cover":
			var cover coverWire
			if err := json.Unmarshal(value, &cover); err == nil {
				p.Cover = cover.ImageL
			}
			p.MetadataExtra[key] = value
		case "media":
			var media mediaWire
			if err := json.Unmarshal(value, &media); err == nil {
				p.AggregateDurationSeconds = media.Duration
				p.AggregateFileSizeBytes = media.FileSize
			}
		default:
			p.MetadataExtra[key] = value
		}
	}

	rawChapters, ok := card.Content["chapters"]
	if !ok || string(rawChapters) == "null" {
		return p, nil
	}
	var chapters []json.RawMessage
	if err := json.Unmarshal(rawChapters, &chapters); err != nil {
		return playlist.Playlist{}, fmt.Errorf("%w: decode chapters: %v", ErrUnexpectedResponse, err)
	}
	for i, raw := range chapters {
		var wire chapterWire
		if err := json.Unmarshal(raw, &wire); err != nil {
			return playlist.Playlist{}, fmt.Errorf("%w: decode chapter %d: %v", ErrUnexpectedResponse, i, err)
		}
		chapter := playlist.Chapter{
			Key:   wire.Key,
			Title: wire.Title,
			Raw:   append(json.RawMessage(nil), raw...),
		}
		if wire.Display != nil {
			chapter.DisplayIcon = wire.Display.Icon16x16
		}
		for _, track := range wire.Tracks {
			chapter.Tracks = append(chapter.Tracks, playlist.Track{
				Key:   track.Key,
				Title: track.Title,
				Media: playlist.MediaReference{
					Kind:            playlist.MediaAudio,
					Locator:         track.TrackURL,
					Format:          track.Format,
					DurationSeconds: track.Duration,
					FileSizeBytes:   int64(math.Round(track.FileSize)),
					Channels:        string(track.Channels),
				},
			})
		}
		p.Chapters = append(p.Chapters, chapter)
	}
	return p, nil
}

// FromPlaylist builds the full card body to persist. Fetched chapters are
// emitted byte for byte; new chapters are encoded from their fields.
func FromPlaylist(p playlist.Playlist) (Card, error) {
	card := Card{
		CardID:   p.ID,
		Title:    p.Title,
		Content:  make(map[string]json.RawMessage, len(p.ContentExtra)+1),
		Metadata: make(map[string]json.RawMessage, len(p.MetadataExtra)+2),
	}
	for key, value := range p.ContentExtra {
		card.Content[key] = value
	}
	for key, value := range p.MetadataExtra {
		card.Metadata[key] = value
	}

	chapters := make([]json.RawMessage, 0, len(p.Chapters))
	for _, chapter := range p.Chapters {
		if chapter.Fetched() {
			chapters = append(chapters, chapter.Raw)
			continue
		}
		encoded, err := json.Marshal(chapterToWire(chapter))
		if err != nil {
			return Card{}, fmt.Errorf("encode chapter %s: %w", chapter.Key, err)
		}
		chapters = append(chapters, encoded)
	}
	encodedChapters, err := json.Marshal(chapters)
	if err != nil {
		return Card{}, fmt.Errorf("encode chapters: %w", err)
	}
	card.Content["chapters"] = encodedChapters

	if p.Cover != "" {
		cover, err := mergeCover(card.Metadata["cover"], p.Cover)
		if err != nil {
			return Card{}, err
		}
		card.Metadata["cover"] = cover
	}
	media, err := json.Marshal(mediaWire{
		Duration:         p.AggregateDurationSeconds,
		FileSize:         p.AggregateFileSizeBytes,
		ReadableFileSize: math.Round(float64(p.AggregateFileSizeBytes)/1024/1024*10) / 10,
	})
	if err != nil {
		return Card{}, fmt.Errorf("encode media metadata: %w", err)
	}
	card.Metadata["media"] = media
	return card, nil
}

func mergeCover(existing json.RawMessage, imageURL string) (json.RawMessage, error) {
	fields := map[string]json.RawMessage{}
	if len(existing) > 0 {
		_ = json.Unmarshal(existing, &fields)
	}
	encodedURL, err := json.Marshal(imageURL)
	if err != nil {
		return nil, fmt.Errorf("encode cover: %w", err)
	}
	fields["imageL"] = encodedURL
	encoded, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode cover: %w", err)
	}
	return encoded, nil
}

func chapterToWire(chapter playlist.Chapter) chapterWire {
	wire := chapterWire{
		Key:          chapter.Key,
		Title:        chapter.Title,
		OverlayLabel: overlayLabel(chapter.Key),
		Tracks:       make([]trackWire, 0, len(chapter.Tracks)),
	}
	var display *displayWire
	if chapter.DisplayIcon != "" {
		display = &displayWire{Icon16x16: chapter.DisplayIcon}
		wire.Display = display
	}
	for _, track := range chapter.Tracks {
		wire.Tracks = append(wire.Tracks, trackWire{
			Key:          track.Key,
			Title:        track.Title,
			TrackURL:     track.Media.Locator,
			Type:         "audio",
			Format:       track.Media.Format,
			Duration:     track.Media.DurationSeconds,
			FileSize:     float64(track.Media.FileSizeBytes),
			Channels:     flexString(track.Media.Channels),
			OverlayLabel: overlayLabel(chapter.Key),
			Display:      display,
		})
	}
	return wire
}

// overlayLabel strips the zero padding: "03" -> "3".
func overlayLabel(key string) string {
	var n int
	if _, err := fmt.Sscanf(key, "%d", &n); err == nil && n > 0 {
		return fmt.Sprintf("%d", n)
	}
	return key
}
