package platform_test

import (
	"encoding/json"
	"testing"

	"storyforge/internal/platform"
	"storyforge/internal/playlist"
)

const fetchedCard = `{
  "cardId": "card-9",
  "title": "StoryForge",
  "createdAt": "2025-01-01T00:00:00Z",
  "updatedAt": "2025-03-01T00:00:00Z",
  "content": {
    "playbackType": "linear",
    "chapters": [
      {"key":"01","title":"First","customField":{"nested":[1,2,3]},"tracks":[{"key":"01","title":"First","trackUrl":"yoto:#aaa","type":"audio","format":"mp3","duration":120,"fileSize":600000,"channels":"stereo"}]},
      {"key":"02","title":"Second","tracks":[{"key":"01","title":"Second","trackUrl":"yoto:#bbb","type":"audio","format":"mp3","duration":80,"fileSize":400000}]}
    ]
  },
  "metadata": {"description":"keep me","cover":{"imageL":"https://img/1.png"},"media":{"duration":1,"fileSize":1}}
}`

func TestToPlaylistAndBackPreservesFetchedChapters(t *testing.T) {
	var card platform.Card
	if err := json.Unmarshal([]byte(fetchedCard), &card); err != nil {
		t.Fatalf("decode card: %v", err)
	}
	p, err := platform.ToPlaylist(card)
	if err != nil {
		t.Fatalf("ToPlaylist: %v", err)
	}
	if len(p.Chapters) != 2 || p.Cover != "https://img/1.png" || p.UpdatedAt != "2025-03-01T00:00:00Z" {
		t.Fatalf("unexpected playlist: %+v", p)
	}
	if p.Chapters[0].Tracks[0].Media.DurationSeconds != 120 || p.Chapters[1].Tracks[0].Media.FileSizeBytes != 400000 {
		t.Fatalf("track media not projected: %+v", p.Chapters)
	}

	p, _ = playlist.AppendChapter(p, playlist.ChapterSpec{Title: "Third", DisplayIcon: "yoto:#icon", Audio: playlist.MediaReference{Kind: playlist.MediaAudio, Locator: "yoto:#ccc", Format: "mp3", DurationSeconds: 200, FileSizeBytes: 1000000, Channels: "2"}})
	p = playlist.Recompute(p)

	out, err := platform.FromPlaylist(p)
	if err != nil {
		t.Fatalf("FromPlaylist: %v", err)
	}
	if out.CardID != "card-9" {
		t.Fatalf("expected card id carried, got %q", out.CardID)
	}

	var original struct {
		Content struct {
			Chapters []json.RawMessage `json:"chapters"`
		} `json:"content"`
	}
	if err := json.Unmarshal([]byte(fetchedCard), &original); err != nil {
		t.Fatalf("decode original: %v", err)
	}
	var emitted []json.RawMessage
	if err := json.Unmarshal(out.Content["chapters"], &emitted); err != nil {
		t.Fatalf("decode emitted chapters: %v", err)
	}
	if len(emitted) != 3 {
		t.Fatalf("expected 3 chapters, got %d", len(emitted))
	}
	for i := 0; i < 2; i++ {
		if string(emitted[i]) != string(original.Content.Chapters[i]) {
			t.Fatalf("chapter %d re-encoded:\n got %s\nwant %s", i, emitted[i], original.Content.Chapters[i])
		}
	}

	var third struct {
		Key    string `json:"key"`
		Tracks []struct {
			Key      string  `json:"key"`
			TrackURL string  `json:"trackUrl"`
			Duration float64 `json:"duration"`
			Channels int     `json:"channels"`
		} `json:"tracks"`
		Display struct {
			Icon string `json:"icon16x16"`
		} `json:"display"`
	}
	if err := json.Unmarshal(emitted[2], &third); err != nil {
		t.Fatalf("decode new chapter: %v", err)
	}
	if third.Key != "03" || third.Tracks[0].Key != "01" || third.Tracks[0].TrackURL != "yoto:#ccc" || third.Tracks[0].Channels != 2 || third.Display.Icon != "yoto:#icon" {
		t.Fatalf("unexpected new chapter: %s", emitted[2])
	}

	if string(out.Content["playbackType"]) != `"linear"` {
		t.Fatalf("content extra dropped: %v", out.Content)
	}
	if string(out.Metadata["description"]) != `"keep me"` {
		t.Fatalf("metadata extra dropped: %v", out.Metadata)
	}
	var media struct {
		Duration float64 `json:"duration"`
		FileSize int64   `json:"fileSize"`
	}
	if err := json.Unmarshal(out.Metadata["media"], &media); err != nil {
		t.Fatalf("decode media: %v", err)
	}
	if media.Duration != 400 || media.FileSize != 2000000 {
		t.Fatalf("unexpected aggregates: %+v", media)
	}
}
