package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"storyforge/internal/config"
)

const userAgent = "StoryForge-Go/0.1.0"

// Event identifies a notification kind.
type Event string

const (
	EventChapterAdded    Event = "chapter_added"
	EventPlaylistCreated Event = "playlist_created"
	EventReconcileFailed Event = "reconcile_failed"
	EventMediaOrphaned   Event = "media_orphaned"
	EventTest            Event = "test"
)

// Payload carries event fields. Keys are event specific.
type Payload map[string]any

// Service publishes events to the user.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:     topic,
		client:       &http.Client{Timeout: timeout},
		chapterAdded: cfg.Notifications.ChapterAdded,
		errors:       cfg.Notifications.Errors,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint     string
	client       *http.Client
	chapterAdded bool
	errors       bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if n == nil {
		return nil
	}
	msg, ok := n.format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventChapterAdded, EventPlaylistCreated:
		if !n.chapterAdded {
			return message{}, false
		}
		playlist := payload.text("playlist")
		chapter := payload.text("chapter")
		key := payload.text("chapterKey")
		title := "StoryForge - Chapter Added"
		body := fmt.Sprintf("📖 %s added to %s", chapter, playlist)
		if key != "" {
			body = fmt.Sprintf("📖 %s added to %s as chapter %s", chapter, playlist, key)
		}
		tags := []string{"storyforge", "chapter", "added"}
		if event == EventPlaylistCreated {
			title = "StoryForge - Playlist Created"
			body = fmt.Sprintf("✨ New playlist %s with %s", playlist, chapter)
			tags = []string{"storyforge", "playlist", "created"}
		}
		return message{title: title, body: body, tags: tags}, true
	case EventReconcileFailed:
		if !n.errors {
			return message{}, false
		}
		var builder strings.Builder
		builder.WriteString("❌ Upload failed")
		if phase := payload.text("phase"); phase != "" {
			builder.WriteString(" during ")
			builder.WriteString(phase)
		}
		if playlist := payload.text("playlist"); playlist != "" {
			builder.WriteString(" for ")
			builder.WriteString(playlist)
		}
		builder.WriteString(": ")
		if errText := payload.text("error"); errText != "" {
			builder.WriteString(errText)
		} else {
			builder.WriteString("unknown")
		}
		if artifact := payload.text("artifact"); artifact != "" {
			builder.WriteString("\nStory saved as ")
			builder.WriteString(artifact)
		}
		return message{
			title:    "StoryForge - Error",
			body:     builder.String(),
			tags:     []string{"storyforge", "error", "alert"},
			priority: "high",
		}, true
	case EventMediaOrphaned:
		if !n.errors {
			return message{}, false
		}
		return message{
			title: "StoryForge - Orphaned Media",
			body:  fmt.Sprintf("%s uploaded item(s) are not referenced by any playlist", payload.text("count")),
			tags:  []string{"storyforge", "media", "orphaned"},
		}, true
	case EventTest:
		return message{
			title:    "StoryForge - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"storyforge", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (p Payload) text(key string) string {
	value, ok := p[key]
	if !ok || value == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	if n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
