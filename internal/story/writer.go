package story

import (
	"context"
	"errors"
	"strings"

	"storyforge/internal/services"
	"storyforge/internal/services/llm"
)

// Draft is generated story text.
type Draft struct {
	Title string `json:"title"`
	Story string `json:"story"`
}

// Completer is the LLM surface the writer needs.
type Completer interface {
	CompleteJSONWithImage(ctx context.Context, systemPrompt, userPrompt string, image *llm.Image) (string, error)
}

// Writer turns prompts into story text.
type Writer struct {
	llm Completer
}

// NewWriter constructs a Writer.
func NewWriter(completer Completer) *Writer {
	return &Writer{llm: completer}
}

// Write generates a story for p.
func (w *Writer) Write(ctx context.Context, p Prompt) (Draft, error) {
	band := ResolveAgeBand(p.AgeBand)
	var image *llm.Image
	if len(p.Image) > 0 {
		image = &llm.Image{Data: p.Image, MIMEType: p.ImageMIME}
	}
	content, err := w.llm.CompleteJSONWithImage(ctx, systemPrompt, userPrompt(p, band), image)
	if err != nil {
		return Draft{}, writerError(err)
	}
	var draft Draft
	if err := llm.DecodeLLMJSON(content, &draft); err != nil {
		return Draft{}, services.Wrap(services.ErrTransient, "story", "decode draft", "", err)
	}
	draft.Title = strings.TrimSpace(draft.Title)
	draft.Story = strings.TrimSpace(draft.Story)
	if draft.Story == "" {
		return Draft{}, services.Wrap(services.ErrTransient, "story", "decode draft", "model returned no story text", nil)
	}
	if draft.Title == "" {
		draft.Title = strings.TrimSpace(p.HeroName)
	}
	return draft, nil
}

func writerError(err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, llm.ErrNotConfigured):
		return services.Wrap(services.ErrConfiguration, "story", "write", "set llm.api_key or OPENROUTER_API_KEY", err)
	case llm.StatusCode(err) == 401 || llm.StatusCode(err) == 403:
		return services.Wrap(services.ErrConfiguration, "story", "write", "llm rejected the api key", err)
	default:
		return services.Wrap(services.ErrTransient, "story", "write", "", err)
	}
}
