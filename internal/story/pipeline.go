package story

import (
	"context"
	"log/slog"
	"strings"

	"storyforge/internal/config"
	"storyforge/internal/logging"
	"storyforge/internal/services"
	"storyforge/internal/services/llm"
	"storyforge/internal/story/tts"
)

// Speaker narrates story text.
type Speaker interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Pipeline generates a story, narrates it and saves the result locally.
type Pipeline struct {
	writer  *Writer
	speaker Speaker
	store   *ArtifactStore
	logger  *slog.Logger
}

// NewPipeline wires the pipeline collaborators.
func NewPipeline(writer *Writer, speaker Speaker, store *ArtifactStore, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		writer:  writer,
		speaker: speaker,
		store:   store,
		logger:  logging.NewComponentLogger(logger, "story"),
	}
}

// NewPipelineFromConfig builds the LLM and speech clients from cfg.
func NewPipelineFromConfig(cfg *config.Config, store *ArtifactStore, logger *slog.Logger) *Pipeline {
	completer := llm.NewClient(llm.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		Referer:        cfg.LLM.Referer,
		Title:          cfg.LLM.Title,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
	})
	speaker := tts.NewClient(tts.Config{
		BaseURL:        cfg.TTS.BaseURL,
		APIKey:         cfg.TTS.APIKey,
		Voice:          cfg.TTS.Voice,
		TimeoutSeconds: cfg.TTS.TimeoutSeconds,
	}, tts.WithLogger(logger))
	return NewPipeline(NewWriter(completer), speaker, store, logger)
}

// Store exposes the artifact store the pipeline saves into.
func (p *Pipeline) Store() *ArtifactStore {
	return p.store
}

// Generate turns prompt into a saved artifact with text and narration.
// The child's drawing, when supplied, is kept as the cover.
func (p *Pipeline) Generate(ctx context.Context, prompt Prompt) (*Artifact, error) {
	if err := prompt.Validate(); err != nil {
		return nil, err
	}
	band := ResolveAgeBand(prompt.AgeBand)
	logger := logging.WithContext(ctx, p.logger).With(
		logging.String("hero", strings.TrimSpace(prompt.HeroName)),
		logging.String("age_band", band.Name),
	)

	logger.Info("writing story", logging.Event("story_write_started"))
	draft, err := p.writer.Write(ctx, prompt)
	if err != nil {
		return nil, err
	}

	logger.Info("narrating story",
		logging.String("title", draft.Title),
		logging.Int("characters", len(draft.Story)),
		logging.Event("story_narration_started"),
	)
	audio, err := p.speaker.Synthesize(ctx, narration(draft))
	if err != nil {
		return nil, err
	}
	if len(audio) == 0 {
		return nil, services.Wrap(services.ErrTransient, "story", "narrate", "speech endpoint returned no audio", nil)
	}

	artifact := &Artifact{
		Title:     draft.Title,
		HeroName:  strings.TrimSpace(prompt.HeroName),
		AgeBand:   band.Name,
		Text:      draft.Story,
		Audio:     audio,
		AudioMIME: tts.AudioMIME,
		Image:     prompt.Image,
		ImageMIME: prompt.ImageMIME,
	}
	if err := p.store.Save(artifact); err != nil {
		return nil, err
	}
	logger.Info("story ready",
		logging.String("artifact_id", artifact.ID),
		logging.String("title", artifact.Title),
		logging.Event("story_ready"),
	)
	return artifact, nil
}

func narration(d Draft) string {
	return d.Title + ".\n\n" + d.Story
}
