package story

import (
	"fmt"
	"strings"

	"storyforge/internal/services"
)

// DefaultAgeBand is used when a prompt names no band or an unknown one.
const DefaultAgeBand = "6-8"

// AgeBand tunes story length and language to the listener.
type AgeBand struct {
	Name        string
	TargetWords int
	Directive   string
}

var ageBands = map[string]AgeBand{
	"3-5": {
		Name:        "3-5",
		TargetWords: 300,
		Directive:   "Use very short, simple sentences and words a preschooler already knows. Repeat a gentle refrain.",
	},
	"6-8": {
		Name:        "6-8",
		TargetWords: 600,
		Directive:   "Use early-reader vocabulary, short paragraphs and a little dialogue.",
	},
	"9-12": {
		Name:        "9-12",
		TargetWords: 1000,
		Directive:   "Use richer vocabulary, vivid description, dialogue and a satisfying twist.",
	},
}

// ResolveAgeBand returns the band for name, falling back to DefaultAgeBand.
func ResolveAgeBand(name string) AgeBand {
	if band, ok := ageBands[strings.TrimSpace(name)]; ok {
		return band
	}
	return ageBands[DefaultAgeBand]
}

// Prompt is what the user supplies for one story.
type Prompt struct {
	HeroName  string `json:"hero_name"`
	Setup     string `json:"setup"`
	Rising    string `json:"rising"`
	Climax    string `json:"climax"`
	AgeBand   string `json:"age_band"`
	Image     []byte `json:"-"`
	ImageMIME string `json:"-"`
}

// Validate checks the fields every story needs.
func (p Prompt) Validate() error {
	if strings.TrimSpace(p.HeroName) == "" {
		return services.Wrap(services.ErrValidation, "story", "validate prompt", "hero name is required", nil)
	}
	if strings.TrimSpace(p.Setup) == "" {
		return services.Wrap(services.ErrValidation, "story", "validate prompt", "setup is required", nil)
	}
	return nil
}

const systemPrompt = `You write bedtime stories for children that will be read aloud by a narrator.
Stories are warm, safe and end calmly. Never include violence, fear that is not resolved, or brand names.
Respond with JSON only: {"title": "<short story title>", "story": "<the full story text>"}.
The story text is plain prose with paragraphs separated by blank lines. No headings, no markdown.`

func userPrompt(p Prompt, band AgeBand) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a story of about %d words for a child aged %s.\n", band.TargetWords, band.Name)
	b.WriteString(band.Directive)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Hero: %s\n", strings.TrimSpace(p.HeroName))
	fmt.Fprintf(&b, "Beginning: %s\n", strings.TrimSpace(p.Setup))
	if rising := strings.TrimSpace(p.Rising); rising != "" {
		fmt.Fprintf(&b, "Something happens: %s\n", rising)
	}
	if climax := strings.TrimSpace(p.Climax); climax != "" {
		fmt.Fprintf(&b, "The big moment: %s\n", climax)
	}
	if len(p.Image) > 0 {
		b.WriteString("\nThe attached drawing was made by the child and shows the hero. Describe the hero the way the drawing shows them.\n")
	}
	return b.String()
}
