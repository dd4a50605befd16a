package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"storyforge/internal/logging"
	"storyforge/internal/services"
)

const (
	// AudioMIME is the format the speech endpoint returns.
	AudioMIME = "audio/mpeg"

	defaultMaxChunkChars = 1800
	defaultTimeout       = 120 * time.Second
)

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("tts api key not configured")

// Config captures the speech endpoint settings.
type Config struct {
	BaseURL        string
	APIKey         string
	Voice          string
	TimeoutSeconds int
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithMaxChunkChars bounds the text sent per request.
func WithMaxChunkChars(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxChunk = n
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client synthesizes speech over HTTP.
type Client struct {
	cfg      Config
	http     *http.Client
	maxChunk int
	logger   *slog.Logger
}

// NewClient constructs a speech client.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	c := &Client{
		cfg: Config{
			BaseURL: strings.TrimSpace(cfg.BaseURL),
			APIKey:  strings.TrimSpace(cfg.APIKey),
			Voice:   strings.TrimSpace(cfg.Voice),
		},
		http:     &http.Client{Timeout: timeout},
		maxChunk: defaultMaxChunkChars,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.NewComponentLogger(c.logger, "tts")
	return c
}

// Synthesize returns MP3 audio narrating text. Long text is split on sentence
// boundaries and the MP3 streams are concatenated in order.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if c.cfg.APIKey == "" {
		return nil, services.Wrap(services.ErrConfiguration, "tts", "synthesize", "set tts.api_key or TTS_API_KEY", ErrNotConfigured)
	}
	chunks := SplitText(text, c.maxChunk)
	if len(chunks) == 0 {
		return nil, services.Wrap(services.ErrValidation, "tts", "synthesize", "text is empty", nil)
	}
	var audio bytes.Buffer
	for i, chunk := range chunks {
		data, err := c.synthesizeChunk(ctx, chunk)
		if err != nil {
			return nil, fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
		audio.Write(data)
	}
	c.logger.Debug("speech synthesized",
		logging.Int("chunks", len(chunks)),
		logging.Int("bytes", audio.Len()),
	)
	return audio.Bytes(), nil
}

func (c *Client) synthesizeChunk(ctx context.Context, text string) ([]byte, error) {
	endpoint, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "tts", "build url", "", err)
	}
	if c.cfg.Voice != "" {
		query := endpoint.Query()
		query.Set("model", c.cfg.Voice)
		endpoint.RawQuery = query.Encode()
	}
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("encode tts request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build tts request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", AudioMIME)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, services.Wrap(services.ErrTransient, "tts", "synthesize", "", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		detail := fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return nil, services.Wrap(services.ErrConfiguration, "tts", "synthesize", detail, nil)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return nil, services.Wrap(services.ErrTransient, "tts", "synthesize", detail, nil)
		default:
			return nil, services.Wrap(services.ErrValidation, "tts", "synthesize", detail, nil)
		}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "tts", "read audio", "", err)
	}
	if len(data) == 0 {
		return nil, services.Wrap(services.ErrTransient, "tts", "read audio", "empty response", nil)
	}
	return data, nil
}

// SplitText breaks text into pieces of at most limit bytes, preferring
// paragraph then sentence then word boundaries.
func SplitText(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if limit <= 0 || len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, s)
		}
		current.Reset()
	}
	for _, sentence := range sentences(text) {
		for len(sentence) > limit {
			flush()
			cut := strings.LastIndexByte(sentence[:limit], ' ')
			if cut <= 0 {
				cut = runeBoundary(sentence, limit)
			}
			chunks = append(chunks, strings.TrimSpace(sentence[:cut]))
			sentence = strings.TrimSpace(sentence[cut:])
		}
		if current.Len() > 0 && current.Len()+1+len(sentence) > limit {
			flush()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(sentence)
	}
	flush()
	return chunks
}

// runeBoundary moves limit back to the start of a UTF-8 sequence, always
// keeping at least one whole rune.
func runeBoundary(s string, limit int) int {
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	if cut == 0 {
		_, size := utf8.DecodeRuneInString(s)
		cut = size
	}
	return cut
}

func sentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '.', '!', '?', '\n':
			end := i + 1
			if s := strings.TrimSpace(text[start:end]); s != "" {
				out = append(out, s)
			}
			start = end
		}
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}
