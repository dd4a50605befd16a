package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"storyforge/internal/playlist"
)

// ListMine returns the caller's playlists. The endpoint answers with a bare
// array, {"cards":[...]}, or {"content":[...]} depending on API version.
func (c *Client) ListMine(ctx context.Context) ([]playlist.Summary, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, "/content/mine", nil, &raw); err != nil {
		return nil, err
	}
	return decodeListing(raw)
}

func decodeListing(raw json.RawMessage) ([]playlist.Summary, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty listing body", ErrUnexpectedResponse)
	}
	if trimmed[0] == '[' {
		var entries []playlist.Summary
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, fmt.Errorf("%w: decode listing array: %v", ErrUnexpectedResponse, err)
		}
		return entries, nil
	}
	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, fmt.Errorf("%w: decode listing: %v", ErrUnexpectedResponse, err)
	}
	for _, key := range []string{"cards", "content"} {
		inner, ok := wrapped[key]
		if !ok {
			continue
		}
		inner = bytes.TrimSpace(inner)
		if len(inner) == 0 || inner[0] != '[' {
			continue
		}
		var entries []playlist.Summary
		if err := json.Unmarshal(inner, &entries); err != nil {
			return nil, fmt.Errorf("%w: decode listing %s: %v", ErrUnexpectedResponse, key, err)
		}
		return entries, nil
	}
	return nil, fmt.Errorf("%w: listing has no card array", ErrUnexpectedResponse)
}

// Fetch returns the full card including chapters.
func (c *Client) Fetch(ctx context.Context, cardID string) (Card, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, "/content/"+url.PathEscape(cardID), nil, &raw); err != nil {
		return Card{}, err
	}
	card, err := decodeCard(raw)
	if err != nil {
		return Card{}, err
	}
	if card.CardID == "" {
		card.CardID = cardID
	}
	return card, nil
}

// Upsert creates a card, or replaces it when card.CardID is set, and returns
// the platform's view of the result.
func (c *Client) Upsert(ctx context.Context, card Card) (Card, error) {
	if card.Content == nil {
		card.Content = map[string]json.RawMessage{}
	}
	if card.Metadata == nil {
		card.Metadata = map[string]json.RawMessage{}
	}
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodPost, "/content", card, &raw); err != nil {
		return Card{}, err
	}
	saved, err := decodeCard(raw)
	if err != nil {
		return Card{}, err
	}
	if saved.CardID == "" {
		saved.CardID = card.CardID
	}
	if saved.CardID == "" {
		return Card{}, fmt.Errorf("%w: upsert response missing cardId", ErrUnexpectedResponse)
	}
	return saved, nil
}

// decodeCard accepts a card object or one wrapped as {"card":{...}}.
func decodeCard(raw json.RawMessage) (Card, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return Card{}, fmt.Errorf("%w: decode card: %v", ErrUnexpectedResponse, err)
	}
	if inner, ok := probe["card"]; ok {
		if _, hasTitle := probe["title"]; !hasTitle {
			raw = inner
		}
	}
	var card Card
	if err := json.Unmarshal(raw, &card); err != nil {
		return Card{}, fmt.Errorf("%w: decode card: %v", ErrUnexpectedResponse, err)
	}
	return card, nil
}
