package reconcile_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"storyforge/internal/logging"
	"storyforge/internal/media"
	"storyforge/internal/notifications"
	"storyforge/internal/platform"
	"storyforge/internal/reconcile"
)

const existingCard = `{
  "cardId": "card-old",
  "title": "StoryForge",
  "createdAt": "2024-01-01T00:00:00Z",
  "updatedAt": "2025-03-01T00:00:00Z",
  "content": {
    "playbackType": "linear",
    "chapters": [
      {"key":"01","title":"First","tracks":[{"key":"01","title":"First","trackUrl":"yoto:#aaa","type":"audio","format":"mp3","duration":120,"fileSize":600000}]},
      {"key":"02","title":"Second","tracks":[{"key":"01","title":"Second","trackUrl":"yoto:#bbb","type":"audio","format":"mp3","duration":80,"fileSize":400000}]}
    ]
  },
  "metadata": {"description":"bedtime stories","media":{"duration":200,"fileSize":1000000}}
}`

const readyTranscode = `{"transcode":{"transcodedSha256":"sha-new","transcodedInfo":{"format":"mp3","duration":200,"fileSize":1000000,"channels":"stereo"}}}`

type staticTokens string

func (s staticTokens) AccessToken(context.Context) (string, error) { return string(s), nil }

type failingTokens struct{ err error }

func (f failingTokens) AccessToken(context.Context) (string, error) { return "", f.err }

// fakePlatform serves the content and media endpoints from memory.
type fakePlatform struct {
	t      *testing.T
	server *httptest.Server

	mu            sync.Mutex
	listing       string
	cards         map[string]string
	refetched     map[string]string
	coverStatus   int
	putStatus     int
	persistStatus int
	readyAfter    int

	listCalls    int
	fetchCalls   int
	coverUploads int
	audioPuts    int
	polls        int
	upserts      []json.RawMessage
}

func newFakePlatform(t *testing.T) *fakePlatform {
	t.Helper()
	fp := &fakePlatform{
		t:          t,
		listing:    `[]`,
		cards:      map[string]string{},
		refetched:  map[string]string{},
		readyAfter: 1,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /content/mine", fp.handleList)
	mux.HandleFunc("GET /content/{id}", fp.handleFetch)
	mux.HandleFunc("POST /content", fp.handleUpsert)
	mux.HandleFunc("POST /media/coverImage/user/me/upload", fp.handleCover)
	mux.HandleFunc("GET /media/transcode/audio/uploadUrl", fp.handleSlot)
	mux.HandleFunc("PUT /put/{id}", fp.handlePut)
	mux.HandleFunc("GET /media/upload/{id}/transcoded", fp.handleTranscode)
	fp.server = httptest.NewServer(mux)
	t.Cleanup(fp.server.Close)
	return fp
}

func (fp *fakePlatform) handleList(w http.ResponseWriter, r *http.Request) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.listCalls++
	_, _ = io.WriteString(w, fp.listing)
}

func (fp *fakePlatform) handleFetch(w http.ResponseWriter, r *http.Request) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.fetchCalls++
	id := r.PathValue("id")
	body, ok := fp.cards[id]
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if next, ok := fp.refetched[id]; ok && fp.fetchCalls > 1 {
		body = next
	}
	_, _ = io.WriteString(w, body)
}

func (fp *fakePlatform) handleUpsert(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		fp.t.Errorf("read upsert body: %v", err)
	}
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.upserts = append(fp.upserts, body)
	if fp.persistStatus != 0 {
		http.Error(w, "quota exceeded", fp.persistStatus)
		return
	}
	var card map[string]json.RawMessage
	if err := json.Unmarshal(body, &card); err != nil {
		fp.t.Errorf("decode upsert body: %v", err)
	}
	if _, ok := card["cardId"]; !ok {
		card["cardId"] = json.RawMessage(`"card-created"`)
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"card": card})
}

func (fp *fakePlatform) handleCover(w http.ResponseWriter, r *http.Request) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.coverUploads++
	if fp.coverStatus != 0 {
		http.Error(w, "unsupported", fp.coverStatus)
		return
	}
	_, _ = io.WriteString(w, `{"coverImage":{"mediaUrl":"https://img/new.png"}}`)
}

func (fp *fakePlatform) handleSlot(w http.ResponseWriter, r *http.Request) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"upload": map[string]string{
			"uploadUrl": fp.server.URL + "/put/up-1?signature=secret",
			"uploadId":  "up-1",
		},
	})
}

func (fp *fakePlatform) handlePut(w http.ResponseWriter, r *http.Request) {
	_, _ = io.Copy(io.Discard, r.Body)
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.audioPuts++
	if fp.putStatus != 0 {
		w.WriteHeader(fp.putStatus)
	}
}

func (fp *fakePlatform) handleTranscode(w http.ResponseWriter, r *http.Request) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.polls++
	if fp.readyAfter > 0 && fp.polls >= fp.readyAfter {
		_, _ = io.WriteString(w, readyTranscode)
		return
	}
	_, _ = io.WriteString(w, `{"transcode":{}}`)
}

func (fp *fakePlatform) lastUpsert(t *testing.T) map[string]any {
	t.Helper()
	fp.mu.Lock()
	defer fp.mu.Unlock()
	if len(fp.upserts) == 0 {
		t.Fatal("expected an upsert")
	}
	var card map[string]any
	if err := json.Unmarshal(fp.upserts[len(fp.upserts)-1], &card); err != nil {
		t.Fatalf("decode upsert: %v", err)
	}
	return card
}

func (fp *fakePlatform) client() *platform.Client {
	return platform.NewClient(fp.server.URL, staticTokens("tok"), platform.WithHTTPClient(fp.server.Client()))
}

func noSleep(context.Context, time.Duration) error { return nil }

func newReconciler(fp *fakePlatform, tokens reconcile.TokenSource, waiterOpts []media.TranscodeWaiterOption, opts ...reconcile.Option) *reconcile.Reconciler {
	client := fp.client()
	uploader := media.NewUploader(client, logging.NewNop())
	waiterOpts = append([]media.TranscodeWaiterOption{media.WithSleeper(noSleep)}, waiterOpts...)
	waiter := media.NewTranscodeWaiter(client, waiterOpts...)
	if tokens == nil {
		tokens = staticTokens("tok")
	}
	opts = append([]reconcile.Option{
		reconcile.WithLogger(logging.NewNop()),
		reconcile.WithDisplayIcon("yoto:#icon"),
	}, opts...)
	return reconcile.New(tokens, client, uploader, waiter, opts...)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (n *recordingNotifier) Publish(_ context.Context, event notifications.Event, _ notifications.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func audioInput(title string) reconcile.Input {
	return reconcile.Input{
		PlaylistTitle: title,
		HeroName:      "luna",
		Audio:         []byte("ID3 fake mp3 bytes"),
		ArtifactID:    "artifact-1",
	}
}

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func (fp *fakePlatform) count(field *int) int {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return *field
}

func (fp *fakePlatform) upsertCount() int {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return len(fp.upserts)
}
