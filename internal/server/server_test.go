package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"storyforge/internal/api"
	"storyforge/internal/auth"
	"storyforge/internal/config"
	"storyforge/internal/platform"
	"storyforge/internal/playlist"
	"storyforge/internal/reconcile"
	"storyforge/internal/services"
	"storyforge/internal/story"
	"storyforge/internal/testsupport"
)

type stubReconciler struct {
	inputs []reconcile.Input
	err    error
}

func (s *stubReconciler) Reconcile(_ context.Context, in reconcile.Input) (*reconcile.Descriptor, error) {
	s.inputs = append(s.inputs, in)
	if s.err != nil {
		return nil, s.err
	}
	return &reconcile.Descriptor{RunID: "run-1", ArtifactID: in.ArtifactID, CardID: "card-1", Title: in.PlaylistTitle, ChapterKey: "01", ChapterTitle: in.ChapterTitle, ChapterCount: 1}, nil
}

func (s *stubReconciler) Mode() string { return config.ModeReconcile }

type stubPlaylists struct{}

func (stubPlaylists) ListMine(context.Context) ([]playlist.Summary, error) {
	return []playlist.Summary{{ID: "c1", Title: "Bed Time"}}, nil
}

func (stubPlaylists) Fetch(_ context.Context, id string) (platform.Card, error) {
	return platform.Card{CardID: id, Title: "Bed Time"}, nil
}

type stubLogin struct {
	completed []string
}

func (s *stubLogin) Begin() (string, string) {
	return "https://login.example/authorize?state=abc", "abc"
}

func (s *stubLogin) Complete(_ context.Context, state, code string) (auth.TokenPair, error) {
	if state != "abc" {
		return auth.TokenPair{}, services.Wrap(services.ErrAuth, "auth", "callback", "unknown state", nil)
	}
	s.completed = append(s.completed, code)
	return auth.TokenPair{AccessToken: "a", RefreshToken: "r"}, nil
}

type stubSession struct {
	loggedOut bool
}

func (s *stubSession) Logout() error {
	s.loggedOut = true
	return nil
}

type fixture struct {
	srv        *Server
	reconciler *stubReconciler
	login      *stubLogin
	session    *stubSession
}

func newFixture(t *testing.T, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	rec := &stubReconciler{}
	svc := api.NewService(api.Deps{
		Config:     cfg,
		Reconciler: rec,
		Artifacts:  story.NewArtifactStore(cfg.Paths.StagingDir, nil),
		Playlists:  stubPlaylists{},
		Runs:       testsupport.MustOpenLedger(t, cfg),
	})
	login := &stubLogin{}
	session := &stubSession{}
	return &fixture{
		srv:        New(cfg, svc, login, session, nil),
		reconciler: rec,
		login:      login,
		session:    session,
	}
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	return w
}

func multipartBody(t *testing.T, fields map[string]string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	for name, data := range files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="`+name+`"; filename="`+name+`.bin"`)
		if name == "audio" {
			header.Set("Content-Type", "audio/mpeg")
		}
		part, err := mw.CreatePart(header)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func TestBearerTokenRequired(t *testing.T) {
	f := newFixture(t, testsupport.WithAPIToken("s3cret"))

	w := f.do(httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	if w := f.do(req); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	w = f.do(req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", w.Code)
	}
	var status api.Status
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Mode != config.ModeReconcile {
		t.Fatalf("unexpected status %+v", status)
	}

	if w := f.do(httptest.NewRequest(http.MethodPost, "/auth/logout", nil)); w.Code != http.StatusUnauthorized {
		t.Fatalf("logout should require the token, got %d", w.Code)
	}
}

func TestPostChapter(t *testing.T) {
	f := newFixture(t)
	body, contentType := multipartBody(t,
		map[string]string{"playlist": "Bed Time", "title": "The Fox", "hero": "Fox"},
		map[string][]byte{"audio": []byte("ID3audio"), "image": []byte("\x89PNG\r\n\x1a\n0000")},
	)
	req := httptest.NewRequest(http.MethodPost, "/api/chapters", body)
	req.Header.Set("Content-Type", contentType)

	w := f.do(req)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if len(f.reconciler.inputs) != 1 {
		t.Fatalf("expected one reconcile, got %d", len(f.reconciler.inputs))
	}
	in := f.reconciler.inputs[0]
	if in.PlaylistTitle != "Bed Time" || in.ChapterTitle != "The Fox" || string(in.Audio) != "ID3audio" {
		t.Fatalf("unexpected input %+v", in)
	}
	if in.ImageMIME != "image/png" {
		t.Fatalf("expected sniffed image/png, got %q", in.ImageMIME)
	}
	var chapter api.Chapter
	if err := json.Unmarshal(w.Body.Bytes(), &chapter); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if chapter.CardID != "card-1" || chapter.ArtifactID == "" {
		t.Fatalf("unexpected chapter %+v", chapter)
	}
}

func TestPostChapterRequiresAudio(t *testing.T) {
	f := newFixture(t)
	body, contentType := multipartBody(t, map[string]string{"title": "x"}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/chapters", body)
	req.Header.Set("Content-Type", contentType)
	if w := f.do(req); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestPostChapterTooLarge(t *testing.T) {
	f := newFixture(t)
	f.srv.maxUpload = 1024
	body, contentType := multipartBody(t, nil, map[string][]byte{"audio": bytes.Repeat([]byte("a"), 4096)})
	req := httptest.NewRequest(http.MethodPost, "/api/chapters", body)
	req.Header.Set("Content-Type", contentType)
	if w := f.do(req); w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", w.Code)
	}
}

func TestFailureMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		phase  string
	}{
		{"busy", &reconcile.Failure{Phase: "lock", Err: services.Wrap(services.ErrBusy, "lock", "acquire", "", nil)}, http.StatusConflict, "lock"},
		{"timeout", &reconcile.Failure{Phase: "transcode", RunID: "r", Err: services.Wrap(services.ErrTranscodeTimeout, "transcode", "wait", "", nil)}, http.StatusGatewayTimeout, "transcode"},
		{"auth", &reconcile.Failure{Phase: "auth", RunID: "r", Err: services.Wrap(services.ErrAuth, "auth", "token", "", nil)}, http.StatusUnauthorized, "auth"},
		{"upload", &reconcile.Failure{Phase: "audio", RunID: "r", Err: services.Wrap(services.ErrUpload, "audio", "put", "", errors.New("500"))}, http.StatusBadGateway, "audio"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.reconciler.err = tc.err
			body, contentType := multipartBody(t, nil, map[string][]byte{"audio": []byte("ID3")})
			req := httptest.NewRequest(http.MethodPost, "/api/chapters", body)
			req.Header.Set("Content-Type", contentType)
			w := f.do(req)
			if w.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, w.Code)
			}
			var payload api.Error
			if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if payload.Phase != tc.phase {
				t.Fatalf("expected phase %q, got %+v", tc.phase, payload)
			}
		})
	}
}

func TestPostStoryWithoutGenerator(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/api/stories", strings.NewReader(`{"hero_name":"Ada","setup":"a boat"}`))
	if w := f.do(req); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	req = httptest.NewRequest(http.MethodPost, "/api/stories", strings.NewReader(`{`))
	if w := f.do(req); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad json, got %d", w.Code)
	}
}

func TestGetPlaylistByEscapedTitle(t *testing.T) {
	f := newFixture(t)
	w := f.do(httptest.NewRequest(http.MethodGet, "/api/playlists/Bed%20Time", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var view api.PlaylistView
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.CardID != "c1" {
		t.Fatalf("unexpected view %+v", view)
	}
	if w := f.do(httptest.NewRequest(http.MethodGet, "/api/playlists/Nope", nil)); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestRunsAndOrphans(t *testing.T) {
	f := newFixture(t)
	if w := f.do(httptest.NewRequest(http.MethodGet, "/api/runs?limit=5", nil)); w.Code != http.StatusOK {
		t.Fatalf("runs: %d", w.Code)
	}
	if w := f.do(httptest.NewRequest(http.MethodGet, "/api/runs?limit=x", nil)); w.Code != http.StatusBadRequest {
		t.Fatalf("bad limit: %d", w.Code)
	}
	w := f.do(httptest.NewRequest(http.MethodGet, "/api/orphans", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"orphans"`) {
		t.Fatalf("orphans: %d %s", w.Code, w.Body.String())
	}
	w = f.do(httptest.NewRequest(http.MethodPost, "/api/orphans/resolve", strings.NewReader(`{"ids":[1]}`)))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"resolved":0`) {
		t.Fatalf("resolve: %d %s", w.Code, w.Body.String())
	}
}

func TestLoginRoutes(t *testing.T) {
	f := newFixture(t)
	w := f.do(httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	if w.Code != http.StatusFound || !strings.HasPrefix(w.Header().Get("Location"), "https://login.example/authorize") {
		t.Fatalf("unexpected login response %d %q", w.Code, w.Header().Get("Location"))
	}

	w = f.do(httptest.NewRequest(http.MethodGet, "/auth/callback?state=abc&code=xyz", nil))
	if w.Code != http.StatusOK || len(f.login.completed) != 1 || f.login.completed[0] != "xyz" {
		t.Fatalf("callback failed: %d %v", w.Code, f.login.completed)
	}
	if w := f.do(httptest.NewRequest(http.MethodGet, "/auth/callback?state=zzz&code=xyz", nil)); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown state, got %d", w.Code)
	}
	if w := f.do(httptest.NewRequest(http.MethodGet, "/auth/callback?error=access_denied", nil)); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for denied login, got %d", w.Code)
	}

	if w := f.do(httptest.NewRequest(http.MethodPost, "/auth/logout", nil)); w.Code != http.StatusOK || !f.session.loggedOut {
		t.Fatalf("logout failed: %d", w.Code)
	}
}
