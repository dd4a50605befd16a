package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"storyforge/internal/api"
	"storyforge/internal/logging"
	"storyforge/internal/story"
)

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.svc.Status(r.Context()))
}

// handleChapters accepts multipart/form-data with an "audio" file, an
// optional "image" file and the text fields "playlist", "title" and "hero".
func (s *Server) handleChapters(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		s.writeBodyError(w, err)
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	audio, audioMIME, err := readPart(r.MultipartForm, "audio")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(audio) == 0 {
		s.writeError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	image, imageMIME, err := readPart(r.MultipartForm, "image")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	chapter, err := s.svc.UploadChapter(r.Context(), api.ChapterRequest{
		PlaylistTitle: r.FormValue("playlist"),
		ChapterTitle:  r.FormValue("title"),
		HeroName:      r.FormValue("hero"),
		Audio:         audio,
		AudioMIME:     audioMIME,
		Image:         image,
		ImageMIME:     imageMIME,
	})
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, chapter)
}

type storyRequest struct {
	HeroName  string `json:"hero_name"`
	Setup     string `json:"setup"`
	Rising    string `json:"rising"`
	Climax    string `json:"climax"`
	AgeBand   string `json:"age_band"`
	Playlist  string `json:"playlist"`
	Image     []byte `json:"image"`
	ImageMIME string `json:"image_mime"`
}

func (s *Server) handleStories(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	var req storyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeBodyError(w, err)
		return
	}
	prompt := story.Prompt{
		HeroName:  req.HeroName,
		Setup:     req.Setup,
		Rising:    req.Rising,
		Climax:    req.Climax,
		AgeBand:   req.AgeBand,
		Image:     req.Image,
		ImageMIME: strings.TrimSpace(req.ImageMIME),
	}
	if len(prompt.Image) > 0 && prompt.ImageMIME == "" {
		prompt.ImageMIME = http.DetectContentType(prompt.Image)
	}
	result, err := s.svc.CreateStory(r.Context(), prompt, req.Playlist)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handlePlaylist(w http.ResponseWriter, r *http.Request) {
	title, err := url.PathUnescape(chi.URLParam(r, "title"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid playlist title")
		return
	}
	view, err := s.svc.ShowPlaylist(r.Context(), title)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	runs, err := s.svc.Runs(r.Context(), limit)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleOrphans(w http.ResponseWriter, r *http.Request) {
	orphans, err := s.svc.Orphans(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"orphans": orphans})
}

func (s *Server) handleResolveOrphans(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []int64 `json:"ids"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			s.writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
	}
	n, err := s.svc.ResolveOrphans(r.Context(), req.IDs...)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"resolved": n})
}

func (s *Server) handleArtifacts(w http.ResponseWriter, r *http.Request) {
	artifacts, err := s.svc.Artifacts()
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"artifacts": artifacts})
}

func (s *Server) handlePublishArtifact(w http.ResponseWriter, r *http.Request) {
	chapter, err := s.svc.PublishArtifact(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("playlist"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, chapter)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.login == nil {
		s.writeError(w, http.StatusServiceUnavailable, "login is not configured")
		return
	}
	authURL, _ := s.login.Begin()
	http.Redirect(w, r, authURL, http.StatusFound)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	if s.login == nil {
		s.writeError(w, http.StatusServiceUnavailable, "login is not configured")
		return
	}
	query := r.URL.Query()
	if msg := query.Get("error"); msg != "" {
		logging.WarnWithContext(s.logger, "login denied", "login_denied",
			logging.String("error", msg),
			logging.String("description", query.Get("error_description")),
			logging.Hint("retry sign-in from /auth/login"),
		)
		http.Error(w, "Login failed: "+msg, http.StatusBadRequest)
		return
	}
	if _, err := s.login.Complete(r.Context(), query.Get("state"), query.Get("code")); err != nil {
		logging.WarnWithContext(s.logger, "login callback failed", "login_failed",
			logging.Error(err),
			logging.Hint("retry sign-in from /auth/login"),
		)
		http.Error(w, "Login failed. Start again from /auth/login.", http.StatusBadRequest)
		return
	}
	s.logger.Info("platform sign-in complete", logging.Event("login_complete"))
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintln(w, "Login complete. You can close this window.")
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if s.session == nil {
		s.writeError(w, http.StatusServiceUnavailable, "login is not configured")
		return
	}
	if err := s.session.Logout(); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"signedIn": false})
}

func (s *Server) writeBodyError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
		s.writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", s.maxUpload))
		return
	}
	s.writeError(w, http.StatusBadRequest, "invalid request body")
}

// readPart returns the first file under field with its declared or sniffed
// content type. A missing field yields nil data and no error.
func readPart(form *multipart.Form, field string) ([]byte, string, error) {
	if form == nil || len(form.File[field]) == 0 {
		return nil, "", nil
	}
	header := form.File[field][0]
	f, err := header.Open()
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", field, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", field, err)
	}
	mimeType := strings.TrimSpace(header.Header.Get("Content-Type"))
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}
	return data, mimeType, nil
}
