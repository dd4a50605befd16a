package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"storyforge/internal/api"
	"storyforge/internal/auth"
	"storyforge/internal/config"
	"storyforge/internal/logging"
	"storyforge/internal/services"
)

const defaultMaxUploadBytes = 64 << 20

// LoginFlow runs the browser sign-in.
type LoginFlow interface {
	Begin() (authURL string, state string)
	Complete(ctx context.Context, state, code string) (auth.TokenPair, error)
}

// Session clears the stored platform session.
type Session interface {
	Logout() error
}

// Server exposes the StoryForge workflows over HTTP.
type Server struct {
	bind      string
	token     string
	maxUpload int64

	svc     *api.Service
	login   LoginFlow
	session Session
	logger  *slog.Logger

	router   chi.Router
	listener net.Listener
	http     *http.Server
}

// New constructs a Server. login and session may be nil, in which case the
// /auth routes answer 503.
func New(cfg *config.Config, svc *api.Service, login LoginFlow, session Session, logger *slog.Logger) *Server {
	s := &Server{
		bind:      strings.TrimSpace(cfg.Server.Bind),
		token:     cfg.Server.APIToken,
		maxUpload: int64(cfg.Server.MaxUploadMB) << 20,
		svc:       svc,
		login:     login,
		session:   session,
		logger:    logging.NewComponentLogger(logger, "api-server"),
	}
	if s.maxUpload <= 0 {
		s.maxUpload = defaultMaxUploadBytes
	}
	s.router = s.routes()
	s.http = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       2 * time.Minute,
		// Story generation and transcode waits run inside the request.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestContext)
	r.Use(middleware.Recoverer)

	r.Get("/auth/login", s.handleLogin)
	r.Get("/auth/callback", s.handleCallback)
	r.With(bearerAuth(s.token)).Post("/auth/logout", s.handleLogout)

	r.Route("/api", func(r chi.Router) {
		r.Use(bearerAuth(s.token))
		r.Get("/status", s.handleStatus)
		r.Post("/chapters", s.handleChapters)
		r.Post("/stories", s.handleStories)
		r.Get("/playlists/{title}", s.handlePlaylist)
		r.Get("/runs", s.handleRuns)
		r.Get("/orphans", s.handleOrphans)
		r.Post("/orphans/resolve", s.handleResolveOrphans)
		r.Get("/artifacts", s.handleArtifacts)
		r.Post("/artifacts/{id}/publish", s.handlePublishArtifact)
	})
	return r
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	errs := make(chan error, 1)
	go func() {
		if err := s.http.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()
	s.logger.Info("api server listening",
		logging.String("address", listener.Addr().String()),
		logging.Bool("auth_required", s.token != ""),
		logging.Event("server_listening"),
	)

	select {
	case <-ctx.Done():
	case err := <-errs:
		if err != nil {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api shutdown: %w", err)
	}
	s.logger.Info("api server stopped", logging.Event("server_stopped"))
	return nil
}

// Addr reports the bound address once Run has started listening.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.bind
	}
	return s.listener.Addr().String()
}

func (s *Server) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := middleware.GetReqID(ctx); id != "" {
			ctx = services.WithRequestID(ctx, id)
		}
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))
		logging.WithContext(ctx, s.logger).Debug("request served",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", ww.Status()),
			logging.Duration("elapsed", time.Since(started)),
		)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.Error{Message: message, Kind: kindForStatus(status)})
}

// writeFailure renders a workflow error with the status its kind maps to.
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	payload := api.FromError(err)
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		logging.WarnWithContext(logging.WithContext(r.Context(), s.logger), "request failed", "request_failed",
			logging.String("path", r.URL.Path),
			logging.String("kind", payload.Kind),
			logging.Phase(payload.Phase),
			logging.Error(err),
			logging.Impact("request returned an error to the client"),
		)
	}
	s.writeJSON(w, status, payload)
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrBusy), errors.Is(err, services.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, services.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrConfiguration):
		return http.StatusServiceUnavailable
	case errors.Is(err, services.ErrTranscodeTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func kindForStatus(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return "validation"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusServiceUnavailable:
		return "configuration"
	default:
		return "transient"
	}
}
