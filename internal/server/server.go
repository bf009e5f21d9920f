// Package server exposes the transform pipeline and stored sessions over
// HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/verte-zerg/keyprofile/internal/binner"
	"github.com/verte-zerg/keyprofile/internal/model"
)

// DefaultMaxBodyBytes caps request bodies.
const DefaultMaxBodyBytes = 4 << 20

// SessionStore is the persistence used by the session endpoints.
type SessionStore interface {
	InsertSession(ctx context.Context, rec model.SessionRecord) (int64, error)
	GetSession(ctx context.Context, id int64) (model.SessionRecord, error)
	ListSessions(ctx context.Context, cfg model.StatsConfig) ([]model.SessionAggregate, error)
	DeleteSession(ctx context.Context, id int64) error
}

// Options configures a Server.
type Options struct {
	Store        SessionStore
	Recorder     model.RecorderConfig
	Binner       binner.Config
	CORSOrigins  []string
	MaxBodyBytes int64
}

// Server serves the HTTP API.
type Server struct {
	opts Options
	now  func() time.Time
}

// New returns a server. A nil store disables the session endpoints.
func New(opts Options) *Server {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return &Server{opts: opts, now: time.Now}
}

// Handler returns the routed handler with CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		JSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("POST /transform", WithLogging(s.handleTransform))
	mux.HandleFunc("POST /sessions", WithLogging(s.handleCreateSession))
	mux.HandleFunc("GET /sessions", WithLogging(s.handleListSessions))
	mux.HandleFunc("GET /sessions/{id}", WithLogging(s.handleGetSession))
	mux.HandleFunc("DELETE /sessions/{id}", WithLogging(s.handleDeleteSession))

	return CORS(s.opts.CORSOrigins, mux)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	slog.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
