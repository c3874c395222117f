// Package httpapi serves a read-mostly HTTP inspection API over the asset
// service, with a WebSocket stream of service events.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/conduit-lang/assetforge/internal/service"
)

const shutdownTimeout = 5 * time.Second

// Options configures a Server
type Options struct {
	Logger *zap.Logger
	// TokenSecret enables bearer JWT authentication when set
	TokenSecret string
}

// Server is the HTTP API
type Server struct {
	svc    *service.Service
	logger *zap.Logger
	auth   *TokenAuth
	hub    *Hub
	mux    chi.Router
}

// New creates a server and starts its event hub. Close stops the hub.
func New(svc *service.Service, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		svc:    svc,
		logger: logger,
		hub:    NewHub(svc.Events(), logger),
	}
	if opts.TokenSecret != "" {
		s.auth = NewTokenAuth(opts.TokenSecret)
	}
	go s.hub.Run()
	s.mux = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(recoverer(s.logger))
	r.Use(requestLogger(s.logger))

	r.Route("/api", func(r chi.Router) {
		if s.auth != nil {
			r.Use(s.auth.Middleware)
		}
		r.Get("/assets", s.listAssets)
		r.Get("/assets/*", s.getAsset)
		r.Post("/compile/*", s.compileAsset)
		r.Get("/types", s.listTypes)
		r.Get("/thumbnails/*", s.thumbnail)
		r.Handle("/events", s.hub)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		renderError(w, http.StatusNotFound, errors.New("route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		renderError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	})
	return r
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Auth returns the token authenticator, or nil when authentication is off
func (s *Server) Auth() *TokenAuth {
	return s.auth
}

// Hub returns the event hub
func (s *Server) Hub() *Hub {
	return s.hub
}

// Close stops the event hub
func (s *Server) Close() {
	s.hub.Close()
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http api listening", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		// hijacked WebSocket connections are not tracked by Shutdown
		s.hub.Close()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
