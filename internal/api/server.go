package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/shohag/webhookrouter/internal/config"
)

type Server struct {
	cfg       config.ServerConfig
	messages  MessageService
	connected func() bool
	router    *chi.Mux
	log       zerolog.Logger
	http      *http.Server
}

func NewServer(cfg config.ServerConfig, messages MessageService, connected func() bool, log zerolog.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		messages:  messages,
		connected: connected,
		log:       log.With().Str("component", "http").Logger(),
	}
	s.router = s.buildRouter()
	s.http = &http.Server{
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware(s.log, s.cfg.SlowRequest))
	r.Use(RecoverMiddleware(s.log))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	webhooks := NewWebhookHandler(s.messages, s.cfg.MaxBodyBytes, s.log)
	health := NewHealthHandler(s.connected)

	r.Get("/health", health.Health)

	prefix := strings.TrimRight(s.cfg.Prefix, "/")
	r.Get(prefix+"/{channel}", webhooks.History)
	r.Post(prefix+"/{channel}", webhooks.Receive)

	return r
}

// Start serves on the configured TCP address and/or unix socket and blocks
// until the server stops.
func (s *Server) Start() error {
	var listeners []net.Listener

	if s.cfg.Port > 0 {
		addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
		l, err := net.Listen("tcp", addr)
		if err != nil {
			return err
		}
		s.log.Info().Str("addr", addr).Msg("starting HTTP server")
		listeners = append(listeners, l)
	}

	if s.cfg.UnixSocket != "" {
		l, err := listenUnix(s.cfg.UnixSocket)
		if err != nil {
			closeAll(listeners)
			return err
		}
		s.log.Info().Str("socket", s.cfg.UnixSocket).Msg("starting HTTP server")
		listeners = append(listeners, l)
	}

	if len(listeners) == 0 {
		return errors.New("no listener configured: set server.port or server.unix_socket")
	}

	errs := make(chan error, len(listeners))
	for _, l := range listeners {
		go func(l net.Listener) {
			errs <- s.http.Serve(l)
		}(l)
	}
	return <-errs
}

func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}

func listenUnix(path string) (net.Listener, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(path, 0o777); err != nil {
		l.Close()
		return nil, err
	}
	return l, nil
}

func closeAll(listeners []net.Listener) {
	for _, l := range listeners {
		l.Close()
	}
}
