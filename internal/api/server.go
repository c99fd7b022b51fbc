package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gifscribe/gifscribe-agent/internal/doctor"
	"github.com/gifscribe/gifscribe-agent/internal/history"
	"github.com/gifscribe/gifscribe-agent/internal/pipeline"
	"github.com/gifscribe/gifscribe-agent/internal/playback"
)

// Renderer is the part of the pipeline the HTTP layer drives.
type Renderer interface {
	Render(ctx context.Context, videoURL string) pipeline.Result
	Bundle(ctx context.Context) (string, error)
	PublicPrefix() string
	Last() *pipeline.Summary
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Host         string
	Port         int
	Renderer     Renderer
	Playback     *playback.Server
	History      history.Repository
	Doctor       *doctor.CachedDoctor
	APIToken     string
	CORSOrigins  []string
	MaxBodyBytes int64
	Version      string
	Logger       *slog.Logger
	StartTime    time.Time
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              net.JoinHostPort(host, strconv.Itoa(cfg.Port)),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       60 * time.Second,
			// Renders run inside the request and can take minutes.
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
