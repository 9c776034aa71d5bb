package monitor

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/zeu5/lattice-fold-rl/dqn"
)

// StatsSource is read on every /stats request, it must be safe for concurrent use
type StatsSource interface {
	Stats() dqn.Stats
}

// Server exposes the progress of a training run over http
type Server struct {
	Addr   string
	RunID  string
	source StatsSource
	logger zerolog.Logger
	server *http.Server
	done   chan struct{}
}

func NewServer(addr, runID string, source StatsSource, logger zerolog.Logger) *Server {
	s := &Server{
		Addr:   addr,
		RunID:  runID,
		source: source,
		logger: logger,
		done:   make(chan struct{}),
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.GET("/health", s.handleHealth)
	r.GET("/stats", s.handleStats)
	s.server = &http.Server{
		Addr:    addr,
		Handler: r,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "run_id": s.RunID})
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.source.Stats())
}

// Start listens on Addr and shuts the server down once ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	s.logger.Info().Str("addr", listener.Addr().String()).Msg("monitor listening")

	go func() {
		defer close(s.done)
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("monitor stopped")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()
	return nil
}

// Wait blocks until the server stopped serving
func (s *Server) Wait() {
	<-s.done
}
