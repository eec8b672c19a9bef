// Package server exposes a todo Source over HTTP: the websocket RPC endpoint
// plus health and metrics endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mesh-intelligence/livetodo/internal/logger"
	"github.com/mesh-intelligence/livetodo/internal/rpc"
	"github.com/mesh-intelligence/livetodo/pkg/types"
)

const (
	readinessTimeout = 5 * time.Second
	shutdownTimeout  = 10 * time.Second
)

// Pinger reports whether the storage behind the server is usable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures a Server.
type Options struct {
	// Addr is the listen address, e.g. "127.0.0.1:8080".
	Addr string
	// AllowedOrigin restricts websocket upgrades to one Origin. Empty allows
	// any.
	AllowedOrigin string
}

// Server routes HTTP requests for one Source.
type Server struct {
	opts   Options
	engine *gin.Engine
	rpc    *rpc.Server
	pinger Pinger
}

// New builds the routes. pinger may be nil, in which case /readyz always
// reports ready.
func New(source types.Source, pinger Pinger, opts Options) *Server {
	s := &Server{
		opts:   opts,
		engine: gin.New(),
		rpc:    rpc.NewServer(source, opts.AllowedOrigin),
		pinger: pinger,
	}

	s.engine.Use(gin.Recovery(), requestLogger())
	s.engine.GET("/rpc", gin.WrapH(s.rpc))
	s.engine.GET("/healthz", s.liveness)
	s.engine.GET("/readyz", s.readiness)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Sessions returns the number of open RPC connections.
func (s *Server) Sessions() int {
	return s.rpc.Sessions()
}

// Run listens on opts.Addr and serves until ctx ends, then shuts down:
// HTTP first, then every RPC session and its subscriptions.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.opts.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("server started", "addr", ln.Addr().String())
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Shutdown does not touch hijacked websocket connections; the rpc
	// server closes those.
	herr := srv.Shutdown(sctx)
	rerr := s.rpc.Close(sctx)
	if err := errors.Join(herr, rerr); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	logger.Info("server exited")
	return nil
}

func (s *Server) liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) readiness(c *gin.Context) {
	if s.pinger == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	if err := s.pinger.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unavailable",
			"database": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "database": "healthy"})
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
