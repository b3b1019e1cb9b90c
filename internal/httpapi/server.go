// Package httpapi exposes scanner commands and status over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	codescanner "github.com/e7canasta/code-scanner"
)

const commandTimeout = 5 * time.Second

// Scanner is the command surface the API drives
type Scanner interface {
	Start(ctx context.Context) error
	Close(ctx context.Context) error
	ToggleFlashlight(ctx context.Context) error
	Status() codescanner.Status
}

// Server serves the scanner HTTP API
type Server struct {
	scanner Scanner
	router  *gin.Engine
	srv     *http.Server
	started time.Time
}

// New creates a server listening on addr
func New(addr string, scanner Scanner) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		scanner: scanner,
		router:  gin.New(),
		started: time.Now(),
	}
	s.router.Use(gin.Recovery(), requestLogger())

	s.router.GET("/health", s.health)

	api := s.router.Group("/scanner")
	api.GET("/status", s.status)
	api.POST("/start", s.command("start", scanner.Start))
	api.POST("/close", s.command("close", scanner.Close))
	api.POST("/flashlight", s.command("toggle_flashlight", scanner.ToggleFlashlight))

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the router, for embedding or tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("httpapi: listening", "addr", s.srv.Addr)
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("httpapi: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("httpapi: shutdown: %w", err)
	}
	slog.Info("httpapi: stopped")
	return nil
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"uptime_s": int(time.Since(s.started).Seconds()),
	})
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, s.scanner.Status())
}

func (s *Server) command(name string, fn func(context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), commandTimeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			code, body := errorResponse(name, err)
			c.JSON(code, body)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"command": name,
			"status":  s.scanner.Status(),
		})
	}
}

// errorResponse maps scanner errors to HTTP status codes
func errorResponse(name string, err error) (int, gin.H) {
	body := gin.H{
		"command": name,
		"error":   err.Error(),
	}

	var se *codescanner.Error
	switch {
	case errors.Is(err, codescanner.ErrNotIdle), errors.Is(err, codescanner.ErrNotStreaming):
		return http.StatusConflict, body
	case errors.Is(err, codescanner.ErrNotRunning):
		return http.StatusServiceUnavailable, body
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, body
	case errors.As(err, &se):
		body["error_kind"] = se.Kind.String()
		return http.StatusBadGateway, body
	default:
		return http.StatusInternalServerError, body
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("httpapi: request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
