// Package api implements the optional management HTTP API: health,
// runtime statistics and cache control. It is read-mostly and bound to
// localhost by default.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jroosing/rootwalk/internal/config"
)

// Server wraps the gin engine and its HTTP listener.
type Server struct {
	http *http.Server
}

// New builds the API server around the given handler set.
func New(cfg config.APIConfig, logger *slog.Logger, h *Handler) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(logger))

	v1 := engine.Group("/api/v1")
	v1.GET("/health", h.Health)

	authed := v1.Group("", apiKeyAuth(cfg.APIKey))
	authed.GET("/stats", h.Stats)
	authed.GET("/cache", h.CacheStats)
	authed.DELETE("/cache", h.PurgeCache)

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           engine,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("api shutdown: %w", err)
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}

// apiKeyAuth rejects requests without the configured X-API-Key header.
// An empty configured key leaves the endpoints open (localhost default).
func apiKeyAuth(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key != "" && c.GetHeader("X-API-Key") != key {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
			return
		}
		c.Next()
	}
}

// requestLogger logs API requests at debug level.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		if logger == nil {
			return
		}
		logger.Debug("api request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(started).String(),
		)
	}
}
