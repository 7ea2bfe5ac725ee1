// Package api exposes verification sessions over HTTP
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ppiankov/truthcast/internal/session"
	"github.com/ppiankov/truthcast/internal/store"
	"github.com/ppiankov/truthcast/internal/transcript"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server routes HTTP requests to the session manager
type Server struct {
	manager      *session.Manager
	allowedAudio []string
	gatherer     prometheus.Gatherer
	logger       *zap.Logger
}

// Option configures a Server
type Option func(*Server)

// WithAllowedAudio restricts podcast registrations to these content types
func WithAllowedAudio(types []string) Option {
	return func(s *Server) { s.allowedAudio = types }
}

// WithGatherer serves metrics from g instead of the default registry
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithLogger sets the request logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Server
func New(manager *session.Manager, opts ...Option) *Server {
	s := &Server{
		manager:  manager,
		gatherer: prometheus.DefaultGatherer,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the gin engine with every route attached
func (s *Server) Handler() http.Handler {
	g := gin.New()
	g.Use(requestLogger(s.logger), gin.Recovery())

	g.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	g.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	v1 := g.Group("/v1")
	v1.POST("/podcasts", s.createPodcast)

	live := v1.Group("/live-sessions")
	live.POST("", s.createLiveSession)
	live.POST("/:id/segments", s.pushSegment)
	live.GET("/:id/stream", s.streamSegments)
	live.POST("/:id/end", s.endLiveSession)

	works := v1.Group("/works")
	works.GET("/:id", s.getWork)
	works.GET("/:id/status", s.getStatus)
	works.GET("/:id/verdicts", s.listVerdicts)

	return g
}

// requestLogger logs each request with zap
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Error("request failed", fields...)
			return
		}
		logger.Debug("request", fields...)
	}
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrWorkTerminal),
		errors.Is(err, session.ErrSessionActive),
		errors.Is(err, session.ErrSessionEnded),
		errors.Is(err, store.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, session.ErrWrongKind):
		return http.StatusBadRequest
	case errors.Is(err, transcript.ErrUnsupportedContentType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, session.ErrManagerClosed), errors.Is(err, session.ErrNoTranscriber):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(statusFor(err), gin.H{"error": err.Error()})
}
