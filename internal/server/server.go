// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package server exposes research sessions over HTTP: a blocking JSON
// endpoint, a Server-Sent Events stream of progress, health, and
// Prometheus metrics.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pdiddy/deep-research/internal/citation"
	"github.com/pdiddy/deep-research/internal/orchestrator"
	"github.com/pdiddy/deep-research/pkg/types"
)

// Runner runs one research session. *orchestrator.Orchestrator implements it.
type Runner interface {
	Run(ctx context.Context, req orchestrator.Request) (*types.ResearchReport, error)
}

// Error codes returned in error bodies.
const (
	CodeBadRequest = "BadRequest"
	CodeNoFindings = "NoFindings"
	CodeCancelled  = "Cancelled"
	CodeInternal   = "Internal"
)

// ResearchRequest is the body of POST /api/research.
type ResearchRequest struct {
	Question string `json:"question" form:"question" binding:"required"`
	Mode     string `json:"mode" form:"mode"`
	Style    string `json:"style" form:"style"`
}

// ErrorResponse is the body of every error reply and of the SSE error event.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Server serves the research API.
type Server struct {
	runner   Runner
	log      *zap.Logger
	gatherer prometheus.Gatherer
	origins  []string
	engine   *gin.Engine
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(log *zap.Logger) Option { return func(s *Server) { s.log = log } }

// WithGatherer sets the registry served on /metrics.
func WithGatherer(g prometheus.Gatherer) Option { return func(s *Server) { s.gatherer = g } }

// WithAllowedOrigins restricts CORS to origins. All origins are allowed by default.
func WithAllowedOrigins(origins ...string) Option { return func(s *Server) { s.origins = origins } }

// New builds the routes.
func New(runner Runner, opts ...Option) *Server {
	s := &Server{
		runner:   runner,
		log:      zap.NewNop(),
		gatherer: prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(s)
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), s.logRequests())

	corsConfig := cors.DefaultConfig()
	if len(s.origins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = s.origins
	}
	corsConfig.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	engine.Use(cors.New(corsConfig))

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	api := engine.Group("/api")
	api.POST("/research", s.research)
	api.GET("/research/stream", s.stream)

	s.engine = engine
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// parseRequest validates the body or query of a research request.
func parseRequest(c *gin.Context) (orchestrator.Request, error) {
	var body ResearchRequest
	var err error
	if c.Request.Method == http.MethodGet {
		err = c.ShouldBindQuery(&body)
	} else {
		err = c.ShouldBindJSON(&body)
	}
	if err != nil {
		return orchestrator.Request{}, err
	}
	if strings.TrimSpace(body.Question) == "" {
		return orchestrator.Request{}, types.ErrEmptyQuestion
	}

	req := orchestrator.Request{Question: body.Question}
	switch types.ResearchMode(strings.ToLower(body.Mode)) {
	case "", types.ModeComprehensive:
		req.Mode = types.ModeComprehensive
	case types.ModeQuick:
		req.Mode = types.ModeQuick
	default:
		return orchestrator.Request{}, errors.New(`mode must be "quick" or "comprehensive"`)
	}
	if body.Style != "" {
		style, err := types.ParseCitationStyle(body.Style)
		if err != nil {
			return orchestrator.Request{}, err
		}
		req.Style = style
	}
	return req, nil
}

func (s *Server) research(c *gin.Context) {
	req, err := parseRequest(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: CodeBadRequest})
		return
	}
	report, err := s.runner.Run(c.Request.Context(), req)
	if err != nil {
		status, body := classify(err)
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusOK, report)
}

// classify maps a session error to an HTTP status and error body.
func classify(err error) (int, ErrorResponse) {
	switch {
	case errors.Is(err, orchestrator.ErrNoFindings):
		return http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error(), Code: CodeNoFindings}
	case errors.Is(err, types.ErrEmptyQuestion), errors.Is(err, citation.ErrUnsupportedStyle):
		return http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: CodeBadRequest}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, ErrorResponse{Error: err.Error(), Code: CodeCancelled}
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: CodeInternal}
	}
}

type result struct {
	report *types.ResearchReport
	err    error
}

// stream runs a session and relays its progress as SSE "progress" events,
// ending with a "report" or "error" event. A client disconnect cancels the
// session.
func (s *Server) stream(c *gin.Context) {
	req, err := parseRequest(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: CodeBadRequest})
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	events := make(chan types.ProgressEvent, 64)
	done := make(chan result, 1)
	req.Sink = orchestrator.SinkFunc(func(ev types.ProgressEvent) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	})
	go func() {
		report, err := s.runner.Run(ctx, req)
		done <- result{report: report, err: err}
	}()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	for {
		select {
		case ev := <-events:
			c.SSEvent("progress", ev)
			c.Writer.Flush()
		case res := <-done:
			for drained := false; !drained; {
				select {
				case ev := <-events:
					c.SSEvent("progress", ev)
				default:
					drained = true
				}
			}
			if res.err != nil {
				_, body := classify(res.err)
				c.SSEvent("error", body)
			} else {
				c.SSEvent("report", res.report)
			}
			c.Writer.Flush()
			return
		case <-ctx.Done():
			s.log.Debug("stream client disconnected")
			<-done
			return
		}
	}
}
