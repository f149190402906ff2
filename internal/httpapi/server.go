// Package httpapi exposes the ingestion and classification operations over
// HTTP with a jsend response envelope.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/finsift/finsift/internal/db"
	"github.com/finsift/finsift/internal/globaltime"
	"github.com/finsift/finsift/internal/ingest"
	"github.com/finsift/finsift/internal/pipeline"
)

type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type Server struct {
	pool     *db.Pool
	pipeline *pipeline.Service
	ingester *ingest.Service
	logger   zerolog.Logger
	opts     Options
}

func NewServer(pool *db.Pool, pipelineSvc *pipeline.Service, ingestSvc *ingest.Service, logger zerolog.Logger, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := opts.Port
	if port <= 0 {
		port = 8080
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		// Classification calls wait on the model; give responses room.
		writeTimeout = 120 * time.Second
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	return &Server{
		pool:     pool,
		pipeline: pipelineSvc,
		ingester: ingestSvc,
		logger:   logger,
		opts: Options{
			Host:            host,
			Port:            port,
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
		},
	}
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := s.buildEcho()

	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("finsift api server started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("finsift api server stopped")
	return nil
}

func (s *Server) buildEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Err(v.Error).
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Str("remote_ip", v.RemoteIP).
					Str("request_id", v.RequestID).
					Msg("http request failed")
				return nil
			}

			s.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	api := e.Group("/api/v1")
	api.GET("/health", s.handleHealth)
	api.GET("/stats", s.handleStats)
	api.POST("/tweets/classify", s.handleClassifyTweets)
	api.POST("/tweets/preview-prompt", s.handlePreviewPrompt)
	api.POST("/ingestion/jobs", s.handleIngestionJob)

	return e
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		switch v := he.Message.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				message = v
			}
		default:
			if text := strings.TrimSpace(http.StatusText(status)); text != "" {
				message = text
			}
		}
	} else if err != nil {
		message = err.Error()
	}

	if status >= 500 {
		_ = internalError(c, "Internal server error")
		return
	}
	_ = fail(c, status, message, nil)
}

func (s *Server) handleHealth(c echo.Context) error {
	return success(c, map[string]any{
		"service": "finsift",
		"time":    globaltime.UTC(),
	})
}

type statsResponse struct {
	RawPosts         int64      `json:"raw_posts"`
	StructuredPosts  int64      `json:"structured_posts"`
	Schedules        int64      `json:"schedules"`
	IngestionRuns    int64      `json:"ingestion_runs"`
	RunningRuns      int64      `json:"running_runs"`
	LastIngestedAt   *time.Time `json:"last_ingested_at,omitempty"`
	LastClassifiedAt *time.Time `json:"last_classified_at,omitempty"`
}

func (s *Server) handleStats(c echo.Context) error {
	stats, err := s.queryStats(c.Request().Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("query stats failed")
		return internalError(c, "Failed to load stats")
	}
	return success(c, stats)
}

func (s *Server) queryStats(ctx context.Context) (*statsResponse, error) {
	const q = `
SELECT
	(SELECT COUNT(*) FROM finsift.raw_posts) AS raw_posts,
	(SELECT COUNT(*) FROM finsift.structured_posts) AS structured_posts,
	(SELECT COUNT(*) FROM finsift.schedules) AS schedules,
	(SELECT COUNT(*) FROM finsift.ingestion_runs) AS ingestion_runs,
	(SELECT COUNT(*) FROM finsift.ingestion_runs WHERE status = 'running') AS running_runs,
	(SELECT MAX(created_at) FROM finsift.raw_posts) AS last_ingested_at,
	(SELECT MAX(classified_at) FROM finsift.structured_posts) AS last_classified_at
`

	var stats statsResponse
	if err := s.pool.QueryRow(ctx, q).Scan(
		&stats.RawPosts,
		&stats.StructuredPosts,
		&stats.Schedules,
		&stats.IngestionRuns,
		&stats.RunningRuns,
		&stats.LastIngestedAt,
		&stats.LastClassifiedAt,
	); err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}

	return &stats, nil
}
