package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/pprof"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/atikulmunna/loglens/internal/aggregator"
	"github.com/atikulmunna/loglens/internal/dataset"
	"github.com/atikulmunna/loglens/internal/hub"
	"github.com/atikulmunna/loglens/internal/model"
)

const (
	defaultRecordLimit = 100
	maxRecordLimit     = 1000
	defaultTopN        = 15
)

// Server holds the Gin engine and dependencies for the query API.
type Server struct {
	engine     *gin.Engine
	dataset    *dataset.Dataset
	hub        *hub.Hub
	aggregator *aggregator.Aggregator
	ingestion  func() (model.IngestionState, string)
	started    time.Time
	port       string
	logger     *zap.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithIngestion exposes the tailer state on /api/ingestion and /healthz.
func WithIngestion(fn func() (model.IngestionState, string)) Option {
	return func(s *Server) { s.ingestion = fn }
}

// New creates the read-only query API over ds. h and agg may be nil when
// nothing is being watched.
func New(ds *dataset.Dataset, h *hub.Hub, agg *aggregator.Aggregator, port string, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	// Disable automatic redirects that cause 301 issues.
	engine.RedirectTrailingSlash = false
	engine.RedirectFixedPath = false

	s := &Server{
		engine:     engine,
		dataset:    ds,
		hub:        h,
		aggregator: agg,
		started:    time.Now(),
		port:       port,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) setupRoutes() {
	s.engine.GET("/healthz", s.handleHealth)

	api := s.engine.Group("/api")
	api.GET("/summary", s.handleSummary)
	api.GET("/records", s.handleRecords)
	api.GET("/countries", s.handleCountries)
	api.GET("/conversions", s.handleConversions)
	api.GET("/stats", s.handleStats)
	api.GET("/ingestion", s.handleIngestion)

	// WebSocket stream of newly ingested records.
	s.engine.GET("/ws", s.handleWebSocket)

	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// pprof profiling endpoints.
	s.engine.GET("/debug/pprof/", gin.WrapF(pprof.Index))
	s.engine.GET("/debug/pprof/cmdline", gin.WrapF(pprof.Cmdline))
	s.engine.GET("/debug/pprof/profile", gin.WrapF(pprof.Profile))
	s.engine.GET("/debug/pprof/symbol", gin.WrapF(pprof.Symbol))
	s.engine.GET("/debug/pprof/trace", gin.WrapF(pprof.Trace))
	s.engine.GET("/debug/pprof/allocs", gin.WrapH(pprof.Handler("allocs")))
	s.engine.GET("/debug/pprof/heap", gin.WrapH(pprof.Handler("heap")))
	s.engine.GET("/debug/pprof/goroutine", gin.WrapH(pprof.Handler("goroutine")))
}

func (s *Server) handleHealth(c *gin.Context) {
	body := gin.H{
		"status":  "ok",
		"uptime":  time.Since(s.started).Truncate(time.Second).String(),
		"records": s.dataset.Len(),
	}
	if s.ingestion != nil {
		_, status := s.ingestion()
		body["ingestion"] = status
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleSummary(c *gin.Context) {
	n, ok := intQuery(c, "top", defaultTopN)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.dataset.Summary(n))
}

func (s *Server) handleRecords(c *gin.Context) {
	offset, ok := intQuery(c, "offset", 0)
	if !ok {
		return
	}
	limit, ok := intQuery(c, "limit", defaultRecordLimit)
	if !ok {
		return
	}
	if limit == 0 || limit > maxRecordLimit {
		limit = maxRecordLimit
	}
	c.JSON(http.StatusOK, gin.H{
		"total":   s.dataset.Len(),
		"offset":  offset,
		"records": s.dataset.Slice(offset, limit),
	})
}

func (s *Server) handleCountries(c *gin.Context) {
	n, ok := intQuery(c, "n", defaultTopN)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.dataset.TopCountries(n))
}

func (s *Server) handleConversions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"rate":      s.dataset.ConversionRate(),
		"by_method": s.dataset.ConversionRateByMethod(),
	})
}

func (s *Server) handleStats(c *gin.Context) {
	if s.aggregator == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "live ingestion is not running"})
		return
	}
	c.JSON(http.StatusOK, s.aggregator.Snapshot())
}

func (s *Server) handleIngestion(c *gin.Context) {
	if s.ingestion == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "live ingestion is not running"})
		return
	}
	state, status := s.ingestion()
	c.JSON(http.StatusOK, gin.H{
		"path":   state.Path,
		"offset": state.Offset,
		"status": status,
	})
}

// intQuery reads a non-negative integer query parameter. It writes a 400
// response and reports false when the value is invalid.
func intQuery(c *gin.Context, key string, def int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + key + ": " + raw})
		return 0, false
	}
	return n, true
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("query API listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
