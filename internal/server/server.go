package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/rezonia/invoice-auditor/internal/logger"
	"github.com/rezonia/invoice-auditor/internal/metrics"
	"github.com/rezonia/invoice-auditor/internal/model"
	"github.com/rezonia/invoice-auditor/internal/processor"
	"github.com/rezonia/invoice-auditor/internal/rules"
)

const shutdownTimeout = 10 * time.Second

// Config holds server configuration. A zero MaxBodySize or MaxBatchSize disables that cap.
type Config struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxBodySize  int64
	MaxBatchSize int
	Debug        bool
}

// Server represents the HTTP API server
type Server struct {
	config   *Config
	router   *gin.Engine
	pipeline *processor.Pipeline
	store    *rules.Store
	metrics  *metrics.Recorder
	logger   *zap.Logger
	clock    clockwork.Clock
	workers  int
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the server logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithMetrics sets the metrics recorder exposed on /metrics
func WithMetrics(m *metrics.Recorder) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithClock sets the clock used for report timestamps and health
func WithClock(c clockwork.Clock) Option {
	return func(s *Server) {
		s.clock = c
	}
}

// WithWorkers bounds batch concurrency
func WithWorkers(n int) Option {
	return func(s *Server) {
		s.workers = n
	}
}

// NewServer creates a new API server validating against the rules in store
func NewServer(config *Config, store *rules.Store, opts ...Option) *Server {
	if !config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		config: config,
		store:  store,
		logger: zap.NewNop(),
		clock:  clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.NewRecorder()
	}

	s.pipeline = processor.NewPipeline(store,
		processor.WithLogger(s.logger),
		processor.WithMetrics(s.metrics),
		processor.WithClock(s.clock),
		processor.WithWorkers(s.workers),
	)

	router := gin.New()
	router.Use(logger.RequestID())
	router.Use(logger.Recovery(s.logger))
	router.Use(logger.GinMiddleware(s.logger))
	s.router = router

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// Health check
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	// API v1
	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/validate", s.handleValidate)
		v1.POST("/validate/batch", s.handleValidateBatch)

		v1.GET("/rules", s.handleRules)
		v1.POST("/rules/reload", s.handleReload)
	}
}

// Run starts the HTTP server and shuts it down when ctx is done
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.config.Address,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", zap.String("address", s.config.Address))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Handler returns the http.Handler for use with custom servers
func (s *Server) Handler() http.Handler {
	return s.router
}

// Pipeline returns the validation pipeline behind the handlers
func (s *Server) Pipeline() *processor.Pipeline {
	return s.pipeline
}

func (s *Server) handleHealth(c *gin.Context) {
	body := gin.H{
		"status": "ok",
		"time":   s.clock.Now().UTC().Format(time.RFC3339),
	}
	rs, err := s.store.Current()
	if err != nil {
		body["status"] = "no_rules"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	body["rules"] = rs.Fingerprint
	c.JSON(http.StatusOK, body)
}

// readBody returns the request body, or writes an error response and false
func (s *Server) readBody(c *gin.Context) ([]byte, bool) {
	if s.config.MaxBodySize > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.config.MaxBodySize)
	}
	data, err := c.GetRawData()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "request body too large"})
			return nil, false
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "failed to read request body"})
		return nil, false
	}
	if len(data) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "empty request body"})
		return nil, false
	}
	return data, true
}

func (s *Server) decode(c *gin.Context) ([]*model.InvoiceRecord, bool) {
	data, ok := s.readBody(c)
	if !ok {
		return nil, false
	}
	recs, err := processor.DecodeRecords(data)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid invoice record",
			Details: err.Error(),
		})
		return nil, false
	}
	return recs, true
}

func (s *Server) handleValidate(c *gin.Context) {
	recs, ok := s.decode(c)
	if !ok {
		return
	}
	if len(recs) != 1 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "expected a single invoice record",
			Details: "use /api/v1/validate/batch for lists",
		})
		return
	}

	r, err := s.pipeline.Validate(c.Request.Context(), recs[0])
	if err != nil {
		s.writeValidationError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (s *Server) handleValidateBatch(c *gin.Context) {
	recs, ok := s.decode(c)
	if !ok {
		return
	}
	if len(recs) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "batch is empty"})
		return
	}
	if s.config.MaxBatchSize > 0 && len(recs) > s.config.MaxBatchSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": "batch too large",
			"max":   s.config.MaxBatchSize,
			"got":   len(recs),
		})
		return
	}

	results, err := s.pipeline.ValidateBatch(c.Request.Context(), recs)
	if err != nil {
		s.writeValidationError(c, err)
		return
	}

	fingerprint := ""
	for _, r := range results {
		if r.Report != nil {
			fingerprint = r.Report.RuleFingerprint
			break
		}
	}
	c.JSON(http.StatusOK, newBatchResponse(fingerprint, results))
}

func (s *Server) writeValidationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, rules.ErrNoRuleSet):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "no rule set loaded"})
	case processor.IsCanceled(err):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "request canceled", Details: err.Error()})
	default:
		logger.FromGin(c).Error("validation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "validation failed", Details: err.Error()})
	}
}

func (s *Server) handleRules(c *gin.Context) {
	rs, err := s.store.Current()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "no rule set loaded"})
		return
	}
	c.JSON(http.StatusOK, newRulesResponse(rs, s.store.Path()))
}

func (s *Server) handleReload(c *gin.Context) {
	var previous string
	if rs, err := s.store.Current(); err == nil {
		previous = rs.Fingerprint
	}

	rs, err := s.store.ReloadFile("")
	s.metrics.ObserveReload(err)
	if err != nil {
		var cfgErr *model.ConfigError
		if errors.As(err, &cfgErr) {
			s.logger.Warn("rule reload rejected", zap.String("key", cfgErr.Key), zap.Error(err))
			c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
				Error:   "invalid rule configuration",
				Details: err.Error(),
				Key:     cfgErr.Key,
			})
			return
		}
		s.logger.Error("rule reload failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "rule reload failed", Details: err.Error()})
		return
	}

	s.logger.Info("rules reloaded",
		zap.String("fingerprint", rs.Fingerprint),
		zap.String("previous", previous),
	)
	c.JSON(http.StatusOK, ReloadResponse{
		Fingerprint: rs.Fingerprint,
		Previous:    previous,
		Changed:     rs.Fingerprint != previous,
	})
}
