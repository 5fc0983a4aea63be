package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"LevelSentinel/internal/logger"
	"LevelSentinel/internal/metrics"
	"LevelSentinel/internal/model"
	"LevelSentinel/internal/recorder"
	"LevelSentinel/internal/scheduler"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// LevelReader serves stored levels. *service.Service implements it.
type LevelReader interface {
	Latest(ctx context.Context, sym model.Symbol, timeframes []model.Timeframe) ([]*model.SRResult, error)
	LatestOne(ctx context.Context, sym model.Symbol, tf model.Timeframe) (*model.SRResult, error)
	Stats(ctx context.Context) (recorder.Stats, error)
	Now() time.Time
}

// BatchTrigger starts a batch on demand. *scheduler.Scheduler implements it.
type BatchTrigger interface {
	RunNow(ctx context.Context) (*model.BatchSummary, error)
	Running() bool
}

// Options configures the HTTP server.
type Options struct {
	Addr           string
	Production     bool
	Timeframes     []model.Timeframe
	JWTSecret      string // empty disables the batch trigger
	AllowedOrigins []string
}

// Server is the read API plus the authenticated batch trigger.
type Server struct {
	opts       Options
	levels     LevelReader
	trigger    BatchTrigger
	router     *gin.Engine
	httpServer *http.Server
	log        *logger.Logger
}

// NewServer builds the router. trigger may be nil.
func NewServer(opts Options, levels LevelReader, trigger BatchTrigger) *Server {
	if opts.Production {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		opts:    opts,
		levels:  levels,
		trigger: trigger,
		router:  gin.New(),
		log:     logger.Get().With("component", "api"),
	}

	s.router.Use(gin.Recovery(), s.requestLogger())

	corsConfig := cors.DefaultConfig()
	if len(opts.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = opts.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	s.router.Use(cors.New(corsConfig))

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := s.router.Group("/api/v1")
	v1.GET("/levels/:symbol", s.handleSymbolLevels)
	v1.GET("/levels/:symbol/:timeframe", s.handleLevel)
	v1.GET("/stats", s.handleStats)

	if s.trigger != nil && s.opts.JWTSecret != "" {
		v1.POST("/batch/run", requireTrigger(s.opts.JWTSecret), s.handleRunBatch)
	} else {
		s.log.Infow("batch trigger endpoint disabled")
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start listens on the configured address. Blocks until the server stops.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Infow("starting HTTP server", "addr", s.opts.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.log.Infow("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debugw("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	running := false
	if s.trigger != nil {
		running = s.trigger.Running()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"time":          s.levels.Now().UTC(),
		"batch_running": running,
	})
}

func (s *Server) handleSymbolLevels(c *gin.Context) {
	sym, err := model.ParseSymbol(c.Param("symbol"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	results, err := s.levels.Latest(c.Request.Context(), sym, s.opts.Timeframes)
	if err != nil {
		s.log.Errorw("load latest levels", "symbol", sym, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load levels"})
		return
	}
	if results == nil {
		results = []*model.SRResult{}
	}
	c.JSON(http.StatusOK, gin.H{"symbol": sym, "levels": results})
}

func (s *Server) handleLevel(c *gin.Context) {
	sym, err := model.ParseSymbol(c.Param("symbol"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tf, err := model.ParseTimeframe(c.Param("timeframe"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	r, err := s.levels.LatestOne(c.Request.Context(), sym, tf)
	if err != nil {
		s.log.Errorw("load latest level", "symbol", sym, "timeframe", tf, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load levels"})
		return
	}
	if r == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("no valid levels for %s %s", sym, tf)})
		return
	}
	c.JSON(http.StatusOK, r)
}

type statsResponse struct {
	Total   int               `json:"total"`
	Valid   int               `json:"valid"`
	Expired int               `json:"expired"`
	Oldest  *time.Time        `json:"oldest,omitempty"`
	Newest  *time.Time        `json:"newest,omitempty"`
	Latest  []*model.SRResult `json:"latest"`
}

func (s *Server) handleStats(c *gin.Context) {
	st, err := s.levels.Stats(c.Request.Context())
	if err != nil {
		s.log.Errorw("load store stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load stats"})
		return
	}
	resp := statsResponse{
		Total:   st.Total,
		Valid:   st.Valid,
		Expired: st.Expired(),
		Latest:  st.Latest,
	}
	if resp.Latest == nil {
		resp.Latest = []*model.SRResult{}
	}
	if !st.Oldest.IsZero() {
		resp.Oldest, resp.Newest = &st.Oldest, &st.Newest
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleRunBatch(c *gin.Context) {
	// The batch outlives the trigger's connection.
	summary, err := s.trigger.RunNow(context.WithoutCancel(c.Request.Context()))
	switch {
	case errors.Is(err, scheduler.ErrBatchInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		s.log.Errorw("triggered batch failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, summary)
	}
}
