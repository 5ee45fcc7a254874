package api

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/ackinacki-farmer/internal/config"
	"github.com/ackinacki-farmer/internal/metrics"
	"github.com/ackinacki-farmer/internal/snapshot"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Server exposes the latest round status over HTTP.
type Server struct {
	config      *config.Config
	snapshot    *snapshot.Manager
	metrics     *metrics.Collector
	router      *gin.Engine
	httpServer  *http.Server
	rateLimiter *RateLimiter
}

type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	rate     rate.Limit
	burst    int
}

func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	burst := requestsPerMinute / 10
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:    burst,
	}
}

func (rl *RateLimiter) GetLimiter(key string) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.limiters[key]
	rl.mu.RUnlock()

	if exists {
		return limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if limiter, exists := rl.limiters[key]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(rl.rate, rl.burst)
	rl.limiters[key] = limiter
	return limiter
}

func NewServer(cfg *config.Config, snap *snapshot.Manager, metricsCollector *metrics.Collector) *Server {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		config:      cfg,
		snapshot:    snap,
		metrics:     metricsCollector,
		router:      router,
		rateLimiter: NewRateLimiter(cfg.API.RateLimitPerMinute),
	}

	s.setupRoutes()
	s.httpServer = &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(s.loggingMiddleware())
	s.router.Use(s.metricsMiddleware())

	s.router.GET("/health", s.handleHealth)

	if s.config.Metrics.Enabled {
		s.router.GET(s.config.Metrics.Endpoint, gin.WrapH(promhttp.Handler()))
	}

	protected := s.router.Group("/")
	if s.config.API.EnableAPIKeyAuth {
		protected.Use(s.authMiddleware())
	}
	if s.config.API.EnableIPRateLimit {
		protected.Use(s.rateLimitMiddleware())
	}

	protected.GET("/stat", s.handleStat)
	protected.GET("/accounts", s.handleAccounts)
	protected.GET("/accounts/:index", s.handleAccount)
}

func (s *Server) Start() error {
	log.Infof("Starting status API on %s", s.config.API.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown stops the server. After Shutdown, Start returns
// http.ErrServerClosed even if it had not been called yet.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info("Shutting down status API...")
	return s.httpServer.Shutdown(ctx)
}

// Middleware

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		log.WithFields(log.Fields{
			"method":   c.Request.Method,
			"path":     path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).Milliseconds(),
			"ip":       c.ClientIP(),
		}).Debug("API request")
	}
}

func (s *Server) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		// FullPath keeps /accounts/:index as one label value
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		method := c.Request.Method
		s.metrics.RecordAPIRequest(method, endpoint, strconv.Itoa(c.Writer.Status()))
		s.metrics.RecordAPIDuration(method, endpoint, time.Since(start).Seconds())
	}
}

func (s *Server) authMiddleware() gin.HandlerFunc {
	expectedKey := os.Getenv(s.config.API.APIKeyEnv)
	if expectedKey == "" {
		log.Warnf("API key env %s not set, authentication disabled", s.config.API.APIKeyEnv)
	}

	return func(c *gin.Context) {
		if expectedKey == "" {
			c.Next()
			return
		}

		apiKey := c.GetHeader("X-Api-Key")
		if apiKey == "" {
			apiKey = c.Query("key")
		}

		if apiKey != expectedKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or missing API key",
			})
			return
		}

		c.Next()
	}
}

func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.rateLimiter.GetLimiter(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

// Handlers

func (s *Server) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (s *Server) handleStat(c *gin.Context) {
	snap := s.snapshot.Get()
	stats := snap.Stats

	response := gin.H{
		"round":              stats.Round,
		"accounts":           stats.Accounts,
		"succeeded":          stats.Succeeded,
		"failed":             stats.Failed,
		"round_duration_ms":  stats.RoundDurationMs,
		"next_delay_seconds": stats.NextDelaySeconds,
		"updated":            snap.Updated.Format(time.RFC3339),
	}
	if !stats.NextRoundAt.IsZero() {
		response["next_round_at"] = stats.NextRoundAt.Format(time.RFC3339)
	}

	c.JSON(http.StatusOK, response)
}

func (s *Server) handleAccounts(c *gin.Context) {
	accts := s.snapshot.Accounts()
	if c.Query("failed") == "1" {
		failed := accts[:0]
		for _, a := range accts {
			if !a.Success {
				failed = append(failed, a)
			}
		}
		accts = failed
	}

	c.JSON(http.StatusOK, gin.H{
		"total":    len(accts),
		"accounts": accts,
	})
}

func (s *Server) handleAccount(c *gin.Context) {
	// Account numbers are 1-based, as on the console.
	n, err := strconv.Atoi(c.Param("index"))
	if err != nil || n < 1 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid account number",
		})
		return
	}

	acct, ok := s.snapshot.Account(n - 1)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Account not found",
		})
		return
	}

	c.JSON(http.StatusOK, acct)
}
