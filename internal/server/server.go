// Package server wires the payment services together and runs the HTTP API
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/Eaziking2002/talent-afro-sub001/internal/auth"
	"github.com/Eaziking2002/talent-afro-sub001/internal/config"
	"github.com/Eaziking2002/talent-afro-sub001/internal/dispute"
	"github.com/Eaziking2002/talent-afro-sub001/internal/escrow"
	"github.com/Eaziking2002/talent-afro-sub001/internal/gateway"
	"github.com/Eaziking2002/talent-afro-sub001/internal/health"
	"github.com/Eaziking2002/talent-afro-sub001/internal/jobs"
	"github.com/Eaziking2002/talent-afro-sub001/internal/logging"
	"github.com/Eaziking2002/talent-afro-sub001/internal/metrics"
	"github.com/Eaziking2002/talent-afro-sub001/internal/notify"
	"github.com/Eaziking2002/talent-afro-sub001/internal/ratelimit"
	"github.com/Eaziking2002/talent-afro-sub001/internal/realtime"
	"github.com/Eaziking2002/talent-afro-sub001/internal/reconciliation"
	"github.com/Eaziking2002/talent-afro-sub001/internal/security"
	"github.com/Eaziking2002/talent-afro-sub001/internal/validation"
	"github.com/Eaziking2002/talent-afro-sub001/internal/wallet"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg            *config.Config
	authMgr        *auth.Manager
	walletSvc      *wallet.Service
	jobsSvc        *jobs.Service
	escrowSvc      *escrow.Service
	disputeSvc     *dispute.Service
	reconciler     *reconciliation.Service
	reconcileTimer *reconciliation.Timer
	disputeMonitor *dispute.Monitor
	realtimeHub    *realtime.Hub
	gateway        gateway.Gateway
	rateLimiter    *ratelimit.Limiter
	healthReg      *health.Registry
	db             *sql.DB // nil if using in-memory
	router         *gin.Engine
	httpSrv        *http.Server
	logger         *slog.Logger
	cancelRunCtx   context.CancelFunc // cancels background goroutines started in Run

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithGateway sets a custom payment gateway (for testing)
func WithGateway(g gateway.Gateway) Option {
	return func(s *Server) {
		s.gateway = g
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:       cfg,
		logger:    logging.New(cfg.LogLevel, "json"),
		healthReg: health.NewRegistry(),
	}

	// Apply options first (may set gateway/logger)
	for _, opt := range opts {
		opt(s)
	}

	// Per-package stores (Postgres if DATABASE_URL set, otherwise in-memory)
	var (
		authStore    auth.Store
		walletStore  wallet.Store
		jobsStore    jobs.Store
		escrowStore  escrow.Store
		disputeStore dispute.Store
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		// Test connection
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		authStore = auth.NewPostgresStore(db)
		walletStore = wallet.NewPostgresStore(db)
		jobsStore = jobs.NewPostgresStore(db)
		escrowStore = escrow.NewPostgresStore(db)
		disputeStore = dispute.NewPostgresStore(db)
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		s.healthReg.Register("database", func(ctx context.Context) health.Status {
			if err := db.PingContext(ctx); err != nil {
				return health.Status{Name: "database", Healthy: false, Detail: err.Error()}
			}
			return health.Status{Name: "database", Healthy: true}
		})
	} else {
		authStore = auth.NewMemoryStore()
		walletStore = wallet.NewMemoryStore()
		jobsStore = jobs.NewMemoryStore()
		escrowStore = escrow.NewMemoryStore()
		disputeStore = dispute.NewMemoryStore()
		s.logger.Info("using in-memory storage (data will not persist)")
	}

	s.authMgr = auth.NewManager(authStore)
	s.walletSvc = wallet.NewService(walletStore)
	s.jobsSvc = jobs.NewService(jobsStore)

	// Payment gateway: Stripe when a key is configured, otherwise the
	// auto-succeeding development gateway.
	if s.gateway == nil {
		if cfg.StripeAPIKey != "" {
			s.gateway = gateway.NewStripeGateway(cfg.StripeAPIKey, cfg.CheckoutSuccessURL, cfg.CheckoutCancelURL)
			s.logger.Info("stripe gateway enabled")
		} else {
			s.gateway = gateway.NewDevGateway()
			s.logger.Info("development gateway enabled (charges auto-succeed)")
		}
	}

	// Realtime hub for WebSocket event streaming
	s.realtimeHub = realtime.NewHub(s.logger)

	s.escrowSvc = escrow.NewService(
		escrowStore,
		s.gateway,
		&walletAdapter{s.walletSvc},
		&jobsAdapter{s.jobsSvc},
	).WithEvents(s.realtimeHub)

	// Notifications: external email API when configured, no-op otherwise
	var mailer notify.Sender
	if cfg.NotifyAPIURL != "" {
		mailer = notify.NewClient(cfg.NotifyAPIURL, cfg.NotifyAPIKey, cfg.EmailFrom)
		s.logger.Info("email notifications enabled")
	} else {
		mailer = notify.NopSender{}
		s.logger.Info("email notifications disabled (NOTIFY_API_URL not set)")
	}

	s.disputeSvc = dispute.NewService(
		disputeStore,
		dispute.StaticAdmins(cfg.AdminEmails),
		s.jobsSvc,
		mailer,
	).WithEvents(s.realtimeHub)
	s.disputeMonitor = dispute.NewMonitor(s.disputeSvc, 0, s.logger)

	s.reconciler = reconciliation.NewService(escrowStore, walletStore)
	s.reconcileTimer = reconciliation.NewTimer(s.reconciler, 0, s.logger)

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS (allow all origins for development - restrict in production)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	limiterCfg := ratelimit.DefaultConfig()
	limiterCfg.RequestsPerMinute = s.cfg.RateLimitRPM
	if burst := s.cfg.RateLimitRPM / 10; burst > limiterCfg.BurstSize {
		limiterCfg.BurstSize = burst
	}
	s.rateLimiter = ratelimit.New(limiterCfg)
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		// Add to context
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		// Set response header
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// WebSocket for real-time event streaming
	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})

	// API info
	s.router.GET("/api", s.infoHandler)

	// V1 API group. auth.Middleware resolves the API key on every request;
	// individual route groups decide whether auth is required.
	v1 := s.router.Group("/v1")
	v1.Use(auth.Middleware(s.authMgr))

	escrowHandler := escrow.NewHandler(s.escrowSvc)
	jobsHandler := jobs.NewHandler(s.jobsSvc)
	disputeHandler := dispute.NewHandler(s.disputeSvc)
	walletHandler := wallet.NewHandler(s.walletSvc)
	authHandler := auth.NewHandler(s.authMgr)

	// PUBLIC ROUTES (no auth required)
	escrowHandler.RegisterRoutes(v1)
	jobsHandler.RegisterRoutes(v1)
	v1.GET("/auth/info", authHandler.Info)

	// Gateway webhook. Authenticated by HMAC signature, not API key.
	webhookHandler := escrow.NewWebhookHandler(s.escrowSvc, s.cfg.WebhookSecret)
	webhookHandler.RegisterRoutes(v1)

	// PROTECTED ROUTES (require API key)
	protected := v1.Group("")
	protected.Use(auth.RequireAuth(s.authMgr))
	{
		escrowHandler.RegisterProtectedRoutes(protected)
		jobsHandler.RegisterProtectedRoutes(protected)
		disputeHandler.RegisterProtectedRoutes(protected)

		// API key management
		protected.GET("/auth/keys", authHandler.ListKeys)
		protected.POST("/auth/keys", authHandler.CreateKey)
		protected.DELETE("/auth/keys/:keyId", authHandler.RevokeKey)
		protected.GET("/auth/me", authHandler.WhoAmI)
	}

	// Wallet routes expose balances, so the key must belong to the target
	// user (admin keys may read any wallet).
	v1.GET("/users/:userId/wallet", auth.RequireUser(s.authMgr, "userId"), walletHandler.GetWallet)
	v1.GET("/users/:userId/wallet/history", auth.RequireUser(s.authMgr, "userId"), walletHandler.GetHistory)

	// ADMIN ROUTES (admin API key or X-Admin-Secret header)
	admin := v1.Group("")
	admin.Use(auth.RequireAdmin(s.authMgr, s.cfg.AdminSecret))
	{
		escrowHandler.RegisterAdminRoutes(admin)
		disputeHandler.RegisterAdminRoutes(admin)
		admin.GET("/admin/reconciliation", s.reconciliationHandler)
		admin.GET("/admin/realtime/stats", s.realtimeStatsHandler)
	}
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, checks := s.healthReg.CheckAll(ctx)

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "TalentAfro Payments",
		"description": "Escrow payment infrastructure for the TalentAfro marketplace",
		"version":     "0.1.0",
	})
}

// reconciliationHandler runs a ledger reconciliation check on demand
func (s *Server) reconciliationHandler(c *gin.Context) {
	result, err := s.reconciler.Run(c.Request.Context())
	if err != nil {
		logging.L(c.Request.Context()).Error("reconciliation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Reconciliation check failed",
		})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) realtimeStatsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.realtimeHub.Stats())
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.realtimeHub.Run(runCtx)

	// Start dispute escalation monitor
	go s.disputeMonitor.Start(runCtx)

	// Start reconciliation timer
	go s.reconcileTimer.Start(runCtx)

	// Collect connection pool stats when running on Postgres
	if s.db != nil {
		metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub, monitor, timer)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	time.Sleep(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	// Stop dispute escalation monitor
	if s.disputeMonitor != nil {
		s.disputeMonitor.Stop()
		s.logger.Info("dispute monitor stopped")
	}

	// Stop reconciliation timer
	if s.reconcileTimer != nil {
		s.reconcileTimer.Stop()
		s.logger.Info("reconciliation timer stopped")
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// AuthManager returns the API key manager for testing and bootstrap tooling
func (s *Server) AuthManager() *auth.Manager {
	return s.authMgr
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}

// -----------------------------------------------------------------------------
// Service adapters
// -----------------------------------------------------------------------------

// walletAdapter adapts wallet.Service to escrow.WalletService, translating
// sentinel errors so escrow callers see its own error vocabulary.
type walletAdapter struct {
	svc *wallet.Service
}

func (a *walletAdapter) Credit(ctx context.Context, userID string, amount int64, currency, reference, description string) error {
	return a.svc.Credit(ctx, userID, amount, currency, reference, description)
}

func (a *walletAdapter) Debit(ctx context.Context, userID string, amount int64, currency, reference, description string) error {
	err := a.svc.Debit(ctx, userID, amount, currency, reference, description)
	if errors.Is(err, wallet.ErrInsufficientFunds) {
		return escrow.ErrInsufficientFunds
	}
	return err
}

// jobsAdapter adapts jobs.Service to escrow.JobService
type jobsAdapter struct {
	svc *jobs.Service
}

func (a *jobsAdapter) Employer(ctx context.Context, jobID string) (string, error) {
	employer, err := a.svc.Employer(ctx, jobID)
	if errors.Is(err, jobs.ErrNotFound) {
		return "", escrow.ErrJobNotFound
	}
	return employer, err
}

func (a *jobsAdapter) MarkInProgress(ctx context.Context, jobID, workerID string) error {
	return a.svc.MarkInProgress(ctx, jobID, workerID)
}

func (a *jobsAdapter) MarkCompleted(ctx context.Context, jobID string) error {
	return a.svc.MarkCompleted(ctx, jobID)
}
