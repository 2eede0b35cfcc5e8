package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/promptifyhq/promptify/internal"
	"github.com/promptifyhq/promptify/internal/ai"
	"github.com/promptifyhq/promptify/internal/ai/groq"
	"github.com/promptifyhq/promptify/internal/ai/mock"
	"github.com/promptifyhq/promptify/internal/billing"
	"github.com/promptifyhq/promptify/internal/document"
	"github.com/promptifyhq/promptify/internal/email"
	"github.com/promptifyhq/promptify/internal/handler"
	"github.com/promptifyhq/promptify/internal/metrics"
	"github.com/promptifyhq/promptify/internal/middleware"
	"github.com/promptifyhq/promptify/internal/repository"
	"github.com/promptifyhq/promptify/internal/service"
)

func run() error {
	ctx := context.Background()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize database connection
	db, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	// Run migrations
	if err := internal.RunMigrations(db); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database ready")

	// Initialize repository
	repo := repository.New(db)

	// Initialize AI completion provider
	provider, err := newCompletionProvider(cfg, logger)
	if err != nil {
		return fmt.Errorf("AI provider initialization failed: %w", err)
	}
	logger.Info("AI provider ready", "provider", cfg.AIProvider)

	// Initialize email notifier
	notifier := email.NewSMTPNotifier(email.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	}, logger)

	// Initialize Stripe billing (nil when not configured; handlers degrade gracefully)
	var stripeService billing.Service
	if cfg.StripeSecretKey != "" && cfg.StripeWebhookSecret != "" {
		stripeService = billing.NewStripeService(cfg.StripeSecretKey, cfg.StripeWebhookSecret, billing.DefaultPriceConfig(cfg.ProPriceCents))
		logger.Info("Stripe billing enabled")
	} else {
		logger.Warn("Stripe billing disabled: STRIPE_SECRET_KEY or STRIPE_WEBHOOK_SECRET not set")
	}

	// Initialize services
	jwtSecret := []byte(cfg.JWTSecret)
	userService := service.NewUserService(repo, notifier, jwtSecret, cfg.JWTLifetime, logger)
	quotaService := service.NewQuotaService(repo, logger)
	assistantService := service.NewAssistantService(repo, quotaService, provider, logger)
	billingService := service.NewBillingService(repo, logger)

	// Initialize middleware
	isSecure := cfg.Env != "development"
	authMw := middleware.NewAuthMiddleware(userService, jwtSecret, logger)
	loggingMw := middleware.NewRequestLoggingMiddleware(logger)
	securityMw := middleware.NewSecurityHeadersMiddleware(isSecure)
	authLimiter := middleware.NewAuthRateLimiter(logger)

	// Initialize handlers
	authHandler := handler.NewAuthHandler(userService, notifier, logger)
	assistantHandler := handler.NewAssistantHandler(assistantService, quotaService, document.NewPDFExtractor(), logger)
	billingHandler := handler.NewBillingHandler(stripeService, cfg.BaseURL, logger)
	webhookHandler := handler.NewWebhookHandler(stripeService, billingService, logger)

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("database unavailable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Metrics (basic auth protected)
	mux.Handle("GET /metrics", metrics.Handler(cfg.MetricsUsername, cfg.MetricsPassword))

	// Create middleware stacks
	base := middleware.Stack(securityMw.Handler, metrics.Middleware, loggingMw.Handler)
	public := base
	protected := middleware.Stack(securityMw.Handler, metrics.Middleware, loggingMw.Handler, authMw.WithUser, authMw.RequireUser)

	// Auth routes: login and registration carry their own rate limits
	registerStack := middleware.Stack(securityMw.Handler, metrics.Middleware, loggingMw.Handler, authLimiter.LimitRegister)
	loginStack := middleware.Stack(securityMw.Handler, metrics.Middleware, loggingMw.Handler, authLimiter.LimitLogin)
	authHandler.RegisterRoutes(mux, registerStack, loginStack, protected)

	// AI tool routes (all require a user)
	assistantHandler.RegisterRoutes(mux, protected)

	// Billing routes
	billingHandler.RegisterRoutes(mux, protected)

	// Stripe webhooks: public, authenticated via webhook signature
	webhookHandler.RegisterRoutes(mux, public)

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: mux,
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
		}
	}()

	// Wait for interrupt signal
	<-sigChan
	logger.Info("Shutdown signal received, initiating graceful shutdown...")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Graceful shutdown complete")
	return nil
}

// newCompletionProvider builds the configured AI provider.
func newCompletionProvider(cfg *internal.Config, logger *slog.Logger) (ai.CompletionProvider, error) {
	switch cfg.AIProvider {
	case "groq":
		return groq.New(groq.Config{
			APIKey: cfg.GroqAPIKey,
			Model:  cfg.GroqModel,
			ProviderConfig: ai.ProviderConfig{
				MaxRetries:     cfg.AIMaxRetries,
				RetryBaseDelay: cfg.AIRetryBaseDelay,
				RequestTimeout: cfg.AIRequestTimeout,
			},
		}, logger)
	case "mock":
		return mock.New(logger), nil
	default:
		return nil, fmt.Errorf("unknown AI provider: %s", cfg.AIProvider)
	}
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
