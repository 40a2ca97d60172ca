package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"pulsefeed/internal/ai"
	"pulsefeed/internal/cache"
	"pulsefeed/internal/config"
	"pulsefeed/internal/credentials"
	"pulsefeed/internal/handler"
	"pulsefeed/internal/logger"
	"pulsefeed/internal/provider"
	"pulsefeed/internal/provider/chat"
	"pulsefeed/internal/provider/mail"
	"pulsefeed/internal/resilience"
	"pulsefeed/internal/router"
	"pulsefeed/internal/scoring"
	"pulsefeed/internal/service"
	"pulsefeed/internal/stream"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal("Config validation failed:", err)
	}

	appLogger := logger.New(cfg.Env)

	// Cache manager: four namespaces, shared across all sessions.
	cacheManager := cache.NewManager(cache.TTLs{
		Messages:   cfg.MessagesTTL,
		Tokens:     cfg.TokensTTL,
		Priority:   cfg.PriorityTTL,
		ConnStatus: cfg.ConnStatusTTL,
	}, appLogger)

	// Provider adapters.
	adapters := []provider.Adapter{
		mail.New(appLogger),
		chat.New(cfg.ChatAPIBaseURL, appLogger),
	}

	// One circuit breaker per external service, built once and injected.
	breakers := resilience.NewBreakerRegistry(appLogger)
	for _, adapter := range adapters {
		breakers.Register(adapter.Name(), resilience.BreakerConfig{
			FailureThreshold: cfg.BreakerFailureThreshold,
			RecoveryTimeout:  cfg.BreakerRecoveryTimeout,
		})
	}
	// The analysis API gets the stricter threshold.
	breakers.Register("analysis", resilience.BreakerConfig{
		FailureThreshold: 3,
		RecoveryTimeout:  cfg.BreakerRecoveryTimeout,
	})

	// Credential resolver with oauth2 refresh for the mail provider.
	providerNames := make([]string, len(adapters))
	for i, adapter := range adapters {
		providerNames[i] = adapter.Name()
	}
	resolver := credentials.NewStore(providerNames, cacheManager, appLogger)
	if cfg.GoogleClientID != "" {
		resolver.SetOAuthConfig("gmail", &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			Endpoint:     google.Endpoint,
		})
	}

	// AI analyzer is optional; without a key the heuristic classifier
	// drives scoring.
	var analyzer ai.Analyzer
	if cfg.AIKey != "" {
		analyzer = ai.NewClient(cfg.AIProvider, cfg.AIKey, cfg.AIBaseURL, appLogger)
	} else {
		appLogger.Info("AI_API_KEY not set, running with heuristic scoring only")
	}

	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.MaxAttempts = cfg.RetryMaxAttempts
	retryCfg.BaseDelay = cfg.RetryBaseDelay
	retryCfg.MaxDelay = cfg.RetryMaxDelay

	scorer := scoring.New(appLogger)
	feedService := service.NewFeedService(adapters, resolver, analyzer, scorer, cacheManager, breakers, retryCfg, cfg.WindowDays, appLogger)
	coordinator := stream.NewCoordinator(feedService, cacheManager, cfg.PollInterval, cfg.SessionLifetime, appLogger)

	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	feedHandler := handler.NewFeedHandler(feedService, coordinator, cacheManager, breakers, appLogger)
	router.SetupRoutes(e, feedHandler)

	// Serve until interrupted, then drain sessions before stopping.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		appLogger.Info("Starting server on port", cfg.Port)
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server stopped:", err)
			stop()
		}
	}()

	<-ctx.Done()
	appLogger.Info("Shutting down")

	coordinator.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Shutdown failed:", err)
	}
}
