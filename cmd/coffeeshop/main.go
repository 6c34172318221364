package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/AmeenMohammed/coffee-shop/internal/authz"
	"github.com/AmeenMohammed/coffee-shop/internal/config"
	logger "github.com/AmeenMohammed/coffee-shop/internal/logging"
	"github.com/AmeenMohammed/coffee-shop/internal/repo/drink"
	"github.com/AmeenMohammed/coffee-shop/internal/server"
	"github.com/AmeenMohammed/coffee-shop/internal/tracing"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the YAML config file")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// 1. Load config
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Error("Error loading config: %v", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.LogConfig{Level: cfg.Logging.Level, Format: cfg.Logging.Format}); err != nil {
		logger.Error("Error configuring logger: %v", err)
		os.Exit(1)
	}
	if *debugMode {
		logger.SetDebug(true)
	}
	defer func() { _ = logger.Sync() }()

	if !*debugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()

	// 2. Tracing
	tracer, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		logger.Error("Failed to set up tracing: %v", err)
		os.Exit(1)
	}
	if tracer.Enabled() {
		logger.Info("Exporting traces to %s", cfg.Tracing.Endpoint)
	}

	// 3. Drink repository
	factory, err := drink.FactoryFor(cfg.Database)
	if err != nil {
		logger.Error("Configuration error: %v", err)
		os.Exit(1)
	}
	drinks, err := factory()
	if err != nil {
		logger.Error("Failed to open drink repository: %v", err)
		os.Exit(1)
	}
	if cfg.Database.ResetOnStart {
		logger.Warn("Resetting drink repository")
		if err := drinks.Reset(ctx); err != nil {
			logger.Error("Failed to reset drink repository: %v", err)
			os.Exit(1)
		}
	}

	// 4. Signing keys, verifier and gate
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	keys, jwksURL, err := MakeKeySource(ctx, cfg, registry)
	if err != nil {
		logger.Error("Failed to set up signing keys: %v", err)
		os.Exit(1)
	}
	// Warm the cache so a bad issuer shows up at startup. Requests retry on their own.
	if set, err := keys.Keys(ctx); err != nil {
		logger.Warn("Initial JWKS fetch failed: %v", err)
	} else {
		logger.Info("Loaded signing keys: %v", set.KeyIDs())
	}

	gate := authz.NewGate(
		MakeVerifier(cfg, keys),
		&authz.PermissionValidator{},
		authz.WithMetrics(authz.NewMetrics("coffeeshop", registry)),
		authz.WithTracer(tracer.Tracer()),
	)

	// 5. Build the router
	router := server.NewRouter(cfg, server.Deps{
		Drinks:   drinks,
		Gate:     gate,
		Metadata: authz.NewMetadataProvider(cfg, jwksURL),
		Registry: registry,
	})

	// 6. Start the server
	srv := server.NewHTTPServer(cfg, router)
	go func() {
		logger.Info("Server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error: %v", err)
			os.Exit(1)
		}
	}()

	// 7. Wait for shutdown signal
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Info("Shutting down...")

	shutdownCtx, cancel := server.NewShutdownContext(5 * time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error: %v", err)
	}
	if err := tracer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Tracer shutdown error: %v", err)
	}
	if err := drinks.Close(); err != nil {
		logger.Error("Repository close error: %v", err)
	}
	logger.Info("Stopped.")
}
