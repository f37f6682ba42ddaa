package main

import (
	"context"
	"errors"
	"fmt"
	"krysselista/auth"
	"krysselista/infrastructure/httpapi"
	"krysselista/internal"
	"krysselista/observability"
	"krysselista/runtime"
	"krysselista/runtime/workers"
	"krysselista/services"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// Every defer runs before the process exits.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)
	if config.LogLevel != "DEBUG" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 2. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Collection store
	store, err := internal.OpenStore(ctx, config, log)
	if err != nil {
		return exitRuntime, err
	}
	defer store.Close()

	// 4. Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	monitoring := observability.NewMonitoringManager(log, reg)

	// 5. Core services & sessions
	registry := runtime.NewRegistry()
	deps := runtime.SessionDeps{
		Client:     store.Client,
		Composer:   services.NewComposer(store.Client, log, monitoring, config.MaxBodyLength),
		Tracker:    services.NewReadTracker(store.Client, log, monitoring, config.ReadMarkConcurrency),
		Ledger:     services.NewAttendanceLedger(store.Client, log, monitoring, time.Now),
		Registry:   registry,
		Monitoring: monitoring,
		Log:        log,
	}
	sup := workers.NewSupervisor(log).WithRestartInterval(config.RestartInterval)
	manager := runtime.NewSessionManager(log, sup, deps, config.SessionIdleTimeout)
	sup.Add(manager, monitoring)

	supervised := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(supervised)
	}()

	// 6. HTTP Server Setup
	server := httpapi.NewServer(httpapi.Config{
		Log:          log,
		Sessions:     manager,
		Tokens:       auth.NewTokens(config.JWTSigningKey, config.JWTIssuer, config.AuthTokenDuration),
		Registry:     registry,
		Monitoring:   monitoring,
		Gatherer:     reg,
		Healthy:      store.Healthy,
		StreamBuffer: config.StreamBufferSize,
	})
	httpServer := &http.Server{
		Addr:              config.Address(),
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Use an error channel to capture ListenAndServe() issues
	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", httpServer.Addr, "backend", config.StoreBackend, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	code := exitOK
	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case runErr = <-errChan:
		code = exitRuntime
	}

	// 8. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	// Event streams only end once their sessions close, so stop sessions first.
	sup.Stop()
	<-supervised
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown incomplete", "error", err)
	}
	log.Info("Program stopped cleanly")
	return code, runErr
}
