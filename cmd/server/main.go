package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"MailBlast/internal/api"
	"MailBlast/internal/config"
	"MailBlast/internal/drafting"
	"MailBlast/internal/email"
	"MailBlast/internal/llm"
	"MailBlast/internal/metrics"
	"MailBlast/internal/scoring"
	"MailBlast/internal/validation"
	"MailBlast/internal/worker"
)

const shutdownTimeout = 5 * time.Second

// newAPIServer leaves BaseContext unset so request contexts are not tied
// to the process signal context; Shutdown lets running batches finish.
func newAPIServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func main() {

	// ------------------------------------------------
	// Config
	// ------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	// ------------------------------------------------
	// Logger
	// ------------------------------------------------
	logCfg := zap.NewProductionConfig()
	if level, err := zapcore.ParseLevel(cfg.LogLevel); err == nil {
		logCfg.Level = zap.NewAtomicLevelAt(level)
	}
	logger, err := logCfg.Build()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// ------------------------------------------------
	// Root Context + Shutdown
	// ------------------------------------------------
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
		cancel()
	}()

	// ------------------------------------------------
	// Metrics
	// ------------------------------------------------
	metrics.Init()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())

	metricsServer := &http.Server{
		Addr:    ":" + cfg.MetricsPort,
		Handler: metricsMux,
	}

	go func() {
		logger.Info("metrics server started", zap.String("port", cfg.MetricsPort))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("metrics server error", zap.Error(err))
		}
	}()

	// ------------------------------------------------
	// Relay
	// ------------------------------------------------
	var relay email.Relay
	switch cfg.RelayProvider {
	case "log":
		relay = email.NewLogRelay(logger)
	case "smtp":
		relay = email.NewSMTPRelay(cfg.SMTPHost, cfg.SMTPPort, cfg.DialRetries, logger)
	default:
		logger.Fatal("unknown relay provider", zap.String("provider", cfg.RelayProvider))
	}

	// ------------------------------------------------
	// Rate Limiter
	// ------------------------------------------------
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimit)
	}

	// ------------------------------------------------
	// Dispatcher
	// ------------------------------------------------
	dispatcher := &worker.Dispatcher{
		Relay:       relay,
		Workers:     cfg.WorkerCount,
		SendTimeout: cfg.SendTimeout,
		Limiter:     limiter,
		Log:         logger,
	}

	// ------------------------------------------------
	// Drafting (optional)
	// ------------------------------------------------
	var drafter api.Drafter
	if cfg.DraftingEnabled() {
		gen, err := llm.NewVertexAIClient(ctx, cfg.GoogleCloudProject, cfg.GoogleCloudLocation, cfg.GenerationModel)
		if err != nil {
			logger.Fatal("vertex ai client failed", zap.Error(err))
		}
		defer gen.Close()
		drafter = drafting.NewService(gen)
	} else {
		logger.Info("drafting disabled, GOOGLE_CLOUD_PROJECT not set")
	}

	// ------------------------------------------------
	// HTTP API Server
	// ------------------------------------------------
	apiHandler := &api.Handler{
		Validator:      validation.New(cfg.RequireAttachment),
		Dispatcher:     dispatcher,
		Drafter:        drafter,
		Scorer:         scoring.NewClient(cfg.ScoringURL, cfg.ScoringRetries),
		MaxUploadBytes: cfg.MaxUploadBytes,
		Log:            logger,
	}

	apiServer := newAPIServer(":"+cfg.APIPort, api.Router(apiHandler, cfg.CORSOrigins))

	go func() {
		logger.Info("api server started",
			zap.String("port", cfg.APIPort),
			zap.String("relay", relay.Name()),
		)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("api server error", zap.Error(err))
		}
	}()

	// ------------------------------------------------
	// Wait for shutdown
	// ------------------------------------------------
	<-ctx.Done()

	logger.Info("shutting down services...")

	// in-flight batches keep their request context and drain here
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown failed", zap.Error(err))
	}

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics shutdown failed", zap.Error(err))
	}

	logger.Info("application shutdown complete")
}
