// Minimal server that mints ephemeral keys for realtime audio clients.
// The long-lived secret stays in this process; clients only ever see the ephemeral key.
package main

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/enesunal-m/realtimechat"
	"github.com/enesunal-m/realtimechat/issuer"
)

func main() {
	// .env may set the log level, so load it before the logger exists.
	envErr := godotenv.Load()

	logger := realtimechat.NewLoggerFromEnv()
	logger.SetPrefix("ephemeral-issuer")
	defer logger.Sync()

	if envErr != nil && !errors.Is(envErr, fs.ErrNotExist) {
		logger.Warn("dotenv_load_failed", map[string]any{"error": envErr})
	}

	cfg, err := issuer.LoadConfigFromEnv()
	if err != nil {
		logger.Error("config_invalid", map[string]any{"error": err})
		os.Exit(1)
	}
	if cfg.APIKey == "" {
		logger.Warn("secret_missing", map[string]any{"env": "OPENAI_API_KEY", "effect": "every request answers 500"})
	}

	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.SentryEnvironment,
		})
		if err != nil {
			logger.Warn("sentry_init_failed", map[string]any{"error": err})
		} else {
			logger.Info("sentry_initialized", nil)
			defer sentry.Flush(2 * time.Second)
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	srv := issuer.NewServer(cfg, logger, reg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("listening", map[string]any{
			"addr":  cfg.Addr,
			"model": cfg.Model,
			"voice": cfg.Voice,
			"cors":  cfg.AllowedOrigins,
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen_failed", map[string]any{"error": err})
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown_failed", map[string]any{"error": err})
	}
}
