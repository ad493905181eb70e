// voicechat is the realtime audio client. It plays an Ogg/Opus file as the
// microphone, records the provider's voice to another Ogg file and serves a
// local control panel with start and stop buttons.
package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/enesunal-m/realtimechat"
	"github.com/enesunal-m/realtimechat/panel"
	"github.com/enesunal-m/realtimechat/webrtc"
)

func main() {
	configPath := flag.String("config", "", "optional YAML config file")
	auto := flag.Bool("auto", false, "start a chat session immediately")
	flag.Parse()

	envErr := godotenv.Load()

	logger := realtimechat.NewLoggerFromEnv()
	logger.SetPrefix("voicechat")
	defer logger.Sync()

	if envErr != nil && !errors.Is(envErr, fs.ErrNotExist) {
		logger.Warn("dotenv_load_failed", map[string]any{"error": envErr})
	}

	cfg, err := realtimechat.LoadConfig(*configPath)
	if err != nil {
		logger.Error("config_invalid", map[string]any{"error": err})
		os.Exit(1)
	}
	cfg.StructuredLogger = logger

	ctrl, err := webrtc.NewController(cfg, webrtc.OggMedia(cfg.InputPath, cfg.OutputPath))
	if err != nil {
		logger.Error("controller_init_failed", map[string]any{"error": err})
		os.Exit(1)
	}
	defer ctrl.Close()

	srv := &http.Server{
		Addr:              cfg.PanelAddr,
		Handler:           panel.New(ctrl, logger).Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          zap.NewStdLog(logger.Zap()),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("panel_listening", map[string]any{"addr": "http://" + cfg.PanelAddr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen_failed", map[string]any{"error": err})
			stop()
		}
	}()

	if *auto {
		go func() {
			if err := ctrl.Start(ctx); err != nil {
				logger.Error("auto_start_failed", map[string]any{"error": err})
			}
		}()
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown_failed", map[string]any{"error": err})
	}
}
