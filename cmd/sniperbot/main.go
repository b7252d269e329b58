// Command sniperbot is the entry point for the MEXC listing sniper. It loads
// configuration, validates it, wires dependencies, sets up signal handling, and
// starts the application in the configured mode.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alanyoungcy/mexcsniper/internal/app"
	"github.com/alanyoungcy/mexcsniper/internal/config"
	"github.com/alanyoungcy/mexcsniper/internal/crypto"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file (optional)")
	sealTo := flag.String("seal-secret", "", "encrypt MEXCBOT_MEXC_SECRET_KEY with MEXCBOT_MEXC_KEY_PASSWORD into this file and exit")
	flag.Parse()

	if *sealTo != "" {
		if err := sealSecret(*sealTo); err != nil {
			fmt.Fprintf(os.Stderr, "seal-secret: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Setup structured JSON logger.
	logger := newLogger("info")
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	logger = newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("mexc sniper starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
	)

	application := app.New(cfg, logger)
	defer application.Close()

	// Setup signal handling for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		// context.Canceled is expected on clean shutdown.
		if errors.Is(err, context.Canceled) {
			logger.Info("application shut down gracefully")
		} else {
			logger.Error("application exited with error",
				slog.String("error", err.Error()),
			)
			application.Close()
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
	}

	logger.Info("mexc sniper stopped")
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: l}))
}

// sealSecret writes an encrypted key file for mexc.encrypted_secret_path.
func sealSecret(path string) error {
	secret := os.Getenv("MEXCBOT_MEXC_SECRET_KEY")
	password := os.Getenv("MEXCBOT_MEXC_KEY_PASSWORD")
	blob, err := crypto.EncryptSecret(secret, password)
	if err != nil {
		return err
	}
	return os.WriteFile(path, blob, 0o600)
}
