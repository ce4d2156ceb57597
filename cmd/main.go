package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/victornm/prizewheel/internal/config"
	"github.com/victornm/prizewheel/internal/server"
)

const defaultConfigPath = "configs/local.yaml"

func main() {
	slog.SetDefault(newLogger(os.Getenv("LOG_LEVEL")))

	c, err := loadConfig(configPath())
	if err != nil {
		slog.Error("main: load config failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, os.Interrupt)
	defer stop()

	s, err := server.Init(c)
	if err != nil {
		slog.Error("main: init server failed", "error", err)
		os.Exit(1)
	}

	go s.Start()

	<-ctx.Done()
	slog.Info("main: shutting down, waiting for pending reveals")
	s.Shutdown()
}

func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return defaultConfigPath
}

// defaultConfig holds the values used for keys the file leaves out.
func defaultConfig() server.Config {
	var c server.Config
	c.HTTP.Port = 8080
	c.GRPC.Port = 8081
	c.Redis.Prefix = "prizewheel"
	c.Wheel.SettleDuration = 7 * time.Second
	c.Wheel.LedgerTTL = 24 * time.Hour
	c.Wheel.CacheTTL = 30 * time.Second
	c.Auth.TokenTTL = 12 * time.Hour
	return c
}

func loadConfig(path string) (server.Config, error) {
	c := defaultConfig()
	if err := config.Load(path, &c); err != nil {
		return c, fmt.Errorf("load config %s: %w", path, err)
	}

	if c.Auth.Secret == "" {
		return c, fmt.Errorf("auth.secret must be set")
	}

	return c, nil
}

// newLogger writes JSON to stderr. Unknown levels fall back to info.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
