package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/VanDung-dev/HieraTime-Engine/internal/cli"
	"github.com/VanDung-dev/HieraTime-Engine/internal/config"
	"github.com/VanDung-dev/HieraTime-Engine/internal/logging"
)

func main() {
	// Configuration comes from hieratime.yaml and HIERATIME_* only.
	if err := config.Init(viper.GetViper(), os.Getenv("HIERATIME_CONFIG")); err != nil {
		log.Fatalf("Failed to read config: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = cli.Serve(ctx, cfg, logger)
	stop()

	if err != nil {
		logger.Error("server failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info("server stopped")
	_ = logger.Sync()
}
