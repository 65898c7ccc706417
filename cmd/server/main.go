package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/MusicHub/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/MusicHub/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/MusicHub/backend/internal/infrastructure/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// Flags override environment variables
	port := flag.String("port", cfg.Server.Port, "Server port")
	dbPath := flag.String("db", cfg.Database.Path, "SQLite database path")
	seedDir := flag.String("seed", cfg.Seed.Dir, "Directory of source scripts imported on startup")
	dev := flag.Bool("dev", cfg.Logging.Development, "Development mode (colored logs, debug level)")
	flag.Parse()

	cfg.Server.Port = *port
	cfg.Database.Path = *dbPath
	cfg.Seed.Dir = *seedDir
	cfg.Logging.Development = *dev
	level := cfg.Logging.Level
	if *dev && level == "info" {
		level = "debug"
	}
	logger := logging.FromLevel(level, cfg.Logging.Development)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.NewServer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create server", zap.Error(err))
	}

	if err := srv.Run(ctx); err != nil {
		logger.Error("Server error", zap.Error(err))
		os.Exit(1)
	}
}
