package main

import (
	"context"
	"os"
	"time"

	"github.com/joho/godotenv"

	"projectdesk/internal/platform/config"
	"projectdesk/internal/platform/logger"
	"projectdesk/internal/platform/postgres"
)

// main applies the database schema and exits.
func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()
	log := logger.New(cfg.Log)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := postgres.Migrate(ctx, db); err != nil {
		log.Error("migration failed", "error", err)
		os.Exit(1)
	}
	log.Info("schema applied")
}
