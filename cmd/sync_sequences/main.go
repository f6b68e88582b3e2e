package main

import (
	"log"

	"go.uber.org/zap"

	"whatsapp-suite/internal/config"
	"whatsapp-suite/internal/database"
	"whatsapp-suite/internal/logging"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	db, err := database.Open(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open database", zap.Error(err))
	}

	logger.Info("Syncing PostgreSQL sequences...")
	if err := database.SyncSequences(db, logger); err != nil {
		logger.Fatal("Sequence sync failed", zap.Error(err))
	}
	logger.Info("DONE!")
}
