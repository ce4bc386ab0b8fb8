package main

import (
	"log"

	"erp-notification-be/internal/config"
	"erp-notification-be/internal/pkg/logger"
	"erp-notification-be/pkg/database"
)

func main() {
	cfg := config.Load()
	if cfg.Database.Connection == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}

	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	defer sysLogger.Sync()

	db, err := database.NewGormDBFromDSN(cfg.Database.Connection, sysLogger)
	if err != nil {
		log.Fatalf("Error: Failed to connect to database: %v", err)
	}

	sysLogger.Info("Migrate", "Migrating notifications schema", nil)
	if err := database.Migrate(db); err != nil {
		sysLogger.Error("Migrate", "Migration failed", map[string]interface{}{"error": err.Error()})
		log.Fatalf("Error: %v", err)
	}

	log.Println("✅ Success: notifications schema is up to date.")
}
