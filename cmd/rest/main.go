package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"erp-notification-be/internal/bootstrap"
	"erp-notification-be/internal/config"
	"erp-notification-be/internal/pkg/logger"
	"erp-notification-be/internal/server"
	"erp-notification-be/internal/tracer"
	"erp-notification-be/pkg/database"

	"gorm.io/gorm"
)

func main() {
	// 1. Load Configuration
	cfg := config.Load()

	// 2. Initialize Tracer
	shutdownTracer, err := tracer.InitTracer(context.Background(), cfg.Tracing, cfg.App.Environment)
	if err != nil {
		log.Printf("Warning: %v (tracing disabled)", err)
	}
	defer shutdownTracer(context.Background())

	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())

	// 3. Initialize Database
	var gormDB *gorm.DB
	if cfg.Database.Driver == "postgres" {
		db, err := database.NewGormDBFromDSN(cfg.Database.Connection, sysLogger)
		if err != nil {
			log.Panicf("Unable to connect to GORM DB: %v", err)
		}
		if err := database.Migrate(db); err != nil {
			log.Panicf("Unable to migrate notifications table: %v", err)
		}
		gormDB = db
	}

	// 4. Bootstrap Dependencies (Container)
	container, err := bootstrap.NewContainer(gormDB, cfg, sysLogger)
	if err != nil {
		log.Panicf("Unable to bootstrap container: %v", err)
	}
	defer container.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. Start Background Services
	go container.WebSocketHub.Run(ctx)
	if err := container.NotificationService.Start(); err != nil {
		log.Printf("[WARN] Notification worker not started: %v", err)
	}

	// 6. Initialize Server
	srv := server.New(cfg, container)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// 7. Run Server
	if err := srv.Run(); err != nil {
		log.Printf("Server stopped: %v", err)
	}
}
