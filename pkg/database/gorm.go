package database

import (
	"fmt"
	"time"

	"erp-notification-be/internal/model"
	appLogger "erp-notification-be/internal/pkg/logger"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const moduleName = "Database"

// postMigrationSQL holds indexes gorm tags cannot express.
var postMigrationSQL = []string{
	`CREATE INDEX IF NOT EXISTS idx_notifications_unread ON notifications (recipient_id) WHERE is_read = false`,
}

// gormWriter forwards gorm's printf-style output to the structured logger.
type gormWriter struct {
	log appLogger.ILogger
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.log.Warn(moduleName, fmt.Sprintf(format, args...), nil)
}

func newGormLogger(log appLogger.ILogger) logger.Interface {
	return logger.New(gormWriter{log: log}, logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true, // not-found is an expected ownership miss
		ParameterizedQueries:      true,
		Colorful:                  false,
	})
}

func NewGormDBFromDSN(dsn string, log appLogger.ILogger) (*gorm.DB, error) {
	if log == nil {
		log = appLogger.NewNop()
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: newGormLogger(log),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

// Migrate creates or updates the notifications table and its indexes.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&model.Notification{}); err != nil {
		return fmt.Errorf("automigrate notifications: %w", err)
	}
	for _, stmt := range postMigrationSQL {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("post-migration %q: %w", stmt, err)
		}
	}
	return nil
}
