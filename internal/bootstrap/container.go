package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log"

	"erp-notification-be/internal/config"
	"erp-notification-be/internal/handler"
	"erp-notification-be/internal/pkg/logger"
	"erp-notification-be/internal/repository"
	"erp-notification-be/internal/repository/implementation"
	"erp-notification-be/internal/repository/memory"
	"erp-notification-be/internal/service"
	"erp-notification-be/internal/websocket"
	"erp-notification-be/pkg/analytics"
	"erp-notification-be/pkg/events"

	pktNats "erp-notification-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	Logger logger.ILogger

	// Infrastructure
	Bus   events.Bus
	Redis *redis.Client

	// WebSockets & Notification
	NotificationService *service.NotificationService
	NotificationHandler *handler.NotificationHandler
	WebSocketHub        *websocket.Hub

	Analytics *analytics.Aggregator
}

// NewContainer wires every dependency. db may be nil when the memory store is selected.
func NewContainer(db *gorm.DB, cfg *config.Config, sysLogger logger.ILogger) (*Container, error) {
	// 1. Store Gateway
	var notifRepo repository.NotificationRepository
	switch cfg.Database.Driver {
	case "memory":
		notifRepo = memory.NewNotificationRepository()
		log.Printf("[INFO] Using Store Driver: MEMORY")
	case "postgres":
		if db == nil {
			return nil, errors.New("postgres store selected but no database connection was supplied")
		}
		notifRepo = implementation.NewNotificationRepository(db)
		log.Printf("[INFO] Using Store Driver: POSTGRES")
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.Database.Driver)
	}

	// 2. Event Bus
	var bus events.Bus
	switch cfg.App.EventBus {
	case "nats":
		natsBus, err := pktNats.NewBus(cfg.App.NatsURL, sysLogger)
		if err != nil {
			return nil, fmt.Errorf("connect to NATS: %w", err)
		}
		bus = natsBus
		log.Printf("[INFO] Using Event Bus: NATS (%s)", cfg.App.NatsURL)
	default:
		bus = events.NewGoChannelBus(watermill.NewStdLogger(false, false))
		log.Printf("[INFO] Using Event Bus: IN-PROCESS")
	}

	// 3. Redis (optional, enables cross-instance fan-out)
	var rdb *redis.Client
	if cfg.App.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.App.RedisURL)
		if err != nil {
			log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
			opt = &redis.Options{
				Addr: cfg.App.RedisURL,
			}
		}
		rdb = redis.NewClient(opt)
		if _, err := rdb.Ping(context.Background()).Result(); err != nil {
			log.Printf("[WARN] Failed to connect to Redis: %v. Fan-out stays local", err)
			rdb.Close()
			rdb = nil
		}
	}

	// 4. WebSocket Hub
	wsLogger := logger.NewIsolatedLogger(cfg.App.NotificationLogFilePath)
	wsHub := websocket.NewHub(rdb, cfg.Notification.ClientSendBuffer, wsLogger)

	// 5. Notification Domain
	notifService := service.NewNotificationService(notifRepo, bus, wsHub, service.Options{
		DefaultPageSize: cfg.Notification.DefaultPageSize,
		MaxPageSize:     cfg.Notification.MaxPageSize,
		UnreadCountTTL:  cfg.Notification.UnreadCountTTL,
	}, sysLogger)
	wsHub.SetInboundHandler(notifService)

	notifHandler := handler.NewNotificationHandler(notifService, wsHub, cfg.Auth.JWTSecret, wsLogger)

	return &Container{
		Logger:              sysLogger,
		Bus:                 bus,
		Redis:               rdb,
		NotificationService: notifService,
		NotificationHandler: notifHandler,
		WebSocketHub:        wsHub,
		Analytics:           analytics.NewAggregator(),
	}, nil
}

// Close releases infrastructure connections.
func (c *Container) Close() {
	if c.Bus != nil {
		c.Bus.Close()
	}
	if c.Redis != nil {
		c.Redis.Close()
	}
	c.Logger.Sync()
}
