package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"erp-notification-be/internal/config"
	"erp-notification-be/internal/model"
	"erp-notification-be/internal/pkg/serverutils"
	"erp-notification-be/internal/repository/implementation"
	"erp-notification-be/pkg/database"
	"erp-notification-be/pkg/events"
	pktNats "erp-notification-be/pkg/nats"

	"github.com/google/uuid"
)

type sample struct {
	title    string
	message  string
	typ      model.NotificationType
	priority model.Priority
	link     string
}

var samples = []sample{
	{"Payroll processed", "Your payslip for this month is ready.", model.NotificationTypeSuccess, model.PriorityNormal, "/payroll/payslips"},
	{"Leave request pending", "A leave request is waiting for your approval.", model.NotificationTypeTask, model.PriorityHigh, "/hr/leave"},
	{"Vehicle inspection due", "Fleet vehicle inspection is due in 3 days.", model.NotificationTypeReminder, model.PriorityNormal, "/fleet/vehicles"},
	{"Trip cancelled", "The trip scheduled for tomorrow was cancelled.", model.NotificationTypeWarning, model.PriorityNormal, "/fleet/trips"},
	{"Accident report filed", "A traffic accident report requires immediate review.", model.NotificationTypeError, model.PriorityUrgent, "/reports/accidents"},
	{"New message", "You have a new message from HR.", model.NotificationTypeMessage, model.PriorityLow, "/messages"},
	{"System maintenance", "Scheduled maintenance tonight at 23:00.", model.NotificationTypeSystem, model.PriorityNormal, ""},
	{"Policy update", "The travel expense policy has been updated.", model.NotificationTypeInfo, model.PriorityLow, "/policies"},
}

// Seeds notifications for SEED_USER_ID (random when unset) and prints a bearer token for that user.
// With EVENT_BUS=nats the notifications are published as events so a running server delivers them live.
func main() {
	cfg := config.Load()

	userID := uuid.New()
	if raw := os.Getenv("SEED_USER_ID"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			log.Fatalf("Error: SEED_USER_ID is not a uuid: %v", err)
		}
		userID = parsed
	}

	count := len(samples) * 3
	if raw := os.Getenv("SEED_COUNT"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			log.Fatalf("Error: SEED_COUNT must be a positive integer")
		}
		count = n
	}

	ctx := context.Background()
	if cfg.App.EventBus == "nats" {
		seedViaBus(ctx, cfg, userID, count)
	} else {
		seedViaDatabase(ctx, cfg, userID, count)
	}

	if cfg.Auth.JWTSecret == "" {
		log.Println("Warn: JWT_SECRET is not set; no token issued")
		return
	}
	token, err := serverutils.IssueToken(cfg.Auth.JWTSecret, userID, "user", 24*time.Hour)
	if err != nil {
		log.Fatalf("Error: failed to issue token: %v", err)
	}
	fmt.Printf("user_id: %s\ntoken:   %s\n", userID, token)
}

func seedViaDatabase(ctx context.Context, cfg *config.Config, userID uuid.UUID, count int) {
	if cfg.Database.Connection == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}
	db, err := database.NewGormDBFromDSN(cfg.Database.Connection, nil)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Error: AutoMigrate failed: %v", err)
	}

	repo := implementation.NewNotificationRepository(db)
	base := time.Now().Add(-time.Duration(count) * time.Minute)
	for i := 0; i < count; i++ {
		s := samples[i%len(samples)]
		n := &model.Notification{
			RecipientID: userID,
			Title:       s.title,
			Message:     s.message,
			Type:        s.typ,
			Priority:    s.priority,
			Link:        s.link,
			CreatedAt:   base.Add(time.Duration(i) * time.Minute).UTC(),
		}
		// Every third notification starts out read
		if i%3 == 0 {
			n.MarkRead(n.CreatedAt.Add(30 * time.Second))
		}
		if err := repo.Create(ctx, n); err != nil {
			log.Fatalf("Error: failed to create notification: %v", err)
		}
	}
	log.Printf("✅ Seeded %d notifications for %s", count, userID)
}

func seedViaBus(ctx context.Context, cfg *config.Config, userID uuid.UUID, count int) {
	pub, err := pktNats.NewPublisher(cfg.App.NatsURL, nil)
	if err != nil {
		log.Fatalf("Error: failed to connect to NATS: %v", err)
	}
	defer pub.Close()

	for i := 0; i < count; i++ {
		s := samples[i%len(samples)]
		event := events.BaseEvent{
			Type: events.TypeNotificationRequested,
			Data: map[string]interface{}{
				"recipient_id": userID.String(),
				"title":        s.title,
				"message":      s.message,
				"type":         string(s.typ),
				"priority":     string(s.priority),
				"link":         s.link,
			},
			OccurredAt: time.Now(),
		}
		if err := pub.Publish(ctx, event); err != nil {
			log.Fatalf("Error: failed to publish notification request: %v", err)
		}
	}
	log.Printf("✅ Published %d notification requests for %s", count, userID)
}
