package handler

import (
	"erp-notification-be/internal/dto"
	"erp-notification-be/internal/pkg/apperror"
	"erp-notification-be/internal/pkg/logger"
	"erp-notification-be/internal/pkg/serverutils"
	"erp-notification-be/internal/service"
	internalWS "erp-notification-be/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

type NotificationHandler struct {
	service   *service.NotificationService
	hub       *internalWS.Hub
	jwtSecret string
	logger    logger.ILogger
}

func NewNotificationHandler(service *service.NotificationService, hub *internalWS.Hub, jwtSecret string, log logger.ILogger) *NotificationHandler {
	return &NotificationHandler{
		service:   service,
		hub:       hub,
		jwtSecret: jwtSecret,
		logger:    log,
	}
}

// ServeWs authenticates the handshake and hands the connection to the hub.
func (h *NotificationHandler) ServeWs(c *fiber.Ctx) error {
	// Query param first for browsers, Authorization header for tooling
	tokenStr := c.Query("token")
	if tokenStr == "" {
		tokenStr = serverutils.BearerToken(c, false)
	}
	if tokenStr == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "Missing token (Query 'token' or Header 'Authorization')")
	}

	identity, err := serverutils.ParseToken(tokenStr, h.jwtSecret)
	if err != nil {
		h.logger.Warn("NotificationHandler", "Invalid Token in WS Handshake", map[string]interface{}{"error": err.Error()})
		return err
	}

	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	userID := identity.UserID
	return websocket.New(func(conn *websocket.Conn) {
		h.logger.Info("NotificationHandler", "Starting WebSocket session", map[string]interface{}{"user_id": userID})
		internalWS.ServeWs(h.hub, conn, userID)
		h.logger.Info("NotificationHandler", "WebSocket session ended", map[string]interface{}{"user_id": userID})
	})(c)
}

func notificationID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, apperror.Validation("invalid notification id")
	}
	return id, nil
}

// GetNotifications returns one page of the caller's notifications.
func (h *NotificationHandler) GetNotifications(c *fiber.Ctx) error {
	identity, err := serverutils.CurrentIdentity(c)
	if err != nil {
		return err
	}

	var q dto.ListNotificationsQuery
	if err := c.QueryParser(&q); err != nil {
		return apperror.Validation("invalid query: %s", err.Error())
	}

	res, err := h.service.List(c.UserContext(), identity.UserID, q)
	if err != nil {
		return err
	}
	return c.JSON(serverutils.SuccessResponse("Success get notifications", res))
}

// GetUnreadCount returns the number of unread notifications.
func (h *NotificationHandler) GetUnreadCount(c *fiber.Ctx) error {
	identity, err := serverutils.CurrentIdentity(c)
	if err != nil {
		return err
	}

	count, err := h.service.UnreadCount(c.UserContext(), identity.UserID)
	if err != nil {
		return err
	}
	return c.JSON(serverutils.SuccessResponse("Success get unread count", dto.UnreadCountResponse{Count: count}))
}

// CreateNotification addresses the caller unless an admin names another recipient.
func (h *NotificationHandler) CreateNotification(c *fiber.Ctx) error {
	identity, err := serverutils.CurrentIdentity(c)
	if err != nil {
		return err
	}

	var req dto.CreateNotificationRequest
	if err := c.BodyParser(&req); err != nil {
		return apperror.Validation("invalid body: %s", err.Error())
	}

	recipient := identity.UserID
	if req.RecipientID != nil && *req.RecipientID != identity.UserID {
		if !identity.IsAdmin() {
			return apperror.ErrForbidden
		}
		recipient = *req.RecipientID
	}

	notif, err := h.service.Create(c.UserContext(), recipient, req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Success create notification", notif))
}

// MarkAsRead marks a specific notification as read.
func (h *NotificationHandler) MarkAsRead(c *fiber.Ctx) error {
	identity, err := serverutils.CurrentIdentity(c)
	if err != nil {
		return err
	}
	id, err := notificationID(c)
	if err != nil {
		return err
	}

	readAt, err := h.service.MarkAsRead(c.UserContext(), identity.UserID, id)
	if err != nil {
		return err
	}
	return c.JSON(serverutils.SuccessResponse("Notification marked as read", dto.ReadAtResponse{ReadAt: readAt}))
}

func (h *NotificationHandler) MarkAsUnread(c *fiber.Ctx) error {
	identity, err := serverutils.CurrentIdentity(c)
	if err != nil {
		return err
	}
	id, err := notificationID(c)
	if err != nil {
		return err
	}

	if err := h.service.MarkAsUnread(c.UserContext(), identity.UserID, id); err != nil {
		return err
	}
	return c.JSON(serverutils.SuccessResponse[any]("Notification marked as unread", nil))
}

// MarkAllAsRead marks all user's notifications as read.
func (h *NotificationHandler) MarkAllAsRead(c *fiber.Ctx) error {
	identity, err := serverutils.CurrentIdentity(c)
	if err != nil {
		return err
	}

	res, err := h.service.MarkAllAsRead(c.UserContext(), identity.UserID)
	if err != nil {
		return err
	}
	return c.JSON(serverutils.SuccessResponse("All notifications marked as read", res))
}

func (h *NotificationHandler) DeleteNotification(c *fiber.Ctx) error {
	identity, err := serverutils.CurrentIdentity(c)
	if err != nil {
		return err
	}
	id, err := notificationID(c)
	if err != nil {
		return err
	}

	if err := h.service.Delete(c.UserContext(), identity.UserID, id); err != nil {
		return err
	}
	return c.JSON(serverutils.SuccessResponse[any]("Notification deleted", nil))
}

func (h *NotificationHandler) DeleteAllRead(c *fiber.Ctx) error {
	identity, err := serverutils.CurrentIdentity(c)
	if err != nil {
		return err
	}

	res, err := h.service.DeleteAllRead(c.UserContext(), identity.UserID)
	if err != nil {
		return err
	}
	return c.JSON(serverutils.SuccessResponse("Read notifications deleted", res))
}

// RegisterRoutes registers the notification routes.
func (h *NotificationHandler) RegisterRoutes(router fiber.Router) {
	notif := router.Group("/notifications")
	notif.Use(serverutils.JwtMiddleware(h.jwtSecret))
	notif.Get("/", h.GetNotifications)
	notif.Post("/", h.CreateNotification)
	// Static paths before :id
	notif.Get("/unread/count", h.GetUnreadCount)
	notif.Put("/read-all", h.MarkAllAsRead)
	notif.Delete("/read/all", h.DeleteAllRead)
	notif.Put("/:id/read", h.MarkAsRead)
	notif.Put("/:id/unread", h.MarkAsUnread)
	notif.Delete("/:id", h.DeleteNotification)

	// WebSocket
	router.Get("/ws", h.ServeWs)
}
