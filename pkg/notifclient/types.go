package notifclient

import (
	"encoding/json"
	"time"
)

// Notification is the client-side snapshot of a server notification.
type Notification struct {
	ID          string          `json:"id"`
	RecipientID string          `json:"recipientId"`
	Title       string          `json:"title"`
	Message     string          `json:"message"`
	Type        string          `json:"type"`
	Link        string          `json:"link,omitempty"`
	Priority    string          `json:"priority,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	IsRead      bool            `json:"isRead"`
	ReadAt      *time.Time      `json:"readAt"`
	CreatedAt   time.Time       `json:"createdAt"`
}

func (n Notification) IsUrgent() bool {
	return n.Priority == "urgent"
}

func (n *Notification) markRead(at time.Time) {
	n.IsRead = true
	n.ReadAt = &at
}

func (n *Notification) markUnread() {
	n.IsRead = false
	n.ReadAt = nil
}

// ListParams selects one page of the caller's notifications.
type ListParams struct {
	Page       int
	Limit      int
	UnreadOnly bool
}

// ListResult mirrors the data block of GET /notifications.
type ListResult struct {
	Notifications []Notification `json:"notifications"`
	Pagination    struct {
		Page  int   `json:"page"`
		Pages int   `json:"pages"`
		Total int64 `json:"total"`
		Limit int   `json:"limit"`
	} `json:"pagination"`
	UnreadCount int64 `json:"unreadCount"`
}

// ConnState is the push channel lifecycle as seen by the controller.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
)

// Banner is the single user-visible error surface.
type Banner struct {
	Kind    ErrorKind
	Message string
	// Persistent banners stay until the condition is resolved; others clear after ErrorDisplayWindow.
	Persistent bool
	id         uint64
}

// State is an immutable snapshot handed to presentation code.
type State struct {
	Connection        ConnState
	Notifications     []Notification
	UnreadCount       int64
	Page              int
	HasMore           bool
	Loading           bool
	UnreadOnly        bool
	ReconnectAttempts int
	Error             *Banner
	Preferences       Preferences
}
