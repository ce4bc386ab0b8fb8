// Package push defines the frames exchanged over the notification WebSocket.
package push

import (
	"encoding/json"
	"time"
)

// Server to client.
const (
	EventNew          = "notification:new"
	EventCount        = "notification:count"
	EventMarkedRead   = "notification:marked-read"
	EventMarkedUnread = "notification:marked-unread"
	EventDeleted      = "notification:deleted"
	EventError        = "notification:error"
)

// Client to server.
const (
	EventRequestCount = "notification:request-count"
	EventMarkRead     = "notification:mark-read"
)

// Message is a single WebSocket text frame.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewMessage marshals data into a frame. A nil data yields a frame without payload.
func NewMessage(event string, data interface{}) (Message, error) {
	msg := Message{Event: event}
	if data == nil {
		return msg, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, err
	}
	msg.Data = raw
	return msg, nil
}

// Encode marshals the frame for the wire.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses one frame.
func Decode(b []byte) (Message, error) {
	var m Message
	err := json.Unmarshal(b, &m)
	return m, err
}

// ReadState announces a read-state change for one notification.
// On client-originated mark-read frames ReadAt is informational only.
type ReadState struct {
	NotificationID string     `json:"notificationId,omitempty"`
	ReadAt         *time.Time `json:"readAt,omitempty"`
	// All is set by mark-all-read; NotificationID is then empty.
	All bool `json:"all,omitempty"`
}

type Count struct {
	Count int64 `json:"count"`
}

type Deleted struct {
	NotificationID string `json:"notificationId,omitempty"`
	WasUnread      bool   `json:"wasUnread"`
	// All is set when every read notification was removed at once.
	All bool `json:"all,omitempty"`
}

type Error struct {
	Message string `json:"message"`
}
