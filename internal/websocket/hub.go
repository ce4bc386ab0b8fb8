package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"erp-notification-be/internal/pkg/logger"
	"erp-notification-be/pkg/push"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const clusterChannel = "notification_events"

// InboundHandler answers frames sent by a connected client. Replies are
// written back to the sending connection only.
type InboundHandler interface {
	HandleInbound(ctx context.Context, userID uuid.UUID, msg push.Message) ([]push.Message, error)
}

type Hub struct {
	// Registered clients map: UserID -> set of Clients (multi-device)
	clients map[uuid.UUID]map[*Client]struct{}

	// Lock for safe map access
	mu sync.RWMutex

	// Redis connection for cross-instance communication, optional
	rdb        *redis.Client
	instanceID string

	handler    InboundHandler
	sendBuffer int

	logger logger.ILogger
}

func NewHub(rdb *redis.Client, sendBuffer int, log logger.ILogger) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	return &Hub{
		clients:    make(map[uuid.UUID]map[*Client]struct{}),
		rdb:        rdb,
		instanceID: uuid.NewString(),
		sendBuffer: sendBuffer,
		logger:     log,
	}
}

// SetInboundHandler wires the component answering client frames. It must be
// called before the hub starts serving connections.
func (h *Hub) SetInboundHandler(handler InboundHandler) {
	h.handler = handler
}

// Run relays events published by other instances until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	if h.rdb == nil {
		<-ctx.Done()
		return
	}
	h.subscribeToRedis(ctx)
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	set, ok := h.clients[client.UserID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[client.UserID] = set
	}
	set[client] = struct{}{}
	h.mu.Unlock()
	h.logger.Info("Hub", "Client registered", client.fields(nil))
}

// Unregister removes the client and closes its send queue. Safe to call twice.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.clients[client.UserID]
	if !ok {
		return
	}
	if _, ok := set[client]; !ok {
		return
	}
	delete(set, client)
	client.closeSend()
	if len(set) == 0 {
		delete(h.clients, client.UserID)
		h.logger.Info("Hub", "Client completely unregistered", map[string]interface{}{"user_id": client.UserID})
	}
}

// ConnectionCount returns how many live connections a user has on this instance.
func (h *Hub) ConnectionCount(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Emit delivers an event to every connection of userID, on this and other
// instances. Delivery is best-effort: a connection whose queue is full is dropped.
func (h *Hub) Emit(userID uuid.UUID, event string, payload interface{}) {
	msg, err := push.NewMessage(event, payload)
	if err != nil {
		h.logger.Error("Hub", "Failed to encode event", map[string]interface{}{"event": event, "error": err.Error()})
		return
	}
	data, err := msg.Encode()
	if err != nil {
		h.logger.Error("Hub", "Failed to encode frame", map[string]interface{}{"event": event, "error": err.Error()})
		return
	}

	h.deliverLocal(userID, data)
	h.publishCluster(userID, data)
}

func (h *Hub) deliverLocal(userID uuid.UUID, data []byte) {
	var slow []*Client

	h.mu.RLock()
	for client := range h.clients[userID] {
		if !client.enqueue(data) {
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.logger.Warn("Hub", "Send buffer full, dropping connection", client.fields(nil))
		h.Unregister(client)
	}
}

type clusterEnvelope struct {
	Origin       string          `json:"origin"`
	TargetUserID string          `json:"target_user_id"`
	Message      json.RawMessage `json:"message"`
}

func (h *Hub) publishCluster(userID uuid.UUID, data []byte) {
	if h.rdb == nil {
		return
	}
	payload, err := json.Marshal(clusterEnvelope{
		Origin:       h.instanceID,
		TargetUserID: userID.String(),
		Message:      data,
	})
	if err != nil {
		return
	}
	if err := h.rdb.Publish(context.Background(), clusterChannel, payload).Err(); err != nil {
		h.logger.Warn("Hub", "Redis publish failed", map[string]interface{}{"error": err.Error()})
	}
}

// All instances subscribe to one channel and keep only the frames for users
// connected locally. Frames this instance published itself are skipped.
func (h *Hub) subscribeToRedis(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, clusterChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.relay([]byte(msg.Payload))
		}
	}
}

func (h *Hub) relay(raw []byte) {
	var env clusterEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		h.logger.Warn("Hub", "Redis msg parse error", map[string]interface{}{"error": err.Error()})
		return
	}
	if env.Origin == h.instanceID {
		return
	}
	uid, err := uuid.Parse(env.TargetUserID)
	if err != nil {
		return
	}
	h.deliverLocal(uid, env.Message)
}

func (h *Hub) handleInbound(client *Client, raw []byte) {
	msg, err := push.Decode(raw)
	if err != nil {
		client.reply(push.EventError, push.Error{Message: "malformed frame"})
		return
	}
	if h.handler == nil {
		return
	}

	replies, err := h.handler.HandleInbound(context.Background(), client.UserID, msg)
	if err != nil {
		h.logger.Warn("Hub", "Inbound frame rejected", client.fields(map[string]interface{}{
			"event": msg.Event,
			"error": err.Error(),
		}))
		client.reply(push.EventError, push.Error{Message: err.Error()})
		return
	}
	for _, r := range replies {
		if data, err := r.Encode(); err == nil {
			client.enqueue(data)
		}
	}
}
