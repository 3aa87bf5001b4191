package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"voice2note-be/internal/entity"
	"voice2note-be/internal/pkg/logger"
	"voice2note-be/internal/tenant"

	"github.com/redis/go-redis/v9"
)

const clusterChannel = "note_status_events"

// StatusUpdate is pushed to every connection of the tenant that owns the note.
type StatusUpdate struct {
	AudioKey   string            `json:"audio_key"`
	Status     entity.NoteStatus `json:"status"`
	StageError string            `json:"stage_error,omitempty"`
	At         time.Time         `json:"at"`
}

type envelope struct {
	Type string       `json:"type"`
	Data StatusUpdate `json:"data"`
}

type clusterMessage struct {
	Origin string          `json:"origin"`
	Tenant tenant.ID       `json:"tenant"`
	Frame  json.RawMessage `json:"frame"`
}

type Hub struct {
	// Registered connections per tenant (one tenant may have many tabs and devices)
	clients map[tenant.ID]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client

	// Closed when Run returns so late register and unregister calls never block.
	done chan struct{}

	mu sync.RWMutex

	// Redis connection for cross-instance fan-out, nil for single instance
	rdb    *redis.Client
	origin string

	logger logger.ILogger
}

func NewHub(rdb *redis.Client, origin string, log logger.ILogger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[tenant.ID]map[*Client]struct{}),
		rdb:        rdb,
		origin:     origin,
		logger:     log,
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	if h.rdb != nil {
		go h.subscribeToRedis(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.Tenant] == nil {
				h.clients[client.Tenant] = make(map[*Client]struct{})
			}
			h.clients[client.Tenant][client] = struct{}{}
			h.mu.Unlock()
			h.logger.Info("Hub", "Client registered", map[string]interface{}{"tenant": client.Tenant.String()})

		case client := <-h.unregister:
			h.remove(client)
		}
	}
}

// Register adds a client; it reports false once the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client. It returns immediately once the hub has stopped,
// because closeAll already released every connection.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.clients[client.Tenant]
	if !ok {
		return
	}
	if _, ok := set[client]; !ok {
		return
	}
	delete(set, client)
	close(client.Send)
	if len(set) == 0 {
		delete(h.clients, client.Tenant)
		h.logger.Info("Hub", "Tenant has no more connections", map[string]interface{}{"tenant": client.Tenant.String()})
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, set := range h.clients {
		for c := range set {
			close(c.Send)
		}
		delete(h.clients, id)
	}
}

// deliver writes a frame to the tenant's local connections. Slow consumers are dropped.
func (h *Hub) deliver(id tenant.ID, frame []byte) {
	var slow []*Client

	h.mu.RLock()
	for client := range h.clients[id] {
		select {
		case client.Send <- frame:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("Hub", "Client send buffer full, dropping connection", map[string]interface{}{"tenant": id.String()})
		h.remove(c)
	}
}

// NotifyStatus pushes a pipeline status change to the tenant's connections on every
// instance.
func (h *Hub) NotifyStatus(ctx context.Context, id tenant.ID, update StatusUpdate) {
	if update.At.IsZero() {
		update.At = time.Now().UTC()
	}
	frame, err := json.Marshal(envelope{Type: "note_status", Data: update})
	if err != nil {
		return
	}

	h.deliver(id, frame)

	if h.rdb == nil {
		return
	}
	payload, err := json.Marshal(clusterMessage{Origin: h.origin, Tenant: id, Frame: frame})
	if err != nil {
		return
	}
	if err := h.rdb.Publish(ctx, clusterChannel, payload).Err(); err != nil {
		h.logger.Warn("Hub", "Redis publish failed", map[string]interface{}{"error": err.Error()})
	}
}

// NoteStatusChanged lets the hub serve as the pipeline's status notifier.
func (h *Hub) NoteStatusChanged(ctx context.Context, id tenant.ID, audioKey string, status entity.NoteStatus, stageErr string) {
	h.NotifyStatus(ctx, id, StatusUpdate{AudioKey: audioKey, Status: status, StageError: stageErr})
}

func (h *Hub) subscribeToRedis(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, clusterChannel)
	defer pubsub.Close()

	messages := pubsub.Channel()
	for {
		var msg *redis.Message
		select {
		case <-ctx.Done():
			return
		case next, ok := <-messages:
			if !ok {
				return
			}
			msg = next
		}

		var m clusterMessage
		if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
			h.logger.Warn("Hub", "Redis message parse error", map[string]interface{}{"error": err.Error()})
			continue
		}
		// Own messages were already delivered locally.
		if m.Origin == h.origin || !m.Tenant.Valid() {
			continue
		}
		h.deliver(m.Tenant, m.Frame)
	}
}

// Connections reports the number of local connections of a tenant.
func (h *Hub) Connections(id tenant.ID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[id])
}
