package realtime

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-sync/internal/platform/logger"
)

const (
	DefaultHeartbeat = 15 * time.Second
	outboundBuffer   = 32
)

type Client struct {
	ID       uuid.UUID
	UserID   uuid.UUID
	Channels map[string]bool
	Outbound chan Message
	done     chan struct{}
	once     sync.Once
	log      *logger.Logger
}

type Hub struct {
	mu            sync.RWMutex
	log           *logger.Logger
	heartbeat     time.Duration
	subscriptions map[string]map[*Client]bool

	// OnDrop, when set, is called for each message a full client buffer misses.
	OnDrop func(Message)
}

// NewHub builds a hub; heartbeat <= 0 uses DefaultHeartbeat.
func NewHub(log *logger.Logger, heartbeat time.Duration) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	return &Hub{
		log:           log.With("component", "RealtimeHub"),
		heartbeat:     heartbeat,
		subscriptions: make(map[string]map[*Client]bool),
	}
}

func (h *Hub) NewClient(userID uuid.UUID) *Client {
	id := uuid.New()
	return &Client{
		ID:       id,
		UserID:   userID,
		Channels: make(map[string]bool),
		Outbound: make(chan Message, outboundBuffer),
		done:     make(chan struct{}),
		log:      h.log.With("client_id", id.String(), "user_id", userID.String()),
	}
}

func (h *Hub) AddChannel(client *Client, channel string) {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	client.Channels[channel] = true
	clients, ok := h.subscriptions[channel]
	if !ok {
		clients = make(map[*Client]bool)
		h.subscriptions[channel] = clients
	}
	clients[client] = true
	h.log.Debug("stream subscribed", "client_id", client.ID, "channel", channel)
}

func (h *Hub) RemoveChannel(client *Client, channel string) {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.detach(client, channel)
}

func (h *Hub) RemoveClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range client.Channels {
		h.detach(client, ch)
	}
}

// detach requires h.mu.
func (h *Hub) detach(client *Client, channel string) {
	delete(client.Channels, channel)
	if subs, ok := h.subscriptions[channel]; ok {
		delete(subs, client)
		if len(subs) == 0 {
			delete(h.subscriptions, channel)
		}
	}
}

// Subscribers reports how many clients are on a channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscriptions[channel])
}

// Broadcast delivers msg to every subscriber of its channel. A client whose
// buffer is full misses the message; clients recover by refetching on reconnect.
func (h *Hub) Broadcast(msg Message) {
	if msg.Channel == "" {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.subscriptions[msg.Channel] {
		select {
		case c.Outbound <- msg:
		default:
			h.log.Warn("dropping realtime message; outbound buffer full", "client_id", c.ID, "event_id", msg.Envelope.ID)
			if h.OnDrop != nil {
				h.OnDrop(msg)
			}
		}
	}
}

// ServeHTTP streams the client's messages until the request ends or the client
// is closed. Each message is one "event: <type>" frame whose data is the
// envelope JSON.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request, client *Client) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			client.log.Debug("stream context done", "error", ctx.Err())
			return
		case <-client.done:
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, "event: heartbeat\ndata: {}\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case msg, ok := <-client.Outbound:
			if !ok {
				return
			}
			raw, err := json.Marshal(msg.Envelope)
			if err != nil {
				client.log.Warn("failed to marshal envelope", "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", msg.Envelope.ID, msg.Envelope.Type, raw); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// CloseClient unsubscribes the client and ends its stream. Safe to call twice.
func (h *Hub) CloseClient(client *Client) {
	client.once.Do(func() {
		close(client.done)
		h.RemoveClient(client)
		close(client.Outbound)
	})
}
