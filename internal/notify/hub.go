// Package notify pushes job board updates to websocket clients.
package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jobboard/server/internal/events"
	"github.com/jobboard/server/internal/metrics"
)

const (
	MessageTypeUpdate = "update"

	periodicMessage = "New job posted!"
)

// Message is the only frame shape clients receive.
type Message struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Hub owns the set of connected clients and the single broadcaster that
// sends the periodic update to all of them.
type Hub struct {
	interval time.Duration
	logger   zerolog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

func NewHub(interval time.Duration, logger zerolog.Logger) *Hub {
	return &Hub{
		interval: interval,
		logger:   logger.With().Str("component", "notify").Logger(),
		clients:  make(map[*client]struct{}),
	}
}

// Run broadcasts every interval until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.Broadcast(Message{Type: MessageTypeUpdate, Message: periodicMessage}, "ticker")
		case <-ctx.Done():
			h.Close()
			return nil
		}
	}
}

// Publish relays job postings to clients. Other event types are ignored.
func (h *Hub) Publish(_ context.Context, event events.Event) error {
	if event.Type != events.JobPosted {
		return nil
	}
	msg := periodicMessage
	if event.Title != "" {
		msg = "New job posted: " + event.Title
	}
	h.Broadcast(Message{Type: MessageTypeUpdate, Message: msg}, "event")
	return nil
}

// Broadcast queues msg for every client. Clients whose buffer is full are
// disconnected rather than blocking the others.
func (h *Hub) Broadcast(msg Message, source string) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Msg("encode broadcast")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	metrics.NotifyBroadcasts.WithLabelValues(source).Inc()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			metrics.NotifyDropped.Inc()
			h.logger.Warn().Str("client", c.id).Msg("client too slow, disconnecting")
			h.removeLocked(c)
		}
	}
}

// Count reports the number of registered clients.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close deregisters every client; their writers send a close frame and exit.
// Later connections are refused.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	metrics.NotifyConnections.Inc()
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

// removeLocked closes c.send exactly once: a client is only closed while it
// is still in the map.
func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	metrics.NotifyConnections.Dec()
}
