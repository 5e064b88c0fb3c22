package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/switchbridge/internal/accessory"
	"github.com/nerrad567/switchbridge/internal/infrastructure/config"
	"github.com/nerrad567/switchbridge/internal/infrastructure/logging"
)

// WebSocket message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

// ChannelCharacteristicChanged carries every characteristic change.
const ChannelCharacteristicChanged = "accessory.characteristic_changed"

// wsSendBufferSize is the per-client outbound queue length.
const wsSendBufferSize = 256

// WSMessage is the envelope for every frame in either direction.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload for subscribe/unsubscribe messages.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// CharacteristicEvent is the payload broadcast on ChannelCharacteristicChanged.
type CharacteristicEvent struct {
	Accessory      string `json:"accessory"`
	Characteristic string `json:"characteristic"`
	Value          bool   `json:"value"`
	Origin         string `json:"origin"`
}

// Hub fans characteristic changes out to WebSocket clients.
// It implements accessory.Notifier.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*WSClient]struct{}
}

var _ accessory.Notifier = (*Hub)(nil)

// CORS middleware already decides which origins may call the API.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(_ *http.Request) bool { return true },
}

// NewHub creates an empty hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is done and then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*WSClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		close(c.send)
		if c.conn != nil {
			c.conn.Close()
		}
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *WSClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug("websocket client connected", "clients", n)
}

// Unregister removes a client from the hub. The send queue is closed by
// whichever caller actually removed the client, so it is closed once.
func (h *Hub) Unregister(c *WSClient) {
	h.mu.Lock()
	_, present := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if !present {
		return
	}
	close(c.send)
	h.logger.Debug("websocket client disconnected", "clients", n)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CharacteristicChanged broadcasts an accessory change. It never blocks.
func (h *Hub) CharacteristicChanged(change accessory.Change) {
	h.Broadcast(ChannelCharacteristicChanged, CharacteristicEvent{
		Accessory:      change.Accessory,
		Characteristic: string(change.Characteristic),
		Value:          change.Value,
		Origin:         string(change.Origin),
	})
}

// Broadcast queues an event for every client subscribed to channel.
// Clients whose queue is full miss the event.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: wsTimestamp(),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("failed to marshal broadcast", "channel", channel, "error", err)
		return
	}

	// Client locks are taken only after the hub lock is released.
	h.mu.RLock()
	targets := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if c.subscribed(channel) {
			c.enqueue(data)
			delivered++
		}
	}
	if delivered > 0 {
		h.logger.Debug("broadcast sent", "channel", channel, "recipients", delivered)
	}
}

func wsTimestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// handleWebSocket upgrades the connection. When auth is enabled the caller
// presents a bearer token or a ticket from POST /auth/ws-ticket.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeWebSocket(r) {
		writeUnauthorized(w, "valid bearer token or ticket required")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := newWSClient(s.hub, conn, s.wsCfg, s.snapshot)
	s.hub.Register(client)

	go client.writePump()
	go client.readPump()
}

// snapshot describes every accessory with its current values. It is sent
// with the subscribe response so a client needs no separate REST call.
func (s *Server) snapshot() []accessoryResponse {
	list := s.registry.List()
	out := make([]accessoryResponse, 0, len(list))
	for _, a := range list {
		out = append(out, describeAccessory(a, true))
	}
	return out
}
