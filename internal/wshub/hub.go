package wshub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// Envelope is the named-event frame used in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Encode marshals one outbound frame.
func Encode(event string, data any) ([]byte, error) {
	if data == nil {
		data = struct{}{}
	}
	b, err := json.Marshal(outbound{Event: event, Data: data})
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", event, err)
	}
	return b, nil
}

// Client represents a single WebSocket connection in the hub.
type Client struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte
}

// WritePump reads from the Send channel and writes to the WebSocket connection.
func (c *Client) WritePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.Send:
			if !ok {
				return
			}
			if err := c.Conn.Write(ctx, websocket.MessageText, msg); err != nil {
				return
			}
		}
	}
}

// Hub tracks live connections and the named channels they joined.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*Client
	channels map[string]map[string]struct{}
	log      *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:  make(map[string]*Client),
		channels: make(map[string]map[string]struct{}),
		log:      logger,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ID] = c
}

// Unregister removes a client from the hub and every channel, then closes its Send channel.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[id]
	if !ok {
		return
	}
	close(c.Send)
	delete(h.clients, id)
	for name, members := range h.channels {
		delete(members, id)
		if len(members) == 0 {
			delete(h.channels, name)
		}
	}
}

// IsLive reports whether id still has a registered connection.
func (h *Hub) IsLive(id string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[id]
	return ok
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Send delivers one event to id. Unknown ids and full buffers are dropped.
func (h *Hub) Send(id, event string, data any) bool {
	msg, err := Encode(event, data)
	if err != nil {
		h.log.Error("marshal error", zap.Error(err))
		return false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[id]
	if !ok {
		return false
	}
	return h.push(c, event, msg)
}

// Broadcast sends to every registered connection. Non-blocking.
func (h *Hub) Broadcast(event string, data any) {
	msg, err := Encode(event, data)
	if err != nil {
		h.log.Error("marshal error", zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		h.push(c, event, msg)
	}
}

// Join adds id to a named channel. Unknown ids are ignored.
func (h *Hub) Join(channel, id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[id]; !ok {
		return
	}
	members := h.channels[channel]
	if members == nil {
		members = make(map[string]struct{})
		h.channels[channel] = members
	}
	members[id] = struct{}{}
}

func (h *Hub) Leave(channel, id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members := h.channels[channel]
	delete(members, id)
	if len(members) == 0 {
		delete(h.channels, channel)
	}
}

// BroadcastChannel sends to every member of channel. Non-blocking.
func (h *Hub) BroadcastChannel(channel, event string, data any) {
	msg, err := Encode(event, data)
	if err != nil {
		h.log.Error("marshal error", zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id := range h.channels[channel] {
		if c, ok := h.clients[id]; ok {
			h.push(c, event, msg)
		}
	}
}

func (h *Hub) push(c *Client, event string, msg []byte) bool {
	select {
	case c.Send <- msg:
		return true
	default:
		h.log.Warn("dropping message, send buffer full",
			zap.String("conn", c.ID), zap.String("event", event))
		return false
	}
}
