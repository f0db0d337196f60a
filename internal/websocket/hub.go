// Parley - Realtime Chat and Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/tomtom215/parley/internal/logging"
	"github.com/tomtom215/parley/internal/metrics"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled is the normal graceful shutdown path.
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline may indicate a hung operation during shutdown.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Hub tracks the connections of this node and their room memberships.
//
// Broadcasts run while holding the hub lock, so the events of one room
// reach every member in the order they were broadcast.
type Hub struct {
	mu      sync.Mutex
	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		rooms:   make(map[string]map[*Client]struct{}),
	}
}

// Register adds c to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnections.Inc()
	logging.Debug().Str("user_id", c.UserID()).Int("total_clients", total).Msg("websocket client connected")
}

// Unregister removes c from the hub and every room and closes its send
// channel. It reports false if c was already gone.
func (h *Hub) Unregister(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.removeLocked(c)
}

func (h *Hub) removeLocked(c *Client) bool {
	if _, ok := h.clients[c]; !ok {
		return false
	}
	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
	delete(h.clients, c)
	close(c.send)
	metrics.WSConnections.Dec()
	return true
}

// Join adds c to room. It reports false if c was already a member or has
// been unregistered.
func (h *Hub) Join(c *Client, room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return false
	}
	if _, ok := c.rooms[room]; ok {
		return false
	}
	members := h.rooms[room]
	if members == nil {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
	return true
}

// Leave removes c from room. It reports false if c was not a member.
func (h *Hub) Leave(c *Client, room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := c.rooms[room]; !ok {
		return false
	}
	h.leaveLocked(c, room)
	return true
}

func (h *Hub) leaveLocked(c *Client, room string) {
	delete(c.rooms, room)
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// InRoom reports whether c is a member of room.
func (h *Hub) InRoom(c *Client, room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := c.rooms[room]
	return ok
}

// BroadcastRoom sends an event to every member of room except skip.
func (h *Hub) BroadcastRoom(room string, event string, data any, skip *Client) {
	frame, err := encodeFrame(event, data)
	if err != nil {
		logging.Error().Err(err).Str("event", event).Msg("failed to encode broadcast")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.deliverLocked(sortedClients(h.rooms[room]), event, frame, skip)
}

// BroadcastAll sends an event to every connection except skip.
func (h *Hub) BroadcastAll(event string, data any, skip *Client) {
	frame, err := encodeFrame(event, data)
	if err != nil {
		logging.Error().Err(err).Str("event", event).Msg("failed to encode broadcast")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.deliverLocked(sortedClients(h.clients), event, frame, skip)
}

// Send delivers an event to c alone.
func (h *Hub) Send(c *Client, event string, data any) {
	frame, err := encodeFrame(event, data)
	if err != nil {
		logging.Error().Err(err).Str("event", event).Msg("failed to encode event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	h.deliverLocked([]*Client{c}, event, frame, nil)
}

// deliverLocked queues frame on each target. Targets whose buffer is full
// are dropped; their write pump then closes the connection.
func (h *Hub) deliverLocked(targets []*Client, event string, frame []byte, skip *Client) {
	var slow []*Client
	for _, c := range targets {
		if c == skip {
			continue
		}
		select {
		case c.send <- frame:
			metrics.WSEventsSent.WithLabelValues(event).Inc()
		default:
			slow = append(slow, c)
		}
	}

	for _, c := range slow {
		if h.removeLocked(c) {
			metrics.WSSlowClientDrops.Inc()
			logging.Warn().Str("user_id", c.UserID()).Str("event", event).Msg("send buffer full, dropping slow client")
		}
	}
}

// sortedClients orders a client set by id.
func sortedClients(set map[*Client]struct{}) []*Client {
	clients := make([]*Client, 0, len(set))
	for c := range set {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })
	return clients
}

// ClientCount returns the number of connections on this node.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// RoomSize returns the number of local members of room.
func (h *Hub) RoomSize(room string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[room])
}

// Serve blocks until ctx is cancelled, then closes every connection.
// It implements suture.Service.
func (h *Hub) Serve(ctx context.Context) error {
	<-ctx.Done()

	clientCount := h.closeAllClients()
	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(getShutdownReason(ctx))).
		Int("clients_closed", clientCount).
		Msg("websocket hub stopped")
	return ctx.Err()
}

// String names the service in supervisor logs.
func (h *Hub) String() string {
	return "websocket-hub"
}

func getShutdownReason(ctx context.Context) ShutdownReason {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return ShutdownReasonContextDeadline
	default:
		return ShutdownReasonContextCanceled
	}
}

// closeAllClients closes every connection in id order and returns how many
// were open.
func (h *Hub) closeAllClients() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := sortedClients(h.clients)
	for _, c := range clients {
		h.removeLocked(c)
	}
	return len(clients)
}
