// Parley - Realtime Chat and Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package websocket

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/tomtom215/parley/internal/directory"
	"github.com/tomtom215/parley/internal/logging"
)

const (
	writeWait             = 10 * time.Second
	pongWait              = 60 * time.Second
	pingPeriod            = (pongWait * 9) / 10
	defaultMaxMessageSize = 512 * 1024 // 512 KB
	defaultSendBuffer     = 256
)

// clientIDCounter gives clients monotonically increasing ids so broadcasts
// iterate members in a stable order.
var clientIDCounter atomic.Uint64

// Client is one authenticated /chat connection.
type Client struct {
	id     uint64
	connID string
	user   *directory.User
	conn   *websocket.Conn
	send   chan []byte

	limiter *rate.Limiter

	// rooms is guarded by the hub lock.
	rooms map[string]struct{}
}

// NewClient creates a client for an upgraded connection. conn may be nil in
// tests that only exercise the hub.
func NewClient(conn *websocket.Conn, user *directory.User, sendBuffer int, limiter *rate.Limiter) *Client {
	if sendBuffer < 1 {
		sendBuffer = defaultSendBuffer
	}
	return &Client{
		id:      clientIDCounter.Add(1),
		connID:  uuid.NewString(),
		user:    user,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		limiter: limiter,
		rooms:   make(map[string]struct{}),
	}
}

// ID returns the client's ordering id.
func (c *Client) ID() uint64 {
	return c.id
}

// ConnectionID returns the connection's unique id, used in the presence
// registry and in logs.
func (c *Client) ConnectionID() string {
	return c.connID
}

// UserID returns the authenticated user's id.
func (c *Client) UserID() string {
	return c.user.ID
}

// User returns the authenticated user.
func (c *Client) User() *directory.User {
	return c.user
}

// allow reports whether another inbound event fits the rate limit.
func (c *Client) allow() bool {
	return c.limiter == nil || c.limiter.Allow()
}

// readPump reads frames until the connection fails and hands each one to
// dispatch in arrival order.
func (c *Client) readPump(maxMessageSize int64, dispatch func(raw []byte)) {
	if maxMessageSize <= 0 {
		maxMessageSize = defaultMaxMessageSize
	}
	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logging.Warn().Err(err).Str("connection_id", c.connID).Msg("unexpected websocket close error")
			}
			return
		}
		dispatch(raw)
	}
}

// writePump writes queued frames and keeps the connection alive with pings.
// It returns when the hub closes the send channel or a write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				// The hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				logging.Debug().Err(err).Str("connection_id", c.connID).Msg("failed to write frame")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
