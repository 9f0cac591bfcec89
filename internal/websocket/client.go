// CineScope Edge - Offline Caching and Sync Gateway for CineScope+
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinescope

package websocket

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/cinescope/internal/logging"
	"github.com/tomtom215/cinescope/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024 // 512 KB
)

// clientIDCounter gives clients monotonically increasing IDs so broadcasts
// visit them in a stable order.
var clientIDCounter atomic.Uint64

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	id   uint64
	hub  *Hub
	conn *websocket.Conn
	send chan Message

	// ctx carries the logger of the upgrade request. It outlives that
	// request, which ends when the connection is hijacked.
	ctx context.Context
}

// NewClient creates a client for conn. ctx supplies request-scoped log
// fields; its cancellation is ignored.
func NewClient(ctx context.Context, hub *Hub, conn *websocket.Conn) *Client {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Client{
		id:   clientIDCounter.Add(1),
		hub:  hub,
		conn: conn,
		send: make(chan Message, 256),
		ctx:  context.WithoutCancel(ctx),
	}
}

// ID returns the client's identifier.
func (c *Client) ID() uint64 {
	return c.id
}

type inbound struct {
	Type string `json:"type"`
}

// readPump reads frames until the connection fails, answering pings and
// handing everything else to the hub's command handler.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister <- c
		_ = c.conn.Close()
	}()

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
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Error().Err(err).Msg("unexpected websocket close error")
			}
			break
		}
		metrics.WSMessagesReceived.Inc()
		c.handle(raw)
	}
}

func (c *Client) handle(raw []byte) {
	var msg inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.reply(Message{Type: MessageTypeError, Data: ErrorData{Error: "malformed message"}})
		return
	}
	if msg.Type == MessageTypePing {
		c.reply(Message{Type: MessageTypePong})
		return
	}

	handler := c.hub.commandHandler()
	if handler == nil {
		c.reply(Message{Type: MessageTypeError, Data: ErrorData{Error: "commands not accepted"}})
		return
	}
	if err := handler(c.ctx, raw); err != nil {
		logging.Ctx(c.ctx).Debug().Err(err).Uint64("client_id", c.id).Str("type", msg.Type).Msg("websocket command rejected")
		c.reply(Message{Type: MessageTypeError, Data: ErrorData{Error: err.Error()}})
	}
}

// reply queues msg for this client only. It is dropped if the buffer is full.
func (c *Client) reply(msg Message) {
	defer func() {
		// send is closed once the hub has dropped this client.
		_ = recover()
	}()
	select {
	case c.send <- msg:
	default:
	}
}

// writePump writes queued messages and pings until the send channel is
// closed or a write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline")
				return
			}

			if !ok {
				if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					logging.Debug().Err(err).Msg("failed to write close message")
				}
				return
			}

			payload, err := json.Marshal(message)
			if err != nil {
				logging.Error().Err(err).Str("message_type", message.Type).Msg("failed to encode websocket message")
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logging.Debug().Err(err).Msg("failed to write websocket message")
				return
			}
			metrics.WSMessagesSent.Inc()

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline for ping")
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Start begins reading and writing for the client.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}
