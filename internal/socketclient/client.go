// Package socketclient is a resilient client-side connection to the
// chat platform's realtime bus: reconnect with backoff, room re-join,
// pending-message replay, and idempotent delivery.
package socketclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// State is the connection lifecycle state, per spec.md §4.4.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateShuttingDown State = "shutting_down"
)

// Message is the chat payload shape of spec.md §6.
type Message struct {
	ID        string        `json:"id"`
	CreatedAt string        `json:"created_at"`
	Sender    interface{}   `json:"sender"`
	Content   string        `json:"content"`
	Avatar    string        `json:"avatar,omitempty"`
	RoomID    string        `json:"room_id"`
	Mentions  []interface{} `json:"mentions"`
}

const (
	heartbeatInterval  = 30 * time.Second
	maxReconnectTries  = 10
	reconnectBaseDelay = 1 * time.Second
	reconnectFactor    = 1.5
	reconnectCapDelay  = 30 * time.Second

	retryAttempts = 3
	retryDelay    = 1 * time.Second
)

// ErrConnection is returned when a send cannot reach the transport and
// has been queued for later replay instead.
var ErrConnection = fmt.Errorf("socketclient: not connected, message queued for retry")

// Client is a long-lived, reconnecting websocket client.
type Client struct {
	url    string
	userID string
	logger *slog.Logger

	mu            sync.Mutex
	conn          *websocket.Conn
	state         State
	joinedRooms   map[string]bool
	pending       []Message
	sentIDs       map[string]bool
	shuttingDown  bool
	heartbeatStop chan struct{}
}

// New builds a Client bound to a realtime bus URL and agent user id.
func New(url, userID string) *Client {
	return &Client{
		url:         url,
		userID:      userID,
		logger:      slog.Default().With("component", "socketclient"),
		state:       StateDisconnected,
		joinedRooms: make(map[string]bool),
		sentIDs:     make(map[string]bool),
	}
}

// Connect dials the realtime bus and starts the heartbeat loop.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.state = StateConnected
	stop := make(chan struct{})
	c.heartbeatStop = stop
	c.mu.Unlock()

	if err := c.authenticate(ctx); err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}

	go c.heartbeatLoop(stop)
	return nil
}

func (c *Client) authenticate(ctx context.Context) error {
	return c.emit(ctx, "authenticate", map[string]interface{}{
		"user": map[string]string{"id": c.userID},
	})
}

func (c *Client) heartbeatLoop(stop chan struct{}) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := c.emit(ctx, "ping", map[string]interface{}{"timestamp": time.Now().Unix()})
			cancel()
			if err != nil {
				c.logger.Warn("heartbeat ping failed, triggering reconnect", "error", err)
				go c.reconnect(context.Background())
				return
			}
		}
	}
}

// checkConnection is the pre-send health check of spec.md §4.4: a
// lightweight ping that must succeed before a send is attempted.
func (c *Client) checkConnection(ctx context.Context) bool {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	if state != StateConnected {
		return false
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return c.emit(pingCtx, "ping", map[string]interface{}{"timestamp": time.Now().Unix()}) == nil
}

func (c *Client) emit(ctx context.Context, event string, payload interface{}) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}

	envelope := map[string]interface{}{"event": event, "data": payload}
	data, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// JoinRoom adds a room to the tracked set and emits join_room.
func (c *Client) JoinRoom(ctx context.Context, roomID string) error {
	c.mu.Lock()
	c.joinedRooms[roomID] = true
	c.mu.Unlock()
	return c.withRetryAndReconnect(ctx, func(ctx context.Context) error {
		return c.emit(ctx, "join_room", roomID)
	})
}

// SendMessage sends a chat message, idempotent by msg.ID. If the
// transport is unavailable the message is queued for replay and
// ErrConnection is returned so the caller can retry, per spec.md §4.4.
func (c *Client) SendMessage(ctx context.Context, msg Message) error {
	c.mu.Lock()
	if c.sentIDs[msg.ID] {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if !c.checkConnection(ctx) {
		c.enqueuePending(msg)
		return ErrConnection
	}

	err := c.withRetryAndReconnect(ctx, func(ctx context.Context) error {
		return c.emit(ctx, "message", msg)
	})
	if err != nil {
		c.enqueuePending(msg)
		return ErrConnection
	}

	c.mu.Lock()
	c.sentIDs[msg.ID] = true
	c.mu.Unlock()
	return nil
}

func (c *Client) enqueuePending(msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.pending {
		if m.ID == msg.ID {
			return
		}
	}
	c.pending = append(c.pending, msg)
}

// withRetryAndReconnect implements the retry decorator of spec.md
// §4.4: up to retryAttempts attempts, retryDelay between them, each
// first checking the connection is healthy.
func (c *Client) withRetryAndReconnect(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if !c.checkConnection(ctx) {
			lastErr = fmt.Errorf("connection unhealthy")
		} else if err := fn(ctx); err == nil {
			return nil
		} else {
			lastErr = err
		}

		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

// reconnect runs the exponential-backoff reconnect loop of spec.md
// §4.4: up to maxReconnectTries attempts, ×1.5 backoff capped at 30s.
// On success, every previously-joined room is re-joined before the
// pending queue is flushed.
func (c *Client) reconnect(ctx context.Context) {
	c.mu.Lock()
	if c.shuttingDown {
		c.mu.Unlock()
		return
	}
	c.state = StateReconnecting
	c.mu.Unlock()

	delay := reconnectBaseDelay
	for attempt := 0; attempt < maxReconnectTries; attempt++ {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}

		if err := c.Connect(ctx); err == nil {
			c.rejoinRooms(ctx)
			c.flushPending(ctx)
			return
		}

		delay = time.Duration(float64(delay) * reconnectFactor)
		if delay > reconnectCapDelay {
			delay = reconnectCapDelay
		}
	}

	c.logger.Error("reconnect attempts exhausted", "max_tries", maxReconnectTries)
}

// rejoinRooms re-joins every tracked room after a reconnect. §4.4 models
// joinedRooms as a set, so iteration order here is intentionally
// unspecified — only membership, not order, is guaranteed.
func (c *Client) rejoinRooms(ctx context.Context) {
	c.mu.Lock()
	rooms := make([]string, 0, len(c.joinedRooms))
	for r := range c.joinedRooms {
		rooms = append(rooms, r)
	}
	c.mu.Unlock()

	for _, room := range rooms {
		if err := c.emit(ctx, "join_room", room); err != nil {
			c.logger.Warn("failed to rejoin room after reconnect", "room", room, "error", err)
		}
	}
}

func (c *Client) flushPending(ctx context.Context) {
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, msg := range pending {
		if err := c.SendMessage(ctx, msg); err != nil {
			c.logger.Warn("failed to flush pending message", "message_id", msg.ID, "error", err)
		}
	}
}

// Disconnect performs a graceful shutdown: sets the shutdown flag,
// stops the heartbeat loop, clears sent-ids, and closes the transport.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	c.shuttingDown = true
	c.state = StateShuttingDown
	if c.heartbeatStop != nil {
		close(c.heartbeatStop)
		c.heartbeatStop = nil
	}
	c.sentIDs = make(map[string]bool)
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close(websocket.StatusNormalClosure, "shutting down")
}
