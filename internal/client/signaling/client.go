package signaling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/huddlekit/huddle/internal/api"
	"github.com/huddlekit/huddle/internal/config"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// ErrKicked is returned by Run when the relay force-disconnected us; the
// client does not reconnect after it.
var ErrKicked = errors.New("kicked from room")

// Client maintains the duplex stream to the signaling relay for one room.
// It reconnects with capped exponential backoff, replaying the join, so a
// relay restart does not kill the session. Loss of this layer must never
// take down unrelated subsystems; Run simply returns and the caller decides.
type Client struct {
	serverURL   string
	roomID      string
	displayName string
	cfg         config.ClientConfig

	incoming chan api.Envelope
	outgoing chan api.Envelope
	done     chan struct{}

	mu       sync.Mutex
	assigned string
}

func NewClient(serverURL, roomID, displayName string, cfg config.ClientConfig) *Client {
	return &Client{
		serverURL:   serverURL,
		roomID:      roomID,
		displayName: displayName,
		cfg:         cfg,
		incoming:    make(chan api.Envelope, 16),
		outgoing:    make(chan api.Envelope, 16),
		done:        make(chan struct{}),
	}
}

// Incoming delivers every envelope from the relay in arrival order. The
// channel closes when Run returns.
func (c *Client) Incoming() <-chan api.Envelope {
	return c.incoming
}

// Send queues an envelope for the relay. Safe from any goroutine; once Run
// has exited the envelope is dropped instead of blocking the caller, so a
// late quality tick or link event cannot wedge its goroutine.
func (c *Client) Send(env api.Envelope) {
	select {
	case c.outgoing <- env:
	case <-c.done:
	}
}

// ParticipantID returns the server-assigned id, empty until the first
// assign-id arrives.
func (c *Client) ParticipantID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.assigned
}

// Run dials the relay and pumps messages until ctx is cancelled, the
// attempt ceiling is hit, or the relay kicks us.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.incoming)
	defer close(c.done)

	attempts := 0
	for {
		sessionStart := time.Now()
		err := c.runSession(ctx)

		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, ErrKicked) {
			return err
		}

		// a session that held for a while earns a fresh attempt budget
		if time.Since(sessionStart) > 4*c.cfg.ReconnectBaseDelay() {
			attempts = 0
		}

		attempts++
		if attempts > c.cfg.ReconnectMaxAttempts {
			return fmt.Errorf("relay unavailable after %d attempts: %w", attempts-1, err)
		}

		delay := c.cfg.ReconnectBaseDelay() << (attempts - 1)
		slog.Warn("signaling stream lost, reconnecting", "attempt", attempts, "delay", delay, "error", err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Client) runSession(ctx context.Context) error {
	url := fmt.Sprintf("%s/ws/rooms/%s", c.serverURL, c.roomID)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	if err := conn.WriteJSON(api.Envelope{Type: api.MessageJoin, Name: c.displayName}); err != nil {
		return fmt.Errorf("failed to send join: %w", err)
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	writeErr := make(chan error, 1)
	go c.writePump(sessionCtx, conn, writeErr)

	for {
		var env api.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			select {
			case werr := <-writeErr:
				return werr
			default:
			}
			return err
		}

		switch env.Type {
		case api.MessagePing:
			c.outgoing <- api.Envelope{Type: api.MessagePong}
			continue
		case api.MessageAssignID:
			if env.AssignID != nil {
				c.mu.Lock()
				c.assigned = env.AssignID.ID
				c.mu.Unlock()
			}
		case api.MessageKicked:
			reason := ""
			if env.Kicked != nil {
				reason = env.Kicked.Reason
			}
			c.deliver(ctx, env)
			return fmt.Errorf("%w: %s", ErrKicked, reason)
		}

		c.deliver(ctx, env)
	}
}

func (c *Client) deliver(ctx context.Context, env api.Envelope) {
	select {
	case c.incoming <- env:
	case <-ctx.Done():
	}
}

func (c *Client) writePump(ctx context.Context, conn *websocket.Conn, writeErr chan<- error) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case env := <-c.outgoing:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(env); err != nil {
				writeErr <- err
				_ = conn.Close()
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				writeErr <- err
				_ = conn.Close()
				return
			}

		case <-ctx.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
