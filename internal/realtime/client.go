// Package realtime maintains the client's live connection to the push
// service: connect, join the user group, republish typed inbound events, and
// reconnect on a fixed finite schedule after drops.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/duetlog/duet/backend/internal/errors"
	"github.com/duetlog/duet/backend/internal/logging"
)

// ConnectionState describes the client's lifecycle position.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
)

const (
	// dispatchBuffer absorbs inbound bursts between the read loop and the
	// dispatcher. Events are dropped with a warning when it overflows.
	dispatchBuffer = 256

	// subscriberBuffer bounds each typed channel. A subscriber that falls
	// this far behind loses events rather than stalling the dispatcher.
	subscriberBuffer = 32
)

// StatusHandler receives connectivity transitions.
type StatusHandler func(connected bool)

// ClientConfig configures the realtime client.
type ClientConfig struct {
	// URL of the push service endpoint.
	URL string
	// Dialer overrides the default WebSocket dialer. Used by tests.
	Dialer Dialer
	// Backoff overrides DefaultBackoffSchedule.
	Backoff BackoffSchedule
}

// Client is the real-time sync client. All exported methods are safe for
// concurrent use.
type Client struct {
	url     string
	dialer  Dialer
	backoff BackoffSchedule

	mu     sync.Mutex
	state  ConnectionState
	conn   Conn
	userID string
	token  string
	// gen invalidates read loops and reconnect loops from torn-down
	// connections.
	gen int

	handlerMu sync.RWMutex
	handlers  []StatusHandler

	dispatch chan Envelope
	done     chan struct{}
	doneOnce sync.Once

	journalEntries chan json.RawMessage
	posts          chan json.RawMessage
	moodEntries    chan json.RawMessage
	notifications  chan json.RawMessage
}

// NewClient creates a realtime client. The dispatcher goroutine runs until
// Close.
func NewClient(cfg ClientConfig) *Client {
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = NewDialer()
	}
	backoff := cfg.Backoff
	if backoff == nil {
		backoff = DefaultBackoffSchedule
	}

	c := &Client{
		url:            cfg.URL,
		dialer:         dialer,
		backoff:        backoff,
		state:          StateDisconnected,
		dispatch:       make(chan Envelope, dispatchBuffer),
		done:           make(chan struct{}),
		journalEntries: make(chan json.RawMessage, subscriberBuffer),
		posts:          make(chan json.RawMessage, subscriberBuffer),
		moodEntries:    make(chan json.RawMessage, subscriberBuffer),
		notifications:  make(chan json.RawMessage, subscriberBuffer),
	}
	go c.runDispatcher()
	return c
}

// State returns the current lifecycle state.
func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnConnectionStatusChanged registers a handler for connectivity transitions.
// Handlers run synchronously on the goroutine driving the transition.
func (c *Client) OnConnectionStatusChanged(handler StatusHandler) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.handlers = append(c.handlers, handler)
}

// ReceiveJournalEntry delivers journal entries shared with this user.
func (c *Client) ReceiveJournalEntry() <-chan json.RawMessage { return c.journalEntries }

// ReceivePost delivers new posts from followed users.
func (c *Client) ReceivePost() <-chan json.RawMessage { return c.posts }

// ReceiveMoodEntry delivers the partner's mood entries.
func (c *Client) ReceiveMoodEntry() <-chan json.RawMessage { return c.moodEntries }

// ReceiveNotification delivers general notifications.
func (c *Client) ReceiveNotification() <-chan json.RawMessage { return c.notifications }

// Connect tears down any prior connection, dials the push service, and joins
// the user's group. On failure the client is left Disconnected.
func (c *Client) Connect(ctx context.Context, userID, token string) error {
	c.mu.Lock()
	wasConnected := c.teardownLocked()
	c.state = StateConnecting
	c.userID = userID
	c.token = token
	gen := c.gen
	c.mu.Unlock()
	if wasConnected {
		c.emitStatus(false)
	}

	inspectToken(token, userID)

	conn, err := c.dial(ctx, token)
	if err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		c.emitStatus(false)
		return apperrors.Wrap(apperrors.ErrConnectFailed, "failed to connect to push service", err)
	}

	if err := c.joinUserGroup(conn, userID); err != nil {
		conn.Close()
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		c.emitStatus(false)
		return apperrors.Wrap(apperrors.ErrGroupJoinFailed, "failed to join user group", err)
	}

	if !c.install(conn, gen) {
		logging.Debug("connect superseded during handshake", logging.Fields{"user_id": userID})
		return nil
	}
	logging.Info("connected to push service", logging.Fields{"user_id": userID})
	return nil
}

// Disconnect tears down the connection. Safe to call repeatedly; teardown
// errors are logged, never returned.
func (c *Client) Disconnect() {
	c.mu.Lock()
	wasConnected := c.teardownLocked()
	c.state = StateDisconnected
	c.mu.Unlock()

	if wasConnected {
		c.emitStatus(false)
		logging.Info("disconnected from push service", nil)
	}
}

// Close disconnects and stops the dispatcher. The client is unusable after.
func (c *Client) Close() {
	c.Disconnect()
	c.doneOnce.Do(func() { close(c.done) })
}

// BroadcastToPartner sends a payload to the bound user's partner. Best
// effort: a warning and no-op when not connected.
func (c *Client) BroadcastToPartner(message json.RawMessage) error {
	return c.invoke(methodBroadcastToPartner, message)
}

// BroadcastToFollowers sends a payload to the bound user's followers. Best
// effort: a warning and no-op when not connected.
func (c *Client) BroadcastToFollowers(message json.RawMessage) error {
	return c.invoke(methodBroadcastToFollowers, message)
}

// NotifyUser sends a notification payload addressed to a user. Best effort:
// a warning and no-op when not connected.
func (c *Client) NotifyUser(targetUserID string, message json.RawMessage) error {
	return c.invokeArgs(methodNotifyUser, targetUserID, message)
}

func (c *Client) invoke(method string, message json.RawMessage) error {
	c.mu.Lock()
	userID := c.userID
	c.mu.Unlock()
	return c.invokeArgs(method, userID, message)
}

func (c *Client) invokeArgs(method string, args ...interface{}) error {
	c.mu.Lock()
	if c.state != StateConnected || c.conn == nil {
		c.mu.Unlock()
		logging.Warn("dropping push invoke while not connected", logging.Fields{"method": method})
		return nil
	}
	conn := c.conn
	c.mu.Unlock()

	frame := invokeFrame{Method: method, Args: args, Timestamp: time.Now().Unix()}
	if err := conn.WriteJSON(frame); err != nil {
		return apperrors.Wrap(apperrors.ErrTransport,
			fmt.Sprintf("failed to invoke %s", method), err)
	}
	return nil
}

// teardownLocked closes the current connection and bumps the generation so
// its read loop exits quietly. Caller holds c.mu. Reports whether a live
// connection was torn down.
func (c *Client) teardownLocked() bool {
	c.gen++
	if c.conn == nil {
		return false
	}
	if err := c.conn.Close(); err != nil {
		logging.Debug("error closing push connection", logging.Fields{"error": err.Error()})
	}
	c.conn = nil
	return c.state == StateConnected
}

func (c *Client) dial(ctx context.Context, token string) (Conn, error) {
	header := make(http.Header)
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return c.dialer.Dial(ctx, c.url, header)
}

func (c *Client) joinUserGroup(conn Conn, userID string) error {
	frame := invokeFrame{
		Method:    methodJoinUserGroup,
		Args:      []interface{}{userID},
		Timestamp: time.Now().Unix(),
	}
	return conn.WriteJSON(frame)
}

// install publishes a freshly joined connection and starts its read loop.
// gen is the generation the caller observed before handshaking; if a teardown
// or a newer connect bumped it since, the stale conn is closed and not
// installed, so a deliberate Disconnect stays final.
func (c *Client) install(conn Conn, gen int) bool {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		conn.Close()
		return false
	}
	c.gen++
	readGen := c.gen
	c.conn = conn
	c.state = StateConnected
	c.mu.Unlock()

	c.emitStatus(true)
	go c.readLoop(conn, readGen)
	return true
}

// readLoop pumps inbound envelopes into the dispatch queue until the
// connection drops or is superseded.
func (c *Client) readLoop(conn Conn, gen int) {
	for {
		message, err := conn.ReadMessage()
		if err != nil {
			c.handleReadFailure(gen, err)
			return
		}

		var envelope Envelope
		if err := json.Unmarshal(message, &envelope); err != nil {
			logging.Warn("discarding malformed push message", logging.Fields{"error": err.Error()})
			continue
		}

		select {
		case c.dispatch <- envelope:
		default:
			logging.Warn("dispatch queue full, dropping event", logging.Fields{"type": envelope.Type})
		}
	}
}

// handleReadFailure starts the reconnect loop unless the drop was caused by
// a deliberate teardown.
func (c *Client) handleReadFailure(gen int, err error) {
	c.mu.Lock()
	if gen != c.gen || c.state != StateConnected {
		// Superseded or deliberately closed.
		c.mu.Unlock()
		return
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.gen++
	reconnectGen := c.gen
	c.state = StateReconnecting
	userID, token := c.userID, c.token
	c.mu.Unlock()

	logging.Warn("push connection lost, reconnecting", logging.Fields{"error": err.Error()})
	c.emitStatus(false)
	go c.reconnectLoop(reconnectGen, userID, token)
}

// reconnectLoop walks the backoff schedule, rejoining the user group after
// every successful dial. Exhaustion leaves the client Disconnected.
func (c *Client) reconnectLoop(gen int, userID, token string) {
	for attempt := 0; ; attempt++ {
		delay, ok := c.backoff.Delay(attempt)
		if !ok {
			c.mu.Lock()
			abandoned := gen == c.gen && c.state == StateReconnecting
			if abandoned {
				c.state = StateDisconnected
			}
			c.mu.Unlock()
			if abandoned {
				logging.Warn("reconnect schedule exhausted, giving up",
					logging.Fields{"attempts": attempt})
			}
			return
		}
		if delay > 0 {
			time.Sleep(delay)
		}

		c.mu.Lock()
		stale := gen != c.gen || c.state != StateReconnecting
		c.mu.Unlock()
		if stale {
			return
		}

		conn, err := c.dial(context.Background(), token)
		if err != nil {
			logging.Debug("reconnect attempt failed", logging.Fields{
				"attempt": attempt + 1,
				"error":   err.Error(),
			})
			c.emitStatus(false)
			continue
		}

		if err := c.joinUserGroup(conn, userID); err != nil {
			conn.Close()
			logging.Debug("group rejoin failed after reconnect", logging.Fields{
				"attempt": attempt + 1,
				"error":   err.Error(),
			})
			c.emitStatus(false)
			continue
		}

		if !c.install(conn, gen) {
			return
		}
		logging.Info("reconnected to push service", logging.Fields{"attempt": attempt + 1})
		return
	}
}

// runDispatcher routes queued envelopes onto the typed subscriber channels.
// A full subscriber channel drops the event rather than blocking the queue.
func (c *Client) runDispatcher() {
	for {
		select {
		case <-c.done:
			return
		case envelope := <-c.dispatch:
			var target chan json.RawMessage
			switch envelope.Type {
			case EventJournalEntry:
				target = c.journalEntries
			case EventPost:
				target = c.posts
			case EventMoodEntry:
				target = c.moodEntries
			case EventNotification:
				target = c.notifications
			default:
				logging.Debug("ignoring unknown push event", logging.Fields{"type": envelope.Type})
				continue
			}

			select {
			case target <- envelope.Data:
			default:
				logging.Warn("subscriber channel full, dropping event",
					logging.Fields{"type": envelope.Type})
			}
		}
	}
}

func (c *Client) emitStatus(connected bool) {
	c.handlerMu.RLock()
	handlers := make([]StatusHandler, len(c.handlers))
	copy(handlers, c.handlers)
	c.handlerMu.RUnlock()

	for _, handler := range handlers {
		handler(connected)
	}
}

// inspectToken does an unverified parse of the session token and warns about
// conditions the server will reject. Verification belongs to the server.
func inspectToken(token, userID string) {
	if token == "" {
		return
	}

	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		logging.Warn("session token is not a parseable JWT", logging.Fields{"error": err.Error()})
		return
	}

	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(time.Now()) {
		logging.Warn("session token is expired", logging.Fields{
			"expired_at": claims.ExpiresAt.Unix(),
		})
	}
	if claims.Subject != "" && claims.Subject != userID {
		logging.Warn("session token subject does not match user", logging.Fields{
			"subject": claims.Subject,
			"user_id": userID,
		})
	}
}
