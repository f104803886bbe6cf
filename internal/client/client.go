// Package client implements the command-center side of the kiosk
// command channel: a websocket client with request/response correlation,
// bounded reconnection, and status broadcast fan-out.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vrarcade/kiosk/internal/config"
	"github.com/vrarcade/kiosk/internal/protocol"
	"github.com/vrarcade/kiosk/pkg/logger"
)

// ConnState is the client's connection lifecycle state.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateReconnecting ConnState = "reconnecting"
)

var (
	// ErrNotConnected is returned when a command is issued while the
	// connection is down. Commands are never queued for later delivery.
	ErrNotConnected = errors.New("not connected to agent")

	// ErrTimeout is returned when no response arrives within the
	// command timeout. The pending entry is removed, so a late response
	// is silently discarded.
	ErrTimeout = errors.New("command timed out")

	// ErrConnectionLost fails commands that were in flight when the
	// connection dropped.
	ErrConnectionLost = errors.New("connection lost")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("client closed")
)

// Client is a command-channel client. All methods are safe for
// concurrent use.
type Client struct {
	cfg    config.ClientConfig
	logger *logger.Logger
	dialer *websocket.Dialer

	mu         sync.Mutex
	conn       *websocket.Conn
	state      ConnState
	closed     bool
	pending    map[string]chan *protocol.Response
	completed  map[string]struct{}
	completedQ []string
	stateSubs  map[int]func(ConnState)
	statusSubs map[int]func(*protocol.Response)
	nextSub    int

	writeMu sync.Mutex
	done    chan struct{}
}

// New creates a client for the agent at cfg.URL. Call Connect to open
// the channel.
func New(cfg config.ClientConfig, log *logger.Logger) *Client {
	if cfg.CommandTimeoutSecs <= 0 {
		cfg.CommandTimeoutSecs = 10
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = 5
	}
	if cfg.ReconnectDelayMs <= 0 {
		cfg.ReconnectDelayMs = 2000
	}
	if cfg.MaxReconnectDelayMs <= 0 {
		cfg.MaxReconnectDelayMs = 30000
	}

	return &Client{
		cfg:        cfg,
		logger:     log.Named("client"),
		dialer:     websocket.DefaultDialer,
		state:      StateDisconnected,
		pending:    make(map[string]chan *protocol.Response),
		completed:  make(map[string]struct{}),
		stateSubs:  make(map[int]func(ConnState)),
		statusSubs: make(map[int]func(*protocol.Response)),
		done:       make(chan struct{}),
	}
}

// State returns the current connection state.
func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect opens the websocket connection. Calling Connect while already
// connected or connecting is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state == StateConnected || c.state == StateConnecting || c.state == StateReconnecting {
		c.mu.Unlock()
		return nil
	}
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	if err := c.dial(ctx); err != nil {
		c.mu.Lock()
		c.setStateLocked(StateDisconnected)
		c.mu.Unlock()
		return err
	}
	return nil
}

// dial performs one connection attempt and, on success, starts the read
// and heartbeat loops.
func (c *Client) dial(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	c.conn = conn
	c.setStateLocked(StateConnected)
	c.mu.Unlock()

	c.logger.Info("Connected to agent", logger.String("url", c.cfg.URL))

	go c.readLoop(conn)
	if c.cfg.HeartbeatIntervalSecs > 0 {
		go c.heartbeatLoop(conn)
	}
	return nil
}

// Close shuts the client down. Pending commands fail with ErrClosed and
// no reconnection is attempted.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.conn = nil
	c.failPendingLocked()
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	if conn != nil {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		return conn.Close()
	}
	return nil
}

// Send issues one command and waits for the correlated response. The
// wait is bounded by ctx and by the configured command timeout,
// whichever fires first.
func (c *Client) Send(ctx context.Context, cmdType protocol.CommandType, params any) (*protocol.Response, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if c.state != StateConnected || c.conn == nil {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	conn := c.conn

	id := uuid.NewString()
	waiter := make(chan *protocol.Response, 1)
	c.pending[id] = waiter
	c.mu.Unlock()

	cmd := protocol.Command{ID: id, Type: cmdType}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			c.removePending(id)
			return nil, err
		}
		cmd.Params = raw
	}

	data, err := json.Marshal(&cmd)
	if err != nil {
		c.removePending(id)
		return nil, err
	}

	c.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		c.removePending(id)
		return nil, ErrNotConnected
	}

	timeout := time.NewTimer(time.Duration(c.cfg.CommandTimeoutSecs) * time.Second)
	defer timeout.Stop()

	select {
	case resp, ok := <-waiter:
		if !ok {
			return nil, ErrConnectionLost
		}
		return resp, nil
	case <-timeout.C:
		c.removePending(id)
		return nil, ErrTimeout
	case <-ctx.Done():
		c.removePending(id)
		return nil, ctx.Err()
	}
}

// removePending drops a pending entry if it is still registered. Each
// entry is removed exactly once; a response arriving after removal is
// discarded.
func (c *Client) removePending(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.markCompletedLocked(id)
	c.mu.Unlock()
}

// markCompletedLocked remembers a finished command ID so a duplicate or
// late response is dropped instead of being mistaken for a broadcast.
// The set is bounded; the oldest entries fall off first.
func (c *Client) markCompletedLocked(id string) {
	if _, ok := c.completed[id]; ok {
		return
	}
	c.completed[id] = struct{}{}
	c.completedQ = append(c.completedQ, id)
	if len(c.completedQ) > 1024 {
		oldest := c.completedQ[0]
		c.completedQ = c.completedQ[1:]
		delete(c.completed, oldest)
	}
}

// readLoop pumps frames from the connection: responses are routed to
// their pending waiters, everything else goes to status subscribers.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleDisconnect(conn, err)
			return
		}

		var resp protocol.Response
		if err := json.Unmarshal(data, &resp); err != nil {
			c.logger.Warn("Discarding unparseable frame", logger.Error(err))
			continue
		}

		c.mu.Lock()
		waiter, ok := c.pending[resp.ID]
		if ok {
			delete(c.pending, resp.ID)
			c.markCompletedLocked(resp.ID)
		}
		_, dup := c.completed[resp.ID]
		statusSubs := make([]func(*protocol.Response), 0, len(c.statusSubs))
		if !ok && !dup {
			for _, fn := range c.statusSubs {
				statusSubs = append(statusSubs, fn)
			}
		}
		c.mu.Unlock()

		if ok {
			waiter <- &resp
			continue
		}
		if dup {
			continue
		}

		// Unmatched frames are agent-initiated broadcasts.
		for _, fn := range statusSubs {
			fn(&resp)
		}
	}
}

// handleDisconnect fails in-flight commands and starts bounded
// reconnection, unless the drop came from an intentional Close.
func (c *Client) handleDisconnect(conn *websocket.Conn, err error) {
	conn.Close()

	c.mu.Lock()
	if c.closed || c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.failPendingLocked()
	c.setStateLocked(StateReconnecting)
	c.mu.Unlock()

	c.logger.Warn("Connection to agent lost", logger.Error(err))

	go c.reconnect()
}

// failPendingLocked closes every pending waiter, which surfaces as
// ErrConnectionLost to the blocked Send calls. Callers hold c.mu.
func (c *Client) failPendingLocked() {
	for id, waiter := range c.pending {
		close(waiter)
		delete(c.pending, id)
	}
}

// reconnect retries the connection with capped exponential backoff, up
// to the configured attempt limit.
func (c *Client) reconnect() {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Duration(c.cfg.ReconnectDelayMs) * time.Millisecond
	policy.MaxInterval = time.Duration(c.cfg.MaxReconnectDelayMs) * time.Millisecond
	policy.MaxElapsedTime = 0
	policy.Reset()

	for attempt := 1; attempt <= c.cfg.MaxReconnectAttempts; attempt++ {
		wait := policy.NextBackOff()
		c.logger.Info("Reconnecting to agent",
			logger.Int("attempt", attempt),
			logger.Int("max_attempts", c.cfg.MaxReconnectAttempts),
			logger.Duration("delay", wait))

		select {
		case <-c.done:
			return
		case <-time.After(wait):
		}

		c.mu.Lock()
		if c.closed || c.state != StateReconnecting {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		err := c.dial(context.Background())
		if err == nil {
			return
		}
		c.logger.Warn("Reconnect attempt failed",
			logger.Int("attempt", attempt),
			logger.Error(err))
	}

	c.logger.Error("Reconnection attempts exhausted",
		logger.Int("max_attempts", c.cfg.MaxReconnectAttempts))

	c.mu.Lock()
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()
}

// heartbeatLoop sends periodic heartbeats while conn is current.
func (c *Client) heartbeatLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(time.Duration(c.cfg.HeartbeatIntervalSecs) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			current := c.conn == conn && c.state == StateConnected
			c.mu.Unlock()
			if !current {
				return
			}

			ctx, cancel := context.WithTimeout(context.Background(),
				time.Duration(c.cfg.CommandTimeoutSecs)*time.Second)
			if _, err := c.Send(ctx, protocol.CmdHeartbeat, nil); err != nil {
				c.logger.Warn("Heartbeat failed", logger.Error(err))
			}
			cancel()
		}
	}
}

// OnConnectionStateChange registers a state listener. The returned
// function removes it.
func (c *Client) OnConnectionStateChange(fn func(ConnState)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSub
	c.nextSub++
	c.stateSubs[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.stateSubs, id)
	}
}

// OnStatus registers a listener for agent-initiated broadcast frames.
// The returned function removes it.
func (c *Client) OnStatus(fn func(*protocol.Response)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSub
	c.nextSub++
	c.statusSubs[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.statusSubs, id)
	}
}

// setStateLocked updates the state and notifies listeners. Callers hold
// c.mu; listeners are invoked on their own goroutine so they may call
// back into the client.
func (c *Client) setStateLocked(next ConnState) {
	if c.state == next {
		return
	}
	c.state = next

	subs := make([]func(ConnState), 0, len(c.stateSubs))
	for _, fn := range c.stateSubs {
		subs = append(subs, fn)
	}
	go func() {
		for _, fn := range subs {
			fn(next)
		}
	}()
}
