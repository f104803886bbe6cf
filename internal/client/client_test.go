package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vrarcade/kiosk/internal/config"
	"github.com/vrarcade/kiosk/internal/protocol"
	"github.com/vrarcade/kiosk/pkg/logger"
)

// agentStub is a scripted agent endpoint. The handler is invoked for
// every command frame and may write responses on the connection.
type agentStub struct {
	server  *httptest.Server
	mu      sync.Mutex
	conns   []*gws.Conn
	handler func(conn *gws.Conn, cmd *protocol.Command)
}

func newAgentStub(t *testing.T, handler func(conn *gws.Conn, cmd *protocol.Command)) *agentStub {
	t.Helper()

	stub := &agentStub{handler: handler}
	upgrader := gws.Upgrader{}

	stub.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		stub.mu.Lock()
		stub.conns = append(stub.conns, conn)
		stub.mu.Unlock()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var cmd protocol.Command
			if err := json.Unmarshal(data, &cmd); err != nil {
				continue
			}
			if stub.handler != nil {
				stub.handler(conn, &cmd)
			}
		}
	}))
	t.Cleanup(stub.Close)
	return stub
}

func (s *agentStub) URL() string {
	return "ws" + strings.TrimPrefix(s.server.URL, "http")
}

func (s *agentStub) Close() {
	s.mu.Lock()
	for _, conn := range s.conns {
		conn.Close()
	}
	s.conns = nil
	s.mu.Unlock()
	s.server.Close()
}

func writeResponse(conn *gws.Conn, resp *protocol.Response) {
	data, _ := json.Marshal(resp)
	conn.WriteMessage(gws.TextMessage, data)
}

func echoSuccess(conn *gws.Conn, cmd *protocol.Command) {
	resp, _ := protocol.NewSuccess(cmd.ID, map[string]any{"echo": string(cmd.Type)})
	writeResponse(conn, resp)
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()

	c := New(config.ClientConfig{
		URL:                  url,
		CommandTimeoutSecs:   1,
		MaxReconnectAttempts: 1,
		ReconnectDelayMs:     10,
		MaxReconnectDelayMs:  50,
	}, logger.NewNop())
	t.Cleanup(func() { c.Close() })
	return c
}

func TestSendBeforeConnect(t *testing.T) {
	c := newTestClient(t, "ws://127.0.0.1:1/ws")

	_, err := c.Send(context.Background(), protocol.CmdGetStatus, nil)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestConnectAndCorrelate(t *testing.T) {
	stub := newAgentStub(t, func(conn *gws.Conn, cmd *protocol.Command) {
		// A broadcast arriving first must not satisfy the pending command.
		broadcast, _ := protocol.NewSuccess("broadcast-id-1", protocol.StatusSnapshot{Connected: true})
		writeResponse(conn, broadcast)
		echoSuccess(conn, cmd)
	})

	c := newTestClient(t, stub.URL())
	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, StateConnected, c.State())

	resp, err := c.Send(context.Background(), protocol.CmdGetStatus, nil)
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusSuccess, resp.Status)
	assert.JSONEq(t, `{"echo":"getStatus"}`, string(resp.Data))
}

func TestConnectIdempotent(t *testing.T) {
	stub := newAgentStub(t, echoSuccess)

	c := newTestClient(t, stub.URL())
	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, StateConnected, c.State())
}

func TestCommandTimeout(t *testing.T) {
	stub := newAgentStub(t, func(conn *gws.Conn, cmd *protocol.Command) {
		// Swallow the command.
	})

	c := newTestClient(t, stub.URL())
	require.NoError(t, c.Connect(context.Background()))

	start := time.Now()
	_, err := c.Send(context.Background(), protocol.CmdGetStatus, nil)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.WithinDuration(t, start.Add(time.Second), time.Now(), 500*time.Millisecond)
}

func TestContextCancellation(t *testing.T) {
	stub := newAgentStub(t, func(conn *gws.Conn, cmd *protocol.Command) {})

	c := newTestClient(t, stub.URL())
	require.NoError(t, c.Connect(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Send(ctx, protocol.CmdGetStatus, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBroadcastRouting(t *testing.T) {
	var stubConn *gws.Conn
	var connMu sync.Mutex
	stub := newAgentStub(t, func(conn *gws.Conn, cmd *protocol.Command) {
		connMu.Lock()
		stubConn = conn
		connMu.Unlock()
		echoSuccess(conn, cmd)
	})

	c := newTestClient(t, stub.URL())
	require.NoError(t, c.Connect(context.Background()))

	received := make(chan *protocol.Response, 4)
	unsubscribe := c.OnStatus(func(resp *protocol.Response) {
		received <- resp
	})

	// Round-trip once so the stub has a connection handle.
	_, err := c.Send(context.Background(), protocol.CmdHeartbeat, nil)
	require.NoError(t, err)

	connMu.Lock()
	conn := stubConn
	connMu.Unlock()
	require.NotNil(t, conn)

	broadcast, _ := protocol.NewSuccess("broadcast-id-2", protocol.StatusSnapshot{
		Connected:     true,
		GameRunning:   true,
		TimeRemaining: 590,
	})
	writeResponse(conn, broadcast)

	select {
	case resp := <-received:
		assert.Equal(t, "broadcast-id-2", resp.ID)
	case <-time.After(time.Second):
		t.Fatal("broadcast never reached the status subscriber")
	}

	// After unsubscribe no further frames are delivered.
	unsubscribe()
	later, _ := protocol.NewSuccess("broadcast-id-3", protocol.StatusSnapshot{Connected: true})
	writeResponse(conn, later)
	select {
	case <-received:
		t.Fatal("received broadcast after unsubscribe")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestDuplicateResponseDropped(t *testing.T) {
	stub := newAgentStub(t, func(conn *gws.Conn, cmd *protocol.Command) {
		echoSuccess(conn, cmd)
		echoSuccess(conn, cmd) // duplicate
	})

	c := newTestClient(t, stub.URL())
	require.NoError(t, c.Connect(context.Background()))

	received := make(chan *protocol.Response, 4)
	defer c.OnStatus(func(resp *protocol.Response) { received <- resp })()

	_, err := c.Send(context.Background(), protocol.CmdHeartbeat, nil)
	require.NoError(t, err)

	select {
	case resp := <-received:
		t.Fatalf("duplicate response leaked to status subscribers: %s", resp.ID)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestConnectionLostFailsPending(t *testing.T) {
	stub := newAgentStub(t, func(conn *gws.Conn, cmd *protocol.Command) {
		conn.Close()
	})

	c := newTestClient(t, stub.URL())
	require.NoError(t, c.Connect(context.Background()))

	_, err := c.Send(context.Background(), protocol.CmdGetStatus, nil)
	assert.ErrorIs(t, err, ErrConnectionLost)

	// The stub endpoint is still up, so the bounded reconnect succeeds.
	assert.Eventually(t, func() bool {
		return c.State() == StateConnected
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStateChangeNotifications(t *testing.T) {
	stub := newAgentStub(t, echoSuccess)

	c := newTestClient(t, stub.URL())

	states := make(chan ConnState, 8)
	defer c.OnConnectionStateChange(func(s ConnState) { states <- s })()

	require.NoError(t, c.Connect(context.Background()))

	seen := map[ConnState]bool{}
	deadline := time.After(time.Second)
	for !seen[StateConnecting] || !seen[StateConnected] {
		select {
		case s := <-states:
			seen[s] = true
		case <-deadline:
			t.Fatalf("missing state transitions, saw %v", seen)
		}
	}
}

func TestCommandErrorSurfaced(t *testing.T) {
	stub := newAgentStub(t, func(conn *gws.Conn, cmd *protocol.Command) {
		writeResponse(conn, protocol.NewError(cmd.ID, protocol.CodeGameNotFound, "Game not found: half-life-3"))
	})

	c := newTestClient(t, stub.URL())
	require.NoError(t, c.Connect(context.Background()))

	_, err := c.LaunchGame(context.Background(), "half-life-3", 600)
	require.Error(t, err)

	var cmdErr *protocol.CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, protocol.CodeGameNotFound, cmdErr.Code)
}

func TestTypedCommands(t *testing.T) {
	stub := newAgentStub(t, func(conn *gws.Conn, cmd *protocol.Command) {
		var resp *protocol.Response
		switch cmd.Type {
		case protocol.CmdLaunchGame:
			resp, _ = protocol.NewSuccess(cmd.ID, map[string]any{
				"gameId": "beat-saber", "title": "Beat Saber", "running": true,
				"sessionDuration": 600, "replaced": false, "simulated": true,
			})
		case protocol.CmdEndSession:
			resp, _ = protocol.NewSuccess(cmd.ID, map[string]any{
				"wasRunning": true, "message": "Session ended successfully",
			})
		case protocol.CmdGetStatus:
			resp, _ = protocol.NewSuccess(cmd.ID, map[string]any{
				"status": map[string]any{
					"connected": true, "activeGame": "Beat Saber",
					"gameRunning": true, "isPaused": false, "timeRemaining": 540,
				},
			})
		case protocol.CmdHeartbeat:
			resp, _ = protocol.NewSuccess(cmd.ID, map[string]any{"timestamp": 1234567890})
		default:
			resp = protocol.NewError(cmd.ID, protocol.CodeUnknownCommand, "unexpected")
		}
		writeResponse(conn, resp)
	})

	c := newTestClient(t, stub.URL())
	require.NoError(t, c.Connect(context.Background()))

	launch, err := c.LaunchGame(context.Background(), "beat-saber", 600)
	require.NoError(t, err)
	assert.Equal(t, "Beat Saber", launch.Title)
	assert.True(t, launch.Running)
	assert.Equal(t, 600, launch.SessionDuration)
	assert.True(t, launch.Simulated)

	end, err := c.EndSession(context.Background())
	require.NoError(t, err)
	assert.True(t, end.WasRunning)
	assert.Equal(t, "Session ended successfully", end.Message)

	status, err := c.GetStatus(context.Background())
	require.NoError(t, err)
	assert.True(t, status.GameRunning)
	require.NotNil(t, status.ActiveGame)
	assert.Equal(t, "Beat Saber", *status.ActiveGame)
	assert.Equal(t, 540, status.TimeRemaining)

	hb, err := c.SendHeartbeat(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1234567890, hb.Timestamp)
}

func TestCloseFailsFurtherSends(t *testing.T) {
	stub := newAgentStub(t, echoSuccess)

	c := newTestClient(t, stub.URL())
	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Close())

	_, err := c.Send(context.Background(), protocol.CmdGetStatus, nil)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, StateDisconnected, c.State())
}
