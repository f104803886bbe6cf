package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vrarcade/kiosk/internal/protocol"
	"github.com/vrarcade/kiosk/pkg/logger"
)

// echoHandler replies to every command with a success frame that echoes
// the command type.
type echoHandler struct{}

func (echoHandler) HandleCommand(client *Client, cmd *protocol.Command) {
	resp, _ := protocol.NewSuccess(cmd.ID, map[string]any{"echo": string(cmd.Type)})
	client.Send(resp)
}

func newTestHub(t *testing.T) (*Server, string) {
	t.Helper()

	hub := NewServer(logger.NewNop())
	go hub.Run()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleConnection))
	t.Cleanup(srv.Close)

	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *gws.Conn {
	t.Helper()

	conn, _, err := gws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readResponse(t *testing.T, conn *gws.Conn) *protocol.Response {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var resp protocol.Response
	require.NoError(t, json.Unmarshal(data, &resp))
	return &resp
}

func TestClientRegistration(t *testing.T) {
	hub, url := newTestHub(t)

	conn := dial(t, url)
	assert.Eventually(t, func() bool {
		return hub.ClientCount() == 1
	}, time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool {
		return hub.ClientCount() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestCommandRoundTrip(t *testing.T) {
	hub, url := newTestHub(t)
	hub.SetCommandHandler(echoHandler{})

	conn := dial(t, url)

	frame, _ := json.Marshal(protocol.Command{ID: "cmd-42", Type: protocol.CmdGetStatus})
	require.NoError(t, conn.WriteMessage(gws.TextMessage, frame))

	resp := readResponse(t, conn)
	assert.Equal(t, "cmd-42", resp.ID)
	assert.Equal(t, protocol.StatusSuccess, resp.Status)
	assert.JSONEq(t, `{"echo":"getStatus"}`, string(resp.Data))
}

func TestMalformedFrameRejected(t *testing.T) {
	hub, url := newTestHub(t)
	hub.SetCommandHandler(echoHandler{})

	conn := dial(t, url)

	require.NoError(t, conn.WriteMessage(gws.TextMessage, []byte("not json")))
	resp := readResponse(t, conn)
	assert.Equal(t, protocol.StatusError, resp.Status)
	assert.Equal(t, protocol.CodeInvalidParams, resp.Code)

	// The connection survives a bad frame.
	frame, _ := json.Marshal(protocol.Command{ID: "cmd-1", Type: protocol.CmdHeartbeat})
	require.NoError(t, conn.WriteMessage(gws.TextMessage, frame))
	resp = readResponse(t, conn)
	assert.Equal(t, "cmd-1", resp.ID)
}

func TestFrameWithoutIDRejected(t *testing.T) {
	_, url := newTestHub(t)

	conn := dial(t, url)

	require.NoError(t, conn.WriteMessage(gws.TextMessage, []byte(`{"type":"getStatus"}`)))
	resp := readResponse(t, conn)
	assert.Equal(t, protocol.StatusError, resp.Status)
	assert.Equal(t, protocol.CodeInvalidParams, resp.Code)
}

func TestBroadcastReachesAllClients(t *testing.T) {
	hub, url := newTestHub(t)

	conn1 := dial(t, url)
	conn2 := dial(t, url)

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 2
	}, time.Second, 10*time.Millisecond)

	msg, _ := protocol.NewSuccess("broadcast-1", protocol.StatusSnapshot{Connected: true})
	hub.Broadcast(msg)

	for _, conn := range []*gws.Conn{conn1, conn2} {
		resp := readResponse(t, conn)
		assert.Equal(t, "broadcast-1", resp.ID)
	}
}

// connectGreeter sends one frame to every client as it registers.
type connectGreeter struct{}

func (connectGreeter) HandleConnect(client *Client) {
	resp, _ := protocol.NewSuccess("greeting-1", map[string]any{"message": "hello"})
	client.Send(resp)
}

func TestConnectHandler(t *testing.T) {
	hub, url := newTestHub(t)
	hub.SetConnectHandler(connectGreeter{})

	conn := dial(t, url)

	resp := readResponse(t, conn)
	assert.Equal(t, "greeting-1", resp.ID)
}
