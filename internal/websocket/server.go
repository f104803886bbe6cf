// Package websocket owns the agent side of the kiosk command channel:
// client registration, inbound command frames, and best-effort status
// broadcast fan-out.
package websocket

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/vrarcade/kiosk/internal/protocol"
	"github.com/vrarcade/kiosk/pkg/logger"
)

// CommandHandler processes a decoded command frame from a client. The
// handler replies via client.Send; it never blocks on slow clients.
type CommandHandler interface {
	HandleCommand(client *Client, cmd *protocol.Command)
}

// ConnectHandler is notified after a client is registered, e.g. to
// schedule the greeting snapshot.
type ConnectHandler interface {
	HandleConnect(client *Client)
}

// Client represents one connected command-center client.
type Client struct {
	conn      *websocket.Conn
	send      chan *protocol.Response
	server    *Server
	mu        sync.Mutex
	closed    bool
	closeChan chan struct{}
}

// Server is the websocket hub for the command channel.
type Server struct {
	clients        map[*Client]bool
	register       chan *Client
	unregister     chan *Client
	broadcast      chan *protocol.Response
	upgrader       websocket.Upgrader
	logger         *logger.Logger
	mu             sync.RWMutex
	commandHandler CommandHandler
	connectHandler ConnectHandler
}

// NewServer creates a new command-channel hub.
func NewServer(log *logger.Logger) *Server {
	return &Server{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *protocol.Response, 16),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Kiosk clients connect from the local network
			},
		},
		logger: log.Named("web-socket"),
	}
}

// SetCommandHandler sets the handler for inbound command frames.
func (s *Server) SetCommandHandler(handler CommandHandler) {
	s.commandHandler = handler
}

// SetConnectHandler sets the handler notified on new connections.
func (s *Server) SetConnectHandler(handler ConnectHandler) {
	s.connectHandler = handler
}

// Run starts the hub loop. It runs until the process exits.
func (s *Server) Run() {
	s.logger.Info("Starting WebSocket server")

	for {
		select {
		case client := <-s.register:
			s.mu.Lock()
			s.clients[client] = true
			clientCount := len(s.clients)
			s.mu.Unlock()
			s.logger.Debug("Client registered", logger.Int("client_count", clientCount))

			if s.connectHandler != nil {
				s.connectHandler.HandleConnect(client)
			}

		case client := <-s.unregister:
			s.mu.Lock()
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				client.mu.Lock()
				client.closed = true
				client.mu.Unlock()
				close(client.send)
			}
			clientCount := len(s.clients)
			s.mu.Unlock()
			s.logger.Debug("Client unregistered", logger.Int("client_count", clientCount))

		case message := <-s.broadcast:
			s.mu.RLock()
			clientsToRemove := make([]*Client, 0)
			for client := range s.clients {
				client.mu.Lock()
				if client.closed {
					clientsToRemove = append(clientsToRemove, client)
					client.mu.Unlock()
					continue
				}
				client.mu.Unlock()

				select {
				case client.send <- message:
				default:
					// Channel is full, mark for removal
					clientsToRemove = append(clientsToRemove, client)
				}
			}
			s.mu.RUnlock()

			if len(clientsToRemove) > 0 {
				s.mu.Lock()
				for _, client := range clientsToRemove {
					if _, ok := s.clients[client]; ok {
						delete(s.clients, client)
						client.mu.Lock()
						if !client.closed {
							client.closed = true
							close(client.send)
						}
						client.mu.Unlock()
					}
				}
				s.mu.Unlock()
			}
		}
	}
}

// HandleConnection upgrades an HTTP request to a command-channel connection.
func (s *Server) HandleConnection(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("Handling new WebSocket connection request",
		logger.String("remote_addr", r.RemoteAddr),
		logger.String("user_agent", r.UserAgent()))

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection",
			logger.Error(err),
			logger.String("remote_addr", r.RemoteAddr))
		return
	}

	client := &Client{
		conn:      conn,
		send:      make(chan *protocol.Response, 256),
		server:    s,
		closeChan: make(chan struct{}),
	}

	s.register <- client

	go client.readPump()
	go client.writePump()
}

// Broadcast sends a message to all connected clients. Dead or slow
// clients are evicted rather than retried.
func (s *Server) Broadcast(message *protocol.Response) {
	s.broadcast <- message
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// readPump pumps command frames from the connection to the handler.
func (c *Client) readPump() {
	defer func() {
		c.mu.Lock()
		if !c.closed {
			c.closed = true
		}
		c.mu.Unlock()

		c.server.unregister <- c
		c.conn.Close()
	}()

	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			break
		}
		c.mu.Unlock()

		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.server.logger.Error("WebSocket read error", logger.Error(err))
			}
			break
		}

		var cmd protocol.Command
		if err := json.Unmarshal(messageBytes, &cmd); err != nil {
			c.server.logger.Error("Failed to parse command frame", logger.Error(err))
			c.Send(protocol.NewError("", protocol.CodeInvalidParams, "Invalid JSON format"))
			continue
		}

		if cmd.ID == "" || cmd.Type == "" {
			c.Send(protocol.NewError(cmd.ID, protocol.CodeInvalidParams, "Invalid command format"))
			continue
		}

		c.server.logger.Debug("Received command",
			logger.String("type", string(cmd.Type)),
			logger.String("id", cmd.ID),
			logger.String("client", c.conn.RemoteAddr().String()))

		if c.server.commandHandler != nil {
			c.server.commandHandler.HandleCommand(c, &cmd)
		}
	}
}

// writePump pumps responses from the hub to the connection.
func (c *Client) writePump() {
	defer func() {
		c.mu.Lock()
		if !c.closed {
			c.closed = true
		}
		c.mu.Unlock()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			c.mu.Lock()
			if c.closed {
				c.mu.Unlock()
				return
			}

			data, err := json.Marshal(message)
			if err != nil {
				c.server.logger.Error("Failed to marshal response", logger.Error(err))
				c.mu.Unlock()
				continue
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.mu.Unlock()
				return
			}
			c.mu.Unlock()

		case <-c.closeChan:
			return
		}
	}
}

// Close closes the client connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.closed = true
	close(c.closeChan)
	c.conn.Close()
}

// Send queues a response for this specific client. Returns false when
// the client is closed or its send buffer is full.
func (c *Client) Send(message *protocol.Response) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- message:
		return true
	default:
		// Channel is full, drop message
		return false
	}
}
