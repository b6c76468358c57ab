package gateway

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// Connection is one WebSocket client following a draft. Captains carry a
// TeamID and count toward pause semantics; spectators have TeamID uuid.Nil
// and their churn never touches draft state.
type Connection struct {
	ID      string
	UserID  uuid.UUID
	DraftID uuid.UUID
	TeamID  uuid.UUID
	Channel string

	Conn    *websocket.Conn
	Send    chan []byte
	manager *ConnectionManager

	// Set when a newer connection for the same team superseded this one.
	// A kicked connection's close is administrative, not a disconnect.
	kicked atomic.Bool

	ConnectedAt time.Time
	LastPing    time.Time
}

// IsCaptain reports whether this connection is a team's connection of record
// candidate rather than a spectator.
func (c *Connection) IsCaptain() bool { return c.TeamID != uuid.Nil }

// Start begins the connection's read and write pumps.
func (c *Connection) Start() {
	go c.writePump()
	go c.readPump()
}

// Kick marks the connection superseded and closes it.
func (c *Connection) Kick() {
	c.kicked.Store(true)
	if c.Conn != nil {
		c.Conn.Close()
	}
}

// ConnectionManager owns the WebSocket connection pools, keyed by broadcast
// channel name. It implements broadcast.Sink, so sequenced envelopes flow
// straight from the sequencer onto client sockets.
type ConnectionManager struct {
	mu          sync.RWMutex
	connections map[string]map[*Connection]bool

	upgrader websocket.Upgrader
	config   ConnectionConfig

	// Called from the read pump with inbound client frames.
	onMessage func(c *Connection, message []byte)
	// Called when a connection's read pump exits.
	onClosed func(c *Connection)
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
	}
}

// OnMessage sets the inbound frame callback. Must be called before any
// connection is upgraded.
func (cm *ConnectionManager) OnMessage(fn func(c *Connection, message []byte)) {
	cm.onMessage = fn
}

// OnClosed sets the connection teardown callback.
func (cm *ConnectionManager) OnClosed(fn func(c *Connection)) {
	cm.onClosed = fn
}

// Upgrade promotes an HTTP request to a WebSocket connection and registers
// it on its channel. The pumps are not started yet: the caller calls Start
// after any connection-of-record bookkeeping, so a socket closing cannot be
// observed before the connection is accounted for.
func (cm *ConnectionManager) Upgrade(w http.ResponseWriter, r *http.Request, userID, draftID, teamID uuid.UUID, channel string) (*Connection, error) {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		UserID:      userID,
		DraftID:     draftID,
		TeamID:      teamID,
		Channel:     channel,
		Conn:        conn,
		Send:        make(chan []byte, 256),
		manager:     cm,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}

	cm.register(connection)

	log.Info().
		Str("connection_id", connection.ID).
		Str("user_id", userID.String()).
		Str("draft_id", draftID.String()).
		Bool("captain", connection.IsCaptain()).
		Msg("WebSocket connection established")

	return connection, nil
}

func (cm *ConnectionManager) register(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.connections[conn.Channel] == nil {
		cm.connections[conn.Channel] = make(map[*Connection]bool)
	}
	cm.connections[conn.Channel][conn] = true
}

func (cm *ConnectionManager) unregister(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if connections, exists := cm.connections[conn.Channel]; exists {
		if _, exists := connections[conn]; exists {
			delete(connections, conn)
			close(conn.Send)
			if len(connections) == 0 {
				delete(cm.connections, conn.Channel)
			}
			log.Info().
				Str("connection_id", conn.ID).
				Str("channel", conn.Channel).
				Msg("connection unregistered")
		}
	}
}

// Deliver pushes a sequenced envelope to every connection on a channel.
// Implements broadcast.Sink.
func (cm *ConnectionManager) Deliver(channel string, payload []byte) error {
	cm.mu.RLock()
	connections, exists := cm.connections[channel]
	if !exists {
		cm.mu.RUnlock()
		return nil
	}
	targets := make([]*Connection, 0, len(connections))
	for conn := range connections {
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	for _, conn := range targets {
		select {
		case conn.Send <- payload:
		default:
			// Connection is slow/dead, close it
			log.Warn().
				Str("connection_id", conn.ID).
				Str("channel", channel).
				Msg("connection send buffer full, closing connection")
			conn.Conn.Close()
		}
	}
	return nil
}

// SendTo writes a payload to a single connection, dropping it if the buffer
// is full.
func (cm *ConnectionManager) SendTo(conn *Connection, payload []byte) {
	select {
	case conn.Send <- payload:
	default:
		log.Warn().
			Str("connection_id", conn.ID).
			Msg("connection send buffer full, dropping direct message")
	}
}

// Stats summarizes the live connection pools.
func (cm *ConnectionManager) Stats() (totalConnections, activeChannels int) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	for _, connections := range cm.connections {
		totalConnections += len(connections)
	}
	return totalConnections, len(cm.connections)
}

// Shutdown closes every live connection.
func (cm *ConnectionManager) Shutdown(ctx context.Context) {
	cm.mu.Lock()
	var all []*Connection
	for _, connections := range cm.connections {
		for conn := range connections {
			all = append(all, conn)
		}
	}
	cm.mu.Unlock()

	for _, conn := range all {
		conn.kicked.Store(true)
		conn.Conn.Close()
	}
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			c.LastPing = time.Now()
		}
	}
}

// readPump handles reading messages from the WebSocket connection
func (c *Connection) readPump() {
	defer func() {
		c.manager.unregister(c)
		c.Conn.Close()
		if c.manager.onClosed != nil {
			c.manager.onClosed(c)
		}
	}()

	c.Conn.SetReadLimit(c.manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}
		if c.manager.onMessage != nil {
			c.manager.onMessage(c, message)
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	}
}
