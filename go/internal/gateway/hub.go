package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/panoquest/panoquest/go/internal/game"
)

// Hub manages WebSocket connections, one room per game code, and fans
// session events out to every connection in the room.
type Hub struct {
	rooms map[string]map[*Connection]bool
	mu    sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	broadcastCh chan *SessionEvent
}

// Connection represents a WebSocket connection to a client.
type Connection struct {
	ID        string
	PlayerKey string
	GameCode  string
	Conn      *websocket.Conn
	Send      chan []byte
	hub       *Hub

	// sendMu serializes sends on Send with its close, so a disconnecting
	// pump cannot close the channel under a concurrent broadcast.
	sendMu     sync.Mutex
	sendClosed bool

	ConnectedAt time.Time
}

// trySend queues data for the write pump without blocking. open reports
// whether the connection was still accepting sends at all.
func (c *Connection) trySend(data []byte) (sent, open bool) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return false, false
	}
	select {
	case c.Send <- data:
		return true, true
	default:
		return false, true
	}
}

// closeSend closes the send channel exactly once.
func (c *Connection) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return
	}
	c.sendClosed = true
	close(c.Send)
}

// ConnectionConfig holds configuration for WebSocket connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewHub creates a WebSocket hub.
func NewHub(config ConnectionConfig) *Hub {
	return &Hub{
		rooms: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan *SessionEvent, 256),
	}
}

// Start begins processing broadcast messages until the context ends.
func (h *Hub) Start(ctx context.Context) {
	log.Info().Msg("gateway hub started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("gateway hub shutting down")
			return
		case event := <-h.broadcastCh:
			h.handleBroadcast(event)
		}
	}
}

// HandleGameEvent is the game.EventSink wired into the app: it converts
// domain events to wire form and queues them for the room.
func (h *Hub) HandleGameEvent(e game.Event) {
	event, err := FromGameEvent(e)
	if err != nil {
		log.Error().Err(err).Str("game_code", e.GameCode).Msg("failed to convert session event")
		return
	}
	select {
	case h.broadcastCh <- event:
	default:
		log.Warn().Str("game_code", e.GameCode).Msg("broadcast channel full, dropping event")
	}
}

// UpgradeConnection upgrades an HTTP request to a WebSocket connection in
// the given game room.
func (h *Hub) UpgradeConnection(w http.ResponseWriter, r *http.Request, playerKey, gameCode string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		PlayerKey:   playerKey,
		GameCode:    gameCode,
		Conn:        conn,
		Send:        make(chan []byte, 256),
		hub:         h,
		ConnectedAt: time.Now(),
	}

	h.register(connection)
	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("player_key", playerKey).
		Str("game_code", gameCode).
		Msg("WebSocket connection established")
	return nil
}

func (h *Hub) register(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[conn.GameCode] == nil {
		h.rooms[conn.GameCode] = make(map[*Connection]bool)
	}
	h.rooms[conn.GameCode][conn] = true
}

func (h *Hub) unregister(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if room, exists := h.rooms[conn.GameCode]; exists {
		if _, exists := room[conn]; exists {
			delete(room, conn)
			conn.closeSend()
			if len(room) == 0 {
				delete(h.rooms, conn.GameCode)
			}
			log.Info().
				Str("connection_id", conn.ID).
				Str("game_code", conn.GameCode).
				Msg("connection unregistered")
		}
	}
}

func (h *Hub) handleBroadcast(event *SessionEvent) {
	h.mu.RLock()
	room, exists := h.rooms[event.GameCode]
	if !exists {
		h.mu.RUnlock()
		return
	}
	targets := make([]*Connection, 0, len(room))
	for conn := range room {
		targets = append(targets, conn)
	}
	h.mu.RUnlock()

	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	for _, conn := range targets {
		sent, open := conn.trySend(data)
		if sent || !open {
			// Delivered, or the pumps are already tearing the connection down.
			continue
		}
		log.Warn().
			Str("connection_id", conn.ID).
			Msg("connection send buffer full, closing connection")
		h.unregister(conn)
		conn.Conn.Close()
	}

	log.Debug().
		Str("event_type", string(event.Type)).
		Str("game_code", event.GameCode).
		Int("connections", len(targets)).
		Msg("event broadcasted")
}

// Stats reports active connection counts, used by the health surface.
func (h *Hub) Stats() (connections, games int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, room := range h.rooms {
		connections += len(room)
	}
	return connections, len(h.rooms)
}

// writePump handles sending messages to the WebSocket connection.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.hub.unregister(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection.
func (c *Connection) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.hub.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}
		// Clients only listen; anything they send is logged and ignored.
		log.Debug().
			Str("connection_id", c.ID).
			RawJSON("message", message).
			Msg("received client message")
		c.Conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	}
}
