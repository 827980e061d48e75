package services

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// WebSocket Upgrader
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Should check Origin in production environment
		return true
	},
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second
)

// Connection information
type Connection struct {
	ID            string          `json:"id"`
	TraderAddress string          `json:"trader_address"` // empty for public-only subscribers
	Conn          *websocket.Conn `json:"-"`
	Send          chan []byte     `json:"-"`
	LastPing      time.Time       `json:"last_ping"`
}

// PushMessage is the envelope for every outbound frame.
type PushMessage struct {
	Type          string      `json:"type"`
	Timestamp     string      `json:"timestamp"`
	MessageID     string      `json:"message_id"`
	TraderAddress string      `json:"trader_address,omitempty"`
	Data          interface{} `json:"data"`
}

// PushService fans exchange events out to websocket subscribers. Public
// events (epoch results, book depth, match prints without trader identity)
// go to every connection; trader-scoped events (commitment status, channel
// updates) go only to that trader's connections.
type PushService struct {
	connections map[string]*Connection   // key: connectionID
	traderConns map[string][]*Connection // key: traderAddress
	hub         chan PushMessage
	register    chan *Connection
	unregister  chan *Connection
	mutex       sync.RWMutex
}

// NewPushService creates the service. Run must be started on a goroutine.
func NewPushService() *PushService {
	return &PushService{
		connections: make(map[string]*Connection),
		traderConns: make(map[string][]*Connection),
		hub:         make(chan PushMessage, 256),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
	}
}

// Run processes register/unregister/broadcast events until the service is
// garbage collected with the process.
func (s *PushService) Run() {
	for {
		select {
		case conn := <-s.register:
			s.handleRegister(conn)
		case conn := <-s.unregister:
			s.handleUnregister(conn)
		case message := <-s.hub:
			s.handleBroadcast(message)
		}
	}
}

// HandleConnection upgrades an HTTP request and manages the connection's
// lifetime. traderAddress may be empty for anonymous public subscribers.
func (s *PushService) HandleConnection(w http.ResponseWriter, r *http.Request, traderAddress string) error {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("websocket upgrade failed: %w", err)
	}

	conn := &Connection{
		ID:            uuid.NewString(),
		TraderAddress: traderAddress,
		Conn:          ws,
		Send:          make(chan []byte, 64),
		LastPing:      time.Now(),
	}
	s.register <- conn

	go s.writePump(conn)
	go s.readPump(conn)
	return nil
}

// PushPublic broadcasts an event to every connection.
func (s *PushService) PushPublic(eventType string, data interface{}) {
	s.hub <- PushMessage{
		Type:      eventType,
		Timestamp: time.Now().Format(time.RFC3339),
		MessageID: uuid.NewString(),
		Data:      data,
	}
}

// PushToTrader sends an event to one trader's connections only.
func (s *PushService) PushToTrader(traderAddress, eventType string, data interface{}) {
	s.hub <- PushMessage{
		Type:          eventType,
		Timestamp:     time.Now().Format(time.RFC3339),
		MessageID:     uuid.NewString(),
		TraderAddress: traderAddress,
		Data:          data,
	}
}

// ConnectionCount returns the current connection count.
func (s *PushService) ConnectionCount() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.connections)
}

func (s *PushService) handleRegister(conn *Connection) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.connections[conn.ID] = conn
	if conn.TraderAddress != "" {
		s.traderConns[conn.TraderAddress] = append(s.traderConns[conn.TraderAddress], conn)
	}

	log.Printf("📱 WebSocket connection registered: trader=%s, connID=%s", conn.TraderAddress, conn.ID)

	confirm := PushMessage{
		Type:          "connection_established",
		Timestamp:     time.Now().Format(time.RFC3339),
		MessageID:     uuid.NewString(),
		TraderAddress: conn.TraderAddress,
		Data: map[string]interface{}{
			"connection_id": conn.ID,
			"message":       "Real-time exchange feed connected",
		},
	}
	s.sendToConnection(conn, confirm)
}

func (s *PushService) handleUnregister(conn *Connection) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.connections[conn.ID]; !ok {
		return
	}
	delete(s.connections, conn.ID)

	if conns, ok := s.traderConns[conn.TraderAddress]; ok {
		for i, c := range conns {
			if c.ID == conn.ID {
				s.traderConns[conn.TraderAddress] = append(conns[:i], conns[i+1:]...)
				break
			}
		}
		if len(s.traderConns[conn.TraderAddress]) == 0 {
			delete(s.traderConns, conn.TraderAddress)
		}
	}

	close(conn.Send)
	conn.Conn.Close()
	log.Printf("📱 WebSocket connection unregistered: trader=%s, connID=%s", conn.TraderAddress, conn.ID)
}

func (s *PushService) handleBroadcast(message PushMessage) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if message.TraderAddress != "" {
		conns, ok := s.traderConns[message.TraderAddress]
		if !ok {
			return
		}
		for _, conn := range conns {
			s.sendToConnection(conn, message)
		}
		return
	}

	for _, conn := range s.connections {
		s.sendToConnection(conn, message)
	}
}

// sendToConnection enqueues without blocking; a subscriber that cannot keep
// up loses frames rather than stalling the hub.
func (s *PushService) sendToConnection(conn *Connection, message PushMessage) {
	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("❌ Failed to marshal push message: %v", err)
		return
	}
	select {
	case conn.Send <- data:
	default:
		log.Printf("⚠️ Send buffer full, dropping frame: connID=%s, type=%s", conn.ID, message.Type)
	}
}

func (s *PushService) writePump(conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Conn.Close()
	}()

	for {
		select {
		case data, ok := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *PushService) readPump(conn *Connection) {
	defer func() {
		s.unregister <- conn
	}()

	conn.Conn.SetReadLimit(1024)
	conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.Conn.SetPongHandler(func(string) error {
		conn.LastPing = time.Now()
		conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// Inbound frames are ignored; the feed is push-only.
	for {
		if _, _, err := conn.Conn.ReadMessage(); err != nil {
			return
		}
	}
}
