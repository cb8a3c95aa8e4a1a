package webui

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"livevlm/inference"
	"livevlm/telemetry"
)

// Broadcaster fans WebSocket messages out to every connected dashboard
// client. It never drives sampling or inference itself: callers push
// messages in and the broadcaster only distributes them.
//
// Thread-safe for concurrent connections and broadcasts.
type Broadcaster struct {
	// clients maps connections to per-client state.
	clients map[*websocket.Conn]clientInfo

	// clientsMu protects the clients map.
	clientsMu sync.RWMutex

	// broadcast receives messages to fan out to all clients.
	broadcast chan WSMessage

	// register and unregister serialize client lifecycle changes
	// through the Start loop.
	register   chan registration
	unregister chan *websocket.Conn

	upgrader websocket.Upgrader

	pingInterval   time.Duration
	pongWait       time.Duration
	writeWait      time.Duration
	maxMessageSize int64
	sendBufferSize int

	// initialState, when set, produces the snapshot sent to each client
	// right after it registers.
	initialState func() InitialData

	logger *zap.Logger
}

// registration pairs a new connection with a channel closed once the
// client is in the map, so the initial state is never sent early.
type registration struct {
	conn  *websocket.Conn
	ready chan struct{}
}

// clientInfo stores per-client connection state.
type clientInfo struct {
	id          string
	connectedAt time.Time
	remoteAddr  string
	send        chan []byte
}

// BroadcasterConfig holds tuning knobs for the Broadcaster.
type BroadcasterConfig struct {
	// PingInterval is how often to send ping frames (default: 30s).
	PingInterval time.Duration

	// PongWait is how long to wait for a pong response (default: 60s).
	PongWait time.Duration

	// WriteWait is the time allowed to write one message (default: 10s).
	WriteWait time.Duration

	// MaxMessageSize is the max inbound message size (default: 512 bytes).
	MaxMessageSize int64

	// BroadcastBufferSize is the broadcast channel buffer (default: 256).
	BroadcastBufferSize int

	// ClientSendBufferSize is the per-client send buffer (default: 256).
	ClientSendBufferSize int

	// InitialState, when non-nil, is called on each new connection to
	// build the initial snapshot message.
	InitialState func() InitialData

	// Logger for connection lifecycle events.
	Logger *zap.Logger
}

// DefaultBroadcasterConfig returns the default configuration.
func DefaultBroadcasterConfig() BroadcasterConfig {
	return BroadcasterConfig{
		PingInterval:         30 * time.Second,
		PongWait:             60 * time.Second,
		WriteWait:            10 * time.Second,
		MaxMessageSize:       512,
		BroadcastBufferSize:  256,
		ClientSendBufferSize: 256,
	}
}

// NewBroadcaster creates a Broadcaster with default configuration.
// Call Start to begin processing messages.
func NewBroadcaster(logger *zap.Logger) *Broadcaster {
	cfg := DefaultBroadcasterConfig()
	cfg.Logger = logger
	return NewBroadcasterWithConfig(cfg)
}

// NewBroadcasterWithConfig creates a Broadcaster with custom configuration.
func NewBroadcasterWithConfig(config BroadcasterConfig) *Broadcaster {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.PingInterval <= 0 {
		config.PingInterval = 30 * time.Second
	}
	if config.BroadcastBufferSize <= 0 {
		config.BroadcastBufferSize = 256
	}
	if config.ClientSendBufferSize <= 0 {
		config.ClientSendBufferSize = 256
	}

	return &Broadcaster{
		clients:        make(map[*websocket.Conn]clientInfo),
		broadcast:      make(chan WSMessage, config.BroadcastBufferSize),
		register:       make(chan registration),
		unregister:     make(chan *websocket.Conn),
		pingInterval:   config.PingInterval,
		pongWait:       config.PongWait,
		writeWait:      config.WriteWait,
		maxMessageSize: config.MaxMessageSize,
		sendBufferSize: config.ClientSendBufferSize,
		initialState:   config.InitialState,
		logger:         config.Logger.Named("ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Same-origin deployment: the dashboard is served by this
			// process, so any origin is accepted.
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Start runs the broadcast loop until the context is cancelled.
// It handles client registration, message fan-out, and periodic pings.
func (b *Broadcaster) Start(ctx context.Context) {
	pingTicker := time.NewTicker(b.pingInterval)
	defer pingTicker.Stop()

	b.logger.Info("broadcaster started")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("broadcaster stopping")
			b.closeAllClients()
			return

		case reg := <-b.register:
			b.addClient(reg.conn)
			close(reg.ready)

		case conn := <-b.unregister:
			b.removeClient(conn)

		case msg := <-b.broadcast:
			b.broadcastToAll(msg)

		case <-pingTicker.C:
			b.sendPingToAll()
		}
	}
}

// HandleConnection upgrades an HTTP request to a WebSocket connection,
// registers the client, and sends it the initial state snapshot.
func (b *Broadcaster) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("websocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err))
		return
	}

	conn.SetReadLimit(b.maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(b.pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(b.pongWait))
		return nil
	})

	reg := registration{conn: conn, ready: make(chan struct{})}
	b.register <- reg
	<-reg.ready

	if b.initialState != nil {
		b.sendToClient(conn, NewInitialMessage(b.initialState()))
	}

	go b.readPump(conn)
}

// BroadcastMessage queues a message for delivery to all clients.
// Non-blocking: if the broadcast buffer is full the message is dropped.
func (b *Broadcaster) BroadcastMessage(msg WSMessage) {
	select {
	case b.broadcast <- msg:
	default:
		b.logger.Warn("broadcast buffer full, dropping message",
			zap.String("type", msg.Type))
	}
}

// BroadcastStats broadcasts a telemetry snapshot to all clients.
func (b *Broadcaster) BroadcastStats(snap telemetry.Snapshot) {
	b.BroadcastMessage(NewStatsUpdateMessage(snap))
}

// BroadcastVLMResponse broadcasts the current inference result.
func (b *Broadcaster) BroadcastVLMResponse(res inference.Result) {
	b.BroadcastMessage(NewVLMResponseMessage(res))
}

// ClientCount returns the number of connected clients.
func (b *Broadcaster) ClientCount() int {
	b.clientsMu.RLock()
	defer b.clientsMu.RUnlock()
	return len(b.clients)
}

// Close disconnects all clients.
func (b *Broadcaster) Close() {
	b.closeAllClients()
}

func (b *Broadcaster) addClient(conn *websocket.Conn) {
	b.clientsMu.Lock()
	defer b.clientsMu.Unlock()

	info := clientInfo{
		id:          uuid.New().String(),
		connectedAt: time.Now(),
		remoteAddr:  conn.RemoteAddr().String(),
		send:        make(chan []byte, b.sendBufferSize),
	}
	b.clients[conn] = info

	go b.writePump(conn, info.send)

	b.logger.Info("client connected",
		zap.String("client_id", info.id),
		zap.String("remote_addr", info.remoteAddr),
		zap.Int("total", len(b.clients)))
}

func (b *Broadcaster) removeClient(conn *websocket.Conn) {
	b.clientsMu.Lock()
	defer b.clientsMu.Unlock()

	if info, ok := b.clients[conn]; ok {
		close(info.send)
		delete(b.clients, conn)
		conn.Close()
		b.logger.Info("client disconnected",
			zap.String("client_id", info.id),
			zap.Int("total", len(b.clients)))
	}
}

func (b *Broadcaster) broadcastToAll(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("marshal broadcast message", zap.Error(err))
		return
	}

	b.clientsMu.RLock()
	defer b.clientsMu.RUnlock()

	for conn, info := range b.clients {
		select {
		case info.send <- data:
		default:
			// Slow consumer: close it rather than block the loop.
			b.logger.Warn("client send buffer full, closing",
				zap.String("client_id", info.id))
			go func(c *websocket.Conn) {
				b.unregister <- c
			}(conn)
		}
	}
}

func (b *Broadcaster) sendToClient(conn *websocket.Conn, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("marshal message", zap.Error(err))
		return
	}

	b.clientsMu.RLock()
	info, ok := b.clients[conn]
	b.clientsMu.RUnlock()

	if ok {
		select {
		case info.send <- data:
		default:
			b.logger.Warn("client send buffer full",
				zap.String("client_id", info.id))
		}
	}
}

func (b *Broadcaster) sendPingToAll() {
	b.clientsMu.RLock()
	defer b.clientsMu.RUnlock()

	for conn, info := range b.clients {
		conn.SetWriteDeadline(time.Now().Add(b.writeWait))
		if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
			b.logger.Warn("ping failed",
				zap.String("client_id", info.id),
				zap.Error(err))
			go func(c *websocket.Conn) {
				b.unregister <- c
			}(conn)
		}
	}
}

func (b *Broadcaster) closeAllClients() {
	b.clientsMu.Lock()
	defer b.clientsMu.Unlock()

	for conn, info := range b.clients {
		close(info.send)
		conn.Close()
		delete(b.clients, conn)
	}

	b.logger.Info("all clients disconnected")
}

// readPump drains inbound frames so pong handlers fire and close frames
// are observed. Client payloads are otherwise ignored.
func (b *Broadcaster) readPump(conn *websocket.Conn) {
	defer func() {
		b.unregister <- conn
	}()

	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				b.logger.Debug("unexpected close", zap.Error(err))
			}
			break
		}
	}
}

// writePump delivers queued messages to a single client.
func (b *Broadcaster) writePump(conn *websocket.Conn, send <-chan []byte) {
	defer conn.Close()

	for message := range send {
		conn.SetWriteDeadline(time.Now().Add(b.writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
			b.logger.Debug("write error", zap.Error(err))
			return
		}
	}

	conn.SetWriteDeadline(time.Now().Add(b.writeWait))
	conn.WriteMessage(websocket.CloseMessage, []byte{})
}
