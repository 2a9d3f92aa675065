package realtime

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/chorusapp/chorus-go/pkg/errors"
	"github.com/chorusapp/chorus-go/pkg/logger"
)

// Socket is the shared event connection the realtime layer is built
// on. The process holds exactly one physical connection; channels
// multiplex over it by room id. Connection-state changes are delivered
// as EventConnect / EventDisconnect messages.
type Socket interface {
	// On subscribes to an event type and returns its unsubscribe func.
	// Handlers run in socket read order; they must not block.
	On(eventType EventType, handler func(*Message)) func()

	// Emit sends an event to the server
	Emit(eventType EventType, roomID string, payload interface{}) error

	// JoinRoom requests membership in a logical room
	JoinRoom(roomID string) error

	// LeaveRoom gives up membership in a logical room
	LeaveRoom(roomID string) error
}

// SocketConfig holds socket connection configuration
type SocketConfig struct {
	Host                 string
	Port                 int
	Path                 string
	UseTLS               bool
	ConnectTimeout       time.Duration
	HeartbeatInterval    time.Duration
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	MaxReconnectAttempts int // negative means unlimited
}

// DefaultSocketConfig returns a development configuration
func DefaultSocketConfig() SocketConfig {
	return SocketConfig{
		Host:                 "localhost",
		Port:                 8686,
		Path:                 "/api/v1/ws",
		UseTLS:               false,
		ConnectTimeout:       15 * time.Second,
		HeartbeatInterval:    30 * time.Second,
		ReconnectBaseDelay:   2 * time.Second,
		ReconnectMaxDelay:    30 * time.Second,
		MaxReconnectAttempts: -1,
	}
}

// ConnectionState represents the state of the socket connection
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateError
)

// String implements Stringer for ConnectionState
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// ConnectionStats holds connection statistics
type ConnectionStats struct {
	MessagesReceived int64
	MessagesSent     int64
	ReconnectCount   int64
	ConnectedAt      time.Time
	DisconnectedAt   time.Time
	LastPongLatency  time.Duration
}

type listener struct {
	id int
	fn func(*Message)
}

// WebSocket is the gorilla-backed Socket implementation with
// heartbeat and exponential-backoff reconnect
type WebSocket struct {
	config SocketConfig
	token  string

	mu   sync.RWMutex
	conn *websocket.Conn

	state atomic.Value // ConnectionState

	listenersMu  sync.RWMutex
	listeners    map[EventType][]listener
	nextListener int

	// reconnect bookkeeping, guarded by mu
	reconnectAttempts int
	reconnectDelay    time.Duration

	rx        atomic.Int64
	tx        atomic.Int64
	reconnect atomic.Int64
	statsMu   sync.Mutex
	stats     ConnectionStats

	ctx    context.Context
	cancel context.CancelFunc
	log    *zap.Logger
}

// NewWebSocket creates a socket in the Disconnected state
func NewWebSocket(config SocketConfig) *WebSocket {
	ctx, cancel := context.WithCancel(context.Background())
	ws := &WebSocket{
		config:         config,
		listeners:      make(map[EventType][]listener),
		reconnectDelay: config.ReconnectBaseDelay,
		ctx:            ctx,
		cancel:         cancel,
		log:            logger.Log,
	}
	ws.state.Store(StateDisconnected)
	return ws
}

// SetAuthToken sets the token appended to the dial URL
func (ws *WebSocket) SetAuthToken(token string) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.token = token
}

// Connect establishes the connection and starts the read and
// heartbeat loops
func (ws *WebSocket) Connect() error {
	ws.setState(StateConnecting)

	conn, err := ws.dial()
	if err != nil {
		ws.setState(StateError)
		return errors.ConnectionLost(err)
	}

	ws.mu.Lock()
	ws.conn = conn
	ws.mu.Unlock()

	ws.setState(StateConnected)
	ws.resetReconnectState()
	ws.recordConnected()

	go ws.readLoop()
	go ws.heartbeatLoop()

	ws.log.Debug("socket connected",
		zap.String("host", ws.config.Host),
		zap.Int("port", ws.config.Port))

	ws.dispatch(NewMessage(EventConnect, "", nil))
	return nil
}

// Disconnect closes the connection permanently (no reconnect)
func (ws *WebSocket) Disconnect() error {
	ws.cancel()

	ws.mu.Lock()
	if ws.conn != nil {
		ws.conn.Close()
		ws.conn = nil
	}
	ws.mu.Unlock()

	ws.setState(StateDisconnected)
	ws.recordDisconnected()

	ws.log.Debug("socket disconnected")
	return nil
}

// State returns the current connection state
func (ws *WebSocket) State() ConnectionState {
	return ws.state.Load().(ConnectionState)
}

// IsConnected returns true if the connection is established
func (ws *WebSocket) IsConnected() bool {
	return ws.State() == StateConnected
}

// On subscribes to an event type
func (ws *WebSocket) On(eventType EventType, handler func(*Message)) func() {
	ws.listenersMu.Lock()
	id := ws.nextListener
	ws.nextListener++
	ws.listeners[eventType] = append(ws.listeners[eventType], listener{id: id, fn: handler})
	ws.listenersMu.Unlock()

	return func() {
		ws.listenersMu.Lock()
		defer ws.listenersMu.Unlock()

		current := ws.listeners[eventType]
		for i, l := range current {
			if l.id == id {
				ws.listeners[eventType] = append(current[:i], current[i+1:]...)
				break
			}
		}
	}
}

// Emit sends an event to the server
func (ws *WebSocket) Emit(eventType EventType, roomID string, payload interface{}) error {
	ws.mu.RLock()
	conn := ws.conn
	ws.mu.RUnlock()

	if conn == nil {
		return errors.ConnectionLost(fmt.Errorf("not connected"))
	}

	data, err := json.Marshal(NewMessage(eventType, roomID, payload))
	if err != nil {
		return err
	}

	ws.mu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	ws.mu.Unlock()

	if err != nil {
		return errors.ConnectionLost(err)
	}

	ws.tx.Add(1)
	return nil
}

// JoinRoom requests membership in a logical room
func (ws *WebSocket) JoinRoom(roomID string) error {
	return ws.Emit(EventRoomJoin, roomID, RoomPayload{RoomID: roomID})
}

// LeaveRoom gives up membership in a logical room
func (ws *WebSocket) LeaveRoom(roomID string) error {
	return ws.Emit(EventRoomLeave, roomID, RoomPayload{RoomID: roomID})
}

// Stats returns a snapshot of connection statistics
func (ws *WebSocket) Stats() ConnectionStats {
	ws.statsMu.Lock()
	snapshot := ws.stats
	ws.statsMu.Unlock()

	snapshot.MessagesReceived = ws.rx.Load()
	snapshot.MessagesSent = ws.tx.Load()
	snapshot.ReconnectCount = ws.reconnect.Load()
	return snapshot
}

func (ws *WebSocket) dial() (*websocket.Conn, error) {
	scheme := "ws"
	if ws.config.UseTLS {
		scheme = "wss"
	}

	u := url.URL{
		Scheme: scheme,
		Host:   fmt.Sprintf("%s:%d", ws.config.Host, ws.config.Port),
		Path:   ws.config.Path,
	}

	ws.mu.RLock()
	token := ws.token
	ws.mu.RUnlock()

	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}

	dialCtx, cancel := context.WithTimeout(ws.ctx, ws.config.ConnectTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, u.String(), nil)
	return conn, err
}

func (ws *WebSocket) readLoop() {
	defer ws.handleDisconnect()

	for {
		select {
		case <-ws.ctx.Done():
			return
		default:
		}

		ws.mu.RLock()
		conn := ws.conn
		ws.mu.RUnlock()

		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if ws.ctx.Err() == nil {
				ws.log.Warn("socket read error", zap.Error(err))
			}
			return
		}

		ws.rx.Add(1)

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			// Malformed events are dropped and logged, never fatal
			ws.log.Warn("dropping malformed event", zap.Error(errors.MalformedEvent("envelope", err)))
			continue
		}

		if msg.Type == EventPong {
			ws.recordPong(&msg)
		}

		// Dispatch in read order: the transport's send-order guarantee
		// must survive to the reconciler.
		ws.dispatch(&msg)
	}
}

func (ws *WebSocket) heartbeatLoop() {
	ticker := time.NewTicker(ws.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ws.ctx.Done():
			return
		case <-ticker.C:
			if ws.IsConnected() {
				err := ws.Emit(EventHeartbeat, "", HeartbeatPayload{
					ClientTime: time.Now().UnixMilli(),
				})
				if err != nil {
					ws.log.Debug("failed to send heartbeat", zap.Error(err))
				}
			}
		}
	}
}

// handleDisconnect transitions to Reconnecting and retries the dial
// with exponential backoff plus jitter
func (ws *WebSocket) handleDisconnect() {
	ws.mu.Lock()
	if ws.conn != nil {
		ws.conn.Close()
		ws.conn = nil
	}
	ws.mu.Unlock()

	if ws.ctx.Err() != nil {
		return
	}

	ws.setState(StateReconnecting)
	ws.recordDisconnected()
	ws.dispatch(NewMessage(EventDisconnect, "", nil))

	for {
		if ws.reconnectExhausted() {
			ws.setState(StateError)
			ws.log.Error("max reconnection attempts reached")
			return
		}

		waitTime := ws.nextReconnectWait()
		ws.log.Debug("reconnecting socket", zap.Int64("wait_ms", waitTime.Milliseconds()))

		select {
		case <-ws.ctx.Done():
			return
		case <-time.After(waitTime):
		}

		conn, err := ws.dial()
		if err != nil {
			ws.recordReconnectFailure()
			continue
		}

		ws.mu.Lock()
		ws.conn = conn
		ws.mu.Unlock()

		ws.setState(StateConnected)
		ws.resetReconnectState()
		ws.reconnect.Add(1)
		ws.recordConnected()

		ws.log.Debug("socket reconnected")

		go ws.readLoop()
		ws.dispatch(NewMessage(EventConnect, "", nil))
		return
	}
}

// dispatch delivers a message to subscribed listeners in order
func (ws *WebSocket) dispatch(msg *Message) {
	ws.listenersMu.RLock()
	current := make([]listener, len(ws.listeners[msg.Type]))
	copy(current, ws.listeners[msg.Type])
	ws.listenersMu.RUnlock()

	for _, l := range current {
		l.fn(msg)
	}
}

func (ws *WebSocket) setState(state ConnectionState) {
	ws.state.Store(state)
}

func (ws *WebSocket) recordConnected() {
	ws.statsMu.Lock()
	ws.stats.ConnectedAt = time.Now()
	ws.statsMu.Unlock()
}

// reconnectExhausted reports whether the attempt budget ran out.
// Negative MaxReconnectAttempts means unlimited.
func (ws *WebSocket) reconnectExhausted() bool {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.config.MaxReconnectAttempts >= 0 && ws.reconnectAttempts >= ws.config.MaxReconnectAttempts
}

// nextReconnectWait returns the current backoff delay plus jitter
func (ws *WebSocket) nextReconnectWait() time.Duration {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.reconnectDelay + time.Duration(rand.Intn(1000))*time.Millisecond
}

// recordReconnectFailure doubles the backoff delay up to the cap
func (ws *WebSocket) recordReconnectFailure() {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.reconnectAttempts++
	ws.reconnectDelay = time.Duration(math.Min(
		float64(ws.reconnectDelay*2),
		float64(ws.config.ReconnectMaxDelay),
	))
}

// resetReconnectState restores the backoff to its base after a
// successful connection
func (ws *WebSocket) resetReconnectState() {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.reconnectAttempts = 0
	ws.reconnectDelay = ws.config.ReconnectBaseDelay
}

// recordPong derives round-trip latency from the echoed client time
func (ws *WebSocket) recordPong(msg *Message) {
	var payload HeartbeatPayload
	if err := msg.ParsePayload(&payload); err != nil || payload.ClientTime == 0 {
		return
	}

	latency := time.Since(time.UnixMilli(payload.ClientTime))
	ws.statsMu.Lock()
	ws.stats.LastPongLatency = latency
	ws.statsMu.Unlock()
}

func (ws *WebSocket) recordDisconnected() {
	ws.statsMu.Lock()
	ws.stats.DisconnectedAt = time.Now()
	ws.statsMu.Unlock()
}
