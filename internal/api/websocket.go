package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/academia-core/internal/auth"
	"github.com/nerrad567/academia-core/internal/course"
	"github.com/nerrad567/academia-core/internal/infrastructure/config"
	"github.com/nerrad567/academia-core/internal/infrastructure/logging"
)

// WebSocket constants.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeWhoAmI      = "whoami"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	// wsSendBufferSize is the per-client outbound message buffer size.
	wsSendBufferSize = 256

	// closeWriteWait bounds how long a close frame may take to send.
	closeWriteWait = time.Second
)

// channelOperations maps each subscribable channel to the operation the
// role gate checks on subscribe.
var channelOperations = map[string]auth.Operation{
	course.ChannelCourseEvents:     auth.OpSubscribeCourseEvents,
	course.ChannelEnrollmentEvents: auth.OpSubscribeEnrollmentEvents,
}

// channelFilters decides per client whether an event on a channel may be
// delivered. Channels without a filter go to every subscriber.
var channelFilters = map[string]func(id *auth.Identity, payload any) bool{
	course.ChannelEnrollmentEvents: enrollmentVisible,
}

// enrollmentVisible lets admins see every enrollment event and students
// only events about their own enrollments.
func enrollmentVisible(id *auth.Identity, payload any) bool {
	if id == nil {
		return false
	}
	if id.Role == auth.RoleAdmin {
		return true
	}
	var e *course.Enrollment
	switch ev := payload.(type) {
	case course.Event:
		e = ev.Enrollment
	case *course.Event:
		if ev != nil {
			e = ev.Enrollment
		}
	}
	return e != nil && e.StudentID == id.UserID
}

// WSMessage represents a message sent to/from a WebSocket client.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	Channel   string `json:"channel,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// Hub manages WebSocket connections and broadcasts events. It implements
// course.Notifier.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	policy  *auth.Policy
	clients map[*WSClient]struct{}
	mu      sync.RWMutex

	// onForbidden is called when the role gate refuses a subscription.
	onForbidden  func(id *auth.Identity, op auth.Operation, err error)
	clientsGauge prometheus.Gauge
	now          func() time.Time
}

// WSClient represents a connected WebSocket client.
type WSClient struct {
	hub           *Hub
	conn          *websocket.Conn
	send          chan []byte
	subscriptions map[string]struct{}
	mu            sync.RWMutex

	// ctx carries the identity verified on the handshake. Message handlers
	// read it with auth.ActiveUser like HTTP handlers do.
	ctx context.Context
}

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// NewHub creates a new WebSocket hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger, policy *auth.Policy) *Hub {
	if policy == nil {
		policy = auth.DefaultPolicy()
	}
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		policy:  policy,
		clients: make(map[*WSClient]struct{}),
		now:     time.Now,
	}
}

// Run starts the hub's main loop. It blocks until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.setGauge(n)
	h.logger.Debug("websocket client connected", "clients", n)
}

// Unregister removes a client from the hub.
// Only the goroutine that successfully removes the client from the map
// closes the send channel, preventing double-close panics during shutdown.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	n := len(h.clients)
	h.mu.Unlock()

	if existed {
		close(client.send)
	}
	h.setGauge(n)
	h.logger.Debug("websocket client disconnected", "clients", n)
}

func (h *Hub) setGauge(n int) {
	if h.clientsGauge != nil {
		h.clientsGauge.Set(float64(n))
	}
}

// Publish implements course.Notifier.
func (h *Hub) Publish(channel string, event course.Event) {
	h.Broadcast(channel, event)
}

// Broadcast sends an event to the clients subscribed to the given channel
// that the channel's filter, if any, allows to see it.
// Lock ordering: hub lock is acquired first, then released before per-client
// subscription checks. This avoids holding both hub and client locks simultaneously.
func (h *Hub) Broadcast(channel string, payload any) {
	msg := WSMessage{
		Type:      WSTypeEvent,
		Channel:   channel,
		Timestamp: h.now().UTC().Format(time.RFC3339),
		Payload:   payload,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "error", err)
		return
	}

	// Snapshot client list under hub lock, then release before sending
	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	visible := channelFilters[channel]
	sentCount := 0
	for _, client := range clients {
		if !client.isSubscribed(channel) {
			continue
		}
		if visible != nil && !visible(client.identity(), payload) {
			continue
		}
		client.trySend(data)
		sentCount++
	}
	if sentCount > 0 {
		h.logger.Debug("broadcast sent", "channel", channel, "recipients", sentCount)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// closeAll disconnects all clients and closes their send channels
// so writePump goroutines can exit cleanly.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, client)
	}
	h.setGauge(0)
}

// handleWebSocket authenticates the handshake with the gate and upgrades
// the connection. A rejected handshake is still upgraded so the client
// receives a policy-violation close frame carrying the gate's message.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id, err := s.gate.Authenticate(r.Context(), auth.TransportWebSocket, r.Header)
	if err != nil && r.Context().Err() != nil {
		return
	}

	conn, upErr := upgrader.Upgrade(w, r, nil)
	if upErr != nil {
		s.logger.Error("websocket upgrade failed", "error", upErr)
		return
	}

	if err != nil {
		msg := auth.MsgInvalidToken
		var rej *auth.Rejection
		if errors.As(err, &rej) {
			msg = rej.Message
		}
		closePolicyViolation(conn, msg)
		conn.Close()
		return
	}

	client := &WSClient{
		hub:           s.hub,
		conn:          conn,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
		ctx:           auth.WithIdentity(context.Background(), id),
	}

	s.hub.Register(client)

	// Start read/write pumps
	go client.writePump(s.wsCfg)
	go client.readPump(s.wsCfg)
}

// closePolicyViolation sends close code 1008 with msg as the reason.
func closePolicyViolation(conn *websocket.Conn, msg string) {
	//nolint:errcheck // Best-effort close frame; the connection is torn down regardless
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, msg),
		time.Now().Add(closeWriteWait))
}

// readPump reads messages from the WebSocket connection.
func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	pongWait := time.Duration(cfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "error", err)
			}
			return
		}

		// The handshake token may expire while the socket stays open.
		if id := auth.ActiveUser(c.ctx); id.Expired(c.hub.now()) {
			c.hub.logger.Debug("websocket token expired", "user_id", id.UserID)
			closePolicyViolation(c.conn, auth.MsgInvalidToken)
			return
		}

		// Any client message resets the read deadline (keeps connection alive
		// even if browser doesn't respond to protocol-level pings).
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		c.handleMessage(message)
	}
}

// writePump writes messages to the WebSocket connection.
func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	pongWait := time.Duration(cfg.PongTimeout) * time.Second

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				// Hub closed the channel
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes an incoming WebSocket message.
func (c *WSClient) handleMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypeSubscribe:
		c.handleSubscribe(msg)
	case WSTypeUnsubscribe:
		c.handleUnsubscribe(msg)
	case WSTypePing:
		c.sendResponse(msg.ID, WSTypePong, nil)
	case WSTypeWhoAmI:
		c.sendResponse(msg.ID, WSTypeResponse, auth.ActiveUser(c.ctx))
	default:
		c.sendError(msg.ID, "unknown message type: "+msg.Type)
	}
}

// handleSubscribe runs the role gate for the channel's operation and adds
// the channel on success.
func (c *WSClient) handleSubscribe(msg WSMessage) {
	op, ok := channelOperations[msg.Channel]
	if !ok {
		c.sendError(msg.ID, "unknown channel: "+msg.Channel)
		return
	}

	if err := c.hub.policy.AuthorizeContext(c.ctx, op); err != nil {
		if c.hub.onForbidden != nil {
			c.hub.onForbidden(auth.ActiveUser(c.ctx), op, err)
		}
		c.sendError(msg.ID, forbiddenMessage(err))
		return
	}

	c.mu.Lock()
	c.subscriptions[msg.Channel] = struct{}{}
	c.mu.Unlock()

	c.hub.logger.Debug("websocket client subscribed", "channel", msg.Channel)

	c.sendResponse(msg.ID, WSTypeResponse, map[string]any{
		"subscribed": msg.Channel,
	})
}

// handleUnsubscribe removes a channel from the client's subscription list.
func (c *WSClient) handleUnsubscribe(msg WSMessage) {
	c.mu.Lock()
	delete(c.subscriptions, msg.Channel)
	c.mu.Unlock()

	c.sendResponse(msg.ID, WSTypeResponse, map[string]any{
		"unsubscribed": msg.Channel,
	})
}

// forbiddenMessage returns the client-safe text of a role gate error.
func forbiddenMessage(err error) string {
	var fe *auth.ForbiddenError
	if errors.As(err, &fe) {
		return fe.Error()
	}
	return "Forbidden resource"
}

// trySend attempts to send data to the client's send channel.
// It silently handles closed channels (client disconnected during broadcast)
// and full buffers (slow client).
func (c *WSClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel panic
	}()

	select {
	case c.send <- data:
	default:
		// Client buffer full, skip
	}
}

// isSubscribed checks if the client is subscribed to a channel.
func (c *WSClient) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subscriptions[channel]
	return ok
}

// identity returns the identity verified on the handshake, or nil.
func (c *WSClient) identity() *auth.Identity {
	if c.ctx == nil {
		return nil
	}
	return auth.ActiveUser(c.ctx)
}

// sendResponse sends a response message to the client.
// Routes through trySend to safely handle closed channels during shutdown.
func (c *WSClient) sendResponse(id, msgType string, payload any) {
	msg := WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: c.hub.now().UTC().Format(time.RFC3339),
		Payload:   payload,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.trySend(data)
}

// sendError sends an error message to the client.
func (c *WSClient) sendError(id, message string) {
	c.sendResponse(id, WSTypeError, map[string]string{"message": message})
}
