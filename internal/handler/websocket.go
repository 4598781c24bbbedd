package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/storefront/internal/catalog"
	"github.com/vyrodovalexey/storefront/internal/middleware"
	"github.com/vyrodovalexey/storefront/internal/model"
	"github.com/vyrodovalexey/storefront/internal/state"
)

// WebSocket configuration constants.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 32

	// DefaultSearchDebounce is how long a live search waits for the next
	// keystroke before querying the catalog.
	DefaultSearchDebounce = 300 * time.Millisecond
)

// WebSocketOptions tunes the WebSocket handler.
type WebSocketOptions struct {
	SearchDebounce time.Duration
	AllowedOrigins []string
}

// WebSocketHandler serves live search and cart updates over WebSocket.
type WebSocketHandler struct {
	upgrader websocket.Upgrader
	sessions Sessions
	catalog  Catalog
	debounce time.Duration
	logger   *zap.Logger
	mu       sync.RWMutex
	clients  map[*wsClient]struct{}
}

// wsClient is one live connection. Every write goes through send so that
// writePump is the only writer.
type wsClient struct {
	conn   *websocket.Conn
	send   chan model.WebSocketMessage
	ctx    context.Context
	cancel context.CancelFunc
	seq    catalog.Sequencer
}

// NewWebSocketHandler creates a new WebSocketHandler instance.
func NewWebSocketHandler(sessions Sessions, cat Catalog, opts WebSocketOptions, logger *zap.Logger) *WebSocketHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.SearchDebounce < 0 {
		opts.SearchDebounce = 0
	}
	return &WebSocketHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(opts.AllowedOrigins),
		},
		sessions: sessions,
		catalog:  cat,
		debounce: opts.SearchDebounce,
		logger:   logger,
		clients:  make(map[*wsClient]struct{}),
	}
}

// RegisterRoutes registers the WebSocket routes with the router.
func (h *WebSocketHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/ws", h.HandleWebSocket).Methods(http.MethodGet)
}

// HandleWebSocket upgrades the connection, subscribes it to the session's
// cart and starts its pumps.
//
//nolint:contextcheck // WebSocket connections outlive the HTTP request context
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.GetSessionID(r.Context())
	if sessionID == "" {
		writeError(w, h.logger, http.StatusBadRequest, errMissingSession.Error())
		return
	}
	store := h.sessions.Get(r.Context(), sessionID)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}

	// The HTTP request context ends when this handler returns.
	ctx, cancel := context.WithCancel(context.Background())
	client := &wsClient{
		conn:   conn,
		send:   make(chan model.WebSocketMessage, sendBuffer),
		ctx:    ctx,
		cancel: cancel,
	}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	unsubscribe := store.Watch(func(snap state.Snapshot) {
		h.enqueue(client, model.NewCartUpdatedMessage(state.NewCartView(snap)))
	})

	h.logger.Info("websocket client connected",
		zap.String("remote_addr", conn.RemoteAddr().String()),
		zap.String("session_id", sessionID),
	)

	go h.writePump(client)
	go h.readPump(client, unsubscribe)
}

// readPump handles incoming messages until the connection fails or closes.
func (h *WebSocketHandler) readPump(client *wsClient, unsubscribe func()) {
	defer func() {
		unsubscribe()
		client.seq.Stop()
		h.removeClient(client)
		if err := client.conn.Close(); err != nil {
			h.logger.Debug("error closing connection", zap.Error(err))
		}
	}()

	conn := client.conn
	conn.SetReadLimit(maxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		h.logger.Error("failed to set read deadline", zap.Error(err))
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}

		var msg model.WebSocketMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("invalid websocket message", zap.Error(err))
			h.enqueue(client, model.NewErrorMessage("invalid message"))
			continue
		}

		switch msg.Type {
		case model.WSMessageTypeSearch:
			h.startSearch(client, msg)
		default:
			h.enqueue(client, model.NewErrorMessage("unknown message type: "+msg.Type))
		}
	}
}

// startSearch supersedes the client's previous search with msg. The result
// echoes the client's seq, or the server ticket when the client sent none.
func (h *WebSocketHandler) startSearch(client *wsClient, msg model.WebSocketMessage) {
	ctx, ticket := client.seq.Begin(client.ctx)
	seq := msg.Seq
	if seq == 0 {
		seq = ticket
	}

	go func() {
		defer client.seq.Finish(ticket)

		if h.debounce > 0 {
			timer := time.NewTimer(h.debounce)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}

		products := h.catalog.Search(ctx, msg.Query)
		if ctx.Err() != nil {
			return
		}

		delivered := client.seq.Deliver(ticket, func() {
			h.enqueueWait(ctx, client, model.NewSearchResultsMessage(seq, msg.Query, products))
		})
		if !delivered {
			h.logger.Debug("dropped superseded search", zap.String("query", msg.Query))
		}
	}()
}

// writePump is the only writer of the connection: queued messages and pings.
func (h *WebSocketHandler) writePump(client *wsClient) {
	pingTicker := time.NewTicker(pingPeriod)
	defer func() {
		pingTicker.Stop()
		client.cancel()
	}()

	for {
		select {
		case <-client.ctx.Done():
			h.sendCloseMessage(client.conn)
			return
		case msg := <-client.send:
			if err := h.sendMessage(client.conn, msg); err != nil {
				h.logger.Debug("failed to send message", zap.String("type", msg.Type), zap.Error(err))
				return
			}
		case <-pingTicker.C:
			if err := h.sendPing(client.conn); err != nil {
				h.logger.Debug("failed to send ping", zap.Error(err))
				return
			}
		}
	}
}

// enqueue queues msg without blocking. It is used from cart listeners,
// which run on the mutating request, so a slow client loses the update
// instead of stalling the request.
func (h *WebSocketHandler) enqueue(client *wsClient, msg model.WebSocketMessage) {
	select {
	case client.send <- msg:
	case <-client.ctx.Done():
	default:
		h.logger.Warn("websocket send buffer full, dropping message", zap.String("type", msg.Type))
	}
}

// enqueueWait queues msg, waiting until there is room or ctx ends.
func (h *WebSocketHandler) enqueueWait(ctx context.Context, client *wsClient, msg model.WebSocketMessage) {
	select {
	case client.send <- msg:
	case <-ctx.Done():
	case <-client.ctx.Done():
	}
}

func (h *WebSocketHandler) sendMessage(conn *websocket.Conn, msg model.WebSocketMessage) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}

func (h *WebSocketHandler) sendPing(conn *websocket.Conn) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.PingMessage, nil)
}

func (h *WebSocketHandler) sendCloseMessage(conn *websocket.Conn) {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		h.logger.Debug("failed to set write deadline for close", zap.Error(err))
		return
	}

	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "server shutting down")
	if err := conn.WriteMessage(websocket.CloseMessage, closeMsg); err != nil {
		h.logger.Debug("failed to send close message", zap.Error(err))
	}
}

func (h *WebSocketHandler) removeClient(client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.clients[client]; exists {
		client.cancel()
		delete(h.clients, client)
		h.logger.Info("websocket client disconnected", zap.String("remote_addr", client.conn.RemoteAddr().String()))
	}
}

// ClientCount returns the number of connected clients.
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAllConnections closes all active WebSocket connections.
func (h *WebSocketHandler) CloseAllConnections() {
	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	// Cancelling makes each writePump send its close frame.
	for _, client := range clients {
		client.cancel()
	}

	time.Sleep(100 * time.Millisecond)

	h.mu.Lock()
	for client := range h.clients {
		if err := client.conn.Close(); err != nil {
			h.logger.Debug("error closing connection", zap.Error(err))
		}
		delete(h.clients, client)
	}
	h.mu.Unlock()

	h.logger.Info("all websocket connections closed")
}

// originChecker allows the listed origins, or every origin when the list is
// empty or contains "*".
func originChecker(allowed []string) func(*http.Request) bool {
	origins := make(map[string]bool, len(allowed))
	for _, origin := range allowed {
		origins[origin] = true
	}
	if len(origins) == 0 || origins["*"] {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || origins[origin]
	}
}
