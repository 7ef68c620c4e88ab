// File: internal/transport/hub.go
package transport

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wayfinder-cli/api/schemas"
	"github.com/xkilldash9x/wayfinder-cli/internal/agent"
	"github.com/xkilldash9x/wayfinder-cli/internal/observability"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024

	clientSendBuffer = 256
	broadcastBuffer  = 256
)

// Inbound message types.
const (
	MsgStartTask    = "start_task"
	MsgUserResponse = "user_response"
)

// InboundMessage is a frame sent by a chat client.
type InboundMessage struct {
	Type     string `json:"type"`
	Goal     string `json:"goal,omitempty"`
	Response string `json:"response,omitempty"`
}

// TaskController is the part of agent.Controller the hub drives.
type TaskController interface {
	StartTask(goal string) (*agent.Task, error)
	Reply(text string) error
	Current() (*agent.Task, bool)
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	// Buffered channel of outbound messages.
	send chan []byte
}

// Hub fans agent events out to every connected chat client and routes
// inbound frames to the task controller. It implements schemas.HumanChannel.
type Hub struct {
	controller TaskController
	metrics    *observability.Metrics
	logger     *zap.Logger
	upgrader   websocket.Upgrader

	clients    map[*Client]bool
	broadcast  chan []byte
	unicast    chan unicastMessage
	register   chan *Client
	unregister chan *Client
	connected  atomic.Int64
	done       chan struct{}
	doneOnce   sync.Once
	wg         sync.WaitGroup
}

var _ schemas.HumanChannel = (*Hub)(nil)

type unicastMessage struct {
	client  *Client
	message []byte
}

// NewHub creates a hub. An empty allowedOrigins accepts any origin.
func NewHub(controller TaskController, allowedOrigins []string, metrics *observability.Metrics, logger *zap.Logger) *Hub {
	h := &Hub{
		controller: controller,
		metrics:    metrics,
		logger:     logger.Named("ws_hub"),
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, broadcastBuffer),
		unicast:    make(chan unicastMessage),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

// SetController binds the controller after construction. The serve command
// needs this because the agent it controls emits through the hub.
func (h *Hub) SetController(controller TaskController) {
	h.controller = controller
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(strings.ToLower(o), "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[strings.TrimRight(strings.ToLower(origin), "/")]
		return ok
	}
}

// Run serves registrations and broadcasts until ctx is done, then closes
// every client and waits for their pumps to exit.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("WebSocket hub started.")
	defer h.logger.Info("WebSocket hub stopped.")
	defer h.wg.Wait()
	defer h.doneOnce.Do(func() { close(h.done) })

	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.drop(client)
			}
			return
		case client := <-h.register:
			h.clients[client] = true
			h.connected.Add(1)
			h.metrics.ClientConnected(1)
			h.logger.Info("New WebSocket client connected.", zap.String("client_id", client.id))
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				h.logger.Info("WebSocket client disconnected.", zap.String("client_id", client.id))
			}
		case u := <-h.unicast:
			if _, ok := h.clients[u.client]; ok {
				select {
				case u.client.send <- u.message:
				default:
				}
			}
		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					h.logger.Warn("Client send buffer full; disconnecting.", zap.String("client_id", client.id))
					h.drop(client)
				}
			}
		}
	}
}

// drop must only be called from Run.
func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	close(client.send)
	h.connected.Add(-1)
	h.metrics.ClientConnected(-1)
}

// ClientCount reports how many chat clients are registered.
func (h *Hub) ClientCount() int {
	return int(h.connected.Load())
}

// Emit implements schemas.HumanChannel. It never blocks the agent loop: when
// the broadcast queue is full the event is dropped.
func (h *Hub) Emit(ctx context.Context, ev schemas.Event) {
	message, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("Failed to marshal event", zap.Error(err))
		return
	}
	select {
	case <-h.done:
	case h.broadcast <- message:
	default:
		h.logger.Warn("Broadcast queue full; dropping event.", zap.String("type", string(ev.Type)))
	}
}

// HandleWS handles websocket requests from the peer.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}
	client := &Client{
		id:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, clientSendBuffer),
	}

	h.wg.Add(2)
	select {
	case h.register <- client:
	case <-h.done:
		h.wg.Add(-2)
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump pumps messages from the websocket connection to the controller.
func (c *Client) readPump() {
	defer c.hub.wg.Done()
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("Websocket client read error", zap.Error(err))
			}
			return
		}

		var msg InboundMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.hub.logger.Error("Failed to unmarshal incoming message", zap.Error(err), zap.ByteString("message", message))
			continue
		}
		c.hub.handleInbound(c, msg)
	}
}

// handleInbound runs on the client's read goroutine, never on the agent loop.
func (h *Hub) handleInbound(c *Client, msg InboundMessage) {
	logger := h.logger.With(zap.String("client_id", c.id), zap.String("type", msg.Type))
	switch msg.Type {
	case MsgStartTask:
		task, err := h.controller.StartTask(msg.Goal)
		switch {
		case errors.Is(err, agent.ErrTaskRunning):
			c.reply(schemas.Event{Type: schemas.EventResponse, Text: agent.MsgTaskAlreadyRunning})
		case err != nil:
			logger.Info("Start request rejected.", zap.Error(err))
			c.reply(schemas.Event{Type: schemas.EventResponse, Text: "Could not start the task: " + err.Error()})
		default:
			logger.Info("Received new task from user.", zap.String("task_id", task.ID), zap.String("goal", task.Goal))
		}

	case MsgUserResponse:
		if err := h.controller.Reply(msg.Response); err != nil {
			logger.Info("Reply not delivered.", zap.Error(err))
			return
		}
		logger.Debug("Delivered user reply.")

	default:
		logger.Warn("Unknown message type.")
	}
}

// reply queues an event for this client only.
func (c *Client) reply(ev schemas.Event) {
	message, err := json.Marshal(ev)
	if err != nil {
		return
	}
	select {
	case c.hub.unicast <- unicastMessage{client: c, message: message}:
	case <-c.hub.done:
	}
}

// writePump pumps messages from the hub to the websocket connection. Each
// event goes out as its own text frame.
func (c *Client) writePump() {
	defer c.hub.wg.Done()
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
