package messaging

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/dutydinar/internal/apperr"
	"github.com/sudo-init-do/dutydinar/internal/config"
	"github.com/sudo-init-do/dutydinar/internal/db"
)

const (
	EventMessageNew    = "message_new"
	EventMessageRead   = "message_read"
	EventPresenceJoin  = "presence_join"
	EventPresenceLeave = "presence_leave"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Event is pushed to every socket subscribed to a conversation.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type client struct {
	conn   *websocket.Conn
	userID int64
	mu     sync.Mutex
}

func (cl *client) write(messageType int, payload []byte) error {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return cl.conn.WriteMessage(messageType, payload)
}

// Hub fans conversation events out to the sockets of that conversation.
type Hub struct {
	mu    sync.RWMutex
	rooms map[int64]map[*client]struct{}
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[int64]map[*client]struct{})}
}

var hub = NewHub()

func (h *Hub) join(conversationID int64, cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[conversationID]
	if !ok {
		room = make(map[*client]struct{})
		h.rooms[conversationID] = room
	}
	room[cl] = struct{}{}
}

func (h *Hub) leave(conversationID int64, cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[conversationID]
	delete(room, cl)
	if len(room) == 0 {
		delete(h.rooms, conversationID)
	}
}

// Subscribers reports how many sockets are open on a conversation.
func (h *Hub) Subscribers(conversationID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[conversationID])
}

// Broadcast writes evt to every socket of the conversation. Slow or dead
// sockets are dropped by their own read loop.
func (h *Hub) Broadcast(conversationID int64, evt Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		slog.Error("marshal websocket event", "type", evt.Type, "error", err)
		return
	}
	h.mu.RLock()
	clients := make([]*client, 0, len(h.rooms[conversationID]))
	for cl := range h.rooms[conversationID] {
		clients = append(clients, cl)
	}
	h.mu.RUnlock()

	for _, cl := range clients {
		if err := cl.write(websocket.TextMessage, payload); err != nil {
			slog.Debug("websocket write failed", "conversation_id", conversationID, "user_id", cl.userID, "error", err)
		}
	}
}

// serve registers conn and blocks until the peer goes away. Client frames
// are discarded; the socket is push only.
func (h *Hub) serve(conversationID, userID int64, conn *websocket.Conn) {
	cl := &client{conn: conn, userID: userID}
	h.join(conversationID, cl)
	h.Broadcast(conversationID, Event{Type: EventPresenceJoin, Data: echo.Map{"user_id": userID}})

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := cl.write(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	close(done)
	h.leave(conversationID, cl)
	_ = conn.Close()
	h.Broadcast(conversationID, Event{Type: EventPresenceLeave, Data: echo.Map{"user_id": userID}})
}

var allowedOrigin = "http://localhost:3000"

// Configure sets the browser origin allowed to open sockets.
func Configure(cfg *config.Config) {
	allowedOrigin = cfg.CORSOrigin
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// checkOrigin accepts non-browser clients, the configured frontend and
// same-host pages.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || origin == allowedOrigin || allowedOrigin == "*" {
		return true
	}
	u, err := url.Parse(origin)
	return err == nil && u.Host == r.Host
}

// ConversationWS streams realtime events of one conversation.
// GET /ws/conversations/:id
func ConversationWS(c echo.Context) error {
	userID, _ := c.Get("user_id").(int64)
	conversationID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || conversationID <= 0 {
		return apperr.Respond(c, apperr.Validation("Invalid conversation id"))
	}
	if err := requireParticipant(c.Request().Context(), db.Conn, conversationID, userID); err != nil {
		return apperr.Respond(c, err)
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		slog.Debug("websocket upgrade failed", "error", err)
		return nil
	}
	hub.serve(conversationID, userID, conn)
	return nil
}
