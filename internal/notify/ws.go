package notify

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 32
)

var errSlowClient = errors.New("client send buffer full")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// TokenAuthenticator resolves a token to a user id.
type TokenAuthenticator interface {
	Authenticate(token string) (string, error)
}

// controlMessage is what clients send: subscribe or unsubscribe.
type controlMessage struct {
	Event  string `json:"event"`
	UserID string `json:"userId"`
}

// WSHandler upgrades GET /ws?token=... and relays hub events to the client.
type WSHandler struct {
	hub  *Hub
	auth TokenAuthenticator
	log  *slog.Logger
}

func NewWSHandler(hub *Hub, auth TokenAuthenticator, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{hub: hub, auth: auth, log: logger}
}

// Handle authenticates with the token query parameter (browsers cannot set
// headers on websocket requests) and runs the connection.
func (h *WSHandler) Handle(c *gin.Context) {
	userID, err := h.auth.Authenticate(c.Query("token"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error":   gin.H{"code": "UNAUTHORIZED", "message": "token is required"},
		})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("notify.ws.upgrade_failed", "error", err)
		return
	}

	cl := &client{
		id:     uuid.NewString(),
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
	h.log.Info("notify.ws.connected", "conn_id", cl.id, "user_id", userID)

	go cl.writePump()
	h.readPump(cl)
}

func (h *WSHandler) readPump(cl *client) {
	defer func() {
		h.hub.Teardown(cl.id)
		cl.close()
		h.log.Info("notify.ws.disconnected", "conn_id", cl.id, "user_id", cl.userID)
	}()

	cl.conn.SetReadLimit(maxMessageSize)
	_ = cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := cl.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("notify.ws.read_error", "conn_id", cl.id, "error", err)
			}
			return
		}

		var msg controlMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			_ = cl.Send(Event{Event: "error", Data: gin.H{"message": "invalid message"}})
			continue
		}
		target := msg.UserID
		if target == "" {
			target = cl.userID
		}
		if target != cl.userID {
			_ = cl.Send(Event{Event: "error", Data: gin.H{"message": "cannot subscribe to another user"}})
			continue
		}

		switch msg.Event {
		case "subscribe":
			h.hub.Subscribe(target, cl)
			_ = cl.Send(Event{Event: "subscribed", Data: gin.H{"userId": target}})
		case "unsubscribe":
			h.hub.Unsubscribe(target, cl.id)
			_ = cl.Send(Event{Event: "unsubscribed", Data: gin.H{"userId": target}})
		default:
			_ = cl.Send(Event{Event: "error", Data: gin.H{"message": "unknown event: " + msg.Event}})
		}
	}
}

type client struct {
	id     string
	userID string
	conn   *websocket.Conn
	send   chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

func (c *client) ID() string { return c.id }

// Send queues ev for the write pump, dropping it if the client is slow.
func (c *client) Send(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return websocket.ErrCloseSent
	default:
	}
	select {
	case c.send <- data:
		return nil
	default:
		return errSlowClient
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
