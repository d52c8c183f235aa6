package ws

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/kiwari-pos/fulfillment/internal/auth"
	"github.com/kiwari-pos/fulfillment/internal/events"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512

	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // access is checked against the JWT instead
	},
}

// Client is one subscriber connection, scoped to a branch and optionally
// to a set of entity types.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	branchID uuid.UUID
	types    map[string]bool
	send     chan []byte
}

func newClient(hub *Hub, conn *websocket.Conn, branchID uuid.UUID, types []string) *Client {
	c := &Client{
		hub:      hub,
		conn:     conn,
		branchID: branchID,
		send:     make(chan []byte, sendBuffer),
	}
	if len(types) > 0 {
		c.types = make(map[string]bool, len(types))
		for _, t := range types {
			c.types[t] = true
		}
	}
	return c
}

// wants reports whether the subscription covers entityType. No filter
// means everything.
func (c *Client) wants(entityType string) bool {
	return c.types == nil || c.types[entityType]
}

// ReadPump only watches for disconnects; subscribers never send commands
// over the socket.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warnw("websocket read failed", "branch_id", c.branchID, "error", err)
			}
			break
		}
	}
}

// WritePump sends one event per text frame, so clients can decode each
// message independently.
func (c *Client) WritePump() {
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
				// The hub closed the channel
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

// ServeWS handles WS /ws/branches/{bid}/events?types=order,delivery&token=JWT.
func ServeWS(hub *Hub, jwtSecret string, w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		tokenStr, _ = auth.BearerToken(r.Header.Get("Authorization"))
	}
	if tokenStr == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	claims, err := auth.ValidateToken(jwtSecret, tokenStr)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	branchID, err := uuid.Parse(chi.URLParam(r, "bid"))
	if err != nil {
		http.Error(w, "invalid branch id", http.StatusBadRequest)
		return
	}

	if !claims.CanAccess(branchID) {
		http.Error(w, "branch access denied", http.StatusForbidden)
		return
	}

	types, err := events.ParseEntityTypes(r.URL.Query().Get("types"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.log.Warnw("websocket upgrade failed", "error", err)
		return
	}

	client := newClient(hub, conn, branchID, types)
	select {
	case hub.register <- client:
	case <-r.Context().Done():
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}
