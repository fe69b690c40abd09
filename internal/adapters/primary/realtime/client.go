package realtime

import (
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4 * 1024 // Le client n'envoie que des pings
)

// Frames de contrôle
const (
	FrameSubscribed = "subscribed"
	FramePing       = "ping"
	FramePong       = "pong"
)

type controlFrame struct {
	Type      string `json:"type"`
	AccountID string `json:"accountId,omitempty"`
}

// Client fait le lien entre la connexion WebSocket et le hub.
// Cycle de vie : Connecting -> Subscribed(accountID) -> Disconnected.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	accountID string
	send      chan []byte
	closeOnce sync.Once
}

func newClient(hub *Hub, conn *websocket.Conn, accountID string) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		accountID: accountID,
		send:      make(chan []byte, hub.opts.ClientBuffer),
	}
}

func (c *Client) AccountID() string { return c.accountID }

// Appelé uniquement sous le verrou d'écriture du shard.
func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

// ServeWS upgrade une requête DÉJÀ authentifiée et inscrit la connexion pour accountID.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, accountID string) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade a déjà écrit la réponse HTTP
		slog.Warn("websocket upgrade failed", "account_id", accountID, "error", err)
		return
	}

	c := newClient(h, conn, accountID)
	if err := h.Subscribe(c); err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	frame, _ := json.Marshal(controlFrame{Type: FrameSubscribed, AccountID: accountID})
	h.enqueue(c, frame)

	go c.writePump()
	go c.readPump()
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.opts.AllowedOrigins) == 0 || slices.Contains(h.opts.AllowedOrigins, "*") {
		return true
	}
	return slices.Contains(h.opts.AllowedOrigins, origin)
}

// readPump : toute erreur de lecture (close, pong timeout) désinscrit le client.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unsubscribe(c)
		_ = c.conn.Close()
	}()

	pongWait := c.hub.opts.PongWait
	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	pong, _ := json.Marshal(controlFrame{Type: FramePong})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				slog.Warn("unexpected websocket close", "account_id", c.accountID, "error", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var frame controlFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		// Tout le reste est ignoré
		if frame.Type == FramePing {
			c.hub.enqueue(c, pong)
		}
	}
}

// writePump : seul writer de la connexion (gorilla n'autorise qu'un writer concurrent).
func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.opts.PongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				// Le hub a fermé le canal (reap, shutdown, désinscription)
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				slog.Debug("websocket write failed", "account_id", c.accountID, "error", err)
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
