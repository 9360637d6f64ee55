// Package connection implements the per-client websocket lifecycle:
// accept, role assignment, the Accepted → InRoom → Closed state
// machine, and envelope dispatch into the room package (spec.md
// §4.8). The read/write pump pattern is adapted from the teacher
// repo's websocket client, generalized from a single global hub to
// dispatch against whichever *room.Room the client currently
// occupies.
package connection

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"realtimehub/internal/envelope"
	"realtimehub/internal/logging"
	"realtimehub/internal/room"
	"realtimehub/internal/whiteboard"
)

const (
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = (pongWait * 9) / 10
	maxMessageBytes = 1 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Role is the client's connection role, fixed for the lifetime of the
// connection.
type Role string

const (
	RoleWeb    Role = "web"
	RoleMobile Role = "mobile"
)

// Client is one accepted websocket connection. It implements
// room.Sender so rooms can address it directly.
type Client struct {
	conn     *websocket.Conn
	send     chan []byte
	userID   string
	role     Role
	registry *room.Registry
	log      *zap.Logger

	currentRoom *room.Room
	closeOnce   sync.Once
}

// ServeWS upgrades an HTTP request to a websocket connection and
// starts the client's pumps. role=mobile in the query string selects
// the mobile role; anything else (including absence) selects web.
func ServeWS(reg *room.Registry, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.L().Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	role := RoleWeb
	if r.URL.Query().Get("role") == "mobile" {
		role = RoleMobile
	}

	c := &Client{
		conn:     conn,
		send:     make(chan []byte, 256),
		userID:   newUserID(),
		role:     role,
		registry: reg,
	}
	c.log = logging.L().With(zap.String("userId", c.userID), zap.String("role", string(role)))

	if hello, err := envelope.Outbound(envelope.TypeHello, "", c.userID, map[string]any{
		"userId": c.userID, "role": role,
	}); err == nil {
		if data, err := envelope.Encode(hello); err == nil {
			c.send <- data
		}
	}

	go c.writePump()
	go c.readPump()
}

// newUserID mints a 10-char opaque token.
func newUserID() string {
	b := make([]byte, 5)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// UserID implements room.Sender.
func (c *Client) UserID() string { return c.userID }

// Send implements room.Sender. It never blocks: a client whose send
// queue is full is treated as a stalled recipient and its connection
// is closed, rather than letting it stall the room's single writer.
func (c *Client) Send(data []byte) {
	select {
	case c.send <- data:
	default:
		c.forceClose()
	}
}

func (c *Client) forceClose() {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
	})
}

func (c *Client) readPump() {
	defer c.cleanup()

	c.conn.SetReadLimit(maxMessageBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Debug("read error", zap.Error(err))
			}
			break
		}
		env, ok := envelope.Decode(raw)
		if !ok {
			continue
		}
		c.dispatch(env)
	}
}

func (c *Client) cleanup() {
	if c.currentRoom != nil {
		c.currentRoom.Leave(c.userID)
		c.currentRoom = nil
	}
	close(c.send)
	c.conn.Close()
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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

// --- dispatch -----------------------------------------------------------

type roomJoinPayload struct {
	RoomID string `json:"roomId"`
}

type strokePayload struct {
	StrokeID string             `json:"strokeId"`
	Style    whiteboard.Style   `json:"style"`
	Points   []whiteboard.Point `json:"points"`
}

type pairClaimPayload struct {
	PairToken string `json:"pairToken"`
}

type chatMessagePayload struct {
	Text     string `json:"text"`
	Name     string `json:"name,omitempty"`
	ClientID string `json:"clientId,omitempty"`
}

// dispatch routes one decoded envelope according to the client's
// current state. In Accepted (currentRoom == nil), only room.join is
// honored; everything else is dropped. In InRoom, envelopes are
// dispatched to the current room by type; unknown types are dropped.
func (c *Client) dispatch(env envelope.Envelope) {
	if c.currentRoom == nil {
		if env.Type == envelope.TypeRoomJoin {
			c.handleJoin(env)
		}
		return
	}

	switch env.Type {
	case envelope.TypeRoomJoin:
		c.handleJoin(env)
	case envelope.TypeWBSnapshotRequest:
		c.currentRoom.SnapshotRequest(c.userID)
	case envelope.TypeWBStrokeStart:
		var p strokePayload
		if envelope.DecodePayload(env, &p) == nil && p.StrokeID != "" {
			c.currentRoom.StrokeStart(c.userID, p.StrokeID, p.Style, p.Points)
		}
	case envelope.TypeWBStrokeMove:
		var p strokePayload
		if envelope.DecodePayload(env, &p) == nil && p.StrokeID != "" {
			c.currentRoom.StrokeMove(c.userID, p.StrokeID, p.Style, p.Points)
		}
	case envelope.TypeWBStrokeEnd:
		var p strokePayload
		if envelope.DecodePayload(env, &p) == nil && p.StrokeID != "" {
			c.currentRoom.StrokeEnd(c.userID, p.StrokeID)
		}
	case envelope.TypeWBClear:
		c.currentRoom.Clear(c.userID)
	case envelope.TypeWBUndo:
		c.currentRoom.Undo(c.userID)
	case envelope.TypeWBRedo:
		c.currentRoom.Redo(c.userID)
	case envelope.TypePairCreate:
		if c.role == RoleWeb {
			c.currentRoom.PairCreate(c.userID)
		}
	case envelope.TypePairClaim:
		if c.role == RoleMobile {
			var p pairClaimPayload
			if envelope.DecodePayload(env, &p) == nil && p.PairToken != "" {
				c.currentRoom.PairClaim(c.userID, p.PairToken)
			}
		}
	case envelope.TypeRTCOffer, envelope.TypeRTCAnswer, envelope.TypeRTCIce:
		c.currentRoom.Relay(env.Type, c.userID, env.Payload)
	case envelope.TypeCursorMove:
		c.currentRoom.CursorMove(c.userID, env.Payload)
	case envelope.TypeChatMessage:
		var p chatMessagePayload
		if envelope.DecodePayload(env, &p) == nil {
			c.currentRoom.ChatMessage(c.userID, strings.TrimSpace(p.Text), p.Name, p.ClientID)
		}
	case envelope.TypeChatHistoryRequest:
		c.currentRoom.ChatHistoryRequest(c.userID)
	}
}

// handleJoin implements room.join, including the Move sub-sequence
// when the client is already InRoom (spec.md §4.8).
func (c *Client) handleJoin(env envelope.Envelope) {
	var p roomJoinPayload
	if envelope.DecodePayload(env, &p) != nil || p.RoomID == "" {
		return
	}

	if c.currentRoom != nil {
		// Leave blocks until any resulting teardown has actually run, so
		// the lookup below can't observe a room that's mid-teardown — in
		// particular when roomId names the room this client is already
		// in and is the sole member of (spec.md §4.8's Move sub-sequence).
		c.currentRoom.Leave(c.userID)
	}
	next := c.registry.GetOrCreate(p.RoomID)
	c.currentRoom = next
	next.Join(c)
}
