// Package room implements the Room aggregate: membership, the
// whiteboard, chat tail, pairing, and signaling relay for one
// collaboration room, all funneled through a single-writer actor
// loop so that no two operations against the same room ever
// interleave (spec.md §5). The registry that creates and tears down
// rooms lives here too.
package room

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"realtimehub/internal/chat"
	"realtimehub/internal/envelope"
	"realtimehub/internal/logging"
	"realtimehub/internal/pairing"
	"realtimehub/internal/persistence"
	"realtimehub/internal/signaling"
	"realtimehub/internal/spatial"
	"realtimehub/internal/whiteboard"
)

// Sender is how a room addresses one connected client. Implementations
// (the connection package's Client) must make Send non-blocking: a
// slow recipient must never stall the room's single writer.
type Sender interface {
	UserID() string
	Send(data []byte)
}

// Registry maps roomId to Room, creating rooms lazily and dropping
// them once empty.
type Registry struct {
	mu      sync.Mutex
	rooms   map[string]*Room
	store   *persistence.Store
	tokens  *pairing.Table
	indices sync.Map // roomId -> *spatial.Index, for the HTTP viewport endpoint
}

// NewRegistry constructs an empty room registry.
func NewRegistry(store *persistence.Store, tokens *pairing.Table) *Registry {
	return &Registry{
		rooms:  make(map[string]*Room),
		store:  store,
		tokens: tokens,
	}
}

// GetOrCreate returns the existing room for id, or constructs one,
// bootstrapping its stroke map from the persisted snapshot if any.
// Undo/redo/chat always start empty regardless of what was persisted.
func (reg *Registry) GetOrCreate(id string) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if r, ok := reg.rooms[id]; ok {
		return r
	}
	r := newRoom(id, reg)
	reg.rooms[id] = r
	reg.indices.Store(id, r.index)
	return r
}

// SpatialIndex returns the live spatial index for a room, if it
// currently exists in the registry. Safe to call concurrently with
// room actors — the index guards itself.
func (reg *Registry) SpatialIndex(id string) (*spatial.Index, bool) {
	v, ok := reg.indices.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*spatial.Index), true
}

// dropIfEmpty removes r from the registry iff it is still the current
// room for its id and has no members. Called from within r's own
// actor goroutine, so reading r.clients here is race-free.
func (reg *Registry) dropIfEmpty(r *Room) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	cur, ok := reg.rooms[r.id]
	if !ok || cur != r || len(r.clients) != 0 {
		return
	}
	delete(reg.rooms, r.id)
	reg.indices.Delete(r.id)
	r.store.FlushNow(r.id, r.board.Snapshot())
	close(r.done)
}

// Room is one collaboration room's full authoritative state.
type Room struct {
	id       string
	store    *persistence.Store
	tokens   *pairing.Table
	registry *Registry
	log      *zap.Logger

	inbox chan func(*Room)
	done  chan struct{}

	clients map[string]Sender
	board   *whiteboard.Board
	chatBuf *chat.Buffer
	index   *spatial.Index
}

func newRoom(id string, reg *Registry) *Room {
	r := &Room{
		id:       id,
		store:    reg.store,
		tokens:   reg.tokens,
		registry: reg,
		log:      logging.L().With(zap.String("roomId", id)),
		inbox:    make(chan func(*Room), 128),
		done:     make(chan struct{}),
		clients:  make(map[string]Sender),
		board:    whiteboard.LoadSnapshot(reg.store.Load(id)),
		chatBuf:  chat.New(),
		index:    spatial.NewIndex(),
	}
	for _, s := range r.board.Snapshot() {
		r.index.Upsert(s)
	}
	go r.run()
	return r
}

// run drains the inbox until the room is torn down. It also exits on
// done so a dropped room's actor goroutine (and everything it closes
// over — board, chat buffer, clients) is released instead of blocking
// on inbox forever.
func (r *Room) run() {
	for {
		select {
		case fn := <-r.inbox:
			fn(r)
		case <-r.done:
			r.drainPending()
			return
		}
	}
}

// drainPending runs closures already sitting in the inbox at the
// moment done fired, so work enqueued just ahead of teardown (such as
// the completion closure a synchronous Leave is waiting on) still
// executes instead of being silently lost.
func (r *Room) drainPending() {
	for {
		select {
		case fn := <-r.inbox:
			fn(r)
		default:
			return
		}
	}
}

// submit enqueues fn to run on the room's single actor goroutine. It
// is best-effort: once the room has been torn down, fn may be
// silently dropped instead of run. Operations that must know their
// effect actually landed before the room could vanish (Leave, for the
// registry handoff in connection's room-switch handling) don't rely on
// submit alone — see Leave.
func (r *Room) submit(fn func(*Room)) {
	select {
	case r.inbox <- fn:
	case <-r.done:
	}
}

// ID returns the room's id.
func (r *Room) ID() string { return r.id }

func (r *Room) frame(msgType, userID string, payload any) []byte {
	env, err := envelope.Outbound(msgType, r.id, userID, payload)
	if err != nil {
		r.log.Error("marshal outbound payload", zap.String("type", msgType), zap.Error(err))
		return nil
	}
	data, err := envelope.Encode(env)
	if err != nil {
		r.log.Error("encode outbound envelope", zap.String("type", msgType), zap.Error(err))
		return nil
	}
	return data
}

func (r *Room) broadcast(data []byte) {
	if data == nil {
		return
	}
	for _, c := range r.clients {
		c.Send(data)
	}
}

func (r *Room) broadcastExcept(exceptUserID string, data []byte) {
	if data == nil {
		return
	}
	for uid, c := range r.clients {
		if uid == exceptUserID {
			continue
		}
		c.Send(data)
	}
}

// unicast delivers data to userID if currently a member, reporting
// whether delivery happened.
func (r *Room) unicast(userID string, data []byte) bool {
	if data == nil {
		return false
	}
	c, ok := r.clients[userID]
	if !ok {
		return false
	}
	c.Send(data)
	return true
}

func (r *Room) persist() {
	r.store.ScheduleSave(r.id, r.board.Snapshot())
}

// --- Membership -------------------------------------------------------

// Join registers sender as a member and runs the full join sequence:
// room.joined, rtc.peers, rtc.peer.joined broadcast, wb.snapshot,
// wb.history, chat.history (spec.md §4.8).
func (r *Room) Join(sender Sender) {
	r.submit(func(r *Room) {
		userID := sender.UserID()
		r.clients[userID] = sender

		peers := make([]string, 0, len(r.clients)-1)
		for uid := range r.clients {
			if uid != userID {
				peers = append(peers, uid)
			}
		}

		r.unicast(userID, r.frame(envelope.TypeRoomJoined, userID, map[string]any{"ok": true}))
		r.unicast(userID, r.frame(envelope.TypeRTCPeers, userID, map[string]any{"peers": peers}))
		r.broadcastExcept(userID, r.frame(envelope.TypeRTCPeerJoined, userID, map[string]any{"userId": userID}))
		r.unicast(userID, r.frame(envelope.TypeWBSnapshot, userID, map[string]any{"strokes": r.board.Snapshot()}))
		r.unicast(userID, r.frame(envelope.TypeWBHistory, userID, r.board.HistoryFor(userID)))
		r.unicast(userID, r.frame(envelope.TypeChatHistory, userID, map[string]any{"messages": r.chatBuf.Tail(chat.HistoryLimit)}))

		r.log.Info("client joined", zap.String("userId", userID))
	})
}

// Leave removes userID from the room, broadcasts rtc.peer.left, and
// drops the room from the registry if it is now empty. Unlike the
// other operations, Leave blocks until its effect (including any
// resulting teardown) has actually run on the room's actor. A caller
// that re-resolves the destination room via the registry right after
// Leave returns — the room-switch handling in the connection package —
// is then guaranteed to see the post-teardown registry state rather
// than racing it: reusing the pre-Leave room pointer for a same-room
// rejoin is exactly what let a sole member's Join get silently dropped
// once in roughly every other attempt.
func (r *Room) Leave(userID string) {
	settled := make(chan struct{})
	select {
	case r.inbox <- func(r *Room) {
		r.leave(userID)
		close(settled)
	}:
	case <-r.done:
		return
	}
	select {
	case <-settled:
	case <-r.done:
	}
}

func (r *Room) leave(userID string) {
	if _, ok := r.clients[userID]; !ok {
		return
	}
	delete(r.clients, userID)
	r.broadcast(r.frame(envelope.TypeRTCPeerLeft, userID, map[string]any{"userId": userID}))
	r.log.Info("client left", zap.String("userId", userID))

	if len(r.clients) == 0 {
		r.registry.dropIfEmpty(r)
	}
}

// --- Whiteboard ---------------------------------------------------------

// StrokeStart handles wb.stroke.start.
func (r *Room) StrokeStart(userID, strokeID string, style whiteboard.Style, points []whiteboard.Point) {
	r.submit(func(r *Room) {
		isNew := r.board.StrokeStart(userID, strokeID, style, points)
		if s, ok := r.board.Strokes()[strokeID]; ok {
			r.index.Upsert(*s)
		}
		r.persist()

		r.broadcast(r.frame(envelope.TypeWBStrokeStart, userID, map[string]any{
			"strokeId": strokeID, "style": style, "points": points,
		}))
		if isNew {
			r.unicast(userID, r.frame(envelope.TypeWBHistory, userID, r.board.HistoryFor(userID)))
		}
	})
}

// StrokeMove handles wb.stroke.move.
func (r *Room) StrokeMove(userID, strokeID string, style whiteboard.Style, points []whiteboard.Point) {
	r.submit(func(r *Room) {
		if r.board.StrokeMove(strokeID, style, points) {
			if s, ok := r.board.Strokes()[strokeID]; ok {
				r.index.Upsert(*s)
			}
			r.persist()
		}
		r.broadcast(r.frame(envelope.TypeWBStrokeMove, userID, map[string]any{
			"strokeId": strokeID, "style": style, "points": points,
		}))
	})
}

// StrokeEnd handles wb.stroke.end. Advisory only: no state changes,
// fan-out only.
func (r *Room) StrokeEnd(userID, strokeID string) {
	r.submit(func(r *Room) {
		r.board.StrokeEnd(strokeID)
		r.broadcast(r.frame(envelope.TypeWBStrokeEnd, userID, map[string]any{
			"strokeId": strokeID, "points": []whiteboard.Point{},
		}))
	})
}

// Clear handles wb.clear: empties the board for the whole room.
func (r *Room) Clear(userID string) {
	r.submit(func(r *Room) {
		r.board.Clear()
		r.index.Clear()
		r.persist()

		r.broadcast(r.frame(envelope.TypeWBClear, userID, map[string]any{}))
		r.unicast(userID, r.frame(envelope.TypeWBHistory, userID, r.board.HistoryFor(userID)))
	})
}

// SnapshotRequest handles wb.snapshot.request.
func (r *Room) SnapshotRequest(userID string) {
	r.submit(func(r *Room) {
		r.unicast(userID, r.frame(envelope.TypeWBSnapshot, userID, map[string]any{"strokes": r.board.Snapshot()}))
	})
}

// Undo handles wb.undo.
func (r *Room) Undo(userID string) {
	r.submit(func(r *Room) {
		removed, ok := r.board.Undo(userID)
		if !ok {
			return
		}
		r.index.Remove(removed.StrokeID)
		r.persist()

		r.broadcast(r.frame(envelope.TypeWBStrokeRemove, userID, map[string]any{"strokeId": removed.StrokeID}))
		r.unicast(userID, r.frame(envelope.TypeWBHistory, userID, r.board.HistoryFor(userID)))
	})
}

// Redo handles wb.redo.
func (r *Room) Redo(userID string) {
	r.submit(func(r *Room) {
		restored, ok := r.board.Redo(userID)
		if !ok {
			return
		}
		r.index.Upsert(restored)
		r.persist()

		r.broadcast(r.frame(envelope.TypeWBStrokeRestore, userID, map[string]any{"stroke": restored}))
		r.unicast(userID, r.frame(envelope.TypeWBHistory, userID, r.board.HistoryFor(userID)))
	})
}

// --- Chat -----------------------------------------------------------

// ChatMessage handles chat.message. Empty (post-trim) text is dropped.
func (r *Room) ChatMessage(userID, text, name, clientID string) {
	r.submit(func(r *Room) {
		if text == "" {
			return
		}
		msg := chat.Message{
			ID:       newID(),
			UserID:   userID,
			Name:     name,
			Text:     text,
			Ts:       chat.Now(),
			ClientID: clientID,
		}
		r.chatBuf.Append(msg)
		r.broadcast(r.frame(envelope.TypeChatMessage, userID, msg))
	})
}

// ChatHistoryRequest handles chat.history.request.
func (r *Room) ChatHistoryRequest(userID string) {
	r.submit(func(r *Room) {
		r.unicast(userID, r.frame(envelope.TypeChatHistory, userID, map[string]any{"messages": r.chatBuf.Tail(chat.HistoryLimit)}))
	})
}

// --- Pairing ----------------------------------------------------------

// PairCreate handles pair.create. Role gating (web-only) is the
// connection layer's responsibility; this assumes userID is already
// known to be a web client in this room.
func (r *Room) PairCreate(userID string) {
	r.submit(func(r *Room) {
		tok := r.tokens.Create(r.id, userID)
		r.unicast(userID, r.frame(envelope.TypePairCreated, userID, map[string]any{
			"pairToken": tok.Value,
			"expiresAt": tok.ExpiresAt.UnixMilli(),
		}))
	})
}

// PairClaim handles pair.claim. Role gating (mobile-only) is the
// connection layer's responsibility.
func (r *Room) PairClaim(userID, token string) {
	r.submit(func(r *Room) {
		tok, err := r.tokens.Claim(token, r.id)
		if err != nil {
			r.unicast(userID, r.frame(envelope.TypePairError, userID, map[string]any{"message": errMessage(err)}))
			return
		}

		payload := map[string]any{"mobileUserId": userID, "webUserId": tok.WebUserID}
		r.unicast(userID, r.frame(envelope.TypePairSuccess, userID, payload))
		r.unicast(tok.WebUserID, r.frame(envelope.TypePairSuccess, userID, payload))
	})
}

func errMessage(err error) string {
	if errors.Is(err, pairing.ErrWrongRoom) {
		return "Token is for a different room"
	}
	return "Invalid or expired token"
}

// --- Signaling relay --------------------------------------------------

// Relay forwards an rtc.offer/answer/ice envelope to its addressed
// peer within this room, verbatim, server-stamping the sender's
// userId. Silently dropped if the target is absent (spec.md §4.6).
func (r *Room) Relay(msgType, fromUserID string, rawPayload []byte) {
	r.submit(func(r *Room) {
		toUserID, ok := signaling.ExtractTarget(rawPayload)
		if !ok {
			return
		}
		env := envelope.Envelope{V: envelope.ProtocolVersion, Type: msgType, RoomID: r.id, UserID: fromUserID, Payload: rawPayload}
		data, err := envelope.Encode(env)
		if err != nil {
			return
		}
		r.unicast(toUserID, data)
	})
}

// CursorMove handles cursor.move: ephemeral fan-out, no persistence,
// no history.
func (r *Room) CursorMove(userID string, rawPayload []byte) {
	r.submit(func(r *Room) {
		env := envelope.Envelope{V: envelope.ProtocolVersion, Type: envelope.TypeCursorMove, RoomID: r.id, UserID: userID, Payload: rawPayload}
		data, err := envelope.Encode(env)
		if err != nil {
			return
		}
		r.broadcastExcept(userID, data)
	})
}

// newID mints an opaque identifier for a chat message.
func newID() string { return uuid.NewString() }
