// Package pairing implements the short-lived pair-token capability
// that lets a mobile client attach itself to a web client's room. The
// token table is process-wide and guarded by its own mutex,
// independent of any single room's serialization (spec.md §5: the
// pair-token table requires its own synchronization).
package pairing

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"time"
)

// TTL is how long a freshly issued token remains claimable.
const TTL = 120 * time.Second

// ReapInterval is how often expired tokens are swept from the table.
const ReapInterval = 10 * time.Second

var (
	// ErrNotFound is returned when a claimed token doesn't exist (never
	// issued, already claimed, or already reaped as expired).
	ErrNotFound = errors.New("invalid or expired token")
	// ErrWrongRoom is returned when the token is valid but bound to a
	// different room than the claiming client's current room.
	ErrWrongRoom = errors.New("token is for a different room")
)

// Token is an issued pairing capability.
type Token struct {
	Value     string
	RoomID    string
	WebUserID string
	ExpiresAt time.Time
}

// Table is the process-wide token store.
type Table struct {
	mu     sync.Mutex
	tokens map[string]Token
	now    func() time.Time
}

// NewTable constructs an empty token table.
func NewTable() *Table {
	return &Table{
		tokens: make(map[string]Token),
		now:    time.Now,
	}
}

func newTokenValue() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Create mints a fresh token for roomID/webUserID. Multiple creates
// from the same web user are permitted and produce independent
// tokens — an earlier token is not invalidated by a later one.
func (t *Table) Create(roomID, webUserID string) Token {
	tok := Token{
		Value:     newTokenValue(),
		RoomID:    roomID,
		WebUserID: webUserID,
		ExpiresAt: t.now().Add(TTL),
	}
	t.mu.Lock()
	t.tokens[tok.Value] = tok
	t.mu.Unlock()
	return tok
}

// Claim consumes a token if present, unexpired, and bound to
// callerRoomID. A token is consumable at most once: a matching claim
// deletes it from the table before returning.
func (t *Table) Claim(value, callerRoomID string) (Token, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tok, ok := t.tokens[value]
	if !ok {
		return Token{}, ErrNotFound
	}
	if t.now().After(tok.ExpiresAt) {
		delete(t.tokens, value)
		return Token{}, ErrNotFound
	}
	if tok.RoomID != callerRoomID {
		return Token{}, ErrWrongRoom
	}
	delete(t.tokens, value)
	return tok, nil
}

// Reap deletes every expired token. Intended to be called on
// ReapInterval from a background goroutine.
func (t *Table) Reap() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	for v, tok := range t.tokens {
		if now.After(tok.ExpiresAt) {
			delete(t.tokens, v)
		}
	}
}

// RunReaper blocks, calling Reap every ReapInterval, until ctx-like
// stop channel is closed.
func (t *Table) RunReaper(stop <-chan struct{}) {
	ticker := time.NewTicker(ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.Reap()
		case <-stop:
			return
		}
	}
}
