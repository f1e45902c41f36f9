package services

import (
	"context"
	"log"
	"sync"

	"github.com/google/uuid"
)

// SessionConn is the minimal interface our WebSocket implementation must
// satisfy; the hub never touches the transport beyond this.
type SessionConn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// Session is one live connection: a user on a terminal.
type Session struct {
	ID       uuid.UUID
	UserID   int64
	Terminal int
	conn     SessionConn
	mu       sync.Mutex
}

func (s *Session) write(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

// Hub is the in-process delivery gateway: a registry of live sessions keyed
// by user and terminal, with JSON push fan-out.
type Hub struct {
	mu       sync.RWMutex
	sessions map[int64]map[int]*Session
}

func NewHub() *Hub {
	return &Hub{sessions: make(map[int64]map[int]*Session)}
}

// Register adds a session, replacing (and closing) any previous session of
// the same user+terminal.
func (h *Hub) Register(userID int64, terminal int, conn SessionConn) *Session {
	s := &Session{
		ID:       uuid.New(),
		UserID:   userID,
		Terminal: terminal,
		conn:     conn,
	}
	h.mu.Lock()
	byTerminal, ok := h.sessions[userID]
	if !ok {
		byTerminal = make(map[int]*Session)
		h.sessions[userID] = byTerminal
	}
	old := byTerminal[terminal]
	byTerminal[terminal] = s
	h.mu.Unlock()

	if old != nil {
		_ = old.conn.Close()
	}
	return s
}

// Unregister removes the session if it is still the current one for its
// user+terminal; a session replaced by a reconnect is left alone.
func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	byTerminal, ok := h.sessions[s.UserID]
	if !ok {
		return
	}
	if cur, ok := byTerminal[s.Terminal]; ok && cur.ID == s.ID {
		delete(byTerminal, s.Terminal)
		if len(byTerminal) == 0 {
			delete(h.sessions, s.UserID)
		}
	}
}

func (h *Hub) IsOnline(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[userID]) > 0
}

func (h *Hub) OnlineUserIDs(candidates []int64) []int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []int64
	for _, id := range candidates {
		if len(h.sessions[id]) > 0 {
			out = append(out, id)
		}
	}
	return out
}

// Push writes the payload to every addressed live session. Write failures
// are logged and skipped; durability lives in the message store, not here.
func (h *Hub) Push(ctx context.Context, msg *PushMessage) error {
	targets := h.collect(msg)
	for _, s := range targets {
		if err := s.write(msg); err != nil {
			log.Printf("hub: push to user %d terminal %d failed: %v", s.UserID, s.Terminal, err)
		}
	}
	return nil
}

func (h *Hub) collect(msg *PushMessage) []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []*Session
	for _, userID := range msg.ReceiverIDs {
		byTerminal, ok := h.sessions[userID]
		if !ok {
			continue
		}
		if len(msg.ReceiveTerminals) == 0 {
			for _, s := range byTerminal {
				out = append(out, s)
			}
			continue
		}
		for _, terminal := range msg.ReceiveTerminals {
			if s, ok := byTerminal[terminal]; ok {
				out = append(out, s)
			}
		}
	}

	if msg.SendToSelf {
		for terminal, s := range h.sessions[msg.Sender.UserID] {
			if terminal == msg.Sender.Terminal {
				continue
			}
			out = append(out, s)
		}
	}
	return out
}
