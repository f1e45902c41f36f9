package handlers

import (
	"context"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"

	"github.com/NaraSky/mesh-talk-platform/internal/models"
	"github.com/NaraSky/mesh-talk-platform/internal/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Cross-origin policy is enforced by the CORS middleware in front of
	// the API; the upgrade endpoint mirrors it.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// clientFrame is the envelope clients send upstream. Anything beyond
// heartbeats and group read acks is ignored.
type clientFrame struct {
	Type      string `json:"type"`
	GroupID   int64  `json:"groupId,omitempty"`
	MessageID int64  `json:"messageId,omitempty"`
}

// WSHandler attaches WebSocket connections to the hub and feeds client read
// acks into the group read positions.
type WSHandler struct {
	Hub       *services.Hub
	Positions services.ReadPositionStore
}

func NewWSHandler(hub *services.Hub, positions services.ReadPositionStore) *WSHandler {
	return &WSHandler{Hub: hub, Positions: positions}
}

func (h *WSHandler) Attach(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFromRequest(r)
	if !ok {
		// Browser WebSocket clients cannot set headers; fall back to
		// the query string the auth gateway rewrites.
		userID, err := strconv.ParseInt(r.URL.Query().Get("userId"), 10, 64)
		if err != nil || userID == 0 {
			http.Error(w, "missing user identity", http.StatusUnauthorized)
			return
		}
		terminal, _ := strconv.Atoi(r.URL.Query().Get("terminal"))
		session = models.UserSession{UserID: userID, Terminal: terminal}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws: upgrade failed for user %d: %v", session.UserID, err)
		return
	}

	live := h.Hub.Register(session.UserID, session.Terminal, conn)
	log.Printf("✅ ws: user %d terminal %d connected", session.UserID, session.Terminal)

	go h.readLoop(conn, live, session)
}

func (h *WSHandler) readLoop(conn *websocket.Conn, live *services.Session, session models.UserSession) {
	defer func() {
		h.Hub.Unregister(live)
		_ = conn.Close()
		log.Printf("ws: user %d terminal %d disconnected", session.UserID, session.Terminal)
	}()

	for {
		var frame clientFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		switch frame.Type {
		case "heartbeat":
			// Reads keep the connection alive; nothing to do.
		case "groupRead":
			if frame.GroupID == 0 || frame.MessageID == 0 {
				continue
			}
			if err := h.Positions.Advance(context.Background(), frame.GroupID, session.UserID, frame.MessageID); err != nil {
				log.Printf("ws: advance read position group %d user %d: %v", frame.GroupID, session.UserID, err)
			}
		}
	}
}
