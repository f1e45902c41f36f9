package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/NaraSky/mesh-talk-platform/internal/models"
	"github.com/NaraSky/mesh-talk-platform/internal/services"
)

// MessageHandlers exposes the message pipeline over HTTP. The handlers only
// bind parameters and map errors; all behavior lives in the services.
type MessageHandlers struct {
	Private *services.PrivateMessageService
	Group   *services.GroupMessageService
}

func NewMessageHandlers(private *services.PrivateMessageService, group *services.GroupMessageService) *MessageHandlers {
	return &MessageHandlers{Private: private, Group: group}
}

func (h *MessageHandlers) SendPrivateMessage(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFromRequest(r)
	if !ok {
		http.Error(w, "missing user identity", http.StatusUnauthorized)
		return
	}
	var dto models.PrivateMessageDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, models.ErrInvalidParams)
		return
	}
	id, err := h.Private.Send(r.Context(), session, &dto)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"messageId": id})
}

func (h *MessageHandlers) PullUnreadPrivateMessages(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFromRequest(r)
	if !ok {
		http.Error(w, "missing user identity", http.StatusUnauthorized)
		return
	}
	if err := h.Private.PullUnread(r.Context(), session); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MessageHandlers) LoadPrivateMessages(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFromRequest(r)
	if !ok {
		http.Error(w, "missing user identity", http.StatusUnauthorized)
		return
	}
	messages, err := h.Private.Load(r.Context(), session, queryInt64(r, "minId", 0))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (h *MessageHandlers) PrivateHistory(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFromRequest(r)
	if !ok {
		http.Error(w, "missing user identity", http.StatusUnauthorized)
		return
	}
	friendID := queryInt64(r, "friendId", 0)
	page := queryInt64(r, "page", 1)
	size := queryInt64(r, "size", 0)
	messages, err := h.Private.History(r.Context(), session, friendID, page, size)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (h *MessageHandlers) MarkPrivateMessagesRead(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFromRequest(r)
	if !ok {
		http.Error(w, "missing user identity", http.StatusUnauthorized)
		return
	}
	friendID := queryInt64(r, "friendId", 0)
	if err := h.Private.MarkRead(r.Context(), session, friendID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MessageHandlers) RecallPrivateMessage(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFromRequest(r)
	if !ok {
		http.Error(w, "missing user identity", http.StatusUnauthorized)
		return
	}
	id := pathInt64(r, "id")
	if err := h.Private.Recall(r.Context(), session, id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MessageHandlers) SendGroupMessage(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFromRequest(r)
	if !ok {
		http.Error(w, "missing user identity", http.StatusUnauthorized)
		return
	}
	var dto models.GroupMessageDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, models.ErrInvalidParams)
		return
	}
	id, err := h.Group.Send(r.Context(), session, &dto)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"messageId": id})
}

func (h *MessageHandlers) PullUnreadGroupMessages(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFromRequest(r)
	if !ok {
		http.Error(w, "missing user identity", http.StatusUnauthorized)
		return
	}
	if err := h.Group.PullUnread(r.Context(), session); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MessageHandlers) LoadGroupMessages(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFromRequest(r)
	if !ok {
		http.Error(w, "missing user identity", http.StatusUnauthorized)
		return
	}
	messages, err := h.Group.Load(r.Context(), session, queryInt64(r, "minId", 0))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (h *MessageHandlers) GroupHistory(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFromRequest(r)
	if !ok {
		http.Error(w, "missing user identity", http.StatusUnauthorized)
		return
	}
	groupID := queryInt64(r, "groupId", 0)
	page := queryInt64(r, "page", 1)
	size := queryInt64(r, "size", 0)
	messages, err := h.Group.History(r.Context(), session, groupID, page, size)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (h *MessageHandlers) RecallGroupMessage(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFromRequest(r)
	if !ok {
		http.Error(w, "missing user identity", http.StatusUnauthorized)
		return
	}
	id := pathInt64(r, "id")
	if err := h.Group.Recall(r.Context(), session, id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathInt64(r *http.Request, key string) int64 {
	n, err := strconv.ParseInt(chi.URLParam(r, key), 10, 64)
	if err != nil {
		return 0
	}
	return n
}
