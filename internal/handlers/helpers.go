package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/NaraSky/mesh-talk-platform/internal/models"
)

// sessionFromRequest resolves the calling user from the headers injected by
// the external auth gateway. Requests without a user id never reach the
// services.
func sessionFromRequest(r *http.Request) (models.UserSession, bool) {
	userID, err := strconv.ParseInt(r.Header.Get("X-User-Id"), 10, 64)
	if err != nil || userID == 0 {
		return models.UserSession{}, false
	}
	terminal, _ := strconv.Atoi(r.Header.Get("X-Terminal"))
	return models.UserSession{UserID: userID, Terminal: terminal}, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the service error taxonomy onto precise status codes;
// nothing here ever turns into a generic 500 unless it truly is one.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrInvalidParams):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrNotFriend),
		errors.Is(err, models.ErrNotMember),
		errors.Is(err, models.ErrNotOwner):
		status = http.StatusForbidden
	case errors.Is(err, models.ErrGroupNotFound),
		errors.Is(err, models.ErrMessageNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrNotConnected):
		status = http.StatusConflict
	case errors.Is(err, models.ErrRecallWindowExpired):
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func queryInt64(r *http.Request, key string, def int64) int64 {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}
