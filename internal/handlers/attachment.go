package handlers

import (
	"net/http"

	"github.com/NaraSky/mesh-talk-platform/internal/services"
)

// AttachmentHandler accepts media uploads for image/audio/video messages and
// returns the hosted URL the client then sends as message content.
type AttachmentHandler struct {
	Attachments *services.AttachmentService
}

func NewAttachmentHandler(attachments *services.AttachmentService) *AttachmentHandler {
	return &AttachmentHandler{Attachments: attachments}
}

func (h *AttachmentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if _, ok := sessionFromRequest(r); !ok {
		http.Error(w, "missing user identity", http.StatusUnauthorized)
		return
	}

	// Parse multipart form (max 20MB)
	if err := r.ParseMultipartForm(20 << 20); err != nil {
		http.Error(w, "Invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "No file provided: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	folder := r.FormValue("folder")
	if folder == "" {
		folder = "im-attachments"
	}

	url, err := h.Attachments.Upload(r.Context(), file, folder)
	if err != nil {
		http.Error(w, "Upload failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"url":      url,
		"fileName": fileHeader.Filename,
	})
}
