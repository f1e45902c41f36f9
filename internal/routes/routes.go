package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/NaraSky/mesh-talk-platform/internal/handlers"
)

func SetupRoutes(r *chi.Mux, messages *handlers.MessageHandlers, ws *handlers.WSHandler, attachments *handlers.AttachmentHandler) {
	// Private message routes
	r.Post("/api/message/private/send", messages.SendPrivateMessage)
	r.Post("/api/message/private/pullUnread", messages.PullUnreadPrivateMessages)
	r.Get("/api/message/private/load", messages.LoadPrivateMessages)
	r.Get("/api/message/private/history", messages.PrivateHistory)
	r.Put("/api/message/private/read", messages.MarkPrivateMessagesRead)
	r.Delete("/api/message/private/recall/{id}", messages.RecallPrivateMessage)

	// Group message routes
	r.Post("/api/message/group/send", messages.SendGroupMessage)
	r.Post("/api/message/group/pullUnread", messages.PullUnreadGroupMessages)
	r.Get("/api/message/group/load", messages.LoadGroupMessages)
	r.Get("/api/message/group/history", messages.GroupHistory)
	r.Delete("/api/message/group/recall/{id}", messages.RecallGroupMessage)

	// Live connection
	r.Get("/ws", ws.Attach)

	// File upload routes
	if attachments != nil {
		r.Post("/api/upload", attachments.Upload)
	}
}
