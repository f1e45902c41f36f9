package services

import (
	"context"

	"github.com/NaraSky/mesh-talk-platform/internal/models"
)

// UserRef identifies the originator of a push: a user on a terminal.
type UserRef struct {
	UserID   int64 `json:"userId"`
	Terminal int   `json:"terminal"`
}

// PushMessage is the payload handed to the delivery gateway for fan-out.
// ReceiverIDs addresses the target users; ReceiveTerminals narrows delivery
// to specific terminals (nil means all of a user's live terminals).
// SendToSelf additionally delivers to the sender's terminals other than the
// one the message originated from, which is how multi-device read and
// recall sync works.
type PushMessage struct {
	Sender           UserRef            `json:"sender"`
	ReceiverIDs      []int64            `json:"receiverIds"`
	ReceiveTerminals []int              `json:"receiveTerminals,omitempty"`
	SendToSelf       bool               `json:"sendToSelf"`
	Type             models.MessageType `json:"type"`
	Data             any                `json:"data"`
}

// DeliveryGateway fans a push payload out to users' live sessions. Delivery
// is best-effort: failures are logged by implementations and never affect
// the durable message.
type DeliveryGateway interface {
	Push(ctx context.Context, msg *PushMessage) error
	IsOnline(userID int64) bool
	// OnlineUserIDs filters candidates down to the ones with at least one
	// live session.
	OnlineUserIDs(candidates []int64) []int64
}
