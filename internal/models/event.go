package models

import "time"

// EventKind discriminates the two transactional event variants. The set is
// closed: broker callbacks switch over it exhaustively and treat anything
// else as a malformed event.
type EventKind int

const (
	KindPrivate EventKind = iota + 1
	KindGroup
)

// GroupEventPayload is the group-specific part of a TxEvent. RecipientIDs is
// the group membership snapshot taken at send time with the sender removed;
// membership changes after the send never affect this delivery.
type GroupEventPayload struct {
	GroupMessageDTO
	SendNickName string  `json:"sendNickName"`
	RecipientIDs []int64 `json:"recipientIds"`
}

// TxEvent is the transactional envelope submitted to the broker. The
// MessageID is generated before any persistence and keys every write in the
// pipeline, so re-processing the same event is always idempotent. Exactly
// one of Private/Group is set, matching Kind.
type TxEvent struct {
	Kind        EventKind          `json:"kind"`
	MessageID   int64              `json:"messageId"`
	SenderID    int64              `json:"senderId"`
	Terminal    int                `json:"terminal"`
	SendTime    time.Time          `json:"sendTime"`
	Destination string             `json:"destination"`
	Private     *PrivateMessageDTO `json:"private,omitempty"`
	Group       *GroupEventPayload `json:"group,omitempty"`
}

// NewPrivateTxEvent builds the envelope for a private send.
func NewPrivateTxEvent(messageID, senderID int64, terminal int, sendTime time.Time, destination string, dto *PrivateMessageDTO) *TxEvent {
	return &TxEvent{
		Kind:        KindPrivate,
		MessageID:   messageID,
		SenderID:    senderID,
		Terminal:    terminal,
		SendTime:    sendTime,
		Destination: destination,
		Private:     dto,
	}
}

// NewGroupTxEvent builds the envelope for a group send. recipientIDs must
// already exclude the sender.
func NewGroupTxEvent(messageID, senderID int64, terminal int, sendTime time.Time, destination, sendNickName string, recipientIDs []int64, dto *GroupMessageDTO) *TxEvent {
	return &TxEvent{
		Kind:        KindGroup,
		MessageID:   messageID,
		SenderID:    senderID,
		Terminal:    terminal,
		SendTime:    sendTime,
		Destination: destination,
		Group: &GroupEventPayload{
			GroupMessageDTO: *dto,
			SendNickName:    sendNickName,
			RecipientIDs:    recipientIDs,
		},
	}
}
