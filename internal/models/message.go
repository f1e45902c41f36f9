package models

import "time"

// MessageStatus is the lifecycle state of a persisted message.
// A row is created as Unsent by the local transaction, becomes Sent once
// delivery has been attempted, Read once the recipient acknowledged it,
// and Recalled (terminal) when the sender withdraws it in time.
type MessageStatus int

const (
	StatusUnsent MessageStatus = iota
	StatusSent
	StatusRead
	StatusRecalled
)

// MessageType describes the content carried by a message. Values above
// TypeVideo are synthetic: they only ever appear in push payloads, never
// in persisted rows.
type MessageType int

const (
	TypeText MessageType = iota
	TypeImage
	TypeFile
	TypeAudio
	TypeVideo

	// Synthetic wire types for push payloads.
	TypeTip    MessageType = 9
	TypeRead   MessageType = 10
	TypeRecall MessageType = 11
)

// PrivateMessage is a 1:1 chat message row. Read state is stored directly
// on the row via Status.
type PrivateMessage struct {
	ID       int64         `json:"id"`
	SendID   int64         `json:"sendId"`
	RecvID   int64         `json:"recvId"`
	Content  string        `json:"content"`
	Type     MessageType   `json:"type"`
	Status   MessageStatus `json:"status"`
	SendTime time.Time     `json:"sendTime"`
}

// GroupMessage is a group chat message row. Unlike private messages the row
// carries no per-user read state; that is derived from the read-position
// store by comparing message ids against the user's position.
type GroupMessage struct {
	ID           int64         `json:"id"`
	GroupID      int64         `json:"groupId"`
	SendID       int64         `json:"sendId"`
	SendNickName string        `json:"sendNickName"`
	Content      string        `json:"content"`
	Type         MessageType   `json:"type"`
	Status       MessageStatus `json:"status"`
	SendTime     time.Time     `json:"sendTime"`
	AtUserIDs    []int64       `json:"atUserIds,omitempty"`
}

// PrivateMessageDTO is the send-message request body for private chats.
type PrivateMessageDTO struct {
	RecvID  int64       `json:"recvId"`
	Content string      `json:"content"`
	Type    MessageType `json:"type"`
}

// GroupMessageDTO is the send-message request body for group chats.
type GroupMessageDTO struct {
	GroupID   int64       `json:"groupId"`
	Content   string      `json:"content"`
	Type      MessageType `json:"type"`
	AtUserIDs []int64     `json:"atUserIds,omitempty"`
}

// UserSession identifies the calling user and the terminal (device type)
// the call originated from. It is resolved by the external auth layer and
// handed to the services by the controllers.
type UserSession struct {
	UserID   int64
	Terminal int
}
