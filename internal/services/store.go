package services

import (
	"context"
	"time"

	"github.com/NaraSky/mesh-talk-platform/internal/models"
)

// PrivateMessageStore is the persistence contract for private messages.
// Save is an upsert keyed by the pre-generated message id, so replaying the
// same transactional event never creates duplicates.
type PrivateMessageStore interface {
	Save(ctx context.Context, msg *models.PrivateMessage) error
	// Exists is a cheap existence probe used by the transaction
	// coordinator's check-back path.
	Exists(ctx context.Context, id int64) (bool, error)
	GetByID(ctx context.Context, id int64) (*models.PrivateMessage, error)
	// ListUnread returns Unsent rows addressed to recvID from the given
	// senders.
	ListUnread(ctx context.Context, recvID int64, senderIDs []int64) ([]models.PrivateMessage, error)
	// ListSince returns rows exchanged between userID and its friends with
	// id > minID and send_time >= minTime, ascending by id, capped at limit.
	ListSince(ctx context.Context, userID, minID int64, minTime time.Time, friendIDs []int64, limit int) ([]models.PrivateMessage, error)
	// ListHistory pages the conversation between userID and friendID,
	// descending by id, excluding recalled rows.
	ListHistory(ctx context.Context, userID, friendID int64, offset, limit int64) ([]models.PrivateMessage, error)
	UpdateStatusByIDs(ctx context.Context, status models.MessageStatus, ids []int64) error
	UpdateStatusByID(ctx context.Context, status models.MessageStatus, id int64) error
	// UpdateStatusBySenderRecv bulk-updates every non-terminal row sent by
	// sendID to recvID.
	UpdateStatusBySenderRecv(ctx context.Context, status models.MessageStatus, sendID, recvID int64) error
}

// GroupMessageStore is the persistence contract for group messages. Group
// rows never carry per-user read state; read queries take the caller's read
// position as a plain id bound instead.
type GroupMessageStore interface {
	Save(ctx context.Context, msg *models.GroupMessage) error
	Exists(ctx context.Context, id int64) (bool, error)
	GetByID(ctx context.Context, id int64) (*models.GroupMessage, error)
	// ListUnread returns rows of groupID with id > afterID, sent after
	// joinTime, excluding recalled rows and rows authored by selfID,
	// ascending by id, capped at limit.
	ListUnread(ctx context.Context, groupID int64, joinTime time.Time, selfID, afterID int64, limit int) ([]models.GroupMessage, error)
	// ListSince returns rows across groupIDs with id > minID and
	// send_time >= minTime, excluding recalled rows, ascending by id.
	ListSince(ctx context.Context, minID int64, minTime time.Time, groupIDs []int64, limit int) ([]models.GroupMessage, error)
	// ListHistory pages one group's rows sent after joinTime, descending by
	// id, excluding recalled rows.
	ListHistory(ctx context.Context, groupID int64, joinTime time.Time, offset, limit int64) ([]models.GroupMessage, error)
	UpdateStatusByID(ctx context.Context, status models.MessageStatus, id int64) error
}
