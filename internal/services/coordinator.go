package services

import (
	"context"
	"log"

	"github.com/NaraSky/mesh-talk-platform/internal/broker"
	"github.com/NaraSky/mesh-talk-platform/internal/models"
)

// TxCoordinator implements the broker's local-transaction contract for
// message events: the execute callback persists the message as the local
// transaction, the check callback re-derives the outcome from the store
// when the broker lost track of an earlier send.
type TxCoordinator struct {
	private PrivateMessageStore
	group   GroupMessageStore
}

func NewTxCoordinator(private PrivateMessageStore, group GroupMessageStore) *TxCoordinator {
	return &TxCoordinator{private: private, group: group}
}

// ExecuteLocalTransaction persists the event's message with status Unsent.
// The write is an upsert keyed by the event's message id, so broker retries
// of the same event are harmless. Any failure maps to rollback: the message
// never becomes visible.
func (c *TxCoordinator) ExecuteLocalTransaction(ctx context.Context, event *models.TxEvent) broker.LocalTxOutcome {
	switch event.Kind {
	case models.KindPrivate:
		if event.Private == nil {
			log.Printf("tx: private event %d has no payload", event.MessageID)
			return broker.OutcomeRollback
		}
		msg := &models.PrivateMessage{
			ID:       event.MessageID,
			SendID:   event.SenderID,
			RecvID:   event.Private.RecvID,
			Content:  event.Private.Content,
			Type:     event.Private.Type,
			Status:   models.StatusUnsent,
			SendTime: event.SendTime,
		}
		if err := c.private.Save(ctx, msg); err != nil {
			log.Printf("tx: persisting private message %d failed: %v", event.MessageID, err)
			return broker.OutcomeRollback
		}
		return broker.OutcomeCommit
	case models.KindGroup:
		if event.Group == nil {
			log.Printf("tx: group event %d has no payload", event.MessageID)
			return broker.OutcomeRollback
		}
		msg := &models.GroupMessage{
			ID:           event.MessageID,
			GroupID:      event.Group.GroupID,
			SendID:       event.SenderID,
			SendNickName: event.Group.SendNickName,
			Content:      event.Group.Content,
			Type:         event.Group.Type,
			Status:       models.StatusUnsent,
			SendTime:     event.SendTime,
			AtUserIDs:    event.Group.AtUserIDs,
		}
		if err := c.group.Save(ctx, msg); err != nil {
			log.Printf("tx: persisting group message %d failed: %v", event.MessageID, err)
			return broker.OutcomeRollback
		}
		return broker.OutcomeCommit
	default:
		log.Printf("tx: event %d has unknown kind %d", event.MessageID, event.Kind)
		return broker.OutcomeRollback
	}
}

// CheckLocalTransaction answers the broker's check-back with an existence
// probe. Absence never maps to rollback here: the row may simply not be
// written yet, and a false rollback would silently drop a message. The
// broker retries until the row appears or its own give-up policy kicks in.
func (c *TxCoordinator) CheckLocalTransaction(ctx context.Context, event *models.TxEvent) broker.LocalTxOutcome {
	var (
		exists bool
		err    error
	)
	switch event.Kind {
	case models.KindPrivate:
		exists, err = c.private.Exists(ctx, event.MessageID)
	case models.KindGroup:
		exists, err = c.group.Exists(ctx, event.MessageID)
	default:
		return broker.OutcomeUnknown
	}
	if err != nil {
		log.Printf("tx: check-back probe for message %d failed: %v", event.MessageID, err)
		return broker.OutcomeUnknown
	}
	if exists {
		return broker.OutcomeCommit
	}
	return broker.OutcomeUnknown
}
