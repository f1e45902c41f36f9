package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NaraSky/mesh-talk-platform/internal/broker"
	"github.com/NaraSky/mesh-talk-platform/internal/models"
)

func TestExecutePersistsUnsentRow(t *testing.T) {
	private := newMemoryPrivateStore()
	c := NewTxCoordinator(private, newMemoryGroupStore())

	event := models.NewPrivateTxEvent(41, 1, 0, time.Now(), "private", &models.PrivateMessageDTO{
		RecvID:  2,
		Content: "hello",
		Type:    models.TypeText,
	})
	outcome := c.ExecuteLocalTransaction(context.Background(), event)
	require.Equal(t, broker.OutcomeCommit, outcome)

	row, ok := private.get(41)
	require.True(t, ok)
	assert.Equal(t, models.StatusUnsent, row.Status)
	assert.Equal(t, int64(1), row.SendID)
	assert.Equal(t, int64(2), row.RecvID)
	assert.Equal(t, "hello", row.Content)
}

func TestExecuteIsIdempotent(t *testing.T) {
	private := newMemoryPrivateStore()
	c := NewTxCoordinator(private, newMemoryGroupStore())

	event := models.NewPrivateTxEvent(42, 1, 0, time.Now(), "private", &models.PrivateMessageDTO{
		RecvID: 2, Content: "again", Type: models.TypeText,
	})
	require.Equal(t, broker.OutcomeCommit, c.ExecuteLocalTransaction(context.Background(), event))

	// Mark delivered, then replay the event: the row must keep its
	// advanced status.
	require.NoError(t, private.UpdateStatusByID(context.Background(), models.StatusSent, 42))
	require.Equal(t, broker.OutcomeCommit, c.ExecuteLocalTransaction(context.Background(), event))

	row, ok := private.get(42)
	require.True(t, ok)
	assert.Equal(t, models.StatusSent, row.Status)
}

func TestExecuteRollsBackMalformedEvents(t *testing.T) {
	c := NewTxCoordinator(newMemoryPrivateStore(), newMemoryGroupStore())

	missingPayload := &models.TxEvent{Kind: models.KindPrivate, MessageID: 43}
	assert.Equal(t, broker.OutcomeRollback, c.ExecuteLocalTransaction(context.Background(), missingPayload))

	unknownKind := &models.TxEvent{Kind: 99, MessageID: 44}
	assert.Equal(t, broker.OutcomeRollback, c.ExecuteLocalTransaction(context.Background(), unknownKind))
}

func TestCheckCommitsWhenRowExists(t *testing.T) {
	private := newMemoryPrivateStore()
	group := newMemoryGroupStore()
	c := NewTxCoordinator(private, group)
	ctx := context.Background()

	require.NoError(t, private.Save(ctx, &models.PrivateMessage{ID: 50, SendID: 1, RecvID: 2}))
	require.NoError(t, group.Save(ctx, &models.GroupMessage{ID: 51, GroupID: 9, SendID: 1}))

	privateEvent := &models.TxEvent{Kind: models.KindPrivate, MessageID: 50}
	groupEvent := &models.TxEvent{Kind: models.KindGroup, MessageID: 51}
	assert.Equal(t, broker.OutcomeCommit, c.CheckLocalTransaction(ctx, privateEvent))
	assert.Equal(t, broker.OutcomeCommit, c.CheckLocalTransaction(ctx, groupEvent))
}

func TestCheckNeverRollsBack(t *testing.T) {
	c := NewTxCoordinator(newMemoryPrivateStore(), newMemoryGroupStore())
	ctx := context.Background()

	// Absent row: the write may still be in flight, so the answer is
	// unknown, not rollback.
	absent := &models.TxEvent{Kind: models.KindPrivate, MessageID: 60}
	assert.Equal(t, broker.OutcomeUnknown, c.CheckLocalTransaction(ctx, absent))

	unknownKind := &models.TxEvent{Kind: 99, MessageID: 61}
	assert.Equal(t, broker.OutcomeUnknown, c.CheckLocalTransaction(ctx, unknownKind))
}
