package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NaraSky/mesh-talk-platform/internal/broker"
	"github.com/NaraSky/mesh-talk-platform/internal/models"
	"github.com/NaraSky/mesh-talk-platform/pkg/snowflake"
)

type privateFixture struct {
	store   *memoryPrivateStore
	gateway *fakeGateway
	broker  *broker.ChannelBroker
	pool    *WorkerPool
	service *PrivateMessageService
}

func newPrivateFixture(t *testing.T, onlineUsers ...int64) *privateFixture {
	t.Helper()
	store := newMemoryPrivateStore()
	gateway := newFakeGateway(onlineUsers...)
	coordinator := NewTxCoordinator(store, newMemoryGroupStore())
	b := broker.NewChannelBroker(coordinator, 32)
	ids, err := snowflake.New(1)
	require.NoError(t, err)
	pool := NewWorkerPool(2, 16)

	service := NewPrivateMessageService(store, &fakeFriends{friends: map[int64][]int64{
		1: {2, 3},
		2: {1},
		3: {1},
	}}, gateway, b, ids, pool, MessageOptions{})
	return &privateFixture{store: store, gateway: gateway, broker: b, pool: pool, service: service}
}

func (f *privateFixture) drain(t *testing.T) {
	t.Helper()
	require.NoError(t, f.broker.Close())
	f.pool.Shutdown()
}

func TestPrivateSendPersistsPendingRow(t *testing.T) {
	f := newPrivateFixture(t)
	defer f.drain(t)

	id, err := f.service.Send(context.Background(), models.UserSession{UserID: 1}, &models.PrivateMessageDTO{
		RecvID:  2,
		Content: "hi",
		Type:    models.TypeText,
	})
	require.NoError(t, err)
	require.NotZero(t, id)

	row, ok := f.store.get(id)
	require.True(t, ok)
	assert.Equal(t, models.StatusUnsent, row.Status)
	assert.Equal(t, int64(1), row.SendID)
	assert.Equal(t, int64(2), row.RecvID)
}

func TestPrivateSendRejectsNonFriend(t *testing.T) {
	f := newPrivateFixture(t)
	defer f.drain(t)

	_, err := f.service.Send(context.Background(), models.UserSession{UserID: 1}, &models.PrivateMessageDTO{
		RecvID: 99, Content: "hi",
	})
	assert.True(t, errors.Is(err, models.ErrNotFriend))
}

func TestPrivateSendDeliversToRecipientAndOtherTerminals(t *testing.T) {
	f := newPrivateFixture(t, 1, 2)
	events := NewMessageEventConsumer(f.gateway, NewMemoryReadPositionStore(), MessageOptions{})
	events.Register(f.broker)
	require.NoError(t, f.broker.Start(context.Background()))

	id, err := f.service.Send(context.Background(), models.UserSession{UserID: 1, Terminal: 0}, &models.PrivateMessageDTO{
		RecvID: 2, Content: "hello", Type: models.TypeText,
	})
	require.NoError(t, err)
	f.drain(t)

	pushes := f.gateway.recorded()
	require.Len(t, pushes, 1)
	assert.Equal(t, []int64{2}, pushes[0].ReceiverIDs)
	assert.True(t, pushes[0].SendToSelf)
	delivered, ok := pushes[0].Data.(models.PrivateMessage)
	require.True(t, ok)
	assert.Equal(t, id, delivered.ID)
	assert.Equal(t, "hello", delivered.Content)
}

func TestPrivatePullUnreadRequiresConnection(t *testing.T) {
	f := newPrivateFixture(t)
	defer f.drain(t)

	err := f.service.PullUnread(context.Background(), models.UserSession{UserID: 1})
	assert.True(t, errors.Is(err, models.ErrNotConnected))
}

func TestPrivatePullUnreadPushesToCallingTerminalOnly(t *testing.T) {
	f := newPrivateFixture(t, 1)
	ctx := context.Background()
	require.NoError(t, f.store.Save(ctx, &models.PrivateMessage{
		ID: 10, SendID: 2, RecvID: 1, Content: "missed", Status: models.StatusUnsent, SendTime: time.Now(),
	}))
	// Rows from non-friends and already-delivered rows stay out.
	require.NoError(t, f.store.Save(ctx, &models.PrivateMessage{
		ID: 11, SendID: 99, RecvID: 1, Status: models.StatusUnsent, SendTime: time.Now(),
	}))
	require.NoError(t, f.store.Save(ctx, &models.PrivateMessage{
		ID: 12, SendID: 2, RecvID: 1, Status: models.StatusSent, SendTime: time.Now(),
	}))

	require.NoError(t, f.service.PullUnread(ctx, models.UserSession{UserID: 1, Terminal: 2}))
	f.drain(t)

	pushes := f.gateway.recorded()
	require.Len(t, pushes, 1)
	assert.Equal(t, []int64{1}, pushes[0].ReceiverIDs)
	assert.Equal(t, []int{2}, pushes[0].ReceiveTerminals)
	delivered := pushes[0].Data.(models.PrivateMessage)
	assert.Equal(t, int64(10), delivered.ID)

	// Pulling does not change row status.
	row, _ := f.store.get(10)
	assert.Equal(t, models.StatusUnsent, row.Status)
}

func TestPrivateLoadFlipsReceivedRowsToSent(t *testing.T) {
	f := newPrivateFixture(t)
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, f.store.Save(ctx, &models.PrivateMessage{
		ID: 20, SendID: 2, RecvID: 1, Status: models.StatusUnsent, SendTime: now,
	}))
	require.NoError(t, f.store.Save(ctx, &models.PrivateMessage{
		ID: 21, SendID: 1, RecvID: 2, Status: models.StatusUnsent, SendTime: now,
	}))

	messages, err := f.service.Load(ctx, models.UserSession{UserID: 1}, 0)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	f.drain(t)

	// The received row flips to Sent; the caller's own outgoing row does
	// not.
	received, _ := f.store.get(20)
	assert.Equal(t, models.StatusSent, received.Status)
	sent, _ := f.store.get(21)
	assert.Equal(t, models.StatusUnsent, sent.Status)
}

func TestPrivateLoadHonorsHistoryWindow(t *testing.T) {
	f := newPrivateFixture(t)
	defer f.drain(t)
	ctx := context.Background()
	require.NoError(t, f.store.Save(ctx, &models.PrivateMessage{
		ID: 30, SendID: 2, RecvID: 1, SendTime: time.Now().AddDate(0, 0, -40),
	}))
	require.NoError(t, f.store.Save(ctx, &models.PrivateMessage{
		ID: 31, SendID: 2, RecvID: 1, SendTime: time.Now(),
	}))

	messages, err := f.service.Load(ctx, models.UserSession{UserID: 1}, 0)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, int64(31), messages[0].ID)
}

func TestPrivateHistoryPagesNewestFirstExcludingRecalled(t *testing.T) {
	f := newPrivateFixture(t)
	defer f.drain(t)
	ctx := context.Background()
	now := time.Now()
	for i := int64(1); i <= 5; i++ {
		require.NoError(t, f.store.Save(ctx, &models.PrivateMessage{
			ID: i, SendID: 1, RecvID: 2, SendTime: now,
		}))
	}
	require.NoError(t, f.store.UpdateStatusByID(ctx, models.StatusRecalled, 4))

	page, err := f.service.History(ctx, models.UserSession{UserID: 1}, 2, 1, 3)
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, int64(5), page[0].ID)
	assert.Equal(t, int64(3), page[1].ID)
	assert.Equal(t, int64(2), page[2].ID)
}

func TestPrivateMarkReadUpdatesConversationAndNotifies(t *testing.T) {
	f := newPrivateFixture(t, 1, 2)
	ctx := context.Background()
	require.NoError(t, f.store.Save(ctx, &models.PrivateMessage{
		ID: 40, SendID: 2, RecvID: 1, Status: models.StatusSent, SendTime: time.Now(),
	}))
	require.NoError(t, f.store.Save(ctx, &models.PrivateMessage{
		ID: 41, SendID: 2, RecvID: 1, Status: models.StatusRecalled, SendTime: time.Now(),
	}))

	require.NoError(t, f.service.MarkRead(ctx, models.UserSession{UserID: 1}, 2))
	f.drain(t)

	row, _ := f.store.get(40)
	assert.Equal(t, models.StatusRead, row.Status)
	recalled, _ := f.store.get(41)
	assert.Equal(t, models.StatusRecalled, recalled.Status)

	pushes := f.gateway.recorded()
	require.Len(t, pushes, 1)
	assert.Equal(t, []int64{2}, pushes[0].ReceiverIDs)
	assert.True(t, pushes[0].SendToSelf)
	assert.Equal(t, models.TypeRead, pushes[0].Type)
}

func TestPrivateRecallWithinWindow(t *testing.T) {
	f := newPrivateFixture(t, 1, 2)
	ctx := context.Background()
	require.NoError(t, f.store.Save(ctx, &models.PrivateMessage{
		ID: 50, SendID: 1, RecvID: 2, Content: "oops", Status: models.StatusSent, SendTime: time.Now().Add(-time.Minute),
	}))

	require.NoError(t, f.service.Recall(ctx, models.UserSession{UserID: 1}, 50))
	f.drain(t)

	row, _ := f.store.get(50)
	assert.Equal(t, models.StatusRecalled, row.Status)

	pushes := f.gateway.recorded()
	require.Len(t, pushes, 2)
	assert.Equal(t, []int64{2}, pushes[0].ReceiverIDs)
	assert.Equal(t, models.TypeRecall, pushes[0].Type)
	assert.True(t, pushes[1].SendToSelf)
}

func TestPrivateRecallRejections(t *testing.T) {
	f := newPrivateFixture(t)
	defer f.drain(t)
	ctx := context.Background()
	require.NoError(t, f.store.Save(ctx, &models.PrivateMessage{
		ID: 60, SendID: 1, RecvID: 2, SendTime: time.Now().Add(-10 * time.Minute),
	}))
	require.NoError(t, f.store.Save(ctx, &models.PrivateMessage{
		ID: 61, SendID: 2, RecvID: 1, SendTime: time.Now(),
	}))

	err := f.service.Recall(ctx, models.UserSession{UserID: 1}, 60)
	assert.True(t, errors.Is(err, models.ErrRecallWindowExpired))

	err = f.service.Recall(ctx, models.UserSession{UserID: 1}, 61)
	assert.True(t, errors.Is(err, models.ErrNotOwner))

	err = f.service.Recall(ctx, models.UserSession{UserID: 1}, 62)
	assert.True(t, errors.Is(err, models.ErrMessageNotFound))

	// Rejected recalls leave the rows untouched.
	row, _ := f.store.get(60)
	assert.NotEqual(t, models.StatusRecalled, row.Status)
}
