package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/NaraSky/mesh-talk-platform/internal/broker"
	"github.com/NaraSky/mesh-talk-platform/internal/models"
	"github.com/NaraSky/mesh-talk-platform/pkg/snowflake"
)

// MessageOptions carries the tunables shared by the message services.
type MessageOptions struct {
	// PrivateDestination / GroupDestination name the broker destinations
	// committed events are published to.
	PrivateDestination string
	GroupDestination   string
	// RecallWindow is how long after SendTime a sender may recall.
	RecallWindow time.Duration
	// LoadWindowDays bounds incremental loads to recent history.
	LoadWindowDays int
	// LoadLimit caps rows per incremental load / unread pull.
	LoadLimit int
	// DefaultPageSize is the history page size when the caller passes none.
	DefaultPageSize int64
}

func (o *MessageOptions) defaults() {
	if o.PrivateDestination == "" {
		o.PrivateDestination = "im.message.private"
	}
	if o.GroupDestination == "" {
		o.GroupDestination = "im.message.group"
	}
	if o.RecallWindow <= 0 {
		o.RecallWindow = 5 * time.Minute
	}
	if o.LoadWindowDays <= 0 {
		o.LoadWindowDays = 30
	}
	if o.LoadLimit <= 0 {
		o.LoadLimit = 100
	}
	if o.DefaultPageSize <= 0 {
		o.DefaultPageSize = 10
	}
}

// PrivateMessageService orchestrates the 1:1 message pipeline: precondition
// checks, id generation, transactional submit, and the pull/load/read/recall
// operations.
type PrivateMessageService struct {
	store    PrivateMessageStore
	friends  FriendshipService
	gateway  DeliveryGateway
	producer broker.TransactionalProducer
	ids      *snowflake.Generator
	pool     *WorkerPool
	opts     MessageOptions
}

func NewPrivateMessageService(store PrivateMessageStore, friends FriendshipService, gateway DeliveryGateway, producer broker.TransactionalProducer, ids *snowflake.Generator, pool *WorkerPool, opts MessageOptions) *PrivateMessageService {
	opts.defaults()
	return &PrivateMessageService{
		store:    store,
		friends:  friends,
		gateway:  gateway,
		producer: producer,
		ids:      ids,
		pool:     pool,
		opts:     opts,
	}
}

// Send validates the friend relation, generates the message id, and submits
// the transactional event. It returns as soon as the half-message is
// accepted and the local transaction branch has executed; the returned id
// means "accepted for processing", not "delivered". A transport failure on
// the broker send is logged and the id is still returned: the check-back
// path resolves the outcome.
func (s *PrivateMessageService) Send(ctx context.Context, session models.UserSession, dto *models.PrivateMessageDTO) (int64, error) {
	if dto == nil || dto.RecvID == 0 {
		return 0, models.ErrInvalidParams
	}
	isFriend, err := s.friends.IsFriend(ctx, session.UserID, dto.RecvID)
	if err != nil {
		return 0, fmt.Errorf("checking friendship: %w", err)
	}
	if !isFriend {
		return 0, models.ErrNotFriend
	}

	messageID := s.ids.NextID()
	event := models.NewPrivateTxEvent(messageID, session.UserID, session.Terminal, time.Now(), s.opts.PrivateDestination, dto)
	if err := s.producer.SendInTransaction(ctx, event); err != nil {
		log.Printf("private: transactional send of message %d failed: %v", messageID, err)
	}
	return messageID, nil
}

// PullUnread pushes every Unsent message addressed to the caller to the
// caller's current terminal. It requires a live session and does not touch
// row status; the transition to Sent happens in the Load path.
func (s *PrivateMessageService) PullUnread(ctx context.Context, session models.UserSession) error {
	if !s.gateway.IsOnline(session.UserID) {
		return models.ErrNotConnected
	}
	friendIDs, err := s.friends.FriendIDs(ctx, session.UserID)
	if err != nil {
		return fmt.Errorf("listing friends: %w", err)
	}
	if len(friendIDs) == 0 {
		return nil
	}
	unread, err := s.store.ListUnread(ctx, session.UserID, friendIDs)
	if err != nil {
		return fmt.Errorf("listing unread messages: %w", err)
	}
	for i := range unread {
		msg := unread[i]
		s.pool.Submit(func() {
			push := &PushMessage{
				Sender:           UserRef{UserID: session.UserID, Terminal: session.Terminal},
				ReceiverIDs:      []int64{session.UserID},
				ReceiveTerminals: []int{session.Terminal},
				Type:             msg.Type,
				Data:             msg,
			}
			if err := s.gateway.Push(context.Background(), push); err != nil {
				log.Printf("private: pushing unread message %d failed: %v", msg.ID, err)
			}
		})
	}
	log.Printf("private: pulled unread messages, user %d, count %d", session.UserID, len(unread))
	return nil
}

// Load incrementally fetches messages with id > minID within the recent
// history window, ascending by id. Rows received by the caller and still
// Unsent are flipped to Sent asynchronously after the page is returned.
func (s *PrivateMessageService) Load(ctx context.Context, session models.UserSession, minID int64) ([]models.PrivateMessage, error) {
	friendIDs, err := s.friends.FriendIDs(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("listing friends: %w", err)
	}
	if len(friendIDs) == 0 {
		return []models.PrivateMessage{}, nil
	}
	minTime := time.Now().AddDate(0, 0, -s.opts.LoadWindowDays)
	messages, err := s.store.ListSince(ctx, session.UserID, minID, minTime, friendIDs, s.opts.LoadLimit)
	if err != nil {
		return nil, fmt.Errorf("loading messages: %w", err)
	}
	if len(messages) == 0 {
		return []models.PrivateMessage{}, nil
	}

	var received []int64
	for _, msg := range messages {
		if msg.SendID != session.UserID && msg.Status == models.StatusUnsent {
			received = append(received, msg.ID)
		}
	}
	if len(received) > 0 {
		s.pool.Submit(func() {
			if err := s.store.UpdateStatusByIDs(context.Background(), models.StatusSent, received); err != nil {
				log.Printf("private: batch status update for user %d failed: %v", session.UserID, err)
			}
		})
	}

	log.Printf("private: loaded messages, user %d, count %d", session.UserID, len(messages))
	return messages, nil
}

// History pages the conversation with one friend, newest first, recalled
// rows excluded.
func (s *PrivateMessageService) History(ctx context.Context, session models.UserSession, friendID, page, size int64) ([]models.PrivateMessage, error) {
	if friendID == 0 {
		return nil, models.ErrInvalidParams
	}
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = s.opts.DefaultPageSize
	}
	messages, err := s.store.ListHistory(ctx, session.UserID, friendID, (page-1)*size, size)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	if messages == nil {
		messages = []models.PrivateMessage{}
	}
	log.Printf("private: history, user %d, friend %d, count %d", session.UserID, friendID, len(messages))
	return messages, nil
}

// MarkRead marks the whole conversation from friendID to the caller as Read
// and pushes a synthetic read event to the friend and to the caller's other
// terminals so every device converges. The push carries no persistence of
// its own.
func (s *PrivateMessageService) MarkRead(ctx context.Context, session models.UserSession, friendID int64) error {
	if friendID == 0 {
		return models.ErrInvalidParams
	}

	readEvent := models.PrivateMessage{
		Type:     models.TypeRead,
		SendID:   session.UserID,
		RecvID:   friendID,
		SendTime: time.Now(),
	}
	s.pool.Submit(func() {
		push := &PushMessage{
			Sender:      UserRef{UserID: session.UserID, Terminal: session.Terminal},
			ReceiverIDs: []int64{friendID},
			SendToSelf:  true,
			Type:        models.TypeRead,
			Data:        readEvent,
		}
		if err := s.gateway.Push(context.Background(), push); err != nil {
			log.Printf("private: pushing read event %d->%d failed: %v", session.UserID, friendID, err)
		}
	})
	s.pool.Submit(func() {
		if err := s.store.UpdateStatusBySenderRecv(context.Background(), models.StatusRead, friendID, session.UserID); err != nil {
			log.Printf("private: marking conversation %d->%d read failed: %v", friendID, session.UserID, err)
		}
	})

	log.Printf("private: conversation read, receiver %d, sender %d", session.UserID, friendID)
	return nil
}

// Recall withdraws a message the caller sent no longer ago than the recall
// window. The row is updated to Recalled, then the recipient and the
// caller's other terminals are notified with differently worded markers.
func (s *PrivateMessageService) Recall(ctx context.Context, session models.UserSession, id int64) error {
	if id == 0 {
		return models.ErrInvalidParams
	}
	msg, err := s.store.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("loading message %d: %w", id, err)
	}
	if msg == nil {
		return models.ErrMessageNotFound
	}
	if msg.SendID != session.UserID {
		return models.ErrNotOwner
	}
	if time.Since(msg.SendTime) > s.opts.RecallWindow {
		return models.ErrRecallWindowExpired
	}
	if err := s.store.UpdateStatusByID(ctx, models.StatusRecalled, id); err != nil {
		return fmt.Errorf("recalling message %d: %w", id, err)
	}

	recalled := *msg
	recalled.Type = models.TypeRecall
	recalled.SendTime = time.Now()
	s.pool.Submit(func() {
		toPeer := recalled
		toPeer.Content = "The other party recalled a message"
		if err := s.gateway.Push(context.Background(), &PushMessage{
			Sender:      UserRef{UserID: session.UserID, Terminal: session.Terminal},
			ReceiverIDs: []int64{msg.RecvID},
			Type:        models.TypeRecall,
			Data:        toPeer,
		}); err != nil {
			log.Printf("private: recall push to %d failed: %v", msg.RecvID, err)
		}

		toSelf := recalled
		toSelf.Content = "You recalled a message"
		if err := s.gateway.Push(context.Background(), &PushMessage{
			Sender:     UserRef{UserID: session.UserID, Terminal: session.Terminal},
			SendToSelf: true,
			Type:       models.TypeRecall,
			Data:       toSelf,
		}); err != nil {
			log.Printf("private: recall self-push for %d failed: %v", session.UserID, err)
		}

		log.Printf("private: message recalled, sender %d, receiver %d, id %d", msg.SendID, msg.RecvID, id)
	})
	return nil
}
