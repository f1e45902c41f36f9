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

// GroupMessageService orchestrates the group message pipeline. Read state
// for group messages is never persisted on rows; it is derived from the
// read-position store.
type GroupMessageService struct {
	store     GroupMessageStore
	groups    GroupService
	gateway   DeliveryGateway
	producer  broker.TransactionalProducer
	positions ReadPositionStore
	ids       *snowflake.Generator
	pool      *WorkerPool
	opts      MessageOptions
}

func NewGroupMessageService(store GroupMessageStore, groups GroupService, gateway DeliveryGateway, producer broker.TransactionalProducer, positions ReadPositionStore, ids *snowflake.Generator, pool *WorkerPool, opts MessageOptions) *GroupMessageService {
	opts.defaults()
	return &GroupMessageService{
		store:     store,
		groups:    groups,
		gateway:   gateway,
		producer:  producer,
		positions: positions,
		ids:       ids,
		pool:      pool,
		opts:      opts,
	}
}

// Send validates the group and the caller's membership, freezes the member
// list (minus the sender) into the event, and submits it transactionally.
// The sender's own other terminals see the message through the pull paths,
// never through this fan-out.
func (s *GroupMessageService) Send(ctx context.Context, session models.UserSession, dto *models.GroupMessageDTO) (int64, error) {
	if dto == nil || dto.GroupID == 0 {
		return 0, models.ErrInvalidParams
	}
	exists, err := s.groups.Exists(ctx, dto.GroupID)
	if err != nil {
		return 0, fmt.Errorf("checking group %d: %w", dto.GroupID, err)
	}
	if !exists {
		return 0, models.ErrGroupNotFound
	}
	member, err := s.groups.Member(ctx, dto.GroupID, session.UserID)
	if err != nil {
		return 0, fmt.Errorf("checking membership: %w", err)
	}
	if member == nil || member.Quit {
		return 0, models.ErrNotMember
	}

	memberIDs, err := s.groups.MemberIDs(ctx, dto.GroupID)
	if err != nil {
		return 0, fmt.Errorf("listing members of %d: %w", dto.GroupID, err)
	}
	recipients := make([]int64, 0, len(memberIDs))
	for _, id := range memberIDs {
		if id != session.UserID {
			recipients = append(recipients, id)
		}
	}

	messageID := s.ids.NextID()
	event := models.NewGroupTxEvent(messageID, session.UserID, session.Terminal, time.Now(), s.opts.GroupDestination, member.NickName, recipients, dto)
	if err := s.producer.SendInTransaction(ctx, event); err != nil {
		log.Printf("group: transactional send of message %d failed: %v", messageID, err)
	}
	return messageID, nil
}

// PullUnread walks the caller's groups and pushes, per group, every message
// past the caller's read position (bounded by join time and the page cap)
// to the caller's current terminal only. Positions advance as pushes go
// out, so the next pull starts where this one ended.
func (s *GroupMessageService) PullUnread(ctx context.Context, session models.UserSession) error {
	memberships, err := s.groups.MembershipsOf(ctx, session.UserID)
	if err != nil {
		return fmt.Errorf("listing memberships: %w", err)
	}
	for _, member := range memberships {
		member := member
		position, err := s.positions.Get(ctx, member.GroupID, session.UserID)
		if err != nil {
			log.Printf("group: reading position for group %d user %d failed: %v", member.GroupID, session.UserID, err)
			continue
		}
		unread, err := s.store.ListUnread(ctx, member.GroupID, member.JoinedAt, session.UserID, position, s.opts.LoadLimit)
		if err != nil {
			log.Printf("group: listing unread in group %d failed: %v", member.GroupID, err)
			continue
		}
		if len(unread) == 0 {
			continue
		}
		s.pool.Submit(func() {
			for i := range unread {
				msg := unread[i]
				push := &PushMessage{
					Sender:           UserRef{UserID: session.UserID, Terminal: session.Terminal},
					ReceiverIDs:      []int64{session.UserID},
					ReceiveTerminals: []int{session.Terminal},
					Type:             msg.Type,
					Data:             msg,
				}
				if err := s.gateway.Push(context.Background(), push); err != nil {
					log.Printf("group: pushing unread message %d failed: %v", msg.ID, err)
					continue
				}
				if err := s.positions.Advance(context.Background(), member.GroupID, session.UserID, msg.ID); err != nil {
					log.Printf("group: advancing position for group %d user %d failed: %v", member.GroupID, session.UserID, err)
				}
			}
		})
		log.Printf("group: pulled unread messages, user %d, group %d, count %d", session.UserID, member.GroupID, len(unread))
	}
	return nil
}

// Load incrementally fetches messages with id > minID across the caller's
// groups within the recent history window. Per-row status is synthesized at
// read time from the caller's read position in the row's group; nothing is
// written back.
func (s *GroupMessageService) Load(ctx context.Context, session models.UserSession, minID int64) ([]models.GroupMessage, error) {
	memberships, err := s.groups.MembershipsOf(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("listing memberships: %w", err)
	}
	if len(memberships) == 0 {
		return []models.GroupMessage{}, nil
	}
	groupIDs := make([]int64, len(memberships))
	for i, m := range memberships {
		groupIDs[i] = m.GroupID
	}

	minTime := time.Now().AddDate(0, 0, -s.opts.LoadWindowDays)
	messages, err := s.store.ListSince(ctx, minID, minTime, groupIDs, s.opts.LoadLimit)
	if err != nil {
		return nil, fmt.Errorf("loading group messages: %w", err)
	}
	if len(messages) == 0 {
		return []models.GroupMessage{}, nil
	}

	positions, err := s.positions.MultiGet(ctx, groupIDs, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("reading positions: %w", err)
	}
	positionByGroup := make(map[int64]int64, len(groupIDs))
	for i, groupID := range groupIDs {
		positionByGroup[groupID] = positions[i]
	}
	for i := range messages {
		if messages[i].ID <= positionByGroup[messages[i].GroupID] {
			messages[i].Status = models.StatusRead
		} else {
			messages[i].Status = models.StatusUnsent
		}
	}

	log.Printf("group: loaded messages, user %d, count %d", session.UserID, len(messages))
	return messages, nil
}

// History pages one group's messages sent after the caller joined, newest
// first, recalled rows excluded. Quit members are refused.
func (s *GroupMessageService) History(ctx context.Context, session models.UserSession, groupID, page, size int64) ([]models.GroupMessage, error) {
	if groupID == 0 {
		return nil, models.ErrInvalidParams
	}
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = s.opts.DefaultPageSize
	}
	member, err := s.groups.Member(ctx, groupID, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("checking membership: %w", err)
	}
	if member == nil || member.Quit {
		return nil, models.ErrNotMember
	}
	messages, err := s.store.ListHistory(ctx, groupID, member.JoinedAt, (page-1)*size, size)
	if err != nil {
		return nil, fmt.Errorf("loading group history: %w", err)
	}
	if messages == nil {
		messages = []models.GroupMessage{}
	}
	log.Printf("group: history, user %d, group %d, count %d", session.UserID, groupID, len(messages))
	return messages, nil
}

// Recall withdraws a group message the caller sent within the recall
// window, then notifies the frozen recipient set and the caller's other
// terminals.
func (s *GroupMessageService) Recall(ctx context.Context, session models.UserSession, id int64) error {
	if id == 0 {
		return models.ErrInvalidParams
	}
	msg, err := s.store.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("loading group message %d: %w", id, err)
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
		return fmt.Errorf("recalling group message %d: %w", id, err)
	}

	recipients, err := s.groups.MemberIDs(ctx, msg.GroupID)
	if err != nil {
		return fmt.Errorf("listing members of %d: %w", msg.GroupID, err)
	}
	others := make([]int64, 0, len(recipients))
	for _, uid := range recipients {
		if uid != session.UserID {
			others = append(others, uid)
		}
	}

	recalled := *msg
	recalled.Type = models.TypeRecall
	recalled.SendTime = time.Now()
	s.pool.Submit(func() {
		toMembers := recalled
		toMembers.Content = fmt.Sprintf("%q recalled a message", msg.SendNickName)
		if err := s.gateway.Push(context.Background(), &PushMessage{
			Sender:      UserRef{UserID: session.UserID, Terminal: session.Terminal},
			ReceiverIDs: others,
			Type:        models.TypeRecall,
			Data:        toMembers,
		}); err != nil {
			log.Printf("group: recall push for message %d failed: %v", id, err)
		}

		toSelf := recalled
		toSelf.Content = "You recalled a message"
		if err := s.gateway.Push(context.Background(), &PushMessage{
			Sender:     UserRef{UserID: session.UserID, Terminal: session.Terminal},
			SendToSelf: true,
			Type:       models.TypeRecall,
			Data:       toSelf,
		}); err != nil {
			log.Printf("group: recall self-push for message %d failed: %v", id, err)
		}

		log.Printf("group: message recalled, sender %d, group %d, id %d", msg.SendID, msg.GroupID, id)
	})
	return nil
}
