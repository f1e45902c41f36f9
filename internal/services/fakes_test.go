package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/NaraSky/mesh-talk-platform/internal/models"
)

// memoryPrivateStore mirrors the Postgres store's query semantics over an
// in-memory map so the services can be exercised without a database.
type memoryPrivateStore struct {
	mu   sync.Mutex
	rows map[int64]models.PrivateMessage
}

func newMemoryPrivateStore() *memoryPrivateStore {
	return &memoryPrivateStore{rows: make(map[int64]models.PrivateMessage)}
}

func (s *memoryPrivateStore) Save(ctx context.Context, msg *models.PrivateMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.rows[msg.ID]; ok {
		existing.Content = msg.Content
		existing.Type = msg.Type
		existing.SendTime = msg.SendTime
		s.rows[msg.ID] = existing
		return nil
	}
	s.rows[msg.ID] = *msg
	return nil
}

func (s *memoryPrivateStore) Exists(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rows[id]
	return ok, nil
}

func (s *memoryPrivateStore) GetByID(ctx context.Context, id int64) (*models.PrivateMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg, ok := s.rows[id]; ok {
		return &msg, nil
	}
	return nil, nil
}

func (s *memoryPrivateStore) ListUnread(ctx context.Context, recvID int64, senderIDs []int64) ([]models.PrivateMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	senders := toSet(senderIDs)
	var out []models.PrivateMessage
	for _, msg := range s.rows {
		if msg.RecvID == recvID && msg.Status == models.StatusUnsent && senders[msg.SendID] {
			out = append(out, msg)
		}
	}
	sortByIDAsc(out)
	return out, nil
}

func (s *memoryPrivateStore) ListSince(ctx context.Context, userID, minID int64, minTime time.Time, friendIDs []int64, limit int) ([]models.PrivateMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	friends := toSet(friendIDs)
	var out []models.PrivateMessage
	for _, msg := range s.rows {
		if msg.ID <= minID || msg.SendTime.Before(minTime) {
			continue
		}
		if (msg.RecvID == userID && friends[msg.SendID]) || (msg.SendID == userID && friends[msg.RecvID]) {
			out = append(out, msg)
		}
	}
	sortByIDAsc(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryPrivateStore) ListHistory(ctx context.Context, userID, friendID int64, offset, limit int64) ([]models.PrivateMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PrivateMessage
	for _, msg := range s.rows {
		if msg.Status == models.StatusRecalled {
			continue
		}
		if (msg.SendID == userID && msg.RecvID == friendID) || (msg.SendID == friendID && msg.RecvID == userID) {
			out = append(out, msg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if int64(len(out)) <= offset {
		return nil, nil
	}
	out = out[offset:]
	if int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryPrivateStore) UpdateStatusByIDs(ctx context.Context, status models.MessageStatus, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if msg, ok := s.rows[id]; ok && msg.Status < status {
			msg.Status = status
			s.rows[id] = msg
		}
	}
	return nil
}

func (s *memoryPrivateStore) UpdateStatusByID(ctx context.Context, status models.MessageStatus, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg, ok := s.rows[id]; ok {
		msg.Status = status
		s.rows[id] = msg
	}
	return nil
}

func (s *memoryPrivateStore) UpdateStatusBySenderRecv(ctx context.Context, status models.MessageStatus, sendID, recvID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, msg := range s.rows {
		if msg.SendID == sendID && msg.RecvID == recvID && msg.Status < status {
			msg.Status = status
			s.rows[id] = msg
		}
	}
	return nil
}

func (s *memoryPrivateStore) get(id int64) (models.PrivateMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.rows[id]
	return msg, ok
}

// memoryGroupStore is the group counterpart of memoryPrivateStore.
type memoryGroupStore struct {
	mu   sync.Mutex
	rows map[int64]models.GroupMessage
}

func newMemoryGroupStore() *memoryGroupStore {
	return &memoryGroupStore{rows: make(map[int64]models.GroupMessage)}
}

func (s *memoryGroupStore) Save(ctx context.Context, msg *models.GroupMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.rows[msg.ID]; ok {
		existing.Content = msg.Content
		existing.Type = msg.Type
		existing.SendTime = msg.SendTime
		existing.AtUserIDs = msg.AtUserIDs
		s.rows[msg.ID] = existing
		return nil
	}
	s.rows[msg.ID] = *msg
	return nil
}

func (s *memoryGroupStore) Exists(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rows[id]
	return ok, nil
}

func (s *memoryGroupStore) GetByID(ctx context.Context, id int64) (*models.GroupMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg, ok := s.rows[id]; ok {
		return &msg, nil
	}
	return nil, nil
}

func (s *memoryGroupStore) ListUnread(ctx context.Context, groupID int64, joinTime time.Time, selfID, afterID int64, limit int) ([]models.GroupMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.GroupMessage
	for _, msg := range s.rows {
		if msg.GroupID != groupID || msg.ID <= afterID || msg.SendTime.Before(joinTime) {
			continue
		}
		if msg.SendID == selfID || msg.Status == models.StatusRecalled {
			continue
		}
		out = append(out, msg)
	}
	sortGroupByIDAsc(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryGroupStore) ListSince(ctx context.Context, minID int64, minTime time.Time, groupIDs []int64, limit int) ([]models.GroupMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	groups := toSet(groupIDs)
	var out []models.GroupMessage
	for _, msg := range s.rows {
		if msg.ID <= minID || msg.SendTime.Before(minTime) {
			continue
		}
		if !groups[msg.GroupID] || msg.Status == models.StatusRecalled {
			continue
		}
		out = append(out, msg)
	}
	sortGroupByIDAsc(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryGroupStore) ListHistory(ctx context.Context, groupID int64, joinTime time.Time, offset, limit int64) ([]models.GroupMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.GroupMessage
	for _, msg := range s.rows {
		if msg.GroupID != groupID || msg.SendTime.Before(joinTime) || msg.Status == models.StatusRecalled {
			continue
		}
		out = append(out, msg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if int64(len(out)) <= offset {
		return nil, nil
	}
	out = out[offset:]
	if int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryGroupStore) UpdateStatusByID(ctx context.Context, status models.MessageStatus, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg, ok := s.rows[id]; ok {
		msg.Status = status
		s.rows[id] = msg
	}
	return nil
}

func (s *memoryGroupStore) get(id int64) (models.GroupMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.rows[id]
	return msg, ok
}

// fakeGateway records pushes and answers online checks from a fixed set.
type fakeGateway struct {
	mu     sync.Mutex
	online map[int64]bool
	pushes []PushMessage
}

func newFakeGateway(onlineUsers ...int64) *fakeGateway {
	g := &fakeGateway{online: make(map[int64]bool)}
	for _, id := range onlineUsers {
		g.online[id] = true
	}
	return g
}

func (g *fakeGateway) Push(ctx context.Context, msg *PushMessage) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pushes = append(g.pushes, *msg)
	return nil
}

func (g *fakeGateway) IsOnline(userID int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.online[userID]
}

func (g *fakeGateway) OnlineUserIDs(candidates []int64) []int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []int64
	for _, id := range candidates {
		if g.online[id] {
			out = append(out, id)
		}
	}
	return out
}

func (g *fakeGateway) recorded() []PushMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]PushMessage, len(g.pushes))
	copy(out, g.pushes)
	return out
}

// fakeFriends answers friendship from a static adjacency map.
type fakeFriends struct {
	friends map[int64][]int64
}

func (f *fakeFriends) IsFriend(ctx context.Context, userID, friendID int64) (bool, error) {
	for _, id := range f.friends[userID] {
		if id == friendID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeFriends) FriendIDs(ctx context.Context, userID int64) ([]int64, error) {
	return f.friends[userID], nil
}

// fakeGroups answers membership from static member lists.
type fakeGroups struct {
	members map[int64][]GroupMember
}

func (f *fakeGroups) Exists(ctx context.Context, groupID int64) (bool, error) {
	_, ok := f.members[groupID]
	return ok, nil
}

func (f *fakeGroups) Member(ctx context.Context, groupID, userID int64) (*GroupMember, error) {
	for _, m := range f.members[groupID] {
		if m.UserID == userID {
			m := m
			return &m, nil
		}
	}
	return nil, nil
}

func (f *fakeGroups) MemberIDs(ctx context.Context, groupID int64) ([]int64, error) {
	var out []int64
	for _, m := range f.members[groupID] {
		if !m.Quit {
			out = append(out, m.UserID)
		}
	}
	return out, nil
}

func (f *fakeGroups) MembershipsOf(ctx context.Context, userID int64) ([]GroupMember, error) {
	var out []GroupMember
	for _, members := range f.members {
		for _, m := range members {
			if m.UserID == userID && !m.Quit {
				out = append(out, m)
			}
		}
	}
	return out, nil
}

func toSet(ids []int64) map[int64]bool {
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func sortByIDAsc(msgs []models.PrivateMessage) {
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].ID < msgs[j].ID })
}

func sortGroupByIDAsc(msgs []models.GroupMessage) {
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].ID < msgs[j].ID })
}
