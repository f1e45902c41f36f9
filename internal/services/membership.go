package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GroupMember is a user's membership record in one group.
type GroupMember struct {
	GroupID  int64
	UserID   int64
	NickName string
	Quit     bool
	JoinedAt time.Time
}

// FriendshipService answers friend-relation questions. Friend management
// itself lives in another service; the message pipeline only consumes it.
type FriendshipService interface {
	IsFriend(ctx context.Context, userID, friendID int64) (bool, error)
	FriendIDs(ctx context.Context, userID int64) ([]int64, error)
}

// GroupService answers group membership questions. Group CRUD lives in
// another service.
type GroupService interface {
	Exists(ctx context.Context, groupID int64) (bool, error)
	// Member returns the membership record, or nil when the user never
	// joined the group. Quit members are returned with Quit set.
	Member(ctx context.Context, groupID, userID int64) (*GroupMember, error)
	MemberIDs(ctx context.Context, groupID int64) ([]int64, error)
	// MembershipsOf lists the user's active memberships across all groups.
	MembershipsOf(ctx context.Context, userID int64) ([]GroupMember, error)
}

// PostgresFriendshipService reads the friend table maintained by the friend
// service.
type PostgresFriendshipService struct {
	db *sql.DB
}

func NewPostgresFriendshipService(db *sql.DB) *PostgresFriendshipService {
	return &PostgresFriendshipService{db: db}
}

func (s *PostgresFriendshipService) IsFriend(ctx context.Context, userID, friendID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM friend WHERE user_id = $1 AND friend_id = $2`, userID, friendID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking friendship %d->%d: %w", userID, friendID, err)
	}
	return true, nil
}

func (s *PostgresFriendshipService) FriendIDs(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT friend_id FROM friend WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing friends of %d: %w", userID, err)
	}
	return collectIDs(rows)
}

// PostgresGroupService reads the group tables maintained by the group
// service.
type PostgresGroupService struct {
	db *sql.DB
}

func NewPostgresGroupService(db *sql.DB) *PostgresGroupService {
	return &PostgresGroupService{db: db}
}

func (s *PostgresGroupService) Exists(ctx context.Context, groupID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM im_group WHERE id = $1 AND deleted = FALSE`, groupID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking group %d: %w", groupID, err)
	}
	return true, nil
}

func (s *PostgresGroupService) Member(ctx context.Context, groupID, userID int64) (*GroupMember, error) {
	var m GroupMember
	err := s.db.QueryRowContext(ctx, `
		SELECT group_id, user_id, nick_name, quit, joined_at
		FROM group_member WHERE group_id = $1 AND user_id = $2`,
		groupID, userID).Scan(&m.GroupID, &m.UserID, &m.NickName, &m.Quit, &m.JoinedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading member %d of group %d: %w", userID, groupID, err)
	}
	return &m, nil
}

func (s *PostgresGroupService) MemberIDs(ctx context.Context, groupID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM group_member WHERE group_id = $1 AND quit = FALSE`, groupID)
	if err != nil {
		return nil, fmt.Errorf("listing members of group %d: %w", groupID, err)
	}
	return collectIDs(rows)
}

func (s *PostgresGroupService) MembershipsOf(ctx context.Context, userID int64) ([]GroupMember, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT group_id, user_id, nick_name, quit, joined_at
		FROM group_member WHERE user_id = $1 AND quit = FALSE`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing memberships of %d: %w", userID, err)
	}
	defer rows.Close()
	var out []GroupMember
	for rows.Next() {
		var m GroupMember
		if err := rows.Scan(&m.GroupID, &m.UserID, &m.NickName, &m.Quit, &m.JoinedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func collectIDs(rows *sql.Rows) ([]int64, error) {
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
