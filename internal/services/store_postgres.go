package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/NaraSky/mesh-talk-platform/internal/models"
)

// PostgresPrivateMessageStore persists private messages in the
// private_message table.
type PostgresPrivateMessageStore struct {
	db *sql.DB
}

func NewPostgresPrivateMessageStore(db *sql.DB) *PostgresPrivateMessageStore {
	return &PostgresPrivateMessageStore{db: db}
}

func (s *PostgresPrivateMessageStore) Save(ctx context.Context, msg *models.PrivateMessage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO private_message (id, send_id, recv_id, content, type, status, send_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			type = EXCLUDED.type,
			send_time = EXCLUDED.send_time`,
		msg.ID, msg.SendID, msg.RecvID, msg.Content, msg.Type, msg.Status, msg.SendTime)
	if err != nil {
		return fmt.Errorf("saving private message %d: %w", msg.ID, err)
	}
	return nil
}

func (s *PostgresPrivateMessageStore) Exists(ctx context.Context, id int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM private_message WHERE id = $1`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("probing private message %d: %w", id, err)
	}
	return true, nil
}

func (s *PostgresPrivateMessageStore) GetByID(ctx context.Context, id int64) (*models.PrivateMessage, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, send_id, recv_id, content, type, status, send_time
		FROM private_message WHERE id = $1`, id)
	msg, err := scanPrivateMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading private message %d: %w", id, err)
	}
	return msg, nil
}

func (s *PostgresPrivateMessageStore) ListUnread(ctx context.Context, recvID int64, senderIDs []int64) ([]models.PrivateMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, send_id, recv_id, content, type, status, send_time
		FROM private_message
		WHERE recv_id = $1 AND status = $2 AND send_id = ANY($3)
		ORDER BY id ASC`,
		recvID, models.StatusUnsent, pq.Array(senderIDs))
	if err != nil {
		return nil, fmt.Errorf("listing unread private messages for %d: %w", recvID, err)
	}
	return collectPrivateMessages(rows)
}

func (s *PostgresPrivateMessageStore) ListSince(ctx context.Context, userID, minID int64, minTime time.Time, friendIDs []int64, limit int) ([]models.PrivateMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, send_id, recv_id, content, type, status, send_time
		FROM private_message
		WHERE id > $1 AND send_time >= $2
		  AND ((recv_id = $3 AND send_id = ANY($4)) OR (send_id = $3 AND recv_id = ANY($4)))
		ORDER BY id ASC
		LIMIT $5`,
		minID, minTime, userID, pq.Array(friendIDs), limit)
	if err != nil {
		return nil, fmt.Errorf("loading private messages for %d since %d: %w", userID, minID, err)
	}
	return collectPrivateMessages(rows)
}

func (s *PostgresPrivateMessageStore) ListHistory(ctx context.Context, userID, friendID int64, offset, limit int64) ([]models.PrivateMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, send_id, recv_id, content, type, status, send_time
		FROM private_message
		WHERE ((send_id = $1 AND recv_id = $2) OR (send_id = $2 AND recv_id = $1))
		  AND status != $3
		ORDER BY id DESC
		OFFSET $4 LIMIT $5`,
		userID, friendID, models.StatusRecalled, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("loading private history %d<->%d: %w", userID, friendID, err)
	}
	return collectPrivateMessages(rows)
}

func (s *PostgresPrivateMessageStore) UpdateStatusByIDs(ctx context.Context, status models.MessageStatus, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE private_message SET status = $1 WHERE id = ANY($2) AND status < $1`,
		status, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("batch updating private message status: %w", err)
	}
	return nil
}

func (s *PostgresPrivateMessageStore) UpdateStatusByID(ctx context.Context, status models.MessageStatus, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE private_message SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("updating private message %d status: %w", id, err)
	}
	return nil
}

func (s *PostgresPrivateMessageStore) UpdateStatusBySenderRecv(ctx context.Context, status models.MessageStatus, sendID, recvID int64) error {
	// status < $1 leaves recalled rows untouched and makes the update
	// idempotent.
	_, err := s.db.ExecContext(ctx,
		`UPDATE private_message SET status = $1 WHERE send_id = $2 AND recv_id = $3 AND status < $1`,
		status, sendID, recvID)
	if err != nil {
		return fmt.Errorf("updating conversation %d->%d status: %w", sendID, recvID, err)
	}
	return nil
}

func scanPrivateMessage(row *sql.Row) (*models.PrivateMessage, error) {
	var msg models.PrivateMessage
	err := row.Scan(&msg.ID, &msg.SendID, &msg.RecvID, &msg.Content, &msg.Type, &msg.Status, &msg.SendTime)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func collectPrivateMessages(rows *sql.Rows) ([]models.PrivateMessage, error) {
	defer rows.Close()
	var out []models.PrivateMessage
	for rows.Next() {
		var msg models.PrivateMessage
		if err := rows.Scan(&msg.ID, &msg.SendID, &msg.RecvID, &msg.Content, &msg.Type, &msg.Status, &msg.SendTime); err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

// PostgresGroupMessageStore persists group messages in the group_message
// table. The mentioned-user list is stored comma-joined in a single column.
type PostgresGroupMessageStore struct {
	db *sql.DB
}

func NewPostgresGroupMessageStore(db *sql.DB) *PostgresGroupMessageStore {
	return &PostgresGroupMessageStore{db: db}
}

func (s *PostgresGroupMessageStore) Save(ctx context.Context, msg *models.GroupMessage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO group_message (id, group_id, send_id, send_nick_name, content, type, status, send_time, at_user_ids)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			type = EXCLUDED.type,
			send_time = EXCLUDED.send_time,
			at_user_ids = EXCLUDED.at_user_ids`,
		msg.ID, msg.GroupID, msg.SendID, msg.SendNickName, msg.Content, msg.Type, msg.Status, msg.SendTime, joinIDs(msg.AtUserIDs))
	if err != nil {
		return fmt.Errorf("saving group message %d: %w", msg.ID, err)
	}
	return nil
}

func (s *PostgresGroupMessageStore) Exists(ctx context.Context, id int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM group_message WHERE id = $1`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("probing group message %d: %w", id, err)
	}
	return true, nil
}

func (s *PostgresGroupMessageStore) GetByID(ctx context.Context, id int64) (*models.GroupMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, group_id, send_id, send_nick_name, content, type, status, send_time, at_user_ids
		FROM group_message WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("loading group message %d: %w", id, err)
	}
	msgs, err := collectGroupMessages(rows)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	return &msgs[0], nil
}

func (s *PostgresGroupMessageStore) ListUnread(ctx context.Context, groupID int64, joinTime time.Time, selfID, afterID int64, limit int) ([]models.GroupMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, group_id, send_id, send_nick_name, content, type, status, send_time, at_user_ids
		FROM group_message
		WHERE group_id = $1 AND id > $2 AND send_time >= $3
		  AND send_id != $4 AND status != $5
		ORDER BY id ASC
		LIMIT $6`,
		groupID, afterID, joinTime, selfID, models.StatusRecalled, limit)
	if err != nil {
		return nil, fmt.Errorf("listing unread group messages in %d: %w", groupID, err)
	}
	return collectGroupMessages(rows)
}

func (s *PostgresGroupMessageStore) ListSince(ctx context.Context, minID int64, minTime time.Time, groupIDs []int64, limit int) ([]models.GroupMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, group_id, send_id, send_nick_name, content, type, status, send_time, at_user_ids
		FROM group_message
		WHERE id > $1 AND send_time >= $2 AND group_id = ANY($3) AND status != $4
		ORDER BY id ASC
		LIMIT $5`,
		minID, minTime, pq.Array(groupIDs), models.StatusRecalled, limit)
	if err != nil {
		return nil, fmt.Errorf("loading group messages since %d: %w", minID, err)
	}
	return collectGroupMessages(rows)
}

func (s *PostgresGroupMessageStore) ListHistory(ctx context.Context, groupID int64, joinTime time.Time, offset, limit int64) ([]models.GroupMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, group_id, send_id, send_nick_name, content, type, status, send_time, at_user_ids
		FROM group_message
		WHERE group_id = $1 AND send_time >= $2 AND status != $3
		ORDER BY id DESC
		OFFSET $4 LIMIT $5`,
		groupID, joinTime, models.StatusRecalled, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("loading group history %d: %w", groupID, err)
	}
	return collectGroupMessages(rows)
}

func (s *PostgresGroupMessageStore) UpdateStatusByID(ctx context.Context, status models.MessageStatus, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE group_message SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("updating group message %d status: %w", id, err)
	}
	return nil
}

func collectGroupMessages(rows *sql.Rows) ([]models.GroupMessage, error) {
	defer rows.Close()
	var out []models.GroupMessage
	for rows.Next() {
		var msg models.GroupMessage
		var atIDs string
		if err := rows.Scan(&msg.ID, &msg.GroupID, &msg.SendID, &msg.SendNickName, &msg.Content, &msg.Type, &msg.Status, &msg.SendTime, &atIDs); err != nil {
			return nil, err
		}
		msg.AtUserIDs = splitIDs(atIDs)
		out = append(out, msg)
	}
	return out, rows.Err()
}

func joinIDs(ids []int64) string {
	if len(ids) == 0 {
		return ""
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

func splitIDs(s string) []int64 {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out
}
