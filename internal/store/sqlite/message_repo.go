package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"chatcore/internal/domain"
)

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

func (r *MessageRepo) Create(ctx context.Context, m *domain.Message) error {
	query := `
		INSERT INTO messages (conversation_id, sender_id, content, attachment, reply_to_id, created_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`
	res, err := r.db.ExecContext(ctx, query,
		m.ConversationID,
		m.SenderID,
		m.Content,
		m.Attachment,
		m.ReplyToID,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	m.ID = id
	return nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id int64) (*domain.Message, error) {
	query := `
		SELECT id, conversation_id, sender_id, content, attachment, reply_to_id, created_at
		FROM messages
		WHERE id = ?
	`
	m := &domain.Message{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&m.ID,
		&m.ConversationID,
		&m.SenderID,
		&m.Content,
		&m.Attachment,
		&m.ReplyToID,
		&m.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return m, nil
}

// ListForConversation returns up to limit messages, most recent first.
// Ordering is by row id, which is the persistence order; created_at only has
// second granularity and ties under rapid sends.
func (r *MessageRepo) ListForConversation(ctx context.Context, conversationID int64, limit int) ([]*domain.Message, error) {
	query := `
		SELECT id, conversation_id, sender_id, content, attachment, reply_to_id, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY id DESC
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var res []*domain.Message
	for rows.Next() {
		m := &domain.Message{}
		if err := rows.Scan(
			&m.ID,
			&m.ConversationID,
			&m.SenderID,
			&m.Content,
			&m.Attachment,
			&m.ReplyToID,
			&m.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r *MessageRepo) LastForConversation(ctx context.Context, conversationID int64) (*domain.Message, error) {
	msgs, err := r.ListForConversation(ctx, conversationID, 1)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	return msgs[0], nil
}

// PruneOld deletes the oldest messages beyond keepLimit for a conversation.
func (r *MessageRepo) PruneOld(ctx context.Context, conversationID int64, keepLimit int) error {
	var count int
	if err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages WHERE conversation_id = ?
	`, conversationID).Scan(&count); err != nil {
		return fmt.Errorf("count messages: %w", err)
	}

	if count <= keepLimit {
		return nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id FROM messages
		WHERE conversation_id = ?
		ORDER BY id ASC
		LIMIT ?
	`, conversationID, count-keepLimit)
	if err != nil {
		return fmt.Errorf("select old messages: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if len(ids) == 0 {
		return nil
	}

	query := `DELETE FROM messages WHERE id IN (?` + strings.Repeat(",?", len(ids)-1) + `)`
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete old messages: %w", err)
	}
	return nil
}
