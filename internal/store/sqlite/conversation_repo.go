package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"chatcore/internal/domain"
)

type ConversationRepo struct {
	db *sql.DB
}

func NewConversationRepo(db *sql.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

var _ domain.ConversationRepository = (*ConversationRepo)(nil)

func (r *ConversationRepo) Create(ctx context.Context, c *domain.Conversation, participantIDs []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (title, is_group, created_at, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`, c.Title, c.IsGroup)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	c.ID = id

	for _, uid := range participantIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO participants (conversation_id, user_id, joined_at)
			VALUES (?, ?, CURRENT_TIMESTAMP)
		`, id, uid); err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *ConversationRepo) GetByID(ctx context.Context, id int64) (*domain.Conversation, error) {
	query := `
		SELECT id, title, is_group, created_at, updated_at
		FROM conversations
		WHERE id = ?
	`
	c := &domain.Conversation{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&c.ID,
		&c.Title,
		&c.IsGroup,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return c, nil
}

func (r *ConversationRepo) ListForUser(ctx context.Context, userID string) ([]*domain.Conversation, error) {
	query := `
		SELECT c.id, c.title, c.is_group, c.created_at, c.updated_at
		FROM conversations c
		JOIN participants p ON p.conversation_id = c.id
		WHERE p.user_id = ?
		ORDER BY c.updated_at DESC, c.id DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var res []*domain.Conversation
	for rows.Next() {
		c := &domain.Conversation{}
		if err := rows.Scan(
			&c.ID,
			&c.Title,
			&c.IsGroup,
			&c.CreatedAt,
			&c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r *ConversationRepo) FindExistingDirect(ctx context.Context, userA, userB string) (*domain.Conversation, error) {
	// A direct conversation is any non-group conversation both users
	// participate in.
	query := `
		SELECT c.id, c.title, c.is_group, c.created_at, c.updated_at
		FROM conversations c
		JOIN participants p1 ON p1.conversation_id = c.id AND p1.user_id = ?
		JOIN participants p2 ON p2.conversation_id = c.id AND p2.user_id = ?
		WHERE c.is_group = 0
		LIMIT 1
	`
	c := &domain.Conversation{}
	err := r.db.QueryRowContext(ctx, query, userA, userB).Scan(
		&c.ID,
		&c.Title,
		&c.IsGroup,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find direct conversation: %w", err)
	}
	return c, nil
}

// Touch bumps updated_at to the current time. This runs as its own statement
// after a message insert; the gap between the two writes is an accepted
// inconsistency window.
func (r *ConversationRepo) Touch(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE conversations
		SET updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND updated_at <= CURRENT_TIMESTAMP
	`, id)
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return nil
}

func (r *ConversationRepo) Delete(ctx context.Context, id int64) error {
	// Messages, participants, and notifications go with it via ON DELETE CASCADE.
	_, err := r.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}

func (r *ConversationRepo) MarkAsRead(ctx context.Context, conversationID int64, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE participants
		SET last_read_at = CURRENT_TIMESTAMP
		WHERE conversation_id = ? AND user_id = ?
	`, conversationID, userID)
	if err != nil {
		return fmt.Errorf("mark as read: %w", err)
	}
	return nil
}
