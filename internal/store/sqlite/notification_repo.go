package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"chatcore/internal/domain"
)

type NotificationRepo struct {
	db *sql.DB
}

func NewNotificationRepo(db *sql.DB) *NotificationRepo {
	return &NotificationRepo{db: db}
}

var _ domain.NotificationRepository = (*NotificationRepo)(nil)

func (r *NotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO notifications (conversation_id, recipient_id, actor_id, kind, payload, created_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, n.ConversationID, n.RecipientID, n.ActorID, n.Kind, n.Payload)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	n.ID = id
	return nil
}

func (r *NotificationRepo) ListForRecipient(ctx context.Context, recipientID string, limit int) ([]*domain.Notification, error) {
	query := `
		SELECT id, conversation_id, recipient_id, actor_id, kind, payload, created_at
		FROM notifications
		WHERE recipient_id = ?
		ORDER BY id DESC
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, recipientID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var res []*domain.Notification
	for rows.Next() {
		n := &domain.Notification{}
		if err := rows.Scan(
			&n.ID,
			&n.ConversationID,
			&n.RecipientID,
			&n.ActorID,
			&n.Kind,
			&n.Payload,
			&n.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		res = append(res, n)
	}
	return res, rows.Err()
}
