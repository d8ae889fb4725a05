package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"amora/internal/domain"
)

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

var _ domain.MessageStore = (*MessageRepo)(nil)

const messageSelect = `
	SELECT m.id, m.conversation_id, m.sender_id, m.content, m.created_at, u.display_name, u.avatar_url
	FROM messages m
	JOIN users u ON u.id = m.sender_id
`

func scanMessage(row interface{ Scan(...any) error }) (*domain.Message, error) {
	var (
		m          domain.Message
		senderName sql.NullString
	)
	if err := row.Scan(
		&m.ID,
		&m.ConversationID,
		&m.SenderID,
		&m.Content,
		&m.CreatedAt,
		&senderName,
		&m.SenderAvatar,
	); err != nil {
		return nil, err
	}
	if !senderName.Valid || senderName.String == "" {
		return nil, fmt.Errorf("%w: message %s has no sender name", domain.ErrMalformedRow, m.ID)
	}
	m.SenderName = senderName.String
	return &m, nil
}

func (r *MessageRepo) ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, messageSelect+`
		WHERE m.conversation_id = ?
		ORDER BY m.created_at ASC, m.id ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var res []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		res = append(res, *m)
	}
	return res, rows.Err()
}

func (r *MessageRepo) InsertMessage(ctx context.Context, conversationID, senderID, content string) (*domain.Message, error) {
	id := uuid.NewString()
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO messages (id, content, conversation_id, sender_id, created_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, id, content, conversationID, senderID); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	// Re-read the stored row so the returned message carries the database
	// timestamp and resolved sender fields.
	m, err := scanMessage(r.db.QueryRowContext(ctx, messageSelect+` WHERE m.id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("read inserted message: %w", err)
	}
	return m, nil
}
