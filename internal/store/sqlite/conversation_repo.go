package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"amora/internal/domain"
)

type ConversationRepo struct {
	db *sql.DB
}

func NewConversationRepo(db *sql.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

var _ domain.ConversationStore = (*ConversationRepo)(nil)

func (r *ConversationRepo) ListParticipantRows(ctx context.Context, userID string) ([]domain.ParticipantRow, error) {
	return r.listRows(ctx, "user_id = ?", userID)
}

func (r *ConversationRepo) ListConversationParticipants(ctx context.Context, conversationID string) ([]domain.ParticipantRow, error) {
	return r.listRows(ctx, "conversation_id = ?", conversationID)
}

func (r *ConversationRepo) listRows(ctx context.Context, where string, arg any) ([]domain.ParticipantRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT conversation_id, user_id
		FROM conversation_participants
		WHERE `+where+`
		ORDER BY conversation_id ASC, user_id ASC
	`, arg)
	if err != nil {
		return nil, fmt.Errorf("list participant rows: %w", err)
	}
	defer rows.Close()

	var res []domain.ParticipantRow
	for rows.Next() {
		var p domain.ParticipantRow
		if err := rows.Scan(&p.ConversationID, &p.UserID); err != nil {
			return nil, fmt.Errorf("scan participant row: %w", err)
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r *ConversationRepo) GetConversation(ctx context.Context, id string) (*domain.ConversationRecord, error) {
	c := &domain.ConversationRecord{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, created_at, updated_at, is_pinned, is_archived
		FROM conversations
		WHERE id = ?
	`, id).Scan(
		&c.ID,
		&c.CreatedAt,
		&c.UpdatedAt,
		&c.IsPinned,
		&c.IsArchived,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return c, nil
}

// FindDirect returns a conversation both users participate in. When a
// creation race has left duplicates, the most recently active one wins.
func (r *ConversationRepo) FindDirect(ctx context.Context, userID, otherUserID string) (*domain.ConversationRecord, error) {
	c := &domain.ConversationRecord{}
	err := r.db.QueryRowContext(ctx, `
		SELECT c.id, c.created_at, c.updated_at, c.is_pinned, c.is_archived
		FROM conversations c
		JOIN conversation_participants cp1 ON cp1.conversation_id = c.id AND cp1.user_id = ?
		JOIN conversation_participants cp2 ON cp2.conversation_id = c.id AND cp2.user_id = ?
		ORDER BY c.updated_at DESC, c.id ASC
		LIMIT 1
	`, userID, otherUserID).Scan(
		&c.ID,
		&c.CreatedAt,
		&c.UpdatedAt,
		&c.IsPinned,
		&c.IsArchived,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find direct conversation: %w", err)
	}
	return c, nil
}

func (r *ConversationRepo) InsertConversation(ctx context.Context) (string, error) {
	id := uuid.NewString()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO conversations (id, created_at, updated_at)
		VALUES (?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`, id)
	if err != nil {
		return "", fmt.Errorf("insert conversation: %w", err)
	}
	return id, nil
}

func (r *ConversationRepo) InsertParticipantRows(ctx context.Context, rows []domain.ParticipantRow) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, row := range rows {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO conversation_participants (user_id, conversation_id, joined_at)
			VALUES (?, ?, CURRENT_TIMESTAMP)
		`, row.UserID, row.ConversationID); err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *ConversationRepo) UpdateConversation(ctx context.Context, id string, upd domain.ConversationUpdate) error {
	sets := make([]string, 0, 3)
	args := make([]any, 0, 4)
	if upd.UpdatedAt != nil {
		sets = append(sets, "updated_at = ?")
		args = append(args, upd.UpdatedAt.UTC())
	}
	if upd.IsPinned != nil {
		sets = append(sets, "is_pinned = ?")
		args = append(args, *upd.IsPinned)
	}
	if upd.IsArchived != nil {
		sets = append(sets, "is_archived = ?")
		args = append(args, *upd.IsArchived)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	res, err := r.db.ExecContext(ctx,
		`UPDATE conversations SET `+strings.Join(sets, ", ")+` WHERE id = ?`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
