package domain

import (
	"context"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	SetOnlineStatus(ctx context.Context, id string, isOnline bool) error
}

// ProfileStore resolves the public profile of a user.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*Profile, error)
}

// ConversationStore defines persistence operations for conversations and
// their participant rows.
type ConversationStore interface {
	ListParticipantRows(ctx context.Context, userID string) ([]ParticipantRow, error)
	ListConversationParticipants(ctx context.Context, conversationID string) ([]ParticipantRow, error)
	GetConversation(ctx context.Context, id string) (*ConversationRecord, error)
	// FindDirect returns a conversation both users participate in, or nil.
	// When duplicates exist it returns the most recently active one.
	FindDirect(ctx context.Context, userID, otherUserID string) (*ConversationRecord, error)
	InsertConversation(ctx context.Context) (string, error)
	InsertParticipantRows(ctx context.Context, rows []ParticipantRow) error
	UpdateConversation(ctx context.Context, id string, upd ConversationUpdate) error
}

// MessageStore defines persistence operations for messages.
type MessageStore interface {
	// ListMessages returns the full history of a conversation ordered by
	// created_at ascending, sender fields resolved.
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)
	InsertMessage(ctx context.Context, conversationID, senderID, content string) (*Message, error)
}
