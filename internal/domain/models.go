package domain

import "time"

// User represents an application user with their dating profile fields.
type User struct {
	ID             string    `db:"id" json:"id"`
	Username       string    `db:"username" json:"username"`
	Email          *string   `db:"email" json:"email,omitempty"`
	HashedPassword string    `db:"hashed_password" json:"-"`
	DisplayName    string    `db:"display_name" json:"display_name"`
	AvatarURL      string    `db:"avatar_url" json:"avatar_url"`
	Age            *int      `db:"age" json:"age,omitempty"`
	Country        *string   `db:"country" json:"country,omitempty"`
	IsActive       bool      `db:"is_active" json:"is_active"`
	IsOnline       bool      `db:"is_online" json:"is_online"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	LastSeen       time.Time `db:"last_seen" json:"last_seen"`
}

// Profile is the public slice of a user shown as the other side of a
// conversation.
type Profile struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"display_name"`
	AvatarURL   string  `json:"avatar_url"`
	Age         *int    `json:"age,omitempty"`
	Country     *string `json:"country,omitempty"`
}

// ConversationState distinguishes a conversation that exists only in client
// memory from one backed by a persisted record.
type ConversationState int

const (
	// StateTemporary marks a conversation created locally before the store
	// has confirmed it. Its ID is empty.
	StateTemporary ConversationState = iota
	// StatePersisted marks a conversation backed by a stored record.
	StatePersisted
)

func (s ConversationState) String() string {
	if s == StateTemporary {
		return "temporary"
	}
	return "persisted"
}

// Conversation is a one-to-one thread as seen by the current user: the
// stored record plus the resolved profile of the other participant.
type Conversation struct {
	ID         string            `json:"id"`
	State      ConversationState `json:"-"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
	IsPinned   bool              `json:"is_pinned"`
	IsArchived bool              `json:"is_archived"`
	Other      Profile           `json:"other_participant"`
}

// Temporary reports whether the conversation has no persisted record yet.
func (c *Conversation) Temporary() bool {
	return c.State == StateTemporary
}

// ConversationRecord is the raw stored conversation row, before the other
// participant has been resolved.
type ConversationRecord struct {
	ID         string    `db:"id"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
	IsPinned   bool      `db:"is_pinned"`
	IsArchived bool      `db:"is_archived"`
}

// ConversationUpdate carries the mutable conversation fields; nil fields are
// left untouched.
type ConversationUpdate struct {
	UpdatedAt  *time.Time
	IsPinned   *bool
	IsArchived *bool
}

// ParticipantRow links a user to a conversation. Exactly two rows define a
// direct conversation; group conversations are not modeled.
type ParticipantRow struct {
	ConversationID string `db:"conversation_id" json:"conversation_id"`
	UserID         string `db:"user_id" json:"user_id"`
}

// Message is a single immutable chat message with sender display fields
// denormalized at read time.
type Message struct {
	ID             string    `db:"id" json:"id"`
	ConversationID string    `db:"conversation_id" json:"conversation_id"`
	SenderID       string    `db:"sender_id" json:"sender_id"`
	Content        string    `db:"content" json:"content"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	SenderName     string    `db:"sender_name" json:"sender_name"`
	SenderAvatar   string    `db:"sender_avatar" json:"sender_avatar"`
}
