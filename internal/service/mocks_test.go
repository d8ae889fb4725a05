package service

import (
	"context"

	"github.com/stretchr/testify/mock"

	"amora/internal/domain"
)

type MockUserRepo struct {
	mock.Mock
}

func (m *MockUserRepo) Create(ctx context.Context, u *domain.User) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

func (m *MockUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if u := args.Get(0); u != nil {
		return u.(*domain.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	args := m.Called(ctx, username)
	if u := args.Get(0); u != nil {
		return u.(*domain.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if u := args.Get(0); u != nil {
		return u.(*domain.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserRepo) SetOnlineStatus(ctx context.Context, id string, isOnline bool) error {
	args := m.Called(ctx, id, isOnline)
	return args.Error(0)
}

type MockProfileStore struct {
	mock.Mock
}

func (m *MockProfileStore) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	args := m.Called(ctx, userID)
	if p := args.Get(0); p != nil {
		return p.(*domain.Profile), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockConversationStore struct {
	mock.Mock
}

func (m *MockConversationStore) ListParticipantRows(ctx context.Context, userID string) ([]domain.ParticipantRow, error) {
	args := m.Called(ctx, userID)
	if rows := args.Get(0); rows != nil {
		return rows.([]domain.ParticipantRow), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockConversationStore) ListConversationParticipants(ctx context.Context, conversationID string) ([]domain.ParticipantRow, error) {
	args := m.Called(ctx, conversationID)
	if rows := args.Get(0); rows != nil {
		return rows.([]domain.ParticipantRow), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockConversationStore) GetConversation(ctx context.Context, id string) (*domain.ConversationRecord, error) {
	args := m.Called(ctx, id)
	if rec := args.Get(0); rec != nil {
		return rec.(*domain.ConversationRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockConversationStore) FindDirect(ctx context.Context, userID, otherUserID string) (*domain.ConversationRecord, error) {
	args := m.Called(ctx, userID, otherUserID)
	if rec := args.Get(0); rec != nil {
		return rec.(*domain.ConversationRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockConversationStore) InsertConversation(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockConversationStore) InsertParticipantRows(ctx context.Context, rows []domain.ParticipantRow) error {
	args := m.Called(ctx, rows)
	return args.Error(0)
}

func (m *MockConversationStore) UpdateConversation(ctx context.Context, id string, upd domain.ConversationUpdate) error {
	args := m.Called(ctx, id, upd)
	return args.Error(0)
}

type MockMessageStore struct {
	mock.Mock
}

func (m *MockMessageStore) ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	args := m.Called(ctx, conversationID)
	if msgs := args.Get(0); msgs != nil {
		return msgs.([]domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockMessageStore) InsertMessage(ctx context.Context, conversationID, senderID, content string) (*domain.Message, error) {
	args := m.Called(ctx, conversationID, senderID, content)
	if msg := args.Get(0); msg != nil {
		return msg.(*domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}
