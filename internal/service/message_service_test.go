package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"amora/internal/domain"
	"amora/internal/realtime"
)

func participants(conversationID string, userIDs ...string) []domain.ParticipantRow {
	rows := make([]domain.ParticipantRow, 0, len(userIDs))
	for _, id := range userIDs {
		rows = append(rows, domain.ParticipantRow{ConversationID: conversationID, UserID: id})
	}
	return rows
}

func TestMessageService_History_AccessDenied(t *testing.T) {
	convs := new(MockConversationStore)
	msgs := new(MockMessageStore)
	svc := NewMessageService(convs, msgs, realtime.NewHub(), zap.NewNop())

	convs.On("ListConversationParticipants", mock.Anything, "c1").
		Return(participants("c1", "u2", "u3"), nil)

	_, err := svc.History(context.Background(), "c1", "u1")

	assert.ErrorIs(t, err, domain.ErrAccessDenied)
	msgs.AssertNotCalled(t, "ListMessages", mock.Anything, mock.Anything)
}

func TestMessageService_History(t *testing.T) {
	convs := new(MockConversationStore)
	msgs := new(MockMessageStore)
	svc := NewMessageService(convs, msgs, realtime.NewHub(), zap.NewNop())

	convs.On("ListConversationParticipants", mock.Anything, "c1").
		Return(participants("c1", "u1", "u2"), nil)
	history := []domain.Message{
		{ID: "m1", ConversationID: "c1", SenderID: "u2", Content: "hi"},
		{ID: "m2", ConversationID: "c1", SenderID: "u1", Content: "hey"},
	}
	msgs.On("ListMessages", mock.Anything, "c1").Return(history, nil)

	out, err := svc.History(context.Background(), "c1", "u1")

	assert.NoError(t, err)
	assert.Equal(t, history, out)
}

func TestMessageService_History_FetchFailure(t *testing.T) {
	convs := new(MockConversationStore)
	msgs := new(MockMessageStore)
	svc := NewMessageService(convs, msgs, realtime.NewHub(), zap.NewNop())

	convs.On("ListConversationParticipants", mock.Anything, "c1").
		Return(participants("c1", "u1", "u2"), nil)
	msgs.On("ListMessages", mock.Anything, "c1").Return(nil, errors.New("db down"))

	_, err := svc.History(context.Background(), "c1", "u1")
	assert.ErrorIs(t, err, domain.ErrFetchFailed)
}

func TestMessageService_Send_EmptyContent(t *testing.T) {
	svc := NewMessageService(new(MockConversationStore), new(MockMessageStore), realtime.NewHub(), zap.NewNop())

	_, err := svc.Send(context.Background(), MessageSendInput{ConversationID: "c1", Content: "   "}, "u1")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestMessageService_Send_PublishesAndBumpsActivity(t *testing.T) {
	convs := new(MockConversationStore)
	msgs := new(MockMessageStore)
	hub := realtime.NewHub()
	svc := NewMessageService(convs, msgs, hub, zap.NewNop())

	sub := hub.Subscribe("c1")
	defer hub.Unsubscribe(sub)

	stored := &domain.Message{
		ID:             "m1",
		ConversationID: "c1",
		SenderID:       "u1",
		Content:        "hello",
		CreatedAt:      time.Now().UTC(),
	}
	convs.On("ListConversationParticipants", mock.Anything, "c1").
		Return(participants("c1", "u1", "u2"), nil)
	msgs.On("InsertMessage", mock.Anything, "c1", "u1", "hello").Return(stored, nil)
	convs.On("UpdateConversation", mock.Anything, "c1", mock.MatchedBy(func(upd domain.ConversationUpdate) bool {
		return upd.UpdatedAt != nil
	})).Return(nil)

	out, err := svc.Send(context.Background(), MessageSendInput{ConversationID: "c1", Content: "  hello  "}, "u1")

	assert.NoError(t, err)
	assert.Equal(t, "m1", out.ID)

	select {
	case ev := <-sub.C:
		assert.Equal(t, "m1", ev.Message.ID)
	case <-time.After(time.Second):
		t.Fatal("insert was not published to the hub")
	}
	convs.AssertExpectations(t)
}

func TestMessageService_Send_BumpFailureSwallowed(t *testing.T) {
	convs := new(MockConversationStore)
	msgs := new(MockMessageStore)
	svc := NewMessageService(convs, msgs, realtime.NewHub(), zap.NewNop())

	stored := &domain.Message{ID: "m1", ConversationID: "c1", SenderID: "u1", Content: "hello"}
	convs.On("ListConversationParticipants", mock.Anything, "c1").
		Return(participants("c1", "u1", "u2"), nil)
	msgs.On("InsertMessage", mock.Anything, "c1", "u1", "hello").Return(stored, nil)
	convs.On("UpdateConversation", mock.Anything, "c1", mock.Anything).Return(errors.New("db down"))

	out, err := svc.Send(context.Background(), MessageSendInput{ConversationID: "c1", Content: "hello"}, "u1")

	assert.NoError(t, err, "the message is durable; a failed activity bump does not fail the send")
	assert.Equal(t, "m1", out.ID)
}

func TestMessageService_Send_InsertFailure(t *testing.T) {
	convs := new(MockConversationStore)
	msgs := new(MockMessageStore)
	svc := NewMessageService(convs, msgs, realtime.NewHub(), zap.NewNop())

	convs.On("ListConversationParticipants", mock.Anything, "c1").
		Return(participants("c1", "u1", "u2"), nil)
	msgs.On("InsertMessage", mock.Anything, "c1", "u1", "hello").Return(nil, errors.New("db down"))

	_, err := svc.Send(context.Background(), MessageSendInput{ConversationID: "c1", Content: "hello"}, "u1")
	assert.ErrorIs(t, err, domain.ErrSendFailed)
}
