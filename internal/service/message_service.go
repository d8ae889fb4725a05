package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"amora/internal/domain"
	"amora/internal/realtime"
)

// MessageService reads and writes message history for conversations the
// caller participates in, and publishes inserts to the realtime hub.
type MessageService struct {
	convs domain.ConversationStore
	msgs  domain.MessageStore
	hub   *realtime.Hub
	log   *zap.Logger
}

func NewMessageService(
	convs domain.ConversationStore,
	msgs domain.MessageStore,
	hub *realtime.Hub,
	log *zap.Logger,
) *MessageService {
	return &MessageService{
		convs: convs,
		msgs:  msgs,
		hub:   hub,
		log:   log,
	}
}

func (s *MessageService) requireParticipant(ctx context.Context, conversationID, userID string) error {
	parts, err := s.convs.ListConversationParticipants(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("%w: check participant: %v", domain.ErrFetchFailed, err)
	}
	for _, p := range parts {
		if p.UserID == userID {
			return nil
		}
	}
	return domain.ErrAccessDenied
}

// History returns the full ordered message history of a conversation. A
// caller who is not a participant gets ErrAccessDenied, never an empty
// history that looks like success.
func (s *MessageService) History(ctx context.Context, conversationID, userID string) ([]domain.Message, error) {
	if err := s.requireParticipant(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	msgs, err := s.msgs.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("%w: list messages: %v", domain.ErrFetchFailed, err)
	}
	return msgs, nil
}

type MessageSendInput struct {
	ConversationID string
	Content        string
}

// Send stores a message, publishes the insert to the realtime hub, and bumps
// the conversation's activity timestamp. The bump is best-effort: its
// failure is logged and swallowed because the message itself is already
// durable.
func (s *MessageService) Send(ctx context.Context, in MessageSendInput, senderID string) (*domain.Message, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, fmt.Errorf("%w: message content is empty", domain.ErrInvalidInput)
	}
	if err := s.requireParticipant(ctx, in.ConversationID, senderID); err != nil {
		return nil, err
	}

	msg, err := s.msgs.InsertMessage(ctx, in.ConversationID, senderID, content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSendFailed, err)
	}

	s.hub.Publish(realtime.MessageInsert{Message: *msg})

	now := time.Now().UTC()
	if err := s.convs.UpdateConversation(ctx, in.ConversationID, domain.ConversationUpdate{UpdatedAt: &now}); err != nil {
		s.log.Warn("bump conversation activity failed",
			zap.String("conversation_id", in.ConversationID),
			zap.Error(err))
	}

	return msg, nil
}
