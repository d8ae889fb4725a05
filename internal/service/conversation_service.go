package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"amora/internal/domain"
)

// ConversationService resolves and lists direct conversations for a user.
type ConversationService struct {
	convs    domain.ConversationStore
	profiles domain.ProfileStore
	log      *zap.Logger
	timeout  time.Duration

	// OnCreated is invoked after a background persistence attempt succeeds,
	// so the owner can refresh its conversation list.
	OnCreated func(conversationID string)
}

func NewConversationService(
	convs domain.ConversationStore,
	profiles domain.ProfileStore,
	log *zap.Logger,
	timeout time.Duration,
) *ConversationService {
	return &ConversationService{
		convs:    convs,
		profiles: profiles,
		log:      log,
		timeout:  timeout,
	}
}

func conversationFromRecord(rec *domain.ConversationRecord, other *domain.Profile) *domain.Conversation {
	return &domain.Conversation{
		ID:         rec.ID,
		State:      domain.StatePersisted,
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
		IsPinned:   rec.IsPinned,
		IsArchived: rec.IsArchived,
		Other:      *other,
	}
}

// newerConversation reports whether a should win over b when both link the
// same pair of users. Ties on activity break by id so the winner is
// deterministic.
func newerConversation(a, b *domain.Conversation) bool {
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	return a.ID < b.ID
}

// Resolve determines the conversation linking the current user to another
// user. Known conversations are consulted first, then the store; when
// neither has one, a temporary conversation is returned immediately and a
// persistence attempt runs in the background.
func (s *ConversationService) Resolve(
	ctx context.Context,
	currentUserID, otherUserID string,
	known []domain.Conversation,
) (*domain.Conversation, error) {
	if currentUserID == "" {
		return nil, domain.ErrNotAuthenticated
	}
	if currentUserID == otherUserID {
		return nil, domain.ErrSelfConversation
	}

	for i := range known {
		if known[i].State == domain.StatePersisted && known[i].Other.ID == otherUserID {
			return &known[i], nil
		}
	}

	rec, err := s.findShared(ctx, currentUserID, otherUserID)
	if err != nil {
		return nil, err
	}

	prof, err := s.profiles.GetProfile(ctx, otherUserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: resolve profile: %v", domain.ErrFetchFailed, err)
	}

	if rec != nil {
		return conversationFromRecord(rec, prof), nil
	}

	now := time.Now().UTC()
	temp := &domain.Conversation{
		State:     domain.StateTemporary,
		CreatedAt: now,
		UpdatedAt: now,
		Other:     *prof,
	}

	// Persist without blocking the caller. Failure leaves the temporary
	// conversation as the working state; the first send retries creation.
	go func() {
		bctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		id, err := s.CreateDirect(bctx, currentUserID, otherUserID)
		if err != nil {
			s.log.Warn("background conversation create failed",
				zap.String("other_user_id", otherUserID),
				zap.Error(err))
			return
		}
		if s.OnCreated != nil {
			s.OnCreated(id)
		}
	}()

	return temp, nil
}

// findShared intersects the two users' participant rows and returns the
// most recently active shared conversation, or nil.
func (s *ConversationService) findShared(ctx context.Context, currentUserID, otherUserID string) (*domain.ConversationRecord, error) {
	mine, err := s.convs.ListParticipantRows(ctx, currentUserID)
	if err != nil {
		return nil, fmt.Errorf("%w: list own conversations: %v", domain.ErrFetchFailed, err)
	}
	mineSet := make(map[string]struct{}, len(mine))
	for _, row := range mine {
		mineSet[row.ConversationID] = struct{}{}
	}

	theirs, err := s.convs.ListParticipantRows(ctx, otherUserID)
	if err != nil {
		return nil, fmt.Errorf("%w: list other conversations: %v", domain.ErrFetchFailed, err)
	}

	var best *domain.ConversationRecord
	for _, row := range theirs {
		if _, ok := mineSet[row.ConversationID]; !ok {
			continue
		}
		rec, err := s.convs.GetConversation(ctx, row.ConversationID)
		if err != nil {
			return nil, fmt.Errorf("%w: get conversation: %v", domain.ErrFetchFailed, err)
		}
		if rec == nil {
			continue
		}
		if best == nil ||
			rec.UpdatedAt.After(best.UpdatedAt) ||
			(rec.UpdatedAt.Equal(best.UpdatedAt) && rec.ID < best.ID) {
			best = rec
		}
	}
	return best, nil
}

// CreateDirect returns the id of a persisted direct conversation between the
// two users, creating the conversation and both participant rows when none
// exists. Creation is at-least-once: two racing callers may both create a
// record for the same pair; List collapses such duplicates to the most
// recently active one.
func (s *ConversationService) CreateDirect(ctx context.Context, userID, otherUserID string) (string, error) {
	if userID == otherUserID {
		return "", domain.ErrSelfConversation
	}

	existing, err := s.convs.FindDirect(ctx, userID, otherUserID)
	if err != nil {
		return "", fmt.Errorf("find direct: %w", err)
	}
	if existing != nil {
		return existing.ID, nil
	}

	id, err := s.convs.InsertConversation(ctx)
	if err != nil {
		return "", fmt.Errorf("insert conversation: %w", err)
	}
	rows := []domain.ParticipantRow{
		{ConversationID: id, UserID: userID},
		{ConversationID: id, UserID: otherUserID},
	}
	if err := s.convs.InsertParticipantRows(ctx, rows); err != nil {
		return "", fmt.Errorf("insert participants: %w", err)
	}
	return id, nil
}

// EnsurePersisted promotes a temporary conversation to a persisted one,
// reusing an existing record when a background attempt already landed it.
func (s *ConversationService) EnsurePersisted(ctx context.Context, conv domain.Conversation, currentUserID string) (*domain.Conversation, error) {
	if conv.State == domain.StatePersisted {
		return &conv, nil
	}
	id, err := s.CreateDirect(ctx, currentUserID, conv.Other.ID)
	if err != nil {
		return nil, err
	}
	rec, err := s.convs.GetConversation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: reload conversation: %v", domain.ErrFetchFailed, err)
	}
	if rec == nil {
		return nil, domain.ErrNotFound
	}
	return conversationFromRecord(rec, &conv.Other), nil
}

// List returns the user's conversations with the other participant resolved,
// duplicates collapsed to the most recently active record per other
// participant, pinned conversations first, then most recent activity. Any
// store failure aborts the listing; a partial list is never returned.
func (s *ConversationService) List(ctx context.Context, currentUserID string) ([]domain.Conversation, error) {
	if currentUserID == "" {
		return nil, domain.ErrNotAuthenticated
	}

	rows, err := s.convs.ListParticipantRows(ctx, currentUserID)
	if err != nil {
		return nil, fmt.Errorf("%w: list conversations: %v", domain.ErrFetchFailed, err)
	}

	var resolved []domain.Conversation
	for _, row := range rows {
		rec, err := s.convs.GetConversation(ctx, row.ConversationID)
		if err != nil {
			return nil, fmt.Errorf("%w: get conversation: %v", domain.ErrFetchFailed, err)
		}
		if rec == nil {
			// Dangling participant row; nothing to show.
			continue
		}
		parts, err := s.convs.ListConversationParticipants(ctx, rec.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: list participants: %v", domain.ErrFetchFailed, err)
		}
		var otherID string
		for _, p := range parts {
			if p.UserID != currentUserID {
				otherID = p.UserID
				break
			}
		}
		if otherID == "" {
			// Solo conversation; excluded from presentation.
			continue
		}
		prof, err := s.profiles.GetProfile(ctx, otherID)
		if err != nil {
			return nil, fmt.Errorf("%w: profile %s: %v", domain.ErrFetchFailed, otherID, err)
		}
		resolved = append(resolved, *conversationFromRecord(rec, prof))
	}

	// Collapse duplicate conversations per other participant.
	index := make(map[string]int, len(resolved))
	out := make([]domain.Conversation, 0, len(resolved))
	for _, c := range resolved {
		i, ok := index[c.Other.ID]
		if !ok {
			index[c.Other.ID] = len(out)
			out = append(out, c)
			continue
		}
		if newerConversation(&c, &out[i]) {
			out[i] = c
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsPinned != out[j].IsPinned {
			return out[i].IsPinned
		}
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Get returns a single conversation with the other participant resolved,
// after checking that the caller participates in it.
func (s *ConversationService) Get(ctx context.Context, conversationID, currentUserID string) (*domain.Conversation, error) {
	rec, err := s.convs.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("%w: get conversation: %v", domain.ErrFetchFailed, err)
	}
	if rec == nil {
		return nil, domain.ErrNotFound
	}

	parts, err := s.convs.ListConversationParticipants(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("%w: list participants: %v", domain.ErrFetchFailed, err)
	}
	var otherID string
	isMember := false
	for _, p := range parts {
		if p.UserID == currentUserID {
			isMember = true
		} else {
			otherID = p.UserID
		}
	}
	if !isMember {
		return nil, domain.ErrAccessDenied
	}
	if otherID == "" {
		return nil, fmt.Errorf("%w: conversation %s has no other participant", domain.ErrMalformedRow, conversationID)
	}

	prof, err := s.profiles.GetProfile(ctx, otherID)
	if err != nil {
		return nil, fmt.Errorf("%w: profile %s: %v", domain.ErrFetchFailed, otherID, err)
	}
	return conversationFromRecord(rec, prof), nil
}

// SetPinned toggles the pinned flag for a conversation the caller
// participates in.
func (s *ConversationService) SetPinned(ctx context.Context, conversationID, currentUserID string, pinned bool) error {
	if _, err := s.Get(ctx, conversationID, currentUserID); err != nil {
		return err
	}
	return s.convs.UpdateConversation(ctx, conversationID, domain.ConversationUpdate{IsPinned: &pinned})
}

// SetArchived toggles the archived flag for a conversation the caller
// participates in.
func (s *ConversationService) SetArchived(ctx context.Context, conversationID, currentUserID string, archived bool) error {
	if _, err := s.Get(ctx, conversationID, currentUserID); err != nil {
		return err
	}
	return s.convs.UpdateConversation(ctx, conversationID, domain.ConversationUpdate{IsArchived: &archived})
}
