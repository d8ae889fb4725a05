package service

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"amora/internal/domain"
	"amora/internal/realtime"
)

// SyncState is the history-loading state of the active conversation.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncLoading
	SyncLoaded
	SyncFailed
)

func (s SyncState) String() string {
	switch s {
	case SyncIdle:
		return "idle"
	case SyncLoading:
		return "loading"
	case SyncLoaded:
		return "loaded"
	default:
		return "failed"
	}
}

// EventKind tags the events a Synchronizer emits to its consumer.
type EventKind int

const (
	// EventHistory carries the full history after a selection loaded.
	EventHistory EventKind = iota
	// EventHistoryError reports a failed history load; retry by selecting
	// the conversation again.
	EventHistoryError
	// EventMessage carries a single newly added message (optimistic append
	// or realtime delivery).
	EventMessage
)

type Event struct {
	Kind           EventKind
	ConversationID string
	Messages       []domain.Message
	Message        domain.Message
	Err            error
}

// Synchronizer keeps one client's view of its conversations and the active
// conversation's message history consistent across history fetches, sends,
// and realtime deliveries. All async results are reconciled into a single
// mutex-guarded state; consumers observe changes on Events.
type Synchronizer struct {
	userID  string
	convs   *ConversationService
	msgs    *MessageService
	hub     *realtime.Hub
	log     *zap.Logger
	timeout time.Duration

	mu            sync.Mutex
	state         SyncState
	conversations []domain.Conversation
	temp          *domain.Conversation
	active        *domain.Conversation
	messages      []domain.Message
	lastErr       error
	// seq increments on every selection; async results carrying an older
	// seq are stale and discarded.
	seq uint64
	sub *realtime.Subscription

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
}

func NewSynchronizer(
	userID string,
	convs *ConversationService,
	msgs *MessageService,
	hub *realtime.Hub,
	log *zap.Logger,
	timeout time.Duration,
) *Synchronizer {
	return &Synchronizer{
		userID:  userID,
		convs:   convs,
		msgs:    msgs,
		hub:     hub,
		log:     log,
		timeout: timeout,
		state:   SyncIdle,
		events:  make(chan Event, 64),
		done:    make(chan struct{}),
	}
}

// Events delivers state changes produced by async work (history loads,
// realtime messages). The channel is never closed; wait on Done instead.
func (s *Synchronizer) Events() <-chan Event { return s.events }

// Done is closed when the synchronizer shuts down.
func (s *Synchronizer) Done() <-chan struct{} { return s.done }

func (s *Synchronizer) State() SyncState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Synchronizer) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Active returns a copy of the active conversation, or nil.
func (s *Synchronizer) Active() *domain.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return nil
	}
	c := *s.active
	return &c
}

// Messages returns a copy of the active conversation's message list.
func (s *Synchronizer) Messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.messages)
}

// Conversations fetches the reconciled conversation list and prepends the
// in-memory temporary conversation until a persisted record supersedes it.
func (s *Synchronizer) Conversations(ctx context.Context) ([]domain.Conversation, error) {
	list, err := s.convs.List(ctx, s.userID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.temp != nil {
		superseded := false
		for _, c := range list {
			if c.Other.ID == s.temp.Other.ID {
				superseded = true
				break
			}
		}
		if superseded {
			s.temp = nil
		} else {
			list = append([]domain.Conversation{*s.temp}, list...)
		}
	}
	s.conversations = list
	s.mu.Unlock()
	return list, nil
}

// Open resolves the conversation with the given user and selects it. The
// returned conversation may be temporary; it becomes persisted either via
// the resolver's background attempt or on the first successful send.
func (s *Synchronizer) Open(ctx context.Context, otherUserID string) (*domain.Conversation, error) {
	s.mu.Lock()
	known := slices.Clone(s.conversations)
	s.mu.Unlock()

	conv, err := s.convs.Resolve(ctx, s.userID, otherUserID, known)
	if err != nil {
		return nil, err
	}
	if conv.Temporary() {
		s.mu.Lock()
		s.temp = conv
		s.mu.Unlock()
	}
	s.Select(*conv)
	return conv, nil
}

// SelectByID selects a conversation by its persisted id, fetching it when it
// is not in the cached list.
func (s *Synchronizer) SelectByID(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	s.mu.Lock()
	var found *domain.Conversation
	for i := range s.conversations {
		if s.conversations[i].ID == conversationID {
			c := s.conversations[i]
			found = &c
			break
		}
	}
	s.mu.Unlock()

	if found == nil {
		conv, err := s.convs.Get(ctx, conversationID, s.userID)
		if err != nil {
			return nil, err
		}
		found = conv
	}
	s.Select(*found)
	return found, nil
}

// Select makes conv the active conversation: message state is cleared, the
// realtime subscription is moved to the new conversation, and the history
// load starts. A selection made while an earlier load is still in flight
// supersedes it; the stale result is discarded when it lands.
func (s *Synchronizer) Select(conv domain.Conversation) {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.active = &conv
	s.state = SyncLoading
	s.messages = nil
	s.lastErr = nil
	if s.sub != nil {
		s.hub.Unsubscribe(s.sub)
		s.sub = nil
	}
	if !conv.Temporary() {
		s.sub = s.hub.Subscribe(conv.ID)
		go s.receive(s.sub, seq)
	}
	s.mu.Unlock()

	if conv.Temporary() {
		// No persisted history to fetch; the empty list is already loaded.
		s.mu.Lock()
		if seq == s.seq {
			s.state = SyncLoaded
		}
		s.mu.Unlock()
		s.emit(Event{Kind: EventHistory, ConversationID: conv.ID})
		return
	}

	go s.load(conv.ID, seq)
}

// load runs detached from the selecting caller: the request that triggered
// the selection returns (and cancels its context) before the fetch lands, so
// the fetch is bounded by the op timeout alone.
func (s *Synchronizer) load(conversationID string, seq uint64) {
	fctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	history, err := s.msgs.History(fctx, conversationID, s.userID)

	s.mu.Lock()
	if seq != s.seq {
		// A newer selection superseded this fetch.
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.state = SyncFailed
		s.lastErr = err
		s.messages = nil
		s.mu.Unlock()
		s.emit(Event{Kind: EventHistoryError, ConversationID: conversationID, Err: err})
		return
	}
	// Realtime messages that arrived while the fetch was in flight may be
	// newer than the snapshot read; fold them back in.
	pending := s.messages
	s.messages = history
	for _, m := range pending {
		s.insertLocked(m)
	}
	s.state = SyncLoaded
	out := slices.Clone(s.messages)
	s.mu.Unlock()
	s.emit(Event{Kind: EventHistory, ConversationID: conversationID, Messages: out})
}

func (s *Synchronizer) receive(sub *realtime.Subscription, seq uint64) {
	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			s.merge(ev.Message, seq)
		case <-s.done:
			return
		}
	}
}

// merge applies a realtime insert to local state. Duplicates by message id
// are discarded, which makes the merge idempotent however delivery
// interleaves with fetches and optimistic appends.
func (s *Synchronizer) merge(m domain.Message, seq uint64) {
	s.mu.Lock()
	if seq != s.seq || s.active == nil || s.active.ID != m.ConversationID {
		s.mu.Unlock()
		return
	}
	added := s.insertLocked(m)
	s.mu.Unlock()
	if added {
		s.emit(Event{Kind: EventMessage, ConversationID: m.ConversationID, Message: m})
	}
}

// insertLocked appends m unless a message with the same id is already
// present. Appending at the tail is correct while delivery order matches
// creation order; an out-of-order arrival triggers a re-sort by creation
// time.
func (s *Synchronizer) insertLocked(m domain.Message) bool {
	for i := range s.messages {
		if s.messages[i].ID == m.ID {
			return false
		}
	}
	needSort := len(s.messages) > 0 && m.CreatedAt.Before(s.messages[len(s.messages)-1].CreatedAt)
	s.messages = append(s.messages, m)
	if needSort {
		sort.SliceStable(s.messages, func(i, j int) bool {
			if !s.messages[i].CreatedAt.Equal(s.messages[j].CreatedAt) {
				return s.messages[i].CreatedAt.Before(s.messages[j].CreatedAt)
			}
			return s.messages[i].ID < s.messages[j].ID
		})
	}
	return true
}

// Send sends content to the active conversation, first promoting a
// temporary conversation to a persisted one. The stored message is appended
// locally without waiting for a realtime echo, and is attributed to the
// conversation the send was issued against even if the selection changed
// while the send was in flight.
func (s *Synchronizer) Send(ctx context.Context, content string) (*domain.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: message content is empty", domain.ErrInvalidInput)
	}

	s.mu.Lock()
	if s.active == nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: no conversation selected", domain.ErrInvalidInput)
	}
	conv := *s.active
	s.mu.Unlock()

	sctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if conv.Temporary() {
		persisted, err := s.convs.EnsurePersisted(sctx, conv, s.userID)
		if err != nil {
			return nil, fmt.Errorf("%w: create conversation: %v", domain.ErrSendFailed, err)
		}
		conv = *persisted

		s.mu.Lock()
		// Adopt the persisted identity while this thread is still active.
		if s.active != nil && s.active.Temporary() && s.active.Other.ID == conv.Other.ID {
			s.active = &conv
			s.temp = nil
			if s.state == SyncLoading || s.state == SyncIdle {
				s.state = SyncLoaded
			}
			if s.sub == nil {
				s.sub = s.hub.Subscribe(conv.ID)
				go s.receive(s.sub, s.seq)
			}
		}
		s.mu.Unlock()
	}

	msg, err := s.msgs.Send(sctx, MessageSendInput{ConversationID: conv.ID, Content: content}, s.userID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	added := false
	if s.active != nil && s.active.ID == conv.ID {
		added = s.insertLocked(*msg)
		s.active.UpdatedAt = msg.CreatedAt
	}
	s.mu.Unlock()
	if added {
		s.emit(Event{Kind: EventMessage, ConversationID: conv.ID, Message: *msg})
	}
	return msg, nil
}

// Close stops the realtime loop and releases the subscription.
func (s *Synchronizer) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		if s.sub != nil {
			s.hub.Unsubscribe(s.sub)
			s.sub = nil
		}
		s.mu.Unlock()
	})
}

func (s *Synchronizer) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	default:
		s.log.Warn("synchronizer event dropped: consumer not draining",
			zap.String("conversation_id", ev.ConversationID))
	}
}
