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
)

func newConversationService(convs *MockConversationStore, profiles *MockProfileStore) *ConversationService {
	return NewConversationService(convs, profiles, zap.NewNop(), time.Second)
}

func TestConversationService_Resolve_SelfRejected(t *testing.T) {
	svc := newConversationService(new(MockConversationStore), new(MockProfileStore))

	_, err := svc.Resolve(context.Background(), "u1", "u1", nil)
	assert.ErrorIs(t, err, domain.ErrSelfConversation)
}

func TestConversationService_Resolve_NotAuthenticated(t *testing.T) {
	svc := newConversationService(new(MockConversationStore), new(MockProfileStore))

	_, err := svc.Resolve(context.Background(), "", "u2", nil)
	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)
}

func TestConversationService_Resolve_KnownHit(t *testing.T) {
	convs := new(MockConversationStore)
	profiles := new(MockProfileStore)
	svc := newConversationService(convs, profiles)

	known := []domain.Conversation{
		{ID: "c1", State: domain.StatePersisted, Other: domain.Profile{ID: "u2", DisplayName: "Bea"}},
	}

	conv, err := svc.Resolve(context.Background(), "u1", "u2", known)

	assert.NoError(t, err)
	assert.Equal(t, "c1", conv.ID)
	// The store is never consulted when the known list already has the match.
	convs.AssertNotCalled(t, "ListParticipantRows", mock.Anything, mock.Anything)
}

func TestConversationService_Resolve_SharedFoundInStore(t *testing.T) {
	convs := new(MockConversationStore)
	profiles := new(MockProfileStore)
	svc := newConversationService(convs, profiles)

	now := time.Now().UTC()
	convs.On("ListParticipantRows", mock.Anything, "u1").
		Return([]domain.ParticipantRow{{ConversationID: "c1", UserID: "u1"}}, nil)
	convs.On("ListParticipantRows", mock.Anything, "u2").
		Return([]domain.ParticipantRow{{ConversationID: "c1", UserID: "u2"}}, nil)
	convs.On("GetConversation", mock.Anything, "c1").
		Return(&domain.ConversationRecord{ID: "c1", CreatedAt: now, UpdatedAt: now}, nil)
	profiles.On("GetProfile", mock.Anything, "u2").
		Return(&domain.Profile{ID: "u2", DisplayName: "Bea"}, nil)

	conv, err := svc.Resolve(context.Background(), "u1", "u2", nil)

	assert.NoError(t, err)
	assert.Equal(t, "c1", conv.ID)
	assert.Equal(t, domain.StatePersisted, conv.State)
	assert.Equal(t, "Bea", conv.Other.DisplayName)
	convs.AssertExpectations(t)
}

func TestConversationService_Resolve_SharedPicksMostRecent(t *testing.T) {
	convs := new(MockConversationStore)
	profiles := new(MockProfileStore)
	svc := newConversationService(convs, profiles)

	older := time.Now().UTC().Add(-time.Hour)
	newer := time.Now().UTC()
	convs.On("ListParticipantRows", mock.Anything, "u1").
		Return([]domain.ParticipantRow{
			{ConversationID: "c1", UserID: "u1"},
			{ConversationID: "c2", UserID: "u1"},
		}, nil)
	convs.On("ListParticipantRows", mock.Anything, "u2").
		Return([]domain.ParticipantRow{
			{ConversationID: "c1", UserID: "u2"},
			{ConversationID: "c2", UserID: "u2"},
		}, nil)
	convs.On("GetConversation", mock.Anything, "c1").
		Return(&domain.ConversationRecord{ID: "c1", UpdatedAt: older}, nil)
	convs.On("GetConversation", mock.Anything, "c2").
		Return(&domain.ConversationRecord{ID: "c2", UpdatedAt: newer}, nil)
	profiles.On("GetProfile", mock.Anything, "u2").
		Return(&domain.Profile{ID: "u2", DisplayName: "Bea"}, nil)

	conv, err := svc.Resolve(context.Background(), "u1", "u2", nil)

	assert.NoError(t, err)
	assert.Equal(t, "c2", conv.ID, "duplicate records resolve to the most recently active one")
}

func TestConversationService_Resolve_TemporaryWithBackgroundCreate(t *testing.T) {
	convs := new(MockConversationStore)
	profiles := new(MockProfileStore)
	svc := newConversationService(convs, profiles)

	created := make(chan string, 1)
	svc.OnCreated = func(id string) { created <- id }

	convs.On("ListParticipantRows", mock.Anything, "u1").Return([]domain.ParticipantRow{}, nil)
	convs.On("ListParticipantRows", mock.Anything, "u2").Return([]domain.ParticipantRow{}, nil)
	profiles.On("GetProfile", mock.Anything, "u2").
		Return(&domain.Profile{ID: "u2", DisplayName: "Bea"}, nil)
	convs.On("FindDirect", mock.Anything, "u1", "u2").Return(nil, nil)
	convs.On("InsertConversation", mock.Anything).Return("c-new", nil)
	convs.On("InsertParticipantRows", mock.Anything, mock.MatchedBy(func(rows []domain.ParticipantRow) bool {
		return len(rows) == 2 && rows[0].ConversationID == "c-new" && rows[1].ConversationID == "c-new"
	})).Return(nil)

	conv, err := svc.Resolve(context.Background(), "u1", "u2", nil)

	assert.NoError(t, err)
	assert.True(t, conv.Temporary())
	assert.Empty(t, conv.ID)
	assert.Equal(t, "Bea", conv.Other.DisplayName)

	select {
	case id := <-created:
		assert.Equal(t, "c-new", id)
	case <-time.After(2 * time.Second):
		t.Fatal("background create did not complete")
	}
	convs.AssertExpectations(t)
}

func TestConversationService_Resolve_BackgroundCreateFailureKeepsTemporary(t *testing.T) {
	convs := new(MockConversationStore)
	profiles := new(MockProfileStore)
	svc := newConversationService(convs, profiles)

	attempted := make(chan struct{}, 1)
	convs.On("ListParticipantRows", mock.Anything, "u1").Return([]domain.ParticipantRow{}, nil)
	convs.On("ListParticipantRows", mock.Anything, "u2").Return([]domain.ParticipantRow{}, nil)
	profiles.On("GetProfile", mock.Anything, "u2").
		Return(&domain.Profile{ID: "u2", DisplayName: "Bea"}, nil)
	convs.On("FindDirect", mock.Anything, "u1", "u2").
		Run(func(mock.Arguments) { attempted <- struct{}{} }).
		Return(nil, errors.New("db down"))

	conv, err := svc.Resolve(context.Background(), "u1", "u2", nil)

	assert.NoError(t, err, "persistence failure must not fail the resolve")
	assert.True(t, conv.Temporary())

	select {
	case <-attempted:
	case <-time.After(2 * time.Second):
		t.Fatal("background create was never attempted")
	}
}

func TestConversationService_Resolve_UnknownUser(t *testing.T) {
	convs := new(MockConversationStore)
	profiles := new(MockProfileStore)
	svc := newConversationService(convs, profiles)

	convs.On("ListParticipantRows", mock.Anything, mock.Anything).Return([]domain.ParticipantRow{}, nil)
	profiles.On("GetProfile", mock.Anything, "ghost").Return(nil, domain.ErrNotFound)

	_, err := svc.Resolve(context.Background(), "u1", "ghost", nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func listFixture(convs *MockConversationStore, profiles *MockProfileStore, recs map[string]*domain.ConversationRecord, others map[string]string) {
	rows := make([]domain.ParticipantRow, 0, len(recs))
	for id := range recs {
		rows = append(rows, domain.ParticipantRow{ConversationID: id, UserID: "u1"})
	}
	convs.On("ListParticipantRows", mock.Anything, "u1").Return(rows, nil)
	for id, rec := range recs {
		convs.On("GetConversation", mock.Anything, id).Return(rec, nil)
		other := others[id]
		parts := []domain.ParticipantRow{{ConversationID: id, UserID: "u1"}}
		if other != "" {
			parts = append(parts, domain.ParticipantRow{ConversationID: id, UserID: other})
			profiles.On("GetProfile", mock.Anything, other).
				Return(&domain.Profile{ID: other, DisplayName: other}, nil).Maybe()
		}
		convs.On("ListConversationParticipants", mock.Anything, id).Return(parts, nil)
	}
}

func TestConversationService_List_CollapsesDuplicates(t *testing.T) {
	convs := new(MockConversationStore)
	profiles := new(MockProfileStore)
	svc := newConversationService(convs, profiles)

	older := time.Now().UTC().Add(-time.Hour)
	newer := time.Now().UTC()
	listFixture(convs, profiles,
		map[string]*domain.ConversationRecord{
			"c1": {ID: "c1", UpdatedAt: older},
			"c2": {ID: "c2", UpdatedAt: newer},
		},
		map[string]string{"c1": "u2", "c2": "u2"},
	)

	out, err := svc.List(context.Background(), "u1")

	assert.NoError(t, err)
	assert.Len(t, out, 1, "duplicate conversations per other participant collapse to one")
	assert.Equal(t, "c2", out[0].ID)
}

func TestConversationService_List_PinnedFirstThenRecent(t *testing.T) {
	convs := new(MockConversationStore)
	profiles := new(MockProfileStore)
	svc := newConversationService(convs, profiles)

	t0 := time.Now().UTC()
	listFixture(convs, profiles,
		map[string]*domain.ConversationRecord{
			"c1": {ID: "c1", UpdatedAt: t0},
			"c2": {ID: "c2", UpdatedAt: t0.Add(-time.Hour), IsPinned: true},
			"c3": {ID: "c3", UpdatedAt: t0.Add(-2 * time.Hour)},
		},
		map[string]string{"c1": "u2", "c2": "u3", "c3": "u4"},
	)

	out, err := svc.List(context.Background(), "u1")

	assert.NoError(t, err)
	assert.Len(t, out, 3)
	assert.Equal(t, "c2", out[0].ID, "pinned sorts first despite being older")
	assert.Equal(t, "c1", out[1].ID)
	assert.Equal(t, "c3", out[2].ID)
}

func TestConversationService_List_SkipsSoloAndDangling(t *testing.T) {
	convs := new(MockConversationStore)
	profiles := new(MockProfileStore)
	svc := newConversationService(convs, profiles)

	now := time.Now().UTC()
	convs.On("ListParticipantRows", mock.Anything, "u1").Return([]domain.ParticipantRow{
		{ConversationID: "c1", UserID: "u1"},
		{ConversationID: "c-gone", UserID: "u1"},
		{ConversationID: "c-solo", UserID: "u1"},
	}, nil)
	convs.On("GetConversation", mock.Anything, "c1").
		Return(&domain.ConversationRecord{ID: "c1", UpdatedAt: now}, nil)
	convs.On("GetConversation", mock.Anything, "c-gone").Return(nil, nil)
	convs.On("GetConversation", mock.Anything, "c-solo").
		Return(&domain.ConversationRecord{ID: "c-solo", UpdatedAt: now}, nil)
	convs.On("ListConversationParticipants", mock.Anything, "c1").Return([]domain.ParticipantRow{
		{ConversationID: "c1", UserID: "u1"},
		{ConversationID: "c1", UserID: "u2"},
	}, nil)
	convs.On("ListConversationParticipants", mock.Anything, "c-solo").Return([]domain.ParticipantRow{
		{ConversationID: "c-solo", UserID: "u1"},
	}, nil)
	profiles.On("GetProfile", mock.Anything, "u2").
		Return(&domain.Profile{ID: "u2", DisplayName: "Bea"}, nil)

	out, err := svc.List(context.Background(), "u1")

	assert.NoError(t, err)
	assert.Len(t, out, 1)
	assert.Equal(t, "c1", out[0].ID)
}

func TestConversationService_List_StoreFailureAborts(t *testing.T) {
	convs := new(MockConversationStore)
	profiles := new(MockProfileStore)
	svc := newConversationService(convs, profiles)

	convs.On("ListParticipantRows", mock.Anything, "u1").Return([]domain.ParticipantRow{
		{ConversationID: "c1", UserID: "u1"},
		{ConversationID: "c2", UserID: "u1"},
	}, nil)
	convs.On("GetConversation", mock.Anything, mock.Anything).
		Return(nil, errors.New("db down"))

	out, err := svc.List(context.Background(), "u1")

	assert.ErrorIs(t, err, domain.ErrFetchFailed)
	assert.Nil(t, out, "a partial list is never returned")
}

func TestConversationService_Get_AccessDenied(t *testing.T) {
	convs := new(MockConversationStore)
	profiles := new(MockProfileStore)
	svc := newConversationService(convs, profiles)

	convs.On("GetConversation", mock.Anything, "c1").
		Return(&domain.ConversationRecord{ID: "c1"}, nil)
	convs.On("ListConversationParticipants", mock.Anything, "c1").Return([]domain.ParticipantRow{
		{ConversationID: "c1", UserID: "u2"},
		{ConversationID: "c1", UserID: "u3"},
	}, nil)

	_, err := svc.Get(context.Background(), "c1", "u1")
	assert.ErrorIs(t, err, domain.ErrAccessDenied)
}

func TestConversationService_EnsurePersisted_ReusesExisting(t *testing.T) {
	convs := new(MockConversationStore)
	profiles := new(MockProfileStore)
	svc := newConversationService(convs, profiles)

	now := time.Now().UTC()
	convs.On("FindDirect", mock.Anything, "u1", "u2").
		Return(&domain.ConversationRecord{ID: "c1", UpdatedAt: now}, nil)
	convs.On("GetConversation", mock.Anything, "c1").
		Return(&domain.ConversationRecord{ID: "c1", UpdatedAt: now}, nil)

	temp := domain.Conversation{State: domain.StateTemporary, Other: domain.Profile{ID: "u2", DisplayName: "Bea"}}
	conv, err := svc.EnsurePersisted(context.Background(), temp, "u1")

	assert.NoError(t, err)
	assert.Equal(t, "c1", conv.ID)
	assert.Equal(t, domain.StatePersisted, conv.State)
	assert.Equal(t, "Bea", conv.Other.DisplayName, "profile carries over from the temporary conversation")
	convs.AssertNotCalled(t, "InsertConversation", mock.Anything)
}
