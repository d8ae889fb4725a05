package service

import (
	"context"

	"amora/internal/domain"
)

// ProfileService resolves public profiles.
type ProfileService struct {
	profiles domain.ProfileStore
}

func NewProfileService(profiles domain.ProfileStore) *ProfileService {
	return &ProfileService{profiles: profiles}
}

func (s *ProfileService) Get(ctx context.Context, userID string) (*domain.Profile, error) {
	return s.profiles.GetProfile(ctx, userID)
}
