package service

import (
	"context"
	"fmt"

	"amora/internal/domain"
	"amora/internal/security"
)

// AuthService handles registration, login, and logout.
type AuthService struct {
	users  domain.UserRepository
	tokens *security.TokenService
	hash   *security.PasswordHasher
}

func NewAuthService(users domain.UserRepository, tokens *security.TokenService, hash *security.PasswordHasher) *AuthService {
	return &AuthService{
		users:  users,
		tokens: tokens,
		hash:   hash,
	}
}

type RegisterInput struct {
	Username    string
	Email       *string
	Password    string
	DisplayName string
	AvatarURL   string
	Age         *int
	Country     *string
}

type LoginInput struct {
	Username string
	Password string
}

type TokenResponse struct {
	AccessToken string
	TokenType   string
	User        *domain.User
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	if in.Username == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: username and password are required", domain.ErrInvalidInput)
	}
	if in.DisplayName == "" {
		in.DisplayName = in.Username
	}

	if existing, err := s.users.GetByUsername(ctx, in.Username); err != nil {
		return nil, fmt.Errorf("check username: %w", err)
	} else if existing != nil {
		return nil, domain.ErrConflict
	}

	if in.Email != nil && *in.Email != "" {
		if existing, err := s.users.GetByEmail(ctx, *in.Email); err != nil {
			return nil, fmt.Errorf("check email: %w", err)
		} else if existing != nil {
			return nil, domain.ErrConflict
		}
	}

	hashed, err := s.hash.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Username:       in.Username,
		Email:          in.Email,
		HashedPassword: hashed,
		DisplayName:    in.DisplayName,
		AvatarURL:      in.AvatarURL,
		Age:            in.Age,
		Country:        in.Country,
		IsActive:       true,
		IsOnline:       false,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *AuthService) Login(ctx context.Context, in LoginInput) (*TokenResponse, error) {
	user, err := s.users.GetByUsername(ctx, in.Username)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, domain.ErrNotAuthenticated
	}
	if !user.IsActive {
		return nil, domain.ErrNotAuthenticated
	}

	if err := s.hash.Verify(in.Password, user.HashedPassword); err != nil {
		return nil, domain.ErrNotAuthenticated
	}

	if err := s.users.SetOnlineStatus(ctx, user.ID, true); err != nil {
		return nil, fmt.Errorf("set online: %w", err)
	}

	token, err := s.tokens.CreateForUser(user.ID)
	if err != nil {
		return nil, fmt.Errorf("create token: %w", err)
	}

	return &TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		User:        user,
	}, nil
}

func (s *AuthService) Logout(ctx context.Context, userID string) error {
	return s.users.SetOnlineStatus(ctx, userID, false)
}
